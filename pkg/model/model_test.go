package model

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/coverage"
	"github.com/l3aro/go-defuse/pkg/instr"
)

const accountModel = `
classes:
  - class: Account
    methods:
      - name: deposit
        access: {public: true}
        instructions:
          - {id: 1, kind: use, variable: balance, scope: field}
          - {id: 2, kind: definition, variable: balance, scope: field}
          - {id: 3, kind: return}
      - name: get
        access: {public: true}
        instructions:
          - {id: 1, kind: use, variable: balance, scope: field}
          - {id: 2, kind: return}
      - name: set
        access: {public: true}
        instructions:
          - {id: 1, kind: use, variable: v, scope: local}
          - {id: 2, kind: definition, variable: balance, scope: field}
          - {id: 3, kind: return}
dependencies:
  - class: Ledger
    methods:
      - name: size
        instructions:
          - {id: 1, kind: return}
`

const accountTraces = `
tests:
  - id: setThenGet
    events:
      - {type: enter, class: Account, method: set, object: 1}
      - {type: use, instruction: 1}
      - {type: def, instruction: 2}
      - {type: exit}
      - {type: enter, class: Account, method: get, object: 1}
      - {type: use, instruction: 1}
      - {type: exit}
  - id: slow
    timed_out: true
`

func load(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestLoad_ClassModel(t *testing.T) {
	doc := load(t, accountModel)
	require.Len(t, doc.Classes, 1)
	require.Len(t, doc.Dependencies, 1)

	classes, err := doc.ClassCFGs()
	require.NoError(t, err)
	require.Len(t, classes, 1)
	c := classes[0]
	assert.Equal(t, "Account", c.ClassName)
	assert.Len(t, c.Methods(), 3)

	m, ok := c.Method("deposit")
	require.True(t, ok)
	assert.True(t, m.Access.Public)
	assert.Equal(t, []int{2}, m.Successors(1), "omitted edges chain the instructions")
	assert.Equal(t, []int{3}, m.Exits())

	in, ok := m.Instruction(2)
	require.True(t, ok)
	assert.Equal(t, "Account", in.ClassName)
	assert.Equal(t, "deposit", in.MethodName)
	assert.True(t, in.IsFieldDefinition())

	deps, err := doc.DependencyCFGs()
	require.NoError(t, err)
	assert.Equal(t, "Ledger", deps[0].ClassName)
}

func TestLoad_JSON(t *testing.T) {
	src := `{"classes": [{"class": "C", "methods": [{"name": "m", "instructions": [{"id": 1, "kind": "return"}]}]}]}`
	doc := load(t, src)
	assert.Equal(t, "C", doc.Classes[0].Name)
}

func TestLoad_ExplicitEdges(t *testing.T) {
	doc := load(t, `
classes:
  - class: C
    methods:
      - name: m
        entry: 1
        instructions:
          - {id: 1, kind: branch, branch_id: 7}
          - {id: 2, kind: definition, variable: x, scope: local, control: {branch_id: 7, outcome: true}}
          - {id: 3, kind: return}
        edges:
          - {from: 1, to: 2, type: "true"}
          - {from: 1, to: 3, type: "false"}
          - {from: 2, to: 3}
`)
	classes, err := doc.ClassCFGs()
	require.NoError(t, err)
	m, _ := classes[0].Method("m")
	assert.ElementsMatch(t, []int{2, 3}, m.Successors(1))
	edges := m.Edges()
	require.Len(t, edges, 3)
	assert.Equal(t, cfg.EdgeTypeUnconditional, edges[2].EdgeType)

	in, _ := m.Instruction(2)
	require.NotNil(t, in.Control)
	assert.Equal(t, instr.ControlDependency{BranchID: 7, Outcome: true}, *in.Control)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ``},
		{"no classes", `dependencies: []`},
		{"unknown kind", `
classes:
  - class: C
    methods:
      - name: m
        instructions: [{id: 1, kind: jump}]`},
		{"definition without variable", `
classes:
  - class: C
    methods:
      - name: m
        instructions: [{id: 1, kind: definition, scope: local}]`},
		{"branch without id", `
classes:
  - class: C
    methods:
      - name: m
        instructions: [{id: 1, kind: branch}]`},
		{"unknown property", `
classes:
  - class: C
    colour: red
    methods: []`},
		{"duplicate instruction", `
classes:
  - class: C
    methods:
      - name: m
        instructions: [{id: 1, kind: return}, {id: 1, kind: return}]`},
		{"dangling edge", `
classes:
  - class: C
    methods:
      - name: m
        instructions: [{id: 1, kind: return}]
        edges: [{from: 1, to: 9}]`},
		{"unknown branch", `
classes:
  - class: C
    methods:
      - name: m
        instructions:
          - {id: 1, kind: use, variable: x, scope: local, control: {branch_id: 3, outcome: false}}`},
		{"duplicate class", `
classes:
  - class: C
    methods: []
dependencies:
  - class: C
    methods: []`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.src))
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestDocument_Fingerprint(t *testing.T) {
	a, err := load(t, accountModel).Fingerprint()
	require.NoError(t, err)
	b, err := load(t, accountModel).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	changed := load(t, accountModel)
	changed.Classes[0].Methods[0].Access.Public = false
	c, err := changed.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func session(t *testing.T, doc *Document) *coverage.AnalysisSession {
	t.Helper()
	classes, err := doc.ClassCFGs()
	require.NoError(t, err)
	deps, err := doc.DependencyCFGs()
	require.NoError(t, err)
	s := coverage.NewSession(coverage.Options{})
	require.NoError(t, s.Load(classes...))
	s.LoadDependencies(deps...)
	return s
}

func TestTraceDocument_Results(t *testing.T) {
	s := session(t, load(t, accountModel))
	docs, err := LoadTraces(strings.NewReader(accountTraces))
	require.NoError(t, err)

	results, err := docs.Results(s.Pool(), s.Registry())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "setThenGet", results[0].TestID)
	assert.True(t, results[1].TimedOut)

	tr := results[0].Trace
	assert.True(t, tr.MethodCalled("Account", "set"))
	assert.Equal(t, 3, tr.DUCounter())
	assert.Equal(t, []int{1}, tr.DefinitionObjects("balance"))

	r, err := s.SuiteFitness(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Total)
	assert.Equal(t, 2, r.Covered)
	assert.Equal(t, 1, r.TimedOut)
}

func TestTraceDocument_Increment(t *testing.T) {
	doc := load(t, `
classes:
  - class: C
    methods:
      - name: m
        instructions:
          - {id: 1, kind: definition, variable: i, scope: local}
          - {id: 2, kind: iinc, variable: i, scope: local}
          - {id: 3, kind: return}
`)
	s := session(t, doc)
	tt := &TestTrace{ID: "t", Events: []Event{
		{Type: EventEnter, Class: "C", Method: "m"},
		{Type: EventDef, Instruction: 1},
		{Type: EventIncrement, Instruction: 2},
	}}
	res, err := tt.Result(s.Pool(), s.Registry())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Trace.DUCounter(), "an increment records a use and a definition")
	assert.Len(t, res.Trace.DefinitionEvents("i", 0), 2)
	assert.Len(t, res.Trace.UseEvents("i", 0), 1)
}

func TestTraceDocument_Invalid(t *testing.T) {
	s := session(t, load(t, accountModel))
	tests := []struct {
		name  string
		event Event
	}{
		{"unknown type", Event{Type: "jump"}},
		{"unknown method", Event{Type: EventUse, Class: "Account", Method: "close", Instruction: 1}},
		{"unknown instruction", Event{Type: EventUse, Instruction: 9}},
		{"not a definition", Event{Type: EventDef, Instruction: 1}},
		{"enter without method", Event{Type: EventEnter, Class: "Account"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt := &TestTrace{ID: "t", Events: []Event{
				{Type: EventEnter, Class: "Account", Method: "get"},
				tc.event,
			}}
			_, err := tt.Result(s.Pool(), s.Registry())
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestLoadTraces_UnknownField(t *testing.T) {
	_, err := LoadTraces(strings.NewReader("tests:\n  - id: a\n    colour: red\n"))
	assert.Error(t, err)
}

func TestTraceDocument_Test(t *testing.T) {
	docs, err := LoadTraces(strings.NewReader(accountTraces))
	require.NoError(t, err)
	tt, ok := docs.Test("slow")
	require.True(t, ok)
	assert.True(t, tt.TimedOut)
	_, ok = docs.Test("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"setThenGet", "slow"}, docs.IDs())
}

func TestTraceDocument_StaticAcrossInstances(t *testing.T) {
	doc := load(t, `
classes:
  - class: C
    methods:
      - name: set
        access: {public: true}
        instructions:
          - {id: 1, kind: definition, variable: count, scope: static}
          - {id: 2, kind: return}
      - name: get
        access: {public: true}
        instructions:
          - {id: 1, kind: use, variable: count, scope: static}
          - {id: 2, kind: return}
`)
	s := session(t, doc)
	docs, err := LoadTraces(strings.NewReader(`
tests:
  - id: twoInstances
    events:
      - {type: enter, class: C, method: set, object: 1}
      - {type: def, instruction: 1}
      - {type: exit}
      - {type: enter, class: C, method: get, object: 2}
      - {type: use, instruction: 1}
      - {type: exit}
`))
	require.NoError(t, err)
	results, err := docs.Results(s.Pool(), s.Registry())
	require.NoError(t, err)

	tr := results[0].Trace
	assert.Equal(t, []int{0}, tr.DefinitionObjects("count"), "static events pool under object 0")
	assert.Equal(t, []int{0}, tr.UseObjects("count"))

	r, err := s.SuiteFitness(context.Background(), results)
	require.NoError(t, err)
	require.NotZero(t, r.Total)
	assert.Equal(t, r.Total, r.Covered)
	assert.Zero(t, r.Fitness)
}
