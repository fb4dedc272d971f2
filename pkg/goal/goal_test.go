package goal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/instr"
	"github.com/l3aro/go-defuse/pkg/trace"
)

type fixture struct {
	reg *defuse.Registry
	cat *Catalog
}

func newFixture() *fixture {
	reg := defuse.NewRegistry()
	return &fixture{reg: reg, cat: NewCatalog(reg, nil)}
}

func (f *fixture) def(t *testing.T, id int, variable string, scope instr.Scope) *defuse.DefUse {
	t.Helper()
	in := &instr.Instruction{ID: id, ClassName: "C", MethodName: "foo", Kind: instr.KindDefinition, Variable: variable, Scope: scope}
	ok, err := f.reg.RegisterDefinition(in)
	require.NoError(t, err)
	require.True(t, ok)
	d, ok := f.reg.DefinitionFor(in)
	require.True(t, ok)
	return d
}

func (f *fixture) use(t *testing.T, id int, variable string, scope instr.Scope) *defuse.DefUse {
	t.Helper()
	in := &instr.Instruction{ID: id, ClassName: "C", MethodName: "foo", Kind: instr.KindUse, Variable: variable, Scope: scope}
	ok, err := f.reg.RegisterUse(in)
	require.NoError(t, err)
	require.True(t, ok)
	u, ok := f.reg.UseFor(in)
	require.True(t, ok)
	return u
}

func mustNew(t *testing.T, def, use *defuse.DefUse, typ Type) *Goal {
	t.Helper()
	g, err := New(def, use, typ)
	require.NoError(t, err)
	return g
}

func TestGoal_New(t *testing.T) {
	f := newFixture()
	local := f.def(t, 1, "x", instr.ScopeLocal)
	field := f.def(t, 2, "f", instr.ScopeField)
	use := f.use(t, 3, "x", instr.ScopeLocal)

	_, err := New(local, use, TypeInterMethod)
	assert.ErrorIs(t, err, defuse.ErrIllegalArgument)

	_, err = New(nil, use, TypeIntraMethod)
	assert.ErrorIs(t, err, defuse.ErrIllegalArgument)

	_, err = New(field, use, TypeParameter)
	assert.ErrorIs(t, err, defuse.ErrIllegalArgument)

	_, err = New(use, use, TypeIntraMethod)
	assert.ErrorIs(t, err, defuse.ErrIllegalArgument)

	g := mustNew(t, field, use, TypeIntraClass)
	assert.Equal(t, "f", g.Variable)
	assert.True(t, g.IsAlias())
	assert.Equal(t, Key{DefID: field.ID, UseID: use.ID}, g.Key())
}

func TestGoal_NewParameter(t *testing.T) {
	f := newFixture()
	param := f.use(t, 1, "p", instr.ScopeLocal)
	f.def(t, 2, "x", instr.ScopeLocal)
	notParam := f.use(t, 3, "x", instr.ScopeLocal)

	g, err := NewParameter(param)
	require.NoError(t, err)
	assert.Nil(t, g.Definition)
	assert.True(t, g.IsParameter())
	assert.False(t, g.IsAlias())
	assert.Equal(t, -1, g.Key().DefID)

	_, err = NewParameter(notParam)
	assert.ErrorIs(t, err, defuse.ErrIllegalArgument)
}

func TestGoal_Equal(t *testing.T) {
	f := newFixture()
	d := f.def(t, 1, "x", instr.ScopeLocal)
	u := f.use(t, 2, "x", instr.ScopeLocal)

	a := mustNew(t, d, u, TypeIntraMethod)
	b := mustNew(t, d, u, TypeIntraMethod)
	assert.True(t, a.Equal(b), "independently built goals are equal")

	other := f.def(t, 3, "x", instr.ScopeField)
	assert.False(t, a.Equal(mustNew(t, other, u, TypeIntraMethod)))
	assert.False(t, a.Equal(nil))
}

func TestType_ParseAndText(t *testing.T) {
	for _, typ := range Types {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	parsed, err := ParseType("intra_class")
	require.NoError(t, err)
	assert.Equal(t, TypeIntraClass, parsed)

	_, err = ParseType("bogus")
	assert.Error(t, err)

	var typ Type
	require.NoError(t, typ.UnmarshalText([]byte("PARAMETER")))
	assert.Equal(t, TypeParameter, typ)
}

func TestGoal_InstructionsBetween(t *testing.T) {
	m := cfg.NewMethodCFG("C", "foo", cfg.Access{Public: true})
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 1, Kind: instr.KindDefinition, Variable: "x", Scope: instr.ScopeLocal}))
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 2, Kind: instr.KindPlain}))
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 3, Kind: instr.KindUse, Variable: "x", Scope: instr.ScopeLocal}))
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 4, Kind: instr.KindReturn}))
	require.NoError(t, m.AddEdge(1, 2, cfg.EdgeTypeUnconditional))
	require.NoError(t, m.AddEdge(2, 3, cfg.EdgeTypeUnconditional))
	require.NoError(t, m.AddEdge(3, 4, cfg.EdgeTypeUnconditional))

	reg := defuse.NewRegistry()
	d1, _ := m.Instruction(1)
	u3, _ := m.Instruction(3)
	_, err := reg.RegisterDefinition(d1)
	require.NoError(t, err)
	_, err = reg.RegisterUse(u3)
	require.NoError(t, err)
	def, _ := reg.DefinitionFor(d1)
	use, _ := reg.UseFor(u3)

	g := mustNew(t, def, use, TypeIntraMethod)
	between := g.InstructionsBetween(m)
	require.Len(t, between, 1)
	assert.Equal(t, 2, between[0].ID)

	other := cfg.NewMethodCFG("C", "bar", cfg.Access{})
	assert.Nil(t, g.InstructionsBetween(other))
}

func TestCatalog_RegisterAndLookup(t *testing.T) {
	f := newFixture()
	d := f.def(t, 1, "x", instr.ScopeField)
	u := f.use(t, 2, "x", instr.ScopeField)

	g := mustNew(t, d, u, TypeIntraMethod)
	assert.True(t, f.cat.Register(g))
	assert.False(t, f.cat.Register(mustNew(t, d, u, TypeInterMethod)), "first classification wins")

	assert.Same(t, g, f.cat.Lookup(d.ID, u.ID))
	assert.Nil(t, f.cat.Lookup(d.ID, 99))
	assert.Nil(t, f.cat.Lookup(99, u.ID))
	assert.Equal(t, map[int]*Goal{u.ID: g}, f.cat.GoalsForDefinition(d))
	assert.Equal(t, 1, f.cat.CountByType()[TypeIntraMethod])
	assert.Equal(t, 0, f.cat.CountByType()[TypeInterMethod])
	assert.Equal(t, []*Goal{g}, f.cat.All())
}

func TestCatalog_StaleIDsDoNotResolve(t *testing.T) {
	f := newFixture()
	d := f.def(t, 1, "x", instr.ScopeField)
	u := f.use(t, 2, "x", instr.ScopeField)
	f.cat.Register(mustNew(t, d, u, TypeIntraMethod))

	f.reg.Clear()
	assert.Nil(t, f.cat.Lookup(d.ID, u.ID))
	assert.Empty(t, f.cat.GoalsForDefinition(d))

	// same IDs handed out again in the new generation
	d2 := f.def(t, 1, "x", instr.ScopeField)
	u2 := f.use(t, 2, "x", instr.ScopeField)
	require.Equal(t, d.ID, d2.ID)
	require.Equal(t, u.ID, u2.ID)
	assert.Nil(t, f.cat.Lookup(d2.ID, u2.ID), "old goal must not resolve for new entities")
}

func TestCatalog_ParameterGoals(t *testing.T) {
	f := newFixture()
	p := f.use(t, 1, "p", instr.ScopeLocal)
	g, err := NewParameter(p)
	require.NoError(t, err)

	assert.True(t, f.cat.Register(g))
	assert.False(t, f.cat.Register(g))
	assert.Same(t, g, f.cat.LookupParameter(p.ID))
	assert.Nil(t, f.cat.LookupParameter(42))
}

func TestCatalog_CoveredGoals(t *testing.T) {
	f := newFixture()
	d1 := f.def(t, 1, "x", instr.ScopeField)
	d2 := f.def(t, 2, "x", instr.ScopeField)
	u := f.use(t, 3, "x", instr.ScopeField)
	g1 := mustNew(t, d1, u, TypeIntraMethod)
	g2 := mustNew(t, d2, u, TypeIntraMethod)
	f.cat.Register(g1)
	f.cat.Register(g2)

	b := trace.NewBuilder()
	b.Definition("x", 1, d1.ID, trace.ObjectRef{})
	b.Definition("x", 1, d2.ID, trace.ObjectRef{})
	b.Use("x", 1, u.ID, trace.ObjectRef{})
	covered := f.cat.CoveredGoals([]*trace.Result{
		{TestID: "t1", Trace: b.Build()},
		{TestID: "t2", TimedOut: true},
	})

	assert.Len(t, covered, 1)
	assert.Contains(t, covered, g2)
	assert.NotContains(t, covered, g1, "overwritten definition is not active at the use")
}

func TestCatalog_DetectAliasingGoals(t *testing.T) {
	f := newFixture()
	defA := f.def(t, 1, "a", instr.ScopeField)
	defB := f.def(t, 2, "b", instr.ScopeField)
	useB := f.use(t, 3, "b", instr.ScopeField)
	canonical := mustNew(t, defB, useB, TypeIntraMethod)
	f.cat.Register(canonical)

	obj := trace.ObjectRef{Identity: 42, Type: "List"}
	b := trace.NewBuilder()
	b.EnterMethod("C", "foo", 1)
	b.Definition("a", 1, defA.ID, obj)
	b.Use("b", 1, useB.ID, obj)
	results := []*trace.Result{{TestID: "t1", Trace: b.Build()}}

	assert.True(t, f.cat.DetectAliasingGoals(results))
	alias := f.cat.Lookup(defA.ID, useB.ID)
	require.NotNil(t, alias)
	assert.True(t, alias.IsAlias())
	assert.Equal(t, TypeIntraMethod, alias.Type)
	assert.Same(t, canonical, f.cat.Lookup(defB.ID, useB.ID), "canonical goal is kept")
	assert.Equal(t, 2, f.cat.Len())

	assert.False(t, f.cat.DetectAliasingGoals(results), "known alias goals are not added twice")
	assert.Equal(t, 2, f.cat.Len())
}

func TestCatalog_DetectAliasingGoalsIgnoresNull(t *testing.T) {
	f := newFixture()
	defA := f.def(t, 1, "a", instr.ScopeField)
	defB := f.def(t, 2, "b", instr.ScopeField)
	useB := f.use(t, 3, "b", instr.ScopeField)
	f.cat.Register(mustNew(t, defB, useB, TypeIntraMethod))

	b := trace.NewBuilder()
	b.Definition("a", 1, defA.ID, trace.ObjectRef{})
	b.Use("b", 1, useB.ID, trace.ObjectRef{})

	assert.False(t, f.cat.DetectAliasingGoals([]*trace.Result{{Trace: b.Build()}}))
}

func TestCatalog_AddAliasGoalsNeverReplaces(t *testing.T) {
	f := newFixture()
	d := f.def(t, 1, "x", instr.ScopeField)
	u := f.use(t, 2, "x", instr.ScopeField)
	canonical := mustNew(t, d, u, TypeIntraMethod)
	f.cat.Register(canonical)

	added := f.cat.AddAliasGoals([]*Goal{mustNew(t, d, u, TypeInterMethod)})
	assert.Equal(t, 0, added)
	assert.Same(t, canonical, f.cat.Lookup(d.ID, u.ID))
}

func TestCatalog_PersistAndRestore(t *testing.T) {
	f := newFixture()
	d := f.def(t, 1, "x", instr.ScopeField)
	u := f.use(t, 2, "x", instr.ScopeField)
	p := f.use(t, 3, "p", instr.ScopeLocal)
	g := mustNew(t, d, u, TypeIntraMethod)
	pg, err := NewParameter(p)
	require.NoError(t, err)
	f.cat.Register(g)
	f.cat.Register(pg)

	var buf bytes.Buffer
	require.NoError(t, EncodeKeys(&buf, Store("s1", f.cat.All())))
	keys, err := DecodeKeys(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, StoredKey{Session: "s1", Type: TypeIntraMethod, DefID: d.ID, UseID: u.ID}, keys[0])

	restored, err := f.cat.Restore("s1", keys)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.Same(t, g, restored[0])
	assert.Same(t, pg, restored[1])

	_, err = f.cat.Restore("s2", keys)
	assert.ErrorIs(t, err, ErrForeignSession)

	f.reg.Clear()
	f.cat.Clear()
	_, err = f.cat.Restore("s1", keys)
	assert.ErrorIs(t, err, ErrUnresolvedKey)
}
