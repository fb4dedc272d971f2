package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/instr"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// foo: branch 1 guards branch 2, which guards instruction 5
func nestedPool(t *testing.T) *cfg.Pool {
	t.Helper()
	m := cfg.NewMethodCFG("C", "foo", cfg.Access{Public: true})
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 1, Kind: instr.KindBranch, BranchID: 1}))
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 2, Kind: instr.KindBranch, BranchID: 2,
		Control: &instr.ControlDependency{BranchID: 1, Outcome: true}}))
	require.NoError(t, m.AddInstruction(&instr.Instruction{ID: 5, Kind: instr.KindUse, Variable: "x",
		Control: &instr.ControlDependency{BranchID: 2, Outcome: false}}))
	require.NoError(t, m.AddEdge(1, 2, cfg.EdgeTypeTrue))
	require.NoError(t, m.AddEdge(2, 5, cfg.EdgeTypeFalse))
	c := cfg.NewClassCFG("C")
	require.NoError(t, c.AddMethod(m))
	p := cfg.NewPool()
	p.Register(c)
	return p
}

func target(t *testing.T, p *cfg.Pool, id int) *instr.Instruction {
	t.Helper()
	m, ok := p.MethodCFG("C", "foo")
	require.True(t, ok)
	in, ok := m.Instruction(id)
	require.True(t, ok)
	return in
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.0, Normalize(0))
	assert.Equal(t, 0.5, Normalize(1))
	assert.InDelta(t, 0.75, Normalize(3), 1e-9)
}

func TestControlDependence_RootBranch(t *testing.T) {
	p := nestedPool(t)
	o := NewControlDependence(p)
	branch1 := target(t, p, 1)

	assert.Equal(t, 1.0, o.Distance(trace.Empty(), branch1))

	b := trace.NewBuilder()
	b.EnterMethod("C", "foo", 1)
	assert.Equal(t, 0.0, o.Distance(b.Build(), branch1))
}

func TestControlDependence_EvaluatedBranch(t *testing.T) {
	p := nestedPool(t)
	o := NewControlDependence(p)
	use := target(t, p, 5)

	b := trace.NewBuilder()
	b.EnterMethod("C", "foo", 1)
	require.NoError(t, b.Branch(1, 0, 1))
	require.NoError(t, b.Branch(2, 0, 3))
	require.NoError(t, b.ExitMethod())
	assert.InDelta(t, 0.75, o.Distance(b.Build(), use), 1e-9)

	b = trace.NewBuilder()
	b.EnterMethod("C", "foo", 1)
	require.NoError(t, b.Branch(1, 0, 1))
	require.NoError(t, b.Branch(2, 0, 3))
	require.NoError(t, b.ExitMethod())
	b.EnterMethod("C", "foo", 1)
	require.NoError(t, b.Branch(1, 0, 1))
	require.NoError(t, b.Branch(2, 1, 0))
	assert.Equal(t, 0.0, o.Distance(b.Build(), use), "the closest evaluation wins")
}

func TestControlDependence_ApproachLevel(t *testing.T) {
	p := nestedPool(t)
	o := NewControlDependence(p)
	use := target(t, p, 5)

	assert.Equal(t, 3.0, o.Distance(trace.Empty(), use))

	b := trace.NewBuilder()
	b.EnterMethod("C", "foo", 1)
	assert.Equal(t, 2.0, o.Distance(b.Build(), use))

	b = trace.NewBuilder()
	b.EnterMethod("C", "foo", 1)
	require.NoError(t, b.Branch(1, 1, 0))
	assert.InDelta(t, 1.5, o.Distance(b.Build(), use), 1e-9)
}

func TestControlDependence_UnknownBranch(t *testing.T) {
	o := NewControlDependence(nil)
	in := &instr.Instruction{ClassName: "C", MethodName: "bar", Kind: instr.KindUse,
		Control: &instr.ControlDependency{BranchID: 9, Outcome: true}}

	b := trace.NewBuilder()
	b.EnterMethod("C", "bar", 0)
	assert.Equal(t, 1.0, o.Distance(b.Build(), in))
	assert.Equal(t, 2.0, o.Distance(trace.Empty(), in))
}
