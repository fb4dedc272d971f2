// Package distance measures how far an execution trace is from executing a
// given instruction.
package distance

import (
	"math"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/instr"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// Oracle returns a distance in [0, inf) toward executing an instruction. Zero
// means the trace executes it.
type Oracle interface {
	Distance(t *trace.Trace, in *instr.Instruction) float64
}

// Normalize maps [0, inf) onto [0, 1).
func Normalize(x float64) float64 {
	return x / (1 + x)
}

// ControlDependence derives distances from an instruction's chain of
// controlling branches: one unit per branch on the chain that was never
// evaluated, plus the normalized branch distance at the closest one that was.
type ControlDependence struct {
	pool *cfg.Pool
}

// NewControlDependence creates an oracle resolving branches through pool.
func NewControlDependence(pool *cfg.Pool) *ControlDependence {
	return &ControlDependence{pool: pool}
}

// Distance implements Oracle.
func (c *ControlDependence) Distance(t *trace.Trace, in *instr.Instruction) float64 {
	return c.distance(t, in, make(map[int]bool))
}

func (c *ControlDependence) distance(t *trace.Trace, in *instr.Instruction, visited map[int]bool) float64 {
	cd := in.Control
	if cd == nil {
		if methodExecuted(t, in.ClassName, in.MethodName) {
			return 0
		}
		return 1
	}
	if min, ok := minBranchDistance(t, in.ClassName, in.MethodName, cd); ok {
		if min == 0 {
			return 0
		}
		return Normalize(min)
	}
	if visited[cd.BranchID] {
		return 1
	}
	visited[cd.BranchID] = true
	branch := c.branchInstruction(in.ClassName, in.MethodName, cd.BranchID)
	return 1 + c.distance(t, branch, visited)
}

func (c *ControlDependence) branchInstruction(class, method string, branchID int) *instr.Instruction {
	if c.pool != nil {
		if m, ok := c.pool.MethodCFG(class, method); ok {
			if b, ok := m.BranchInstruction(branchID); ok {
				return b
			}
		}
	}
	// unknown branch, assume it only depends on the method being called
	return &instr.Instruction{ClassName: class, MethodName: method, Kind: instr.KindBranch, BranchID: branchID}
}

// minBranchDistance returns the smallest recorded distance toward the
// dependency's outcome over every call of the method in t.
func minBranchDistance(t *trace.Trace, class, method string, cd *instr.ControlDependency) (float64, bool) {
	min, found := math.Inf(1), false
	for _, call := range t.Calls() {
		if call.ClassName != class || call.MethodName != method {
			continue
		}
		for _, e := range call.Events {
			if e.BranchID != cd.BranchID {
				continue
			}
			found = true
			if d := e.Distance(cd.Outcome); d < min {
				min = d
			}
		}
	}
	return min, found
}

// methodExecuted looks at the finished calls, so filtered views only count
// calls they kept.
func methodExecuted(t *trace.Trace, class, method string) bool {
	for _, call := range t.Calls() {
		if call.ClassName == class && call.MethodName == method {
			return true
		}
	}
	return false
}

var _ Oracle = (*ControlDependence)(nil)
