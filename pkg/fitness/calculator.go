// Package fitness scores how close an execution came to covering a def-use
// goal, for a single test and for a whole suite.
package fitness

import (
	"errors"
	"fmt"
	"sort"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/distance"
	"github.com/l3aro/go-defuse/pkg/goal"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// ErrInconsistent reports fitness bookkeeping that contradicts itself.
// Callers treat it as fatal.
var ErrInconsistent = errors.New("inconsistent fitness")

// Options configures a Calculator.
type Options struct {
	// Verify cross checks every score against TraceCoversGoal.
	Verify bool
}

// Calculator scores single goals against single test results.
type Calculator struct {
	oracle distance.Oracle
	logger log.Logger
	opts   Options
}

// NewCalculator creates a calculator asking oracle for branch distances. A
// nil logger discards output.
func NewCalculator(oracle distance.Oracle, logger log.Logger, opts Options) *Calculator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Calculator{oracle: oracle, logger: logger, opts: opts}
}

// Score returns the fitness of res for g in [0, 2]. Zero means covered.
// Scores above 1 mean the definition never executed.
func (c *Calculator) Score(g *goal.Goal, res *trace.Result) (float64, error) {
	if g == nil || g.Use == nil {
		return 0, fmt.Errorf("%w: goal without use", defuse.ErrIllegalArgument)
	}
	t := trace.Empty()
	if res != nil && res.Trace != nil {
		t = res.Trace
	}
	f := c.score(g, t)
	if c.opts.Verify {
		if err := c.verify(g, t, f); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (c *Calculator) score(g *goal.Goal, t *trace.Trace) float64 {
	if isSpecial(g.Definition) {
		return c.completeTraceFitness(t, g.Use)
	}
	if def := c.completeTraceFitness(t, g.Definition); def != 0 {
		return 1 + def
	}
	return c.objectsFitness(g, t)
}

func (c *Calculator) verify(g *goal.Goal, t *trace.Trace, f float64) error {
	covers := TraceCoversGoal(g, t)
	switch {
	case f == 0 && !covers:
		return fmt.Errorf("%w: %s scored 0 on a trace that does not cover it", ErrInconsistent, g)
	case f != 0 && covers:
		return fmt.Errorf("%w: %s scored %v on a trace that covers it", ErrInconsistent, g, f)
	}
	return nil
}

// isSpecial reports definitions assumed covered once their use is: parameter
// goals and static writes in class initializers.
func isSpecial(def *defuse.DefUse) bool {
	return def == nil || def.IsSpecialDefinition()
}

// completeTraceFitness is 0 when du executed anywhere in t and the
// normalized oracle distance otherwise. A distance of 0 for an instruction
// that never executed can only be an oracle mismatch and counts as 1.
func (c *Calculator) completeTraceFitness(t *trace.Trace, du *defuse.DefUse) float64 {
	passed := t.PassedUse(du.ID)
	if du.IsDefinition() {
		passed = t.PassedDefinition(du.ID)
	}
	if passed {
		return 0
	}
	d := c.oracle.Distance(t, du.Instruction)
	if d == 0 {
		c.logger.Debug("zero distance for an unexecuted instruction", "du", du.String())
		return 1
	}
	return distance.Normalize(d)
}

func (c *Calculator) objectsFitness(g *goal.Goal, t *trace.Trace) float64 {
	fitness := 1.0
	for _, object := range considerableObjects(g, t) {
		if !trace.HasEntriesForID(t, g.Definition.Variable, object, g.Definition.ID) {
			continue
		}
		if f := c.objectFitness(g, t, object); f < fitness {
			fitness = f
		}
		if fitness == 0 {
			return 0
		}
	}
	return fitness
}

func (c *Calculator) objectFitness(g *goal.Goal, t *trace.Trace, object int) float64 {
	def, use := g.Definition, g.Use
	// static variables are pooled under one object that every call can touch
	ot := t
	if !def.IsStatic() {
		ot = t.ForObject(object)
	}

	if g.IsAlias() {
		c.logger.Debug("checking an aliasing goal", "goal", g.String(), "object", object)
	}
	for _, usePos := range trace.UsePositions(ot, use, object) {
		if trace.ActiveDefinitionIDAt(ot, def.Variable, object, usePos) != def.ID {
			continue
		}
		if !g.IsAlias() || sameValue(t, def.Variable, use.Variable, object, usePos) {
			return 0
		}
	}

	fitness := 1.0
	// a root branch dependent use would always score 1 here
	if use.IsRootBranchDependent() {
		return fitness
	}
	for _, defPos := range trace.DefinitionPositions(ot, def, object) {
		f, ok := c.windowFitness(g, ot, object, defPos)
		if !ok {
			continue
		}
		if n := distance.Normalize(f); n < fitness {
			fitness = n
		}
	}
	return fitness
}

// windowFitness is the use distance on the part of ot between defPos and the
// next overwriting definition. It reports false for windows whose distance
// came out 0 although the use was not covered.
func (c *Calculator) windowFitness(g *goal.Goal, ot *trace.Trace, object, defPos int) (float64, bool) {
	def, use := g.Definition, g.Use
	if trace.PreviousDefinitionID(ot, def.Variable, object, defPos) == def.ID {
		return 1, true
	}
	end := trace.NextOverwritingDefinitionPosition(ot, def, object, defPos)
	cut, err := ot.InDUCounterRange(use, true, defPos, end)
	if err != nil {
		c.logger.Warn("cannot cut trace", "goal", g.String(), "error", err)
		return 0, false
	}
	d := c.oracle.Distance(cut, use.Instruction)
	if d == 0 {
		c.logger.Debug("unexpected zero use distance, skipping window",
			"goal", g.String(), "object", object, "start", defPos, "end", end)
		return 0, false
	}
	return d, true
}

// sameValue reports whether the definition and the use at pos saw the same
// object.
func sameValue(t *trace.Trace, defVar, useVar string, object, pos int) bool {
	defined, ok := trace.ActiveObjectAtDefinition(t, defVar, object, pos)
	if !ok {
		return false
	}
	used, ok := trace.ActiveObjectAtUse(t, useVar, object, pos)
	if !ok {
		return false
	}
	return defined.Identity == used.Identity
}

// considerableObjects returns the objects both the definition and the use
// fired on, or every object either fired on for static and parameter goals.
func considerableObjects(g *goal.Goal, t *trace.Trace) []int {
	useObjects := t.UseObjects(g.Use.Variable)
	if len(useObjects) == 0 {
		return nil
	}
	var defObjects []int
	if g.Definition != nil {
		defObjects = t.DefinitionObjects(g.Definition.Variable)
	}

	set := make(map[int]struct{})
	if g.Definition == nil || g.Definition.IsStatic() {
		for _, o := range defObjects {
			set[o] = struct{}{}
		}
		for _, o := range useObjects {
			set[o] = struct{}{}
		}
	} else {
		used := make(map[int]struct{}, len(useObjects))
		for _, o := range useObjects {
			used[o] = struct{}{}
		}
		for _, o := range defObjects {
			if _, ok := used[o]; ok {
				set[o] = struct{}{}
			}
		}
	}
	r := make([]int, 0, len(set))
	for o := range set {
		r = append(r, o)
	}
	sort.Ints(r)
	return r
}

// TraceCoversGoal reports whether t executes the use of g with the goal's
// definition active on some object. It checks results independently of
// the fitness computation.
func TraceCoversGoal(g *goal.Goal, t *trace.Trace) bool {
	if g == nil || g.Use == nil || t == nil {
		return false
	}
	for _, object := range considerableObjects(g, t) {
		positions := trace.UsePositions(t, g.Use, object)
		if len(positions) == 0 {
			continue
		}
		if isSpecial(g.Definition) {
			return true
		}
		for _, pos := range positions {
			if trace.ActiveDefinitionIDAt(t, g.Definition.Variable, object, pos) != g.Definition.ID {
				continue
			}
			if !g.IsAlias() || sameValue(t, g.Definition.Variable, g.Use.Variable, object, pos) {
				return true
			}
		}
	}
	return false
}
