package goal

import (
	"sync"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// Catalog owns the goals of one analysis session and keeps at most one goal
// per (definition, use) key. It is filled during enumeration and read
// concurrently afterwards; alias goals are added in batches.
type Catalog struct {
	mu     sync.RWMutex
	reg    *defuse.Registry
	logger log.Logger

	byDefinition map[int]map[int]*Goal // definition ID -> use ID -> goal
	parameters   map[int]*Goal         // use ID -> parameter goal
	goals        []*Goal               // registration order
}

// NewCatalog creates an empty catalog resolving IDs through reg.
func NewCatalog(reg *defuse.Registry, logger log.Logger) *Catalog {
	if logger == nil {
		logger = log.Nop()
	}
	c := &Catalog{reg: reg, logger: logger}
	c.reset()
	return c
}

func (c *Catalog) reset() {
	c.byDefinition = make(map[int]map[int]*Goal)
	c.parameters = make(map[int]*Goal)
	c.goals = nil
}

// Registry returns the registry the catalog resolves IDs through.
func (c *Catalog) Registry() *defuse.Registry { return c.reg }

// Register adds g unless a goal with the same key exists. It reports whether
// g was added.
func (c *Catalog) Register(g *Goal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(g)
}

func (c *Catalog) register(g *Goal) bool {
	if g.Definition == nil {
		if _, ok := c.parameters[g.Use.ID]; ok {
			return false
		}
		c.parameters[g.Use.ID] = g
		c.goals = append(c.goals, g)
		return true
	}
	uses, ok := c.byDefinition[g.Definition.ID]
	if !ok {
		uses = make(map[int]*Goal)
		c.byDefinition[g.Definition.ID] = uses
	}
	if _, ok := uses[g.Use.ID]; ok {
		return false
	}
	uses[g.Use.ID] = g
	c.goals = append(c.goals, g)
	return true
}

// Lookup returns the goal for a definition ID and a use ID. IDs that do not
// resolve in the registry's current generation yield nil.
func (c *Catalog) Lookup(defID, useID int) *Goal {
	def, ok := c.reg.DefinitionByID(defID)
	if !ok {
		return nil
	}
	use, ok := c.reg.UseByID(useID)
	if !ok {
		return nil
	}
	c.mu.RLock()
	g := c.byDefinition[defID][useID]
	c.mu.RUnlock()
	if g == nil || g.Definition != def || g.Use != use {
		return nil
	}
	return g
}

// LookupParameter returns the parameter goal of a use ID.
func (c *Catalog) LookupParameter(useID int) *Goal {
	use, ok := c.reg.UseByID(useID)
	if !ok {
		return nil
	}
	c.mu.RLock()
	g := c.parameters[useID]
	c.mu.RUnlock()
	if g == nil || g.Use != use {
		return nil
	}
	return g
}

// GoalsForDefinition returns the goals of def keyed by use ID.
func (c *Catalog) GoalsForDefinition(def *defuse.DefUse) map[int]*Goal {
	r := make(map[int]*Goal)
	if !c.reg.IsCurrent(def) {
		return r
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for useID, g := range c.byDefinition[def.ID] {
		r[useID] = g
	}
	return r
}

// All returns the goals in registration order.
func (c *Catalog) All() []*Goal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Goal(nil), c.goals...)
}

// Len returns the number of goals.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.goals)
}

// CountByType returns the number of goals per type. Every type is present.
func (c *Catalog) CountByType() map[Type]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CountByType(c.goals)
}

// CountByType counts goals per type. Every type is present in the result.
func CountByType(goals []*Goal) map[Type]int {
	r := make(map[Type]int, len(Types))
	for _, t := range Types {
		r[t] = 0
	}
	for _, g := range goals {
		r[g.Type]++
	}
	return r
}

// AddAliasGoals adds goals discovered at runtime in one step. Goals whose key
// is already taken are skipped; canonical goals are never replaced. It
// returns the number of goals added.
func (c *Catalog) AddAliasGoals(goals []*Goal) int {
	if len(goals) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byDef := make(map[int]map[int]*Goal, len(c.byDefinition))
	for defID, uses := range c.byDefinition {
		cp := make(map[int]*Goal, len(uses))
		for useID, g := range uses {
			cp[useID] = g
		}
		byDef[defID] = cp
	}
	all := append([]*Goal(nil), c.goals...)
	added := 0
	for _, g := range goals {
		if g == nil || g.Definition == nil {
			continue
		}
		uses, ok := byDef[g.Definition.ID]
		if !ok {
			uses = make(map[int]*Goal)
			byDef[g.Definition.ID] = uses
		}
		if _, ok := uses[g.Use.ID]; ok {
			continue
		}
		uses[g.Use.ID] = g
		all = append(all, g)
		added++
	}
	c.byDefinition = byDef
	c.goals = all
	return added
}

// Clear removes every goal.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// CoveredGoals walks the merged definition and use timeline of every
// variable and object once and returns the goals whose definition was active
// at one of their uses. Timed out results are ignored.
func (c *Catalog) CoveredGoals(results []*trace.Result) map[*Goal]struct{} {
	r := make(map[*Goal]struct{})
	for _, res := range results {
		if res == nil || res.TimedOut || res.Trace == nil {
			continue
		}
		for g := range c.CoveredGoalsOf(res.Trace) {
			r[g] = struct{}{}
		}
	}
	return r
}

// CoveredGoalsOf returns the goals covered by a single trace.
func (c *Catalog) CoveredGoalsOf(t *trace.Trace) map[*Goal]struct{} {
	r := make(map[*Goal]struct{})
	for _, variable := range t.DefinitionVariables() {
		for _, object := range t.DefinitionObjects(variable) {
			c.walkTimeline(t, variable, variable, object, func(activeDef, useID int) {
				if g := c.Lookup(activeDef, useID); g != nil {
					r[g] = struct{}{}
				}
			})
		}
	}
	return r
}

// walkTimeline merges the definitions of defVar and the uses of useVar on
// object by position and calls visit for every use preceded by a definition.
func (c *Catalog) walkTimeline(t *trace.Trace, defVar, useVar string, object int, visit func(activeDef, useID int)) {
	defs := t.DefinitionEvents(defVar, object)
	uses := t.UseEvents(useVar, object)
	if len(uses) == 0 {
		return
	}
	activeDef := trace.None
	i, j := 0, 0
	for j < len(uses) {
		if i < len(defs) && defs[i].Pos <= uses[j].Pos {
			activeDef = defs[i].ID
			i++
			continue
		}
		if activeDef != trace.None {
			visit(activeDef, uses[j].ID)
		}
		j++
	}
}
