package goal

import (
	"sort"

	"github.com/l3aro/go-defuse/pkg/trace"
)

// DetectAliasingGoals looks for runtime objects that were defined under one
// variable name and used under another. For each use reached that way whose
// (active definition, use) pair has no goal yet, it pairs the active
// definition with every use already paired with a definition reaching the
// observed use. New goals are added in one batch. It reports whether the
// catalog grew.
func (c *Catalog) DetectAliasingGoals(results []*trace.Result) bool {
	var found []*Goal
	seen := make(map[Key]bool)
	for _, res := range results {
		if res == nil || res.TimedOut || res.Trace == nil {
			continue
		}
		for _, g := range c.aliasingGoals(res.Trace) {
			if seen[g.Key()] {
				continue
			}
			seen[g.Key()] = true
			found = append(found, g)
		}
	}
	added := c.AddAliasGoals(found)
	if added > 0 {
		c.logger.Debug("aliasing goals added", "count", added, "total", c.Len())
	}
	return added > 0
}

func (c *Catalog) aliasingGoals(t *trace.Trace) []*Goal {
	var r []*Goal
	for _, useVar := range t.UseVariables() {
		for _, object := range t.UseObjects(useVar) {
			for _, defVar := range t.DefinitionVariables() {
				if defVar == useVar || !sharesObject(t, useVar, defVar, object) {
					continue
				}
				c.walkTimeline(t, defVar, useVar, object, func(activeDef, useID int) {
					if c.Lookup(activeDef, useID) != nil {
						return
					}
					c.logger.Info("new alias found", "defined_as", defVar, "used_as", useVar)
					r = append(r, c.aliasGoalsFor(activeDef, useID)...)
				})
			}
		}
	}
	return r
}

// sharesObject reports whether a non-null value was both used as useVar and
// defined as defVar on object.
func sharesObject(t *trace.Trace, useVar, defVar string, object int) bool {
	defined := make(map[uint64]bool)
	for _, e := range t.DefinitionObjectEvents(defVar, object) {
		if !e.Ref.IsNil() {
			defined[e.Ref.Identity] = true
		}
	}
	for _, e := range t.UseObjectEvents(useVar, object) {
		if !e.Ref.IsNil() && defined[e.Ref.Identity] {
			return true
		}
	}
	return false
}

func (c *Catalog) aliasGoalsFor(defID, useID int) []*Goal {
	def, ok := c.reg.DefinitionByID(defID)
	if !ok {
		return nil
	}
	use, ok := c.reg.UseByID(useID)
	if !ok {
		return nil
	}
	var r []*Goal
	for _, known := range c.All() {
		if known.Definition == nil || known.Use != use {
			continue
		}
		pairs := c.GoalsForDefinition(known.Definition)
		useIDs := make([]int, 0, len(pairs))
		for id := range pairs {
			useIDs = append(useIDs, id)
		}
		sort.Ints(useIDs)
		for _, id := range useIDs {
			paired := pairs[id]
			g, err := New(def, paired.Use, paired.Type)
			if err != nil {
				c.logger.Debug("skipping alias goal", "error", err)
				continue
			}
			c.logger.Info("created new def-use pair", "goal", g.Key(), "type", g.Type)
			r = append(r, g)
		}
	}
	return r
}
