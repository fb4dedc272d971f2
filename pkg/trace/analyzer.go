package trace

import (
	"fmt"

	"github.com/l3aro/go-defuse/pkg/defuse"
)

// PreviousDefinitionID returns the definition of variable on object that
// fired last strictly before pos, or None.
func PreviousDefinitionID(t *Trace, variable string, object, pos int) int {
	prevPos, prevDef := -1, None
	for defPos, id := range t.definitions[variable][object] {
		if defPos < pos && defPos > prevPos {
			prevPos, prevDef = defPos, id
		}
	}
	return prevDef
}

// NextOverwritingDefinitionPosition returns the first position after pos at
// which a definition of the same variable other than def fired on object, or
// Infinity.
func NextOverwritingDefinitionPosition(t *Trace, def *defuse.DefUse, object, pos int) int {
	next := Infinity
	for defPos, id := range t.definitions[def.Variable][object] {
		if defPos > pos && defPos < next && id != def.ID {
			next = defPos
		}
	}
	return next
}

// UsePositions returns the positions at which use fired on object.
func UsePositions(t *Trace, use *defuse.DefUse, object int) []int {
	var r []int
	for _, e := range t.UseEvents(use.Variable, object) {
		if e.ID == use.ID {
			r = append(r, e.Pos)
		}
	}
	return r
}

// DefinitionPositions returns the positions at which def fired on object.
func DefinitionPositions(t *Trace, def *defuse.DefUse, object int) []int {
	var r []int
	for _, e := range t.DefinitionEvents(def.Variable, object) {
		if e.ID == def.ID {
			r = append(r, e.Pos)
		}
	}
	return r
}

// ActiveDefinitionIDAt returns the definition of variable on object whose
// position is the greatest one not after pos, or None.
func ActiveDefinitionIDAt(t *Trace, variable string, object, pos int) int {
	lastPos, lastDef := -1, None
	for defPos, id := range t.definitions[variable][object] {
		if defPos <= pos && defPos > lastPos {
			lastPos, lastDef = defPos, id
		}
	}
	return lastDef
}

// OverwritingDefinitionsBetween maps every other definition of def's variable
// that fired on object in [start, end] to the first position it fired at.
// The range must not contain def itself.
func OverwritingDefinitionsBetween(t *Trace, def *defuse.DefUse, object, start, end int) (map[int]int, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start %d exceeds end %d", ErrIllegalRange, start, end)
	}
	r := make(map[int]int)
	for _, e := range t.DefinitionEvents(def.Variable, object) {
		if e.Pos < start || e.Pos > end {
			continue
		}
		if e.ID == def.ID {
			return nil, fmt.Errorf("%w: definition %d fired at %d inside [%d, %d]",
				defuse.ErrIllegalState, def.ID, e.Pos, start, end)
		}
		if _, ok := r[e.ID]; !ok {
			r[e.ID] = e.Pos
		}
	}
	return r, nil
}

// ActiveObjectAtDefinition returns the value recorded with the last
// definition of variable on object not after pos.
func ActiveObjectAtDefinition(t *Trace, variable string, object, pos int) (ObjectRef, bool) {
	return lastRefAt(t.definitionObjects[variable][object], pos)
}

// ActiveObjectAtUse returns the value recorded with the last use of variable
// on object not after pos.
func ActiveObjectAtUse(t *Trace, variable string, object, pos int) (ObjectRef, bool) {
	return lastRefAt(t.useObjects[variable][object], pos)
}

func lastRefAt(refs objectRefs, pos int) (ObjectRef, bool) {
	lastPos := -1
	var last ObjectRef
	for p, ref := range refs {
		if p <= pos && p > lastPos {
			lastPos, last = p, ref
		}
	}
	return last, lastPos >= 0
}

// HasEntriesForID reports whether definition defID fired on object for
// variable.
func HasEntriesForID(t *Trace, variable string, object, defID int) bool {
	for _, id := range t.definitions[variable][object] {
		if id == defID {
			return true
		}
	}
	return false
}
