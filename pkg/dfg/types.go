// Package dfg enumerates the def-use pairs of a class. It runs a reaching
// definitions analysis over every method's instruction graph, combines the
// methods through call summaries and classifies each pair by scope.
package dfg

import (
	"fmt"

	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/goal"
)

// Pair is a classified (definition, use) pair. Definition is nil for
// parameter pairs.
type Pair struct {
	Definition *defuse.DefUse `json:"-"`
	Use        *defuse.DefUse `json:"-"`
	Type       goal.Type      `json:"type"`
}

func (p Pair) String() string {
	if p.Definition == nil {
		return fmt.Sprintf("%s -> use %d (%s)", p.Type, p.Use.ID, p.Use.Variable)
	}
	return fmt.Sprintf("%s def %d -> use %d (%s)", p.Type, p.Definition.ID, p.Use.ID, p.Use.Variable)
}

// factKind tells where a reaching fact comes from.
type factKind int

const (
	factOwn     factKind = iota // definition inside the analyzed method
	factForeign                 // definition leaving a called method
	factEntry                   // value the field had when the method was entered
)

// fact is an element of a reaching definitions set. Entry facts carry no
// definition ID.
type fact struct {
	kind     factKind
	defID    int
	variable string
}

type factSet map[fact]struct{}

// summary describes the data flow effect of calling a method.
type summary struct {
	// exitDefs are field definitions reaching some exit of the method
	exitDefs map[int]*defuse.DefUse
	// passThrough are fields left unchanged on at least one path
	passThrough map[string]struct{}
	// freeUses are field uses reachable from the entry without redefinition
	freeUses map[int]*defuse.DefUse
}

func newSummary() *summary {
	return &summary{
		exitDefs:    make(map[int]*defuse.DefUse),
		passThrough: make(map[string]struct{}),
		freeUses:    make(map[int]*defuse.DefUse),
	}
}
