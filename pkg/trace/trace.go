// Package trace models what one test execution recorded: which definitions
// and uses fired at which def-use counter position for which runtime object,
// and which branches the finished method calls evaluated. Traces are built
// once by a Builder and never change afterwards; filtering produces new
// views.
package trace

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/l3aro/go-defuse/pkg/defuse"
)

const (
	// None is returned when no definition or position exists.
	None = -1
	// Infinity is returned when no overwriting definition follows.
	Infinity = math.MaxInt
)

// ErrIllegalRange signals an inverted or otherwise unusable counter range.
var ErrIllegalRange = errors.New("illegal range")

// ObjectRef identifies the runtime value a variable held when a definition
// or use fired. The zero value stands for null.
type ObjectRef struct {
	Identity uint64 `json:"identity" yaml:"identity"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
}

// IsNil reports whether the reference stands for null.
func (o ObjectRef) IsNil() bool { return o.Identity == 0 }

func (o ObjectRef) String() string {
	if o.IsNil() {
		return "null"
	}
	if o.Type == "" {
		return fmt.Sprintf("@%x", o.Identity)
	}
	return fmt.Sprintf("%s@%x", o.Type, o.Identity)
}

// BranchEvent is one evaluation of a branch inside a method call, with the
// distances toward each outcome at the time of evaluation.
type BranchEvent struct {
	BranchID      int     `json:"branch_id" yaml:"branch_id"`
	TrueDistance  float64 `json:"true_distance" yaml:"true_distance"`
	FalseDistance float64 `json:"false_distance" yaml:"false_distance"`
	DUCounter     int     `json:"du_counter" yaml:"du_counter"`
}

// Distance returns the distance toward outcome.
func (e BranchEvent) Distance(outcome bool) float64 {
	if outcome {
		return e.TrueDistance
	}
	return e.FalseDistance
}

// MethodCall is a finished invocation of a method of the class under test.
// CallingObject is 0 for static calls.
type MethodCall struct {
	ClassName     string        `json:"class" yaml:"class"`
	MethodName    string        `json:"method" yaml:"method"`
	CallingObject int           `json:"calling_object" yaml:"calling_object"`
	Events        []BranchEvent `json:"events,omitempty" yaml:"events,omitempty"`
}

func (c MethodCall) clone() MethodCall {
	c.Events = append([]BranchEvent(nil), c.Events...)
	return c
}

// Event is a single recorded definition or use.
type Event struct {
	Pos int
	ID  int
}

// ObjectEvent is the runtime value recorded with a definition or use.
type ObjectEvent struct {
	Pos int
	Ref ObjectRef
}

type positions map[int]int

type objectRefs map[int]ObjectRef

// Trace is an immutable execution record.
type Trace struct {
	// variable -> object -> position -> definition or use ID
	definitions map[string]map[int]positions
	uses        map[string]map[int]positions

	// variable -> object -> position -> runtime value
	definitionObjects map[string]map[int]objectRefs
	useObjects        map[string]map[int]objectRefs

	calls []MethodCall

	definitionCount map[int]int
	useCount        map[int]int
	methodCount     map[string]int

	duCounter int
}

func newTrace() *Trace {
	return &Trace{
		definitions:       make(map[string]map[int]positions),
		uses:              make(map[string]map[int]positions),
		definitionObjects: make(map[string]map[int]objectRefs),
		useObjects:        make(map[string]map[int]objectRefs),
		definitionCount:   make(map[int]int),
		useCount:          make(map[int]int),
		methodCount:       make(map[string]int),
	}
}

// Empty returns a trace without any events.
func Empty() *Trace { return newTrace() }

// view copies the call list and shares the read-only event data.
func (t *Trace) view(calls []MethodCall) *Trace {
	v := *t
	v.calls = calls
	return &v
}

// DUCounter returns the number of definitions and uses recorded.
func (t *Trace) DUCounter() int { return t.duCounter }

// Variables returns every variable with a recorded definition or use.
func (t *Trace) Variables() []string {
	set := make(map[string]struct{})
	for v := range t.definitions {
		set[v] = struct{}{}
	}
	for v := range t.uses {
		set[v] = struct{}{}
	}
	return sortedKeys(set)
}

// DefinitionVariables returns the variables with recorded definitions.
func (t *Trace) DefinitionVariables() []string {
	set := make(map[string]struct{}, len(t.definitions))
	for v := range t.definitions {
		set[v] = struct{}{}
	}
	return sortedKeys(set)
}

// UseVariables returns the variables with recorded uses.
func (t *Trace) UseVariables() []string {
	set := make(map[string]struct{}, len(t.uses))
	for v := range t.uses {
		set[v] = struct{}{}
	}
	return sortedKeys(set)
}

// DefinitionObjects returns the objects a definition of variable was
// recorded for.
func (t *Trace) DefinitionObjects(variable string) []int {
	return objectIDs(t.definitions[variable])
}

// UseObjects returns the objects a use of variable was recorded for.
func (t *Trace) UseObjects(variable string) []int {
	return objectIDs(t.uses[variable])
}

// DefinitionEvents returns the definitions of variable on object ordered by
// position.
func (t *Trace) DefinitionEvents(variable string, object int) []Event {
	return events(t.definitions[variable][object])
}

// UseEvents returns the uses of variable on object ordered by position.
func (t *Trace) UseEvents(variable string, object int) []Event {
	return events(t.uses[variable][object])
}

// DefinitionAt returns the definition ID recorded at pos.
func (t *Trace) DefinitionAt(variable string, object, pos int) (int, bool) {
	id, ok := t.definitions[variable][object][pos]
	return id, ok
}

// UseAt returns the use ID recorded at pos.
func (t *Trace) UseAt(variable string, object, pos int) (int, bool) {
	id, ok := t.uses[variable][object][pos]
	return id, ok
}

// DefinitionObjectEvents returns the values recorded with the definitions of
// variable on object, ordered by position.
func (t *Trace) DefinitionObjectEvents(variable string, object int) []ObjectEvent {
	return objectEvents(t.definitionObjects[variable][object])
}

// UseObjectEvents returns the values recorded with the uses of variable on
// object, ordered by position.
func (t *Trace) UseObjectEvents(variable string, object int) []ObjectEvent {
	return objectEvents(t.useObjects[variable][object])
}

// HasDefinitionObjectData reports whether values were recorded for
// definitions of variable on object.
func (t *Trace) HasDefinitionObjectData(variable string, object int) bool {
	return len(t.definitionObjects[variable][object]) > 0
}

// HasUseObjectData reports whether values were recorded for uses of variable
// on object.
func (t *Trace) HasUseObjectData(variable string, object int) bool {
	return len(t.useObjects[variable][object]) > 0
}

// Calls returns a copy of the finished method calls in finishing order.
func (t *Trace) Calls() []MethodCall {
	r := make([]MethodCall, len(t.calls))
	for i, c := range t.calls {
		r[i] = c.clone()
	}
	return r
}

// PassedDefinition reports whether the definition fired at least once.
func (t *Trace) PassedDefinition(defID int) bool { return t.definitionCount[defID] > 0 }

// PassedUse reports whether the use fired at least once.
func (t *Trace) PassedUse(useID int) bool { return t.useCount[useID] > 0 }

// DefinitionExecutionCount returns how often each definition fired.
func (t *Trace) DefinitionExecutionCount() map[int]int {
	r := make(map[int]int, len(t.definitionCount))
	for k, v := range t.definitionCount {
		r[k] = v
	}
	return r
}

// MethodExecutionCount returns how often each method was entered, keyed by
// Class.method.
func (t *Trace) MethodExecutionCount() map[string]int {
	r := make(map[string]int, len(t.methodCount))
	for k, v := range t.methodCount {
		r[k] = v
	}
	return r
}

// MethodCalled reports whether the method was entered at least once.
func (t *Trace) MethodCalled(className, methodName string) bool {
	return t.methodCount[className+"."+methodName] > 0
}

// ForObject returns a view without the method calls made on other objects.
// Static calls are kept. Definition and use data are not filtered.
func (t *Trace) ForObject(object int) *Trace {
	var calls []MethodCall
	for _, c := range t.calls {
		if c.CallingObject != object && c.CallingObject != 0 {
			continue
		}
		calls = append(calls, c.clone())
	}
	return t.view(calls)
}

// InDUCounterRange returns a view restricted to branch events of the target's
// method whose counter lies in [start, end]. When wantCover is set, events at
// the target's controlling branch that already took the target's outcome are
// dropped too, and the other outcome's events when it is not. Calls left
// without events are removed.
func (t *Trace) InDUCounterRange(target *defuse.DefUse, wantCover bool, start, end int) (*Trace, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start %d exceeds end %d", ErrIllegalRange, start, end)
	}
	cd := target.ControlDependency()
	var calls []MethodCall
	for _, c := range t.calls {
		if c.MethodName != target.MethodName() {
			continue
		}
		var kept []BranchEvent
		for _, e := range c.Events {
			if e.DUCounter < start || e.DUCounter > end {
				continue
			}
			if cd != nil && e.BranchID == cd.BranchID {
				outcome := cd.Outcome
				if !wantCover {
					outcome = !outcome
				}
				if e.Distance(outcome) == 0 {
					continue
				}
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			continue
		}
		c.Events = kept
		calls = append(calls, c)
	}
	return t.view(calls), nil
}

// Result is the outcome of executing one test.
type Result struct {
	TestID   string
	Trace    *Trace
	TimedOut bool
}

func objectIDs[V any](m map[int]V) []int {
	r := make([]int, 0, len(m))
	for id := range m {
		r = append(r, id)
	}
	sort.Ints(r)
	return r
}

func events(m positions) []Event {
	r := make([]Event, 0, len(m))
	for pos, id := range m {
		r = append(r, Event{Pos: pos, ID: id})
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Pos < r[j].Pos })
	return r
}

func objectEvents(m objectRefs) []ObjectEvent {
	r := make([]ObjectEvent, 0, len(m))
	for pos, ref := range m {
		r = append(r, ObjectEvent{Pos: pos, Ref: ref})
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Pos < r[j].Pos })
	return r
}

func sortedKeys(set map[string]struct{}) []string {
	r := make([]string, 0, len(set))
	for k := range set {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}
