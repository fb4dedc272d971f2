package trace

import (
	"errors"
	"fmt"
)

// ErrNoActiveCall is returned when an event needs an enclosing method call
// and none was entered.
var ErrNoActiveCall = errors.New("no active method call")

// Builder records the events of one execution in the order they happen.
// A Builder is not safe for concurrent use.
type Builder struct {
	t     *Trace
	stack []*MethodCall
}

// NewBuilder creates a builder for a fresh trace.
func NewBuilder() *Builder {
	return &Builder{t: newTrace()}
}

// EnterMethod opens a call of className.methodName on callingObject, 0 for
// static calls.
func (b *Builder) EnterMethod(className, methodName string, callingObject int) {
	b.t.methodCount[className+"."+methodName]++
	b.stack = append(b.stack, &MethodCall{
		ClassName:     className,
		MethodName:    methodName,
		CallingObject: callingObject,
	})
}

// ExitMethod finishes the innermost open call.
func (b *Builder) ExitMethod() error {
	if len(b.stack) == 0 {
		return fmt.Errorf("exit method: %w", ErrNoActiveCall)
	}
	call := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.t.calls = append(b.t.calls, *call)
	return nil
}

// Branch records an evaluation of branchID in the innermost open call.
func (b *Builder) Branch(branchID int, trueDistance, falseDistance float64) error {
	if len(b.stack) == 0 {
		return fmt.Errorf("branch %d: %w", branchID, ErrNoActiveCall)
	}
	call := b.stack[len(b.stack)-1]
	call.Events = append(call.Events, BranchEvent{
		BranchID:      branchID,
		TrueDistance:  trueDistance,
		FalseDistance: falseDistance,
		DUCounter:     b.t.duCounter,
	})
	return nil
}

// Definition records that definition defID of variable fired on object and
// returns its position.
func (b *Builder) Definition(variable string, object, defID int, ref ObjectRef) int {
	pos := b.t.duCounter
	put(b.t.definitions, variable, object, pos, defID)
	putRef(b.t.definitionObjects, variable, object, pos, ref)
	b.t.definitionCount[defID]++
	b.advance()
	return pos
}

// Use records that use useID of variable fired on object and returns its
// position.
func (b *Builder) Use(variable string, object, useID int, ref ObjectRef) int {
	pos := b.t.duCounter
	put(b.t.uses, variable, object, pos, useID)
	putRef(b.t.useObjects, variable, object, pos, ref)
	b.t.useCount[useID]++
	b.advance()
	return pos
}

// advance moves the counter and repeats the last branch event of the active
// call at the new position, so counter range views still see the branch the
// code currently runs under.
func (b *Builder) advance() {
	b.t.duCounter++
	if len(b.stack) == 0 {
		return
	}
	call := b.stack[len(b.stack)-1]
	if len(call.Events) == 0 {
		return
	}
	last := call.Events[len(call.Events)-1]
	last.DUCounter = b.t.duCounter
	call.Events = append(call.Events, last)
}

// Build finishes every open call and returns the trace. The builder must not
// be used afterwards.
func (b *Builder) Build() *Trace {
	for len(b.stack) > 0 {
		_ = b.ExitMethod()
	}
	return b.t
}

func put(m map[string]map[int]positions, variable string, object, pos, id int) {
	objects, ok := m[variable]
	if !ok {
		objects = make(map[int]positions)
		m[variable] = objects
	}
	p, ok := objects[object]
	if !ok {
		p = make(positions)
		objects[object] = p
	}
	p[pos] = id
}

func putRef(m map[string]map[int]objectRefs, variable string, object, pos int, ref ObjectRef) {
	objects, ok := m[variable]
	if !ok {
		objects = make(map[int]objectRefs)
		m[variable] = objects
	}
	refs, ok := objects[object]
	if !ok {
		refs = make(objectRefs)
		objects[object] = refs
	}
	refs[pos] = ref
}
