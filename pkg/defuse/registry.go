package defuse

import (
	"fmt"
	"sort"
	"sync"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/pkg/instr"
)

type varKey struct {
	class, method, variable string
}

// Registry classifies instructions as definitions and uses and hands out
// their identifiers. Registration is expected to happen from a single
// goroutine; lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	logger log.Logger

	generation uint64

	duCounter  int
	defCounter int
	useCounter int

	registeredDUs  map[instr.Key]int
	registeredDefs map[instr.Key]*DefUse
	registeredUses map[instr.Key]*DefUse

	defsByID map[int]*DefUse
	usesByID map[int]*DefUse

	// field method calls waiting for categorization, and those already
	// committed to a kind
	fieldCalls map[instr.Key]*instr.Instruction
	committed  map[instr.Key]Kind

	knownDefs     map[varKey]int
	parameterUses []*DefUse
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: log.Nop(), generation: 1}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.duCounter = 0
	r.defCounter = 0
	r.useCounter = 0
	r.registeredDUs = make(map[instr.Key]int)
	r.registeredDefs = make(map[instr.Key]*DefUse)
	r.registeredUses = make(map[instr.Key]*DefUse)
	r.defsByID = make(map[int]*DefUse)
	r.usesByID = make(map[int]*DefUse)
	r.fieldCalls = make(map[instr.Key]*instr.Instruction)
	r.committed = make(map[instr.Key]Kind)
	r.knownDefs = make(map[varKey]int)
	r.parameterUses = nil
}

// Clear forgets every registration and resets all counters. Entities created
// before the call belong to the previous generation and no longer resolve.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.reset()
}

// Generation returns the current session generation.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Counters returns the last assigned definition, use and def-use IDs.
func (r *Registry) Counters() (defs, uses, dus int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defCounter, r.useCounter, r.duCounter
}

// RegisterDefinition registers in as a definition. It returns false when the
// instruction is already known as a definition or cannot be instrumented.
func (r *Registry) RegisterDefinition(in *instr.Instruction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addAsDefinition(in, false)
}

// RegisterUse registers in as a use. It returns false when the instruction
// is already known as a use or cannot be instrumented.
func (r *Registry) RegisterUse(in *instr.Instruction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addAsUse(in, false)
}

// RegisterFieldMethodCall records a call on a field's object. The call
// receives a def-use ID now and becomes a definition or a use once
// CommitFieldMethodCall categorizes it.
func (r *Registry) RegisterFieldMethodCall(in *instr.Instruction) (bool, error) {
	if in == nil || !in.IsMethodCallOfField() {
		return false, fmt.Errorf("%w: expected field method call, got %v", ErrIllegalArgument, in)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !in.CanBeInstrumented() {
		return false, nil
	}
	if !r.registerAsDefUse(in) {
		return false, nil
	}
	r.fieldCalls[in.Key()] = in
	return true, nil
}

// CommitFieldMethodCall permanently categorizes a registered field method
// call as a definition or a use.
func (r *Registry) CommitFieldMethodCall(in *instr.Instruction, asDefinition bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := in.Key()
	if _, ok := r.fieldCalls[key]; !ok {
		return fmt.Errorf("%w: field method call %s was never registered", ErrIllegalState, key)
	}
	if kind, done := r.committed[key]; done {
		return fmt.Errorf("%w: field method call %s already categorized as %s", ErrIllegalState, key, kind)
	}
	var (
		ok  bool
		err error
	)
	if asDefinition {
		ok, err = r.addAsDefinition(in, true)
	} else {
		ok, err = r.addAsUse(in, true)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unable to register field method call %s", ErrIllegalState, key)
	}
	if asDefinition {
		r.committed[key] = KindDefinition
	} else {
		r.committed[key] = KindUse
	}
	return nil
}

func (r *Registry) addAsDefinition(in *instr.Instruction, fieldCall bool) (bool, error) {
	if in == nil || !(in.IsDefinition() || (fieldCall && in.IsMethodCallOfField())) {
		return false, fmt.Errorf("%w: expected definition, got %v", ErrIllegalArgument, in)
	}
	key := in.Key()
	if _, ok := r.registeredDefs[key]; ok {
		r.logger.Debug("definition registered twice", "instruction", key)
		return false, nil
	}
	if !in.CanBeInstrumented() {
		return false, nil
	}
	// IINCs and field method calls already own a def-use ID
	if !r.registerAsDefUse(in) && !in.IsIINC() && !in.IsMethodCallOfField() {
		return false, fmt.Errorf("%w: def-use registration may only fail for increments and field method calls: %s", ErrIllegalState, key)
	}
	return true, r.registerAsDefinition(in, fieldCall)
}

func (r *Registry) addAsUse(in *instr.Instruction, fieldCall bool) (bool, error) {
	if in == nil || !(in.IsUse() || (fieldCall && in.IsMethodCallOfField())) {
		return false, fmt.Errorf("%w: expected use, got %v", ErrIllegalArgument, in)
	}
	key := in.Key()
	if _, ok := r.registeredUses[key]; ok {
		r.logger.Debug("use registered twice", "instruction", key)
		return false, nil
	}
	if !in.CanBeInstrumented() {
		return false, nil
	}
	r.registerAsDefUse(in)
	return true, r.registerAsUse(in, fieldCall)
}

func (r *Registry) registerAsDefUse(in *instr.Instruction) bool {
	key := in.Key()
	if _, ok := r.registeredDUs[key]; ok {
		return false
	}
	r.duCounter++
	r.registeredDUs[key] = r.duCounter
	return true
}

func (r *Registry) registerAsDefinition(in *instr.Instruction, fieldCall bool) error {
	key := in.Key()
	duID, ok := r.registeredDUs[key]
	if !ok {
		return fmt.Errorf("%w: def-use ID must be assigned before the definition ID: %s", ErrIllegalState, key)
	}
	r.defCounter++
	d := &DefUse{
		Kind:            KindDefinition,
		ID:              r.defCounter,
		DUID:            duID,
		Generation:      r.generation,
		Variable:        in.Variable,
		Instruction:     in,
		FieldMethodCall: fieldCall,
	}
	r.registeredDefs[key] = d
	r.defsByID[d.ID] = d
	r.knownDefs[varKey{in.ClassName, in.MethodName, in.Variable}]++
	r.logger.Debug("registered definition", "def", d.String())
	return nil
}

func (r *Registry) registerAsUse(in *instr.Instruction, fieldCall bool) error {
	key := in.Key()
	duID, ok := r.registeredDUs[key]
	if !ok {
		return fmt.Errorf("%w: def-use ID must be assigned before the use ID: %s", ErrIllegalState, key)
	}
	r.useCounter++
	u := &DefUse{
		Kind:            KindUse,
		ID:              r.useCounter,
		DUID:            duID,
		Generation:      r.generation,
		Variable:        in.Variable,
		Instruction:     in,
		FieldMethodCall: fieldCall,
	}
	// a local read with no preceding local write reads a parameter
	if in.IsLocalVarUse() && r.knownDefs[varKey{in.ClassName, in.MethodName, in.Variable}] == 0 {
		u.ParameterUse = true
		r.parameterUses = append(r.parameterUses, u)
	}
	r.registeredUses[key] = u
	r.usesByID[u.ID] = u
	r.logger.Debug("registered use", "use", u.String())
	return nil
}

// KnowsDefinitionFor reports whether any definition of variable was
// registered in the given method.
func (r *Registry) KnowsDefinitionFor(className, methodName, variable string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.knownDefs[varKey{className, methodName, variable}] > 0
}

// DefinitionByID returns the definition with the given ID in the current
// generation.
func (r *Registry) DefinitionByID(id int) (*DefUse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defsByID[id]
	return d, ok
}

// UseByID returns the use with the given ID in the current generation.
func (r *Registry) UseByID(id int) (*DefUse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.usesByID[id]
	return u, ok
}

// DefinitionFor returns the definition registered for in.
func (r *Registry) DefinitionFor(in *instr.Instruction) (*DefUse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.registeredDefs[in.Key()]
	return d, ok
}

// UseFor returns the use registered for in.
func (r *Registry) UseFor(in *instr.Instruction) (*DefUse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.registeredUses[in.Key()]
	return u, ok
}

// DUID returns the def-use ID of a registered instruction.
func (r *Registry) DUID(in *instr.Instruction) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.registeredDUs[in.Key()]
	return id, ok
}

// IsCurrent reports whether d was created in the current generation and is
// still registered.
func (r *Registry) IsCurrent(d *DefUse) bool {
	if d == nil {
		return false
	}
	var (
		cur *DefUse
		ok  bool
	)
	if d.IsDefinition() {
		cur, ok = r.DefinitionByID(d.ID)
	} else {
		cur, ok = r.UseByID(d.ID)
	}
	return ok && cur == d
}

// Definitions returns all definitions ordered by ID.
func (r *Registry) Definitions() []*DefUse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByID(r.defsByID)
}

// Uses returns all uses ordered by ID.
func (r *Registry) Uses() []*DefUse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByID(r.usesByID)
}

// ParameterUses returns the uses classified as parameter uses, in
// registration order.
func (r *Registry) ParameterUses() []*DefUse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*DefUse(nil), r.parameterUses...)
}

// FieldMethodCalls returns the registered field method calls that still wait
// for categorization, ordered by instruction key.
func (r *Registry) FieldMethodCalls() []*instr.Instruction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var calls []*instr.Instruction
	for key, in := range r.fieldCalls {
		if _, done := r.committed[key]; !done {
			calls = append(calls, in)
		}
	}
	sort.Slice(calls, func(i, j int) bool {
		a, b := calls[i].Key(), calls[j].Key()
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		if a.MethodName != b.MethodName {
			return a.MethodName < b.MethodName
		}
		return a.ID < b.ID
	})
	return calls
}

func sortedByID(m map[int]*DefUse) []*DefUse {
	r := make([]*DefUse, 0, len(m))
	for _, d := range m {
		r = append(r, d)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	return r
}
