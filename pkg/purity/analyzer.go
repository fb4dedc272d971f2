package purity

import (
	"strings"
	"sync"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/instr"
)

// Analyzer decides purity of methods whose class graph is in the pool and
// falls back to an Oracle for standard library methods.
type Analyzer struct {
	pool *cfg.Pool
	jdk  Oracle

	mu         sync.Mutex
	known      map[string]bool
	inProgress map[string]bool
	// provisional is set when a pure verdict assumed a method still being
	// analyzed was pure
	provisional bool
}

// NewAnalyzer creates an analyzer. A nil oracle means the built-in JDK table.
func NewAnalyzer(pool *cfg.Pool, jdk Oracle) *Analyzer {
	if jdk == nil {
		jdk = JDKTable()
	}
	return &Analyzer{
		pool:       pool,
		jdk:        jdk,
		known:      make(map[string]bool),
		inProgress: make(map[string]bool),
	}
}

// IsPure reports whether method of className never writes a field, directly
// or through the methods it calls. Methods without a body are assumed pure.
func (a *Analyzer) IsPure(className, method string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isPure(className, method)
}

func (a *Analyzer) isPure(className, method string) bool {
	key := className + "." + method
	if pure, ok := a.known[key]; ok {
		return pure
	}
	m, ok := a.pool.MethodCFG(className, method)
	if !ok || m.Len() == 0 {
		// abstract or unknown methods count as pure
		return true
	}
	outer := a.provisional
	a.provisional = false
	a.inProgress[key] = true
	pure := a.analyze(m)
	delete(a.inProgress, key)
	// a pure verdict resting on an unfinished caller is final only once
	// that caller is done
	pending := a.provisional && len(a.inProgress) > 0
	if !pure || !pending {
		a.known[key] = pure
	}
	a.provisional = outer || pending
	return pure
}

func (a *Analyzer) callee(className, method string) bool {
	if a.inProgress[className+"."+method] {
		a.provisional = true
		return true
	}
	return a.isPure(className, method)
}

func (a *Analyzer) analyze(m *cfg.MethodCFG) bool {
	entry, ok := m.Entry()
	if !ok {
		return true
	}
	handled := make(map[int]bool)
	stack := []int{entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if handled[id] {
			continue
		}
		handled[id] = true
		in, _ := m.Instruction(id)
		if !a.instructionIsPure(in) {
			return false
		}
		stack = append(stack, m.Successors(id)...)
	}
	return true
}

func (a *Analyzer) instructionIsPure(in *instr.Instruction) bool {
	switch {
	case in.IsFieldDefinition():
		return false
	case in.CallsOwnClass():
		return a.callee(in.ClassName, in.CalledMethod)
	case in.IsMethodCall() || in.IsMethodCallOfField():
		if a.pool.CanMakeCCFGForClass(in.CalledClass) {
			return a.callee(in.CalledClass, in.CalledMethod)
		}
		if isStandardLibrary(in.CalledClass) {
			return a.jdk.CheckPurity(in.CalledSignature())
		}
	}
	return true
}

// Categorize decides how a field method call is registered: as a definition
// when the callee may change the field's object, as a use otherwise. Calls
// that can be neither analyzed nor looked up default to a use.
func (a *Analyzer) Categorize(call *instr.Instruction) (asDefinition bool) {
	if a.pool.CanMakeCCFGForClass(call.CalledClass) {
		return !a.IsPure(call.CalledClass, call.CalledMethod)
	}
	if isStandardLibrary(call.CalledClass) {
		return !a.jdk.CheckPurity(call.CalledSignature())
	}
	return false
}

func isStandardLibrary(className string) bool {
	return strings.HasPrefix(className, "java.")
}
