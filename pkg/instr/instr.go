// Package instr describes the classified instructions of a class under test.
// An Instruction is the unit the def-use registry, the control flow graphs and
// the fitness functions all refer to.
package instr

import (
	"fmt"
	"strings"
)

// Kind classifies what an instruction does with respect to data flow.
type Kind string

const (
	KindPlain           Kind = "plain"
	KindDefinition      Kind = "definition"        // store to a local or a field
	KindUse             Kind = "use"               // load of a local or a field
	KindIncrement       Kind = "iinc"              // local increment, both use and definition
	KindFieldMethodCall Kind = "field_method_call" // call on the object held by a field
	KindMethodCall      Kind = "method_call"       // call of a method, possibly of the same class
	KindBranch          Kind = "branch"
	KindReturn          Kind = "return"
)

// Scope tells where the variable touched by an instruction lives.
type Scope string

const (
	ScopeNone   Scope = ""
	ScopeLocal  Scope = "local"
	ScopeField  Scope = "field"
	ScopeStatic Scope = "static"
)

// StaticInitializer is the method name of a class initializer.
const StaticInitializer = "<clinit>"

// ControlDependency names the branch outcome an instruction depends on.
// A nil dependency means the instruction only depends on its method being
// called (root branch).
type ControlDependency struct {
	BranchID int  `json:"branch_id" yaml:"branch_id"`
	Outcome  bool `json:"outcome" yaml:"outcome"`
}

// Key identifies an instruction within a program.
type Key struct {
	ClassName  string
	MethodName string
	ID         int
}

func (k Key) String() string {
	return fmt.Sprintf("%s.%s#%d", k.ClassName, k.MethodName, k.ID)
}

// Instruction is a single classified instruction.
type Instruction struct {
	ID         int    `json:"id" yaml:"id"`
	ClassName  string `json:"class" yaml:"class"`
	MethodName string `json:"method" yaml:"method"`
	Kind       Kind   `json:"kind" yaml:"kind"`
	Line       int    `json:"line,omitempty" yaml:"line,omitempty"`

	// Variable is the name of the local or field read or written.
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Scope    Scope  `json:"scope,omitempty" yaml:"scope,omitempty"`

	// Call target, set for method calls and field method calls.
	CalledClass  string   `json:"called_class,omitempty" yaml:"called_class,omitempty"`
	CalledMethod string   `json:"called_method,omitempty" yaml:"called_method,omitempty"`
	ParamTypes   []string `json:"param_types,omitempty" yaml:"param_types,omitempty"`

	// BranchID is set for branch instructions.
	BranchID int `json:"branch_id,omitempty" yaml:"branch_id,omitempty"`

	Control *ControlDependency `json:"control,omitempty" yaml:"control,omitempty"`

	// NotInstrumentable marks instructions the instrumentation cannot observe.
	NotInstrumentable bool `json:"not_instrumentable,omitempty" yaml:"not_instrumentable,omitempty"`
}

// Key returns the program-wide identity of the instruction.
func (i *Instruction) Key() Key {
	return Key{ClassName: i.ClassName, MethodName: i.MethodName, ID: i.ID}
}

func (i *Instruction) IsDefinition() bool {
	return i.Kind == KindDefinition || i.Kind == KindIncrement
}

func (i *Instruction) IsUse() bool {
	return i.Kind == KindUse || i.Kind == KindIncrement
}

func (i *Instruction) IsIINC() bool { return i.Kind == KindIncrement }

func (i *Instruction) IsMethodCallOfField() bool { return i.Kind == KindFieldMethodCall }

func (i *Instruction) IsMethodCall() bool { return i.Kind == KindMethodCall }

func (i *Instruction) IsBranch() bool { return i.Kind == KindBranch }

func (i *Instruction) IsReturn() bool { return i.Kind == KindReturn }

// IsDefUse reports whether the instruction can take part in a def-use pair.
func (i *Instruction) IsDefUse() bool {
	return i.IsDefinition() || i.IsUse() || i.IsMethodCallOfField()
}

func (i *Instruction) IsLocal() bool { return i.Scope == ScopeLocal }

func (i *Instruction) IsStatic() bool { return i.Scope == ScopeStatic }

// IsField reports whether the variable is an instance or static field.
func (i *Instruction) IsField() bool {
	return i.Scope == ScopeField || i.Scope == ScopeStatic
}

// IsFieldDefinition reports a direct write to a field. Field method calls are
// not counted; their effect depends on the purity of the callee.
func (i *Instruction) IsFieldDefinition() bool {
	return i.Kind == KindDefinition && i.IsField()
}

func (i *Instruction) IsLocalVarUse() bool { return i.IsUse() && i.IsLocal() }

func (i *Instruction) CanBeInstrumented() bool { return !i.NotInstrumentable }

func (i *Instruction) IsRootBranchDependent() bool { return i.Control == nil }

// CallsOwnClass reports a call of another method of the instruction's class.
func (i *Instruction) CallsOwnClass() bool {
	return i.IsMethodCall() && (i.CalledClass == "" || i.CalledClass == i.ClassName)
}

// CalledSignature renders the call target as Class.method(p1,p2), the form
// used by the standard library purity table.
func (i *Instruction) CalledSignature() string {
	return fmt.Sprintf("%s.%s(%s)", i.CalledClass, i.CalledMethod, strings.Join(i.ParamTypes, ","))
}

func (i *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s.%s#%d %s", i.ClassName, i.MethodName, i.ID, i.Kind)
	if i.Variable != "" {
		fmt.Fprintf(&sb, " %s", i.Variable)
	}
	if i.CalledMethod != "" {
		fmt.Fprintf(&sb, " -> %s", i.CalledSignature())
	}
	if i.Line > 0 {
		fmt.Fprintf(&sb, " (line %d)", i.Line)
	}
	return sb.String()
}
