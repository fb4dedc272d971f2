// Package defuse holds the definitions and uses of a class under test and the
// registry that assigns their identifiers.
package defuse

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-defuse/pkg/instr"
)

var (
	// ErrIllegalArgument signals an instruction handed to the registry that
	// does not fit the requested role.
	ErrIllegalArgument = errors.New("illegal argument")
	// ErrIllegalState signals a registry protocol violation.
	ErrIllegalState = errors.New("illegal state")
)

// Kind distinguishes definitions from uses.
type Kind int

const (
	KindDefinition Kind = iota
	KindUse
)

func (k Kind) String() string {
	switch k {
	case KindDefinition:
		return "Definition"
	case KindUse:
		return "Use"
	default:
		return "Unknown"
	}
}

// DefUse is a registered definition or use. Values are created by the
// Registry only and are immutable afterwards.
type DefUse struct {
	Kind Kind
	// ID is the definition ID for definitions and the use ID for uses.
	ID   int
	DUID int
	// Generation is the registry session the entity was created in.
	Generation uint64

	Variable        string
	Instruction     *instr.Instruction
	ParameterUse    bool
	FieldMethodCall bool
}

func (d *DefUse) IsDefinition() bool { return d.Kind == KindDefinition }

func (d *DefUse) IsUse() bool { return d.Kind == KindUse }

func (d *DefUse) ClassName() string { return d.Instruction.ClassName }

func (d *DefUse) MethodName() string { return d.Instruction.MethodName }

func (d *DefUse) InstructionID() int { return d.Instruction.ID }

func (d *DefUse) IsLocal() bool { return d.Instruction.IsLocal() }

func (d *DefUse) IsStatic() bool { return d.Instruction.IsStatic() }

func (d *DefUse) IsField() bool { return d.Instruction.IsField() }

func (d *DefUse) IsRootBranchDependent() bool { return d.Instruction.IsRootBranchDependent() }

func (d *DefUse) ControlDependency() *instr.ControlDependency { return d.Instruction.Control }

// IsSpecialDefinition reports a static write in a class initializer. Such a
// definition is assumed covered whenever its use is.
func (d *DefUse) IsSpecialDefinition() bool {
	return d.IsDefinition() && d.IsStatic() && d.MethodName() == instr.StaticInitializer
}

// Equal compares identity within one registry session.
func (d *DefUse) Equal(o *DefUse) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.Kind == o.Kind && d.ID == o.ID && d.Generation == o.Generation
}

func (d *DefUse) String() string {
	if d == nil {
		return "<nil>"
	}
	scope := "field"
	switch {
	case d.IsLocal():
		scope = "local"
	case d.IsStatic():
		scope = "static"
	}
	s := fmt.Sprintf("%s %d (du %d) %s %s in %s.%s#%d", d.Kind, d.ID, d.DUID, scope,
		d.Variable, d.ClassName(), d.MethodName(), d.InstructionID())
	if d.ParameterUse {
		s += " [parameter]"
	}
	if d.FieldMethodCall {
		s += " [field call]"
	}
	return s
}
