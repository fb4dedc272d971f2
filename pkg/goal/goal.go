// Package goal defines def-use coverage goals and the catalog that owns them.
package goal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/instr"
)

// Type is the scope classification of a def-use pair.
type Type int

const (
	TypeIntraMethod Type = iota + 1
	TypeInterMethod
	TypeIntraClass
	TypeParameter
)

// Types lists every type in registration precedence order.
var Types = []Type{TypeIntraMethod, TypeInterMethod, TypeIntraClass, TypeParameter}

func (t Type) String() string {
	switch t {
	case TypeIntraMethod:
		return "INTRA_METHOD"
	case TypeInterMethod:
		return "INTER_METHOD"
	case TypeIntraClass:
		return "INTRA_CLASS"
	case TypeParameter:
		return "PARAMETER"
	default:
		return "UNKNOWN"
	}
}

// ParseType converts a type name, case-insensitively, into a Type.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown goal type %q", s)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Goal is a (definition, use) pair to cover. Definition is nil for parameter
// goals only. Goals are created through New or NewParameter and owned by a
// Catalog.
type Goal struct {
	Definition *defuse.DefUse
	Use        *defuse.DefUse
	Variable   string
	Type       Type
}

// Key identifies a goal within one registry generation.
type Key struct {
	DefID int
	UseID int
}

// New creates a goal for a definition and a use.
func New(def, use *defuse.DefUse, t Type) (*Goal, error) {
	if def == nil || use == nil {
		return nil, fmt.Errorf("%w: goal needs a definition and a use", defuse.ErrIllegalArgument)
	}
	if !def.IsDefinition() || !use.IsUse() {
		return nil, fmt.Errorf("%w: expected definition and use, got %s and %s",
			defuse.ErrIllegalArgument, def.Kind, use.Kind)
	}
	switch t {
	case TypeIntraMethod, TypeInterMethod, TypeIntraClass:
	default:
		return nil, fmt.Errorf("%w: invalid type %s for a definition-use goal", defuse.ErrIllegalArgument, t)
	}
	if def.IsLocal() && t != TypeIntraMethod {
		return nil, fmt.Errorf("%w: local definition %s cannot form an %s goal",
			defuse.ErrIllegalArgument, def, t)
	}
	return &Goal{Definition: def, Use: use, Variable: def.Variable, Type: t}, nil
}

// NewParameter creates a goal for a parameter use.
func NewParameter(use *defuse.DefUse) (*Goal, error) {
	if use == nil || !use.IsUse() || !use.ParameterUse {
		return nil, fmt.Errorf("%w: %s is not a parameter use", defuse.ErrIllegalArgument, use)
	}
	return &Goal{Use: use, Variable: use.Variable, Type: TypeParameter}, nil
}

// Key returns the catalog key. Parameter goals use None as definition ID.
func (g *Goal) Key() Key {
	k := Key{DefID: -1, UseID: g.Use.ID}
	if g.Definition != nil {
		k.DefID = g.Definition.ID
	}
	return k
}

// IsParameter reports whether g is a parameter goal.
func (g *Goal) IsParameter() bool { return g.Type == TypeParameter }

// IsAlias reports whether the definition and the use name different
// variables, which only happens for goals discovered at runtime.
func (g *Goal) IsAlias() bool {
	return g.Definition != nil && g.Definition.Variable != g.Use.Variable
}

// Equal compares definition, use, variable and type.
func (g *Goal) Equal(o *Goal) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.Definition.Equal(o.Definition) && g.Use.Equal(o.Use) &&
		g.Variable == o.Variable && g.Type == o.Type
}

func (g *Goal) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s goal for %s", g.Type, g.Variable)
	if g.Definition != nil {
		fmt.Fprintf(&sb, "\n\t%s", g.Definition)
	}
	fmt.Fprintf(&sb, "\n\t%s", g.Use)
	return sb.String()
}

// InstructionsBetween returns the instructions of an intra-method goal's
// method that lie on some path from the definition to the use. Goals
// spanning methods yield nil.
func (g *Goal) InstructionsBetween(m *cfg.MethodCFG) []*instr.Instruction {
	if g.Definition == nil || m == nil {
		return nil
	}
	if g.Definition.ClassName() != m.ClassName || g.Use.ClassName() != m.ClassName ||
		g.Definition.MethodName() != m.MethodName || g.Use.MethodName() != m.MethodName {
		return nil
	}
	before := make(map[int]bool)
	for _, in := range m.PreviousInstructions(g.Use.InstructionID()) {
		before[in.ID] = true
	}
	var r []*instr.Instruction
	for _, in := range m.LaterInstructions(g.Definition.InstructionID()) {
		if before[in.ID] {
			r = append(r, in)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	return r
}
