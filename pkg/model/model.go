// Package model reads class model documents and execution trace documents.
// A class model describes the classified instructions and the control flow
// of the classes under test in YAML or JSON; a trace document lists the
// events every test of a suite produced.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/instr"
)

// ErrInvalidModel is returned for documents that fail schema validation or
// describe an inconsistent graph.
var ErrInvalidModel = errors.New("invalid model")

const schemaURL = "class-model.schema.json"

// Document is a class model: the classes under test and the classes they
// call into.
type Document struct {
	Classes      []Class `json:"classes" yaml:"classes"`
	Dependencies []Class `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Class describes the methods of one class.
type Class struct {
	Name    string   `json:"class" yaml:"class"`
	Methods []Method `json:"methods" yaml:"methods"`
}

// Access holds method modifiers.
type Access struct {
	Public bool `json:"public,omitempty" yaml:"public,omitempty"`
	Static bool `json:"static,omitempty" yaml:"static,omitempty"`
}

// Method describes the instructions and edges of one method. Without edges
// the instructions run in the listed order.
type Method struct {
	Name         string        `json:"name" yaml:"name"`
	Access       Access        `json:"access,omitempty" yaml:"access,omitempty"`
	Entry        *int          `json:"entry,omitempty" yaml:"entry,omitempty"`
	Instructions []Instruction `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Edges        []Edge        `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Instruction is the document form of instr.Instruction.
type Instruction struct {
	ID                int                      `json:"id" yaml:"id"`
	Kind              instr.Kind               `json:"kind" yaml:"kind"`
	Line              int                      `json:"line,omitempty" yaml:"line,omitempty"`
	Variable          string                   `json:"variable,omitempty" yaml:"variable,omitempty"`
	Scope             instr.Scope              `json:"scope,omitempty" yaml:"scope,omitempty"`
	CalledClass       string                   `json:"called_class,omitempty" yaml:"called_class,omitempty"`
	CalledMethod      string                   `json:"called_method,omitempty" yaml:"called_method,omitempty"`
	ParamTypes        []string                 `json:"param_types,omitempty" yaml:"param_types,omitempty"`
	BranchID          int                      `json:"branch_id,omitempty" yaml:"branch_id,omitempty"`
	Control           *instr.ControlDependency `json:"control,omitempty" yaml:"control,omitempty"`
	NotInstrumentable bool                     `json:"not_instrumentable,omitempty" yaml:"not_instrumentable,omitempty"`
}

// Edge connects two instructions of a method.
type Edge struct {
	From int          `json:"from" yaml:"from"`
	To   int          `json:"to" yaml:"to"`
	Type cfg.EdgeType `json:"type,omitempty" yaml:"type,omitempty"`
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	sch, err := jsonschema.UnmarshalJSON(strings.NewReader(Schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, sch); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return compiler.Compile(schemaURL)
})

// Load reads a YAML or JSON class model and validates it.
func Load(r io.Reader) (*Document, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidModel)
		}
		return nil, fmt.Errorf("failed to parse class model: %w", err)
	}
	if err := validateNode(&node); err != nil {
		return nil, err
	}
	var doc Document
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode class model: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads a class model from path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class model: %w", err)
	}
	defer f.Close()
	doc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// validateNode checks a parsed document against Schema. YAML values go
// through a JSON round trip so the validator sees plain JSON types.
func validateNode(node *yaml.Node) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode class model: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return nil
}

// Validate checks what the schema cannot express: unique names, unique
// instruction IDs, edge endpoints and control dependencies on branches of
// the same method.
func (d *Document) Validate() error {
	seen := make(map[string]bool)
	for _, c := range append(append([]Class(nil), d.Classes...), d.Dependencies...) {
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate class %s", ErrInvalidModel, c.Name)
		}
		seen[c.Name] = true
		if _, err := c.CFG(); err != nil {
			return err
		}
	}
	return nil
}

// ClassCFGs converts the classes under test to class graphs.
func (d *Document) ClassCFGs() ([]*cfg.ClassCFG, error) {
	return convert(d.Classes)
}

// DependencyCFGs converts the dependency classes to class graphs.
func (d *Document) DependencyCFGs() ([]*cfg.ClassCFG, error) {
	return convert(d.Dependencies)
}

func convert(classes []Class) ([]*cfg.ClassCFG, error) {
	r := make([]*cfg.ClassCFG, 0, len(classes))
	for _, c := range classes {
		g, err := c.CFG()
		if err != nil {
			return nil, err
		}
		r = append(r, g)
	}
	return r, nil
}

// CFG builds the class graph. Every call returns fresh instructions.
func (c Class) CFG() (*cfg.ClassCFG, error) {
	g := cfg.NewClassCFG(c.Name)
	for _, m := range c.Methods {
		mg, err := m.cfg(c.Name)
		if err != nil {
			return nil, err
		}
		if err := g.AddMethod(mg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	}
	return g, nil
}

func (m Method) cfg(className string) (*cfg.MethodCFG, error) {
	g := cfg.NewMethodCFG(className, m.Name, cfg.Access{Public: m.Access.Public, Static: m.Access.Static})
	branches := make(map[int]bool)
	for _, in := range m.Instructions {
		if in.Kind == instr.KindBranch {
			branches[in.BranchID] = true
		}
	}
	for _, in := range m.Instructions {
		if in.Control != nil && !branches[in.Control.BranchID] {
			return nil, fmt.Errorf("%w: %s.%s#%d depends on unknown branch %d",
				ErrInvalidModel, className, m.Name, in.ID, in.Control.BranchID)
		}
		if err := g.AddInstruction(in.instruction()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	}

	if len(m.Edges) == 0 {
		for i := 1; i < len(m.Instructions); i++ {
			if err := g.AddEdge(m.Instructions[i-1].ID, m.Instructions[i].ID, cfg.EdgeTypeUnconditional); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
			}
		}
	}
	for _, e := range m.Edges {
		t := e.Type
		if t == "" {
			t = cfg.EdgeTypeUnconditional
		}
		if err := g.AddEdge(e.From, e.To, t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	}
	if m.Entry != nil {
		if err := g.SetEntry(*m.Entry); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	}
	return g, nil
}

func (in Instruction) instruction() *instr.Instruction {
	r := &instr.Instruction{
		ID:                in.ID,
		Kind:              in.Kind,
		Line:              in.Line,
		Variable:          in.Variable,
		Scope:             in.Scope,
		CalledClass:       in.CalledClass,
		CalledMethod:      in.CalledMethod,
		ParamTypes:        append([]string(nil), in.ParamTypes...),
		BranchID:          in.BranchID,
		NotInstrumentable: in.NotInstrumentable,
	}
	if in.Control != nil {
		cd := *in.Control
		r.Control = &cd
	}
	return r
}

// Fingerprint identifies the content of the document. Equal documents have
// equal fingerprints, which makes it the key of the goal cache.
func (d *Document) Fingerprint() (string, error) {
	h, err := hashstructure.Hash(d, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("failed to hash class model: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}
