package model

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/instr"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// EventType names what a trace event records.
type EventType string

const (
	EventEnter     EventType = "enter"
	EventExit      EventType = "exit"
	EventBranch    EventType = "branch"
	EventDef       EventType = "def"
	EventUse       EventType = "use"
	EventIncrement EventType = "iinc" // use followed by a definition
)

// TraceDocument lists the executions of a test suite.
type TraceDocument struct {
	Tests []TestTrace `json:"tests" yaml:"tests"`
}

// TestTrace is the execution of one test.
type TestTrace struct {
	ID       string  `json:"id" yaml:"id"`
	TimedOut bool    `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Events   []Event `json:"events,omitempty" yaml:"events,omitempty"`
}

// Event is one observation of the instrumentation.
//
// Def, use and iinc events refer to an instruction of the class model. Class
// and method default to the innermost entered call, object to its calling
// object.
type Event struct {
	Type          EventType        `json:"type" yaml:"type"`
	Class         string           `json:"class,omitempty" yaml:"class,omitempty"`
	Method        string           `json:"method,omitempty" yaml:"method,omitempty"`
	Object        *int             `json:"object,omitempty" yaml:"object,omitempty"`
	Instruction   int              `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Branch        int              `json:"branch,omitempty" yaml:"branch,omitempty"`
	TrueDistance  float64          `json:"true_distance,omitempty" yaml:"true_distance,omitempty"`
	FalseDistance float64          `json:"false_distance,omitempty" yaml:"false_distance,omitempty"`
	Ref           *trace.ObjectRef `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// LoadTraces reads a YAML or JSON trace document.
func LoadTraces(r io.Reader) (*TraceDocument, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc TraceDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to parse traces: %w", err)
	}
	return &doc, nil
}

// LoadTracesFile reads a trace document from path.
func LoadTracesFile(path string) (*TraceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open traces: %w", err)
	}
	defer f.Close()
	doc, err := LoadTraces(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Test returns the trace of the test with the given ID.
func (d *TraceDocument) Test(id string) (*TestTrace, bool) {
	for i := range d.Tests {
		if d.Tests[i].ID == id {
			return &d.Tests[i], true
		}
	}
	return nil, false
}

// IDs lists the test IDs in document order.
func (d *TraceDocument) IDs() []string {
	r := make([]string, 0, len(d.Tests))
	for _, t := range d.Tests {
		r = append(r, t.ID)
	}
	return r
}

// Results replays every test against the instructions registered in reg.
func (d *TraceDocument) Results(pool *cfg.Pool, reg *defuse.Registry) ([]*trace.Result, error) {
	r := make([]*trace.Result, 0, len(d.Tests))
	for i := range d.Tests {
		res, err := d.Tests[i].Result(pool, reg)
		if err != nil {
			return nil, err
		}
		r = append(r, res)
	}
	return r, nil
}

// Result replays the events of the test through a trace.Builder.
func (tt *TestTrace) Result(pool *cfg.Pool, reg *defuse.Registry) (*trace.Result, error) {
	rp := replayer{pool: pool, reg: reg, b: trace.NewBuilder()}
	for i, ev := range tt.Events {
		if err := rp.apply(ev); err != nil {
			return nil, fmt.Errorf("test %s, event %d: %w", tt.ID, i, err)
		}
	}
	return &trace.Result{TestID: tt.ID, Trace: rp.b.Build(), TimedOut: tt.TimedOut}, nil
}

type frame struct {
	class, method string
	object        int
}

type replayer struct {
	pool  *cfg.Pool
	reg   *defuse.Registry
	b     *trace.Builder
	stack []frame
}

func (rp *replayer) apply(ev Event) error {
	switch ev.Type {
	case EventEnter:
		if ev.Class == "" || ev.Method == "" {
			return fmt.Errorf("%w: enter needs class and method", ErrInvalidModel)
		}
		f := frame{class: ev.Class, method: ev.Method}
		if ev.Object != nil {
			f.object = *ev.Object
		}
		rp.stack = append(rp.stack, f)
		rp.b.EnterMethod(f.class, f.method, f.object)
		return nil
	case EventExit:
		if len(rp.stack) > 0 {
			rp.stack = rp.stack[:len(rp.stack)-1]
		}
		return rp.b.ExitMethod()
	case EventBranch:
		return rp.b.Branch(ev.Branch, ev.TrueDistance, ev.FalseDistance)
	case EventDef, EventUse, EventIncrement:
		return rp.defUse(ev)
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidModel, ev.Type)
	}
}

func (rp *replayer) defUse(ev Event) error {
	var top frame
	if len(rp.stack) > 0 {
		top = rp.stack[len(rp.stack)-1]
	}
	class, method, object := top.class, top.method, top.object
	if ev.Class != "" {
		class = ev.Class
	}
	if ev.Method != "" {
		method = ev.Method
	}
	if ev.Object != nil {
		object = *ev.Object
	}
	m, ok := rp.pool.MethodCFG(class, method)
	if !ok {
		return fmt.Errorf("%w: unknown method %s.%s", ErrInvalidModel, class, method)
	}
	in, ok := m.Instruction(ev.Instruction)
	if !ok {
		return fmt.Errorf("%w: unknown instruction %s.%s#%d", ErrInvalidModel, class, method, ev.Instruction)
	}
	// static variables belong to no instance and pool under object 0
	if in.IsStatic() {
		object = 0
	}
	var ref trace.ObjectRef
	if ev.Ref != nil {
		ref = *ev.Ref
	}

	if ev.Type != EventDef {
		u, err := rp.lookup(in, rp.reg.UseFor, "use")
		if err != nil {
			return err
		}
		rp.b.Use(u.Variable, object, u.ID, ref)
	}
	if ev.Type != EventUse {
		d, err := rp.lookup(in, rp.reg.DefinitionFor, "definition")
		if err != nil {
			return err
		}
		rp.b.Definition(d.Variable, object, d.ID, ref)
	}
	return nil
}

func (rp *replayer) lookup(in *instr.Instruction, find func(*instr.Instruction) (*defuse.DefUse, bool), role string) (*defuse.DefUse, error) {
	du, ok := find(in)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a registered %s", ErrInvalidModel, in.Key(), role)
	}
	return du, nil
}
