// Package cfg defines instruction-level control flow graphs for the methods of
// a class and the combined class-level graph used by the def-use analysis.
package cfg

import (
	"fmt"
	"sort"
	"sync"

	"github.com/l3aro/go-defuse/pkg/instr"
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Unconditional jump
	EdgeTypeTrue          EdgeType = "true"          // True branch of conditional
	EdgeTypeFalse         EdgeType = "false"         // False branch of conditional
	EdgeTypeBackEdge      EdgeType = "back_edge"     // Back edge (loop continuation)
	EdgeTypeBreak         EdgeType = "break"         // Break from loop/switch
	EdgeTypeContinue      EdgeType = "continue"      // Continue to next iteration
)

// Edge represents a directed edge between two instructions of one method.
type Edge struct {
	SourceID int      `json:"source_id"` // ID of the source instruction
	TargetID int      `json:"target_id"` // ID of the target instruction
	EdgeType EdgeType `json:"edge_type"` // Type of edge (true, false, unconditional, etc.)
}

// Access holds the method modifiers the analysis cares about.
type Access struct {
	Public bool `json:"public"`
	Static bool `json:"static"`
}

// MethodCFG is the raw control flow graph of a single method. Nodes are
// instructions, identified by their ID.
type MethodCFG struct {
	ClassName  string `json:"class_name"`
	MethodName string `json:"method_name"`
	Access     Access `json:"access"`

	instrs map[int]*instr.Instruction
	order  []int
	succ   map[int][]Edge
	pred   map[int][]Edge
	entry  int
	hasEnt bool
}

// NewMethodCFG creates an empty method graph.
func NewMethodCFG(className, methodName string, access Access) *MethodCFG {
	return &MethodCFG{
		ClassName:  className,
		MethodName: methodName,
		Access:     access,
		instrs:     make(map[int]*instr.Instruction),
		succ:       make(map[int][]Edge),
		pred:       make(map[int][]Edge),
	}
}

// AddInstruction adds a node. The first instruction added becomes the entry
// unless SetEntry is called.
func (m *MethodCFG) AddInstruction(in *instr.Instruction) error {
	if in == nil {
		return fmt.Errorf("nil instruction")
	}
	if _, ok := m.instrs[in.ID]; ok {
		return fmt.Errorf("duplicate instruction %d in %s.%s", in.ID, m.ClassName, m.MethodName)
	}
	in.ClassName = m.ClassName
	in.MethodName = m.MethodName
	m.instrs[in.ID] = in
	m.order = append(m.order, in.ID)
	if !m.hasEnt {
		m.entry = in.ID
		m.hasEnt = true
	}
	return nil
}

// AddEdge connects two instructions already present in the graph.
func (m *MethodCFG) AddEdge(from, to int, t EdgeType) error {
	if _, ok := m.instrs[from]; !ok {
		return fmt.Errorf("unknown source instruction %d in %s.%s", from, m.ClassName, m.MethodName)
	}
	if _, ok := m.instrs[to]; !ok {
		return fmt.Errorf("unknown target instruction %d in %s.%s", to, m.ClassName, m.MethodName)
	}
	for _, e := range m.succ[from] {
		if e.TargetID == to && e.EdgeType == t {
			return nil
		}
	}
	e := Edge{SourceID: from, TargetID: to, EdgeType: t}
	m.succ[from] = append(m.succ[from], e)
	m.pred[to] = append(m.pred[to], e)
	return nil
}

// SetEntry overrides the entry instruction.
func (m *MethodCFG) SetEntry(id int) error {
	if _, ok := m.instrs[id]; !ok {
		return fmt.Errorf("unknown entry instruction %d in %s.%s", id, m.ClassName, m.MethodName)
	}
	m.entry = id
	m.hasEnt = true
	return nil
}

// Entry returns the entry instruction ID and whether the graph has any node.
func (m *MethodCFG) Entry() (int, bool) { return m.entry, m.hasEnt }

// Instruction returns the instruction with the given ID.
func (m *MethodCFG) Instruction(id int) (*instr.Instruction, bool) {
	in, ok := m.instrs[id]
	return in, ok
}

// Instructions returns all instructions ordered by ID.
func (m *MethodCFG) Instructions() []*instr.Instruction {
	ids := append([]int(nil), m.order...)
	sort.Ints(ids)
	r := make([]*instr.Instruction, 0, len(ids))
	for _, id := range ids {
		r = append(r, m.instrs[id])
	}
	return r
}

// Len returns the number of instructions.
func (m *MethodCFG) Len() int { return len(m.instrs) }

func (m *MethodCFG) Successors(id int) []int {
	r := make([]int, 0, len(m.succ[id]))
	for _, e := range m.succ[id] {
		r = append(r, e.TargetID)
	}
	return r
}

func (m *MethodCFG) Predecessors(id int) []int {
	r := make([]int, 0, len(m.pred[id]))
	for _, e := range m.pred[id] {
		r = append(r, e.SourceID)
	}
	return r
}

// Edges returns all edges ordered by source, then target.
func (m *MethodCFG) Edges() []Edge {
	var r []Edge
	for _, es := range m.succ {
		r = append(r, es...)
	}
	sort.Slice(r, func(i, j int) bool {
		if r[i].SourceID != r[j].SourceID {
			return r[i].SourceID < r[j].SourceID
		}
		return r[i].TargetID < r[j].TargetID
	})
	return r
}

// Exits returns the instructions without successors.
func (m *MethodCFG) Exits() []int {
	var r []int
	for _, id := range m.order {
		if len(m.succ[id]) == 0 {
			r = append(r, id)
		}
	}
	sort.Ints(r)
	return r
}

// LaterInstructions returns every instruction reachable from id through at
// least one edge.
func (m *MethodCFG) LaterInstructions(id int) []*instr.Instruction {
	return m.collect(id, m.Successors)
}

// PreviousInstructions returns every instruction from which id is reachable
// through at least one edge.
func (m *MethodCFG) PreviousInstructions(id int) []*instr.Instruction {
	return m.collect(id, m.Predecessors)
}

func (m *MethodCFG) collect(start int, next func(int) []int) []*instr.Instruction {
	seen := make(map[int]bool)
	stack := next(start)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, next(cur)...)
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	r := make([]*instr.Instruction, 0, len(ids))
	for _, id := range ids {
		r = append(r, m.instrs[id])
	}
	return r
}

// BranchInstruction returns the branch instruction with the given branch ID.
func (m *MethodCFG) BranchInstruction(branchID int) (*instr.Instruction, bool) {
	for _, in := range m.instrs {
		if in.IsBranch() && in.BranchID == branchID {
			return in, true
		}
	}
	return nil, false
}

// ClassCFG combines the method graphs of one class. Calls between methods are
// resolved through the call graph derived from method call instructions.
type ClassCFG struct {
	ClassName string

	mu      sync.RWMutex
	methods map[string]*MethodCFG
}

// NewClassCFG creates an empty class graph.
func NewClassCFG(className string) *ClassCFG {
	return &ClassCFG{
		ClassName: className,
		methods:   make(map[string]*MethodCFG),
	}
}

// AddMethod registers a method graph.
func (c *ClassCFG) AddMethod(m *MethodCFG) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.ClassName != c.ClassName {
		return fmt.Errorf("method %s belongs to %s, not %s", m.MethodName, m.ClassName, c.ClassName)
	}
	if _, ok := c.methods[m.MethodName]; ok {
		return fmt.Errorf("duplicate method %s in %s", m.MethodName, c.ClassName)
	}
	c.methods[m.MethodName] = m
	return nil
}

func (c *ClassCFG) Method(name string) (*MethodCFG, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.methods[name]
	return m, ok
}

// Methods returns all method graphs sorted by name.
func (c *ClassCFG) Methods() []*MethodCFG {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r := make([]*MethodCFG, 0, len(c.methods))
	for _, m := range c.methods {
		r = append(r, m)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].MethodName < r[j].MethodName })
	return r
}

// PublicMethods returns the public method graphs sorted by name.
func (c *ClassCFG) PublicMethods() []*MethodCFG {
	var r []*MethodCFG
	for _, m := range c.Methods() {
		if m.Access.Public {
			r = append(r, m)
		}
	}
	return r
}

// HasMethodBodies reports whether any method has at least one instruction.
func (c *ClassCFG) HasMethodBodies() bool {
	for _, m := range c.Methods() {
		if m.Len() > 0 {
			return true
		}
	}
	return false
}

// Callees returns the methods of this class called from method, sorted.
func (c *ClassCFG) Callees(method string) []string {
	m, ok := c.Method(method)
	if !ok {
		return nil
	}
	set := make(map[string]struct{})
	for _, in := range m.Instructions() {
		if in.CallsOwnClass() {
			if _, known := c.Method(in.CalledMethod); known {
				set[in.CalledMethod] = struct{}{}
			}
		}
	}
	r := make([]string, 0, len(set))
	for name := range set {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// BottomUpOrder returns the method names so that callees precede callers.
// Methods on a call cycle keep the order in which the depth-first search
// finished them.
func (c *ClassCFG) BottomUpOrder() []string {
	visited := make(map[string]bool)
	var order []string
	var visit func(string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, callee := range c.Callees(name) {
			visit(callee)
		}
		order = append(order, name)
	}
	for _, m := range c.Methods() {
		visit(m.MethodName)
	}
	return order
}

// Instruction looks up an instruction by method and ID.
func (c *ClassCFG) Instruction(method string, id int) (*instr.Instruction, bool) {
	m, ok := c.Method(method)
	if !ok {
		return nil, false
	}
	return m.Instruction(id)
}

// Pool holds the class graphs known to an analysis session.
type Pool struct {
	mu      sync.RWMutex
	classes map[string]*ClassCFG
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{classes: make(map[string]*ClassCFG)}
}

// Register adds or replaces the graph of a class.
func (p *Pool) Register(c *ClassCFG) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.classes[c.ClassName] = c
}

// ClassCFG returns the graph of a class.
func (p *Pool) ClassCFG(className string) (*ClassCFG, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.classes[className]
	return c, ok
}

// CanMakeCCFGForClass reports whether a usable class graph exists, that is a
// graph with at least one method body.
func (p *Pool) CanMakeCCFGForClass(className string) bool {
	c, ok := p.ClassCFG(className)
	return ok && c.HasMethodBodies()
}

// MethodCFG returns the graph of a single method.
func (p *Pool) MethodCFG(className, methodName string) (*MethodCFG, bool) {
	c, ok := p.ClassCFG(className)
	if !ok {
		return nil, false
	}
	return c.Method(methodName)
}

// Classes returns the registered class names, sorted.
func (p *Pool) Classes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r := make([]string, 0, len(p.classes))
	for name := range p.classes {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}
