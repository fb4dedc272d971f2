package dfg

import (
	"container/list"
	"sort"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/goal"
	"github.com/l3aro/go-defuse/pkg/instr"
)

// Categorizer decides whether a field method call changes the field's object.
type Categorizer interface {
	Categorize(call *instr.Instruction) (asDefinition bool)
}

// Enumerator discovers the def-use pairs of a class.
type Enumerator struct {
	reg         *defuse.Registry
	categorizer Categorizer
	logger      log.Logger
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithCategorizer sets the purity decision for field method calls. Without
// one every field method call becomes a use.
func WithCategorizer(c Categorizer) Option {
	return func(e *Enumerator) { e.categorizer = c }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Enumerator) { e.logger = l }
}

// NewEnumerator creates an enumerator over the entities of reg.
func NewEnumerator(reg *defuse.Registry, opts ...Option) *Enumerator {
	e := &Enumerator{reg: reg, logger: log.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enumerate categorizes the class's pending field method calls, then returns
// its def-use pairs: intra-method pairs first, then inter-method,
// intra-class and parameter pairs, each group ordered by definition and use
// ID. A class without method bodies has no pairs.
func (e *Enumerator) Enumerate(ccfg *cfg.ClassCFG) ([]Pair, error) {
	if ccfg == nil || !ccfg.HasMethodBodies() {
		e.logger.Debug("no usable class graph", "class", className(ccfg))
		return nil, nil
	}
	if err := e.categorizeFieldMethodCalls(ccfg.ClassName); err != nil {
		return nil, err
	}

	a := newReachingDefsAnalysis(e.reg, ccfg)
	for _, name := range ccfg.BottomUpOrder() {
		m, _ := ccfg.Method(name)
		a.analyzeMethod(m)
	}

	var pairs []Pair
	pairs = append(pairs, sortedPairs(a.intra)...)
	pairs = append(pairs, sortedPairs(a.inter)...)
	pairs = append(pairs, sortedPairs(a.intraClass(ccfg.PublicMethods()))...)
	for _, u := range e.reg.ParameterUses() {
		if u.ClassName() == ccfg.ClassName {
			pairs = append(pairs, Pair{Use: u, Type: goal.TypeParameter})
		}
	}
	e.logger.Debug("enumerated def-use pairs", "class", ccfg.ClassName, "pairs", len(pairs))
	return pairs, nil
}

// Categorize commits the pending field method calls of a class without
// enumerating pairs.
func (e *Enumerator) Categorize(class string) error {
	return e.categorizeFieldMethodCalls(class)
}

func (e *Enumerator) categorizeFieldMethodCalls(class string) error {
	for _, call := range e.reg.FieldMethodCalls() {
		if call.ClassName != class {
			continue
		}
		asDefinition := false
		if e.categorizer != nil {
			asDefinition = e.categorizer.Categorize(call)
		}
		if err := e.reg.CommitFieldMethodCall(call, asDefinition); err != nil {
			return err
		}
	}
	return nil
}

// Register creates a goal for every pair and adds it to cat in order.
// Pairs whose key is already taken are skipped. It returns the goals added.
func Register(cat *goal.Catalog, pairs []Pair) ([]*goal.Goal, error) {
	var added []*goal.Goal
	for _, p := range pairs {
		var (
			g   *goal.Goal
			err error
		)
		if p.Type == goal.TypeParameter {
			g, err = goal.NewParameter(p.Use)
		} else {
			g, err = goal.New(p.Definition, p.Use, p.Type)
		}
		if err != nil {
			return added, err
		}
		if cat.Register(g) {
			added = append(added, g)
		}
	}
	return added, nil
}

// reachingDefsAnalysis runs the worklist reaching definitions algorithm on
// every method of a class, callees before callers.
type reachingDefsAnalysis struct {
	reg  *defuse.Registry
	ccfg *cfg.ClassCFG
	// fields holds the slots of every field the class touches
	fields []string
	// summaries maps method name to its call summary
	summaries map[string]*summary

	intra map[goal.Key]Pair
	inter map[goal.Key]Pair
}

func newReachingDefsAnalysis(reg *defuse.Registry, ccfg *cfg.ClassCFG) *reachingDefsAnalysis {
	a := &reachingDefsAnalysis{
		reg:       reg,
		ccfg:      ccfg,
		summaries: make(map[string]*summary),
		intra:     make(map[goal.Key]Pair),
		inter:     make(map[goal.Key]Pair),
	}
	set := make(map[string]struct{})
	for _, m := range ccfg.Methods() {
		for _, in := range m.Instructions() {
			if in.IsField() && in.Variable != "" {
				set[slot(in)] = struct{}{}
			}
		}
	}
	for f := range set {
		a.fields = append(a.fields, f)
	}
	sort.Strings(a.fields)
	return a
}

// slot separates locals from fields of the same name.
func slot(in *instr.Instruction) string {
	if in.IsLocal() {
		return "local " + in.Variable
	}
	return in.Variable
}

func (a *reachingDefsAnalysis) analyzeMethod(m *cfg.MethodCFG) {
	s := newSummary()
	entry, ok := m.Entry()
	if !ok {
		a.summaries[m.MethodName] = s
		return
	}

	instrs := m.Instructions()
	gen := make(map[int]factSet, len(instrs))
	kill := make(map[int]map[string]struct{}, len(instrs))
	for _, in := range instrs {
		gen[in.ID], kill[in.ID] = a.genKill(in)
	}

	entryFacts := make(factSet, len(a.fields))
	for _, f := range a.fields {
		entryFacts[fact{kind: factEntry, variable: f}] = struct{}{}
	}

	in := make(map[int]factSet, len(instrs))
	out := make(map[int]factSet, len(instrs))
	for _, i := range instrs {
		in[i.ID] = make(factSet)
		out[i.ID] = make(factSet)
	}

	worklist := list.New()
	for _, i := range instrs {
		worklist.PushBack(i.ID)
	}
	for worklist.Len() > 0 {
		id := worklist.Remove(worklist.Front()).(int)

		oldOut := copySet(out[id])

		// in = union of out[pred], plus the entry values at the entry
		in[id] = unionPreds(out, m.Predecessors(id))
		if id == entry {
			for f := range entryFacts {
				in[id][f] = struct{}{}
			}
		}

		// out = gen U (in - kill)
		out[id] = computeOut(in[id], gen[id], kill[id])

		if !setsEqual(oldOut, out[id]) {
			for _, succ := range m.Successors(id) {
				worklist.PushBack(succ)
			}
		}
	}

	for _, i := range instrs {
		a.collectUses(i, in[i.ID], s)
	}
	for _, exit := range m.Exits() {
		for f := range out[exit] {
			if f.kind == factEntry {
				s.passThrough[f.variable] = struct{}{}
				continue
			}
			if d, ok := a.reg.DefinitionByID(f.defID); ok && d.IsField() {
				s.exitDefs[d.ID] = d
			}
		}
	}
	a.summaries[m.MethodName] = s
}

// genKill returns the facts an instruction generates and the slots it
// overwrites.
func (a *reachingDefsAnalysis) genKill(in *instr.Instruction) (factSet, map[string]struct{}) {
	gen := make(factSet)
	kill := make(map[string]struct{})
	if d, ok := a.reg.DefinitionFor(in); ok {
		gen[fact{kind: factOwn, defID: d.ID, variable: slot(in)}] = struct{}{}
		kill[slot(in)] = struct{}{}
		return gen, kill
	}
	if !in.CallsOwnClass() {
		return gen, kill
	}
	callee, ok := a.summaries[in.CalledMethod]
	if !ok {
		// unknown or still being analyzed on a recursive cycle
		return gen, kill
	}
	for _, d := range callee.exitDefs {
		v := slot(d.Instruction)
		gen[fact{kind: factForeign, defID: d.ID, variable: v}] = struct{}{}
		if _, kept := callee.passThrough[v]; !kept {
			kill[v] = struct{}{}
		}
	}
	return gen, kill
}

// collectUses pairs the uses at in, and the free uses of a method called at
// in, with the facts reaching in.
func (a *reachingDefsAnalysis) collectUses(in *instr.Instruction, reaching factSet, s *summary) {
	if u, ok := a.reg.UseFor(in); ok {
		a.pairUse(u, reaching, s, false)
	}
	if !in.CallsOwnClass() {
		return
	}
	if callee, ok := a.summaries[in.CalledMethod]; ok {
		for _, u := range callee.freeUses {
			a.pairUse(u, reaching, s, true)
		}
	}
}

func (a *reachingDefsAnalysis) pairUse(u *defuse.DefUse, reaching factSet, s *summary, throughCall bool) {
	v := slot(u.Instruction)
	for f := range reaching {
		if f.variable != v {
			continue
		}
		if f.kind == factEntry {
			s.freeUses[u.ID] = u
			continue
		}
		d, ok := a.reg.DefinitionByID(f.defID)
		if !ok {
			continue
		}
		key := goal.Key{DefID: d.ID, UseID: u.ID}
		if f.kind == factOwn && !throughCall {
			a.intra[key] = Pair{Definition: d, Use: u, Type: goal.TypeIntraMethod}
		} else {
			a.inter[key] = Pair{Definition: d, Use: u, Type: goal.TypeInterMethod}
		}
	}
}

// intraClass pairs the exit definitions of every public method with the free
// uses of every public method.
func (a *reachingDefsAnalysis) intraClass(public []*cfg.MethodCFG) map[goal.Key]Pair {
	r := make(map[goal.Key]Pair)
	for _, pm := range public {
		defs := a.summaries[pm.MethodName]
		if defs == nil {
			continue
		}
		for _, d := range defs.exitDefs {
			for _, qm := range public {
				uses := a.summaries[qm.MethodName]
				if uses == nil {
					continue
				}
				for _, u := range uses.freeUses {
					if slot(d.Instruction) == slot(u.Instruction) {
						r[goal.Key{DefID: d.ID, UseID: u.ID}] = Pair{Definition: d, Use: u, Type: goal.TypeIntraClass}
					}
				}
			}
		}
	}
	return r
}

// copySet creates a copy of a fact set.
func copySet(src factSet) factSet {
	dst := make(factSet, len(src))
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}

// unionPreds computes the union of out sets for all predecessors.
func unionPreds(out map[int]factSet, preds []int) factSet {
	result := make(factSet)
	for _, predID := range preds {
		for f := range out[predID] {
			result[f] = struct{}{}
		}
	}
	return result
}

// computeOut computes gen U (in - kill).
func computeOut(inSet, gen factSet, kill map[string]struct{}) factSet {
	outSet := make(factSet, len(gen)+len(inSet))
	for f := range gen {
		outSet[f] = struct{}{}
	}
	for f := range inSet {
		if _, killed := kill[f.variable]; !killed {
			outSet[f] = struct{}{}
		}
	}
	return outSet
}

// setsEqual checks if two sets are equal.
func setsEqual(a, b factSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedPairs(m map[goal.Key]Pair) []Pair {
	r := make([]Pair, 0, len(m))
	for _, p := range m {
		r = append(r, p)
	}
	sort.Slice(r, func(i, j int) bool {
		if r[i].Definition.ID != r[j].Definition.ID {
			return r[i].Definition.ID < r[j].Definition.ID
		}
		return r[i].Use.ID < r[j].Use.ID
	})
	return r
}

func className(c *cfg.ClassCFG) string {
	if c == nil {
		return ""
	}
	return c.ClassName
}
