package cfg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/l3aro/go-defuse/pkg/instr"
)

// ErrJavaSyntax is returned for Java sources tree-sitter cannot parse
// cleanly.
var ErrJavaSyntax = errors.New("java syntax error")

// unknownReceiver is the called class of calls whose receiver type cannot
// be derived from the source.
const unknownReceiver = "java.lang.Object"

var javaLang = map[string]bool{
	"Object": true, "String": true, "StringBuilder": true, "StringBuffer": true,
	"CharSequence": true, "Integer": true, "Long": true, "Short": true, "Byte": true,
	"Double": true, "Float": true, "Character": true, "Boolean": true, "Number": true,
	"Math": true, "System": true, "Iterable": true, "Comparable": true,
}

var javaPrimitives = map[string]bool{
	"int": true, "long": true, "short": true, "byte": true, "char": true,
	"boolean": true, "float": true, "double": true, "void": true,
}

// ParseJavaFile parses a Java source file. See ParseJava.
func ParseJavaFile(path string) ([]*ClassCFG, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	classes, err := ParseJava(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return classes, nil
}

// ParseJava builds the instruction-level graphs of every class declared in
// src. Local and field reads and writes become uses and definitions, x++ on
// a local an increment, calls on fields field method calls, and if, loop,
// switch and conditional expressions branches with control dependencies.
// Static field initializers and static blocks form <clinit>, instance field
// initializers run at the start of every constructor.
func ParseJava(src []byte) ([]*ClassCFG, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing java source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w near line %d", ErrJavaSyntax, firstError(root))
	}

	p := &javaParser{
		src:      src,
		imports:  make(map[string]string),
		declared: make(map[string]string),
	}
	p.scanHeader(root)

	var decls []javaDecl
	p.collectClasses(root, "", &decls)

	var classes []*ClassCFG
	for _, d := range decls {
		c, err := p.class(d.node, d.name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func firstError(n *sitter.Node) int {
	if n.Type() == "ERROR" || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.HasError() {
			return firstError(c)
		}
	}
	return int(n.StartPoint().Row) + 1
}

type javaField struct {
	typ    string
	static bool
}

type javaParser struct {
	src      []byte
	pkg      string
	imports  map[string]string // simple name -> qualified name
	declared map[string]string // simple name -> qualified name of classes in src
}

func (p *javaParser) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(p.src)
}

func (p *javaParser) scanHeader(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "package_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				if c := n.NamedChild(j); c.Type() == "scoped_identifier" || c.Type() == "identifier" {
					p.pkg = p.text(c)
				}
			}
		case "import_declaration":
			text := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(p.text(n), "import"), ";"))
			if strings.HasPrefix(text, "static ") || strings.HasSuffix(text, "*") {
				continue
			}
			if i := strings.LastIndex(text, "."); i >= 0 {
				p.imports[text[i+1:]] = text
			}
		}
	}
}

type javaDecl struct {
	node *sitter.Node
	name string
}

// collectClasses lists the class declarations under their binary names:
// top-level classes are qualified with the package, nested classes joined
// with $.
func (p *javaParser) collectClasses(n *sitter.Node, outer string, out *[]javaDecl) {
	if n.Type() == "class_declaration" {
		simple := p.text(n.ChildByFieldName("name"))
		name := simple
		switch {
		case outer != "":
			name = outer + "$" + simple
		case p.pkg != "":
			name = p.pkg + "." + simple
		}
		*out = append(*out, javaDecl{node: n, name: name})
		p.declared[simple] = name
		outer = name
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p.collectClasses(n.NamedChild(i), outer, out)
	}
}

// qualify resolves a source type name the way the purity table spells it.
func (p *javaParser) qualify(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.Index(t, "<"); i >= 0 {
		t = t[:i]
	}
	switch {
	case t == "" || javaPrimitives[t] || strings.HasSuffix(t, "]"):
		return t
	case p.imports[t] != "":
		return p.imports[t]
	case p.declared[t] != "":
		return p.declared[t]
	case javaLang[t]:
		return "java.lang." + t
	}
	return t
}

func (p *javaParser) modifiers(decl *sitter.Node) (public, static bool) {
	for i := 0; i < int(decl.ChildCount()); i++ {
		c := decl.Child(i)
		if c.Type() != "modifiers" {
			continue
		}
		for _, tok := range strings.Fields(p.text(c)) {
			switch tok {
			case "public":
				public = true
			case "static":
				static = true
			}
		}
	}
	return public, static
}

func (p *javaParser) class(decl *sitter.Node, name string) (*ClassCFG, error) {
	info := &javaClass{name: name, fields: make(map[string]javaField)}
	body := decl.ChildByFieldName("body")
	if body == nil {
		return NewClassCFG(name), nil
	}

	var staticInits, instanceInits []*sitter.Node
	var members []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		switch m.Type() {
		case "field_declaration":
			_, static := p.modifiers(m)
			typ := p.qualify(p.text(m.ChildByFieldName("type")))
			for j := 0; j < int(m.NamedChildCount()); j++ {
				d := m.NamedChild(j)
				if d.Type() != "variable_declarator" {
					continue
				}
				info.fields[p.text(d.ChildByFieldName("name"))] = javaField{typ: typ, static: static}
				if d.ChildByFieldName("value") == nil {
					continue
				}
				if static {
					staticInits = append(staticInits, d)
				} else {
					instanceInits = append(instanceInits, d)
				}
			}
		case "static_initializer":
			staticInits = append(staticInits, m)
		case "method_declaration", "constructor_declaration":
			members = append(members, m)
		}
	}

	c := NewClassCFG(name)
	branches := 0
	hasConstructor := false
	for _, m := range members {
		b := newJavaMethod(p, info, &branches)
		public, static := p.modifiers(m)
		methodName := p.text(m.ChildByFieldName("name"))
		if m.Type() == "constructor_declaration" {
			methodName = "<init>"
			hasConstructor = true
		}
		params := b.parameters(m.ChildByFieldName("parameters"))
		if _, dup := c.Method(methodName); dup {
			methodName += "(" + strings.Join(params, ",") + ")"
		}
		b.m = NewMethodCFG(name, methodName, Access{Public: public, Static: static})
		if mbody := m.ChildByFieldName("body"); mbody != nil {
			if m.Type() == "constructor_declaration" {
				b.initializers(instanceInits)
			}
			b.statement(mbody)
			b.finish()
		}
		if b.err != nil {
			return nil, b.err
		}
		if err := c.AddMethod(b.m); err != nil {
			return nil, err
		}
	}
	if !hasConstructor && len(instanceInits) > 0 {
		b := newJavaMethod(p, info, &branches)
		b.m = NewMethodCFG(name, "<init>", Access{Public: true})
		b.initializers(instanceInits)
		b.finish()
		if b.err != nil {
			return nil, b.err
		}
		if err := c.AddMethod(b.m); err != nil {
			return nil, err
		}
	}
	if len(staticInits) > 0 {
		b := newJavaMethod(p, info, &branches)
		b.m = NewMethodCFG(name, instr.StaticInitializer, Access{Static: true})
		b.initializers(staticInits)
		b.finish()
		if b.err != nil {
			return nil, b.err
		}
		if err := c.AddMethod(b.m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type javaClass struct {
	name   string
	fields map[string]javaField
}

type pendingEdge struct {
	from int
	typ  EdgeType
}

// jumpTarget collects the edges leaving a loop or switch early.
type jumpTarget struct {
	loop      bool
	breaks    []pendingEdge
	continues []pendingEdge
}

// javaMethod lowers one method body to instructions. Every emitted
// instruction receives an edge from each pending edge; statements that
// transfer control elsewhere leave nothing pending.
type javaMethod struct {
	p        *javaParser
	class    *javaClass
	m        *MethodCFG
	branches *int
	nextID   int
	locals   map[string]string // name -> qualified type
	control  *instr.ControlDependency
	pending  []pendingEdge
	jumps    []*jumpTarget
	err      error
}

func newJavaMethod(p *javaParser, class *javaClass, branches *int) *javaMethod {
	return &javaMethod{p: p, class: class, branches: branches, locals: make(map[string]string)}
}

func (b *javaMethod) fail(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

func (b *javaMethod) emit(in *instr.Instruction, n *sitter.Node) int {
	b.nextID++
	in.ID = b.nextID
	if n != nil {
		in.Line = int(n.StartPoint().Row) + 1
	}
	if b.control != nil {
		cd := *b.control
		in.Control = &cd
	}
	b.fail(b.m.AddInstruction(in))
	for _, e := range b.pending {
		b.fail(b.m.AddEdge(e.from, in.ID, e.typ))
	}
	b.pending = []pendingEdge{{from: in.ID, typ: EdgeTypeUnconditional}}
	return in.ID
}

// link connects the pending edges to an already emitted instruction.
func (b *javaMethod) link(edges []pendingEdge, to int) {
	for _, e := range edges {
		t := e.typ
		if t == EdgeTypeUnconditional {
			t = EdgeTypeBackEdge
		}
		b.fail(b.m.AddEdge(e.from, to, t))
	}
}

func (b *javaMethod) finish() {
	if len(b.pending) > 0 || b.m.Len() == 0 {
		b.emit(&instr.Instruction{Kind: instr.KindReturn}, nil)
	}
	b.pending = nil
}

func (b *javaMethod) parameters(n *sitter.Node) []string {
	var types []string
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		param := n.NamedChild(i)
		if param.Type() != "formal_parameter" && param.Type() != "spread_parameter" {
			continue
		}
		typ := b.p.qualify(b.p.text(param.ChildByFieldName("type")))
		name := param.ChildByFieldName("name")
		if name == nil {
			// spread parameters keep the name in a declarator
			for j := 0; j < int(param.NamedChildCount()); j++ {
				if d := param.NamedChild(j); d.Type() == "variable_declarator" {
					name = d.ChildByFieldName("name")
				}
			}
		}
		if name != nil {
			b.locals[b.p.text(name)] = typ
		}
		types = append(types, typ)
	}
	return types
}

func (b *javaMethod) initializers(inits []*sitter.Node) {
	for _, n := range inits {
		if n.Type() == "static_initializer" {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				b.statement(n.NamedChild(i))
			}
			continue
		}
		b.expression(n.ChildByFieldName("value"))
		b.write(n.ChildByFieldName("name"), n, true)
	}
}

func (b *javaMethod) newBranch(n *sitter.Node) int {
	*b.branches++
	id := *b.branches
	b.emit(&instr.Instruction{Kind: instr.KindBranch, BranchID: id}, n)
	return id
}

func (b *javaMethod) under(branchID int, outcome bool, body func()) {
	saved := b.control
	b.control = &instr.ControlDependency{BranchID: branchID, Outcome: outcome}
	body()
	b.control = saved
}

func (b *javaMethod) statement(n *sitter.Node) {
	if n == nil || b.err != nil {
		return
	}
	switch n.Type() {
	case "block", "constructor_body":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.statement(n.NamedChild(i))
		}
	case "local_variable_declaration":
		typ := b.p.qualify(b.p.text(n.ChildByFieldName("type")))
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			name := d.ChildByFieldName("name")
			b.locals[b.p.text(name)] = typ
			if v := d.ChildByFieldName("value"); v != nil {
				b.expression(v)
				b.write(name, d, false)
			}
		}
	case "expression_statement", "parenthesized_expression":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.expression(n.NamedChild(i))
		}
	case "if_statement":
		b.ifStatement(n)
	case "while_statement":
		b.whileStatement(n)
	case "do_statement":
		b.doStatement(n)
	case "for_statement":
		b.forStatement(n)
	case "enhanced_for_statement":
		b.enhancedFor(n)
	case "switch_expression", "switch_statement":
		b.switchStatement(n)
	case "return_statement", "throw_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.expression(n.NamedChild(i))
		}
		kind := instr.KindReturn
		if n.Type() == "throw_statement" {
			kind = instr.KindPlain
		}
		b.emit(&instr.Instruction{Kind: kind}, n)
		b.pending = nil
	case "break_statement":
		if t := b.innermost(false); t != nil {
			t.breaks = append(t.breaks, b.pending...)
		}
		b.pending = nil
	case "continue_statement":
		if t := b.innermost(true); t != nil {
			t.continues = append(t.continues, b.pending...)
		}
		b.pending = nil
	case "labeled_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() != "identifier" {
				b.statement(c)
			}
		}
	case "try_statement", "try_with_resources_statement":
		b.tryStatement(n)
	case "synchronized_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.statement(n.NamedChild(i))
		}
	case "local_class_declaration", "class_declaration", "line_comment", "block_comment", ";":
	default:
		b.expression(n)
	}
}

func (b *javaMethod) innermost(loop bool) *jumpTarget {
	for i := len(b.jumps) - 1; i >= 0; i-- {
		if !loop || b.jumps[i].loop {
			return b.jumps[i]
		}
	}
	return nil
}

func (b *javaMethod) push(loop bool) *jumpTarget {
	t := &jumpTarget{loop: loop}
	b.jumps = append(b.jumps, t)
	return t
}

func (b *javaMethod) pop() { b.jumps = b.jumps[:len(b.jumps)-1] }

func (b *javaMethod) ifStatement(n *sitter.Node) {
	b.expression(n.ChildByFieldName("condition"))
	br := b.newBranch(n)
	branchID := *b.branches

	b.pending = []pendingEdge{{from: br, typ: EdgeTypeTrue}}
	b.under(branchID, true, func() { b.statement(n.ChildByFieldName("consequence")) })
	afterTrue := b.pending

	b.pending = []pendingEdge{{from: br, typ: EdgeTypeFalse}}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		b.under(branchID, false, func() { b.statement(alt) })
	}
	b.pending = append(afterTrue, b.pending...)
}

func (b *javaMethod) whileStatement(n *sitter.Node) {
	head := b.nextID + 1
	b.expression(n.ChildByFieldName("condition"))
	br := b.newBranch(n)
	branchID := *b.branches

	t := b.push(true)
	b.pending = []pendingEdge{{from: br, typ: EdgeTypeTrue}}
	b.under(branchID, true, func() { b.statement(n.ChildByFieldName("body")) })
	b.link(append(b.pending, t.continues...), head)
	b.pop()
	b.pending = append([]pendingEdge{{from: br, typ: EdgeTypeFalse}}, t.breaks...)
}

func (b *javaMethod) doStatement(n *sitter.Node) {
	head := b.nextID + 1
	t := b.push(true)
	b.statement(n.ChildByFieldName("body"))
	b.pending = append(b.pending, t.continues...)
	b.expression(n.ChildByFieldName("condition"))
	br := b.newBranch(n)
	b.pop()
	b.fail(b.m.AddEdge(br, head, EdgeTypeTrue))
	b.pending = append([]pendingEdge{{from: br, typ: EdgeTypeFalse}}, t.breaks...)
}

func (b *javaMethod) forStatement(n *sitter.Node) {
	cond := n.ChildByFieldName("condition")
	body := n.ChildByFieldName("body")

	var inits, updates []*sitter.Node
	semis := 0
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.Type() == ";":
			semis++
		case c.Type() == "local_variable_declaration":
			inits = append(inits, c)
			semis++
		case !c.IsNamed() || sameNode(c, cond) || sameNode(c, body):
		case semis == 0:
			inits = append(inits, c)
		case semis >= 2:
			updates = append(updates, c)
		}
	}
	for _, c := range inits {
		b.statement(c)
	}

	head := b.nextID + 1
	branchID := 0
	var br int
	if cond != nil {
		b.expression(cond)
		br = b.newBranch(n)
		branchID = *b.branches
		b.pending = []pendingEdge{{from: br, typ: EdgeTypeTrue}}
	} else {
		b.emit(&instr.Instruction{Kind: instr.KindPlain}, n)
	}

	t := b.push(true)
	loopBody := func() {
		b.statement(body)
		b.pending = append(b.pending, t.continues...)
		for _, u := range updates {
			b.expression(u)
		}
	}
	if cond != nil {
		b.under(branchID, true, loopBody)
	} else {
		loopBody()
	}
	b.link(b.pending, head)
	b.pop()
	b.pending = t.breaks
	if cond != nil {
		b.pending = append([]pendingEdge{{from: br, typ: EdgeTypeFalse}}, t.breaks...)
	}
}

func (b *javaMethod) enhancedFor(n *sitter.Node) {
	b.expression(n.ChildByFieldName("value"))
	head := b.nextID + 1
	br := b.newBranch(n)
	branchID := *b.branches

	t := b.push(true)
	b.pending = []pendingEdge{{from: br, typ: EdgeTypeTrue}}
	b.under(branchID, true, func() {
		name := n.ChildByFieldName("name")
		b.locals[b.p.text(name)] = b.p.qualify(b.p.text(n.ChildByFieldName("type")))
		b.write(name, n, false)
		b.statement(n.ChildByFieldName("body"))
	})
	b.link(append(b.pending, t.continues...), head)
	b.pop()
	b.pending = append([]pendingEdge{{from: br, typ: EdgeTypeFalse}}, t.breaks...)
}

// switchStatement lowers a switch to a chain of case branches. A case body
// that completes normally falls through into the next body.
func (b *javaMethod) switchStatement(n *sitter.Node) {
	b.expression(n.ChildByFieldName("condition"))
	block := n.ChildByFieldName("body")
	if block == nil {
		return
	}
	t := b.push(false)
	next := b.pending
	var fallthru []pendingEdge
	for i := 0; i < int(block.NamedChildCount()); i++ {
		group := block.NamedChild(i)
		if group.Type() != "switch_block_statement_group" && group.Type() != "switch_rule" {
			continue
		}
		isDefault := strings.HasPrefix(strings.TrimSpace(b.p.text(group)), "default")
		b.pending = next
		if isDefault {
			b.pending = append(b.pending, fallthru...)
			next = nil
			b.caseBody(group)
		} else {
			br := b.newBranch(group)
			branchID := *b.branches
			next = []pendingEdge{{from: br, typ: EdgeTypeFalse}}
			b.pending = append([]pendingEdge{{from: br, typ: EdgeTypeTrue}}, fallthru...)
			b.under(branchID, true, func() { b.caseBody(group) })
		}
		fallthru = b.pending
		if group.Type() == "switch_rule" {
			// arrow cases never fall through
			t.breaks = append(t.breaks, fallthru...)
			fallthru = nil
		}
	}
	b.pop()
	b.pending = append(append(next, fallthru...), t.breaks...)
}

func (b *javaMethod) caseBody(group *sitter.Node) {
	for i := 0; i < int(group.NamedChildCount()); i++ {
		if c := group.NamedChild(i); c.Type() != "switch_label" {
			b.statement(c)
		}
	}
}

func (b *javaMethod) tryStatement(n *sitter.Node) {
	if res := n.ChildByFieldName("resources"); res != nil {
		for i := 0; i < int(res.NamedChildCount()); i++ {
			r := res.NamedChild(i)
			if v := r.ChildByFieldName("value"); v != nil {
				b.expression(v)
				name := r.ChildByFieldName("name")
				b.locals[b.p.text(name)] = b.p.qualify(b.p.text(r.ChildByFieldName("type")))
				b.write(name, r, false)
			}
		}
	}
	entry := append([]pendingEdge(nil), b.pending...)
	b.statement(n.ChildByFieldName("body"))
	exits := b.pending

	var finally *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "catch_clause":
			// handlers are entered from the start of the protected block
			b.pending = append([]pendingEdge(nil), entry...)
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if p := c.NamedChild(j); p.Type() == "catch_formal_parameter" {
					name := p.ChildByFieldName("name")
					b.locals[b.p.text(name)] = "java.lang.Throwable"
					b.write(name, p, false)
				}
			}
			b.statement(c.ChildByFieldName("body"))
			exits = append(exits, b.pending...)
		case "finally_clause":
			finally = c
		}
	}
	b.pending = exits
	if finally != nil {
		for i := 0; i < int(finally.NamedChildCount()); i++ {
			b.statement(finally.NamedChild(i))
		}
	}
}

func sameNode(a, c *sitter.Node) bool {
	return a != nil && c != nil && a.StartByte() == c.StartByte() && a.EndByte() == c.EndByte() && a.Type() == c.Type()
}

// variable resolves a name or this.name to a local or a field.
func (b *javaMethod) variable(n *sitter.Node) (name string, scope instr.Scope, typ string, ok bool) {
	if n == nil {
		return "", instr.ScopeNone, "", false
	}
	switch n.Type() {
	case "identifier":
		name = b.p.text(n)
		if t, local := b.locals[name]; local {
			return name, instr.ScopeLocal, t, true
		}
		return b.field(name)
	case "field_access":
		if obj := n.ChildByFieldName("object"); obj != nil && obj.Type() == "this" {
			return b.field(b.p.text(n.ChildByFieldName("field")))
		}
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return b.variable(n.NamedChild(0))
		}
	}
	return "", instr.ScopeNone, "", false
}

func (b *javaMethod) field(name string) (string, instr.Scope, string, bool) {
	f, ok := b.class.fields[name]
	if !ok {
		return "", instr.ScopeNone, "", false
	}
	if f.static {
		return name, instr.ScopeStatic, f.typ, true
	}
	return name, instr.ScopeField, f.typ, true
}

func (b *javaMethod) read(n *sitter.Node) bool {
	name, scope, _, ok := b.variable(n)
	if ok {
		b.emit(&instr.Instruction{Kind: instr.KindUse, Variable: name, Scope: scope}, n)
	}
	return ok
}

// write records a store to the variable n names. Declarations always name
// a local or, for initializers, a field.
func (b *javaMethod) write(n, at *sitter.Node, field bool) {
	var (
		name  string
		scope instr.Scope
		ok    bool
	)
	if field {
		name, scope, _, ok = b.field(b.p.text(n))
	} else {
		name, scope, _, ok = b.variable(n)
	}
	if !ok {
		// array elements and fields of other objects
		b.expression(n)
		return
	}
	b.emit(&instr.Instruction{Kind: instr.KindDefinition, Variable: name, Scope: scope}, at)
}

func (b *javaMethod) expression(n *sitter.Node) {
	if n == nil || b.err != nil {
		return
	}
	switch n.Type() {
	case "identifier", "field_access":
		if !b.read(n) && n.Type() == "field_access" {
			b.expression(n.ChildByFieldName("object"))
		}
	case "assignment_expression":
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if op := n.ChildByFieldName("operator"); op != nil && b.p.text(op) != "=" {
			b.read(left)
		}
		b.expression(right)
		b.write(left, n, false)
	case "update_expression":
		var target *sitter.Node
		if n.NamedChildCount() > 0 {
			target = n.NamedChild(0)
		}
		name, scope, _, ok := b.variable(target)
		switch {
		case !ok:
			b.expression(target)
		case scope == instr.ScopeLocal:
			b.emit(&instr.Instruction{Kind: instr.KindIncrement, Variable: name, Scope: scope}, n)
		default:
			b.emit(&instr.Instruction{Kind: instr.KindUse, Variable: name, Scope: scope}, n)
			b.emit(&instr.Instruction{Kind: instr.KindDefinition, Variable: name, Scope: scope}, n)
		}
	case "method_invocation":
		b.call(n)
	case "ternary_expression":
		b.expression(n.ChildByFieldName("condition"))
		br := b.newBranch(n)
		branchID := *b.branches
		b.pending = []pendingEdge{{from: br, typ: EdgeTypeTrue}}
		b.under(branchID, true, func() { b.expression(n.ChildByFieldName("consequence")) })
		afterTrue := b.pending
		b.pending = []pendingEdge{{from: br, typ: EdgeTypeFalse}}
		b.under(branchID, false, func() { b.expression(n.ChildByFieldName("alternative")) })
		b.pending = append(afterTrue, b.pending...)
	case "object_creation_expression":
		b.arguments(n.ChildByFieldName("arguments"))
		b.emit(&instr.Instruction{
			Kind:         instr.KindMethodCall,
			CalledClass:  b.p.qualify(b.p.text(n.ChildByFieldName("type"))),
			CalledMethod: "<init>",
		}, n)
	case "lambda_expression", "class_body", "method_reference", "this", "super":
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.expression(n.NamedChild(i))
		}
	}
}

func (b *javaMethod) arguments(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	types := make([]string, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		arg := n.NamedChild(i)
		b.expression(arg)
		types = append(types, b.typeOf(arg))
	}
	return types
}

func (b *javaMethod) typeOf(n *sitter.Node) string {
	switch n.Type() {
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		if strings.HasSuffix(strings.ToLower(b.p.text(n)), "l") {
			return "long"
		}
		return "int"
	case "decimal_floating_point_literal":
		if strings.HasSuffix(strings.ToLower(b.p.text(n)), "f") {
			return "float"
		}
		return "double"
	case "string_literal":
		return "java.lang.String"
	case "character_literal":
		return "char"
	case "true", "false":
		return "boolean"
	}
	if _, _, typ, ok := b.variable(n); ok {
		return typ
	}
	return unknownReceiver
}

func (b *javaMethod) call(n *sitter.Node) {
	obj := n.ChildByFieldName("object")
	in := &instr.Instruction{Kind: instr.KindMethodCall, CalledMethod: b.p.text(n.ChildByFieldName("name"))}

	name, scope, typ, isVar := b.variable(obj)
	switch {
	case obj == nil || obj.Type() == "this":
		in.CalledClass = b.class.name
	case isVar && scope != instr.ScopeLocal:
		in.Kind = instr.KindFieldMethodCall
		in.Variable, in.Scope, in.CalledClass = name, scope, typ
	case isVar:
		b.read(obj)
		in.CalledClass = typ
	case obj.Type() == "identifier":
		// static call on a class name
		in.CalledClass = b.p.qualify(b.p.text(obj))
	default:
		b.expression(obj)
		in.CalledClass = unknownReceiver
	}
	in.ParamTypes = b.arguments(n.ChildByFieldName("arguments"))
	b.emit(in, n)
}
