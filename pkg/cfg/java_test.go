package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-defuse/pkg/instr"
)

const accountSource = `package bank;

import java.util.List;

public class Account {
    private int balance;
    private List<String> log;
    static int instances = 0;

    public Account() { instances++; }

    public void deposit(int amount) {
        if (amount > 0) {
            balance = balance + amount;
            log.add("deposit");
        } else {
            log.size();
        }
    }

    public int sum(int n) {
        int s = 0;
        for (int i = 0; i < n; i++) {
            s += i;
        }
        return s;
    }
}
`

func parseOne(t *testing.T, src string) *ClassCFG {
	t.Helper()
	classes, err := ParseJava([]byte(src))
	require.NoError(t, err)
	require.Len(t, classes, 1)
	return classes[0]
}

func method(t *testing.T, c *ClassCFG, name string) *MethodCFG {
	t.Helper()
	m, ok := c.Method(name)
	require.True(t, ok, "method %s", name)
	return m
}

type shape struct {
	kind     instr.Kind
	variable string
	scope    instr.Scope
}

func shapes(m *MethodCFG) []shape {
	var r []shape
	for _, in := range m.Instructions() {
		r = append(r, shape{in.Kind, in.Variable, in.Scope})
	}
	return r
}

func TestParseJava_ClassLayout(t *testing.T) {
	c := parseOne(t, accountSource)
	assert.Equal(t, "bank.Account", c.ClassName)

	var names []string
	for _, m := range c.Methods() {
		names = append(names, m.MethodName)
	}
	assert.Equal(t, []string{"<clinit>", "<init>", "deposit", "sum"}, names)
	assert.True(t, method(t, c, "deposit").Access.Public)
	assert.True(t, method(t, c, instr.StaticInitializer).Access.Static)
}

func TestParseJava_StaticInitializer(t *testing.T) {
	c := parseOne(t, accountSource)
	assert.Equal(t, []shape{
		{instr.KindDefinition, "instances", instr.ScopeStatic},
		{instr.KindReturn, "", ""},
	}, shapes(method(t, c, instr.StaticInitializer)))

	assert.Equal(t, []shape{
		{instr.KindUse, "instances", instr.ScopeStatic},
		{instr.KindDefinition, "instances", instr.ScopeStatic},
		{instr.KindReturn, "", ""},
	}, shapes(method(t, c, "<init>")), "a field increment reads, then writes")
}

func TestParseJava_IfElse(t *testing.T) {
	m := method(t, parseOne(t, accountSource), "deposit")
	assert.Equal(t, []shape{
		{instr.KindUse, "amount", instr.ScopeLocal},
		{instr.KindBranch, "", ""},
		{instr.KindUse, "balance", instr.ScopeField},
		{instr.KindUse, "amount", instr.ScopeLocal},
		{instr.KindDefinition, "balance", instr.ScopeField},
		{instr.KindFieldMethodCall, "log", instr.ScopeField},
		{instr.KindFieldMethodCall, "log", instr.ScopeField},
		{instr.KindReturn, "", ""},
	}, shapes(m))

	assert.Equal(t, []Edge{
		{1, 2, EdgeTypeUnconditional},
		{2, 3, EdgeTypeTrue},
		{2, 7, EdgeTypeFalse},
		{3, 4, EdgeTypeUnconditional},
		{4, 5, EdgeTypeUnconditional},
		{5, 6, EdgeTypeUnconditional},
		{6, 8, EdgeTypeUnconditional},
		{7, 8, EdgeTypeUnconditional},
	}, m.Edges())

	br, _ := m.Instruction(2)
	assert.Equal(t, 1, br.BranchID)

	def, _ := m.Instruction(5)
	assert.Equal(t, &instr.ControlDependency{BranchID: 1, Outcome: true}, def.Control)
	alt, _ := m.Instruction(7)
	assert.Equal(t, &instr.ControlDependency{BranchID: 1, Outcome: false}, alt.Control)
	first, _ := m.Instruction(1)
	assert.True(t, first.IsRootBranchDependent())
	ret, _ := m.Instruction(8)
	assert.True(t, ret.IsRootBranchDependent())

	add, _ := m.Instruction(6)
	assert.Equal(t, "java.util.List", add.CalledClass)
	assert.Equal(t, "java.util.List.add(java.lang.String)", add.CalledSignature())
	size, _ := m.Instruction(7)
	assert.Equal(t, "java.util.List.size()", size.CalledSignature())
}

func TestParseJava_ForLoop(t *testing.T) {
	m := method(t, parseOne(t, accountSource), "sum")
	assert.Equal(t, []shape{
		{instr.KindDefinition, "s", instr.ScopeLocal},
		{instr.KindDefinition, "i", instr.ScopeLocal},
		{instr.KindUse, "i", instr.ScopeLocal},
		{instr.KindUse, "n", instr.ScopeLocal},
		{instr.KindBranch, "", ""},
		{instr.KindUse, "s", instr.ScopeLocal},
		{instr.KindUse, "i", instr.ScopeLocal},
		{instr.KindDefinition, "s", instr.ScopeLocal},
		{instr.KindIncrement, "i", instr.ScopeLocal},
		{instr.KindUse, "s", instr.ScopeLocal},
		{instr.KindReturn, "", ""},
	}, shapes(m))

	assert.ElementsMatch(t, []int{6, 10}, m.Successors(5))
	assert.Equal(t, []int{3}, m.Successors(9), "the update jumps back to the condition")
	assert.Equal(t, []int{11}, m.Exits())

	inc, _ := m.Instruction(9)
	assert.Equal(t, &instr.ControlDependency{BranchID: 2, Outcome: true}, inc.Control)
}

func TestParseJava_WhileBreak(t *testing.T) {
	c := parseOne(t, `
class Loop {
    int count;
    void run(int n) {
        while (n > 0) {
            if (n == 5) break;
            n--;
        }
        count = n;
    }
}`)
	assert.Equal(t, "Loop", c.ClassName)
	m := method(t, c, "run")
	assert.Equal(t, []shape{
		{instr.KindUse, "n", instr.ScopeLocal},
		{instr.KindBranch, "", ""},
		{instr.KindUse, "n", instr.ScopeLocal},
		{instr.KindBranch, "", ""},
		{instr.KindIncrement, "n", instr.ScopeLocal},
		{instr.KindUse, "n", instr.ScopeLocal},
		{instr.KindDefinition, "count", instr.ScopeField},
		{instr.KindReturn, "", ""},
	}, shapes(m))

	assert.ElementsMatch(t, []int{3, 6}, m.Successors(2))
	assert.ElementsMatch(t, []int{5, 6}, m.Successors(4), "break leaves the loop")
	assert.Equal(t, []int{1}, m.Successors(5))
	assert.ElementsMatch(t, []int{2, 4}, m.Predecessors(6))
}

func TestParseJava_CallsAndDoWhile(t *testing.T) {
	c := parseOne(t, `
class Calls {
    StringBuilder sb;
    int helper() { return 1; }
    void run(int x) {
        do {
            x = helper() + Math.abs(x);
        } while (x < 10);
        sb.append(x);
    }
}`)
	m := method(t, c, "run")
	var calls []*instr.Instruction
	for _, in := range m.Instructions() {
		if in.IsMethodCall() || in.IsMethodCallOfField() {
			calls = append(calls, in)
		}
	}
	require.Len(t, calls, 3)
	assert.True(t, calls[0].CallsOwnClass())
	assert.Equal(t, "helper", calls[0].CalledMethod)
	assert.Equal(t, "java.lang.Math.abs(int)", calls[1].CalledSignature())
	assert.True(t, calls[2].IsMethodCallOfField())
	assert.Equal(t, "sb", calls[2].Variable)
	assert.Equal(t, "java.lang.StringBuilder.append(int)", calls[2].CalledSignature())

	assert.Equal(t, []string{"helper"}, c.Callees("run"))

	var branch *instr.Instruction
	for _, in := range m.Instructions() {
		if in.IsBranch() {
			branch = in
		}
	}
	require.NotNil(t, branch)
	assert.Contains(t, m.Successors(branch.ID), 1, "the do loop repeats from its first instruction")
}

func TestParseJava_OverloadsAndInitializers(t *testing.T) {
	c := parseOne(t, `
class O {
    int x = 1;
    void f() {}
    void f(int y) { x = y; }
}`)
	var names []string
	for _, m := range c.Methods() {
		names = append(names, m.MethodName)
	}
	assert.Equal(t, []string{"<init>", "f", "f(int)"}, names)

	init := method(t, c, "<init>")
	assert.Equal(t, []shape{
		{instr.KindDefinition, "x", instr.ScopeField},
		{instr.KindReturn, "", ""},
	}, shapes(init))
	assert.Equal(t, 1, method(t, c, "f").Len(), "empty bodies still return")
}

func TestParseJava_NestedClasses(t *testing.T) {
	classes, err := ParseJava([]byte(`
package p;
class Outer {
    int a;
    class Inner { int b; void set() { b = 2; } }
}`))
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "p.Outer", classes[0].ClassName)
	assert.Equal(t, "p.Outer$Inner", classes[1].ClassName)
	in, ok := classes[1].Instruction("set", 1)
	require.True(t, ok)
	assert.True(t, in.IsFieldDefinition())
}

func TestParseJava_SyntaxError(t *testing.T) {
	_, err := ParseJava([]byte("class X { void m( { }"))
	assert.ErrorIs(t, err, ErrJavaSyntax)
}
