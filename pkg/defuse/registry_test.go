package defuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-defuse/pkg/instr"
)

func ins(id int, method string, kind instr.Kind, variable string, scope instr.Scope) *instr.Instruction {
	return &instr.Instruction{
		ID:         id,
		ClassName:  "Account",
		MethodName: method,
		Kind:       kind,
		Variable:   variable,
		Scope:      scope,
	}
}

func TestRegistry_CountersStartAtOne(t *testing.T) {
	r := NewRegistry()
	def := ins(1, "set", instr.KindDefinition, "balance", instr.ScopeField)
	use := ins(2, "get", instr.KindUse, "balance", instr.ScopeField)

	ok, err := r.RegisterDefinition(def)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.RegisterUse(use)
	require.NoError(t, err)
	assert.True(t, ok)

	d, found := r.DefinitionFor(def)
	require.True(t, found)
	assert.Equal(t, 1, d.ID)
	assert.Equal(t, 1, d.DUID)
	u, found := r.UseFor(use)
	require.True(t, found)
	assert.Equal(t, 1, u.ID)
	assert.Equal(t, 2, u.DUID)

	defs, uses, dus := r.Counters()
	assert.Equal(t, []int{1, 1, 2}, []int{defs, uses, dus})
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	def := ins(1, "set", instr.KindDefinition, "balance", instr.ScopeField)
	_, err := r.RegisterDefinition(def)
	require.NoError(t, err)

	ok, err := r.RegisterDefinition(def)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, r.Definitions(), 1)
}

func TestRegistry_WrongKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterDefinition(ins(1, "get", instr.KindUse, "balance", instr.ScopeField))
	assert.ErrorIs(t, err, ErrIllegalArgument)
	_, err = r.RegisterUse(ins(2, "set", instr.KindDefinition, "balance", instr.ScopeField))
	assert.ErrorIs(t, err, ErrIllegalArgument)
	_, err = r.RegisterFieldMethodCall(ins(3, "get", instr.KindUse, "log", instr.ScopeField))
	assert.ErrorIs(t, err, ErrIllegalArgument)
	_, err = r.RegisterUse(nil)
	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestRegistry_NotInstrumentable(t *testing.T) {
	r := NewRegistry()
	in := ins(1, "set", instr.KindDefinition, "balance", instr.ScopeField)
	in.NotInstrumentable = true

	ok, err := r.RegisterDefinition(in)
	assert.NoError(t, err)
	assert.False(t, ok)
	_, _, dus := r.Counters()
	assert.Zero(t, dus)
}

func TestRegistry_ParameterUse(t *testing.T) {
	r := NewRegistry()
	param := ins(1, "set", instr.KindUse, "v", instr.ScopeLocal)
	_, err := r.RegisterUse(param)
	require.NoError(t, err)

	_, err = r.RegisterDefinition(ins(2, "sum", instr.KindDefinition, "s", instr.ScopeLocal))
	require.NoError(t, err)
	local := ins(3, "sum", instr.KindUse, "s", instr.ScopeLocal)
	_, err = r.RegisterUse(local)
	require.NoError(t, err)

	field := ins(1, "get", instr.KindUse, "balance", instr.ScopeField)
	_, err = r.RegisterUse(field)
	require.NoError(t, err)

	params := r.ParameterUses()
	require.Len(t, params, 1)
	assert.Equal(t, "v", params[0].Variable)
	assert.True(t, params[0].ParameterUse)

	u, _ := r.UseFor(local)
	assert.False(t, u.ParameterUse)
	assert.True(t, r.KnowsDefinitionFor("Account", "sum", "s"))
	assert.False(t, r.KnowsDefinitionFor("Account", "set", "v"))
}

func TestRegistry_Increment(t *testing.T) {
	r := NewRegistry()
	inc := ins(4, "sum", instr.KindIncrement, "i", instr.ScopeLocal)

	ok, err := r.RegisterUse(inc)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.RegisterDefinition(inc)
	require.NoError(t, err)
	require.True(t, ok)

	d, _ := r.DefinitionFor(inc)
	u, _ := r.UseFor(inc)
	assert.Equal(t, d.DUID, u.DUID, "both roles share one def-use ID")
	_, _, dus := r.Counters()
	assert.Equal(t, 1, dus)
}

func TestRegistry_FieldMethodCall(t *testing.T) {
	r := NewRegistry()
	call := ins(5, "deposit", instr.KindFieldMethodCall, "log", instr.ScopeField)
	call.CalledClass = "java.util.List"
	call.CalledMethod = "add"

	ok, err := r.RegisterFieldMethodCall(call)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []*instr.Instruction{call}, r.FieldMethodCalls())
	duID, ok := r.DUID(call)
	require.True(t, ok)

	require.NoError(t, r.CommitFieldMethodCall(call, true))
	assert.Empty(t, r.FieldMethodCalls())

	d, ok := r.DefinitionFor(call)
	require.True(t, ok)
	assert.True(t, d.FieldMethodCall)
	assert.Equal(t, duID, d.DUID)
	_, ok = r.UseFor(call)
	assert.False(t, ok)

	err = r.CommitFieldMethodCall(call, false)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestRegistry_CommitUnregistered(t *testing.T) {
	r := NewRegistry()
	call := ins(5, "deposit", instr.KindFieldMethodCall, "log", instr.ScopeField)
	assert.ErrorIs(t, r.CommitFieldMethodCall(call, false), ErrIllegalState)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	def := ins(1, "set", instr.KindDefinition, "balance", instr.ScopeField)
	_, err := r.RegisterDefinition(def)
	require.NoError(t, err)
	old, _ := r.DefinitionFor(def)
	assert.True(t, r.IsCurrent(old))
	assert.Equal(t, uint64(1), old.Generation)

	r.Clear()
	assert.Equal(t, uint64(2), r.Generation())
	assert.False(t, r.IsCurrent(old))
	assert.Empty(t, r.Definitions())
	defs, uses, dus := r.Counters()
	assert.Equal(t, []int{0, 0, 0}, []int{defs, uses, dus})

	_, err = r.RegisterDefinition(def)
	require.NoError(t, err)
	fresh, _ := r.DefinitionFor(def)
	assert.Equal(t, 1, fresh.ID)
	assert.Equal(t, old.ID, fresh.ID)
	assert.False(t, r.IsCurrent(old), "an equal ID from an older generation does not resolve")
	assert.True(t, r.IsCurrent(fresh))
}

func TestRegistry_Lookups(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"a", "b", "c"} {
		_, err := r.RegisterDefinition(ins(i+1, "init", instr.KindDefinition, name, instr.ScopeField))
		require.NoError(t, err)
	}
	defs := r.Definitions()
	require.Len(t, defs, 3)
	for i, d := range defs {
		assert.Equal(t, i+1, d.ID)
	}
	d, ok := r.DefinitionByID(2)
	require.True(t, ok)
	assert.Equal(t, "b", d.Variable)
	_, ok = r.UseByID(1)
	assert.False(t, ok)
	assert.False(t, r.IsCurrent(nil))
}

func TestDefUse_SpecialDefinition(t *testing.T) {
	r := NewRegistry()
	in := ins(1, instr.StaticInitializer, instr.KindDefinition, "instances", instr.ScopeStatic)
	_, err := r.RegisterDefinition(in)
	require.NoError(t, err)
	d, _ := r.DefinitionFor(in)
	assert.True(t, d.IsSpecialDefinition())
	assert.True(t, d.IsStatic())
	assert.True(t, d.IsField())
	assert.Equal(t, "Definition", d.Kind.String())
}
