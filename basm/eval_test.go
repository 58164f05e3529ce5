package basm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	e, err := ParseExprString("test.basm", 1, src)
	require.NoError(t, err)
	return e
}

func TestEvalArithmetic(t *testing.T) {
	scope := NewScope(nil)
	ev := NewEvaluator(scope, NewInterner())

	res, err := ev.Eval(mustParse(t, "2 + 3 * 4"))
	require.NoError(t, err)
	require.False(t, res.IsDeferred())
	require.Equal(t, uint64(14), res.Word)
}

func TestEvalConstReference(t *testing.T) {
	scope := NewScope(nil)
	require.NoError(t, scope.Define(&Binding{
		Kind: BindConst, Name: "SIZE", Status: Unevaluated,
		Expr: mustParse(t, "4 * 10"),
	}))

	ev := NewEvaluator(scope, NewInterner())
	res, err := ev.Eval(mustParse(t, "SIZE + 1"))
	require.NoError(t, err)
	require.Equal(t, uint64(41), res.Word)
}

func TestEvalDeferredLabel(t *testing.T) {
	scope := NewScope(nil)
	require.NoError(t, scope.Define(&Binding{Kind: BindLabel, Name: "loop", Status: Deferred}))

	ev := NewEvaluator(scope, NewInterner())
	res, err := ev.Eval(mustParse(t, "loop"))
	require.NoError(t, err)
	require.True(t, res.IsDeferred())
	require.Equal(t, "loop", res.Deferred.Name)
}

func TestEvalCycleDetection(t *testing.T) {
	scope := NewScope(nil)
	a := &Binding{Kind: BindConst, Name: "A", Status: Unevaluated, Expr: mustParse(t, "B")}
	b := &Binding{Kind: BindConst, Name: "B", Status: Unevaluated, Expr: mustParse(t, "A")}
	require.NoError(t, scope.Define(a))
	require.NoError(t, scope.Define(b))

	ev := NewEvaluator(scope, NewInterner())
	_, err := ev.Eval(mustParse(t, "A"))
	require.ErrorIs(t, err, ErrCycle)
}

func TestEvalDivByZero(t *testing.T) {
	ev := NewEvaluator(NewScope(nil), NewInterner())
	_, err := ev.Eval(mustParse(t, "1 / 0"))
	require.ErrorIs(t, err, ErrDivByZero)
}

func TestEvalBuiltinLen(t *testing.T) {
	ev := NewEvaluator(NewScope(nil), NewInterner())
	res, err := ev.Eval(mustParse(t, `len("hello")`))
	require.NoError(t, err)
	require.Equal(t, uint64(5), res.Word)
}

func TestEvalBuiltinLenOfConstReference(t *testing.T) {
	scope := NewScope(nil)
	require.NoError(t, scope.Define(&Binding{
		Kind: BindConst, Name: "HELLO", Status: Unevaluated,
		Expr: mustParse(t, `"hello"`),
	}))

	ev := NewEvaluator(scope, NewInterner())
	res, err := ev.Eval(mustParse(t, "len(HELLO)"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), res.Word)
}

func TestEvalBuiltinByteArray(t *testing.T) {
	intern := NewInterner()
	ev := NewEvaluator(NewScope(nil), intern)
	res, err := ev.Eval(mustParse(t, "byte_array(4, 0x41)"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x41, 0x41, 0x41, 0x41}, intern.Data[res.Word:res.Word+4])
}

func TestEvalComparisons(t *testing.T) {
	ev := NewEvaluator(NewScope(nil), NewInterner())

	res, err := ev.Eval(mustParse(t, "3 < 5"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Word)

	res, err = ev.Eval(mustParse(t, "3 == 3"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Word)
}
