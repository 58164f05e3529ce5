package verifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bm/bm"
)

func TestVerifyAcceptsWellTypedProgram(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(10)},
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(20)},
			{Opcode: bm.PLUSI},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeSigned, bm.TypeSigned, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.Nil(t, fault)
}

func TestVerifyRejectsTypeMismatch(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromFloat64(1.0)},
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(1)},
			{Opcode: bm.PLUSI},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeFloat, bm.TypeSigned, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.NotNil(t, fault)
	require.ErrorIs(t, fault, ErrTypeMismatch)
	require.Equal(t, bm.TypeSigned, fault.Expected)
	require.Equal(t, bm.TypeFloat, fault.Actual)
	require.Equal(t, uint64(0), fault.OriginIdx)
}

func TestVerifyRejectsStackUnderflow(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PLUSI},
		},
	}
	fault, err := Verify(img, []bm.Type{bm.TypeAny})
	require.NoError(t, err)
	require.NotNil(t, fault)
	require.ErrorIs(t, fault, ErrStackUnderflow)
}

func TestVerifyRefusesControlFlow(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.JMP, Operand: bm.WordFromUint64(0)},
		},
	}
	_, err := Verify(img, []bm.Type{bm.TypeAny})
	require.ErrorIs(t, err, ErrUnsupportedControlFlow)
}

func TestVerifyAcceptsDupWithinDepth(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(10)},
			{Opcode: bm.DUP, Operand: bm.WordFromUint64(0)},
			{Opcode: bm.PLUSI},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeSigned, bm.TypeAny, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.Nil(t, fault)
}

func TestVerifyRejectsDupBeyondDepth(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(1)},
			{Opcode: bm.DUP, Operand: bm.WordFromUint64(5)},
			{Opcode: bm.PLUSI},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeSigned, bm.TypeAny, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.NotNil(t, fault)
	require.ErrorIs(t, fault, ErrStackUnderflow)
}

func TestVerifySwapExchangesFrameTypes(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromFloat64(1.5)},
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(2)},
			{Opcode: bm.SWAP, Operand: bm.WordFromUint64(1)},
			{Opcode: bm.F2I},
			{Opcode: bm.PLUSI},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeFloat, bm.TypeSigned, bm.TypeAny, bm.TypeAny, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.Nil(t, fault)
}

func TestVerifyRejectsSwapBeyondDepth(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(1)},
			{Opcode: bm.SWAP, Operand: bm.WordFromUint64(3)},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeSigned, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.NotNil(t, fault)
	require.ErrorIs(t, fault, ErrStackUnderflow)
}

func TestVerifyDropAcceptsAnyType(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromFloat64(3.14)},
			{Opcode: bm.DROP},
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(1)},
			{Opcode: bm.DROP},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{bm.TypeFloat, bm.TypeAny, bm.TypeSigned, bm.TypeAny, bm.TypeAny}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.Nil(t, fault)
}

func TestVerifyRejectsDropOnEmptyStack(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.DROP},
		},
	}
	fault, err := Verify(img, []bm.Type{bm.TypeAny})
	require.NoError(t, err)
	require.NotNil(t, fault)
	require.ErrorIs(t, fault, ErrStackUnderflow)
}

func TestVerifyAcceptsMemoryRoundTrip(t *testing.T) {
	img := &bm.Image{
		Program: []bm.Instruction{
			{Opcode: bm.PUSH, Operand: bm.WordFromUint64(0)},   // addr
			{Opcode: bm.PUSH, Operand: bm.WordFromInt64(42)},   // value
			{Opcode: bm.WRITE64},
			{Opcode: bm.PUSH, Operand: bm.WordFromUint64(0)},   // addr
			{Opcode: bm.READ64U},
			{Opcode: bm.HALT},
		},
	}
	types := []bm.Type{
		bm.TypeMemAddr, bm.TypeUnsigned, bm.TypeAny,
		bm.TypeMemAddr, bm.TypeAny, bm.TypeAny,
	}

	fault, err := Verify(img, types)
	require.NoError(t, err)
	require.Nil(t, fault)
}
