package bm

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func runProgram(t *testing.T, program []Instruction) *BM {
	img := &Image{Program: program, MemoryCapacity: 1024}
	vm := New(img, nil)
	err := vm.Run(-1)
	assert(t, err == nil, "unexpected fatal error: %v", err)
	return vm
}

func TestDivByZero(t *testing.T) {
	program := []Instruction{
		{Opcode: PUSH, Operand: WordFromInt64(10)},
		{Opcode: PUSH, Operand: WordFromInt64(0)},
		{Opcode: DIVI},
		{Opcode: HALT},
	}
	img := &Image{Program: program}
	vm := New(img, nil)
	err := vm.Run(-1)
	assert(t, errors.Is(err, ErrDivByZero), "expected ErrDivByZero, got %v", err)
	assert(t, vm.IP == 2, "expected ip at DIVI (2), got %d", vm.IP)
}

func TestDupZeroThenDropIsIdentity(t *testing.T) {
	program := []Instruction{
		{Opcode: PUSH, Operand: WordFromInt64(42)},
		{Opcode: DUP, Operand: WordFromUint64(0)},
		{Opcode: DROP},
		{Opcode: HALT},
	}
	vm := runProgram(t, program)
	assert(t, len(vm.Stack) == 1, "expected 1 value left on stack, got %d", len(vm.Stack))
	assert(t, vm.Stack[0].Int64() == 42, "expected 42, got %d", vm.Stack[0].Int64())
}

func TestSwapTwiceIsIdentity(t *testing.T) {
	program := []Instruction{
		{Opcode: PUSH, Operand: WordFromInt64(1)},
		{Opcode: PUSH, Operand: WordFromInt64(2)},
		{Opcode: SWAP, Operand: WordFromUint64(1)},
		{Opcode: SWAP, Operand: WordFromUint64(1)},
		{Opcode: HALT},
	}
	vm := runProgram(t, program)
	assert(t, vm.Stack[0].Int64() == 1 && vm.Stack[1].Int64() == 2, "swap;swap changed stack order: %v", vm.Stack)
}

func TestTypedWriteThenRead(t *testing.T) {
	program := []Instruction{
		{Opcode: PUSH, Operand: WordFromUint64(0)},  // addr
		{Opcode: PUSH, Operand: WordFromUint64(99)}, // value
		{Opcode: WRITE64},
		{Opcode: PUSH, Operand: WordFromUint64(0)},
		{Opcode: READ64U},
		{Opcode: HALT},
	}
	vm := runProgram(t, program)
	assert(t, vm.Stack[len(vm.Stack)-1].Uint64() == 99, "expected 99 on top, got %v", vm.Stack)
}

func TestStackOverflow(t *testing.T) {
	img := &Image{}
	vm := New(img, nil)
	vm.stackCapacity = 2
	for i := 0; i < 3; i++ {
		vm.Program = append(vm.Program, Instruction{Opcode: PUSH, Operand: WordFromInt64(1)})
	}
	err := vm.Run(-1)
	assert(t, errors.Is(err, ErrStackOverflow), "expected overflow, got %v", err)
}

func TestNativeWrite(t *testing.T) {
	var out bytes.Buffer
	img := &Image{
		Program: []Instruction{
			{Opcode: PUSH, Operand: WordFromUint64(0)}, // addr
			{Opcode: PUSH, Operand: WordFromUint64(3)}, // count
			{Opcode: NATIVE, Operand: WordFromUint64(0)},
			{Opcode: HALT},
		},
		Memory:         []byte("hi\n"),
		MemoryCapacity: 3,
	}
	vm := New(img, []Native{NewWriteNative(&out)})
	err := vm.Run(-1)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, out.String() == "hi\n", "expected hi\\n, got %q", out.String())
}

func TestF2UMagicNumber(t *testing.T) {
	// 2^63 itself needs the magic-number path since int64(2^63) overflows.
	f := float64(uint64(1) << 63)
	got := f2u(f)
	assert(t, got == uint64(1)<<63, "expected 2^63, got %d", got)
}

func TestBudgetStopsWithoutHalt(t *testing.T) {
	program := []Instruction{
		{Opcode: NOP},
		{Opcode: JMP, Operand: WordFromUint64(0)},
	}
	img := &Image{Program: program}
	vm := New(img, nil)
	err := vm.Run(5)
	assert(t, err == nil, "expected budget exhaustion to return nil, got %v", err)
	assert(t, !vm.Halt, "expected halt to remain false")
}
