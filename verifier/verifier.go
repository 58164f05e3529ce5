// Package verifier implements the type-directed forward abstract
// interpreter described in spec §5: it walks a bm.Image's program
// linearly, tracking a shadow stack of (type, origin) frames and
// checking every opcode's operands against its static signature with
// strict equality (no subtyping at check time - IsSubtypeOf exists
// for diagnostics only).
//
// Control flow is explicitly out of scope here: JMP, JMP_IF, CALL,
// RET and NATIVE all make the value flowing through the stack depend
// on a jump target or a native's contract the verifier has no static
// view of, so a program using any of them is reported as unverifiable
// rather than silently approved. This mirrors the decision recorded
// for the corresponding spec Open Question in DESIGN.md: the
// restriction is preserved, not worked around.
package verifier

import (
	"errors"
	"fmt"

	"bm/bm"
)

var (
	ErrUnsupportedControlFlow = errors.New("verifier: opcode requires control-flow analysis, not supported")
	ErrStackUnderflow         = errors.New("verifier: stack underflow")
	ErrTypeMismatch           = errors.New("verifier: operand type mismatch")
	ErrUnknownOpcode          = errors.New("verifier: unknown opcode")
)

// Frame is one shadow-stack entry: the static type a value carries,
// and the instruction that pushed it, for error messages that point
// back at the producer instead of just the consumer.
type Frame struct {
	Type   bm.Type
	Origin uint64
}

// Fault describes the first type error the verifier found.
type Fault struct {
	InstIndex uint64
	Opcode    bm.Opcode
	Err       error
	Expected  bm.Type
	Actual    bm.Type
	OriginIdx uint64
}

func (f *Fault) Error() string {
	if errors.Is(f.Err, ErrTypeMismatch) {
		return fmt.Sprintf("instruction %d (%s): expected %s, got %s (pushed by instruction %d)",
			f.InstIndex, f.Opcode, f.Expected, f.Actual, f.OriginIdx)
	}
	return fmt.Sprintf("instruction %d (%s): %v", f.InstIndex, f.Opcode, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Verify runs the forward pass over img.Program and returns the first
// Fault encountered, or nil if every instruction checked out.
//
// operandTypes must be parallel to img.Program and holds the static
// type recorded for each PUSH's operand at translation time (spec
// §4.2's program_operand_types) - the binary image itself never
// serializes this, so a verifier working from a loaded image with no
// operandTypes available should pass a slice of all bm.TypeAny, which
// degrades gracefully to rejecting any program that pushes a value
// into a context expecting a narrower type than Any.
func Verify(img *bm.Image, operandTypes []bm.Type) (*Fault, error) {
	var stack []Frame

	pop := func(i uint64, op bm.Opcode, want bm.Type) (*Fault, bool) {
		if len(stack) == 0 {
			return &Fault{InstIndex: i, Opcode: op, Err: ErrStackUnderflow}, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.Type != want {
			return &Fault{
				InstIndex: i, Opcode: op, Err: ErrTypeMismatch,
				Expected: want, Actual: top.Type, OriginIdx: top.Origin,
			}, false
		}
		return nil, true
	}

	for i, inst := range img.Program {
		idx := uint64(i)

		switch inst.Opcode {
		case bm.JMP, bm.JMP_IF, bm.CALL, bm.RET, bm.NATIVE:
			return nil, fmt.Errorf("instruction %d (%s): %w", idx, inst.Opcode, ErrUnsupportedControlFlow)
		}

		desc, ok := bm.Describe(inst.Opcode)
		if !ok {
			return nil, fmt.Errorf("instruction %d: %w: %d", idx, ErrUnknownOpcode, inst.Opcode)
		}

		// DUP/SWAP address the shadow stack by a depth operand fixed at
		// translation time (spec §4.3 "DUP k / SWAP k -> require
		// k < depth"): the generic Input/Output descriptor can't express
		// "reach k frames down and push/swap a copy of whatever type is
		// there", so they get their own cases instead of running through
		// the fixed-arity pop/push loop below.
		switch inst.Opcode {
		case bm.DUP:
			k := int(inst.Operand.Uint64())
			if k >= len(stack) {
				return &Fault{InstIndex: idx, Opcode: inst.Opcode, Err: ErrStackUnderflow}, nil
			}
			dup := stack[len(stack)-1-k]
			stack = append(stack, Frame{Type: dup.Type, Origin: idx})
			continue
		case bm.SWAP:
			k := int(inst.Operand.Uint64())
			if k >= len(stack) {
				return &Fault{InstIndex: idx, Opcode: inst.Opcode, Err: ErrStackUnderflow}, nil
			}
			n := len(stack)
			stack[n-1], stack[n-1-k] = stack[n-1-k], stack[n-1]
			continue
		case bm.DROP:
			// DROP's Input is TypeAny (truly polymorphic): it accepts
			// whatever is on top without caring what type it is, so it
			// bypasses pop()'s strict-equality check entirely rather than
			// comparing a concrete type against TypeAny and always
			// failing.
			if len(stack) == 0 {
				return &Fault{InstIndex: idx, Opcode: inst.Opcode, Err: ErrStackUnderflow}, nil
			}
			stack = stack[:len(stack)-1]
			continue
		}

		for k := len(desc.Input) - 1; k >= 0; k-- {
			if fault, okPop := pop(idx, inst.Opcode, desc.Input[k]); !okPop {
				return fault, nil
			}
		}

		if inst.Opcode == bm.PUSH {
			pushType := bm.TypeAny
			if idx < uint64(len(operandTypes)) {
				pushType = operandTypes[idx]
			}
			stack = append(stack, Frame{Type: pushType, Origin: idx})
			continue
		}

		for _, outType := range desc.Output {
			stack = append(stack, Frame{Type: outType, Origin: idx})
		}
	}

	return nil, nil
}
