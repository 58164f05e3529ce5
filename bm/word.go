// Package bm implements the stack-based bytecode virtual machine: the
// 64-bit tagged Word, the closed instruction set, the binary program
// image, and the deterministic executor that steps through it.
package bm

import "math"

// Word is the 64-bit value unit. The same bit pattern can be
// reinterpreted as unsigned, signed, float64 or an opaque pointer
// without conversion; which representation applies is a property of
// the opcode operating on it, not of the Word itself.
type Word uint64

func WordFromUint64(u uint64) Word { return Word(u) }
func WordFromInt64(i int64) Word   { return Word(uint64(i)) }
func WordFromFloat64(f float64) Word {
	return Word(math.Float64bits(f))
}

func (w Word) Uint64() uint64  { return uint64(w) }
func (w Word) Int64() int64    { return int64(w) }
func (w Word) Float64() float64 {
	return math.Float64frombits(uint64(w))
}

// Type is a closed enumeration forming a subtype lattice rooted at
// Any. It is used by the verifier to check opcode operand/stack types
// with strict equality, and by the lattice-aware helpers below for
// anything that does want subtyping (e.g. diagnostics).
type Type int

const (
	TypeAny Type = iota
	TypeFloat
	TypeInteger
	TypeSigned
	TypeUnsigned
	TypeMemAddr
	TypeInstAddr
	TypeStackAddr
	TypeNativeId
	TypeBool
)

var typeNames = map[Type]string{
	TypeAny:       "Any",
	TypeFloat:     "Float",
	TypeInteger:   "Integer",
	TypeSigned:    "Signed",
	TypeUnsigned:  "Unsigned",
	TypeMemAddr:   "MemAddr",
	TypeInstAddr:  "InstAddr",
	TypeStackAddr: "StackAddr",
	TypeNativeId:  "NativeId",
	TypeBool:      "Bool",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "?unknown-type?"
}

// parent maps every non-root type to its immediate supertype in the
// lattice described in spec §3. TypeBool is a leaf hanging directly
// off TypeAny - it does not participate in the Integer branch.
var parent = map[Type]Type{
	TypeFloat:     TypeAny,
	TypeInteger:   TypeAny,
	TypeSigned:    TypeInteger,
	TypeUnsigned:  TypeInteger,
	TypeMemAddr:   TypeUnsigned,
	TypeInstAddr:  TypeUnsigned,
	TypeStackAddr: TypeUnsigned,
	TypeNativeId:  TypeUnsigned,
	TypeBool:      TypeAny,
}

// IsSubtypeOf reports whether t is other, or a descendant of other, in
// the type lattice.
func (t Type) IsSubtypeOf(other Type) bool {
	for cur := t; ; {
		if cur == other {
			return true
		}
		p, ok := parent[cur]
		if !ok {
			return false
		}
		cur = p
	}
}
