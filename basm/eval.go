package basm

import (
	"fmt"
	"math"
)

// EvalResult is the evaluator's sum type: either a concrete Word or a
// signal that evaluation can't proceed yet because it bottomed out at
// a label binding whose address isn't known until the block the label
// lives in has been translated (spec §4.3/§4.4). The translator
// retries Deferred expressions in its post-block fix-up sweep.
type EvalResult struct {
	Word     uint64
	Deferred *Binding
}

func ok(w uint64) EvalResult        { return EvalResult{Word: w} }
func deferredOn(b *Binding) EvalResult { return EvalResult{Deferred: b} }

func (r EvalResult) IsDeferred() bool { return r.Deferred != nil }

// Evaluator walks an Expr tree to a Word, resolving Ident references
// against a Scope and interning string/file literals into a Memory
// image via the Interner. A %for loop's induction variable is just
// another BindConst binding in a child Scope (see translator.go's
// translateFor), so the evaluator itself needs no loop-variable
// special case.
type Evaluator struct {
	scope  *Scope
	intern *Interner
}

func NewEvaluator(scope *Scope, intern *Interner) *Evaluator {
	return &Evaluator{scope: scope, intern: intern}
}

func (e *Evaluator) Eval(expr Expr) (EvalResult, error) {
	switch n := expr.(type) {
	case IntLit:
		return ok(uint64(n.Value)), nil
	case FloatLit:
		return ok(math.Float64bits(n.Value)), nil
	case CharLit:
		var buf [8]byte
		copy(buf[:], n.Bytes)
		var v uint64
		for i := 7; i >= 0; i-- {
			v = (v << 8) | uint64(buf[i])
		}
		return ok(v), nil
	case StringLit:
		addr, err := e.intern.InternString(n.Value)
		if err != nil {
			return EvalResult{}, fmt.Errorf("%s: %w", n.Pos(), err)
		}
		return ok(addr), nil
	case Ident:
		return e.evalIdent(n)
	case BinaryExpr:
		return e.evalBinary(n)
	case CallExpr:
		return e.evalCall(n)
	default:
		return EvalResult{}, fmt.Errorf("%s: unhandled expression node %T", expr.Pos(), expr)
	}
}

func (e *Evaluator) evalIdent(n Ident) (EvalResult, error) {
	b := e.scope.Lookup(n.Name)
	if b == nil {
		return EvalResult{}, fmt.Errorf("%s: %q: %w", n.Pos(), n.Name, ErrUndefined)
	}

	switch b.Status {
	case Evaluated:
		return ok(b.Value), nil
	case Deferred:
		return deferredOn(b), nil
	case Evaluating:
		return EvalResult{}, fmt.Errorf("%s: %q: %w", n.Pos(), n.Name, ErrCycle)
	case Unevaluated:
		if b.Expr == nil {
			// A label with no expression yet assigned is deferred
			// until the translator fixes it up post-block.
			return deferredOn(b), nil
		}
		b.Status = Evaluating
		res, err := e.Eval(b.Expr)
		if err != nil {
			return EvalResult{}, err
		}
		if res.IsDeferred() {
			b.Status = Unevaluated
			return res, nil
		}
		b.Value = res.Word
		b.Status = Evaluated
		return ok(res.Word), nil
	default:
		return EvalResult{}, fmt.Errorf("%s: %q: unknown binding status", n.Pos(), n.Name)
	}
}

func (e *Evaluator) evalBinary(n BinaryExpr) (EvalResult, error) {
	left, err := e.Eval(n.Left)
	if err != nil {
		return EvalResult{}, err
	}
	if left.IsDeferred() {
		return left, nil
	}
	right, err := e.Eval(n.Right)
	if err != nil {
		return EvalResult{}, err
	}
	if right.IsDeferred() {
		return right, nil
	}

	// Constant folding is integer, wraparound arithmetic over the raw
	// u64 bit pattern regardless of the eventual runtime type, mirroring
	// the original assembler's untyped compile-time word arithmetic
	// (see DESIGN.md's Open Questions log for why this is kept rather
	// than type-directed).
	l, r := left.Word, right.Word
	switch n.Op {
	case OpAdd:
		return ok(l + r), nil
	case OpSub:
		return ok(l - r), nil
	case OpMul:
		return ok(l * r), nil
	case OpDiv:
		if r == 0 {
			return EvalResult{}, fmt.Errorf("%s: %w", n.Pos(), ErrDivByZero)
		}
		return ok(l / r), nil
	case OpMod:
		if r == 0 {
			return EvalResult{}, fmt.Errorf("%s: %w", n.Pos(), ErrDivByZero)
		}
		return ok(l % r), nil
	case OpLt:
		return ok(boolToWord(l < r)), nil
	case OpGt:
		return ok(boolToWord(l > r)), nil
	case OpEq:
		return ok(boolToWord(l == r)), nil
	default:
		return EvalResult{}, fmt.Errorf("%s: unknown binary operator", n.Pos())
	}
}

func boolToWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (e *Evaluator) evalCall(n CallExpr) (EvalResult, error) {
	switch n.Name {
	case "len":
		if len(n.Args) != 1 {
			return EvalResult{}, fmt.Errorf("%s: len() takes exactly one argument", n.Pos())
		}
		addr, err := e.Eval(n.Args[0])
		if err != nil {
			return EvalResult{}, err
		}
		if addr.IsDeferred() {
			return addr, nil
		}
		strLen, found := e.intern.StringLen(addr.Word)
		if !found {
			return EvalResult{}, fmt.Errorf("%s: len(): no string interned at address %d", n.Pos(), addr.Word)
		}
		return ok(uint64(strLen)), nil

	case "byte_array":
		if len(n.Args) != 2 {
			return EvalResult{}, fmt.Errorf("%s: byte_array(size, value) takes two arguments", n.Pos())
		}
		size, err := e.Eval(n.Args[0])
		if err != nil {
			return EvalResult{}, err
		}
		if size.IsDeferred() {
			return size, nil
		}
		value, err := e.Eval(n.Args[1])
		if err != nil {
			return EvalResult{}, err
		}
		if value.IsDeferred() {
			return value, nil
		}
		addr, err := e.intern.InternByteArray(size.Word, byte(value.Word))
		if err != nil {
			return EvalResult{}, fmt.Errorf("%s: %w", n.Pos(), err)
		}
		return EvalResult{Word: addr}, nil

	case "int32":
		if len(n.Args) != 1 {
			return EvalResult{}, fmt.Errorf("%s: int32() takes exactly one argument", n.Pos())
		}
		v, err := e.Eval(n.Args[0])
		if err != nil {
			return EvalResult{}, err
		}
		if v.IsDeferred() {
			return v, nil
		}
		return ok(uint64(int32(v.Word))), nil

	case "file":
		if len(n.Args) != 1 {
			return EvalResult{}, fmt.Errorf("%s: file() takes exactly one argument", n.Pos())
		}
		sl, ok := n.Args[0].(StringLit)
		if !ok {
			return EvalResult{}, fmt.Errorf("%s: file() expects a string path literal", n.Pos())
		}
		addr, err := e.intern.InternFile(sl.Value)
		if err != nil {
			return EvalResult{}, fmt.Errorf("%s: %w", n.Pos(), err)
		}
		return EvalResult{Word: addr}, nil

	default:
		return EvalResult{}, fmt.Errorf("%s: %q is not a known built-in", n.Pos(), n.Name)
	}
}
