package basm

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// BindingKind distinguishes the four things a name can resolve to in
// a scope (spec §4.3).
type BindingKind int

const (
	BindConst BindingKind = iota
	BindLabel
	BindNative
	BindMacro
)

func (k BindingKind) String() string {
	switch k {
	case BindConst:
		return "const"
	case BindLabel:
		return "label"
	case BindNative:
		return "native"
	case BindMacro:
		return "macro"
	default:
		return "binding"
	}
}

// BindingStatus drives the cycle-detection state machine described in
// spec §4.3: a binding starts Unevaluated, moves to Evaluating while
// its value expression is being resolved (re-entering here is a
// cycle), and settles at Evaluated once a Word is known. Labels whose
// address depends on code not yet translated sit at Deferred instead,
// a separate state that the translator's second pass clears when it
// reaches the label's position.
type BindingStatus int

const (
	Unevaluated BindingStatus = iota
	Evaluating
	Evaluated
	Deferred
)

// Binding is one entry in a Scope's symbol table.
type Binding struct {
	Kind   BindingKind
	Name   string
	Value  uint64
	Expr   Expr // the defining expression, nil for labels and natives
	Status BindingStatus
	Loc    Pos

	// NativeIndex is the external-table slot for BindNative bindings.
	NativeIndex int

	// Macro-only fields.
	MacroArgs []string
	MacroBody Block
	// DefScope is the scope a macro body's identifiers resolve
	// against: the scope lexically enclosing the %macro definition,
	// not the call site, per spec §4.3's lexical-capture rule.
	DefScope *Scope
}

var (
	ErrRedefined       = fmt.Errorf("symbol redefined")
	ErrUndefined       = fmt.Errorf("symbol undefined")
	ErrCycle           = fmt.Errorf("definition cycle")
	ErrWrongBindKind   = fmt.Errorf("symbol used as wrong kind of binding")
	ErrTooManyBindings = fmt.Errorf("too many bindings in scope")
	ErrDivByZero       = fmt.Errorf("division by zero in constant expression")
)

// MaxBindingsPerScope bounds a single scope's table, mirroring the
// fixed-capacity symbol tables in the arena-backed original.
const MaxBindingsPerScope = 4096

// Scope is a link in the lexical scope chain built by %scope and
// macro expansion. Lookups walk outward through Parent.
type Scope struct {
	Parent   *Scope
	bindings map[string]*Binding
	order    []string // insertion order, read by LocalNames
}

func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent, bindings: make(map[string]*Binding)}
}

// Define adds a new binding to this scope. Redefinition within the
// same scope is an error; shadowing an outer scope's binding is not.
func (s *Scope) Define(b *Binding) error {
	if _, exists := s.bindings[b.Name]; exists {
		return fmt.Errorf("%s: %q: %w", b.Loc, b.Name, ErrRedefined)
	}
	if len(s.bindings) >= MaxBindingsPerScope {
		return fmt.Errorf("%s: %w", b.Loc, ErrTooManyBindings)
	}
	s.bindings[b.Name] = b
	s.order = append(s.order, b.Name)
	return nil
}

// Lookup walks the scope chain outward and returns the nearest
// binding for name, or nil if undefined anywhere in the chain.
func (s *Scope) Lookup(name string) *Binding {
	for cur := s; cur != nil; cur = cur.Parent {
		if b, ok := cur.bindings[name]; ok {
			return b
		}
	}
	return nil
}

// LocalNames returns this scope's own binding names sorted, which gives
// WriteSymbols its stable, name-ordered output.
func (s *Scope) LocalNames() []string {
	names := slices.Clone(s.order)
	slices.Sort(names)
	return names
}

func (p Pos) String() string {
	if p.Col != 0 {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}
