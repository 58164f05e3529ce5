package basm

import (
	"fmt"
	"os"
	"path/filepath"

	"bm/bm"
)

// Translator walks a parsed Block and assembles a bm.Image (spec
// §4.2). It runs two passes per block: the first registers labels
// (Deferred), consts, natives and macros so forward references
// resolve; the second emits instructions and expands control/macro
// constructs. Anything that can't be resolved in pass two (%assert
// conditions, operands referencing a label not yet given an address,
// the %entry target) is queued and retried in the fix-up sweep that
// runs once the top-level block is translated, in that order.
type Translator struct {
	Program []bm.Instruction

	// OperandTypes and Locations parallel Program 1:1. OperandTypes
	// records the static type PUSH's operand was given at emit time
	// (spec §4.2's program_operand_types) - the one piece of type
	// information the verifier needs that the binary image never
	// serializes (spec §4.2 image writer note). Locations feeds
	// diagnostics that need to point back at source.
	OperandTypes []bm.Type
	Locations    []Pos

	intern    *Interner
	externals []string
	extIndex  map[string]int

	entryAddr    *uint64
	entryPending *pendingEntry

	deferredOperands []pendingOperand
	deferredAsserts  []pendingAssert

	searchPaths  []string
	includeDepth int
}

type pendingOperand struct {
	instIndex int
	expr      Expr
	scope     *Scope
	pos       Pos
}

type pendingAssert struct {
	expr  Expr
	scope *Scope
	pos   Pos
}

type pendingEntry struct {
	label string
	scope *Scope
	pos   Pos
}

var (
	ErrAssertFailed    = fmt.Errorf("assertion failed")
	ErrUnresolvedLabel = fmt.Errorf("label never resolved")
	ErrNoEntry         = fmt.Errorf("no entry point set")
	ErrIncludeDepth    = fmt.Errorf("include depth exceeded")
	ErrEntryNotLabel   = fmt.Errorf("entry binding is not a label")
)

func NewTranslator(searchPaths []string) *Translator {
	return &Translator{
		intern:    NewInterner(),
		extIndex:  make(map[string]int),
		searchPaths: searchPaths,
	}
}

// TranslateFile parses and translates one source file at the root
// scope, returning the assembled image.
func (t *Translator) TranslateFile(path string) (*bm.Image, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root := NewScope(nil)
	block, err := NewStmtParser(NewLinizer(path, string(src))).ParseFile()
	if err != nil {
		return nil, err
	}
	if err := t.translateBlock(block, root); err != nil {
		return nil, err
	}
	if err := t.fixup(); err != nil {
		return nil, err
	}
	return t.assemble()
}

func (t *Translator) assemble() (*bm.Image, error) {
	if t.entryAddr == nil {
		return nil, ErrNoEntry
	}
	const memoryBase = 0
	return &bm.Image{
		Program:        t.Program,
		Entry:          *t.entryAddr,
		MemoryBase:     memoryBase,
		Memory:         t.intern.Data,
		MemoryCapacity: bm.MaxMemorySize,
		Externals:      t.externals,
	}, nil
}

// translateBlock runs the two passes described above over one Block's
// statements under scope.
func (t *Translator) translateBlock(block Block, scope *Scope) error {
	if err := t.passOne(block, scope); err != nil {
		return err
	}
	return t.passTwo(block, scope)
}

// passOne registers forward-referenceable names: labels (Deferred),
// consts (Unevaluated, evaluated lazily), natives and macros
// (Evaluated at once), and runs this pass over %include bodies in the
// same scope.
func (t *Translator) passOne(block Block, scope *Scope) error {
	for _, stmt := range block.Stmts {
		switch s := stmt.(type) {
		case LabelStmt:
			if err := scope.Define(&Binding{Kind: BindLabel, Name: s.Name, Status: Deferred, Loc: s.Pos_}); err != nil {
				return err
			}
		case ConstStmt:
			if err := scope.Define(&Binding{Kind: BindConst, Name: s.Name, Expr: s.Expr, Status: Unevaluated, Loc: s.Pos_}); err != nil {
				return err
			}
		case NativeStmt:
			idx, ok := t.extIndex[s.Name]
			if !ok {
				idx = len(t.externals)
				t.externals = append(t.externals, s.Name)
				t.extIndex[s.Name] = idx
			}
			if err := scope.Define(&Binding{Kind: BindNative, Name: s.Name, Status: Evaluated, Value: uint64(idx), NativeIndex: idx, Loc: s.Pos_}); err != nil {
				return err
			}
		case MacroDef:
			if err := scope.Define(&Binding{Kind: BindMacro, Name: s.Name, MacroArgs: s.Args, MacroBody: s.Body, DefScope: scope, Status: Evaluated, Loc: s.Pos_}); err != nil {
				return err
			}
		case IncludeStmt:
			included, err := t.loadInclude(s)
			if err != nil {
				return err
			}
			t.includeDepth++
			err = t.passOne(included, scope)
			t.includeDepth--
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Translator) loadInclude(s IncludeStmt) (Block, error) {
	if t.includeDepth >= bm.MaxIncludeLevel {
		return Block{}, WrapDiagnostic(DiagSemantic, s.Pos_, ErrIncludeDepth)
	}
	path, err := t.resolveInclude(s.Path)
	if err != nil {
		return Block{}, fmt.Errorf("%s: %%include %q: %w", s.Pos_, s.Path, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Block{}, fmt.Errorf("%s: %%include %q: %w", s.Pos_, s.Path, err)
	}
	t.includeDepth++
	defer func() { t.includeDepth-- }()
	return NewStmtParser(NewLinizer(path, string(src))).ParseFile()
}

func (t *Translator) resolveInclude(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	for _, dir := range t.searchPaths {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("not found in any search path")
}

// passTwo emits instructions and expands control-flow/macro
// constructs, recursing into nested scopes where the language
// introduces one.
func (t *Translator) passTwo(block Block, scope *Scope) error {
	for _, stmt := range block.Stmts {
		if err := t.translateStmt(stmt, scope); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) translateStmt(stmt Stmt, scope *Scope) error {
	switch s := stmt.(type) {
	case LabelStmt:
		b := scope.Lookup(s.Name)
		b.Value = uint64(len(t.Program))
		b.Status = Evaluated
		return nil

	case EmitInst:
		return t.emitInst(s, scope)

	case ConstStmt, NativeStmt, MacroDef:
		// Fully handled in passOne.
		return nil

	case IncludeStmt:
		// passOne registered the included names; this pass emits the
		// included statements in the same scope.
		included, err := t.loadInclude(s)
		if err != nil {
			return err
		}
		t.includeDepth++
		defer func() { t.includeDepth-- }()
		return t.passTwo(included, scope)

	case AssertStmt:
		t.deferredAsserts = append(t.deferredAsserts, pendingAssert{expr: s.Expr, scope: scope, pos: s.Pos_})
		return nil

	case ErrorStmt:
		return NewDiagnostic(DiagSemantic, s.Pos_, "%%error: %s", s.Message)

	case EntryStmt:
		return t.translateEntry(s, scope)

	case ScopeStmt:
		child := NewScope(scope)
		return t.translateBlock(s.Body, child)

	case IfStmt:
		return t.translateIf(s, scope)

	case ForStmt:
		return t.translateFor(s, scope)

	case MacroCall:
		return t.translateMacroCall(s, scope)

	default:
		return fmt.Errorf("%s: unhandled statement %T", stmt.Pos(), stmt)
	}
}

func (t *Translator) translateEntry(s EntryStmt, scope *Scope) error {
	if s.Label != "" {
		addr := uint64(len(t.Program))
		if err := scope.Define(&Binding{Kind: BindLabel, Name: s.Label, Status: Evaluated, Value: addr, Loc: s.Pos_}); err != nil {
			return err
		}
		t.entryAddr = &addr
		return nil
	}

	// spec §3: has_entry implies the entry resolves to a label binding,
	// never a const - %entry only ever names a jump target.
	name := identName(s.Expr)
	b := scope.Lookup(name)
	if b == nil || b.Kind != BindLabel {
		return WrapDiagnostic(DiagSemantic, s.Pos_, ErrEntryNotLabel)
	}

	ev := NewEvaluator(scope, t.intern)
	res, err := ev.Eval(s.Expr)
	if err != nil {
		return err
	}
	if res.IsDeferred() {
		t.entryPending = &pendingEntry{label: name, scope: scope, pos: s.Pos_}
		return nil
	}
	addr := res.Word
	t.entryAddr = &addr
	return nil
}

func identName(e Expr) string {
	if id, ok := e.(Ident); ok {
		return id.Name
	}
	return ""
}

func (t *Translator) emitInst(s EmitInst, scope *Scope) error {
	op, ok := bm.LookupOpcode(s.Mnemonic)
	if !ok {
		return NewDiagnostic(DiagSemantic, s.Pos_, "%q is not a known instruction", s.Mnemonic)
	}
	desc, _ := bm.Describe(op)

	inst := bm.Instruction{Opcode: op}
	index := len(t.Program)
	t.Program = append(t.Program, inst)
	t.Locations = append(t.Locations, s.Pos_)
	t.OperandTypes = append(t.OperandTypes, bm.TypeAny)

	if !desc.HasOperand {
		return nil
	}
	if s.Operand == nil {
		return fmt.Errorf("%s: %q requires an operand", s.Pos_, s.Mnemonic)
	}

	ev := NewEvaluator(scope, t.intern)
	res, err := ev.Eval(s.Operand)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Pos_, err)
	}
	if op == bm.PUSH {
		// Typed only after Eval succeeded: Eval reports a cyclic %const
		// as ErrCycle, where staticTypeOf would follow the cycle forever.
		t.OperandTypes[index] = staticTypeOf(s.Operand, scope)
	}
	if res.IsDeferred() {
		t.deferredOperands = append(t.deferredOperands, pendingOperand{instIndex: index, expr: s.Operand, scope: scope, pos: s.Pos_})
		return nil
	}
	t.Program[index].Operand = bm.WordFromUint64(res.Word)
	return nil
}

// staticTypeOf infers the type a PUSH operand's expression carries,
// for the verifier's consumption (spec §4.2 program_operand_types).
// It is a best-effort static estimate, not a full type system:
// comparisons are Bool, other binary expressions take their left
// operand's type, matching the evaluator's
// own left-to-right bias for untyped u64 constant folding.
func staticTypeOf(e Expr, scope *Scope) bm.Type {
	switch n := e.(type) {
	case IntLit:
		return bm.TypeSigned
	case FloatLit:
		return bm.TypeFloat
	case CharLit:
		return bm.TypeUnsigned
	case StringLit:
		return bm.TypeMemAddr
	case BinaryExpr:
		switch n.Op {
		case OpLt, OpGt, OpEq:
			return bm.TypeBool
		default:
			return staticTypeOf(n.Left, scope)
		}
	case CallExpr:
		switch n.Name {
		case "len":
			return bm.TypeUnsigned
		case "int32":
			return bm.TypeUnsigned
		case "byte_array", "file":
			return bm.TypeMemAddr
		default:
			return bm.TypeAny
		}
	case Ident:
		b := scope.Lookup(n.Name)
		if b == nil {
			return bm.TypeAny
		}
		switch b.Kind {
		case BindLabel:
			return bm.TypeInstAddr
		case BindNative:
			return bm.TypeNativeId
		case BindConst:
			if b.Expr != nil {
				return staticTypeOf(b.Expr, scope)
			}
			return bm.TypeAny
		default:
			return bm.TypeAny
		}
	default:
		return bm.TypeAny
	}
}

func (t *Translator) translateIf(s IfStmt, scope *Scope) error {
	ev := NewEvaluator(scope, t.intern)
	res, err := ev.Eval(s.Cond)
	if err != nil {
		return err
	}
	if res.IsDeferred() {
		return fmt.Errorf("%s: %%if condition must be resolvable at translation time", s.Pos_)
	}
	if res.Word != 0 {
		return t.translateBlock(s.Then, NewScope(scope))
	}
	for _, elif := range s.Elif {
		res, err := ev.Eval(elif.Cond)
		if err != nil {
			return err
		}
		if res.IsDeferred() {
			return fmt.Errorf("%s: %%elif condition must be resolvable at translation time", s.Pos_)
		}
		if res.Word != 0 {
			return t.translateBlock(elif.Body, NewScope(scope))
		}
	}
	if s.Else != nil {
		return t.translateBlock(*s.Else, NewScope(scope))
	}
	return nil
}

func (t *Translator) translateFor(s ForStmt, scope *Scope) error {
	ev := NewEvaluator(scope, t.intern)
	fromRes, err := ev.Eval(s.From)
	if err != nil {
		return err
	}
	toRes, err := ev.Eval(s.To)
	if err != nil {
		return err
	}
	if fromRes.IsDeferred() || toRes.IsDeferred() {
		return fmt.Errorf("%s: %%for bounds must be resolvable at translation time", s.Pos_)
	}
	for i := fromRes.Word; i < toRes.Word; i++ {
		child := NewScope(scope)
		if err := child.Define(&Binding{Kind: BindConst, Name: s.Var, Status: Evaluated, Value: i, Loc: s.Pos_}); err != nil {
			return err
		}
		if err := t.translateBlock(s.Body, child); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) translateMacroCall(s MacroCall, scope *Scope) error {
	b := scope.Lookup(s.Name)
	if b == nil {
		return fmt.Errorf("%s: %q: %w", s.Pos_, s.Name, ErrUndefined)
	}
	if b.Kind != BindMacro {
		return fmt.Errorf("%s: %q: %w", s.Pos_, s.Name, ErrWrongBindKind)
	}
	if len(s.Args) != len(b.MacroArgs) {
		return fmt.Errorf("%s: macro %q expects %d arguments, got %d", s.Pos_, s.Name, len(b.MacroArgs), len(s.Args))
	}

	// Macro bodies resolve free identifiers against the scope the
	// macro was defined in, not the call site, with a fresh scope
	// layered on top holding only the bound formal parameters.
	call := NewScope(b.DefScope)
	ev := NewEvaluator(scope, t.intern)
	for i, argExpr := range s.Args {
		res, err := ev.Eval(argExpr)
		if err != nil {
			return err
		}
		if res.IsDeferred() {
			return fmt.Errorf("%s: macro argument %q must be resolvable at translation time", s.Pos_, b.MacroArgs[i])
		}
		if err := call.Define(&Binding{Kind: BindConst, Name: b.MacroArgs[i], Status: Evaluated, Value: res.Word, Loc: s.Pos_}); err != nil {
			return err
		}
	}

	return t.translateBlock(b.MacroBody, call)
}

// fixup retries every deferred operand, assert and the entry target
// now that every label in the translation unit has an address,
// reporting the first unresolved reference as a failure.
func (t *Translator) fixup() error {
	for _, pending := range t.deferredAsserts {
		ev := NewEvaluator(pending.scope, t.intern)
		res, err := ev.Eval(pending.expr)
		if err != nil {
			return err
		}
		if res.IsDeferred() {
			return WrapDiagnostic(DiagSemantic, pending.pos, ErrUnresolvedLabel)
		}
		if res.Word == 0 {
			return WrapDiagnostic(DiagSemantic, pending.pos, ErrAssertFailed)
		}
	}

	for _, pending := range t.deferredOperands {
		ev := NewEvaluator(pending.scope, t.intern)
		res, err := ev.Eval(pending.expr)
		if err != nil {
			return err
		}
		if res.IsDeferred() {
			return WrapDiagnostic(DiagSemantic, pending.pos, ErrUnresolvedLabel)
		}
		t.Program[pending.instIndex].Operand = bm.WordFromUint64(res.Word)
	}

	if t.entryPending != nil {
		b := t.entryPending.scope.Lookup(t.entryPending.label)
		if b == nil || b.Kind != BindLabel {
			return WrapDiagnostic(DiagSemantic, t.entryPending.pos, ErrEntryNotLabel)
		}
		if b.Status != Evaluated {
			return WrapDiagnostic(DiagSemantic, t.entryPending.pos, ErrUnresolvedLabel)
		}
		addr := b.Value
		t.entryAddr = &addr
	}

	return nil
}
