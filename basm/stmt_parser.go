package basm

import (
	"fmt"
	"strings"
)

// StmtParser turns a Linizer's classified lines into the statement
// AST (spec §3, §6 grammar), recursing into nested blocks for
// %if/%elif/%else, %scope, %for and %macro.
type StmtParser struct {
	lz *Linizer
}

func NewStmtParser(lz *Linizer) *StmtParser {
	return &StmtParser{lz: lz}
}

// ParseFile parses an entire source file as a top-level block.
func (p *StmtParser) ParseFile() (Block, error) {
	block, term, err := p.parseBlock(nil)
	if err != nil {
		return Block{}, err
	}
	if term != "" {
		return Block{}, fmt.Errorf("%s: unexpected %%%s with no matching opener", p.lz.file, term)
	}
	return block, nil
}

// parseBlock consumes statements until a directive name in stop is
// seen (which is consumed and returned as term) or input ends (term
// == "" then). stop == nil means "top level, run to EOF".
func (p *StmtParser) parseBlock(stop []string) (Block, string, error) {
	block, term, _, err := p.parseBlockLine(stop)
	return block, term, err
}

// parseBlockLine is parseBlock but also hands back the terminating
// directive line itself, so callers like parseIf can read its body
// (the condition text on a %elif line).
func (p *StmtParser) parseBlockLine(stop []string) (Block, string, Line, error) {
	var stmts []Stmt
	var blockPos Pos

	for {
		line, ok := p.lz.Peek()
		if !ok {
			return Block{Stmts: stmts, Pos_: blockPos}, "", Line{}, nil
		}
		if line.Kind == LineDirective && contains(stop, line.Name) {
			p.lz.Next()
			return Block{Stmts: stmts, Pos_: blockPos}, line.Name, line, nil
		}

		stmt, err := p.parseStmt()
		if err != nil {
			return Block{}, "", Line{}, err
		}
		if len(stmts) == 0 {
			blockPos = stmt.Pos()
		}
		stmts = append(stmts, stmt)
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func (p *StmtParser) parseStmt() (Stmt, error) {
	line, _ := p.lz.Next()
	pos := Pos{File: line.File, Line: line.LineNum}

	switch line.Kind {
	case LineLabel:
		return LabelStmt{Name: line.Name, Pos_: pos}, nil
	case LineInstruction:
		return p.parseInstruction(line, pos)
	case LineDirective:
		return p.parseDirective(line, pos)
	default:
		return nil, fmt.Errorf("%s:%d: unexpected line", line.File, line.LineNum)
	}
}

func (p *StmtParser) parseInstruction(line Line, pos Pos) (Stmt, error) {
	var operand Expr
	if strings.TrimSpace(line.Body) != "" {
		e, err := ParseExprString(line.File, line.LineNum, line.Body)
		if err != nil {
			return nil, err
		}
		operand = e
	}
	return EmitInst{Mnemonic: line.Name, Operand: operand, Pos_: pos}, nil
}

func (p *StmtParser) parseDirective(line Line, pos Pos) (Stmt, error) {
	switch line.Name {
	case "const":
		name, exprText, ok := strings.Cut(line.Body, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: %%const requires 'name = expr'", line.File, line.LineNum)
		}
		e, err := ParseExprString(line.File, line.LineNum, strings.TrimSpace(exprText))
		if err != nil {
			return nil, err
		}
		return ConstStmt{Name: strings.TrimSpace(name), Expr: e, Pos_: pos}, nil

	case "native":
		return NativeStmt{Name: strings.TrimSpace(line.Body), Pos_: pos}, nil

	case "include":
		path := strings.Trim(strings.TrimSpace(line.Body), `"`)
		return IncludeStmt{Path: path, Pos_: pos}, nil

	case "assert":
		e, err := ParseExprString(line.File, line.LineNum, line.Body)
		if err != nil {
			return nil, err
		}
		return AssertStmt{Expr: e, Pos_: pos}, nil

	case "error":
		return ErrorStmt{Message: strings.Trim(strings.TrimSpace(line.Body), `"`), Pos_: pos}, nil

	case "entry":
		body := strings.TrimSpace(line.Body)
		if strings.HasSuffix(body, ":") {
			return EntryStmt{Label: strings.TrimSuffix(body, ":"), Pos_: pos}, nil
		}
		e, err := ParseExprString(line.File, line.LineNum, body)
		if err != nil {
			return nil, err
		}
		return EntryStmt{Expr: e, Pos_: pos}, nil

	case "if":
		return p.parseIf(line, pos)

	case "scope":
		body, term, err := p.parseBlock([]string{"end"})
		if err != nil {
			return nil, err
		}
		if term != "end" {
			return nil, fmt.Errorf("%s:%d: %%scope missing matching %%end", line.File, line.LineNum)
		}
		return ScopeStmt{Body: body, Pos_: pos}, nil

	case "for":
		return p.parseFor(line, pos)

	case "macro":
		return p.parseMacroDef(line, pos)

	default:
		// %name(args) is a macro call.
		if strings.HasSuffix(strings.TrimSpace(line.Body), ")") || strings.Contains(line.Body, "(") ||
			strings.TrimSpace(line.Body) == "" {
			return p.parseMacroCall(line, pos)
		}
		return nil, fmt.Errorf("%s:%d: unknown directive %%%s", line.File, line.LineNum, line.Name)
	}
}

func (p *StmtParser) parseIf(line Line, pos Pos) (Stmt, error) {
	cond, err := ParseExprString(line.File, line.LineNum, line.Body)
	if err != nil {
		return nil, err
	}

	stmt := IfStmt{Cond: cond, Pos_: pos}

	then, term, termLine, err := p.parseBlockLine([]string{"elif", "else", "end"})
	if err != nil {
		return nil, err
	}
	stmt.Then = then

	for term == "elif" {
		elifCond, err := ParseExprString(termLine.File, termLine.LineNum, termLine.Body)
		if err != nil {
			return nil, err
		}
		body, nextTerm, nextLine, err := p.parseBlockLine([]string{"elif", "else", "end"})
		if err != nil {
			return nil, err
		}
		stmt.Elif = append(stmt.Elif, ElifClause{Cond: elifCond, Body: body})
		term, termLine = nextTerm, nextLine
	}

	switch term {
	case "else":
		elseBody, elseTerm, err := p.parseBlock([]string{"end"})
		if err != nil {
			return nil, err
		}
		if elseTerm != "end" {
			return nil, fmt.Errorf("%s:%d: %%else missing matching %%end", line.File, line.LineNum)
		}
		stmt.Else = &elseBody
		return stmt, nil
	case "end":
		return stmt, nil
	default:
		return nil, fmt.Errorf("%s:%d: %%if missing matching %%end", line.File, line.LineNum)
	}
}

func (p *StmtParser) parseFor(line Line, pos Pos) (Stmt, error) {
	// Body syntax: "<var> from <expr> to <expr>"
	rest := line.Body
	varName, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, fmt.Errorf("%s:%d: %%for requires 'var from A to B'", line.File, line.LineNum)
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "from")
	fromText, toText, ok := strings.Cut(rest, "to")
	if !ok {
		return nil, fmt.Errorf("%s:%d: %%for requires 'var from A to B'", line.File, line.LineNum)
	}

	fromExpr, err := ParseExprString(line.File, line.LineNum, strings.TrimSpace(fromText))
	if err != nil {
		return nil, err
	}
	toExpr, err := ParseExprString(line.File, line.LineNum, strings.TrimSpace(toText))
	if err != nil {
		return nil, err
	}

	body, term, err := p.parseBlock([]string{"end"})
	if err != nil {
		return nil, err
	}
	if term != "end" {
		return nil, fmt.Errorf("%s:%d: %%for missing matching %%end", line.File, line.LineNum)
	}

	return ForStmt{Var: strings.TrimSpace(varName), From: fromExpr, To: toExpr, Body: body, Pos_: pos}, nil
}

func (p *StmtParser) parseMacroDef(line Line, pos Pos) (Stmt, error) {
	nameAndArgs := line.Body
	name, argsText, ok := strings.Cut(nameAndArgs, "(")
	if !ok {
		return nil, fmt.Errorf("%s:%d: %%macro requires 'name(args)'", line.File, line.LineNum)
	}
	argsText = strings.TrimSuffix(strings.TrimSpace(argsText), ")")

	var args []string
	if strings.TrimSpace(argsText) != "" {
		for _, a := range strings.Split(argsText, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	body, term, err := p.parseBlock([]string{"end"})
	if err != nil {
		return nil, err
	}
	if term != "end" {
		return nil, fmt.Errorf("%s:%d: %%macro missing matching %%end", line.File, line.LineNum)
	}

	return MacroDef{Name: strings.TrimSpace(name), Args: args, Body: body, Pos_: pos}, nil
}

func (p *StmtParser) parseMacroCall(line Line, pos Pos) (Stmt, error) {
	argsText := strings.TrimSpace(line.Body)
	argsText = strings.TrimPrefix(argsText, "(")
	argsText = strings.TrimSuffix(argsText, ")")

	var args []Expr
	if strings.TrimSpace(argsText) != "" {
		parts := splitArgs(argsText)
		for _, part := range parts {
			e, err := ParseExprString(line.File, line.LineNum, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			args = append(args, e)
		}
	}
	return MacroCall{Name: line.Name, Args: args, Pos_: pos}, nil
}

// splitArgs splits a comma-separated argument list at the top
// nesting level only, so nested calls like f(g(a,b), c) split
// correctly.
func splitArgs(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}
