package basm

import (
	"fmt"
	"strconv"
	"strings"
)

// ExprParser does precedence-climbing parsing of one line's worth of
// expression tokens (spec §4.4): `==`/`<`/`>` bind loosest, then
// `+`/`-`, then `*`/`/`/`%`, with parens and built-in/macro calls at
// the leaves.
type ExprParser struct {
	tz   *Tokenizer
	file string
	line int
}

func NewExprParser(file string, line int, src string) *ExprParser {
	return &ExprParser{tz: NewTokenizer(src), file: file, line: line}
}

func (p *ExprParser) pos(col int) Pos { return Pos{File: p.file, Line: p.line, Col: col} }

// ParseExpr parses a full expression and requires the tokenizer to be
// at EOF afterward.
func (p *ExprParser) ParseExpr() (Expr, error) {
	e, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	tok, err := p.tz.Peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokEOF {
		return nil, fmt.Errorf("%s:%d: unexpected trailing token %q", p.file, p.line, tok.Text)
	}
	return e, nil
}

var precedence = map[TokenKind]int{
	TokEq: 1, TokLt: 1, TokGt: 1,
	TokPlus: 2, TokMinus: 2,
	TokStar: 3, TokSlash: 3, TokPercent: 3,
}

var tokToOp = map[TokenKind]BinOp{
	TokEq: OpEq, TokLt: OpLt, TokGt: OpGt,
	TokPlus: OpAdd, TokMinus: OpSub,
	TokStar: OpMul, TokSlash: OpDiv, TokPercent: OpMod,
}

func (p *ExprParser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok, err := p.tz.Peek()
		if err != nil {
			return nil, err
		}
		prec, ok := precedence[tok.Kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.tz.Next()

		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: tokToOp[tok.Kind], Left: left, Right: right, Pos_: p.pos(tok.Col)}
	}
}

func (p *ExprParser) parseUnary() (Expr, error) {
	tok, err := p.tz.Peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokMinus {
		p.tz.Next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: OpSub, Left: IntLit{Value: 0, Pos_: p.pos(tok.Col)}, Right: operand, Pos_: p.pos(tok.Col)}, nil
	}
	return p.parsePrimary()
}

func (p *ExprParser) parsePrimary() (Expr, error) {
	tok, err := p.tz.Next()
	if err != nil {
		return nil, err
	}
	pos := p.pos(tok.Col)

	switch tok.Kind {
	case TokInt:
		v, err := parseIntLiteral(tok.Text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", p.file, p.line, err)
		}
		return IntLit{Value: v, Pos_: pos}, nil
	case TokFloat:
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", p.file, p.line, err)
		}
		return FloatLit{Value: v, Pos_: pos}, nil
	case TokChar:
		return CharLit{Bytes: []byte(tok.Text), Pos_: pos}, nil
	case TokString:
		return StringLit{Value: tok.Text, Pos_: pos}, nil
	case TokLParen:
		inner, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		closing, err := p.tz.Next()
		if err != nil {
			return nil, err
		}
		if closing.Kind != TokRParen {
			return nil, fmt.Errorf("%s:%d: expected closing paren", p.file, p.line)
		}
		return inner, nil
	case TokIdent:
		next, err := p.tz.Peek()
		if err != nil {
			return nil, err
		}
		if next.Kind == TokLParen {
			return p.parseCall(tok.Text, pos)
		}
		return Ident{Name: tok.Text, Pos_: pos}, nil
	default:
		return nil, fmt.Errorf("%s:%d: unexpected token %q in expression", p.file, p.line, tok.Text)
	}
}

func (p *ExprParser) parseCall(name string, pos Pos) (Expr, error) {
	if _, err := p.tz.Next(); err != nil { // consume '('
		return nil, err
	}
	var args []Expr
	tok, err := p.tz.Peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokRParen {
		for {
			arg, err := p.parseBinary(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			tok, err := p.tz.Next()
			if err != nil {
				return nil, err
			}
			if tok.Kind == TokRParen {
				break
			}
			if tok.Kind != TokComma {
				return nil, fmt.Errorf("%s:%d: expected ',' or ')' in call to %s", p.file, p.line, name)
			}
		}
	} else {
		p.tz.Next() // consume ')'
	}
	return CallExpr{Name: name, Args: args, Pos_: pos}, nil
}

func parseIntLiteral(text string) (int64, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		u, err := strconv.ParseUint(text[2:], 16, 64)
		return int64(u), err
	}
	return strconv.ParseInt(text, 10, 64)
}

// ParseExprString is a convenience entry point for parsing a bare
// expression string (directive bodies, `%assert`, `%const` values).
func ParseExprString(file string, line int, src string) (Expr, error) {
	return NewExprParser(file, line, src).ParseExpr()
}
