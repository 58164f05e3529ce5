package basm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bm/bm"
)

// Symbol is one resolved binding exported to a symbol-table side file,
// the format original_source/'s debugger reads to map addresses back
// to names (supplemented feature: bdb itself is out of scope, but the
// side-file format it depends on is cheap to carry and exercises no
// behavior the translator doesn't already have).
type Symbol struct {
	Name    string
	Address uint64
	Type    bm.Type
}

// WriteSymbols emits one "address\ttype-index\tname" line per label or
// const bound in scope (spec §6), sorted by name for a stable
// diff-friendly file. Labels carry TypeInstAddr; consts carry their
// declared numeric supertype, the same heuristic the translator uses
// to give PUSH operands a verifier-visible type.
func WriteSymbols(w io.Writer, scope *Scope) error {
	bw := bufio.NewWriter(w)
	for _, name := range scope.LocalNames() {
		b := scope.bindings[name]
		if b.Status != Evaluated {
			continue
		}
		var typ bm.Type
		switch b.Kind {
		case BindLabel:
			typ = bm.TypeInstAddr
		case BindConst:
			typ = staticTypeOf(b.Expr, scope)
		default:
			continue
		}
		if _, err := fmt.Fprintf(bw, "%d\t%d\t%s\n", b.Value, int(typ), b.Name); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSymbols parses the format WriteSymbols produces.
func ReadSymbols(r io.Reader) ([]Symbol, error) {
	var out []Symbol
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		addrText, rest, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("malformed symbol line %q", line)
		}
		typeText, name, ok := strings.Cut(rest, "\t")
		if !ok {
			return nil, fmt.Errorf("malformed symbol line %q", line)
		}
		addr, err := strconv.ParseUint(addrText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed symbol address in %q: %w", line, err)
		}
		typeIdx, err := strconv.Atoi(typeText)
		if err != nil {
			return nil, fmt.Errorf("malformed symbol type index in %q: %w", line, err)
		}
		out = append(out, Symbol{Name: name, Address: addr, Type: bm.Type(typeIdx)})
	}
	return out, sc.Err()
}
