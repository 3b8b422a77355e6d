// Package asm is a two-pass assembler for Hack assembly. The first pass
// binds (LABEL) declarations to ROM addresses; the second encodes each
// instruction, allocating RAM for symbols that are not labels.
package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// Error is the first problem found in the source.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Msg) }

type Program struct {
	Words   []uint16
	Symbols *SymbolTable
}

// Hack renders the program as .hack text: one 16-digit binary word per line.
func (p *Program) Hack() string {
	var sb strings.Builder
	for _, w := range p.Words {
		fmt.Fprintf(&sb, "%016b\n", w)
	}
	return sb.String()
}

type parsedLine struct {
	lineNo int
	text   string
}

// Assemble assembles source text.
func Assemble(source string) (*Program, error) {
	return AssembleLines(strings.Split(source, "\n"))
}

// AssembleLines assembles one instruction per element; line numbers in
// errors are element indices plus one.
func AssembleLines(lines []string) (*Program, error) {
	var instrs []parsedLine
	symbols := NewSymbolTable()

	for i, raw := range lines {
		text := clean(raw)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "(") {
			name, ok := strings.CutPrefix(text, "(")
			name, closed := strings.CutSuffix(name, ")")
			if !ok || !closed || !isSymbol(name) {
				return nil, &Error{Line: i + 1, Msg: fmt.Sprintf("malformed label declaration '%s'", text)}
			}
			if err := symbols.DefineLabel(name, len(instrs)); err != nil {
				return nil, &Error{Line: i + 1, Msg: err.Error()}
			}
			continue
		}
		instrs = append(instrs, parsedLine{lineNo: i + 1, text: text})
	}

	prog := &Program{Words: make([]uint16, 0, len(instrs)), Symbols: symbols}
	for _, pl := range instrs {
		w, err := encodeLine(pl.text, symbols)
		if err != nil {
			return nil, &Error{Line: pl.lineNo, Msg: err.Error()}
		}
		prog.Words = append(prog.Words, w)
	}
	return prog, nil
}

func encodeLine(text string, symbols *SymbolTable) (uint16, error) {
	if operand, ok := strings.CutPrefix(text, "@"); ok {
		if operand == "" {
			return 0, fmt.Errorf("empty A-instruction")
		}
		if isSymbol(operand) {
			return EncodeA(symbols.Resolve(operand))
		}
		v, err := strconv.Atoi(operand)
		if err != nil {
			return 0, fmt.Errorf("invalid A-instruction operand '%s'", operand)
		}
		return EncodeA(v)
	}

	rest := text
	d, j := "", ""
	if before, after, ok := strings.Cut(rest, "="); ok {
		d, rest = before, after
	}
	if before, after, ok := strings.Cut(rest, ";"); ok {
		rest, j = before, after
	}
	if d == "null" {
		d = ""
	}
	if j == "null" {
		j = ""
	}
	return EncodeC(d, rest, j)
}

// clean strips the comment and every blank.
func clean(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return strings.Join(strings.Fields(line), "")
}

// isSymbol accepts letters, digits, '_', '.', '$' and ':', not starting
// with a digit.
func isSymbol(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || r == '$' || r == ':':
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
