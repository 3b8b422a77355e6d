package lexer

import (
	"unicode"

	"github.com/xplshn/vmt/pkg/token"
)

// Lexer turns VM source text into one token.Token per meaningful line.
// Everything from "//" to the end of a line is a comment, and lines that
// are empty once the comment is gone produce nothing.
type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{source: source, fileIndex: fileIndex, line: 1}
}

// Next returns the next non-blank line. ok is false at end of input.
func (l *Lexer) Next() (tok token.Token, ok bool) {
	for !l.isAtEnd() {
		line := l.line
		fields := l.scanLine()
		if len(fields) > 0 {
			return token.Token{Fields: fields, FileIndex: l.fileIndex, Line: line}, true
		}
	}
	return token.Token{FileIndex: l.fileIndex, Line: l.line}, false
}

// Lex scans the whole source.
func Lex(source string, fileIndex int) []token.Token {
	l := NewLexer([]rune(source), fileIndex)
	var toks []token.Token
	for {
		tok, ok := l.Next()
		if !ok {
			return toks
		}
		toks = append(toks, tok)
	}
}

// scanLine consumes one physical line, including its terminator, and
// returns its whitespace-separated fields.
func (l *Lexer) scanLine() []string {
	var fields []string
	start := -1
	flush := func() {
		if start >= 0 {
			fields = append(fields, string(l.source[start:l.pos]))
			start = -1
		}
	}

	for !l.isAtEnd() {
		ch := l.peek()
		switch {
		case ch == '\n':
			flush()
			l.advance()
			return fields
		case ch == '/' && l.peekNext() == '/':
			flush()
			l.skipToEOL()
		case unicode.IsSpace(ch):
			flush()
			l.advance()
		default:
			if start < 0 {
				start = l.pos
			}
			l.advance()
		}
	}
	flush()
	return fields
}

func (l *Lexer) skipToEOL() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	ch := l.source[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
	}
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }
