package translator

import (
	"fmt"

	"github.com/xplshn/vmt/pkg/token"
)

type ErrorKind int

const (
	StructuralArityMismatch ErrorKind = iota
	UnknownCommand
	UnknownSegment
	MalformedIndex
	IndexOutOfRange
	IllegalOperation
	InvalidLabelSyntax
)

var kindNames = map[ErrorKind]string{
	StructuralArityMismatch: "arity mismatch",
	UnknownCommand:          "unknown command",
	UnknownSegment:          "unknown segment",
	MalformedIndex:          "malformed index",
	IndexOutOfRange:         "index out of range",
	IllegalOperation:        "illegal operation",
	InvalidLabelSyntax:      "invalid label",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error(%d)", int(k))
}

// Diagnostic is the first error found in a translation unit.
type Diagnostic struct {
	Kind ErrorKind
	Unit string
	Tok  token.Token
	Msg  string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.Unit, d.Tok.Line, d.Kind, d.Msg)
}

// Line is the 1-based source line of the offending command.
func (d *Diagnostic) Line() int { return d.Tok.Line }
