package translator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/vmt/pkg/codegen"
	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/ir"
	"github.com/xplshn/vmt/pkg/segment"
	"github.com/xplshn/vmt/pkg/token"
	"github.com/xplshn/vmt/pkg/util"
)

// Unit is the assembly produced for one source file.
type Unit struct {
	Name      string
	Lines     []string
	Functions []string
	Statics   []segment.StaticKey
}

type context struct {
	cfg             *config.Config
	unit            string
	emitter         *codegen.Emitter
	currentFunction string
	functions       []string
	out             []string
	diag            *Diagnostic
}

// Translate lowers the commands of one unit. Only the first error is kept;
// the remaining commands are still decoded so function boundaries stay
// right, but nothing after the error is emitted and the unit yields no
// output.
func Translate(unit string, toks []token.Token, cfg *config.Config) (*Unit, error) {
	if !IsIdentifier(unit) {
		return nil, fmt.Errorf("unit name '%s' is not a valid identifier", unit)
	}
	ctx := &context{cfg: cfg, unit: unit, emitter: codegen.NewEmitter(unit, cfg)}

	if len(toks) == 0 {
		util.Warn(cfg, config.WarnEmptyUnit, token.Token{FileIndex: -1}, "unit '%s' contains no commands", unit)
	}
	for _, tok := range toks {
		ctx.translate(tok)
	}

	if ctx.diag != nil {
		return nil, ctx.diag
	}
	return &Unit{
		Name:      unit,
		Lines:     ctx.out,
		Functions: ctx.functions,
		Statics:   ctx.emitter.Statics(),
	}, nil
}

func (ctx *context) translate(tok token.Token) {
	in, diag := ctx.decode(tok)
	// A function line opens a new scope even when its count is malformed.
	if in.Op == token.Function && in.Name != "" {
		ctx.currentFunction = in.Name
		ctx.functions = append(ctx.functions, in.Name)
	}
	if diag != nil {
		ctx.fail(diag)
		return
	}
	if ctx.diag != nil {
		return
	}

	ctx.lint(in, tok)
	lines, err := ctx.emitter.Emit(in, ctx.currentFunction)
	if err != nil {
		kind := UnknownCommand
		if errors.Is(err, segment.ErrIllegalOperation) {
			kind = IllegalOperation
		}
		ctx.fail(ctx.errorf(kind, tok, "%v", err))
		return
	}
	ctx.out = append(ctx.out, lines...)
}

func (ctx *context) fail(d *Diagnostic) {
	if ctx.diag == nil {
		ctx.diag = d
	}
}

func (ctx *context) errorf(kind ErrorKind, tok token.Token, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{Kind: kind, Unit: ctx.unit, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

func (ctx *context) decode(tok token.Token) (ir.Instruction, *Diagnostic) {
	var in ir.Instruction

	cmd, ok := token.KeywordMap[tok.Keyword()]
	if !ok {
		return in, ctx.errorf(UnknownCommand, tok, "unknown command '%s'", tok.Keyword())
	}
	in.Op = cmd

	ops := tok.Operands()
	if len(ops) != cmd.Arity() {
		return in, ctx.errorf(StructuralArityMismatch, tok, "'%s' takes %d operand(s), got %d", cmd, cmd.Arity(), len(ops))
	}

	switch cmd {
	case token.Push, token.Pop:
		seg, ok := segment.FromToken(ops[0])
		if !ok {
			return in, ctx.errorf(UnknownSegment, tok, "unknown segment '%s'", ops[0])
		}
		in.Segment = seg
		if cmd == token.Pop && seg == segment.Constant {
			return in, ctx.errorf(IllegalOperation, tok, "cannot pop into the constant segment")
		}
		idx, err := parseIndex(ops[1])
		if err != nil {
			return in, ctx.errorf(MalformedIndex, tok, "%v", err)
		}
		if bound, ok := seg.Bound(); ok && idx >= bound {
			return in, ctx.errorf(IndexOutOfRange, tok, "%s index %d is out of range [0, %d]", seg, idx, bound-1)
		}
		in.Index = idx
	case token.Label, token.Goto, token.IfGoto:
		if !IsIdentifier(ops[0]) {
			return in, ctx.errorf(InvalidLabelSyntax, tok, "'%s' is not a valid label", ops[0])
		}
		in.Name = ops[0]
	case token.Function, token.Call:
		if !IsIdentifier(ops[0]) {
			return in, ctx.errorf(InvalidLabelSyntax, tok, "'%s' is not a valid function name", ops[0])
		}
		in.Name = ops[0]
		n, err := parseIndex(ops[1])
		if err != nil {
			return in, ctx.errorf(MalformedIndex, tok, "%v", err)
		}
		in.Count = n
	}
	return in, nil
}

func (ctx *context) lint(in ir.Instruction, tok token.Token) {
	switch in.Op {
	case token.Label, token.Goto, token.IfGoto:
		if ctx.currentFunction == "" {
			util.Warn(ctx.cfg, config.WarnLabelOutsideFunction, tok, "'%s %s' is not inside a function", in.Op, in.Name)
		}
	case token.Function:
		if in.Count > 0 {
			util.Warn(ctx.cfg, config.WarnUnzeroedLocals, tok, "function '%s' reserves %d local(s) without clearing them", in.Name, in.Count)
		}
	}
}

// parseIndex accepts a plain decimal, non-negative integer.
func parseIndex(s string) (int, error) {
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, fmt.Errorf("'%s' is not a non-negative integer", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("'%s' is too large", s)
	}
	return n, nil
}

// IsIdentifier reports whether s is a valid label or function name: a
// letter, '_', '.' or ':' followed by letters, digits, '_', '.' or ':'.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || r == ':':
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
