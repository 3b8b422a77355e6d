package codegen

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/ir"
	"github.com/xplshn/vmt/pkg/segment"
	"github.com/xplshn/vmt/pkg/token"
)

// Emitter lowers VM instructions of one translation unit into Hack
// assembly. The comparison and call counters belong to the unit; a fresh
// Emitter starts both at zero.
//
// Every name the Emitter invents starts with the unit and contains at
// least two '$'. Unit and function names never contain '$' and a user
// label F$L contains exactly one, so generated names cannot meet them:
//
//	unit$eq$3          comparison join
//	unit$callee$ret.0  return address
type Emitter struct {
	unit      string
	comments  bool
	cmpCount  int
	callCount int
	statics   map[segment.StaticKey]bool
}

func NewEmitter(unit string, cfg *config.Config) *Emitter {
	return &Emitter{
		unit:     unit,
		comments: cfg.IsFeatureEnabled(config.FeatSourceComments),
		statics:  make(map[segment.StaticKey]bool),
	}
}

// Statics lists the static cells the unit touched, ordered by index.
func (e *Emitter) Statics() []segment.StaticKey {
	keys := make([]segment.StaticKey, 0, len(e.statics))
	for k := range e.statics {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Index < keys[j].Index })
	return keys
}

// Emit lowers one instruction. fn is the enclosing function, used to
// qualify labels.
func (e *Emitter) Emit(in ir.Instruction, fn string) ([]string, error) {
	switch {
	case in.Op.IsComparison():
		return e.Compare(in.Op)
	case in.Op.IsArithmetic():
		return e.Arithmetic(in.Op)
	}

	switch in.Op {
	case token.Push:
		return e.Push(in.Segment, in.Index)
	case token.Pop:
		return e.Pop(in.Segment, in.Index)
	case token.Label:
		return e.Label(fn, in.Name), nil
	case token.Goto:
		return e.Goto(fn, in.Name), nil
	case token.IfGoto:
		return e.IfGoto(fn, in.Name), nil
	case token.Function:
		return e.Function(in.Name, in.Count), nil
	case token.Call:
		return e.Call(in.Name, in.Count), nil
	case token.Return:
		return e.Return(), nil
	}
	return nil, fmt.Errorf("no lowering for command '%s'", in.Op)
}

func (e *Emitter) Arithmetic(op token.Command) ([]string, error) {
	f := e.begin(ir.Instruction{Op: op})
	switch op {
	case token.Add:
		f.binary("M=D+M")
	case token.Sub:
		f.binary("M=M-D")
	case token.And:
		f.binary("M=D&M")
	case token.Or:
		f.binary("M=D|M")
	case token.Neg:
		f.unary("M=-M")
	case token.Not:
		f.unary("M=!M")
	case token.Eq, token.Gt, token.Lt:
		return e.Compare(op)
	default:
		return nil, fmt.Errorf("'%s' is not an arithmetic command", op)
	}
	return f.lines(), nil
}

var jumps = map[token.Command]string{
	token.Eq: "JEQ",
	token.Gt: "JGT",
	token.Lt: "JLT",
}

// Compare leaves -1 (true) or 0 (false) on the stack. Each call takes a
// fresh join label from the comparison counter.
func (e *Emitter) Compare(op token.Command) ([]string, error) {
	jump, ok := jumps[op]
	if !ok {
		return nil, fmt.Errorf("'%s' is not a comparison", op)
	}
	join := fmt.Sprintf("%s$%s$%d", e.unit, op, e.cmpCount)
	e.cmpCount++

	f := e.begin(ir.Instruction{Op: op})
	f.popD()
	f.emit("A=A-1", "D=M-D", "M=-1")
	f.emit("@"+join, "D;"+jump)
	f.topA()
	f.emit("M=0")
	f.label(join)
	return f.lines(), nil
}

func (e *Emitter) Push(seg segment.Segment, index int) ([]string, error) {
	addr, err := segment.Resolve(seg, index, e.unit, false)
	if err != nil {
		return nil, err
	}
	e.noteStatic(seg, index)

	f := e.begin(ir.Instruction{Op: token.Push, Segment: seg, Index: index})
	switch addr.Mode {
	case segment.Indirect:
		f.emit("@"+addr.Symbol, "D=M", "@"+strconv.Itoa(addr.Offset), "A=D+A", "D=M")
	case segment.Direct:
		f.emit("@"+addr.Symbol, "D=M")
	case segment.Immediate:
		f.emit("@"+strconv.Itoa(addr.Offset), "D=A")
	}
	f.pushD()
	return f.lines(), nil
}

func (e *Emitter) Pop(seg segment.Segment, index int) ([]string, error) {
	addr, err := segment.Resolve(seg, index, e.unit, true)
	if err != nil {
		return nil, err
	}
	e.noteStatic(seg, index)

	f := e.begin(ir.Instruction{Op: token.Pop, Segment: seg, Index: index})
	switch addr.Mode {
	case segment.Indirect:
		f.popIndirect(addr.Symbol, addr.Offset)
	case segment.Direct:
		f.popD()
		f.emit("@"+addr.Symbol, "M=D")
	default:
		return nil, fmt.Errorf("%w: cannot pop into %s", segment.ErrIllegalOperation, seg)
	}
	return f.lines(), nil
}

// QualifyLabel scopes a VM label to its function.
func QualifyLabel(fn, label string) string { return fn + "$" + label }

func (e *Emitter) Label(fn, label string) []string {
	f := e.begin(ir.Instruction{Op: token.Label, Name: label})
	f.label(QualifyLabel(fn, label))
	return f.lines()
}

func (e *Emitter) Goto(fn, label string) []string {
	f := e.begin(ir.Instruction{Op: token.Goto, Name: label})
	f.emit("@"+QualifyLabel(fn, label), "0;JMP")
	return f.lines()
}

func (e *Emitter) IfGoto(fn, label string) []string {
	f := e.begin(ir.Instruction{Op: token.IfGoto, Name: label})
	f.popD()
	f.emit("@"+QualifyLabel(fn, label), "D;JNE")
	return f.lines()
}

// Function declares name and reserves nLocals stack slots. The slots are
// not cleared; they hold whatever was in RAM before.
func (e *Emitter) Function(name string, nLocals int) []string {
	f := e.begin(ir.Instruction{Op: token.Function, Name: name, Count: nLocals})
	f.label(name)
	f.emit("@"+strconv.Itoa(nLocals), "D=A", "@SP", "M=D+M")
	return f.lines()
}

// frameRegisters is the order the caller's frame is pushed in. Return
// restores it back to front.
var frameRegisters = []string{"LCL", "ARG", "THIS", "THAT"}

// FrameSize counts the return address plus the saved registers.
const FrameSize = 5

// returnScratch holds the return address while the frame is torn down.
const returnScratch = "R14"

func (e *Emitter) Call(name string, nArgs int) []string {
	ret := fmt.Sprintf("%s$%s$ret.%d", e.unit, name, e.callCount)
	e.callCount++

	f := e.begin(ir.Instruction{Op: token.Call, Name: name, Count: nArgs})
	f.emit("@"+ret, "D=A")
	f.pushD()
	for _, reg := range frameRegisters {
		f.emit("@"+reg, "D=M")
		f.pushD()
	}
	f.emit("@SP", "D=M", "@LCL", "M=D")
	f.emit("@"+strconv.Itoa(nArgs+FrameSize), "D=D-A", "@ARG", "M=D")
	f.emit("@"+name, "0;JMP")
	f.label(ret)
	return f.lines()
}

func (e *Emitter) Return() []string {
	f := e.begin(ir.Instruction{Op: token.Return})
	// The return address is read first: with no arguments ARG points at it,
	// and the return value is about to be stored there.
	f.emit("@LCL", "D=M", "@"+strconv.Itoa(FrameSize), "A=D-A", "D=M", "@"+returnScratch, "M=D")
	f.emit("@SP", "A=M-1", "D=M", "@ARG", "A=M", "M=D")
	f.emit("D=A", "@SP", "M=D+1")
	for i := len(frameRegisters) - 1; i >= 0; i-- {
		f.restoreFromFrame(frameRegisters[i])
	}
	f.emit("@"+returnScratch, "A=M", "0;JMP")
	return f.lines()
}

// Bootstrap points SP at stackBase and calls entry with no arguments.
func (e *Emitter) Bootstrap(stackBase int, entry string) []string {
	f := e.comment("bootstrap")
	f.emit("@"+strconv.Itoa(stackBase), "D=A", "@SP", "M=D")
	return append(f.lines(), e.Call(entry, 0)...)
}

func (e *Emitter) noteStatic(seg segment.Segment, index int) {
	if seg == segment.Static {
		e.statics[segment.StaticKey{Unit: e.unit, Index: index}] = true
	}
}

// begin opens a fragment, echoing the VM command when source comments are
// on.
func (e *Emitter) begin(in ir.Instruction) *fragment {
	return e.comment(in.String())
}

func (e *Emitter) comment(text string) *fragment {
	f := &fragment{}
	if e.comments {
		f.emit("//" + text)
	}
	return f
}
