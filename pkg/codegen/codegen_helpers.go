package codegen

import "strconv"

// fragment accumulates the assembly for one VM instruction. Its helpers
// are the register idioms every lowering is built from; each documents
// what it leaves in A and D.
type fragment struct{ out []string }

func (f *fragment) emit(lines ...string) { f.out = append(f.out, lines...) }

func (f *fragment) label(name string) { f.emit("(" + name + ")") }

func (f *fragment) lines() []string { return f.out }

// popD decrements SP and loads the old top into D. A is left pointing at
// the vacated cell.
func (f *fragment) popD() { f.emit("@SP", "AM=M-1", "D=M") }

// topA points A at the current top of stack.
func (f *fragment) topA() { f.emit("@SP", "A=M-1") }

// pushD stores D on top of the stack and increments SP.
func (f *fragment) pushD() { f.emit("@SP", "AM=M+1", "A=A-1", "M=D") }

// binary pops the right operand into D and combines it into the left
// operand in place.
func (f *fragment) binary(op string) {
	f.popD()
	f.topA()
	f.emit(op)
}

func (f *fragment) unary(op string) {
	f.topA()
	f.emit(op)
}

// popIndirect stores the top of stack at *(reg)+offset using only A and D.
// D carries value+address while A recovers the value from the vacated
// stack cell, so neither is lost.
func (f *fragment) popIndirect(reg string, offset int) {
	f.popD()
	f.emit("@"+reg, "D=D+M", "@"+strconv.Itoa(offset), "D=D+A")
	f.emit("@SP", "A=M", "A=M")
	f.emit("A=D-A", "M=D-A")
}

// restoreFromFrame walks LCL down by one and copies the saved word into reg.
func (f *fragment) restoreFromFrame(reg string) {
	f.emit("@LCL", "AM=M-1", "D=M", "@"+reg, "M=D")
}
