// Package segment describes the eight VM memory segments and how each one
// maps onto the Hack machine's registers and RAM.
package segment

import (
	"errors"
	"fmt"
	"strconv"
)

type Segment int

const (
	Local Segment = iota
	Argument
	This
	That
	Pointer
	Temp
	Constant
	Static
)

const (
	// TempBase is the RAM address of temp 0 (R5).
	TempBase = 5
	TempSize = 8
	// PointerBase is the RAM address of pointer 0 (THIS).
	PointerBase = 3
	PointerSize = 2
)

var ErrIllegalOperation = errors.New("illegal operation")

var names = map[string]Segment{
	"local":    Local,
	"argument": Argument,
	"this":     This,
	"that":     That,
	"pointer":  Pointer,
	"temp":     Temp,
	"constant": Constant,
	"static":   Static,
}

func FromToken(s string) (Segment, bool) {
	seg, ok := names[s]
	return seg, ok
}

func (s Segment) String() string {
	switch s {
	case Local:
		return "local"
	case Argument:
		return "argument"
	case This:
		return "this"
	case That:
		return "that"
	case Pointer:
		return "pointer"
	case Temp:
		return "temp"
	case Constant:
		return "constant"
	case Static:
		return "static"
	}
	return fmt.Sprintf("segment(%d)", int(s))
}

// Register returns the base-pointer register of an indirect segment.
func (s Segment) Register() (string, bool) {
	switch s {
	case Local:
		return "LCL", true
	case Argument:
		return "ARG", true
	case This:
		return "THIS", true
	case That:
		return "THAT", true
	}
	return "", false
}

// Bound reports the number of valid indices for fixed-size segments.
func (s Segment) Bound() (int, bool) {
	switch s {
	case Temp:
		return TempSize, true
	case Pointer:
		return PointerSize, true
	}
	return 0, false
}

type Mode int

const (
	// Indirect addresses are *(Symbol) + Offset.
	Indirect Mode = iota
	// Direct addresses name a RAM cell through Symbol.
	Direct
	// Immediate is the literal Offset itself.
	Immediate
)

// Address is where a segment index lives on the machine.
type Address struct {
	Mode   Mode
	Symbol string
	Offset int
}

// StaticKey identifies a static variable. Two units never share a cell
// because the unit is part of the key. The symbol is unit$index: no
// function name contains '$', and a user label F$L cannot start L with a
// digit.
type StaticKey struct {
	Unit  string
	Index int
}

func (k StaticKey) Symbol() string { return k.Unit + "$" + strconv.Itoa(k.Index) }

// Resolve maps segment[index] onto the machine. Only popping into the
// constant segment fails; range checks on temp and pointer belong to the
// caller.
func Resolve(seg Segment, index int, unit string, pop bool) (Address, error) {
	switch seg {
	case Local, Argument, This, That:
		reg, _ := seg.Register()
		return Address{Mode: Indirect, Symbol: reg, Offset: index}, nil
	case Temp:
		return Address{Mode: Direct, Symbol: strconv.Itoa(TempBase + index)}, nil
	case Pointer:
		switch index {
		case 0:
			return Address{Mode: Direct, Symbol: "THIS"}, nil
		case 1:
			return Address{Mode: Direct, Symbol: "THAT"}, nil
		}
		return Address{Mode: Direct, Symbol: strconv.Itoa(PointerBase + index)}, nil
	case Static:
		return Address{Mode: Direct, Symbol: StaticKey{Unit: unit, Index: index}.Symbol()}, nil
	case Constant:
		if pop {
			return Address{}, fmt.Errorf("%w: cannot pop into the constant segment", ErrIllegalOperation)
		}
		return Address{Mode: Immediate, Offset: index}, nil
	}
	return Address{}, fmt.Errorf("unknown segment %d", int(seg))
}
