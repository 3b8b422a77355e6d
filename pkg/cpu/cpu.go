// Package cpu emulates the Hack computer: 16-bit words, an A and a D
// register, separate instruction ROM and data RAM.
package cpu

import (
	"errors"
	"fmt"
)

const (
	MemSize = 1 << 15

	SP   = 0
	LCL  = 1
	ARG  = 2
	THIS = 3
	THAT = 4
)

var ErrPCOutOfRange = errors.New("program counter left ROM")

type CPU struct {
	ROM    []uint16
	RAM    [MemSize]int16
	A, D   int16
	PC     uint16
	Cycles uint64
}

func New(rom []uint16) *CPU {
	return &CPU{ROM: rom}
}

// Reset restarts execution at address 0. RAM is left alone, as on the
// real machine.
func (c *CPU) Reset() {
	c.A, c.D, c.PC, c.Cycles = 0, 0, 0, 0
}

func addr(a int16) uint16 { return uint16(a) & (MemSize - 1) }

// Step executes the instruction at PC.
func (c *CPU) Step() error {
	if int(c.PC) >= len(c.ROM) {
		return fmt.Errorf("%w: pc=%d", ErrPCOutOfRange, c.PC)
	}
	instr := c.ROM[c.PC]
	c.Cycles++

	if instr&0x8000 == 0 {
		c.A = int16(instr)
		c.PC++
		return nil
	}

	y := c.A
	if instr&(1<<12) != 0 {
		y = c.RAM[addr(c.A)]
	}
	out := alu(c.D, y, instr>>6)

	oldA := c.A
	if instr&(1<<3) != 0 {
		c.RAM[addr(oldA)] = out
	}
	if instr&(1<<5) != 0 {
		c.A = out
	}
	if instr&(1<<4) != 0 {
		c.D = out
	}

	if jumps(out, instr&0b111) {
		c.PC = uint16(oldA)
	} else {
		c.PC++
	}
	return nil
}

// alu computes the Hack ALU output for control bits zx nx zy ny f no,
// which are the low six bits of ctl.
func alu(x, y int16, ctl uint16) int16 {
	if ctl&0b100000 != 0 {
		x = 0
	}
	if ctl&0b010000 != 0 {
		x = ^x
	}
	if ctl&0b001000 != 0 {
		y = 0
	}
	if ctl&0b000100 != 0 {
		y = ^y
	}
	var out int16
	if ctl&0b000010 != 0 {
		out = x + y
	} else {
		out = x & y
	}
	if ctl&0b000001 != 0 {
		out = ^out
	}
	return out
}

func jumps(out int16, j uint16) bool {
	return (j&0b100 != 0 && out < 0) ||
		(j&0b010 != 0 && out == 0) ||
		(j&0b001 != 0 && out > 0)
}

// Run executes up to maxCycles instructions.
func (c *CPU) Run(maxCycles uint64) error {
	for i := uint64(0); i < maxCycles; i++ {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil executes until PC reaches pc. It fails if that takes more than
// maxCycles instructions.
func (c *CPU) RunUntil(pc uint16, maxCycles uint64) error {
	for i := uint64(0); c.PC != pc; i++ {
		if i >= maxCycles {
			return fmt.Errorf("pc %d not reached within %d cycles", pc, maxCycles)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Stack returns RAM[base:SP].
func (c *CPU) Stack(base int) []int16 {
	sp := int(c.RAM[SP])
	if sp < base || sp > MemSize {
		return nil
	}
	return append([]int16(nil), c.RAM[base:sp]...)
}

// Top is the value at SP-1.
func (c *CPU) Top() int16 { return c.RAM[addr(c.RAM[SP]-1)] }
