package asm

import "fmt"

// MaxConstant is the largest value an A-instruction can load.
const MaxConstant = 1<<15 - 1

// comp codes are the 7 bits a c1 c2 c3 c4 c5 c6.
var comp = map[string]uint16{
	"0":   0b0101010,
	"1":   0b0111111,
	"-1":  0b0111010,
	"D":   0b0001100,
	"A":   0b0110000,
	"M":   0b1110000,
	"!D":  0b0001101,
	"!A":  0b0110001,
	"!M":  0b1110001,
	"-D":  0b0001111,
	"-A":  0b0110011,
	"-M":  0b1110011,
	"D+1": 0b0011111,
	"A+1": 0b0110111,
	"M+1": 0b1110111,
	"D-1": 0b0001110,
	"A-1": 0b0110010,
	"M-1": 0b1110010,
	"D+A": 0b0000010,
	"D+M": 0b1000010,
	"D-A": 0b0010011,
	"D-M": 0b1010011,
	"A-D": 0b0000111,
	"M-D": 0b1000111,
	"D&A": 0b0000000,
	"D&M": 0b1000000,
	"D|A": 0b0010101,
	"D|M": 0b1010101,
}

// Commuted spellings of the symmetric operations.
var compAliases = map[string]string{
	"A+D": "D+A", "M+D": "D+M",
	"A&D": "D&A", "M&D": "D&M",
	"A|D": "D|A", "M|D": "D|M",
	"1+D": "D+1", "1+A": "A+1", "1+M": "M+1",
}

var dest = map[string]uint16{
	"":    0b000,
	"M":   0b001,
	"D":   0b010,
	"MD":  0b011,
	"DM":  0b011,
	"A":   0b100,
	"AM":  0b101,
	"MA":  0b101,
	"AD":  0b110,
	"DA":  0b110,
	"AMD": 0b111,
}

var jump = map[string]uint16{
	"":    0b000,
	"JGT": 0b001,
	"JEQ": 0b010,
	"JGE": 0b011,
	"JLT": 0b100,
	"JNE": 0b101,
	"JLE": 0b110,
	"JMP": 0b111,
}

func EncodeA(value int) (uint16, error) {
	if value < 0 || value > MaxConstant {
		return 0, fmt.Errorf("A-instruction value %d does not fit in 15 bits", value)
	}
	return uint16(value), nil
}

// EncodeC assembles dest=comp;jump. dest and jump may be empty.
func EncodeC(d, c, j string) (uint16, error) {
	if alias, ok := compAliases[c]; ok {
		c = alias
	}
	cBits, ok := comp[c]
	if !ok {
		return 0, fmt.Errorf("invalid comp field '%s'", c)
	}
	dBits, ok := dest[d]
	if !ok {
		return 0, fmt.Errorf("invalid dest field '%s'", d)
	}
	jBits, ok := jump[j]
	if !ok {
		return 0, fmt.Errorf("invalid jump field '%s'", j)
	}
	return 0b111<<13 | cBits<<6 | dBits<<3 | jBits, nil
}
