package asm

import "fmt"

// VariableBase is the first RAM address handed out to variables.
const VariableBase = 16

var predefined = map[string]int{
	"SP": 0, "LCL": 1, "ARG": 2, "THIS": 3, "THAT": 4,
	"R0": 0, "R1": 1, "R2": 2, "R3": 3, "R4": 4, "R5": 5, "R6": 6, "R7": 7,
	"R8": 8, "R9": 9, "R10": 10, "R11": 11, "R12": 12, "R13": 13, "R14": 14, "R15": 15,
	"SCREEN": 16384, "KBD": 24576,
}

type SymbolTable struct {
	table   map[string]int
	nextVar int
}

func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{table: make(map[string]int, len(predefined)), nextVar: VariableBase}
	for name, addr := range predefined {
		st.table[name] = addr
	}
	return st
}

// DefineLabel binds a (LABEL) to a ROM address. Labels may not shadow
// predefined symbols or be defined twice.
func (st *SymbolTable) DefineLabel(name string, addr int) error {
	if _, ok := predefined[name]; ok {
		return fmt.Errorf("label '%s' redefines a predefined symbol", name)
	}
	if _, ok := st.table[name]; ok {
		return fmt.Errorf("label '%s' is already defined", name)
	}
	st.table[name] = addr
	return nil
}

// Resolve returns the address of name, allocating a new variable the
// first time an unknown name is seen.
func (st *SymbolTable) Resolve(name string) int {
	if addr, ok := st.table[name]; ok {
		return addr
	}
	addr := st.nextVar
	st.table[name] = addr
	st.nextVar++
	return addr
}

func (st *SymbolTable) Lookup(name string) (int, bool) {
	addr, ok := st.table[name]
	return addr, ok
}

// Variables counts the RAM cells allocated to variables.
func (st *SymbolTable) Variables() int { return st.nextVar - VariableBase }
