package ir

import (
	"fmt"

	"github.com/xplshn/vmt/pkg/segment"
	"github.com/xplshn/vmt/pkg/token"
)

// Instruction is a validated VM command. Which fields are meaningful
// depends on Op:
//
//	push/pop          Segment, Index
//	label/goto/if-goto Name
//	function          Name, Count (locals)
//	call              Name, Count (arguments)
type Instruction struct {
	Op      token.Command
	Segment segment.Segment
	Index   int
	Name    string
	Count   int
}

// String renders the instruction the way it is written in VM source.
func (in Instruction) String() string {
	switch in.Op.Arity() {
	case 1:
		return fmt.Sprintf("%s %s", in.Op, in.Name)
	case 2:
		if in.Op == token.Push || in.Op == token.Pop {
			return fmt.Sprintf("%s %s %d", in.Op, in.Segment, in.Index)
		}
		return fmt.Sprintf("%s %s %d", in.Op, in.Name, in.Count)
	}
	return in.Op.String()
}
