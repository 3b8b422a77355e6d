package token

// Command is a VM language command keyword.
type Command int

const (
	Invalid Command = iota
	Add
	Sub
	Neg
	Eq
	Gt
	Lt
	And
	Or
	Not
	Push
	Pop
	Label
	Goto
	IfGoto
	Function
	Call
	Return
)

var KeywordMap = map[string]Command{
	"add":      Add,
	"sub":      Sub,
	"neg":      Neg,
	"eq":       Eq,
	"gt":       Gt,
	"lt":       Lt,
	"and":      And,
	"or":       Or,
	"not":      Not,
	"push":     Push,
	"pop":      Pop,
	"label":    Label,
	"goto":     Goto,
	"if-goto":  IfGoto,
	"function": Function,
	"call":     Call,
	"return":   Return,
}

// Reverse mapping from Command to the keyword string
var CommandStrings = make(map[Command]string)

func init() {
	for str, cmd := range KeywordMap {
		CommandStrings[cmd] = str
	}
}

func (c Command) String() string {
	if s, ok := CommandStrings[c]; ok {
		return s
	}
	return "invalid"
}

// Arity is the number of operands the command takes.
func (c Command) Arity() int {
	switch c {
	case Label, Goto, IfGoto:
		return 1
	case Push, Pop, Function, Call:
		return 2
	default:
		return 0
	}
}

func (c Command) IsArithmetic() bool { return c >= Add && c <= Not }

func (c Command) IsComparison() bool { return c == Eq || c == Gt || c == Lt }

// Token is one non-blank, comment-stripped source line split into fields.
type Token struct {
	Fields    []string
	FileIndex int
	Line      int
}

func (t Token) Keyword() string {
	if len(t.Fields) == 0 {
		return ""
	}
	return t.Fields[0]
}

func (t Token) Operands() []string {
	if len(t.Fields) < 2 {
		return nil
	}
	return t.Fields[1:]
}
