package translator

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/vmt/pkg/codegen"
	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/lexer"
	"github.com/xplshn/vmt/pkg/segment"
	"github.com/xplshn/vmt/pkg/util"
)

func translate(t *testing.T, unit, src string) (*Unit, error) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatSourceComments, false)
	return Translate(unit, lexer.Lex(src, 0), cfg)
}

func diagnostic(t *testing.T, err error) *Diagnostic {
	t.Helper()
	var d *Diagnostic
	if !errors.As(err, &d) {
		t.Fatalf("expected a *Diagnostic, got %v", err)
	}
	return d
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		src  string
		kind ErrorKind
	}{
		{"frobnicate", UnknownCommand},
		{"Push constant 1", UnknownCommand},
		{"add 1", StructuralArityMismatch},
		{"push constant", StructuralArityMismatch},
		{"return now", StructuralArityMismatch},
		{"call Foo.f", StructuralArityMismatch},
		{"push stack 1", UnknownSegment},
		{"pop Local 1", UnknownSegment},
		{"pop constant 1", IllegalOperation},
		{"pop constant x", IllegalOperation},
		{"push local -1", MalformedIndex},
		{"push local 1a", MalformedIndex},
		{"push argument 0x10", MalformedIndex},
		{"function Foo.f many", MalformedIndex},
		{"push temp 8", IndexOutOfRange},
		{"pop pointer 2", IndexOutOfRange},
		{"label 1abc", InvalidLabelSyntax},
		{"goto a-b", InvalidLabelSyntax},
		{"function 9f 0", InvalidLabelSyntax},
		{"call Foo$f 0", InvalidLabelSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			unit, err := translate(t, "Foo", tt.src)
			if unit != nil {
				t.Fatalf("expected no output, got %d lines", len(unit.Lines))
			}
			d := diagnostic(t, err)
			if d.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", d.Kind, tt.kind)
			}
			if d.Line() != 1 || d.Unit != "Foo" {
				t.Errorf("diagnostic at %s:%d", d.Unit, d.Line())
			}
		})
	}
}

func TestRangeLimitsAccepted(t *testing.T) {
	src := "push temp 7\npop temp 0\npush pointer 1\npop pointer 0\npush constant 32767\npush local 900"
	if _, err := translate(t, "Foo", src); err != nil {
		t.Fatal(err)
	}
}

func TestFirstErrorWins(t *testing.T) {
	src := strings.Join([]string{
		"function Main.f 0",
		"push constant 1",
		"pop temp 9",
		"push constant 2",
		"add",
		"",
		"bogus",
		"return",
	}, "\n")
	unit, err := translate(t, "Main", src)
	if unit != nil {
		t.Fatal("a failed unit must not produce output")
	}
	d := diagnostic(t, err)
	if d.Kind != IndexOutOfRange || d.Line() != 3 {
		t.Errorf("got %s at line %d, want %s at line 3", d.Kind, d.Line(), IndexOutOfRange)
	}
	if got, want := d.Error(), "Main:3: index out of range: "; !strings.HasPrefix(got, want) {
		t.Errorf("Error() = %q, want prefix %q", got, want)
	}
}

func TestLabelsAreScopedToFunctions(t *testing.T) {
	src := `
function A.f 0
label LOOP
goto LOOP
function A.g 0
label LOOP
if-goto LOOP
`
	unit, err := translate(t, "A", src)
	if err != nil {
		t.Fatal(err)
	}
	var labels []string
	for _, line := range unit.Lines {
		if strings.HasPrefix(line, "(") {
			labels = append(labels, line)
		}
	}
	want := []string{"(A.f)", "(A.f$LOOP)", "(A.g)", "(A.g$LOOP)"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A.f", "A.g"}, unit.Functions); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedFunctionStillOpensScope(t *testing.T) {
	cfg := config.NewConfig()
	ctx := &context{cfg: cfg, unit: "Foo", emitter: codegen.NewEmitter("Foo", cfg)}
	for _, tok := range lexer.Lex("function Foo.f 0\nfunction Foo.g x\nlabel L", 0) {
		ctx.translate(tok)
	}
	if ctx.diag == nil || ctx.diag.Kind != MalformedIndex {
		t.Fatalf("diag = %v, want a malformed index", ctx.diag)
	}
	if ctx.currentFunction != "Foo.g" {
		t.Errorf("current function = %q, want Foo.g", ctx.currentFunction)
	}
	if diff := cmp.Diff([]string{"Foo.f", "Foo.g"}, ctx.functions); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
}

func TestCountersAreOwnedByUnit(t *testing.T) {
	src := "function X.f 0\neq\ncall X.f 0\neq\n"
	a, err := translate(t, "A", src)
	if err != nil {
		t.Fatal(err)
	}
	b, err := translate(t, "B", src)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(a.Lines, "\n")
	for _, want := range []string{"(A$eq$0)", "(A$eq$1)", "(A$X.f$ret.0)"} {
		if !strings.Contains(joined, want) {
			t.Errorf("unit A is missing %s", want)
		}
	}
	if !strings.Contains(strings.Join(b.Lines, "\n"), "(B$eq$0)") {
		t.Error("unit B should start its own counter at zero")
	}

	again, err := translate(t, "A", src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Lines, again.Lines); diff != "" {
		t.Errorf("translation is not deterministic:\n%s", diff)
	}
}

func TestStaticsListed(t *testing.T) {
	unit, err := translate(t, "Foo", "push static 2\npop static 0\npush static 2")
	if err != nil {
		t.Fatal(err)
	}
	want := []segment.StaticKey{{Unit: "Foo", Index: 0}, {Unit: "Foo", Index: 2}}
	if diff := cmp.Diff(want, unit.Statics); diff != "" {
		t.Errorf("statics mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidUnitName(t *testing.T) {
	_, err := translate(t, "my-file", "add")
	if err == nil {
		t.Fatal("expected an error")
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		t.Errorf("a bad unit name is not a source diagnostic: %v", err)
	}
}

func TestWarnings(t *testing.T) {
	var buf bytes.Buffer
	saved := util.Output
	util.Output = &buf
	defer func() { util.Output = saved }()

	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUnzeroedLocals, true)
	src := "label EARLY\nfunction Foo.f 2\nreturn"
	if _, err := Translate("Foo", lexer.Lex(src, 0), cfg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"[-Wlabel-outside-function]", "[-Wunzeroed-locals]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %s:\n%s", want, out)
		}
	}

	buf.Reset()
	if _, err := Translate("Empty", nil, cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[-Wempty-unit]") {
		t.Errorf("expected an empty-unit warning, got %q", buf.String())
	}
}

func TestIsIdentifier(t *testing.T) {
	for _, s := range []string{"a", "Main.main", "_x", "loop:1", ".hidden", "WHILE_EXP0"} {
		if !IsIdentifier(s) {
			t.Errorf("IsIdentifier(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0a", "a b", "a-b", "$boot", "é"} {
		if IsIdentifier(s) {
			t.Errorf("IsIdentifier(%q) = true", s)
		}
	}
}
