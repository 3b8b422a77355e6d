package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	var (
		out  string
		run  bool
		base int
	)
	fs := NewFlagSet("vmt")
	fs.String(&out, "output", "o", "", "Output file", "file")
	fs.Bool(&run, "run", "r", false, "Run it")
	fs.Int(&base, "stack-base", "", 256, "Stack base", "addr")

	args := []string{"-oOut.asm", "--stack-base=300", "-r", "a.vm", "--", "-odd.vm"}
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	if out != "Out.asm" || !run || base != 300 {
		t.Errorf("out=%q run=%v base=%d", out, run, base)
	}
	if diff := cmp.Diff([]string{"a.vm", "-odd.vm"}, fs.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	var n int
	fs := NewFlagSet("vmt")
	fs.Int(&n, "stack-base", "b", 0, "", "")
	for _, args := range [][]string{{"--nope"}, {"-x"}, {"--stack-base"}, {"-b", "ten"}} {
		if err := fs.Parse(args); err == nil {
			t.Errorf("Parse(%v) succeeded", args)
		}
	}
}

func TestFlagGroupPairs(t *testing.T) {
	on, off := true, false
	fs := NewFlagSet("vmt")
	fs.AddFlagGroup("Feature Flags", "", "feature", []FlagGroupEntry{
		{Name: "bootstrap", Prefix: "F", Enabled: &on, Disabled: &off},
	})
	if err := fs.Parse([]string{"-Fno-bootstrap"}); err != nil {
		t.Fatal(err)
	}
	if !off {
		t.Error("-Fno-bootstrap did not set the disabled half")
	}
	if fs.Lookup("Fbootstrap") == nil {
		t.Error("enabled half not registered")
	}
}

func TestAppHelpAndAction(t *testing.T) {
	var stdout bytes.Buffer
	app := NewApp("vmt")
	app.Synopsis = "[options] <input>"
	app.Description = "Translates VM code."
	app.Stdout = &stdout
	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "vmt") {
		t.Errorf("help output missing program name:\n%s", stdout.String())
	}

	sentinel := errors.New("done")
	app = NewApp("vmt")
	app.Stderr = &bytes.Buffer{}
	var got []string
	app.Action = func(args []string) error { got = args; return sentinel }
	if err := app.Run([]string{"x.vm"}); !errors.Is(err, sentinel) {
		t.Fatalf("Run() = %v", err)
	}
	if diff := cmp.Diff([]string{"x.vm"}, got); diff != "" {
		t.Errorf("action args mismatch:\n%s", diff)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if diff := cmp.Diff([]string{"one two", "three", "four"}, got); diff != "" {
		t.Errorf("wrap mismatch (-want +got):\n%s", diff)
	}
}
