package linker

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/vmt/pkg/asm"
	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/translator"
	"github.com/xplshn/vmt/pkg/util"
)

func TestMain(m *testing.M) {
	util.Output = io.Discard
	os.Exit(m.Run())
}

func sources(files ...string) []Source {
	var out []Source
	for i := 0; i+1 < len(files); i += 2 {
		out = append(out, NewSource(files[i], files[i]+Ext, files[i+1], len(out)))
	}
	return out
}

func TestLinkPrependsBootstrap(t *testing.T) {
	cfg := config.NewConfig()
	prog, err := Link(sources("Sys", "function Sys.init 0\nlabel L\ngoto L"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"//bootstrap", "@256", "D=A", "@SP", "M=D", "//call Sys.init 0"}
	if diff := cmp.Diff(want, prog.Lines[:len(want)]); diff != "" {
		t.Errorf("bootstrap mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prog.Bootstrap, prog.Lines[:len(prog.Bootstrap)]); diff != "" {
		t.Errorf("program does not start with the bootstrap:\n%s", diff)
	}
	if !prog.Defines("Sys.init") || prog.Defines("Main.main") {
		t.Error("Defines reports the wrong functions")
	}
}

func TestLinkHonorsStackBaseAndEntry(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatSourceComments, false)
	if err := cfg.SetStackBase(300); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetEntryPoint("Main.main"); err != nil {
		t.Fatal(err)
	}
	prog, err := Link(sources("Main", "function Main.main 0\nreturn"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if prog.Lines[0] != "@300" {
		t.Errorf("first line = %q", prog.Lines[0])
	}
	if !strings.Contains(prog.String(), "@Main.main\n0;JMP") {
		t.Error("bootstrap does not jump to Main.main")
	}
}

func TestLinkWithoutBootstrap(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProcessFlags([]string{"Fno-bootstrap", "Fno-source-comments"})
	prog, err := Link(sources("Foo", "push constant 1"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"@1", "D=A", "@SP", "AM=M+1", "A=A-1", "M=D"}
	if diff := cmp.Diff(want, prog.Lines); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if prog.Bootstrap != nil {
		t.Error("bootstrap emitted while disabled")
	}
}

func TestLinkKeepsSourceOrder(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatBootstrap, false)
	prog, err := Link(sources(
		"B", "function B.f 0",
		"A", "function A.f 0",
		"C", "function C.f 0",
	), cfg)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, line := range prog.Lines {
		if strings.HasPrefix(line, "(") {
			order = append(order, line)
		}
	}
	if diff := cmp.Diff([]string{"(B.f)", "(A.f)", "(C.f)"}, order); diff != "" {
		t.Errorf("unit order mismatch (-want +got):\n%s", diff)
	}
}

func TestLinkIsDeterministic(t *testing.T) {
	srcs := sources(
		"Sys", "function Sys.init 0\ncall Main.main 0\neq\nlabel END\ngoto END",
		"Main", "function Main.main 1\npush static 0\npush local 0\nlt\nreturn",
	)
	first, err := Link(srcs, config.NewConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Link(srcs, config.NewConfig())
		if err != nil {
			t.Fatal(err)
		}
		if again.Checksum() != first.Checksum() {
			t.Fatalf("run %d produced a different program", i)
		}
	}
}

// Unit and function names may contain '.', so Main.eq's static 0 and a
// function named Main.0 sit right next to Main's own generated names.
func TestLinkGeneratedNamesNeverAlias(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatBootstrap, false)
	prog, err := Link(sources(
		"Main", "function Main.0 0\npush constant 1\npush constant 1\neq\npop static 0\ncall Main.eq.f 0\nreturn",
		"Main.eq", "function Main.eq.f 0\npush constant 7\npop static 0\npush static 0\nreturn",
	), cfg)
	if err != nil {
		t.Fatal(err)
	}
	bin, err := asm.AssembleLines(prog.Lines)
	if err != nil {
		t.Fatalf("assembling linked program: %v", err)
	}

	for _, cell := range []string{"Main$0", "Main.eq$0"} {
		addr, ok := bin.Symbols.Lookup(cell)
		if !ok || addr < asm.VariableBase || addr >= 256 {
			t.Errorf("static %s resolved to %d (found=%v), want a RAM variable", cell, addr, ok)
		}
	}
	if n := bin.Symbols.Variables(); n != 2 {
		t.Errorf("%d variables allocated, want one per unit static", n)
	}

	seen := make(map[int]string)
	for _, label := range []string{"Main.0", "Main$eq$0", "Main$Main.eq.f$ret.0", "Main.eq.f"} {
		addr, ok := bin.Symbols.Lookup(label)
		if !ok {
			t.Errorf("label %s not defined", label)
			continue
		}
		if other, dup := seen[addr]; dup {
			t.Errorf("labels %s and %s share ROM address %d", other, label, addr)
		}
		seen[addr] = label
	}
}

func TestLinkCollectsEveryFailedUnit(t *testing.T) {
	_, err := Link(sources(
		"Good", "function Good.f 0\nreturn",
		"Bad1", "push temp 8",
		"Bad2", "add\nfrob\npop constant 0",
	), config.NewConfig())
	if err == nil {
		t.Fatal("expected a link error")
	}
	var le *LinkError
	if !errors.As(err, &le) || len(le.Errs) != 2 {
		t.Fatalf("expected two unit errors, got %v", err)
	}

	diags := make([]*translator.Diagnostic, len(le.Errs))
	for i, e := range le.Errs {
		if !errors.As(e, &diags[i]) {
			t.Fatalf("unit error %d is not a diagnostic: %v", i, e)
		}
	}
	if diags[0].Unit != "Bad1" || diags[0].Kind != translator.IndexOutOfRange {
		t.Errorf("first diagnostic = %v", diags[0])
	}
	if diags[1].Unit != "Bad2" || diags[1].Kind != translator.UnknownCommand || diags[1].Line() != 2 {
		t.Errorf("second diagnostic = %v", diags[1])
	}
	if !strings.Contains(err.Error(), "Bad1.vm: Bad1:1:") {
		t.Errorf("error does not name the file: %v", err)
	}
}

func TestReportPrintsEveryFailure(t *testing.T) {
	var buf bytes.Buffer
	util.Output = &buf
	t.Cleanup(func() { util.Output = io.Discard; util.SetSourceFiles(nil) })

	srcs := sources(
		"Bad", "bogus",
		"my-file", "add",
		"Good", "function Good.f 0\nreturn",
	)
	util.SetSourceFiles(Records(srcs))
	_, err := Link(srcs, config.NewConfig())
	if err == nil {
		t.Fatal("expected a link error")
	}
	if n := Report(err); n != 2 {
		t.Errorf("Report printed %d errors, want 2", n)
	}

	out := buf.String()
	for _, want := range []string{
		"Bad.vm:1: error: unknown command: unknown command 'bogus'",
		"vmt: error: my-file.vm: unit name 'my-file' is not a valid identifier",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Good") {
		t.Errorf("a unit that translated was reported:\n%s", out)
	}

	buf.Reset()
	if n := Report(errors.New("disk full")); n != 1 || !strings.Contains(buf.String(), "vmt: error: disk full") {
		t.Errorf("plain error reported as %d: %q", n, buf.String())
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Sys.vm":    "function Sys.init 0\nlabel E\ngoto E",
		"Main.vm":   "function Main.main 0\nreturn",
		"notes.txt": "not vm",
	})
	if err := os.Mkdir(filepath.Join(dir, "sub.vm"), 0o755); err != nil {
		t.Fatal(err)
	}

	srcs, err := Load(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for i, src := range srcs {
		names = append(names, src.Name)
		if src.Tokens[0].FileIndex != 3+i {
			t.Errorf("%s has file index %d", src.Name, src.Tokens[0].FileIndex)
		}
	}
	if diff := cmp.Diff([]string{"Main", "Sys"}, names); diff != "" {
		t.Errorf("loaded units mismatch (-want +got):\n%s", diff)
	}

	records := Records(srcs)
	if records[1].Name != filepath.Join(dir, "Sys.vm") {
		t.Errorf("record name = %q", records[1].Name)
	}

	prog, err := LinkDir(dir, config.NewConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !prog.Defines("Main.main") {
		t.Error("LinkDir lost Main.main")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, 0); err == nil {
		t.Error("a directory without .vm files should fail")
	}
	writeFiles(t, dir, map[string]string{"prog.txt": "add"})
	if _, err := Load(filepath.Join(dir, "prog.txt"), 0); err == nil {
		t.Error("a file without the .vm extension should fail")
	}
	if _, err := Load(filepath.Join(dir, "missing.vm"), 0); err == nil {
		t.Error("a missing file should fail")
	}
}
