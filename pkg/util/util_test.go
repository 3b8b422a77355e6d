package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/token"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	saved := Output
	Output = &buf
	t.Cleanup(func() { Output = saved; SetSourceFiles(nil) })
	return &buf
}

func TestReportUnderlinesCommand(t *testing.T) {
	buf := capture(t)
	SetSourceFiles([]SourceFileRecord{{Name: "Main.vm", Content: []rune("function Main.f 0\n    pop temp 9\nreturn\n")}})

	Report(token.Token{Fields: []string{"pop", "temp", "9"}, FileIndex: 0, Line: 2}, "index %d is out of range", 9)

	want := "Main.vm:2: error: index 9 is out of range\n" +
		"      pop temp 9\n" +
		"      ^~~~~~~~~~\n"
	if got := buf.String(); got != want {
		t.Errorf("Report output:\n%q\nwant:\n%q", got, want)
	}
}

func TestReportWithoutSource(t *testing.T) {
	buf := capture(t)
	Report(token.Token{FileIndex: -1, Line: 4}, "boom")
	if got := buf.String(); got != "unknown:4: error: boom\n" {
		t.Errorf("got %q", got)
	}
}

func TestWarnRespectsConfig(t *testing.T) {
	buf := capture(t)
	cfg := config.NewConfig()
	tok := token.Token{FileIndex: -1}

	Warn(cfg, config.WarnUnzeroedLocals, tok, "quiet")
	if buf.Len() != 0 {
		t.Errorf("disabled warning printed %q", buf.String())
	}

	Warn(cfg, config.WarnEmptyUnit, tok, "unit '%s' is empty", "Foo")
	if got := buf.String(); !strings.Contains(got, "warning: unit 'Foo' is empty [-Wempty-unit]") {
		t.Errorf("got %q", got)
	}
}
