package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tebeka/atexit"
	"golang.org/x/term"

	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/token"
)

// Output receives every diagnostic. Colors are used only when it is a terminal.
var Output io.Writer = os.Stderr

// mu keeps a diagnostic and its source excerpt together when units are
// translated in parallel.
var mu sync.Mutex

const (
	cRed    = "\033[31m"
	cGreen  = "\033[32m"
	cYellow = "\033[33m"
	cCyan   = "\033[36m"
	cNone   = "\033[0m"
)

func colored(code, s string) string {
	f, ok := Output.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return s
	}
	return code + s + cNone
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

func findFile(tok token.Token) string {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown"
	}
	return sourceFiles[tok.FileIndex].Name
}

// printErrorLine prints the source line and underlines the command on it.
func printErrorLine(tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	if lineNum > 1 {
		return
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	line := strings.TrimRight(string(content[lineStart:lineEnd]), "\r")
	fmt.Fprintf(Output, "  %s\n", line)

	col := len(line) - len(strings.TrimLeft(line, " \t"))
	width := len(strings.Join(tok.Fields, " "))
	if width == 0 {
		width = 1
	}
	fmt.Fprintf(Output, "  %s%s\n", line[:col], colored(cGreen, "^"+strings.Repeat("~", width-1)))
}

// Report prints an error without exiting.
func Report(tok token.Token, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Output, "%s:%d: %s ", findFile(tok), tok.Line, colored(cRed, "error:"))
	fmt.Fprintf(Output, format, args...)
	fmt.Fprintln(Output)
	printErrorLine(tok)
}

// Fatal reports an error that has no source location and exits.
// Errorf reports an error that has no source position and carries on.
func Errorf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Output, "vmt: %s ", colored(cRed, "error:"))
	fmt.Fprintf(Output, format, args...)
	fmt.Fprintln(Output)
}

func Fatal(format string, args ...interface{}) {
	Errorf(format, args...)
	atexit.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Output, "%s:%d: %s ", findFile(tok), tok.Line, colored(cYellow, "warning:"))
	fmt.Fprintf(Output, format, args...)
	fmt.Fprintf(Output, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(tok)
}

func Info(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Output, "vmt: %s ", colored(cCyan, "info:"))
	fmt.Fprintf(Output, format, args...)
	fmt.Fprintln(Output)
}
