// Package linker translates a set of VM units and joins them into one
// Hack assembly program behind the bootstrap.
package linker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/xplshn/vmt/pkg/codegen"
	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/lexer"
	"github.com/xplshn/vmt/pkg/token"
	"github.com/xplshn/vmt/pkg/translator"
	"github.com/xplshn/vmt/pkg/util"
)

// BootUnit names the bootstrap's own unit. It cannot clash with a source
// unit because '$' is not allowed in unit names.
const BootUnit = "$boot"

const Ext = ".vm"

// Source is one VM file, already split into commands.
type Source struct {
	Name    string
	Path    string
	Content []rune
	Tokens  []token.Token
}

// NewSource lexes content as unit name.
func NewSource(name, path, content string, fileIndex int) Source {
	runes := []rune(content)
	return Source{Name: name, Path: path, Content: runes, Tokens: lexer.Lex(content, fileIndex)}
}

type Program struct {
	Units     []*translator.Unit
	Bootstrap []string
	Lines     []string
}

func (p *Program) String() string { return strings.Join(p.Lines, "\n") }

// Checksum fingerprints the program text.
func (p *Program) Checksum() uint64 { return xxhash.Sum64String(p.String()) }

// LinkError collects the first diagnostic of every unit that failed.
type LinkError struct{ Errs []error }

func (e *LinkError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d unit(s) failed:\n%s", len(e.Errs), strings.Join(msgs, "\n"))
}

func (e *LinkError) Unwrap() []error { return e.Errs }

// Link translates every source independently and concatenates the results
// in the order given. A failing unit does not stop the others, but any
// failure means no program.
func Link(sources []Source, cfg *config.Config) (*Program, error) {
	units := make([]*translator.Unit, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, src := range sources {
		g.Go(func() error {
			units[i], errs[i] = translator.Translate(src.Name, src.Tokens, cfg)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", sources[i].Path, err))
		}
	}
	if len(failed) > 0 {
		return nil, &LinkError{Errs: failed}
	}

	prog := &Program{Units: units}
	if cfg.IsFeatureEnabled(config.FeatBootstrap) {
		prog.Bootstrap = codegen.NewEmitter(BootUnit, cfg).Bootstrap(cfg.StackBase, cfg.EntryPoint)
		prog.Lines = append(prog.Lines, prog.Bootstrap...)
		if !prog.Defines(cfg.EntryPoint) {
			util.Warn(cfg, config.WarnMissingEntry, token.Token{FileIndex: -1}, "no unit defines the entry point '%s'", cfg.EntryPoint)
		}
	}
	for _, u := range units {
		prog.Lines = append(prog.Lines, u.Lines...)
	}
	return prog, nil
}

// Defines reports whether any unit declares function name.
func (p *Program) Defines(name string) bool {
	for _, u := range p.Units {
		for _, fn := range u.Functions {
			if fn == name {
				return true
			}
		}
	}
	return false
}

// Load reads a .vm file, or every .vm file in a directory in name order.
// firstIndex is the file index given to the first source.
func Load(path string, firstIndex int) ([]Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		src, err := loadFile(path, firstIndex)
		if err != nil {
			return nil, err
		}
		return []Source{src}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		src, err := loadFile(filepath.Join(path, entry.Name()), firstIndex+len(sources))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no %s files in '%s'", Ext, path)
	}
	return sources, nil
}

func loadFile(path string, fileIndex int) (Source, error) {
	if filepath.Ext(path) != Ext {
		return Source{}, fmt.Errorf("'%s' does not have a %s extension", path, Ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), Ext)
	return NewSource(name, path, string(content), fileIndex), nil
}

// LinkDir loads and links the .vm files under path.
func LinkDir(path string, cfg *config.Config) (*Program, error) {
	sources, err := Load(path, 0)
	if err != nil {
		return nil, err
	}
	return Link(sources, cfg)
}

// Records returns the sources in the form util wants for diagnostics.
func Records(sources []Source) []util.SourceFileRecord {
	records := make([]util.SourceFileRecord, len(sources))
	for i, src := range sources {
		records[i] = util.SourceFileRecord{Name: src.Path, Content: src.Content}
	}
	return records
}

// Report prints every failure carried by a Link error and returns how many
// it printed. Translator diagnostics come with a source excerpt; anything
// else is printed with the file it belongs to.
func Report(err error) int {
	var le *LinkError
	if !errors.As(err, &le) {
		util.Errorf("%v", err)
		return 1
	}
	for _, e := range le.Errs {
		var d *translator.Diagnostic
		if errors.As(e, &d) {
			util.Report(d.Tok, "%s: %s", d.Kind, d.Msg)
			continue
		}
		util.Errorf("%v", e)
	}
	return len(le.Errs)
}
