package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tebeka/atexit"

	"github.com/xplshn/vmt/pkg/asm"
	"github.com/xplshn/vmt/pkg/cli"
	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/cpu"
	"github.com/xplshn/vmt/pkg/linker"
	"github.com/xplshn/vmt/pkg/util"
)

func main() {
	app := cli.NewApp("vmt")
	app.Synopsis = "[options] <file.vm|dir> ..."
	app.Description = "Translates VM code for the Hack platform into Hack assembly. Every .vm file is its own unit; a directory contributes all of its .vm files in name order."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/vmt>"

	var (
		outFile   string
		entry     string
		stackBase int
		runCycles int
		emitHack  bool
		checksum  bool
		wall      bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.String(&entry, "entry", "e", config.DefaultEntryPoint, "Function the bootstrap calls.", "name")
	fs.Int(&stackBase, "stack-base", "", config.DefaultStackBase, "RAM address the stack starts at.", "addr")
	fs.Int(&runCycles, "run", "r", 0, "Assemble and emulate the program for <n> cycles, then print the stack.", "n")
	fs.Bool(&emitHack, "hack", "", false, "Also assemble the output into a .hack binary text file.")
	fs.Bool(&checksum, "checksum", "", false, "Print the xxhash64 of the generated assembly.")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputs []string) error {
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if wall {
			for i, e := range warningFlags {
				if !*e.Disabled && config.Warning(i) != config.WarnPedantic {
					cfg.SetWarning(config.Warning(i), true)
				}
			}
		}
		if err := cfg.SetEntryPoint(entry); err != nil {
			util.Fatal("%v", err)
		}
		if err := cfg.SetStackBase(stackBase); err != nil {
			util.Fatal("%v", err)
		}
		if len(inputs) == 0 {
			util.Fatal("no input files specified.")
		}

		var sources []linker.Source
		for _, in := range inputs {
			srcs, err := linker.Load(in, len(sources))
			if err != nil {
				util.Fatal("%v", err)
			}
			sources = append(sources, srcs...)
		}
		util.SetSourceFiles(linker.Records(sources))

		util.Info("translating %d unit(s)...", len(sources))
		prog, err := linker.Link(sources, cfg)
		if err != nil {
			linker.Report(err)
			atexit.Exit(1)
		}

		if outFile == "" {
			outFile = defaultOutput(inputs)
		}
		text := prog.String() + "\n"
		if err := writeAtomic(outFile, []byte(text)); err != nil {
			util.Fatal("%v", err)
		}
		util.Info("wrote '%s' (%s, %d lines)", outFile, humanize.Bytes(uint64(len(text))), len(prog.Lines))

		if checksum {
			fmt.Printf("%016x  %s\n", prog.Checksum(), outFile)
		}

		if !emitHack && runCycles <= 0 {
			return nil
		}
		bin, err := asm.AssembleLines(prog.Lines)
		if err != nil {
			util.Fatal("assembler: %v", err)
		}
		if emitHack {
			hackFile := strings.TrimSuffix(outFile, filepath.Ext(outFile)) + ".hack"
			if err := writeAtomic(hackFile, []byte(bin.Hack())); err != nil {
				util.Fatal("%v", err)
			}
			util.Info("wrote '%s' (%d words)", hackFile, len(bin.Words))
		}
		if runCycles > 0 {
			return emulate(bin, cfg, uint64(runCycles))
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// defaultOutput names the output after the input: Foo.vm -> Foo.asm,
// dir/ -> dir/dir.asm.
func defaultOutput(inputs []string) string {
	if len(inputs) != 1 {
		return "out.asm"
	}
	in := filepath.Clean(inputs[0])
	if info, err := os.Stat(in); err == nil && info.IsDir() {
		abs, err := filepath.Abs(in)
		if err != nil {
			abs = in
		}
		return filepath.Join(in, filepath.Base(abs)+".asm")
	}
	return strings.TrimSuffix(in, linker.Ext) + ".asm"
}

// writeAtomic writes through a temp file in the target directory so a
// failed run never leaves a truncated output behind.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vmt-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", path, err)
	}
	atexit.Register(func() { os.Remove(tmp.Name()) })

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func emulate(bin *asm.Program, cfg *config.Config, cycles uint64) error {
	c := cpu.New(bin.Words)
	err := c.Run(cycles)
	fmt.Printf("cycles: %d  pc: %d\n", c.Cycles, c.PC)
	fmt.Printf("SP=%d LCL=%d ARG=%d THIS=%d THAT=%d\n",
		c.RAM[cpu.SP], c.RAM[cpu.LCL], c.RAM[cpu.ARG], c.RAM[cpu.THIS], c.RAM[cpu.THAT])
	stack := c.Stack(cfg.StackBase)
	if len(stack) > 16 {
		stack = stack[len(stack)-16:]
	}
	fmt.Printf("stack top: %v\n", stack)
	if err != nil {
		util.Fatal("emulator: %v", err)
	}
	return nil
}
