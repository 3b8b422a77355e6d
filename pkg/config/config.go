package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/vmt/pkg/cli"
)

type Feature int

const (
	FeatBootstrap Feature = iota
	FeatSourceComments
	FeatCount
)

type Warning int

const (
	WarnMissingEntry Warning = iota
	WarnEmptyUnit
	WarnUnzeroedLocals
	WarnLabelOutsideFunction
	WarnPedantic
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const (
	DefaultStackBase  = 256
	DefaultEntryPoint = "Sys.init"
)

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	StackBase  int
	EntryPoint string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		StackBase:  DefaultStackBase,
		EntryPoint: DefaultEntryPoint,
	}

	features := map[Feature]Info{
		FeatBootstrap:      {"bootstrap", true, "Prepend the stack setup and a call to the entry point."},
		FeatSourceComments: {"source-comments", true, "Echo each VM command as a comment above its assembly."},
	}

	warnings := map[Warning]Info{
		WarnMissingEntry:         {"missing-entry", true, "Warn when no unit defines the entry point called by the bootstrap."},
		WarnEmptyUnit:            {"empty-unit", true, "Warn about source files that contain no commands."},
		WarnUnzeroedLocals:       {"unzeroed-locals", false, "Warn for each function that reserves locals, which start with stale memory."},
		WarnLabelOutsideFunction: {"label-outside-function", true, "Warn about labels and jumps that appear before any 'function'."},
		WarnPedantic:             {"pedantic", false, "Issue all warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool {
	return c.Warnings[wt].Enabled || (wt != WarnPedantic && c.Warnings[WarnPedantic].Enabled)
}

// SetEntryPoint changes the function the bootstrap calls.
func (c *Config) SetEntryPoint(name string) error {
	if name == "" {
		return fmt.Errorf("entry point cannot be empty")
	}
	c.EntryPoint = name
	return nil
}

// SetStackBase changes where the bootstrap points SP. The stack has to
// start above the temp and general purpose registers and below the
// screen map.
func (c *Config) SetStackBase(base int) error {
	if base < 16 || base >= 16384 {
		return fmt.Errorf("stack base %d is outside RAM[16..16383]", base)
	}
	c.StackBase = base
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimLeft(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F style flags, with or without the leading dash.
// -Wall and -Wno-all go first so individual flags can override them.
func (c *Config) ProcessFlags(flags []string) {
	isAll := func(f string) bool {
		f = strings.TrimLeft(f, "-")
		return f == "Wall" || f == "Wno-all"
	}
	for _, f := range flags {
		if isAll(f) {
			c.applyFlag(f)
		}
	}
	for _, f := range flags {
		if !isAll(f) {
			c.applyFlag(f)
		}
	}
}

// SetupFlagGroups registers -W<warning> and -F<feature> flag pairs. The
// returned entries are indexed by Warning and Feature respectively.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	warnings = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warnings[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: &enabled, Disabled: &disabled}
	}

	features = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		features[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: &enabled, Disabled: &disabled}
	}

	fs.AddFlagGroup("Warning Flags", "Available Warning Flags:", "warning", warnings)
	fs.AddFlagGroup("Feature Flags", "Available Features:", "feature", features)
	return warnings, features
}

// ApplyFlagGroups copies parsed flag-group state back into the config.
// An explicit -Wno-/-Fno- wins over the default.
func (c *Config) ApplyFlagGroups(warnings, features []cli.FlagGroupEntry) {
	for i, entry := range warnings {
		c.SetWarning(Warning(i), *entry.Enabled && !*entry.Disabled)
	}
	for i, entry := range features {
		c.SetFeature(Feature(i), *entry.Enabled && !*entry.Disabled)
	}
}
