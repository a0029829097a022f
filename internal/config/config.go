// Package config loads the project configuration (strata.toml) and the
// STRATA_* environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"strata/internal/metadata"
)

// Mode selects what a build produces.
type Mode string

const (
	ModeEmit    Mode = "emit"
	ModeArchive Mode = "archive"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeEmit, ModeArchive:
		return m, nil
	}
	return "", fmt.Errorf("unknown build mode %q (want emit or archive)", s)
}

var (
	// ErrModuleSectionMissing indicates that [module] is missing.
	ErrModuleSectionMissing = errors.New("missing [module]")
	// ErrModuleNameInvalid indicates a missing or malformed [module].name.
	ErrModuleNameInvalid = errors.New("invalid [module].name")
)

// Compiler holds the [compiler] section.
type Compiler struct {
	MetadataVersion  metadata.Version
	LanguageVersion  string
	APIVersion       string
	ReportPreRelease bool
	Mode             Mode
	Output           string
}

// Project is a loaded strata.toml.
type Project struct {
	Path     string
	Root     string
	Module   string
	Compiler Compiler
	Features map[string]bool
}

type projectFile struct {
	Module struct {
		Name string `toml:"name"`
	} `toml:"module"`
	Compiler struct {
		MetadataVersion  string `toml:"metadata_version"`
		LanguageVersion  string `toml:"language_version"`
		APIVersion       string `toml:"api_version"`
		ReportPreRelease bool   `toml:"report_pre_release"`
		Mode             string `toml:"mode"`
		Output           string `toml:"output"`
	} `toml:"compiler"`
	Language struct {
		Features map[string]bool `toml:"features"`
	} `toml:"language"`
}

// Defaults returns the configuration used without strata.toml.
func Defaults(module string) *Project {
	return &Project{
		Module: module,
		Compiler: Compiler{
			MetadataVersion: metadata.CurrentVersion,
			Mode:            ModeEmit,
			Output:          "build",
		},
		Features: map[string]bool{},
	}
}

// Load parses a strata.toml. The output directory is resolved against the
// file's directory and must stay inside it.
func Load(path string) (*Project, error) {
	var cfg projectFile
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("module") {
		return nil, fmt.Errorf("%s: %w", path, ErrModuleSectionMissing)
	}
	name := strings.TrimSpace(cfg.Module.Name)
	if !IsValidModuleIdent(name) {
		return nil, fmt.Errorf("%s: %w: %q", path, ErrModuleNameInvalid, name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	p := Defaults(name)
	p.Path = abs
	p.Root = filepath.Dir(abs)
	if meta.IsDefined("compiler", "metadata_version") {
		v, err := metadata.ParseVersion(cfg.Compiler.MetadataVersion)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if !v.IsCompatible() {
			return nil, fmt.Errorf("%s: metadata version %s is not supported (current %s)", path, v, metadata.CurrentVersion)
		}
		p.Compiler.MetadataVersion = v
	}
	p.Compiler.LanguageVersion = strings.TrimSpace(cfg.Compiler.LanguageVersion)
	p.Compiler.APIVersion = strings.TrimSpace(cfg.Compiler.APIVersion)
	p.Compiler.ReportPreRelease = cfg.Compiler.ReportPreRelease
	if meta.IsDefined("compiler", "mode") {
		if p.Compiler.Mode, err = ParseMode(cfg.Compiler.Mode); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if out := strings.TrimSpace(cfg.Compiler.Output); out != "" {
		p.Compiler.Output = out
	}
	if filepath.IsAbs(p.Compiler.Output) {
		return nil, fmt.Errorf("%s: invalid [compiler].output %q: must be relative", path, p.Compiler.Output)
	}
	p.Compiler.Output = filepath.Join(p.Root, filepath.Clean(filepath.FromSlash(p.Compiler.Output)))
	if !pathWithin(p.Root, p.Compiler.Output) {
		return nil, fmt.Errorf("%s: invalid [compiler].output %q: escapes project root", path, cfg.Compiler.Output)
	}
	for k, v := range cfg.Language.Features {
		p.Features[k] = v
	}
	return p, nil
}

// LoadFrom locates strata.toml above startDir and loads it. ok is false when
// there is no project file.
func LoadFrom(startDir string) (p *Project, ok bool, err error) {
	path, ok, err := FindStrataToml(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	p, err = Load(path)
	return p, true, err
}

// EnabledFeatures lists the features switched on, sorted.
func (p *Project) EnabledFeatures() []string {
	var out []string
	for k, on := range p.Features {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// IsValidModuleIdent reports whether name is an ASCII identifier, optionally
// dotted ("geo.shapes").
func IsValidModuleIdent(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if !isIdent(part) {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
		if i == 0 && r != '_' && !unicode.IsLetter(r) {
			return false
		}
		if i > 0 && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
