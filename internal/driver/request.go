package driver

import (
	"errors"
	"fmt"
	"strings"

	"strata/internal/archive"
	"strata/internal/config"
	"strata/internal/diag"
	"strata/internal/frontend"
	"strata/internal/ir"
	"strata/internal/lower"
	"strata/internal/metadata"
	"strata/internal/observ"
	"strata/internal/source"
)

// Mode selects the output of a compilation.
type Mode = config.Mode

const (
	ModeEmit    = config.ModeEmit
	ModeArchive = config.ModeArchive
)

// Dependency is an already compiled module: its final IR and descriptor.
type Dependency struct {
	Module     *ir.Module
	Descriptor *metadata.ModuleDescriptor
}

// Config carries the per-module compiler settings.
type Config struct {
	// ModuleName must match the analyzed module when set.
	ModuleName       string
	MetadataVersion  metadata.Version
	LanguageVersion  string
	APIVersion       string
	Features         []string
	ReportPreRelease bool
	// PreRelease marks metadata written by a pre-release compiler.
	PreRelease      bool
	CompilerVersion string
	Lookups         metadata.LookupTracker
}

// ConfigFromProject maps strata.toml settings onto a Config.
func ConfigFromProject(p *config.Project, compilerVersion string, preRelease bool) Config {
	return Config{
		ModuleName:       p.Module,
		MetadataVersion:  p.Compiler.MetadataVersion,
		LanguageVersion:  p.Compiler.LanguageVersion,
		APIVersion:       p.Compiler.APIVersion,
		Features:         p.EnabledFeatures(),
		ReportPreRelease: p.Compiler.ReportPreRelease,
		PreRelease:       preRelease,
		CompilerVersion:  compilerVersion,
	}
}

// Request describes one module compilation.
type Request struct {
	Analyzer     frontend.Analyzer
	Dependencies []Dependency
	Config       Config
	Mode         Mode
	OutputDir    string
	Emitter      Emitter
	// Phases overrides lower.DefaultPhases.
	Phases   []lower.Phase
	Progress ProgressSink
	Timer    *observ.Timer
	Sources  *source.Index
	Builtins *ir.Builtins
}

// Outcome is the mode-specific part of a Result: *EmitOutcome or
// *ArchiveOutcome.
type Outcome interface {
	outcome()
}

// EmitOutcome is the result of ModeEmit.
type EmitOutcome struct {
	Text       string
	Descriptor *metadata.ModuleDescriptor
	Module     *ir.Module
}

// ArchiveOutcome is the result of ModeArchive. IRRoundTrip records the
// outcome of reading the IR half back; today it always wraps
// archive.ErrIRNotImplemented.
type ArchiveOutcome struct {
	Layout      archive.Layout
	Descriptor  *metadata.ModuleDescriptor
	Module      *ir.Module
	ReadBack    *metadata.ModuleDescriptor
	IRRoundTrip error
}

func (*EmitOutcome) outcome()    {}
func (*ArchiveOutcome) outcome() {}

// Result is a finished compilation.
type Result struct {
	Module    string
	SessionID string
	Outcome   Outcome
	Timer     *observ.Timer
	Imports   []string
}

// Dependency returns the result as input for downstream modules.
func (r *Result) Dependency() Dependency {
	switch o := r.Outcome.(type) {
	case *EmitOutcome:
		return Dependency{Module: o.Module, Descriptor: o.Descriptor}
	case *ArchiveOutcome:
		return Dependency{Module: o.Module, Descriptor: o.Descriptor}
	}
	return Dependency{}
}

// FatalAnalysisError reports error diagnostics from the front end. No IR is
// built for such a module.
type FatalAnalysisError struct {
	Module      string
	Diagnostics []diag.Diagnostic
	rendered    string
}

func newFatalAnalysisError(module string, diags []diag.Diagnostic, idx *source.Index) *FatalAnalysisError {
	return &FatalAnalysisError{
		Module:      module,
		Diagnostics: diags,
		rendered:    diag.FormatShort(diags, idx, true),
	}
}

func (e *FatalAnalysisError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "analysis of module %s failed with %d error(s)", e.Module, len(e.Diagnostics))
	if e.rendered != "" {
		b.WriteString(":\n")
		b.WriteString(e.rendered)
	}
	return b.String()
}

// ArchiveError reports a library archive that could not be written. The
// previous archive, if any, is left in place.
type ArchiveError struct {
	Module     string
	Diagnostic diag.Diagnostic
	Err        error
}

func newArchiveError(module, out string, err error) *ArchiveError {
	code := diag.ArcWriteFailed
	if errors.Is(err, archive.ErrOutputLocked) {
		code = diag.ArcOutputInUse
	}
	span := diag.NoSpan
	span.File = out
	return &ArchiveError{
		Module:     module,
		Diagnostic: diag.NewError(code, span, err.Error()),
		Err:        err,
	}
}

func (e *ArchiveError) Error() string {
	return diag.FormatShort([]diag.Diagnostic{e.Diagnostic}, nil, false)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
