package frontend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"strata/internal/diag"
	"strata/internal/metadata"
	"strata/internal/source"
)

var (
	// ErrModuleSectionMissing indicates that [module] is missing.
	ErrModuleSectionMissing = errors.New("missing [module]")
	// ErrModuleNameMissing indicates that [module].name is missing or empty.
	ErrModuleNameMissing = errors.New("missing [module].name")
)

// Analysis is one analyzed module as produced by the front end.
type Analysis struct {
	Module      ModuleInfo       `toml:"module"`
	Files       []FileInfo       `toml:"files"`
	Decls       []DeclInfo       `toml:"decls"`
	Diagnostics []DiagnosticInfo `toml:"diagnostics"`

	// Path is the file the analysis was loaded from, empty for in-memory ones.
	Path string `toml:"-"`
}

type ModuleInfo struct {
	Name        string           `toml:"name"`
	Imports     []string         `toml:"imports"`
	Annotations []AnnotationInfo `toml:"annotations"`
}

type FileInfo struct {
	Path        string           `toml:"path"`
	Package     string           `toml:"package"`
	ID          *int32           `toml:"id"`
	Annotations []AnnotationInfo `toml:"annotations"`
}

// AnnotationInfo is "class = pkg/Name" plus literal arguments. A string
// argument ending in "::class" is a class literal.
type AnnotationInfo struct {
	Class string         `toml:"class"`
	Args  map[string]any `toml:"args"`
}

type ParamInfo struct {
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	Default bool   `toml:"default"`
}

type FuncTypeInfo struct {
	Arity   int  `toml:"arity"`
	Suspend bool `toml:"suspend"`
}

type DeclInfo struct {
	File          string         `toml:"file"`
	Kind          string         `toml:"kind"`
	Name          string         `toml:"name"`
	Start         *int32         `toml:"start"`
	End           *int32         `toml:"end"`
	Exported      bool           `toml:"exported"`
	Suspend       bool           `toml:"suspend"`
	Abstract      bool           `toml:"abstract"`
	Anonymous     bool           `toml:"anonymous"`
	Delegate      bool           `toml:"delegate"`
	Type          string         `toml:"type"`
	Params        []ParamInfo    `toml:"params"`
	Captures      []string       `toml:"captures"`
	FunctionTypes []FuncTypeInfo `toml:"function_types"`
	Refs          []string       `toml:"refs"`
	Children      []DeclInfo     `toml:"children"`
}

type DiagnosticInfo struct {
	Severity string `toml:"severity"`
	Code     string `toml:"code"`
	File     string `toml:"file"`
	Start    *int32 `toml:"start"`
	End      *int32 `toml:"end"`
	Message  string `toml:"message"`
}

// Analyzer produces an analyzed module. The driver calls it between two
// cancellation checks.
type Analyzer interface {
	Analyze(ctx context.Context) (*Analysis, error)
}

// FileAnalyzer reads an analysis written by the front end.
type FileAnalyzer struct{ Path string }

func (a FileAnalyzer) Analyze(ctx context.Context) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(a.Path)
}

// Static returns an Analyzer that hands out a prepared analysis.
func Static(a *Analysis) Analyzer { return staticAnalyzer{a} }

type staticAnalyzer struct{ a *Analysis }

func (s staticAnalyzer) Analyze(context.Context) (*Analysis, error) { return s.a, nil }

// Load parses an analyzed module. Relative file paths are resolved against
// the directory of path.
func Load(path string) (*Analysis, error) {
	var a Analysis
	meta, err := toml.DecodeFile(path, &a)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("module") {
		return nil, fmt.Errorf("%s: %w", path, ErrModuleSectionMissing)
	}
	a.Module.Name = strings.TrimSpace(a.Module.Name)
	if !meta.IsDefined("module", "name") || a.Module.Name == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrModuleNameMissing)
	}
	a.Path = path
	base := filepath.Dir(path)
	for i := range a.Files {
		a.Files[i].Path = resolvePath(base, a.Files[i].Path)
	}
	for i := range a.Diagnostics {
		if a.Diagnostics[i].File != "" {
			a.Diagnostics[i].File = resolvePath(base, a.Diagnostics[i].File)
		}
	}
	resolveDeclFiles(base, a.Decls)
	if err := a.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, filepath.FromSlash(p))
}

func resolveDeclFiles(base string, decls []DeclInfo) {
	for i := range decls {
		decls[i].File = resolvePath(base, decls[i].File)
		resolveDeclFiles(base, decls[i].Children)
	}
}

// Check validates the shape of the analysis: known files, kinds and unique
// file ids.
func (a *Analysis) Check() error {
	var errs []error
	files := make(map[string]bool, len(a.Files))
	ids := make(map[int32]string, len(a.Files))
	for i, f := range a.Files {
		if f.Path == "" {
			errs = append(errs, fmt.Errorf("file #%d has no path", i))
			continue
		}
		if files[f.Path] {
			errs = append(errs, fmt.Errorf("file %s listed twice", f.Path))
		}
		files[f.Path] = true
		id := a.FileID(i)
		if prev, dup := ids[id]; dup {
			errs = append(errs, fmt.Errorf("files %s and %s share id %d", prev, f.Path, id))
		}
		ids[id] = f.Path
	}
	var walk func(ds []DeclInfo, top bool)
	walk = func(ds []DeclInfo, top bool) {
		for _, d := range ds {
			if top && !files[d.File] {
				errs = append(errs, fmt.Errorf("declaration %q refers to unknown file %q", d.Name, d.File))
			}
			if d.Name == "" && !d.Anonymous {
				errs = append(errs, fmt.Errorf("declaration of kind %q has no name", d.Kind))
			}
			walk(d.Children, false)
		}
	}
	walk(a.Decls, true)
	return errors.Join(errs...)
}

// FileID returns the explicit id of file i, or its position.
func (a *Analysis) FileID(i int) int32 {
	if id := a.Files[i].ID; id != nil {
		return *id
	}
	id, err := safecast.Conv[int32](i)
	if err != nil {
		panic(fmt.Errorf("file index overflow: %w", err))
	}
	return id
}

// Bag converts the reported diagnostics.
func (a *Analysis) Bag() *diag.Bag {
	bag := diag.NewBag(len(a.Diagnostics) + 1)
	for _, d := range a.Diagnostics {
		sev, err := diag.ParseSeverity(d.Severity)
		if err != nil {
			sev = diag.SevError
		}
		code, ok := diag.ParseCode(d.Code)
		if !ok {
			code = diag.AnaOther
		}
		span := diag.Span{File: d.File, Start: offsetOr(d.Start, source.UndefinedOffset), End: offsetOr(d.End, source.UndefinedOffset)}
		bag.Add(diag.New(sev, code, span, d.Message))
	}
	bag.Sort()
	return bag
}

func offsetOr(p *int32, def int32) int32 {
	if p == nil {
		return def
	}
	return *p
}

// ConvertAnnotations turns annotation infos into metadata annotations with
// arguments sorted by name.
func ConvertAnnotations(infos []AnnotationInfo) ([]metadata.Annotation, error) {
	out := make([]metadata.Annotation, 0, len(infos))
	for _, info := range infos {
		if info.Class == "" {
			return nil, fmt.Errorf("annotation without class")
		}
		a := metadata.Annotation{Class: metadata.ParseClassID(info.Class)}
		names := make([]string, 0, len(info.Args))
		for n := range info.Args {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			v, err := convertValue(info.Args[n])
			if err != nil {
				return nil, fmt.Errorf("@%s(%s): %w", info.Class, n, err)
			}
			a.Args = append(a.Args, metadata.Argument{Name: n, Value: v})
		}
		out = append(out, a)
	}
	return out, nil
}

func convertValue(raw any) (metadata.Value, error) {
	switch v := raw.(type) {
	case int64:
		return metadata.Value{Kind: metadata.ValueInt, Int: v}, nil
	case bool:
		return metadata.Value{Kind: metadata.ValueBool, Bool: v}, nil
	case string:
		if cls, ok := strings.CutSuffix(v, "::class"); ok {
			return metadata.Value{Kind: metadata.ValueClass, Class: metadata.ParseClassID(cls)}, nil
		}
		return metadata.Value{Kind: metadata.ValueString, Str: v}, nil
	}
	return metadata.Value{}, fmt.Errorf("unsupported argument type %T", raw)
}
