package archive

import (
	"path/filepath"
	"strconv"

	"strata/internal/metadata"
)

const (
	ManifestFile   = "manifest"
	MetadataSuffix = ".meta.strata"
	IRDir          = "ir"
	ModuleIRFile   = "module.ir"
	DebugFile      = "debug.txt"
)

// Layout resolves the file names of one archive directory.
type Layout struct {
	Dir  string
	Name string
}

// NewLayout returns the layout of library name under out.
func NewLayout(out, name string) Layout {
	return Layout{Dir: filepath.Join(out, name), Name: name}
}

func (l Layout) Manifest() string { return filepath.Join(l.Dir, ManifestFile) }
func (l Layout) Metadata() string { return filepath.Join(l.Dir, l.Name+MetadataSuffix) }
func (l Layout) ModuleIR() string { return filepath.Join(l.Dir, IRDir, ModuleIRFile) }
func (l Layout) Debug() string    { return filepath.Join(l.Dir, DebugFile) }

// Decl returns the blob path of a declaration.
func (l Layout) Decl(id metadata.DescriptorUniqID) string {
	return filepath.Join(l.Dir, IRDir, DeclFileName(id))
}

// DeclFileName is "<index>G.decl" or "<index>L.decl".
func DeclFileName(id metadata.DescriptorUniqID) string {
	suffix := "G"
	if id.Local {
		suffix = "L"
	}
	return strconv.FormatInt(id.Index, 10) + suffix + ".decl"
}

func lockPath(out, name string) string {
	return filepath.Join(out, "."+name+".lock")
}
