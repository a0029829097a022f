// Package distlib recognizes libraries shipped inside the strata
// distribution. A distribution library lives either in <root>/.../common/<lib>
// or in <root>/.../platform/<target>/<lib> and carries a manifest with its
// unique name.
package distlib

import (
	"os"
	"path/filepath"
	"strings"

	"strata/internal/archive"
	"strata/internal/config"
)

// LibraryInfo describes a distribution library.
type LibraryInfo struct {
	Path        string
	Name        string
	Platform    string
	HasPlatform bool
}

func (l LibraryInfo) String() string {
	if l.HasPlatform {
		return l.Name + " [" + l.Platform + "]"
	}
	return l.Name + " [common]"
}

// Resolver answers distribution lookups under Root.
type Resolver struct {
	Root string
}

// NewResolver returns a resolver rooted at DefaultRoot.
func NewResolver() (*Resolver, error) {
	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}
	return &Resolver{Root: root}, nil
}

// DefaultRoot is $STRATA_DATA_DIR, else ~/.strata, as an absolute path.
func DefaultRoot() (string, error) {
	root := config.LoadEnv().DataDir
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		root = filepath.Join(home, ".strata")
	}
	return filepath.Abs(root)
}

// Resolve returns the library at path when it belongs to the distribution.
// Anything that does not look like a distribution library, including an
// unreadable manifest, reports false.
func (r *Resolver) Resolve(path string) (LibraryInfo, bool) {
	if r == nil || r.Root == "" {
		return LibraryInfo{}, false
	}
	lib, err := filepath.Abs(path)
	if err != nil || !within(r.Root, lib) {
		return LibraryInfo{}, false
	}
	manifestPath := filepath.Join(lib, archive.ManifestFile)
	if st, err := os.Stat(manifestPath); err != nil || !st.Mode().IsRegular() {
		return LibraryInfo{}, false
	}

	parent := filepath.Dir(lib)
	if parent == lib {
		return LibraryInfo{}, false
	}
	info := LibraryInfo{Path: lib}
	if parentName := filepath.Base(parent); parentName != "common" {
		grand := filepath.Dir(parent)
		if grand == parent || filepath.Base(grand) != "platform" {
			return LibraryInfo{}, false
		}
		info.Platform, info.HasPlatform = parentName, true
	}

	manifest, err := archive.ReadManifest(manifestPath)
	if err != nil {
		return LibraryInfo{}, false
	}
	info.Name = manifest.UniqueName
	return info, true
}

func within(root, path string) bool {
	root = filepath.Clean(root)
	rel, err := filepath.Rel(root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
