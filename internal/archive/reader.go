package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"strata/internal/ir"
	"strata/internal/metadata"
)

// ErrDigestMismatch is returned when the metadata file does not match the
// digest recorded in the manifest.
var ErrDigestMismatch = errors.New("metadata digest mismatch")

// Archive is an opened library archive.
type Archive struct {
	Layout   Layout
	Manifest *Manifest
	envelope *metadata.Envelope
}

// Open reads the manifest and the metadata of the archive in dir and verifies
// the metadata digest.
func Open(dir string) (*Archive, error) {
	manifest, err := ReadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	l := Layout{Dir: dir, Name: manifest.UniqueName}
	// #nosec G304 -- path built from the archive layout
	raw, err := os.ReadFile(l.Metadata())
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", manifest.UniqueName, err)
	}
	if manifest.MetadataBlake3 != "" && Digest(raw) != manifest.MetadataBlake3 {
		return nil, fmt.Errorf("open archive %s: %w", manifest.UniqueName, ErrDigestMismatch)
	}
	env, err := metadata.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", manifest.UniqueName, err)
	}
	if manifest.MetadataVersion != "" && manifest.MetadataVersion != env.Version.String() {
		return nil, fmt.Errorf("open archive %s: manifest declares metadata %s, file holds %s",
			manifest.UniqueName, manifest.MetadataVersion, env.Version)
	}
	return &Archive{Layout: l, Manifest: manifest, envelope: env}, nil
}

// Name returns the unique name of the library.
func (a *Archive) Name() string { return a.Manifest.UniqueName }

// Metadata returns the decoded metadata envelope.
func (a *Archive) Metadata() *metadata.Envelope { return a.envelope }

// Provider returns a lazy metadata provider over the archive.
func (a *Archive) Provider(cfg metadata.DeserializationConfig, lookups metadata.LookupTracker) (*metadata.Provider, error) {
	return metadata.NewProvider(a.envelope, cfg, lookups, nil)
}

// Descriptor reads the whole module descriptor back.
func (a *Archive) Descriptor() (*metadata.ModuleDescriptor, error) {
	p, err := a.Provider(metadata.DeserializationConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return p.Module()
}

// ModuleRecord reads the module-level IR blob.
func (a *Archive) ModuleRecord() (*ModuleRecord, error) {
	var rec ModuleRecord
	if err := a.readBlob(a.Layout.ModuleIR(), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeclRecord reads the IR blob of one declaration.
func (a *Archive) DeclRecord(id metadata.DescriptorUniqID) (*DeclRecord, error) {
	var rec DeclRecord
	if err := a.readBlob(a.Layout.Decl(id), &rec); err != nil {
		return nil, err
	}
	if rec.UniqID != id {
		return nil, fmt.Errorf("archive %s: blob %s holds %v", a.Name(), DeclFileName(id), rec.UniqID)
	}
	return &rec, nil
}

// DeclIDs lists the declaration blobs present in the archive, globals first.
func (a *Archive) DeclIDs() ([]metadata.DescriptorUniqID, error) {
	entries, err := os.ReadDir(filepath.Join(a.Layout.Dir, IRDir))
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", a.Name(), err)
	}
	var ids []metadata.DescriptorUniqID
	for _, e := range entries {
		id, ok := parseDeclFileName(e.Name())
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Local != ids[j].Local {
			return !ids[i].Local
		}
		return ids[i].Index < ids[j].Index
	})
	return ids, nil
}

func parseDeclFileName(name string) (metadata.DescriptorUniqID, bool) {
	base, ok := strings.CutSuffix(name, ".decl")
	if !ok || len(base) < 2 {
		return metadata.DescriptorUniqID{}, false
	}
	var local bool
	switch base[len(base)-1] {
	case 'G':
	case 'L':
		local = true
	default:
		return metadata.DescriptorUniqID{}, false
	}
	n, err := strconv.ParseInt(base[:len(base)-1], 10, 64)
	if err != nil || n < 0 {
		return metadata.DescriptorUniqID{}, false
	}
	return metadata.DescriptorUniqID{Index: n, Local: local}, true
}

// LoadIR would rebuild the IR module from the blobs. Only the metadata half
// of the archive can be read back today.
func (a *Archive) LoadIR(*ir.Builtins) (*ir.Module, error) {
	return nil, fmt.Errorf("archive %s: %w", a.Name(), ErrIRNotImplemented)
}

func (a *Archive) readBlob(path string, v any) error {
	// #nosec G304 -- path built from the archive layout
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("archive %s: %w", a.Name(), err)
	}
	if err := DecodeBlob(data, v); err != nil {
		return fmt.Errorf("archive %s: %s: %w", a.Name(), filepath.Base(path), err)
	}
	return nil
}
