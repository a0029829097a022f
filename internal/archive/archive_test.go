package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/builtins"
	"strata/internal/ir"
	"strata/internal/metadata"
)

type geoLib struct {
	lib                 *Library
	point, area, helper ir.DeclID
}

func newGeoLib(t *testing.T) *geoLib {
	t.Helper()
	b := ir.NewBuiltins()
	m := ir.NewModule("geo", b)
	root := m.Files[m.AddFile("geo/shapes.st", "geo", nil)].Root
	g := &geoLib{}
	g.point = m.Add(root, ir.Decl{Kind: ir.KindClass, Name: "Point", Flags: ir.FlagExported, Signature: "geo/Point"})
	fn1 := b.FunctionClass(1, false)
	g.area = m.Add(root, ir.Decl{
		Kind: ir.KindFunction, Name: "area", Flags: ir.FlagExported, Signature: "geo/area/1",
		Params:    []ir.Param{{Name: "p", Type: "Point"}},
		FuncTypes: []ir.FuncTypeRef{{Arity: 1, Class: fn1, BuiltinID: builtins.MustID(fn1)}},
		Refs: []ir.SymbolRef{
			{Kind: ir.RefLocal, FqName: "geo.Point", Decl: g.point},
			{Kind: ir.RefBuiltin, FqName: "lang.Function1", Class: fn1},
		},
	})
	g.helper = m.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "area$helper", Flags: ir.FlagLifted, Signature: "geo/area$helper/0"})
	require.NoError(t, ir.Validate(m))

	table := NewDeclarationTable(m)
	table.AssignAll()
	desc := &metadata.ModuleDescriptor{
		Name: "geo",
		Packages: []*metadata.PackageDescriptor{{
			FqName: "geo",
			Files:  []metadata.FileDescriptor{{Name: "geo/shapes.st", ID: 0}},
			Decls: []*metadata.DeclDescriptor{
				{Name: "Point", Kind: metadata.DeclClass, FileID: 0, UniqID: table.UniqID(g.point)},
				{Name: "area", Kind: metadata.DeclFunction, Params: 1, FileID: 0, UniqID: table.UniqID(g.area)},
			},
		}},
	}
	g.lib = &Library{Name: "geo", Descriptor: desc, Module: m, CompilerVersion: "0.1.0-test", Table: table}
	return g
}

func TestDeclarationTableNumbering(t *testing.T) {
	g := newGeoLib(t)
	table := g.lib.Table
	assert.Equal(t, metadata.DescriptorUniqID{Index: 0}, table.UniqID(g.point))
	assert.Equal(t, metadata.DescriptorUniqID{Index: 1}, table.UniqID(g.area))
	assert.Equal(t, metadata.DescriptorUniqID{Index: 0, Local: true}, table.UniqID(g.helper))
	assert.Equal(t, 3, table.Len())

	table.AssignAll()
	assert.Equal(t, 3, table.Len(), "assignment is stable")
	assert.Equal(t, "1G.decl", DeclFileName(table.UniqID(g.area)))
	assert.Equal(t, "0L.decl", DeclFileName(table.UniqID(g.helper)))
}

func TestWriteAndOpen(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()

	layout, err := Write(context.Background(), out, g.lib)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "geo"), layout.Dir)
	for _, p := range []string{layout.Manifest(), layout.Metadata(), layout.ModuleIR(), layout.Debug()} {
		assert.FileExists(t, p)
	}

	a, err := Open(layout.Dir)
	require.NoError(t, err)
	assert.Equal(t, "geo", a.Name())
	assert.Equal(t, "0.1.0-test", a.Manifest.CompilerVersion)
	assert.Equal(t, metadata.CurrentVersion.String(), a.Manifest.MetadataVersion)

	desc, err := a.Descriptor()
	require.NoError(t, err)
	require.Len(t, desc.Packages, 1)
	require.Len(t, desc.Packages[0].Decls, 2)
	assert.Equal(t, "geo.area", desc.Packages[0].Decls[1].FqName())
	assert.Equal(t, metadata.DescriptorUniqID{Index: 1}, desc.Packages[0].Decls[1].UniqID)

	ids, err := a.DeclIDs()
	require.NoError(t, err)
	assert.Equal(t, []metadata.DescriptorUniqID{{Index: 0}, {Index: 1}, {Index: 0, Local: true}}, ids)

	rec, err := a.DeclRecord(metadata.DescriptorUniqID{Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "area", rec.Name)
	assert.Equal(t, "geo/area/1", rec.Signature)
	require.Len(t, rec.Refs, 2)
	assert.Equal(t, metadata.DescriptorUniqID{Index: 0}, rec.Refs[0].Target)
	assert.Equal(t, int64(builtins.ClassOffset+1), rec.Refs[1].BuiltinID)
	require.Len(t, rec.FuncTypes, 1)
	assert.Equal(t, int64(builtins.ClassOffset+1), rec.FuncTypes[0].BuiltinID)

	mod, err := a.ModuleRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(2), mod.Globals)
	assert.Equal(t, int64(1), mod.Locals)
	require.Len(t, mod.Files, 1)
	assert.Len(t, mod.Files[0].Roots, 3)

	_, err = a.LoadIR(ir.NewBuiltins())
	assert.ErrorIs(t, err, ErrIRNotImplemented)
}

func TestOpenRejectsTamperedMetadata(t *testing.T) {
	g := newGeoLib(t)
	layout, err := Write(context.Background(), t.TempDir(), g.lib)
	require.NoError(t, err)

	data, err := os.ReadFile(layout.Metadata())
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(layout.Metadata(), data, 0o600))

	_, err = Open(layout.Dir)
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestWriteCanceledLeavesNothing(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Write(ctx, out, g.lib)
	require.ErrorIs(t, err, context.Canceled)
	assertOnlyLock(t, out)
}

func TestWriteCanceledMidwayKeepsPrevious(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()
	first, err := Write(context.Background(), out, g.lib)
	require.NoError(t, err)
	before, err := os.ReadFile(first.Manifest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fileWritten = func(path string) {
		if filepath.Ext(path) == ".decl" {
			cancel()
		}
	}
	defer func() { fileWritten = nil }()

	g.lib.CompilerVersion = "0.2.0-test"
	_, err = Write(ctx, out, g.lib)
	require.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(first.Manifest())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "staging")
	}
}

func TestWriteRejectedByVerifyKeepsPrevious(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()
	first, err := Write(context.Background(), out, g.lib)
	require.NoError(t, err)
	before, err := os.ReadFile(first.Manifest())
	require.NoError(t, err)

	rejected := errors.New("read back differs")
	var seen Layout
	g.lib.CompilerVersion = "0.2.0-test"
	g.lib.Verify = func(staged Layout) error {
		seen = staged
		arc, err := Open(staged.Dir)
		require.NoError(t, err)
		assert.Equal(t, "0.2.0-test", arc.Manifest.CompilerVersion)
		return rejected
	}
	_, err = Write(context.Background(), out, g.lib)
	require.ErrorIs(t, err, rejected)
	assert.NotEqual(t, first.Dir, seen.Dir)
	assert.Equal(t, "geo", seen.Name)

	after, err := os.ReadFile(first.Manifest())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoDirExists(t, seen.Dir)
}

func TestWritePublishFailureRestoresPrevious(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()
	first, err := Write(context.Background(), out, g.lib)
	require.NoError(t, err)
	before, err := os.ReadFile(first.Manifest())
	require.NoError(t, err)

	injected := errors.New("device busy")
	rename = func(from, to string) error {
		if to == first.Dir && strings.Contains(filepath.Base(from), ".staging-") && !strings.HasSuffix(from, ".previous") {
			return injected
		}
		return os.Rename(from, to)
	}
	defer func() { rename = os.Rename }()

	g.lib.CompilerVersion = "0.2.0-test"
	_, err = Write(context.Background(), out, g.lib)
	require.ErrorIs(t, err, injected)

	after, err := os.ReadFile(first.Manifest())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{".geo.lock", "geo"}, names)
}

func TestWriteReplacesPreviousWithoutLeftovers(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()
	_, err := Write(context.Background(), out, g.lib)
	require.NoError(t, err)

	g.lib.CompilerVersion = "0.2.0-test"
	second, err := Write(context.Background(), out, g.lib)
	require.NoError(t, err)
	arc, err := Open(second.Dir)
	require.NoError(t, err)
	assert.Equal(t, "0.2.0-test", arc.Manifest.CompilerVersion)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteWaitsForLock(t *testing.T) {
	g := newGeoLib(t)
	out := t.TempDir()
	held := flock.New(lockPath(out, "geo"))
	require.NoError(t, held.Lock())
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err := Write(ctx, out, g.lib)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	_, statErr := os.Stat(filepath.Join(out, "geo"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestManifest(t *testing.T) {
	m := &Manifest{
		UniqueName:      "geo",
		CompilerVersion: "0.1.0",
		Properties:      map[string]string{"native_targets": "linux_x64"},
	}
	parsed, err := ParseManifest(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, "geo", parsed.UniqueName)
	assert.Equal(t, "0.1.0", parsed.CompilerVersion)
	assert.Equal(t, "linux_x64", parsed.Properties["native_targets"])

	parsed, err = ParseManifest([]byte("UNIQUE_NAME=geo\n"))
	require.NoError(t, err)
	assert.Equal(t, "geo", parsed.UniqueName)

	_, err = ParseManifest([]byte("compiler_version=1\n"))
	assert.ErrorIs(t, err, ErrManifestKeyMissing)
}

func TestBlobRoundTrip(t *testing.T) {
	in := &ModuleRecord{Name: "geo", Globals: 4, Builtins: []int64{1, 513}}
	data, err := EncodeBlob(in)
	require.NoError(t, err)
	var out ModuleRecord
	require.NoError(t, DecodeBlob(data, &out))
	assert.Equal(t, *in, out)

	assert.Error(t, DecodeBlob([]byte("not xz"), &out))
}

func assertOnlyLock(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, ".geo.lock", e.Name())
	}
}
