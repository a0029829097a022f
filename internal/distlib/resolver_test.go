package distlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLib(t *testing.T, dir, manifest string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest"), []byte(manifest), 0o600))
	}
	return dir
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	r := &Resolver{Root: root}

	common := writeLib(t, filepath.Join(root, "klib", "common", "stdlib"), "unique_name=strata-stdlib\n")
	info, ok := r.Resolve(common)
	require.True(t, ok)
	assert.Equal(t, LibraryInfo{Path: common, Name: "strata-stdlib"}, info)
	assert.Equal(t, "strata-stdlib [common]", info.String())

	posix := writeLib(t, filepath.Join(root, "klib", "platform", "linux_x64", "posix"), "unique_name=posix\ncompiler_version=0.1.0\n")
	info, ok = r.Resolve(posix)
	require.True(t, ok)
	assert.Equal(t, LibraryInfo{Path: posix, Name: "posix", Platform: "linux_x64", HasPlatform: true}, info)
}

func TestResolveRejects(t *testing.T) {
	root := t.TempDir()
	r := &Resolver{Root: root}

	cases := map[string]string{
		"no manifest":       writeLib(t, filepath.Join(root, "common", "empty"), ""),
		"no unique name":    writeLib(t, filepath.Join(root, "common", "nameless"), "compiler_version=1\n"),
		"wrong parent":      writeLib(t, filepath.Join(root, "misc", "lib"), "unique_name=lib\n"),
		"wrong grandparent": writeLib(t, filepath.Join(root, "targets", "linux_x64", "lib"), "unique_name=lib\n"),
	}
	dirManifest := filepath.Join(root, "common", "dir-manifest")
	require.NoError(t, os.MkdirAll(filepath.Join(dirManifest, "manifest"), 0o750))
	cases["manifest is a directory"] = dirManifest

	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := r.Resolve(path)
			assert.False(t, ok)
		})
	}
}

func TestResolveOutsideRootIgnoresManifest(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	lib := writeLib(t, filepath.Join(outside, "common", "stdlib"), "unique_name=strata-stdlib\n")

	r := &Resolver{Root: root}
	_, ok := r.Resolve(lib)
	assert.False(t, ok)

	sibling := writeLib(t, root+"-sibling/common/x", "unique_name=x\n")
	_, ok = r.Resolve(sibling)
	assert.False(t, ok)
}

func TestDefaultRoot(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STRATA_DATA_DIR", dir)
	root, err := DefaultRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, root)

	t.Setenv("STRATA_DATA_DIR", "")
	t.Setenv("HOME", dir)
	root, err = DefaultRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".strata"), root)
}
