package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/metadata"
)

func TestLoad(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "proj", FileName))
	require.NoError(t, err)

	root, err := filepath.Abs(filepath.Join("testdata", "proj"))
	require.NoError(t, err)
	assert.Equal(t, root, p.Root)
	assert.Equal(t, "app", p.Module)
	assert.Equal(t, metadata.Version{Major: 1, Minor: 1}, p.Compiler.MetadataVersion)
	assert.Equal(t, "1.3", p.Compiler.LanguageVersion)
	assert.True(t, p.Compiler.ReportPreRelease)
	assert.Equal(t, ModeArchive, p.Compiler.Mode)
	assert.Equal(t, filepath.Join(root, "out", "libs"), p.Compiler.Output)
	assert.Equal(t, []string{"inline_classes"}, p.EnabledFeatures())
}

func TestLoadFromSubdirectory(t *testing.T) {
	p, ok, err := LoadFrom(filepath.Join("testdata", "proj", "src"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "app", p.Module)

	root, ok, err := FindProjectRoot(filepath.Join("testdata", "proj", "src"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.Root, root)

	_, ok, err = LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("[module]\nname = \"geo.shapes\"\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, metadata.CurrentVersion, p.Compiler.MetadataVersion)
	assert.Equal(t, ModeEmit, p.Compiler.Mode)
	assert.Equal(t, filepath.Join(dir, "build"), p.Compiler.Output)
	assert.Empty(t, p.EnabledFeatures())
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{name: "no module", content: "[compiler]\nmode = \"emit\"\n", want: ErrModuleSectionMissing},
		{name: "bad name", content: "[module]\nname = \"1app\"\n", want: ErrModuleNameInvalid},
		{name: "empty name", content: "[module]\n", want: ErrModuleNameInvalid},
		{name: "bad mode", content: "[module]\nname = \"app\"\n[compiler]\nmode = \"jit\"\n"},
		{name: "future metadata", content: "[module]\nname = \"app\"\n[compiler]\nmetadata_version = \"2.0.0\"\n"},
		{name: "escaping output", content: "[module]\nname = \"app\"\n[compiler]\noutput = \"../x\"\n"},
		{name: "absolute output", content: "[module]\nname = \"app\"\n[compiler]\noutput = \"/tmp/x\"\n"},
		{name: "syntax", content: "[module\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))
			_, err := Load(path)
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Archive ")
	require.NoError(t, err)
	assert.Equal(t, ModeArchive, m)
	_, err = ParseMode("")
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("STRATA_DATA_DIR", "/opt/strata")
	t.Setenv("STRATA_TRACE_LEVEL", "phase")
	t.Setenv("STRATA_JOBS", "3")
	env := LoadEnv()
	assert.Equal(t, Env{DataDir: "/opt/strata", TraceLevel: "phase", Jobs: 3}, env)
}
