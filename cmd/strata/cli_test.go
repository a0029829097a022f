package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geoModule = `[module]
name = "geo"

[[files]]
path = "geo.st"
package = "geo"

[[decls]]
file = "geo.st"
kind = "class"
name = "Point"
exported = true

[[decls]]
file = "geo.st"
kind = "fun"
name = "area"
exported = true
refs = ["geo.Point"]

  [[decls.params]]
  name = "p"
  type = "Point"
`

const appModule = `[module]
name = "app"
imports = ["geo"]

[[files]]
path = "main.st"
package = "app"

[[decls]]
file = "main.st"
kind = "fun"
name = "main"
exported = true
refs = ["geo.area"]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildArchivesAndDumps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "strata.toml"), "[module]\nname = \"app\"\n\n[compiler]\nmode = \"archive\"\noutput = \"out\"\n")
	geo := filepath.Join(dir, "geo", "geo.toml")
	app := filepath.Join(dir, "app", "app.toml")
	writeFile(t, geo, geoModule)
	writeFile(t, app, appModule)

	out, err := execute(t, "build", "--ui", "off", "--config", filepath.Join(dir, "strata.toml"), "-j", "2", app, geo)
	require.NoError(t, err, "build")
	for _, name := range []string{"app", "geo"} {
		assert.Contains(t, out, "archived "+name+" -> "+filepath.Join(dir, "out", name))
	}

	out, err = execute(t, "lib", "dump", filepath.Join(dir, "out", "geo"))
	require.NoError(t, err, "lib dump")
	for _, want := range []string{"library geo", "package geo", "class Point", "fun area", "2 declaration blob(s)"} {
		assert.Contains(t, out, want)
	}
}

func TestBuildReportsMissingImport(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.toml")
	writeFile(t, filepath.Join(dir, "strata.toml"), "[module]\nname = \"app\"\n")
	writeFile(t, app, appModule)

	_, err := execute(t, "build", "--ui", "off", "--config", filepath.Join(dir, "strata.toml"), "--mode", "emit", app)
	require.Error(t, err, "missing import")
	assert.Contains(t, err.Error(), "LIB2001")
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var payload versionPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload), out)
	assert.Equal(t, "strata", payload.Tool)
	assert.Equal(t, "1.2.0", payload.MetadataVersion)
}

func TestReadColorMode(t *testing.T) {
	for in, want := range map[string]colorMode{"": colorAuto, "AUTO": colorAuto, "on": colorOn, " off ": colorOff} {
		got, err := readColorMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := readColorMode("sometimes")
	assert.Error(t, err)
}

func TestRefreshDigests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.toml")
	writeFile(t, path, geoModule)
	files := map[string]bool{path: true}
	digests := map[string]string{}
	require.True(t, refreshDigests(digests, files), "first scan must report a change")
	require.False(t, refreshDigests(digests, files), "unchanged file reported as changed")
	writeFile(t, path, geoModule+"\n")
	assert.True(t, refreshDigests(digests, files), "edit not detected")
}
