package archive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Manifest keys.
const (
	KeyUniqueName      = "unique_name"
	KeyCompilerVersion = "compiler_version"
	KeyMetadataVersion = "metadata_version"
	KeyMetadataBlake3  = "metadata_blake3"
)

// ErrManifestKeyMissing is returned when a required key is absent.
var ErrManifestKeyMissing = errors.New("manifest key missing")

// Manifest is the key=value description of an archive. Extra keys written by
// other tools are kept in Properties.
type Manifest struct {
	UniqueName      string
	CompilerVersion string
	MetadataVersion string
	MetadataBlake3  string
	Properties      map[string]string
}

// Encode renders the manifest, known keys first, extra keys sorted.
func (m *Manifest) Encode() []byte {
	var b bytes.Buffer
	for _, kv := range [][2]string{
		{KeyUniqueName, m.UniqueName},
		{KeyCompilerVersion, m.CompilerVersion},
		{KeyMetadataVersion, m.MetadataVersion},
		{KeyMetadataBlake3, m.MetadataBlake3},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "%s=%s\n", kv[0], kv[1])
		}
	}
	keys := make([]string, 0, len(m.Properties))
	for k := range m.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, m.Properties[k])
	}
	return b.Bytes()
}

// ParseManifest reads key=value lines. Keys are case-insensitive; only
// unique_name is required.
func ParseManifest(data []byte) (*Manifest, error) {
	v := viper.New()
	v.SetConfigType("env")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m := &Manifest{Properties: make(map[string]string)}
	for _, key := range v.AllKeys() {
		val := strings.TrimSpace(v.GetString(key))
		switch key {
		case KeyUniqueName:
			m.UniqueName = val
		case KeyCompilerVersion:
			m.CompilerVersion = val
		case KeyMetadataVersion:
			m.MetadataVersion = val
		case KeyMetadataBlake3:
			m.MetadataBlake3 = val
		default:
			m.Properties[key] = val
		}
	}
	if m.UniqueName == "" {
		return nil, fmt.Errorf("%w: %s", ErrManifestKeyMissing, KeyUniqueName)
	}
	return m, nil
}

// ReadManifest loads and parses a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	// #nosec G304 -- manifest path comes from the archive layout
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
