package metadata

import "fmt"

// Version is the metadata format version written into every envelope.
type Version struct {
	Major int `msgpack:"major" toml:"major"`
	Minor int `msgpack:"minor" toml:"minor"`
	Patch int `msgpack:"patch" toml:"patch"`
}

// CurrentVersion is the version produced by this compiler.
var CurrentVersion = Version{Major: 1, Minor: 2, Patch: 0}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// ParseVersion parses "major.minor.patch" (patch optional).
func ParseVersion(s string) (Version, error) {
	var v Version
	n, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if n >= 2 {
		return v, nil
	}
	if err == nil {
		err = fmt.Errorf("too few components")
	}
	return Version{}, fmt.Errorf("invalid metadata version %q: %w", s, err)
}

// IsCompatible reports whether metadata written with v can be read by a
// reader at CurrentVersion.
func (v Version) IsCompatible() bool {
	return v.Major == CurrentVersion.Major && v.Minor <= CurrentVersion.Minor
}
