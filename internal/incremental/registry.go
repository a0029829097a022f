// Package incremental maps build inputs (class directories and packaged
// archives) to the modules that own them and back. A Registry is a snapshot
// supplied by build integration for one session; it is never mutated.
package incremental

import (
	"path/filepath"
	"sort"
	"strings"
)

// ModuleEntry identifies one module of the project. Identity is
// (ProjectPath, Name); BuildDir and BuildHistoryFile are attributes.
type ModuleEntry struct {
	ProjectPath      string `msgpack:"project_path"`
	Name             string `msgpack:"name"`
	BuildDir         string `msgpack:"build_dir"`
	BuildHistoryFile string `msgpack:"build_history"`
}

// ModuleKey is the identity part of a ModuleEntry.
type ModuleKey struct {
	ProjectPath string
	Name        string
}

// Key returns the identity of e.
func (e ModuleEntry) Key() ModuleKey { return ModuleKey{ProjectPath: e.ProjectPath, Name: e.Name} }

func (e ModuleEntry) String() string { return e.ProjectPath + ":" + e.Name }

// Registry is the read-only file/module index of one session.
type Registry struct {
	ProjectRoot        string
	dirToModule        map[string]ModuleEntry
	nameToModules      map[string][]ModuleEntry
	archiveToCompanion map[string]string
	archiveToModule    map[string]ModuleEntry
}

// Maps is the input of NewRegistry.
type Maps struct {
	DirToModule        map[string]ModuleEntry
	NameToModules      map[string][]ModuleEntry
	ArchiveToCompanion map[string]string
	ArchiveToModule    map[string]ModuleEntry
}

// NewRegistry copies maps, so later changes by the caller do not leak into
// the snapshot. Entries sharing an identity with different attributes are
// not detected.
func NewRegistry(projectRoot string, maps Maps) *Registry {
	r := &Registry{
		ProjectRoot:        projectRoot,
		dirToModule:        copyEntries(maps.DirToModule),
		nameToModules:      make(map[string][]ModuleEntry, len(maps.NameToModules)),
		archiveToCompanion: make(map[string]string, len(maps.ArchiveToCompanion)),
		archiveToModule:    copyEntries(maps.ArchiveToModule),
	}
	for name, entries := range maps.NameToModules {
		r.nameToModules[name] = uniqueEntries(entries)
	}
	for k, v := range maps.ArchiveToCompanion {
		r.archiveToCompanion[k] = v
	}
	return r
}

func copyEntries(in map[string]ModuleEntry) map[string]ModuleEntry {
	out := make(map[string]ModuleEntry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func uniqueEntries(in []ModuleEntry) []ModuleEntry {
	seen := make(map[ModuleEntry]struct{}, len(in))
	out := make([]ModuleEntry, 0, len(in))
	for _, e := range in {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(s []ModuleEntry) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].ProjectPath != s[j].ProjectPath {
			return s[i].ProjectPath < s[j].ProjectPath
		}
		if s[i].Name != s[j].Name {
			return s[i].Name < s[j].Name
		}
		return s[i].BuildDir < s[j].BuildDir
	})
}

// DirToModule returns a copy of the directory map.
func (r *Registry) DirToModule() map[string]ModuleEntry { return copyEntries(r.dirToModule) }

// ArchiveToModule returns a copy of the archive map.
func (r *Registry) ArchiveToModule() map[string]ModuleEntry { return copyEntries(r.archiveToModule) }

// ArchiveToCompanion returns a copy of the archive to companion-file map.
func (r *Registry) ArchiveToCompanion() map[string]string {
	out := make(map[string]string, len(r.archiveToCompanion))
	for k, v := range r.archiveToCompanion {
		out[k] = v
	}
	return out
}

// NameToModules returns a copy of the name map.
func (r *Registry) NameToModules() map[string][]ModuleEntry {
	out := make(map[string][]ModuleEntry, len(r.nameToModules))
	for k, v := range r.nameToModules {
		out[k] = append([]ModuleEntry(nil), v...)
	}
	return out
}

// AllModulesToFiles inverts the directory and archive maps: every module is
// listed with all directories and archives that belong to it, sorted and
// without duplicates. The result is rebuilt on every call.
func (r *Registry) AllModulesToFiles() map[ModuleEntry][]string {
	sets := make(map[ModuleEntry]map[string]struct{})
	add := func(file string, m ModuleEntry) {
		set, ok := sets[m]
		if !ok {
			set = make(map[string]struct{})
			sets[m] = set
		}
		set[file] = struct{}{}
	}
	for file, m := range r.dirToModule {
		add(file, m)
	}
	for file, m := range r.archiveToModule {
		add(file, m)
	}
	out := make(map[ModuleEntry][]string, len(sets))
	for m, set := range sets {
		files := make([]string, 0, len(set))
		for f := range set {
			files = append(files, f)
		}
		sort.Strings(files)
		out[m] = files
	}
	return out
}

// ModulesByName returns the modules registered under name.
func (r *Registry) ModulesByName(name string) []ModuleEntry {
	return append([]ModuleEntry(nil), r.nameToModules[name]...)
}

// CompanionFile returns the companion file of an archive.
func (r *Registry) CompanionFile(archive string) (string, bool) {
	f, ok := r.archiveToCompanion[filepath.Clean(archive)]
	if !ok {
		f, ok = r.archiveToCompanion[archive]
	}
	return f, ok
}

// ModuleForFile returns the module owning path: an exact archive or
// directory match first, otherwise the registered directory that contains
// path most closely.
func (r *Registry) ModuleForFile(path string) (ModuleEntry, bool) {
	clean := filepath.Clean(path)
	if m, ok := r.archiveToModule[clean]; ok {
		return m, true
	}
	if m, ok := r.dirToModule[clean]; ok {
		return m, true
	}
	var (
		best    ModuleEntry
		bestLen = -1
		found   bool
	)
	for dir, m := range r.dirToModule {
		d := filepath.Clean(dir)
		if !within(d, clean) {
			continue
		}
		// при равной длине берём меньший по порядку, чтобы не зависеть от обхода map
		if len(d) > bestLen || (len(d) == bestLen && m.String() < best.String()) {
			best, bestLen, found = m, len(d), true
		}
	}
	return best, found
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
