package incremental

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrModuleNameMissing indicates a [[modules]] entry without name.
	ErrModuleNameMissing = errors.New("missing [[modules]].name")
	// ErrDuplicateInput indicates a directory or archive claimed by two modules.
	ErrDuplicateInput = errors.New("input registered twice")
)

type wireRegistry struct {
	ProjectRoot        string                   `msgpack:"project_root"`
	DirToModule        map[string]ModuleEntry   `msgpack:"dirs"`
	NameToModules      map[string][]ModuleEntry `msgpack:"names"`
	ArchiveToCompanion map[string]string        `msgpack:"companions"`
	ArchiveToModule    map[string]ModuleEntry   `msgpack:"archives"`
}

// Encode serializes the registry for another process.
func (r *Registry) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(&wireRegistry{
		ProjectRoot:        r.ProjectRoot,
		DirToModule:        r.dirToModule,
		NameToModules:      r.nameToModules,
		ArchiveToCompanion: r.archiveToCompanion,
		ArchiveToModule:    r.archiveToModule,
	})
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	return data, nil
}

// Decode reads a registry written by Encode.
func Decode(data []byte) (*Registry, error) {
	var w wireRegistry
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return NewRegistry(w.ProjectRoot, Maps{
		DirToModule:        w.DirToModule,
		NameToModules:      w.NameToModules,
		ArchiveToCompanion: w.ArchiveToCompanion,
		ArchiveToModule:    w.ArchiveToModule,
	}), nil
}

type registryFile struct {
	ProjectRoot string        `toml:"project_root"`
	Modules     []moduleTable `toml:"modules"`
}

type moduleTable struct {
	ProjectPath  string         `toml:"project_path"`
	Name         string         `toml:"name"`
	BuildDir     string         `toml:"build_dir"`
	BuildHistory string         `toml:"build_history"`
	Dirs         []string       `toml:"dirs"`
	Archives     []archiveTable `toml:"archives"`
}

type archiveTable struct {
	Path      string `toml:"path"`
	Companion string `toml:"companion"`
}

// Load reads the TOML registry written by build integration:
//
//	project_root = "."
//	[[modules]]
//	project_path = ":app"
//	name = "app"
//	build_dir = "build/app"
//	build_history = "build/app/history.bin"
//	dirs = ["build/app/classes"]
//	[[modules.archives]]
//	path = "libs/app.klib"
//	companion = "libs/app.list"
//
// Relative paths are resolved against project_root, which itself is resolved
// against the registry file's directory.
func Load(path string) (*Registry, error) {
	var cfg registryFile
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	root := filepath.Dir(path)
	if meta.IsDefined("project_root") && strings.TrimSpace(cfg.ProjectRoot) != "" {
		root = resolve(root, cfg.ProjectRoot)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	maps := Maps{
		DirToModule:        make(map[string]ModuleEntry),
		NameToModules:      make(map[string][]ModuleEntry),
		ArchiveToCompanion: make(map[string]string),
		ArchiveToModule:    make(map[string]ModuleEntry),
	}
	var errs []error
	for i, mt := range cfg.Modules {
		e := ModuleEntry{ProjectPath: mt.ProjectPath, Name: mt.Name, BuildDir: mt.BuildDir, BuildHistoryFile: mt.BuildHistory}
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: modules[%d]: %w", path, i, ErrModuleNameMissing))
			continue
		}
		if e.BuildDir != "" {
			e.BuildDir = resolve(root, e.BuildDir)
		}
		if e.BuildHistoryFile != "" {
			e.BuildHistoryFile = resolve(root, e.BuildHistoryFile)
		}
		maps.NameToModules[e.Name] = append(maps.NameToModules[e.Name], e)
		for _, d := range mt.Dirs {
			d = resolve(root, d)
			if prev, dup := maps.DirToModule[d]; dup && prev != e {
				errs = append(errs, fmt.Errorf("%s: %s (%s, %s): %w", path, d, prev, e, ErrDuplicateInput))
				continue
			}
			maps.DirToModule[d] = e
		}
		for _, a := range mt.Archives {
			p := resolve(root, a.Path)
			if prev, dup := maps.ArchiveToModule[p]; dup && prev != e {
				errs = append(errs, fmt.Errorf("%s: %s (%s, %s): %w", path, p, prev, e, ErrDuplicateInput))
				continue
			}
			maps.ArchiveToModule[p] = e
			if a.Companion != "" {
				maps.ArchiveToCompanion[p] = resolve(root, a.Companion)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewRegistry(root, maps), nil
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
