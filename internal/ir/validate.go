package ir

import (
	"errors"
	"fmt"
)

// Validate checks the structural invariants of the arena: parent and child
// links agree, every live node is reachable from a file root exactly once,
// file indices are in range and removed nodes are detached.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	visits := make([]int, len(m.decls))

	for fi, f := range m.Files {
		if !m.Has(f.Root) {
			errs = append(errs, fmt.Errorf("file %q: invalid root id %d", f.Path, f.Root))
			continue
		}
		root := m.Decl(f.Root)
		if root.Kind != KindFile {
			errs = append(errs, fmt.Errorf("file %q: root is a %s", f.Path, root.Kind))
		}
		if root.Parent.IsValid() {
			errs = append(errs, fmt.Errorf("file %q: root has a parent", f.Path))
		}
		errs = append(errs, validateSubtree(m, f.Root, fi, visits, 0)...)
	}

	for i := 1; i < len(m.decls); i++ {
		d := &m.decls[i]
		switch {
		case d.Flags.Has(FlagRemoved):
			if visits[i] != 0 {
				errs = append(errs, fmt.Errorf("removed declaration %q is still attached", d.Name))
			}
		case visits[i] == 0:
			errs = append(errs, fmt.Errorf("declaration %q (#%d) is unreachable", d.Name, i))
		}
	}
	return errors.Join(errs...)
}

func validateSubtree(m *Module, id DeclID, file int, visits []int, depth int) []error {
	var errs []error
	if depth > len(m.decls) {
		return []error{fmt.Errorf("cycle through declaration #%d", id)}
	}
	visits[id]++
	if visits[id] > 1 {
		return []error{fmt.Errorf("declaration %q (#%d) reachable more than once", m.decls[id].Name, id)}
	}
	d := &m.decls[id]
	if d.File != file {
		errs = append(errs, fmt.Errorf("declaration %q: file index %d, want %d", d.Name, d.File, file))
	}
	if d.Kind != KindFile && d.Name == "" {
		errs = append(errs, fmt.Errorf("declaration #%d has no name", id))
	}
	for _, c := range d.Children {
		if !m.Has(c) {
			errs = append(errs, fmt.Errorf("declaration %q: invalid child id %d", d.Name, c))
			continue
		}
		if m.decls[c].Parent != id {
			errs = append(errs, fmt.Errorf("declaration %q: child %q points to parent #%d", d.Name, m.decls[c].Name, m.decls[c].Parent))
		}
		errs = append(errs, validateSubtree(m, c, file, visits, depth+1)...)
	}
	return errs
}
