package archive

import (
	"strata/internal/ir"
	"strata/internal/metadata"
)

// DeclarationTable assigns archive addresses to the declarations of one
// module. Global and local declarations are numbered independently, in the
// order they are first requested.
type DeclarationTable struct {
	m      *ir.Module
	ids    map[ir.DeclID]metadata.DescriptorUniqID
	order  []ir.DeclID
	global int64
	local  int64
}

// NewDeclarationTable creates an empty table for m.
func NewDeclarationTable(m *ir.Module) *DeclarationTable {
	return &DeclarationTable{m: m, ids: make(map[ir.DeclID]metadata.DescriptorUniqID)}
}

// IsLocal reports whether id, or any of its ancestors, is lifted, anonymous
// or synthesized. Such declarations are not addressable from other modules.
func (t *DeclarationTable) IsLocal(id ir.DeclID) bool {
	const localFlags = ir.FlagLifted | ir.FlagAnonymous | ir.FlagSynthetic
	for cur := id; cur.IsValid(); cur = t.m.Decl(cur).Parent {
		d := t.m.Decl(cur)
		if d.Kind == ir.KindFile {
			return false
		}
		if d.Flags&localFlags != 0 {
			return true
		}
	}
	return false
}

// UniqID returns the address of id, assigning the next free index on first
// use.
func (t *DeclarationTable) UniqID(id ir.DeclID) metadata.DescriptorUniqID {
	if u, ok := t.ids[id]; ok {
		return u
	}
	u := metadata.DescriptorUniqID{Local: t.IsLocal(id)}
	if u.Local {
		u.Index = t.local
		t.local++
	} else {
		u.Index = t.global
		t.global++
	}
	t.ids[id] = u
	t.order = append(t.order, id)
	return u
}

// Lookup returns the address of id without assigning one.
func (t *DeclarationTable) Lookup(id ir.DeclID) (metadata.DescriptorUniqID, bool) {
	u, ok := t.ids[id]
	return u, ok
}

// AssignAll numbers every live non-file declaration in pre-order.
func (t *DeclarationTable) AssignAll() {
	t.m.Walk(func(id ir.DeclID, d *ir.Decl) bool {
		if d.Kind != ir.KindFile {
			t.UniqID(id)
		}
		return true
	})
}

// Entries returns the assigned declarations in assignment order.
func (t *DeclarationTable) Entries() []ir.DeclID {
	return append([]ir.DeclID(nil), t.order...)
}

// Len returns the number of assigned declarations.
func (t *DeclarationTable) Len() int { return len(t.order) }
