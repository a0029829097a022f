package ir

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"strata/internal/ice"
	"strata/internal/source"
)

// Param is a value parameter of a function.
type Param struct {
	Name       string
	Type       string
	HasDefault bool
}

// FuncTypeRef is a reference to a function type such as (A, B) -> C.
// The function-types phase binds it to a built-in family class.
type FuncTypeRef struct {
	Arity     int
	Suspend   bool
	Class     *FunctionClass // nil until bound
	BuiltinID int64
}

// Bound reports whether the reference was bound to a family class.
func (r FuncTypeRef) Bound() bool { return r.Class != nil }

// RefKind tells where a resolved reference points.
type RefKind uint8

const (
	RefLocal RefKind = iota + 1
	RefExternal
	RefBuiltin
)

// SymbolRef is a resolved cross-declaration reference (call, supertype, field
// type). Local references point into the same module; external ones go through
// the session symbol table.
type SymbolRef struct {
	Kind   RefKind
	FqName string
	Decl   DeclID         // RefLocal
	Symbol *Symbol        // RefExternal
	Class  *FunctionClass // RefBuiltin
}

// Decl is one arena node.
type Decl struct {
	Kind      DeclKind
	Name      string
	Parent    DeclID
	Children  []DeclID
	Flags     DeclFlags
	File      int
	Start     int32
	End       int32
	Params    []Param
	Captures  []string
	FuncTypes []FuncTypeRef
	Refs      []SymbolRef
	Type      string
	Signature string
	Origin    string // phase that synthesized the declaration, empty for source
}

// File is one compiled source file. ID is the file id recorded in library
// metadata; it defaults to the file's position.
type File struct {
	ID          int32
	Path        string
	Package     string
	Root        DeclID
	Entry       *source.FileEntry
	Annotations []string
}

// Module is an IR module owned by exactly one compilation session.
type Module struct {
	Name     string
	Files    []File
	Builtins *Builtins
	decls    []Decl
}

// NewModule creates an empty module bound to the session built-ins.
func NewModule(name string, b *Builtins) *Module {
	return &Module{
		Name:     name,
		Builtins: b,
		decls:    make([]Decl, 1, 64), // слот 0 зарезервирован под NoDeclID
	}
}

// AddFile registers a source file and returns its index.
func (m *Module) AddFile(path, pkg string, entry *source.FileEntry) int {
	if entry == nil {
		entry = source.NewFileEntryFromContent(path, nil)
	}
	idx := len(m.Files)
	id, err := safecast.Conv[int32](idx)
	if err != nil {
		panic(fmt.Errorf("file table overflow: %w", err))
	}
	root := m.push(Decl{Kind: KindFile, Name: path, File: idx, Start: source.SyntheticOffset, End: source.SyntheticOffset})
	m.Files = append(m.Files, File{ID: id, Path: path, Package: pkg, Root: root, Entry: entry})
	return idx
}

func (m *Module) push(d Decl) DeclID {
	n, err := safecast.Conv[uint32](len(m.decls))
	if err != nil {
		panic(fmt.Errorf("declaration arena overflow: %w", err))
	}
	m.decls = append(m.decls, d)
	return DeclID(n)
}

// Add appends d as the last child of parent and returns its id.
func (m *Module) Add(parent DeclID, d Decl) DeclID {
	p := m.Decl(parent)
	d.Parent = parent
	d.File = p.File
	d.Children = nil
	id := m.push(d)
	// push мог переаллоцировать арену, берём родителя заново
	p = m.Decl(parent)
	p.Children = append(p.Children, id)
	return id
}

// Decl returns the node for id. An invalid id is an internal error.
func (m *Module) Decl(id DeclID) *Decl {
	if !id.IsValid() || int(id) >= len(m.decls) {
		ice.Panic("module "+m.Name, "invalid declaration id %d", id)
	}
	return &m.decls[id]
}

// Has reports whether id is inside the arena.
func (m *Module) Has(id DeclID) bool {
	return id.IsValid() && int(id) < len(m.decls)
}

// Len returns the arena size, including removed nodes.
func (m *Module) Len() int { return len(m.decls) - 1 }

// Reparent moves id (with its subtree) to the end of newParent's children.
func (m *Module) Reparent(id, newParent DeclID) {
	d := m.Decl(id)
	if d.Kind == KindFile {
		ice.Panic("module "+m.Name, "cannot reparent file root %q", d.Name)
	}
	m.detach(id)
	np := m.Decl(newParent)
	np.Children = append(np.Children, id)
	d = m.Decl(id)
	d.Parent = newParent
	m.setFile(id, np.File)
}

func (m *Module) setFile(id DeclID, file int) {
	d := m.Decl(id)
	d.File = file
	for _, c := range d.Children {
		m.setFile(c, file)
	}
}

// Remove detaches id from the tree. The slot stays in the arena, flagged.
func (m *Module) Remove(id DeclID) {
	m.detach(id)
	d := m.Decl(id)
	d.Parent = NoDeclID
	d.Flags |= FlagRemoved
}

func (m *Module) detach(id DeclID) {
	d := m.Decl(id)
	if !d.Parent.IsValid() {
		return
	}
	p := m.Decl(d.Parent)
	for i, c := range p.Children {
		if c == id {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			return
		}
	}
	ice.Panic("module "+m.Name, "declaration %q missing from its parent's children", d.Name)
}

// Walk visits every live declaration in pre-order, file by file. Returning
// false from fn skips the subtree.
func (m *Module) Walk(fn func(id DeclID, d *Decl) bool) {
	for _, f := range m.Files {
		m.walk(f.Root, fn)
	}
}

func (m *Module) walk(id DeclID, fn func(DeclID, *Decl) bool) {
	if !fn(id, m.Decl(id)) {
		return
	}
	// копия: fn может менять список детей
	children := append([]DeclID(nil), m.Decl(id).Children...)
	for _, c := range children {
		m.walk(c, fn)
	}
}

// Collect returns ids of live declarations matching pred, in pre-order.
func (m *Module) Collect(pred func(*Decl) bool) []DeclID {
	var out []DeclID
	m.Walk(func(id DeclID, d *Decl) bool {
		if pred(d) {
			out = append(out, id)
		}
		return true
	})
	return out
}

// EnclosingFunction returns the nearest function ancestor of id.
func (m *Module) EnclosingFunction(id DeclID) (DeclID, bool) {
	for p := m.Decl(id).Parent; p.IsValid(); p = m.Decl(p).Parent {
		if m.Decl(p).Kind == KindFunction {
			return p, true
		}
	}
	return NoDeclID, false
}

// IsLocal reports whether id is declared inside a function body.
func (m *Module) IsLocal(id DeclID) bool {
	_, ok := m.EnclosingFunction(id)
	return ok
}

// IsAnonymousObject reports whether id is an anonymous class.
func (m *Module) IsAnonymousObject(id DeclID) bool {
	d := m.Decl(id)
	return d.Kind == KindClass && d.Flags.Has(FlagAnonymous)
}

// Container returns the nearest class or file ancestor of id.
func (m *Module) Container(id DeclID) DeclID {
	for p := m.Decl(id).Parent; p.IsValid(); p = m.Decl(p).Parent {
		if k := m.Decl(p).Kind; k == KindClass || k == KindFile {
			return p
		}
	}
	return NoDeclID
}

// Package returns the package of the file that contains id.
func (m *Module) Package(id DeclID) string {
	return m.Files[m.Decl(id).File].Package
}

// FqName returns the dotted name of id: package, enclosing declarations, name.
func (m *Module) FqName(id DeclID) string {
	var parts []string
	for cur := id; cur.IsValid(); cur = m.Decl(cur).Parent {
		d := m.Decl(cur)
		if d.Kind == KindFile {
			break
		}
		parts = append(parts, d.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	name := strings.Join(parts, ".")
	if pkg := m.Package(id); pkg != "" {
		return pkg + "." + name
	}
	return name
}

// Position resolves the start offset of id.
func (m *Module) Position(id DeclID) source.Position {
	d := m.Decl(id)
	f := m.Files[d.File]
	if d.Start == source.UndefinedOffset {
		return source.Position{File: f.Path}
	}
	return f.Entry.Position(d.Start)
}

// TopLevel returns the direct children of every file root.
func (m *Module) TopLevel() []DeclID {
	var out []DeclID
	for _, f := range m.Files {
		out = append(out, m.Decl(f.Root).Children...)
	}
	return out
}
