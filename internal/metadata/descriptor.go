package metadata

import (
	"fmt"
	"strconv"

	"strata/internal/builtins"
)

// DeclKind enumerates descriptor kinds.
type DeclKind uint8

const (
	DeclClass DeclKind = iota + 1
	DeclFunction
	DeclProperty
	DeclField
)

func (k DeclKind) String() string {
	switch k {
	case DeclClass:
		return "class"
	case DeclFunction:
		return "fun"
	case DeclProperty:
		return "property"
	case DeclField:
		return "field"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// DeclFlags are the serialized declaration bits.
type DeclFlags uint16

const (
	DeclAbstract DeclFlags = 1 << iota
	DeclSuspend
	DeclAnonymous
	DeclLocal
)

// NoFile marks a declaration without a containing source file.
const NoFile int32 = -1

// Value is an annotation argument value.
type Value struct {
	Kind  ValueKind
	Int   int64
	Str   string
	Bool  bool
	Class ClassID
}

func (v Value) String() string {
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueString:
		return strconv.Quote(v.Str)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueClass:
		return v.Class.String() + "::class"
	}
	return "<invalid>"
}

// Argument is a named annotation argument.
type Argument struct {
	Name  string
	Value Value
}

// Annotation is a resolved annotation.
type Annotation struct {
	Class ClassID
	Args  []Argument
}

func (a Annotation) String() string {
	if len(a.Args) == 0 {
		return "@" + a.Class.String()
	}
	s := "@" + a.Class.String() + "("
	for i, arg := range a.Args {
		if i > 0 {
			s += ", "
		}
		s += arg.Name + "=" + arg.Value.String()
	}
	return s + ")"
}

// FileDescriptor describes one source file of a package.
type FileDescriptor struct {
	Name        string
	ID          int32
	Annotations []Annotation
}

// DeclDescriptor describes one declaration. Descriptors read from an archive
// are owned by a PackageFragment.
type DeclDescriptor struct {
	Name     string
	Kind     DeclKind
	Flags    DeclFlags
	Params   int
	FileID   int32
	UniqID   DescriptorUniqID
	Children []*DeclDescriptor

	parent   *DeclDescriptor
	pkg      string
	fragment *PackageFragment
}

// PackageDescriptor groups the files and top-level declarations of a package.
type PackageDescriptor struct {
	FqName string
	Files  []FileDescriptor
	Decls  []*DeclDescriptor
}

// ModuleDescriptor is the semantic description of a whole module.
type ModuleDescriptor struct {
	Name        string
	Imported    []string
	Annotations []Annotation
	PreRelease  bool
	Packages    []*PackageDescriptor
}

// Link sets parent and package back-references for every declaration. Callers
// that assemble descriptors by hand call it once before serializing.
func (m *ModuleDescriptor) Link() {
	for _, p := range m.Packages {
		for _, d := range p.Decls {
			d.link(nil, p.FqName, nil)
		}
	}
}

func (d *DeclDescriptor) link(parent *DeclDescriptor, pkg string, frag *PackageFragment) {
	d.parent = parent
	d.pkg = pkg
	d.fragment = frag
	for _, m := range d.Children {
		m.link(d, pkg, frag)
	}
}

// Package returns the package descriptor with fqName.
func (m *ModuleDescriptor) Package(fqName string) (*PackageDescriptor, bool) {
	for _, p := range m.Packages {
		if p.FqName == fqName {
			return p, true
		}
	}
	return nil, false
}

// Walk visits every declaration of the module in declaration order.
func (m *ModuleDescriptor) Walk(fn func(*DeclDescriptor)) {
	var visit func(*DeclDescriptor)
	visit = func(d *DeclDescriptor) {
		fn(d)
		for _, c := range d.Children {
			visit(c)
		}
	}
	for _, p := range m.Packages {
		for _, d := range p.Decls {
			visit(d)
		}
	}
}

// Parent returns the containing declaration, nil for top-level ones.
func (d *DeclDescriptor) Parent() *DeclDescriptor { return d.parent }

// Fragment returns the owning fragment, nil for descriptors not read from an
// archive.
func (d *DeclDescriptor) Fragment() *PackageFragment {
	cur := d
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur.fragment
}

// FqName returns the dotted name of d.
func (d *DeclDescriptor) FqName() string {
	name := d.Name
	for p := d.parent; p != nil; p = p.parent {
		name = p.Name + "." + name
	}
	if d.pkg == "" {
		return name
	}
	return d.pkg + "." + name
}

func (d *DeclDescriptor) String() string {
	return fmt.Sprintf("%s %s", d.Kind, d.FqName())
}

func (d *DeclDescriptor) DeclName() string         { return d.Name }
func (d *DeclDescriptor) IsClass() bool            { return d.Kind == DeclClass }
func (d *DeclDescriptor) IsFunction() bool         { return d.Kind == DeclFunction }
func (d *DeclDescriptor) IsAbstract() bool         { return d.Flags&DeclAbstract != 0 }
func (d *DeclDescriptor) IsSuspend() bool          { return d.Flags&DeclSuspend != 0 }
func (d *DeclDescriptor) ValueParameterCount() int { return d.Params }
func (d *DeclDescriptor) PackageName() string      { return d.pkg }

func (d *DeclDescriptor) Container() (builtins.Decl, bool) {
	if d.parent == nil {
		return nil, false
	}
	return d.parent, true
}

func (d *DeclDescriptor) Members() []builtins.Decl {
	out := make([]builtins.Decl, len(d.Children))
	for i, m := range d.Children {
		out[i] = m
	}
	return out
}

var _ builtins.Decl = (*DeclDescriptor)(nil)
