package metadata

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
)

// ClassID names a class: its package and its dotted path inside the package.
type ClassID struct {
	Package string `toml:"package"`
	Name    string `toml:"name"`
}

// ParseClassID splits "pkg.sub/Outer.Inner". Without a slash the last dotted
// segment is taken as the class name.
func ParseClassID(s string) ClassID {
	if pkg, name, ok := strings.Cut(s, "/"); ok {
		return ClassID{Package: strings.ReplaceAll(pkg, "/", "."), Name: name}
	}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return ClassID{Package: s[:i], Name: s[i+1:]}
	}
	return ClassID{Name: s}
}

func (c ClassID) String() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "/" + c.Name
}

// FqName returns the dotted fully qualified name.
func (c ClassID) FqName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// NameTableBuilder interns strings and qualified names while a payload is
// written. Strings are NFC-normalized so canonically equal names share an
// index.
type NameTableBuilder struct {
	tables  NameTables
	strings map[string]int32
	qnames  map[QualifiedNameProto]int32
}

// NewNameTableBuilder creates an empty builder.
func NewNameTableBuilder() *NameTableBuilder {
	return &NameTableBuilder{
		strings: make(map[string]int32),
		qnames:  make(map[QualifiedNameProto]int32),
	}
}

// String interns s and returns its index.
func (b *NameTableBuilder) String(s string) int32 {
	s = norm.NFC.String(s)
	if id, ok := b.strings[s]; ok {
		return id
	}
	id := mustInt32(len(b.tables.Strings))
	b.tables.Strings = append(b.tables.Strings, s)
	b.strings[s] = id
	return id
}

func (b *NameTableBuilder) qualified(parent int32, short string, kind QualifiedNameKind) int32 {
	q := QualifiedNameProto{Parent: parent, Short: b.String(short), Kind: kind}
	if id, ok := b.qnames[q]; ok {
		return id
	}
	id := mustInt32(len(b.tables.QualifiedNames))
	b.tables.QualifiedNames = append(b.tables.QualifiedNames, q)
	b.qnames[q] = id
	return id
}

// Package interns a dotted package name, returning -1 for the root package.
func (b *NameTableBuilder) Package(fq string) int32 {
	parent := int32(-1)
	if fq == "" {
		return parent
	}
	for _, seg := range strings.Split(fq, ".") {
		parent = b.qualified(parent, seg, QNamePackage)
	}
	return parent
}

// Class interns a ClassID and returns its qualified-name index.
func (b *NameTableBuilder) Class(id ClassID) int32 {
	parent := b.Package(id.Package)
	for _, seg := range strings.Split(id.Name, ".") {
		parent = b.qualified(parent, seg, QNameClass)
	}
	return parent
}

// Tables returns the accumulated tables.
func (b *NameTableBuilder) Tables() NameTables { return b.tables }

// NameResolver reads indices back out of NameTables.
type NameResolver struct {
	tables NameTables
}

// NewNameResolver wraps tables.
func NewNameResolver(tables NameTables) *NameResolver {
	return &NameResolver{tables: tables}
}

// String returns the string at index.
func (r *NameResolver) String(index int32) (string, error) {
	if index < 0 || int(index) >= len(r.tables.Strings) {
		return "", fmt.Errorf("string index %d out of range [0, %d)", index, len(r.tables.Strings))
	}
	return r.tables.Strings[index], nil
}

// ClassID resolves a qualified-name index to a class id.
func (r *NameResolver) ClassID(index int32) (ClassID, error) {
	var pkg, cls []string
	seen := 0
	for cur := index; cur != -1; {
		if cur < 0 || int(cur) >= len(r.tables.QualifiedNames) {
			return ClassID{}, fmt.Errorf("qualified name index %d out of range [0, %d)", cur, len(r.tables.QualifiedNames))
		}
		if seen++; seen > len(r.tables.QualifiedNames) {
			return ClassID{}, fmt.Errorf("qualified name %d has a parent cycle", index)
		}
		q := r.tables.QualifiedNames[cur]
		short, err := r.String(q.Short)
		if err != nil {
			return ClassID{}, err
		}
		switch q.Kind {
		case QNamePackage:
			pkg = append(pkg, short)
		case QNameClass, QNameLocal:
			if len(pkg) > 0 {
				return ClassID{}, fmt.Errorf("qualified name %d: class segment %q under a package segment", index, short)
			}
			cls = append(cls, short)
		default:
			return ClassID{}, fmt.Errorf("qualified name %d: unknown kind %d", index, q.Kind)
		}
		cur = q.Parent
	}
	if len(cls) == 0 {
		return ClassID{}, fmt.Errorf("qualified name %d is a package, not a class", index)
	}
	reverse(pkg)
	reverse(cls)
	return ClassID{Package: strings.Join(pkg, "."), Name: strings.Join(cls, ".")}, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func mustInt32(n int) int32 {
	v, err := safecast.Conv[int32](n)
	if err != nil {
		panic(fmt.Errorf("name table overflow: %w", err))
	}
	return v
}
