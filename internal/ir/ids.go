// Package ir is the declaration-level intermediate representation consumed by
// the lowering phases and the archive writer.
//
// Declarations live in a per-module arena and are addressed by DeclID. Parent
// and child links are ids too, which keeps upward traversal O(1) without
// pointer cycles. Index 0 is reserved so the zero DeclID means "none".
package ir

// DeclID identifies a declaration inside one Module.
type DeclID uint32

// NoDeclID is the zero sentinel.
const NoDeclID DeclID = 0

// IsValid reports whether id refers to a declaration.
func (id DeclID) IsValid() bool { return id != NoDeclID }

// DeclKind enumerates declaration kinds.
type DeclKind uint8

const (
	// KindFile is the root of every source file.
	KindFile DeclKind = iota + 1
	KindClass
	KindFunction
	KindField
	KindProperty
)

func (k DeclKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindClass:
		return "class"
	case KindFunction:
		return "fun"
	case KindField:
		return "field"
	case KindProperty:
		return "property"
	default:
		return "unknown"
	}
}

// ParseKind maps the front end's kind names.
func ParseKind(s string) (DeclKind, bool) {
	switch s {
	case "class", "object", "interface":
		return KindClass, true
	case "fun", "function":
		return KindFunction, true
	case "field":
		return KindField, true
	case "property", "val", "var":
		return KindProperty, true
	}
	return 0, false
}

// DeclFlags carries boolean declaration attributes.
type DeclFlags uint16

const (
	FlagAnonymous DeclFlags = 1 << iota
	FlagSuspend
	FlagAbstract
	FlagExported
	FlagDelegate // field backing a delegated property
	FlagLifted   // moved out of a function body by local-declarations
	FlagSynthetic
	FlagRemoved
)

// Has reports whether all bits of f are set.
func (fl DeclFlags) Has(f DeclFlags) bool { return fl&f == f }
