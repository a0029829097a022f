// Package builtins canonicalizes the built-in function-type family
// (Function0, Function1, ..., SuspendFunction0, ...) to small stable ids.
//
// The family is generated on demand, so members have no table slot to
// serialize. Instead the id is derived from structure every time:
//
//	invoke of FunctionN         -> N          band [0, 255]
//	invoke of SuspendFunctionN  -> N + 256    band [256, 511]
//	class FunctionN / Suspend.. -> 512 + id(invoke)
//
// Two independent compilations that see a structurally identical declaration
// therefore agree on its id without sharing any state.
package builtins

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"strata/internal/ice"
)

const (
	// Namespace is the package that hosts the family.
	Namespace = "lang"
	// InvokeName is the single abstract member of every family class.
	InvokeName = "invoke"

	// SuspendOffset shifts suspend invoke members into their own band.
	SuspendOffset = 256
	// ClassOffset shifts family classes above both function bands.
	ClassOffset = 2 * SuspendOffset
	// MaxArity is the largest arity that keeps the plain band injective.
	MaxArity = SuspendOffset - 1
)

var classPattern = regexp.MustCompile(`^(Suspend)?Function\d+$`)

// Decl is the structural view the canonicalizer needs. Both IR declarations
// and deserialized descriptors implement it.
type Decl interface {
	DeclName() string
	IsClass() bool
	IsFunction() bool
	IsAbstract() bool
	IsSuspend() bool
	ValueParameterCount() int
	// Container returns the enclosing class or function, if any.
	Container() (Decl, bool)
	// PackageName is the fully qualified package of a top-level declaration.
	PackageName() string
	Members() []Decl
}

// ClassName returns the canonical family class name.
func ClassName(arity int, suspend bool) string {
	if suspend {
		return "SuspendFunction" + strconv.Itoa(arity)
	}
	return "Function" + strconv.Itoa(arity)
}

// ParseClassName is the inverse of ClassName.
func ParseClassName(name string) (arity int, suspend, ok bool) {
	if !classPattern.MatchString(name) {
		return 0, false, false
	}
	rest, suspend := strings.CutPrefix(name, "Suspend")
	n, err := strconv.Atoi(strings.TrimPrefix(rest, "Function"))
	if err != nil {
		return 0, false, false
	}
	return n, suspend, true
}

// IsBuiltin reports whether d is a family class or the sole invoke member of
// one.
func IsBuiltin(d Decl) bool {
	if d == nil {
		return false
	}
	switch {
	case d.IsClass():
		return isFamilyClass(d)
	case d.IsFunction():
		if d.DeclName() != InvokeName || !d.IsAbstract() {
			return false
		}
		parent, ok := d.Container()
		if !ok || !parent.IsClass() || !isFamilyClass(parent) {
			return false
		}
		invoke, err := invokeOf(parent)
		return err == nil && invoke == d
	}
	return false
}

func isFamilyClass(d Decl) bool {
	if _, ok := d.Container(); ok {
		return false
	}
	return d.PackageName() == Namespace && classPattern.MatchString(d.DeclName())
}

// ID returns the structural id of a builtin declaration. Calling it for a
// declaration that is not builtin is an internal error.
func ID(d Decl) (int64, error) {
	if !IsBuiltin(d) {
		name := "<nil>"
		if d != nil {
			name = d.DeclName()
		}
		return 0, ice.Errorf("builtin "+name, "declaration is not part of the function-type family")
	}
	if d.IsClass() {
		invoke, err := invokeOf(d)
		if err != nil {
			return 0, err
		}
		id, err := ID(invoke)
		if err != nil {
			return 0, err
		}
		return ClassOffset + id, nil
	}
	arity := d.ValueParameterCount()
	if arity < 0 || arity > MaxArity {
		return 0, ice.Errorf("builtin "+d.DeclName(), "arity %d outside [0, %d]", arity, MaxArity)
	}
	id := int64(arity)
	if d.IsSuspend() {
		id += SuspendOffset
	}
	return id, nil
}

// MustID is ID for callers that already checked IsBuiltin.
func MustID(d Decl) int64 {
	id, err := ID(d)
	if err != nil {
		panic(err)
	}
	return id
}

func invokeOf(class Decl) (Decl, error) {
	var found Decl
	for _, m := range class.Members() {
		if !m.IsFunction() || m.DeclName() != InvokeName {
			continue
		}
		if found != nil {
			return nil, ice.Errorf("builtin "+class.DeclName(), "more than one invoke member")
		}
		found = m
	}
	if found == nil {
		return nil, ice.Errorf("builtin "+class.DeclName(), "missing invoke member")
	}
	if !found.IsAbstract() {
		return nil, ice.Errorf("builtin "+class.DeclName(), "invoke member is not abstract")
	}
	return found, nil
}

// Band classifies an id.
type Band uint8

const (
	BandPlain Band = iota
	BandSuspend
	BandClass
)

func (b Band) String() string {
	switch b {
	case BandPlain:
		return "plain"
	case BandSuspend:
		return "suspend"
	case BandClass:
		return "class"
	}
	return fmt.Sprintf("band(%d)", uint8(b))
}

// BandOf returns the band an id falls into.
func BandOf(id int64) Band {
	switch {
	case id < SuspendOffset:
		return BandPlain
	case id < ClassOffset:
		return BandSuspend
	default:
		return BandClass
	}
}

// Describe decodes an id back into (class?, arity, suspend). It never looks
// anything up; ids are self-describing.
func Describe(id int64) (class bool, arity int, suspend bool, err error) {
	if id < 0 {
		return false, 0, false, fmt.Errorf("negative builtin id %d", id)
	}
	if id >= ClassOffset {
		class = true
		id -= ClassOffset
		if id >= ClassOffset {
			return false, 0, false, fmt.Errorf("builtin id %d nests more than one class level", id+ClassOffset)
		}
	}
	if id >= SuspendOffset {
		suspend = true
		id -= SuspendOffset
	}
	return class, int(id), suspend, nil
}
