package ir

import (
	"sync"

	"strata/internal/builtins"
)

// FunctionClass is one member of the built-in function-type family. Members
// are created on demand and immutable afterwards, so they can be shared by
// every module of a session (and across concurrent sessions).
type FunctionClass struct {
	arity   int
	suspend bool
	name    string
	invoke  *functionInvoke
}

type functionInvoke struct {
	class *FunctionClass
}

// Builtins is the session-wide home of the function-type family.
type Builtins struct {
	mu      sync.Mutex
	classes map[familyKey]*FunctionClass
}

type familyKey struct {
	arity   int
	suspend bool
}

// NewBuiltins creates an empty family.
func NewBuiltins() *Builtins {
	return &Builtins{classes: make(map[familyKey]*FunctionClass)}
}

// FunctionClass returns the family class for (arity, suspend), creating it on
// first use.
func (b *Builtins) FunctionClass(arity int, suspend bool) *FunctionClass {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := familyKey{arity: arity, suspend: suspend}
	if c, ok := b.classes[key]; ok {
		return c
	}
	c := &FunctionClass{arity: arity, suspend: suspend, name: builtins.ClassName(arity, suspend)}
	c.invoke = &functionInvoke{class: c}
	b.classes[key] = c
	return c
}

// Lookup resolves a family class by its simple name without creating
// anything for names outside the family.
func (b *Builtins) Lookup(name string) (*FunctionClass, bool) {
	arity, suspend, ok := builtins.ParseClassName(name)
	if !ok {
		return nil, false
	}
	return b.FunctionClass(arity, suspend), true
}

// Len returns the number of materialized family members.
func (b *Builtins) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.classes)
}

// Arity returns the invoke arity.
func (c *FunctionClass) Arity() int { return c.arity }

// Suspend reports whether the class is a suspend function type.
func (c *FunctionClass) Suspend() bool { return c.suspend }

// FqName returns the fully qualified class name.
func (c *FunctionClass) FqName() string { return builtins.Namespace + "." + c.name }

// Invoke returns the abstract invoke member.
func (c *FunctionClass) Invoke() builtins.Decl { return c.invoke }

func (c *FunctionClass) DeclName() string                 { return c.name }
func (c *FunctionClass) IsClass() bool                    { return true }
func (c *FunctionClass) IsFunction() bool                 { return false }
func (c *FunctionClass) IsAbstract() bool                 { return true }
func (c *FunctionClass) IsSuspend() bool                  { return false }
func (c *FunctionClass) ValueParameterCount() int         { return 0 }
func (c *FunctionClass) Container() (builtins.Decl, bool) { return nil, false }
func (c *FunctionClass) PackageName() string              { return builtins.Namespace }
func (c *FunctionClass) Members() []builtins.Decl         { return []builtins.Decl{c.invoke} }

func (f *functionInvoke) DeclName() string                 { return builtins.InvokeName }
func (f *functionInvoke) IsClass() bool                    { return false }
func (f *functionInvoke) IsFunction() bool                 { return true }
func (f *functionInvoke) IsAbstract() bool                 { return true }
func (f *functionInvoke) IsSuspend() bool                  { return f.class.suspend }
func (f *functionInvoke) ValueParameterCount() int         { return f.class.arity }
func (f *functionInvoke) Container() (builtins.Decl, bool) { return f.class, true }
func (f *functionInvoke) PackageName() string              { return builtins.Namespace }
func (f *functionInvoke) Members() []builtins.Decl         { return nil }

var (
	_ builtins.Decl = (*FunctionClass)(nil)
	_ builtins.Decl = (*functionInvoke)(nil)
)
