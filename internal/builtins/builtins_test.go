package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/ice"
)

type fakeDecl struct {
	name     string
	class    bool
	abstract bool
	suspend  bool
	params   int
	pkg      string
	parent   *fakeDecl
	members  []*fakeDecl
}

func (d *fakeDecl) DeclName() string          { return d.name }
func (d *fakeDecl) IsClass() bool             { return d.class }
func (d *fakeDecl) IsFunction() bool          { return !d.class }
func (d *fakeDecl) IsAbstract() bool          { return d.abstract }
func (d *fakeDecl) IsSuspend() bool           { return d.suspend }
func (d *fakeDecl) ValueParameterCount() int  { return d.params }
func (d *fakeDecl) PackageName() string       { return d.pkg }
func (d *fakeDecl) Container() (Decl, bool) {
	if d.parent == nil {
		return nil, false
	}
	return d.parent, true
}
func (d *fakeDecl) Members() []Decl {
	out := make([]Decl, len(d.members))
	for i, m := range d.members {
		out[i] = m
	}
	return out
}

func family(pkg string, arity int, suspend bool) (*fakeDecl, *fakeDecl) {
	class := &fakeDecl{name: ClassName(arity, suspend), class: true, abstract: true, pkg: pkg}
	invoke := &fakeDecl{name: InvokeName, abstract: true, suspend: suspend, params: arity, pkg: pkg, parent: class}
	class.members = []*fakeDecl{invoke}
	return class, invoke
}

func TestIDBands(t *testing.T) {
	tests := []struct {
		arity     int
		suspend   bool
		invokeID  int64
		classID   int64
		invokeBnd Band
	}{
		{0, false, 0, 512, BandPlain},
		{3, false, 3, 515, BandPlain},
		{255, false, 255, 767, BandPlain},
		{0, true, 256, 768, BandSuspend},
		{2, true, 258, 770, BandSuspend},
	}
	for _, tt := range tests {
		class, invoke := family(Namespace, tt.arity, tt.suspend)
		require.True(t, IsBuiltin(class))
		require.True(t, IsBuiltin(invoke))

		id, err := ID(invoke)
		require.NoError(t, err)
		assert.Equal(t, tt.invokeID, id, "invoke of %s", class.name)
		assert.Equal(t, tt.invokeBnd, BandOf(id))

		id, err = ID(class)
		require.NoError(t, err)
		assert.Equal(t, tt.classID, id, "class %s", class.name)
		assert.Equal(t, BandClass, BandOf(id))

		isClass, arity, suspend, err := Describe(id)
		require.NoError(t, err)
		assert.True(t, isClass)
		assert.Equal(t, tt.arity, arity)
		assert.Equal(t, tt.suspend, suspend)
	}
}

func TestIDInjectiveAndStable(t *testing.T) {
	seen := make(map[int64]string)
	for _, suspend := range []bool{false, true} {
		for arity := 0; arity <= MaxArity; arity++ {
			classA, invokeA := family(Namespace, arity, suspend)
			classB, invokeB := family(Namespace, arity, suspend) // "another module"
			for _, pair := range [][2]*fakeDecl{{classA, classB}, {invokeA, invokeB}} {
				a := MustID(pair[0])
				b := MustID(pair[1])
				require.Equal(t, a, b, "unstable id for %s", pair[0].name)
				key := pair[0].name
				if !pair[0].class {
					key = pair[0].parent.name + "." + key
				}
				if prev, dup := seen[a]; dup {
					t.Fatalf("id %d shared by %s and %s", a, prev, key)
				}
				seen[a] = key
			}
		}
	}
}

func TestNotBuiltin(t *testing.T) {
	wrongPkg, wrongPkgInvoke := family("app", 1, false)
	notFamily := &fakeDecl{name: "Functional", class: true, pkg: Namespace}
	nested, _ := family(Namespace, 1, false)
	nested.parent = &fakeDecl{name: "Outer", class: true, pkg: Namespace}
	class, _ := family(Namespace, 2, false)
	other := &fakeDecl{name: "apply", params: 2, pkg: Namespace, parent: class}

	for _, d := range []*fakeDecl{wrongPkg, wrongPkgInvoke, notFamily, nested, other} {
		assert.False(t, IsBuiltin(d), d.name)
		_, err := ID(d)
		require.Error(t, err, d.name)
		assert.True(t, ice.Is(err))
	}
	assert.Panics(t, func() { MustID(other) })
	assert.False(t, IsBuiltin(nil))
}

func TestMalformedFamilyClass(t *testing.T) {
	class, invoke := family(Namespace, 1, false)
	invoke.abstract = false
	_, err := ID(class)
	assert.True(t, ice.Is(err))

	class, _ = family(Namespace, 1, false)
	class.members = nil
	_, err = ID(class)
	assert.True(t, ice.Is(err))

	_, invoke = family(Namespace, 300, false)
	_, err = ID(invoke)
	assert.True(t, ice.Is(err))
}

func TestSecondInvokeMemberIsNotBuiltin(t *testing.T) {
	class, invoke := family(Namespace, 1, false)
	extra := &fakeDecl{name: InvokeName, abstract: true, params: 1, pkg: Namespace, parent: class}
	class.members = append(class.members, extra)

	for _, d := range []*fakeDecl{invoke, extra} {
		assert.False(t, IsBuiltin(d))
		_, err := ID(d)
		assert.True(t, ice.Is(err))
	}
	_, err := ID(class)
	assert.True(t, ice.Is(err))
}

func TestParseClassName(t *testing.T) {
	arity, suspend, ok := ParseClassName("SuspendFunction12")
	assert.True(t, ok)
	assert.Equal(t, 12, arity)
	assert.True(t, suspend)

	arity, suspend, ok = ParseClassName("Function0")
	assert.True(t, ok)
	assert.Equal(t, 0, arity)
	assert.False(t, suspend)

	_, _, ok = ParseClassName("Function")
	assert.False(t, ok)
	_, _, ok = ParseClassName("XFunction1")
	assert.False(t, ok)
}
