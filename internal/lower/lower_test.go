package lower

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/observ"
)

type fixture struct {
	m                         *ir.Module
	root                      ir.DeclID
	main, helper, anon, greet ir.DeclID
	box, mapFn, fold          ir.DeclID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := ir.NewModule("app", ir.NewBuiltins())
	f := &fixture{m: m}
	f.root = m.Files[m.AddFile("main.st", "app", nil)].Root
	f.main = m.Add(f.root, ir.Decl{Kind: ir.KindFunction, Name: "main", Flags: ir.FlagExported})
	f.helper = m.Add(f.main, ir.Decl{Kind: ir.KindFunction, Name: "helper", Captures: []string{"x"}})
	f.anon = m.Add(f.main, ir.Decl{Kind: ir.KindClass, Name: "<anonymous>", Flags: ir.FlagAnonymous})
	f.greet = m.Add(f.root, ir.Decl{Kind: ir.KindFunction, Name: "greet", Flags: ir.FlagExported,
		Params: []ir.Param{{Name: "name", Type: "String", HasDefault: true}}})
	f.box = m.Add(f.root, ir.Decl{Kind: ir.KindClass, Name: "Box"})
	f.mapFn = m.Add(f.box, ir.Decl{Kind: ir.KindFunction, Name: "map",
		Params: []ir.Param{{Name: "f", Type: "(T) -> R"}}, FuncTypes: []ir.FuncTypeRef{{Arity: 1}}})
	f.fold = m.Add(f.root, ir.Decl{Kind: ir.KindFunction, Name: "fold", Flags: ir.FlagSuspend,
		Params:    []ir.Param{{Name: "init", Type: "R"}, {Name: "op", Type: "suspend (R, T) -> R"}},
		FuncTypes: []ir.FuncTypeRef{{Arity: 2, Suspend: true}}})
	require.NoError(t, ir.Validate(m))
	return f
}

func childByName(m *ir.Module, parent ir.DeclID, name string) (ir.DeclID, bool) {
	for _, c := range m.Decl(parent).Children {
		if m.Decl(c).Name == name {
			return c, true
		}
	}
	return ir.NoDeclID, false
}

func TestManagerOrder(t *testing.T) {
	mgr, err := NewManager(DefaultPhases())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultArguments, LocalDeclarations, ClosureConversion, FunctionTypes, Signatures}, mgr.Names())

	phases := DefaultPhases()
	phases[1], phases[2] = phases[2], phases[1]
	_, err = NewManager(phases)
	require.ErrorIs(t, err, ErrPhaseOrder)
	assert.Contains(t, err.Error(), `"closure-conversion" requires "local-declarations"`)

	_, err = NewManager(append(DefaultPhases(), DefaultPhases()[0]))
	require.ErrorIs(t, err, ErrPhaseOrder)

	_, err = NewManager([]Phase{{Name: "empty"}})
	require.ErrorIs(t, err, ErrPhaseOrder)
}

func TestFullLowering(t *testing.T) {
	f := newFixture(t)
	m := f.m
	c := NewContext(m, nil, nil)
	c.Timer = observ.NewTimer()
	mgr, err := NewManager(DefaultPhases())
	require.NoError(t, err)
	require.NoError(t, mgr.Run(context.Background(), c))
	require.NoError(t, ir.Validate(m))

	stub, ok := childByName(m, f.root, "greet$default")
	require.True(t, ok)
	assert.Len(t, m.Decl(stub).Params, 2)
	assert.Equal(t, "app/greet$default/2", m.Decl(stub).Signature)

	assert.Equal(t, f.root, m.Decl(f.helper).Parent)
	assert.Equal(t, "main$helper", m.Decl(f.helper).Name)
	assert.True(t, m.Decl(f.helper).Flags.Has(ir.FlagLifted))
	assert.Equal(t, "main$1", m.Decl(f.anon).Name)
	assert.Empty(t, m.Decl(f.main).Children)

	lambda, ok := childByName(m, f.root, "main$helper$lambda")
	require.True(t, ok)
	field, ok := childByName(m, lambda, "x")
	require.True(t, ok)
	assert.Equal(t, ir.KindField, m.Decl(field).Kind)
	invoke, ok := childByName(m, lambda, "invoke")
	require.True(t, ok)
	assert.Equal(t, "app/main$helper$lambda.invoke/0", m.Decl(invoke).Signature)
	assert.Empty(t, m.Decl(f.helper).Captures)
	require.Len(t, m.Decl(f.helper).Refs, 1)
	assert.Equal(t, lambda, m.Decl(f.helper).Refs[0].Decl)

	mapFT := m.Decl(f.mapFn).FuncTypes[0]
	require.True(t, mapFT.Bound())
	assert.EqualValues(t, 513, mapFT.BuiltinID)
	assert.Equal(t, "lang.Function1", mapFT.Class.FqName())
	foldFT := m.Decl(f.fold).FuncTypes[0]
	assert.EqualValues(t, 512+2+256, foldFT.BuiltinID)
	assert.Equal(t, "lang.SuspendFunction2", foldFT.Class.FqName())
	lambdaFT := m.Decl(lambda).FuncTypes[0]
	assert.Same(t, m.Builtins.FunctionClass(0, false), lambdaFT.Class)

	assert.Equal(t, "app/main/0", m.Decl(f.main).Signature)
	assert.Equal(t, "app/Box", m.Decl(f.box).Signature)
	assert.Equal(t, "app/Box.map/1", m.Decl(f.mapFn).Signature)
	assert.Equal(t, "app/main$1", m.Decl(f.anon).Signature)

	assert.Len(t, c.Timer.Phases(), 5)

	// the lowered module is a valid dependency
	table := ir.NewSymbolTable()
	require.NoError(t, table.LoadModule(m))
	_, ok = table.LookupSignature("app/greet/1")
	assert.True(t, ok)
}

// Every postcondition must establish the preconditions of the phases that
// depend on it.
func TestPostconditionsEstablishPreconditions(t *testing.T) {
	f := newFixture(t)
	c := NewContext(f.m, nil, nil)
	phases := DefaultPhases()
	ran := map[string]bool{}
	for _, p := range phases {
		if p.Pre != nil {
			require.NoError(t, p.Pre(c), "precondition of %s", p.Name)
		}
		require.NoError(t, p.Run(context.Background(), c), p.Name)
		if p.Post != nil {
			require.NoError(t, p.Post(c), "postcondition of %s", p.Name)
		}
		ran[p.Name] = true
		for _, later := range phases {
			if later.Pre == nil || ran[later.Name] {
				continue
			}
			ready := true
			for _, req := range later.Requires {
				ready = ready && ran[req]
			}
			if ready {
				assert.NoError(t, later.Pre(c), "%s should be runnable after %s", later.Name, p.Name)
			}
		}
	}
}

func TestPreconditionViolationIsInternalError(t *testing.T) {
	f := newFixture(t)
	c := NewContext(f.m, nil, nil)
	p, ok := ByName(ClosureConversion)
	require.True(t, ok)
	mgr, err := NewManager([]Phase{{Name: LocalDeclarations, Run: func(context.Context, *Context) error { return nil }}, p})
	require.NoError(t, err)

	err = mgr.Run(context.Background(), c)
	require.Error(t, err)
	assert.True(t, ice.Is(err))
	assert.Contains(t, err.Error(), "precondition violated")
	assert.Contains(t, err.Error(), "app.main.helper is still local to app.main")
}

func TestCancellationAtPhaseBoundary(t *testing.T) {
	f := newFixture(t)
	c := NewContext(f.m, nil, nil)
	mgr, err := NewManager(DefaultPhases())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Observe(func(name string, index, total int) {
		if index == 2 {
			cancel()
		}
	})
	err = mgr.Run(ctx, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var ce *CanceledError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ClosureConversion, ce.Next)
	assert.Equal(t, []string{DefaultArguments, LocalDeclarations}, ce.Completed)
	assert.False(t, ice.Is(err))

	// phase 3 never ran
	assert.NotEmpty(t, f.m.Decl(f.helper).Captures)
}

func TestArityOverflowIsInternalError(t *testing.T) {
	m := ir.NewModule("big", ir.NewBuiltins())
	root := m.Files[m.AddFile("big.st", "big", nil)].Root
	m.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "huge", FuncTypes: []ir.FuncTypeRef{{Arity: 300}}})

	mgr, err := NewManager(DefaultPhases())
	require.NoError(t, err)
	err = mgr.Run(context.Background(), NewContext(m, nil, nil))
	require.Error(t, err)
	assert.True(t, ice.Is(err))
}

func TestSignatureOverloads(t *testing.T) {
	m := ir.NewModule("ov", ir.NewBuiltins())
	root := m.Files[m.AddFile("ov.st", "ov", nil)].Root
	a := m.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "f", Params: []ir.Param{{Name: "x", Type: "Int"}}})
	b := m.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "f", Params: []ir.Param{{Name: "x", Type: "String"}}})
	g := m.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "f"})

	c := NewContext(m, nil, nil)
	require.NoError(t, runSignatures(context.Background(), c))
	require.NoError(t, checkSignatures(c))
	assert.Equal(t, "ov/f/1(Int)", m.Decl(a).Signature)
	assert.Equal(t, "ov/f/1(String)", m.Decl(b).Signature)
	assert.Equal(t, "ov/f/0", m.Decl(g).Signature)

	m.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "f", Params: []ir.Param{{Name: "y", Type: "Int"}}})
	err := runSignatures(context.Background(), c)
	require.Error(t, err)
	assert.True(t, ice.Is(err))
}

func TestDefaultStubsNotDuplicated(t *testing.T) {
	f := newFixture(t)
	c := NewContext(f.m, nil, nil)
	require.NoError(t, runDefaultArguments(context.Background(), c))
	n := f.m.Len()
	require.NoError(t, runDefaultArguments(context.Background(), c))
	assert.Equal(t, n, f.m.Len())
	require.NoError(t, checkDefaultStubs(c))
}
