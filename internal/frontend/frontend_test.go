package frontend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/diag"
	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/metadata"
	"strata/internal/source"
)

func geoDependency(t *testing.T, b *ir.Builtins) *ir.SymbolTable {
	t.Helper()
	geo := ir.NewModule("geo", b)
	root := geo.Files[geo.AddFile("geo.st", "geo", nil)].Root
	geo.Add(root, ir.Decl{Kind: ir.KindFunction, Name: "area", Flags: ir.FlagExported, Signature: "geo/area/0"})
	table := ir.NewSymbolTable()
	require.NoError(t, table.LoadModule(geo))
	return table
}

func TestLoadAnalysis(t *testing.T) {
	a, err := Load(filepath.Join("testdata", "app.toml"))
	require.NoError(t, err)
	assert.Equal(t, "app", a.Module.Name)
	assert.Equal(t, []string{"geo"}, a.Module.Imports)
	require.Len(t, a.Files, 2)
	assert.Equal(t, filepath.Join("testdata", "src", "main.st"), a.Files[0].Path)
	assert.EqualValues(t, 0, a.FileID(0))
	assert.EqualValues(t, 7, a.FileID(1))

	anns, err := ConvertAnnotations(a.Files[1].Annotations)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, `@lang/JvmName(level=2, name="Utils", target=app.util/Helper::class)`, anns[0].String())
	assert.Equal(t, metadata.ClassID{Package: "app.util", Name: "Helper"}, anns[0].Args[2].Value.Class)

	require.Len(t, a.Decls, 2)
	assert.True(t, a.Decls[1].Params[1].Default)
	assert.Equal(t, 0, a.Bag().Len())
}

func TestLoadRejectsMissingModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[files]]\npath = \"a.st\"\n"), 0o600))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrModuleSectionMissing)

	require.NoError(t, os.WriteFile(path, []byte("[module]\nname = \" \"\n"), 0o600))
	_, err = Load(path)
	require.ErrorIs(t, err, ErrModuleNameMissing)
}

func TestCheckRejectsSharedFileIDs(t *testing.T) {
	one := int32(1)
	a := &Analysis{
		Module: ModuleInfo{Name: "x"},
		Files:  []FileInfo{{Path: "a.st", ID: &one}, {Path: "b.st"}},
	}
	err := a.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share id 1")
}

func TestTranslateResolvesReferences(t *testing.T) {
	a, err := Load(filepath.Join("testdata", "app.toml"))
	require.NoError(t, err)
	b := ir.NewBuiltins()
	m, err := Translate(a, geoDependency(t, b), b, source.NewIndex())
	require.NoError(t, err)
	require.NoError(t, ir.Validate(m))

	assert.EqualValues(t, 7, m.Files[1].ID)
	assert.Equal(t, []string{`@lang/JvmName(level=2, name="Utils", target=app.util/Helper::class)`}, m.Files[1].Annotations)

	top := m.TopLevel()
	require.Len(t, top, 2)
	main := m.Decl(top[0])
	require.Len(t, main.Refs, 3)
	assert.Equal(t, ir.RefLocal, main.Refs[0].Kind)
	assert.Equal(t, top[1], main.Refs[0].Decl)
	assert.Equal(t, ir.RefExternal, main.Refs[1].Kind)
	assert.Equal(t, "geo", main.Refs[1].Symbol.Module)
	assert.Equal(t, ir.RefBuiltin, main.Refs[2].Kind)
	assert.Same(t, b.FunctionClass(1, false), main.Refs[2].Class)

	local := m.Decl(main.Children[0])
	assert.Equal(t, []string{"n"}, local.Captures)
	assert.Equal(t, "testdata/src/main.st:3:3", filepath.ToSlash(m.Position(main.Children[0]).String()))
}

func TestTranslateUnresolvedIsInternalError(t *testing.T) {
	a, err := Load(filepath.Join("testdata", "app.toml"))
	require.NoError(t, err)
	b := ir.NewBuiltins()
	_, err = Translate(a, ir.NewSymbolTable(), b, nil)
	require.Error(t, err)
	assert.True(t, ice.Is(err))
	assert.Contains(t, err.Error(), `unresolved reference "geo.area"`)
}

func TestBagFromDiagnostics(t *testing.T) {
	start, end := int32(3), int32(5)
	a := &Analysis{Diagnostics: []DiagnosticInfo{
		{Severity: "warning", Code: "ANA1003", File: "a.st", Start: &start, End: &end, Message: "dup"},
		{Severity: "error", Code: "XYZ", Message: "weird"},
	}}
	bag := a.Bag()
	require.Equal(t, 2, bag.Len())
	assert.True(t, bag.HasErrors())
	errs := bag.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, diag.AnaOther, errs[0].Code)
}

func TestNormalizedComposesNames(t *testing.T) {
	const decomposed, composed = "Cafe\u0301", "Caf\u00e9"
	a := &Analysis{
		Module: ModuleInfo{
			Name:        "geo",
			Imports:     []string{decomposed, "text", composed},
			Annotations: []AnnotationInfo{{Class: "lang/" + decomposed, Args: map[string]any{"name": decomposed, "n": int64(1)}}},
		},
		Files: []FileInfo{{Path: "geo/" + decomposed + ".st", Package: "geo." + decomposed}},
		Decls: []DeclInfo{{
			File: "geo/" + decomposed + ".st", Kind: "class", Name: decomposed,
			Children: []DeclInfo{{Kind: "fun", Name: "to" + decomposed,
				Params: []ParamInfo{{Name: decomposed, Type: decomposed}}, Refs: []string{"geo." + decomposed}}},
		}},
	}
	n := a.Normalized()

	assert.Equal(t, []string{composed, "text"}, n.Module.Imports)
	assert.Equal(t, "lang/"+composed, n.Module.Annotations[0].Class)
	assert.Equal(t, composed, n.Module.Annotations[0].Args["name"])
	assert.Equal(t, int64(1), n.Module.Annotations[0].Args["n"])
	assert.Equal(t, "geo."+composed, n.Files[0].Package)
	assert.Equal(t, "geo/"+decomposed+".st", n.Files[0].Path)
	assert.Equal(t, composed, n.Decls[0].Name)
	child := n.Decls[0].Children[0]
	assert.Equal(t, "to"+composed, child.Name)
	assert.Equal(t, ParamInfo{Name: composed, Type: composed}, child.Params[0])
	assert.Equal(t, []string{"geo." + composed}, child.Refs)

	assert.Equal(t, decomposed, a.Decls[0].Name, "input is not modified")
	assert.Equal(t, decomposed, a.Decls[0].Children[0].Params[0].Name)
}
