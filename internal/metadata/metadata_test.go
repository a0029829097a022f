package metadata

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDeserializer struct {
	calls atomic.Int32
	next  TableAnnotationDeserializer
}

func (c *countingDeserializer) DeserializeAnnotation(p AnnotationProto, names *NameResolver) (Annotation, error) {
	c.calls.Add(1)
	return c.next.DeserializeAnnotation(p, names)
}

func sampleModule() *ModuleDescriptor {
	return &ModuleDescriptor{
		Name:        "shapes",
		Annotations: []Annotation{{Class: ClassID{Package: "lang", Name: "Experimental"}}},
		Packages: []*PackageDescriptor{
			{
				FqName: "geo.shapes",
				Files: []FileDescriptor{
					{Name: "a.st", ID: 0},
					{Name: "b.st", ID: 3, Annotations: []Annotation{
						{Class: ClassID{Package: "lang", Name: "JvmName"}, Args: []Argument{
							{Name: "name", Value: Value{Kind: ValueString, Str: "Shapes"}},
						}},
						{Class: ClassID{Package: "lang", Name: "Suppress"}, Args: []Argument{
							{Name: "level", Value: Value{Kind: ValueInt, Int: 2}},
							{Name: "all", Value: Value{Kind: ValueBool, Bool: true}},
						}},
						{Class: ClassID{Package: "geo", Name: "Marker.Inner"}, Args: []Argument{
							{Name: "kind", Value: Value{Kind: ValueClass, Class: ClassID{Package: "geo.shapes", Name: "Circle"}}},
						}},
					}},
				},
				Decls: []*DeclDescriptor{
					{Name: "Circle", Kind: DeclClass, FileID: 3, Children: []*DeclDescriptor{
						{Name: "area", Kind: DeclFunction, FileID: 3},
					}},
					{Name: "square", Kind: DeclFunction, Params: 1, FileID: 3},
					{Name: "origin", Kind: DeclProperty, FileID: 0},
					{Name: "synthetic", Kind: DeclFunction, FileID: NoFile},
				},
			},
			{FqName: "geo", Decls: []*DeclDescriptor{{Name: "Point", Kind: DeclClass, FileID: NoFile}}},
		},
	}
}

func encodeSample(t *testing.T, m *ModuleDescriptor) *Envelope {
	t.Helper()
	env, err := Serialize(m, SequentialUniqIDs())
	require.NoError(t, err)
	data, err := Encode(env)
	require.NoError(t, err)
	env, err = Decode(data)
	require.NoError(t, err)
	return env
}

func TestSharedFileAnnotationsDeserializedOnce(t *testing.T) {
	counter := &countingDeserializer{}
	p, err := NewProvider(encodeSample(t, sampleModule()), DeserializationConfig{}, nil, counter)
	require.NoError(t, err)

	frag, ok, err := p.Fragment("geo.shapes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, counter.calls.Load(), "annotations must stay serialized until requested")

	circle, ok := frag.Member("Circle")
	require.True(t, ok)
	square, ok := frag.Member("square")
	require.True(t, ok)

	first, err := frag.ContainingFileAnnotations(circle[0])
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.EqualValues(t, 3, counter.calls.Load())

	second, err := frag.ContainingFileAnnotations(square[0])
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 3, counter.calls.Load(), "sibling in the same file reuses the cache")

	nested, err := frag.ContainingFileAnnotations(circle[0].Children[0])
	require.NoError(t, err)
	assert.Equal(t, first, nested)

	assert.Equal(t, `@lang/JvmName(name="Shapes")`, first[0].String())
	assert.Equal(t, "@lang/Suppress(level=2, all=true)", first[1].String())
	assert.Equal(t, "@geo/Marker.Inner(kind=geo.shapes/Circle::class)", first[2].String())
}

func TestConcurrentAnnotationReads(t *testing.T) {
	counter := &countingDeserializer{}
	p, err := NewProvider(encodeSample(t, sampleModule()), DeserializationConfig{}, nil, counter)
	require.NoError(t, err)
	frag, _, err := p.Fragment("geo.shapes")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := frag.Decls[i%2]
			anns, err := frag.ContainingFileAnnotations(d)
			assert.NoError(t, err)
			assert.Len(t, anns, 3)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 3, counter.calls.Load())
}

func TestFileWithoutAnnotationsAndNoFile(t *testing.T) {
	p, err := NewProvider(encodeSample(t, sampleModule()), DeserializationConfig{}, nil, nil)
	require.NoError(t, err)
	frag, _, err := p.Fragment("geo.shapes")
	require.NoError(t, err)

	origin, _ := frag.Member("origin")
	anns, err := frag.ContainingFileAnnotations(origin[0])
	require.NoError(t, err)
	assert.Empty(t, anns)

	synth, _ := frag.Member("synthetic")
	anns, err = frag.ContainingFileAnnotations(synth[0])
	require.NoError(t, err)
	assert.Empty(t, anns)
}

func TestForeignDeclarationIsInternalError(t *testing.T) {
	p, err := NewProvider(encodeSample(t, sampleModule()), DeserializationConfig{}, nil, nil)
	require.NoError(t, err)
	shapes, _, err := p.Fragment("geo.shapes")
	require.NoError(t, err)
	geo, _, err := p.Fragment("geo")
	require.NoError(t, err)

	_, err = shapes.ContainingFileAnnotations(geo.Decls[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal compiler error")

	_, err = shapes.ContainingFileAnnotations(&DeclDescriptor{Name: "loose"})
	require.Error(t, err)
}

func TestFileIDPositionalFallback(t *testing.T) {
	env, err := Serialize(sampleModule(), nil)
	require.NoError(t, err)
	h, err := env.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, []string{"geo", "geo.shapes"}, h.PackageFqNames)

	payload, err := env.ReadPackage(1)
	require.NoError(t, err)
	require.Len(t, payload.Files, 2)
	assert.Nil(t, payload.Files[0].ID, "id equal to position is omitted")
	require.NotNil(t, payload.Files[1].ID)
	assert.EqualValues(t, 3, *payload.Files[1].ID)

	frag, err := NewPackageFragment(payload, h, &Components{Annotations: TableAnnotationDeserializer{}, Lookups: DoNothing})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 3}, frag.FileIDs())

	// Dropping the explicit id makes the second file positional (id 1); the
	// declarations that pointed at 3 are now dangling.
	payload.Files[1].ID = nil
	_, err = NewPackageFragment(payload, h, &Components{Annotations: TableAnnotationDeserializer{}, Lookups: DoNothing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown file 3")
}

func TestSerializeRejectsBadFiles(t *testing.T) {
	m := sampleModule()
	m.Packages[0].Files = append(m.Packages[0].Files, FileDescriptor{Name: "c.st", ID: 3})
	_, err := Serialize(m, nil)
	require.ErrorContains(t, err, "duplicate file id 3")

	m = sampleModule()
	m.Packages[1].Decls[0].FileID = 7
	_, err = Serialize(m, nil)
	require.ErrorContains(t, err, "unknown file id 7")
}

func TestContainerSource(t *testing.T) {
	m := sampleModule()
	m.PreRelease = true
	env := encodeSample(t, m)

	p, err := NewProvider(env, DeserializationConfig{ReportErrorsOnPreReleaseDependencies: true}, nil, nil)
	require.NoError(t, err)
	frag, _, err := p.Fragment("geo")
	require.NoError(t, err)
	src := frag.Source
	assert.True(t, src.PreReleaseInvisible)
	assert.NoError(t, src.Incompatibility())
	assert.Equal(t, "Package 'geo'", src.PresentableString())
	assert.Equal(t, []ClassID{{Package: "lang", Name: "Experimental"}}, src.Annotations)

	p, err = NewProvider(env, DeserializationConfig{}, nil, nil)
	require.NoError(t, err)
	frag, _, err = p.Fragment("geo")
	require.NoError(t, err)
	assert.False(t, frag.Source.PreReleaseInvisible, "flag is gated by configuration")
}

func TestModuleRoundTrip(t *testing.T) {
	tracker := NewRecordingTracker()
	p, err := NewProvider(encodeSample(t, sampleModule()), DeserializationConfig{}, tracker, nil)
	require.NoError(t, err)

	m, err := p.Module()
	require.NoError(t, err)
	assert.Equal(t, "shapes", m.Name)
	require.Len(t, m.Packages, 2)
	shapes := m.Packages[1]
	assert.Equal(t, "geo.shapes", shapes.FqName)
	require.Len(t, shapes.Decls, 4)
	assert.Equal(t, "class geo.shapes.Circle", shapes.Decls[0].String())
	assert.Equal(t, "fun geo.shapes.Circle.area", shapes.Decls[0].Children[0].String())
	assert.EqualValues(t, 2, shapes.Decls[0].Children[0].UniqID.Index)
	assert.Equal(t, 1, shapes.Decls[1].Params)

	_, ok, err := p.Fragment("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, tracker.Count(LookupInfo{From: "shapes", Name: "nope"}))
}

func TestDecodeRejectsIncompatibleVersion(t *testing.T) {
	env, err := Serialize(sampleModule(), nil)
	require.NoError(t, err)
	env.Version.Major++
	data, err := Encode(env)
	require.NoError(t, err)
	_, err = Decode(data)
	require.ErrorContains(t, err, "incompatible metadata version")
}

func TestNameResolverErrors(t *testing.T) {
	r := NewNameResolver(NameTables{
		Strings:        []string{"a"},
		QualifiedNames: []QualifiedNameProto{{Parent: 0, Short: 0, Kind: QNameClass}},
	})
	_, err := r.ClassID(0)
	require.ErrorContains(t, err, "cycle")
	_, err = r.String(4)
	require.Error(t, err)

	failing := &failingDeserializer{}
	p, err := NewProvider(encodeSample(t, sampleModule()), DeserializationConfig{}, nil, failing)
	require.NoError(t, err)
	frag, _, err := p.Fragment("geo.shapes")
	require.NoError(t, err)
	_, err = frag.ContainingFileAnnotations(frag.Decls[0])
	require.ErrorIs(t, err, errBroken)
	_, err = frag.ContainingFileAnnotations(frag.Decls[1])
	require.ErrorIs(t, err, errBroken, "failure is cached too")
}

var errBroken = errors.New("broken")

type failingDeserializer struct{}

func (failingDeserializer) DeserializeAnnotation(AnnotationProto, *NameResolver) (Annotation, error) {
	return Annotation{}, errBroken
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.1")
	require.NoError(t, err)
	assert.True(t, v.IsCompatible())
	_, err = ParseVersion("x")
	require.Error(t, err)
	assert.False(t, Version{Major: 1, Minor: 9}.IsCompatible())
}
