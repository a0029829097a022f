package metadata

import (
	"fmt"
	"sort"
	"sync"

	"strata/internal/ice"
)

// TableAnnotationDeserializer resolves annotations against the payload's own
// name tables.
type TableAnnotationDeserializer struct{}

// DeserializeAnnotation implements AnnotationDeserializer.
func (TableAnnotationDeserializer) DeserializeAnnotation(p AnnotationProto, names *NameResolver) (Annotation, error) {
	cls, err := names.ClassID(p.ID)
	if err != nil {
		return Annotation{}, err
	}
	a := Annotation{Class: cls}
	for _, ap := range p.Arguments {
		name, err := names.String(ap.Name)
		if err != nil {
			return Annotation{}, fmt.Errorf("%s: %w", cls, err)
		}
		v := Value{Kind: ap.Value.Kind}
		switch ap.Value.Kind {
		case ValueInt:
			v.Int = ap.Value.Int
		case ValueBool:
			v.Bool = ap.Value.Bool
		case ValueString:
			if v.Str, err = names.String(ap.Value.String); err != nil {
				return Annotation{}, fmt.Errorf("%s.%s: %w", cls, name, err)
			}
		case ValueClass:
			if v.Class, err = names.ClassID(ap.Value.Class); err != nil {
				return Annotation{}, fmt.Errorf("%s.%s: %w", cls, name, err)
			}
		default:
			return Annotation{}, fmt.Errorf("%s.%s: unknown value kind %d", cls, name, ap.Value.Kind)
		}
		a.Args = append(a.Args, Argument{Name: name, Value: v})
	}
	return a, nil
}

// Provider serves the package fragments of one library. Fragments are
// decoded on first request.
type Provider struct {
	env        *Envelope
	header     *Header
	components *Components
	index      map[string]int

	mu        sync.Mutex
	fragments map[string]*PackageFragment
}

// NewProvider reads the envelope header and prepares lazy fragment access.
// A nil tracker or deserializer selects DoNothing and
// TableAnnotationDeserializer.
func NewProvider(env *Envelope, cfg DeserializationConfig, lookups LookupTracker, annotations AnnotationDeserializer) (*Provider, error) {
	header, err := env.ReadHeader()
	if err != nil {
		return nil, err
	}
	if lookups == nil {
		lookups = DoNothing
	}
	if annotations == nil {
		annotations = TableAnnotationDeserializer{}
	}
	p := &Provider{
		env:    env,
		header: header,
		components: &Components{
			ModuleName:  header.ModuleName,
			Config:      cfg,
			Annotations: annotations,
			Lookups:     lookups,
		},
		index:     make(map[string]int, len(header.PackageFqNames)),
		fragments: make(map[string]*PackageFragment),
	}
	for i, fq := range header.PackageFqNames {
		if _, dup := p.index[fq]; dup {
			return nil, ice.Errorf("module "+header.ModuleName, "package %q listed twice", fq)
		}
		p.index[fq] = i
	}
	return p, nil
}

// Header returns the decoded module header.
func (p *Provider) Header() *Header { return p.header }

// ModuleName returns the name of the library.
func (p *Provider) ModuleName() string { return p.header.ModuleName }

// PreRelease reports whether the library was written by a pre-release
// compiler.
func (p *Provider) PreRelease() bool { return p.header.Flags&HeaderFlagPreRelease != 0 }

// PackageNames lists packages in archive order.
func (p *Provider) PackageNames() []string {
	return append([]string(nil), p.header.PackageFqNames...)
}

// Fragment returns the fragment for fqName. The lookup is recorded whether or
// not the package exists.
func (p *Provider) Fragment(fqName string) (*PackageFragment, bool, error) {
	p.components.Lookups.Record(LookupInfo{From: p.header.ModuleName, Name: fqName})
	i, ok := p.index[fqName]
	if !ok {
		return nil, false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.fragments[fqName]; ok {
		return f, true, nil
	}
	payload, err := p.env.ReadPackage(i)
	if err != nil {
		return nil, true, err
	}
	if payload.FqName != fqName {
		return nil, true, ice.Errorf("module "+p.header.ModuleName, "package #%d is %q, header says %q", i, payload.FqName, fqName)
	}
	f, err := NewPackageFragment(payload, p.header, p.components)
	if err != nil {
		return nil, true, err
	}
	p.fragments[fqName] = f
	return f, true, nil
}

// Fragments decodes every package, sorted by name.
func (p *Provider) Fragments() ([]*PackageFragment, error) {
	names := p.PackageNames()
	sort.Strings(names)
	out := make([]*PackageFragment, 0, len(names))
	for _, fq := range names {
		f, _, err := p.Fragment(fq)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Module rebuilds the full descriptor, with file annotations resolved. Used by
// dumps and tests; compilation goes through Fragment.
func (p *Provider) Module() (*ModuleDescriptor, error) {
	frags, err := p.Fragments()
	if err != nil {
		return nil, err
	}
	m := &ModuleDescriptor{
		Name:       p.header.ModuleName,
		Imported:   append([]string(nil), p.header.Imported...),
		PreRelease: p.PreRelease(),
	}
	names := NewNameResolver(p.header.Names)
	for _, ap := range p.header.Annotations {
		a, err := p.components.Annotations.DeserializeAnnotation(ap, names)
		if err != nil {
			return nil, ice.Wrap(err, "module "+m.Name, "header annotations")
		}
		m.Annotations = append(m.Annotations, a)
	}
	for _, f := range frags {
		pd := &PackageDescriptor{FqName: f.FqName, Decls: f.Decls}
		for _, id := range f.fileOrder {
			anns, err := f.files[id].annotations()
			if err != nil {
				return nil, err
			}
			pd.Files = append(pd.Files, FileDescriptor{ID: id, Annotations: anns})
		}
		m.Packages = append(m.Packages, pd)
	}
	return m, nil
}
