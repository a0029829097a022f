package metadata

import (
	"fmt"
	"sync"

	"fortio.org/safecast"

	"strata/internal/ice"
)

// DeserializationConfig tunes how dependency metadata is read.
type DeserializationConfig struct {
	// ReportErrorsOnPreReleaseDependencies hides declarations of pre-release
	// libraries from release compilations.
	ReportErrorsOnPreReleaseDependencies bool
}

// AnnotationDeserializer turns a stored annotation into a resolved one.
type AnnotationDeserializer interface {
	DeserializeAnnotation(proto AnnotationProto, names *NameResolver) (Annotation, error)
}

// Components is the deserialization bundle shared by every fragment of one
// library.
type Components struct {
	ModuleName  string
	Config      DeserializationConfig
	Annotations AnnotationDeserializer
	Lookups     LookupTracker
}

// PackageFragment is the deserialized metadata of one package inside a
// dependency archive.
type PackageFragment struct {
	FqName     string
	Source     *ContainerSource
	Decls      []*DeclDescriptor
	components *Components
	names      *NameResolver
	files      map[int32]*fileHolder
	fileOrder  []int32
	byName     map[string][]*DeclDescriptor
}

type fileHolder struct {
	id          int32
	annotations func() ([]Annotation, error)
}

// NewPackageFragment builds a fragment from its payload. Declarations are
// materialized eagerly; file annotations stay serialized until first use.
func NewPackageFragment(payload *PackagePayload, header *Header, components *Components) (*PackageFragment, error) {
	if payload == nil || header == nil || components == nil {
		return nil, ice.Errorf("package fragment", "missing payload, header or components")
	}
	src, err := NewContainerSource(payload.FqName, header, components.Config)
	if err != nil {
		return nil, err
	}
	f := &PackageFragment{
		FqName:     payload.FqName,
		Source:     src,
		components: components,
		names:      NewNameResolver(payload.Names),
		files:      make(map[int32]*fileHolder, len(payload.Files)),
		byName:     make(map[string][]*DeclDescriptor),
	}
	for index, fp := range payload.Files {
		id, err := fileID(fp, index)
		if err != nil {
			return nil, ice.Wrap(err, f.subject(), "file table")
		}
		if _, dup := f.files[id]; dup {
			return nil, ice.Errorf(f.subject(), "duplicate file id %d", id)
		}
		f.files[id] = f.newFileHolder(id, fp.Annotations)
		f.fileOrder = append(f.fileOrder, id)
	}
	for i := range payload.Decls {
		d, err := f.readDecl(&payload.Decls[i])
		if err != nil {
			return nil, ice.Wrap(err, f.subject(), "declarations")
		}
		d.link(nil, f.FqName, f)
		f.Decls = append(f.Decls, d)
		f.byName[d.Name] = append(f.byName[d.Name], d)
	}
	return f, nil
}

// fileID applies the read-side rule: explicit id when present, otherwise the
// position in payload order (the writer omits ids equal to their position).
func fileID(fp FileProto, index int) (int32, error) {
	if fp.ID != nil {
		return *fp.ID, nil
	}
	return safecast.Conv[int32](index)
}

func (f *PackageFragment) newFileHolder(id int32, protos []AnnotationProto) *fileHolder {
	return &fileHolder{
		id: id,
		annotations: sync.OnceValues(func() ([]Annotation, error) {
			out := make([]Annotation, 0, len(protos))
			for _, p := range protos {
				a, err := f.components.Annotations.DeserializeAnnotation(p, f.names)
				if err != nil {
					return nil, ice.Wrap(err, f.subject(), fmt.Sprintf("annotations of file %d", id))
				}
				out = append(out, a)
			}
			return out, nil
		}),
	}
}

func (f *PackageFragment) readDecl(dp *DeclProto) (*DeclDescriptor, error) {
	name, err := f.names.String(dp.Name)
	if err != nil {
		return nil, err
	}
	d := &DeclDescriptor{
		Name:   name,
		Kind:   dp.Kind,
		Flags:  dp.Flags,
		Params: int(dp.Params),
		FileID: NoFile,
		UniqID: dp.UniqID,
	}
	if dp.File != nil {
		if _, ok := f.files[*dp.File]; !ok {
			return nil, fmt.Errorf("declaration %q refers to unknown file %d", name, *dp.File)
		}
		d.FileID = *dp.File
	}
	for i := range dp.Members {
		c, err := f.readDecl(&dp.Members[i])
		if err != nil {
			return nil, err
		}
		d.Children = append(d.Children, c)
	}
	return d, nil
}

func (f *PackageFragment) subject() string { return "package fragment " + f.FqName }

// ContainingFileAnnotations returns the annotations of the file that declares
// decl. decl must belong to this fragment. A declaration without a file, or
// with a file that carries no annotations, yields an empty list.
func (f *PackageFragment) ContainingFileAnnotations(decl *DeclDescriptor) ([]Annotation, error) {
	if decl == nil || decl.Fragment() != f {
		return nil, ice.Errorf(f.subject(), "declaration %v does not belong to this package", decl)
	}
	if decl.FileID == NoFile {
		return nil, nil
	}
	h, ok := f.files[decl.FileID]
	if !ok {
		return nil, nil
	}
	return h.annotations()
}

// FileAnnotations returns the annotations of a file by id.
func (f *PackageFragment) FileAnnotations(id int32) ([]Annotation, bool, error) {
	h, ok := f.files[id]
	if !ok {
		return nil, false, nil
	}
	anns, err := h.annotations()
	return anns, true, err
}

// FileIDs lists file ids in payload order.
func (f *PackageFragment) FileIDs() []int32 {
	return append([]int32(nil), f.fileOrder...)
}

// Member looks up a top-level declaration by name and records the lookup.
func (f *PackageFragment) Member(name string) ([]*DeclDescriptor, bool) {
	f.components.Lookups.Record(LookupInfo{From: f.components.ModuleName, Scope: f.FqName, Name: name})
	ds, ok := f.byName[name]
	return ds, ok
}

// ContainerSource describes where the declarations of a fragment come from.
type ContainerSource struct {
	FqName              string
	Annotations         []ClassID
	PreReleaseInvisible bool
}

// NewContainerSource resolves the header annotations with the header's own
// name tables.
func NewContainerSource(fqName string, header *Header, cfg DeserializationConfig) (*ContainerSource, error) {
	src := &ContainerSource{
		FqName:              fqName,
		PreReleaseInvisible: cfg.ReportErrorsOnPreReleaseDependencies && header.Flags&HeaderFlagPreRelease != 0,
	}
	if len(header.Annotations) == 0 {
		return src, nil
	}
	names := NewNameResolver(header.Names)
	for _, a := range header.Annotations {
		id, err := names.ClassID(a.ID)
		if err != nil {
			return nil, ice.Wrap(err, "module "+header.ModuleName, "header annotations")
		}
		src.Annotations = append(src.Annotations, id)
	}
	return src, nil
}

// Incompatibility is always nil: incompatible libraries are rejected while
// dependencies are resolved, before any fragment is built.
func (s *ContainerSource) Incompatibility() error { return nil }

// PresentableString is used in diagnostics only.
func (s *ContainerSource) PresentableString() string {
	return "Package '" + s.FqName + "'"
}
