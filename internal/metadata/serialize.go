package metadata

import (
	"bytes"
	"fmt"
	"sort"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// UniqIDFunc assigns the archive address of a declaration.
type UniqIDFunc func(*DeclDescriptor) DescriptorUniqID

// SequentialUniqIDs numbers declarations in serialization order.
func SequentialUniqIDs() UniqIDFunc {
	var next int64
	return func(d *DeclDescriptor) DescriptorUniqID {
		id := DescriptorUniqID{Index: next, Local: d.Flags&DeclLocal != 0}
		next++
		return id
	}
}

// Serialize writes desc into an Envelope. Packages are ordered by name, files
// keep descriptor order. A nil uniqID keeps the ids already on the descriptors.
func Serialize(desc *ModuleDescriptor, uniqID UniqIDFunc) (*Envelope, error) {
	if desc == nil {
		return nil, fmt.Errorf("nil module descriptor")
	}
	desc.Link()

	packages := append([]*PackageDescriptor(nil), desc.Packages...)
	sort.SliceStable(packages, func(i, j int) bool { return packages[i].FqName < packages[j].FqName })

	header := Header{ModuleName: desc.Name, Imported: append([]string(nil), desc.Imported...)}
	hb := NewNameTableBuilder()
	for _, a := range desc.Annotations {
		header.Annotations = append(header.Annotations, writeAnnotation(hb, a))
	}
	header.Names = hb.Tables()
	if desc.PreRelease {
		header.Flags |= HeaderFlagPreRelease
	}

	env := &Envelope{Version: CurrentVersion}
	for _, p := range packages {
		header.PackageFqNames = append(header.PackageFqNames, p.FqName)
		payload, err := writePackage(p, uniqID)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", p.FqName, err)
		}
		data, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("package %q: encode: %w", p.FqName, err)
		}
		env.Packages = append(env.Packages, data)
	}
	data, err := msgpack.Marshal(&header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	env.Header = data
	return env, nil
}

func writePackage(p *PackageDescriptor, uniqID UniqIDFunc) (*PackagePayload, error) {
	b := NewNameTableBuilder()
	payload := &PackagePayload{FqName: p.FqName}
	ids := make(map[int32]struct{}, len(p.Files))
	for i, f := range p.Files {
		if _, dup := ids[f.ID]; dup {
			return nil, fmt.Errorf("duplicate file id %d (%s)", f.ID, f.Name)
		}
		ids[f.ID] = struct{}{}
		fp := FileProto{}
		pos, err := safecast.Conv[int32](i)
		if err != nil {
			return nil, err
		}
		if f.ID != pos {
			id := f.ID
			fp.ID = &id
		}
		for _, a := range f.Annotations {
			fp.Annotations = append(fp.Annotations, writeAnnotation(b, a))
		}
		payload.Files = append(payload.Files, fp)
	}
	for _, d := range p.Decls {
		dp, err := writeDecl(b, d, ids, uniqID)
		if err != nil {
			return nil, err
		}
		payload.Decls = append(payload.Decls, dp)
	}
	payload.Names = b.Tables()
	return payload, nil
}

func writeDecl(b *NameTableBuilder, d *DeclDescriptor, files map[int32]struct{}, uniqID UniqIDFunc) (DeclProto, error) {
	params, err := safecast.Conv[int32](d.Params)
	if err != nil {
		return DeclProto{}, fmt.Errorf("%s: %w", d, err)
	}
	dp := DeclProto{
		Name:   b.String(d.Name),
		Kind:   d.Kind,
		Flags:  d.Flags,
		Params: params,
		UniqID: d.UniqID,
	}
	if uniqID != nil {
		dp.UniqID = uniqID(d)
		d.UniqID = dp.UniqID
	}
	if d.FileID != NoFile {
		if _, ok := files[d.FileID]; !ok {
			return DeclProto{}, fmt.Errorf("%s: unknown file id %d", d, d.FileID)
		}
		fid := d.FileID
		dp.File = &fid
	}
	for _, c := range d.Children {
		cp, err := writeDecl(b, c, files, uniqID)
		if err != nil {
			return DeclProto{}, err
		}
		dp.Members = append(dp.Members, cp)
	}
	return dp, nil
}

func writeAnnotation(b *NameTableBuilder, a Annotation) AnnotationProto {
	ap := AnnotationProto{ID: b.Class(a.Class)}
	for _, arg := range a.Args {
		v := ValueProto{Kind: arg.Value.Kind}
		switch arg.Value.Kind {
		case ValueInt:
			v.Int = arg.Value.Int
		case ValueBool:
			v.Bool = arg.Value.Bool
		case ValueString:
			v.String = b.String(arg.Value.Str)
		case ValueClass:
			v.Class = b.Class(arg.Value.Class)
		}
		ap.Arguments = append(ap.Arguments, ArgumentProto{Name: b.String(arg.Name), Value: v})
	}
	return ap
}

// Encode writes the envelope bytes.
func Encode(env *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads envelope bytes and rejects incompatible versions.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if !env.Version.IsCompatible() {
		return nil, fmt.Errorf("incompatible metadata version %s (reader %s)", env.Version, CurrentVersion)
	}
	return &env, nil
}

// ReadHeader decodes the envelope header.
func (e *Envelope) ReadHeader() (*Header, error) {
	var h Header
	if err := msgpack.Unmarshal(e.Header, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if len(h.PackageFqNames) != len(e.Packages) {
		return nil, fmt.Errorf("header lists %d packages, envelope holds %d", len(h.PackageFqNames), len(e.Packages))
	}
	return &h, nil
}

// ReadPackage decodes the i-th package payload.
func (e *Envelope) ReadPackage(i int) (*PackagePayload, error) {
	if i < 0 || i >= len(e.Packages) {
		return nil, fmt.Errorf("package index %d out of range", i)
	}
	var p PackagePayload
	if err := msgpack.Unmarshal(e.Packages[i], &p); err != nil {
		return nil, fmt.Errorf("decode package #%d: %w", i, err)
	}
	return &p, nil
}
