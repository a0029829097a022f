package archive

import (
	"bytes"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/ulikunitz/xz"
	"github.com/vmihailenco/msgpack/v5"

	"strata/internal/builtins"
	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/metadata"
)

// RefRecord is a serialized reference. Exactly one of Target, Signature or
// BuiltinID is meaningful, depending on Kind.
type RefRecord struct {
	Kind      ir.RefKind                `msgpack:"k"`
	FqName    string                    `msgpack:"fq"`
	Target    metadata.DescriptorUniqID `msgpack:"t,omitempty"`
	Signature string                    `msgpack:"sig,omitempty"`
	BuiltinID int64                     `msgpack:"b,omitempty"`
}

// FuncTypeRecord is a bound function-type reference.
type FuncTypeRecord struct {
	Arity     int32 `msgpack:"a"`
	Suspend   bool  `msgpack:"s,omitempty"`
	BuiltinID int64 `msgpack:"b"`
}

// ParamRecord is a value parameter.
type ParamRecord struct {
	Name       string `msgpack:"n"`
	Type       string `msgpack:"t,omitempty"`
	HasDefault bool   `msgpack:"d,omitempty"`
}

// DeclRecord is the IR of one declaration. Children are stored as addresses;
// their bodies live in their own blobs.
type DeclRecord struct {
	UniqID    metadata.DescriptorUniqID   `msgpack:"u"`
	Kind      ir.DeclKind                 `msgpack:"k"`
	Name      string                      `msgpack:"n"`
	Flags     ir.DeclFlags                `msgpack:"f,omitempty"`
	File      int32                       `msgpack:"file"`
	Start     int32                       `msgpack:"s"`
	End       int32                       `msgpack:"e"`
	Signature string                      `msgpack:"sig,omitempty"`
	Type      string                      `msgpack:"type,omitempty"`
	Origin    string                      `msgpack:"origin,omitempty"`
	Params    []ParamRecord               `msgpack:"params,omitempty"`
	FuncTypes []FuncTypeRecord            `msgpack:"ft,omitempty"`
	Refs      []RefRecord                 `msgpack:"refs,omitempty"`
	Children  []metadata.DescriptorUniqID `msgpack:"children,omitempty"`
}

// FileRecord lists the top-level declarations of one source file.
type FileRecord struct {
	ID          int32                       `msgpack:"id"`
	Path        string                      `msgpack:"path"`
	Package     string                      `msgpack:"pkg,omitempty"`
	Annotations []string                    `msgpack:"ann,omitempty"`
	Roots       []metadata.DescriptorUniqID `msgpack:"roots,omitempty"`
}

// ModuleRecord is the module-level IR blob.
type ModuleRecord struct {
	Name     string       `msgpack:"name"`
	Files    []FileRecord `msgpack:"files"`
	Globals  int64        `msgpack:"globals"`
	Locals   int64        `msgpack:"locals"`
	Builtins []int64      `msgpack:"builtins,omitempty"`
}

func subject(m *ir.Module) string { return "archive " + m.Name }

// recordDecl converts id. Every child and local reference target must already
// be addressable through t.
func recordDecl(m *ir.Module, t *DeclarationTable, id ir.DeclID) (*DeclRecord, error) {
	d := m.Decl(id)
	rec := &DeclRecord{
		UniqID:    t.UniqID(id),
		Kind:      d.Kind,
		Name:      d.Name,
		Flags:     d.Flags,
		File:      m.Files[d.File].ID,
		Start:     d.Start,
		End:       d.End,
		Signature: d.Signature,
		Type:      d.Type,
		Origin:    d.Origin,
	}
	for _, p := range d.Params {
		rec.Params = append(rec.Params, ParamRecord{Name: p.Name, Type: p.Type, HasDefault: p.HasDefault})
	}
	for _, ft := range d.FuncTypes {
		if !ft.Bound() {
			return nil, ice.Errorf(subject(m), "function type of %q is not bound", d.Name)
		}
		arity, err := safecast.Conv[int32](ft.Arity)
		if err != nil {
			return nil, ice.Wrap(err, subject(m), "arity of "+d.Name)
		}
		rec.FuncTypes = append(rec.FuncTypes, FuncTypeRecord{Arity: arity, Suspend: ft.Suspend, BuiltinID: ft.BuiltinID})
	}
	for _, r := range d.Refs {
		rr := RefRecord{Kind: r.Kind, FqName: r.FqName}
		switch r.Kind {
		case ir.RefLocal:
			rr.Target = t.UniqID(r.Decl)
		case ir.RefExternal:
			if r.Symbol == nil {
				return nil, ice.Errorf(subject(m), "external reference %q of %q has no symbol", r.FqName, d.Name)
			}
			rr.Signature = r.Symbol.Signature
		case ir.RefBuiltin:
			bid, err := builtins.ID(r.Class)
			if err != nil {
				return nil, err
			}
			rr.BuiltinID = bid
		default:
			return nil, ice.Errorf(subject(m), "reference %q of %q has unknown kind %d", r.FqName, d.Name, r.Kind)
		}
		rec.Refs = append(rec.Refs, rr)
	}
	for _, c := range d.Children {
		rec.Children = append(rec.Children, t.UniqID(c))
	}
	return rec, nil
}

func recordModule(m *ir.Module, t *DeclarationTable) *ModuleRecord {
	rec := &ModuleRecord{Name: m.Name, Globals: t.global, Locals: t.local}
	for _, f := range m.Files {
		fr := FileRecord{ID: f.ID, Path: f.Path, Package: f.Package, Annotations: append([]string(nil), f.Annotations...)}
		for _, c := range m.Decl(f.Root).Children {
			fr.Roots = append(fr.Roots, t.UniqID(c))
		}
		rec.Files = append(rec.Files, fr)
	}
	seen := make(map[int64]struct{})
	m.Walk(func(_ ir.DeclID, d *ir.Decl) bool {
		for _, ft := range d.FuncTypes {
			if _, ok := seen[ft.BuiltinID]; ft.Bound() && !ok {
				seen[ft.BuiltinID] = struct{}{}
				rec.Builtins = append(rec.Builtins, ft.BuiltinID)
			}
		}
		return true
	})
	return rec
}

// EncodeBlob writes v as xz-compressed msgpack.
func EncodeBlob(v any) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode blob: %w", err)
	}
	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("compress blob: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress blob: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlob is the inverse of EncodeBlob.
func DecodeBlob(data []byte, v any) error {
	zr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decompress blob: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("decompress blob: %w", err)
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode blob: %w", err)
	}
	return nil
}
