package frontend

import (
	"errors"
	"fmt"
	"strings"

	"strata/internal/builtins"
	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/source"
)

// AnonymousName is the IR name of declarations the source left unnamed.
const AnonymousName = "<anonymous>"

type pendingRefs struct {
	id    ir.DeclID
	names []string
}

// Translate builds the IR module of a. References resolve against the module
// itself first, then the session symbol table, then the built-in function
// family. The analysis is clean by the time Translate runs, so an unresolved
// reference is an internal error.
func Translate(a *Analysis, symbols *ir.SymbolTable, b *ir.Builtins, idx *source.Index) (*ir.Module, error) {
	if a == nil {
		return nil, ice.Errorf("translate", "nil analysis")
	}
	if idx == nil {
		idx = source.NewIndex()
	}
	subject := "module " + a.Module.Name
	m := ir.NewModule(a.Module.Name, b)

	files := make(map[string]int, len(a.Files))
	for i, f := range a.Files {
		fi := m.AddFile(f.Path, f.Package, idx.Entry(f.Path))
		m.Files[fi].ID = a.FileID(i)
		anns, err := ConvertAnnotations(f.Annotations)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		for _, ann := range anns {
			m.Files[fi].Annotations = append(m.Files[fi].Annotations, ann.String())
		}
		files[f.Path] = fi
	}

	var pending []pendingRefs
	var add func(parent ir.DeclID, d DeclInfo) error
	add = func(parent ir.DeclID, d DeclInfo) error {
		kind, ok := ir.ParseKind(d.Kind)
		if !ok {
			return fmt.Errorf("declaration %q: unknown kind %q", d.Name, d.Kind)
		}
		decl := ir.Decl{
			Kind:     kind,
			Name:     d.Name,
			Flags:    declFlags(d),
			Start:    offsetOr(d.Start, source.UndefinedOffset),
			End:      offsetOr(d.End, source.UndefinedOffset),
			Captures: append([]string(nil), d.Captures...),
			Type:     d.Type,
		}
		if decl.Name == "" {
			decl.Name = AnonymousName
		}
		for _, p := range d.Params {
			decl.Params = append(decl.Params, ir.Param{Name: p.Name, Type: p.Type, HasDefault: p.Default})
		}
		for _, ft := range d.FunctionTypes {
			decl.FuncTypes = append(decl.FuncTypes, ir.FuncTypeRef{Arity: ft.Arity, Suspend: ft.Suspend})
		}
		id := m.Add(parent, decl)
		if len(d.Refs) > 0 {
			pending = append(pending, pendingRefs{id: id, names: d.Refs})
		}
		for _, c := range d.Children {
			if err := add(id, c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, d := range a.Decls {
		fi, ok := files[d.File]
		if !ok {
			return nil, fmt.Errorf("declaration %q: unknown file %q", d.Name, d.File)
		}
		if err := add(m.Files[fi].Root, d); err != nil {
			return nil, err
		}
	}

	local := make(map[string]ir.DeclID)
	m.Walk(func(id ir.DeclID, d *ir.Decl) bool {
		if d.Kind != ir.KindFile {
			fq := m.FqName(id)
			if _, seen := local[fq]; !seen {
				local[fq] = id
			}
		}
		return true
	})

	var errs []error
	for _, p := range pending {
		for _, name := range p.names {
			ref, ok := resolve(name, local, symbols, b)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: unresolved reference %q", m.FqName(p.id), name))
				continue
			}
			d := m.Decl(p.id)
			d.Refs = append(d.Refs, ref)
		}
	}
	if len(errs) > 0 {
		return nil, ice.Wrap(errors.Join(errs...), subject, "references left unresolved by a clean analysis")
	}
	if err := ir.Validate(m); err != nil {
		return nil, ice.Wrap(err, subject, "translated IR is malformed")
	}
	return m, nil
}

func resolve(name string, local map[string]ir.DeclID, symbols *ir.SymbolTable, b *ir.Builtins) (ir.SymbolRef, bool) {
	if id, ok := local[name]; ok {
		return ir.SymbolRef{Kind: ir.RefLocal, FqName: name, Decl: id}, true
	}
	if symbols != nil {
		if syms, ok := symbols.Lookup(name); ok && len(syms) > 0 {
			return ir.SymbolRef{Kind: ir.RefExternal, FqName: name, Symbol: syms[0]}, true
		}
	}
	if short, ok := strings.CutPrefix(name, builtins.Namespace+"."); ok && b != nil {
		if cls, ok := b.Lookup(short); ok {
			return ir.SymbolRef{Kind: ir.RefBuiltin, FqName: name, Class: cls}, true
		}
	}
	return ir.SymbolRef{}, false
}

func declFlags(d DeclInfo) ir.DeclFlags {
	var f ir.DeclFlags
	if d.Anonymous || d.Name == "" {
		f |= ir.FlagAnonymous
	}
	if d.Suspend {
		f |= ir.FlagSuspend
	}
	if d.Abstract {
		f |= ir.FlagAbstract
	}
	if d.Exported {
		f |= ir.FlagExported
	}
	if d.Delegate {
		f |= ir.FlagDelegate
	}
	return f
}
