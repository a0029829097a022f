package lower

import (
	"context"
	"errors"
	"fmt"

	"strata/internal/ir"
)

const (
	defaultSuffix = "$default"
	maskParam     = "$mask"
)

func defaultArgumentsPhase() Phase {
	return Phase{
		Name: DefaultArguments,
		Run:  runDefaultArguments,
		Post: checkDefaultStubs,
	}
}

func hasDefaults(d *ir.Decl) bool {
	if d.Kind != ir.KindFunction || d.Flags.Has(ir.FlagSynthetic) {
		return false
	}
	for _, p := range d.Params {
		if p.HasDefault {
			return true
		}
	}
	return false
}

// defaultStub finds the stub of fn among its siblings.
func defaultStub(m *ir.Module, fn ir.DeclID) (ir.DeclID, bool) {
	d := m.Decl(fn)
	want := d.Name + defaultSuffix
	for _, s := range m.Decl(d.Parent).Children {
		sd := m.Decl(s)
		if sd.Name == want && sd.Kind == ir.KindFunction && len(sd.Params) == len(d.Params)+1 {
			return s, true
		}
	}
	return ir.NoDeclID, false
}

func runDefaultArguments(ctx context.Context, c *Context) error {
	m := c.Module
	for _, fn := range m.Collect(hasDefaults) {
		if _, ok := defaultStub(m, fn); ok {
			continue
		}
		d := m.Decl(fn)
		params := make([]ir.Param, 0, len(d.Params)+1)
		for _, p := range d.Params {
			p.HasDefault = false
			params = append(params, p)
		}
		params = append(params, ir.Param{Name: maskParam, Type: "Int"})
		stub := ir.Decl{
			Kind:     ir.KindFunction,
			Name:     d.Name + defaultSuffix,
			Flags:    d.Flags&(ir.FlagSuspend|ir.FlagExported) | ir.FlagSynthetic,
			Start:    d.Start,
			End:      d.End,
			Params:   params,
			Captures: append([]string(nil), d.Captures...),
			Type:     d.Type,
			Refs:     []ir.SymbolRef{{Kind: ir.RefLocal, FqName: m.FqName(fn), Decl: fn}},
			Origin:   DefaultArguments,
		}
		m.Add(d.Parent, stub)
	}
	return nil
}

func checkDefaultStubs(c *Context) error {
	m := c.Module
	var errs []error
	for _, fn := range m.Collect(hasDefaults) {
		if _, ok := defaultStub(m, fn); !ok {
			errs = append(errs, fmt.Errorf("%s has default arguments but no %s stub", m.FqName(fn), defaultSuffix))
		}
	}
	return errors.Join(errs...)
}
