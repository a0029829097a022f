package lower

import (
	"context"
	"errors"
	"fmt"

	"strata/internal/builtins"
	"strata/internal/ir"
)

const lambdaSuffix = "$lambda"

func closureConversionPhase() Phase {
	return Phase{
		Name:     ClosureConversion,
		Requires: []string{LocalDeclarations},
		Pre:      checkNoLocalDeclarations,
		Run:      runClosureConversion,
		Post:     checkNoCaptures,
	}
}

func capturing(d *ir.Decl) bool {
	return d.Kind == ir.KindFunction && len(d.Captures) > 0
}

func runClosureConversion(ctx context.Context, c *Context) error {
	m := c.Module
	for _, fn := range m.Collect(capturing) {
		d := m.Decl(fn)
		suspend := d.Flags.Has(ir.FlagSuspend)
		arity := len(d.Params)
		captures := d.Captures
		parent := d.Parent
		start, end := d.Start, d.End

		cls := m.Add(parent, ir.Decl{
			Kind:      ir.KindClass,
			Name:      uniqueChildName(m, parent, d.Name+lambdaSuffix),
			Flags:     ir.FlagSynthetic,
			Start:     start,
			End:       end,
			FuncTypes: []ir.FuncTypeRef{{Arity: arity, Suspend: suspend}},
			Origin:    ClosureConversion,
		})
		for _, name := range captures {
			m.Add(cls, ir.Decl{Kind: ir.KindField, Name: name, Flags: ir.FlagSynthetic, Start: start, End: end, Origin: ClosureConversion})
		}
		d = m.Decl(fn)
		invokeFlags := ir.FlagSynthetic
		if suspend {
			invokeFlags |= ir.FlagSuspend
		}
		m.Add(cls, ir.Decl{
			Kind:      ir.KindFunction,
			Name:      builtins.InvokeName,
			Flags:     invokeFlags,
			Start:     start,
			End:       end,
			Params:    append([]ir.Param(nil), d.Params...),
			FuncTypes: append([]ir.FuncTypeRef(nil), d.FuncTypes...),
			Refs:      append([]ir.SymbolRef(nil), d.Refs...),
			Type:      d.Type,
			Origin:    ClosureConversion,
		})

		// the original function now only allocates the closure
		d = m.Decl(fn)
		d.Captures = nil
		d.Refs = []ir.SymbolRef{{Kind: ir.RefLocal, FqName: m.FqName(cls), Decl: cls}}
	}
	return nil
}

func checkNoCaptures(c *Context) error {
	m := c.Module
	var errs []error
	for _, id := range m.Collect(capturing) {
		errs = append(errs, fmt.Errorf("%s still captures %v", m.FqName(id), m.Decl(id).Captures))
	}
	return errors.Join(errs...)
}
