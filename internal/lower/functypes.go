package lower

import (
	"context"
	"errors"
	"fmt"

	"strata/internal/builtins"
	"strata/internal/ir"
)

func functionTypesPhase() Phase {
	return Phase{
		Name:     FunctionTypes,
		Requires: []string{ClosureConversion},
		Pre:      checkNoCaptures,
		Run:      runFunctionTypes,
		Post:     checkFunctionTypesBound,
	}
}

func runFunctionTypes(ctx context.Context, c *Context) error {
	m := c.Module
	var err error
	m.Walk(func(id ir.DeclID, d *ir.Decl) bool {
		for i := range d.FuncTypes {
			ft := &d.FuncTypes[i]
			cls := c.Builtins.FunctionClass(ft.Arity, ft.Suspend)
			bid, idErr := builtins.ID(cls)
			if idErr != nil {
				err = fmt.Errorf("%s: %w", m.FqName(id), idErr)
				return false
			}
			ft.Class = cls
			ft.BuiltinID = bid
		}
		return err == nil
	})
	return err
}

func checkFunctionTypesBound(c *Context) error {
	m := c.Module
	var errs []error
	m.Walk(func(id ir.DeclID, d *ir.Decl) bool {
		for _, ft := range d.FuncTypes {
			switch {
			case !ft.Bound():
				errs = append(errs, fmt.Errorf("%s: function type of arity %d is unbound", m.FqName(id), ft.Arity))
			case ft.Class.Arity() != ft.Arity || ft.Class.Suspend() != ft.Suspend:
				errs = append(errs, fmt.Errorf("%s: bound to %s for arity %d", m.FqName(id), ft.Class.FqName(), ft.Arity))
			}
		}
		return true
	})
	return errors.Join(errs...)
}
