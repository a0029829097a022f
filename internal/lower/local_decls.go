package lower

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"strata/internal/ir"
)

func localDeclarationsPhase() Phase {
	return Phase{
		Name: LocalDeclarations,
		Run:  runLocalDeclarations,
		Post: checkNoLocalDeclarations,
	}
}

func isClassOrFunction(d *ir.Decl) bool {
	return d.Kind == ir.KindClass || d.Kind == ir.KindFunction
}

// runLocalDeclarations lifts in pre-order, so an outer local declaration is
// already lifted (and renamed) when its own locals are processed.
func runLocalDeclarations(ctx context.Context, c *Context) error {
	m := c.Module
	anon := make(map[ir.DeclID]int)
	for _, id := range m.Collect(isClassOrFunction) {
		outer, ok := m.EnclosingFunction(id)
		if !ok {
			continue
		}
		target := m.Container(id)
		d := m.Decl(id)
		var short string
		if d.Flags.Has(ir.FlagAnonymous) {
			anon[outer]++
			short = strconv.Itoa(anon[outer])
		} else {
			short = d.Name
		}
		name := uniqueChildName(m, target, m.Decl(outer).Name+"$"+short)
		m.Reparent(id, target)
		d = m.Decl(id)
		d.Name = name
		d.Flags |= ir.FlagLifted
	}
	return nil
}

// uniqueChildName appends $n when name is taken under parent.
func uniqueChildName(m *ir.Module, parent ir.DeclID, name string) string {
	taken := make(map[string]bool)
	for _, c := range m.Decl(parent).Children {
		taken[m.Decl(c).Name] = true
	}
	if !taken[name] {
		return name
	}
	for n := 1; ; n++ {
		cand := name + "$" + strconv.Itoa(n)
		if !taken[cand] {
			return cand
		}
	}
}

func checkNoLocalDeclarations(c *Context) error {
	m := c.Module
	var errs []error
	for _, id := range m.Collect(isClassOrFunction) {
		if outer, ok := m.EnclosingFunction(id); ok {
			errs = append(errs, fmt.Errorf("%s is still local to %s", m.FqName(id), m.FqName(outer)))
		}
	}
	return errors.Join(errs...)
}
