package lower

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"strata/internal/ice"
	"strata/internal/ir"
)

func signaturesPhase() Phase {
	return Phase{
		Name:     Signatures,
		Requires: []string{LocalDeclarations, FunctionTypes},
		Pre: func(c *Context) error {
			return errors.Join(checkNoLocalDeclarations(c), checkFunctionTypesBound(c))
		},
		Run:  runSignatures,
		Post: checkSignatures,
	}
}

func signed(d *ir.Decl) bool {
	switch d.Kind {
	case ir.KindClass, ir.KindFunction, ir.KindField, ir.KindProperty:
		return true
	}
	return false
}

// baseSignature is "<pkg>/<Outer>.<name>" plus "/<arity>" for functions.
func baseSignature(m *ir.Module, id ir.DeclID) string {
	var chain []string
	for cur := id; cur.IsValid(); cur = m.Decl(cur).Parent {
		d := m.Decl(cur)
		if d.Kind == ir.KindFile {
			break
		}
		chain = append(chain, d.Name)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	sig := m.Package(id) + "/" + strings.Join(chain, ".")
	if d := m.Decl(id); d.Kind == ir.KindFunction {
		sig += "/" + strconv.Itoa(len(d.Params))
	}
	return sig
}

func paramTypes(d *ir.Decl) string {
	types := make([]string, len(d.Params))
	for i, p := range d.Params {
		types[i] = p.Type
	}
	return "(" + strings.Join(types, ",") + ")"
}

// runSignatures resolves same-arity overloads by parameter types; two
// declarations that still collide are a conflict the analysis should have
// reported.
func runSignatures(ctx context.Context, c *Context) error {
	m := c.Module
	ids := m.Collect(signed)
	base := make(map[string][]ir.DeclID, len(ids))
	for _, id := range ids {
		s := baseSignature(m, id)
		base[s] = append(base[s], id)
	}
	used := make(map[string]ir.DeclID, len(ids))
	for _, id := range ids {
		d := m.Decl(id)
		sig := baseSignature(m, id)
		if len(base[sig]) > 1 && d.Kind == ir.KindFunction {
			sig += paramTypes(d)
		}
		if prev, dup := used[sig]; dup {
			return ice.Errorf(c.subject(Signatures), "%s and %s share signature %q", m.FqName(prev), m.FqName(id), sig)
		}
		used[sig] = id
		d.Signature = sig
	}
	return nil
}

func checkSignatures(c *Context) error {
	m := c.Module
	var errs []error
	seen := make(map[string]ir.DeclID)
	for _, id := range m.Collect(signed) {
		sig := m.Decl(id).Signature
		if sig == "" {
			errs = append(errs, fmt.Errorf("%s has no signature", m.FqName(id)))
			continue
		}
		if prev, dup := seen[sig]; dup {
			errs = append(errs, fmt.Errorf("signature %q shared by %s and %s", sig, m.FqName(prev), m.FqName(id)))
			continue
		}
		seen[sig] = id
	}
	return errors.Join(errs...)
}
