package ir

import (
	"errors"
	"fmt"
	"sort"

	"strata/internal/ice"
)

// Symbol is an exported declaration of a dependency module.
type Symbol struct {
	Module    string
	FqName    string
	Signature string
	Kind      DeclKind
	ID        DeclID
	mod       *Module
}

// Decl returns the underlying dependency declaration.
func (s *Symbol) Decl() *Decl { return s.mod.Decl(s.ID) }

// Owner returns the dependency module that declares s.
func (s *Symbol) Owner() *Module { return s.mod }

// SymbolTable is the cross-module symbol table of one compilation session.
// It is populated with every dependency before translation starts, so
// translation never has to load modules re-entrantly.
type SymbolTable struct {
	modules     map[string]*Module
	order       []string
	byFqName    map[string][]*Symbol
	bySignature map[string]*Symbol
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		modules:     make(map[string]*Module),
		byFqName:    make(map[string][]*Symbol),
		bySignature: make(map[string]*Symbol),
	}
}

// LoadModule registers the exported declarations of a lowered dependency.
// Malformed dependency IR is an internal error; the table is left unchanged.
func (t *SymbolTable) LoadModule(m *Module) error {
	if m == nil {
		return ice.Errorf("symbol table", "nil dependency module")
	}
	subject := "dependency " + m.Name
	if _, dup := t.modules[m.Name]; dup {
		return ice.Errorf(subject, "module loaded twice")
	}
	if err := Validate(m); err != nil {
		return ice.Wrap(err, subject, "malformed IR")
	}

	var (
		pending []*Symbol
		errs    []error
	)
	seen := make(map[string]DeclID)
	m.Walk(func(id DeclID, d *Decl) bool {
		if d.Kind == KindFile || !d.Flags.Has(FlagExported) {
			return true
		}
		if d.Signature == "" {
			errs = append(errs, fmt.Errorf("exported %s %q has no signature", d.Kind, m.FqName(id)))
			return true
		}
		if prev, dup := seen[d.Signature]; dup {
			errs = append(errs, fmt.Errorf("signature %q used by %q and %q", d.Signature, m.FqName(prev), m.FqName(id)))
			return true
		}
		if other, dup := t.bySignature[d.Signature]; dup {
			errs = append(errs, fmt.Errorf("signature %q already exported by module %s", d.Signature, other.Module))
			return true
		}
		seen[d.Signature] = id
		pending = append(pending, &Symbol{
			Module:    m.Name,
			FqName:    m.FqName(id),
			Signature: d.Signature,
			Kind:      d.Kind,
			ID:        id,
			mod:       m,
		})
		return true
	})
	if len(errs) > 0 {
		return ice.Wrap(errors.Join(errs...), subject, "cannot export symbols")
	}

	t.modules[m.Name] = m
	t.order = append(t.order, m.Name)
	for _, s := range pending {
		t.byFqName[s.FqName] = append(t.byFqName[s.FqName], s)
		t.bySignature[s.Signature] = s
	}
	return nil
}

// Lookup returns the symbols exported under fqName (overloads share a name).
func (t *SymbolTable) Lookup(fqName string) ([]*Symbol, bool) {
	s, ok := t.byFqName[fqName]
	return s, ok
}

// LookupSignature returns the symbol with an exact signature.
func (t *SymbolTable) LookupSignature(sig string) (*Symbol, bool) {
	s, ok := t.bySignature[sig]
	return s, ok
}

// Module returns a loaded dependency by name.
func (t *SymbolTable) Module(name string) (*Module, bool) {
	m, ok := t.modules[name]
	return m, ok
}

// Modules lists loaded dependency names in load order.
func (t *SymbolTable) Modules() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of exported symbols.
func (t *SymbolTable) Len() int { return len(t.bySignature) }

// Signatures returns every exported signature, sorted.
func (t *SymbolTable) Signatures() []string {
	out := make([]string, 0, len(t.bySignature))
	for sig := range t.bySignature {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out
}
