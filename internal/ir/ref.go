package ir

import "strata/internal/builtins"

// Ref adapts one module declaration to the canonicalizer's structural view.
type Ref struct {
	M  *Module
	ID DeclID
}

// RefTo returns the structural view of id.
func (m *Module) RefTo(id DeclID) Ref { return Ref{M: m, ID: id} }

func (r Ref) decl() *Decl { return r.M.Decl(r.ID) }

func (r Ref) DeclName() string         { return r.decl().Name }
func (r Ref) IsClass() bool            { return r.decl().Kind == KindClass }
func (r Ref) IsFunction() bool         { return r.decl().Kind == KindFunction }
func (r Ref) IsAbstract() bool         { return r.decl().Flags.Has(FlagAbstract) }
func (r Ref) IsSuspend() bool          { return r.decl().Flags.Has(FlagSuspend) }
func (r Ref) ValueParameterCount() int { return len(r.decl().Params) }
func (r Ref) PackageName() string      { return r.M.Package(r.ID) }

func (r Ref) Container() (builtins.Decl, bool) {
	p := r.decl().Parent
	if !p.IsValid() || r.M.Decl(p).Kind == KindFile {
		return nil, false
	}
	return Ref{M: r.M, ID: p}, true
}

func (r Ref) Members() []builtins.Decl {
	children := r.decl().Children
	out := make([]builtins.Decl, 0, len(children))
	for _, c := range children {
		out = append(out, Ref{M: r.M, ID: c})
	}
	return out
}

var _ builtins.Decl = Ref{}
