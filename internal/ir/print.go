package ir

import (
	"fmt"
	"io"
	"strings"
)

// DumpOptions configures module dumping.
type DumpOptions struct {
	// Positions prints line:col next to every declaration.
	Positions bool
}

// DumpModule writes a human-readable representation of m.
func DumpModule(w io.Writer, m *Module, opts DumpOptions) error {
	if w == nil || m == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s files=%d decls=%d\n", m.Name, len(m.Files), m.Len())
	for _, f := range m.Files {
		fmt.Fprintf(&sb, "file %s package=%s\n", f.Path, f.Package)
		for _, a := range f.Annotations {
			fmt.Fprintf(&sb, "  @file:%s\n", a)
		}
		for _, c := range m.Decl(f.Root).Children {
			dumpDecl(&sb, m, c, 1, opts)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func dumpDecl(sb *strings.Builder, m *Module, id DeclID, depth int, opts DumpOptions) {
	d := m.Decl(id)
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(d.Kind.String())
	if d.Flags.Has(FlagSuspend) {
		sb.WriteString(" suspend")
	}
	if d.Flags.Has(FlagAbstract) {
		sb.WriteString(" abstract")
	}
	sb.WriteString(" ")
	sb.WriteString(d.Name)
	if d.Kind == KindFunction {
		params := make([]string, len(d.Params))
		for i, p := range d.Params {
			params[i] = p.Name
			if p.Type != "" {
				params[i] += ": " + p.Type
			}
			if p.HasDefault {
				params[i] += " = ..."
			}
		}
		sb.WriteString("(" + strings.Join(params, ", ") + ")")
	}
	if d.Type != "" {
		sb.WriteString(": " + d.Type)
	}
	for _, ft := range d.FuncTypes {
		if ft.Bound() {
			fmt.Fprintf(sb, " <%s #%d>", ft.Class.FqName(), ft.BuiltinID)
		} else {
			fmt.Fprintf(sb, " <fn/%d unbound>", ft.Arity)
		}
	}
	if len(d.Captures) > 0 {
		sb.WriteString(" captures=[" + strings.Join(d.Captures, ",") + "]")
	}
	for _, r := range d.Refs {
		sb.WriteString(" ->" + r.FqName)
	}
	if d.Signature != "" {
		sb.WriteString(" sig=" + d.Signature)
	}
	if d.Origin != "" {
		sb.WriteString(" origin=" + d.Origin)
	}
	if opts.Positions {
		sb.WriteString(" @" + m.Position(id).String())
	}
	sb.WriteString("\n")
	for _, c := range d.Children {
		dumpDecl(sb, m, c, depth+1, opts)
	}
}
