package frontend

import "golang.org/x/text/unicode/norm"

// Normalized returns a copy of a with every name in Unicode NFC, the form the
// metadata name table stores, so a descriptor reads back exactly as written.
// Repeated imports collapse to their first occurrence. File paths and
// diagnostics are left alone.
func (a *Analysis) Normalized() *Analysis {
	out := *a
	out.Module = ModuleInfo{
		Name:        nfc(a.Module.Name),
		Imports:     uniqueNames(a.Module.Imports),
		Annotations: normalizeAnnotations(a.Module.Annotations),
	}
	if a.Files != nil {
		out.Files = make([]FileInfo, len(a.Files))
		for i, f := range a.Files {
			f.Package = nfc(f.Package)
			f.Annotations = normalizeAnnotations(f.Annotations)
			out.Files[i] = f
		}
	}
	out.Decls = normalizeDecls(a.Decls)
	return &out
}

func nfc(s string) string { return norm.NFC.String(s) }

func nfcAll(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = nfc(n)
	}
	return out
}

func uniqueNames(names []string) []string {
	if names == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = nfc(n)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func normalizeDecls(ds []DeclInfo) []DeclInfo {
	if ds == nil {
		return nil
	}
	out := make([]DeclInfo, len(ds))
	for i, d := range ds {
		d.Name = nfc(d.Name)
		d.Type = nfc(d.Type)
		if d.Params != nil {
			params := make([]ParamInfo, len(d.Params))
			for j, p := range d.Params {
				p.Name = nfc(p.Name)
				p.Type = nfc(p.Type)
				params[j] = p
			}
			d.Params = params
		}
		d.Captures = nfcAll(d.Captures)
		d.Refs = nfcAll(d.Refs)
		d.Children = normalizeDecls(d.Children)
		out[i] = d
	}
	return out
}

func normalizeAnnotations(anns []AnnotationInfo) []AnnotationInfo {
	if anns == nil {
		return nil
	}
	out := make([]AnnotationInfo, len(anns))
	for i, a := range anns {
		n := AnnotationInfo{Class: nfc(a.Class)}
		if a.Args != nil {
			n.Args = make(map[string]any, len(a.Args))
			for k, v := range a.Args {
				if s, ok := v.(string); ok {
					v = nfc(s)
				}
				n.Args[nfc(k)] = v
			}
		}
		out[i] = n
	}
	return out
}
