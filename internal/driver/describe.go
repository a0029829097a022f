package driver

import (
	"fmt"
	"sort"
	"strings"

	"strata/internal/archive"
	"strata/internal/frontend"
	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/metadata"
)

// Describe builds the module descriptor of a lowered module. Declaration
// addresses come from table, so the archive blobs and the metadata agree.
func Describe(a *frontend.Analysis, m *ir.Module, table *archive.DeclarationTable, cfg Config) (*metadata.ModuleDescriptor, error) {
	subject := "descriptor of " + m.Name
	if len(a.Files) != len(m.Files) {
		return nil, ice.Errorf(subject, "analysis lists %d files, module has %d", len(a.Files), len(m.Files))
	}
	desc := &metadata.ModuleDescriptor{
		Name:       m.Name,
		Imported:   append([]string(nil), a.Module.Imports...),
		PreRelease: cfg.PreRelease,
	}
	anns, err := frontend.ConvertAnnotations(a.Module.Annotations)
	if err != nil {
		return nil, fmt.Errorf("module %s annotations: %w", m.Name, err)
	}
	desc.Annotations = anns

	packages := make(map[string]*metadata.PackageDescriptor)
	for i, f := range m.Files {
		pd, ok := packages[f.Package]
		if !ok {
			pd = &metadata.PackageDescriptor{FqName: f.Package}
			packages[f.Package] = pd
			desc.Packages = append(desc.Packages, pd)
		}
		fanns, err := frontend.ConvertAnnotations(a.Files[i].Annotations)
		if err != nil {
			return nil, fmt.Errorf("%s annotations: %w", f.Path, err)
		}
		pd.Files = append(pd.Files, metadata.FileDescriptor{Name: f.Path, ID: f.ID, Annotations: fanns})
		for _, id := range m.Decl(f.Root).Children {
			dd, err := describeDecl(m, table, id)
			if err != nil {
				return nil, err
			}
			pd.Decls = append(pd.Decls, dd)
		}
	}
	sort.SliceStable(desc.Packages, func(i, j int) bool { return desc.Packages[i].FqName < desc.Packages[j].FqName })
	desc.Link()
	return desc, nil
}

func describeDecl(m *ir.Module, table *archive.DeclarationTable, id ir.DeclID) (*metadata.DeclDescriptor, error) {
	d := m.Decl(id)
	kind, ok := descriptorKind(d.Kind)
	if !ok {
		return nil, ice.Errorf("descriptor of "+m.Name, "declaration %q has kind %s", d.Name, d.Kind)
	}
	dd := &metadata.DeclDescriptor{
		Name:   d.Name,
		Kind:   kind,
		Params: len(d.Params),
		FileID: m.Files[d.File].ID,
		UniqID: table.UniqID(id),
	}
	if d.Flags.Has(ir.FlagAbstract) {
		dd.Flags |= metadata.DeclAbstract
	}
	if d.Flags.Has(ir.FlagSuspend) {
		dd.Flags |= metadata.DeclSuspend
	}
	if d.Flags.Has(ir.FlagAnonymous) {
		dd.Flags |= metadata.DeclAnonymous
	}
	if dd.UniqID.Local {
		dd.Flags |= metadata.DeclLocal
	}
	for _, c := range d.Children {
		cd, err := describeDecl(m, table, c)
		if err != nil {
			return nil, err
		}
		dd.Children = append(dd.Children, cd)
	}
	return dd, nil
}

func descriptorKind(k ir.DeclKind) (metadata.DeclKind, bool) {
	switch k {
	case ir.KindClass:
		return metadata.DeclClass, true
	case ir.KindFunction:
		return metadata.DeclFunction, true
	case ir.KindProperty:
		return metadata.DeclProperty, true
	case ir.KindField:
		return metadata.DeclField, true
	}
	return 0, false
}

// DumpDescriptor renders everything of d that survives serialization, one
// item per line. Source file names are not serialized and not printed.
func DumpDescriptor(d *metadata.ModuleDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s pre_release=%t imports=%v\n", d.Name, d.PreRelease, d.Imported)
	for _, a := range d.Annotations {
		fmt.Fprintf(&b, "  %s\n", a)
	}
	pkgs := append([]*metadata.PackageDescriptor(nil), d.Packages...)
	sort.SliceStable(pkgs, func(i, j int) bool { return pkgs[i].FqName < pkgs[j].FqName })
	for _, p := range pkgs {
		fmt.Fprintf(&b, "package %s\n", p.FqName)
		for _, f := range p.Files {
			fmt.Fprintf(&b, "  file #%d", f.ID)
			for _, a := range f.Annotations {
				fmt.Fprintf(&b, " %s", a)
			}
			b.WriteByte('\n')
		}
		for _, dd := range p.Decls {
			dumpDescriptorDecl(&b, dd, 1)
		}
	}
	return b.String()
}

func dumpDescriptorDecl(b *strings.Builder, d *metadata.DeclDescriptor, depth int) {
	kind := "G"
	if d.UniqID.Local {
		kind = "L"
	}
	fmt.Fprintf(b, "%s%s %s flags=%d params=%d file=%d uid=%d%s\n",
		strings.Repeat("  ", depth), d.Kind, d.Name, d.Flags, d.Params, d.FileID, d.UniqID.Index, kind)
	for _, c := range d.Children {
		dumpDescriptorDecl(b, c, depth+1)
	}
}

// compareDescriptors checks the metadata read back from an archive against
// the descriptor that was written.
func compareDescriptors(want, got *metadata.ModuleDescriptor) error {
	w, g := DumpDescriptor(want), DumpDescriptor(got)
	if w == g {
		return nil
	}
	wl, gl := strings.Split(w, "\n"), strings.Split(g, "\n")
	for i := 0; i < len(wl) || i < len(gl); i++ {
		var a, b string
		if i < len(wl) {
			a = wl[i]
		}
		if i < len(gl) {
			b = gl[i]
		}
		if a != b {
			return ice.Errorf("archive "+want.Name, "metadata read back differs at line %d: wrote %q, read %q", i+1, a, b)
		}
	}
	return nil
}
