package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"strata/internal/archive"
	"strata/internal/diag"
	"strata/internal/frontend"
	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/lower"
	"strata/internal/metadata"
	"strata/internal/observ"
	"strata/internal/source"
	"strata/internal/trace"
)

// ErrNoAnalyzer is returned for a request without an analyzer.
var ErrNoAnalyzer = errors.New("driver: request has no analyzer")

// Compile runs one module through analysis, translation, lowering and the
// mode-specific output step. Phases run sequentially; ctx is checked around
// analysis, at every phase boundary and between archive writes. A canceled
// compilation returns the ctx error (possibly wrapped in
// *lower.CanceledError) and leaves no archive behind.
func Compile(ctx context.Context, req *Request) (res *Result, err error) {
	if req == nil || req.Analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	timer := req.Timer
	if timer == nil {
		timer = observ.NewTimer()
	}
	idx := req.Sources
	if idx == nil {
		idx = source.NewIndex()
	}
	b := req.Builtins
	if b == nil {
		b = ir.NewBuiltins()
	}
	prog := progress{sink: req.Progress, module: req.Config.ModuleName}

	a, err := analyze(ctx, req, timer, prog)
	if err != nil {
		return nil, err
	}
	name := a.Module.Name
	prog.module = name
	if err := checkAnalysis(a, req, idx); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: trace.CurrentSpan(ctx).SpanID, Session: sessionID})
	ctx, span := trace.Start(ctx, trace.ScopeSession, "compile")
	span.WithExtra("module", name).WithExtra("mode", string(req.Mode))
	defer func() {
		span.End(errDetail(err))
		if err != nil && !isCanceled(err) {
			trace.Failure(trace.FromContext(ctx), "compile "+name, err)
		}
	}()

	symbols := ir.NewSymbolTable()
	for _, dep := range req.Dependencies {
		if dep.Module == nil {
			return nil, ice.Errorf("module "+name, "dependency without IR")
		}
		if err := symbols.LoadModule(dep.Module); err != nil {
			return nil, err
		}
	}

	doneTranslate := prog.step(StageTranslate)
	stop := timer.Track("translate")
	m, err := frontend.Translate(a, symbols, b, idx)
	stop("")
	doneTranslate(err)
	if err != nil {
		return nil, err
	}

	lc := lower.NewContext(m, symbols, trace.FromContext(ctx))
	lc.SessionID = sessionID
	lc.Timer = timer
	if err := runLowering(ctx, req, lc, prog); err != nil {
		return nil, err
	}

	table := archive.NewDeclarationTable(m)
	stop = timer.Track("describe")
	desc, err := Describe(a, m, table, req.Config)
	stop("")
	if err != nil {
		return nil, err
	}

	res = &Result{Module: name, SessionID: sessionID, Timer: timer, Imports: append([]string(nil), a.Module.Imports...)}
	switch req.Mode {
	case ModeEmit, "":
		res.Outcome, err = emit(ctx, req, m, desc, timer, prog)
	case ModeArchive:
		res.Outcome, err = writeArchive(ctx, req, m, desc, table, timer, prog)
	default:
		err = fmt.Errorf("driver: unknown mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func analyze(ctx context.Context, req *Request, timer *observ.Timer, prog progress) (*frontend.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := prog.step(StageAnalyze)
	stop := timer.Track("analyze")
	a, err := req.Analyzer.Analyze(ctx)
	stop("")
	if err == nil && a == nil {
		err = errors.New("analyzer returned no module")
	}
	done(err)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.Normalized(), nil
}

// checkAnalysis rejects analyses with error diagnostics and dependency
// problems the front end cannot see: self, missing or pre-release imports.
func checkAnalysis(a *frontend.Analysis, req *Request, idx *source.Index) error {
	name := a.Module.Name
	if want := req.Config.ModuleName; want != "" && want != name {
		return fmt.Errorf("driver: analysis is for module %q, configured module is %q", name, want)
	}
	bag := diag.NewBag(len(a.Diagnostics) + len(a.Module.Imports))
	rep := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	for _, d := range a.Bag().Items() {
		rep.Report(d)
	}
	deps := make(map[string]*metadata.ModuleDescriptor, len(req.Dependencies))
	for _, dep := range req.Dependencies {
		if dep.Module != nil {
			deps[dep.Module.Name] = dep.Descriptor
		}
	}
	for _, imp := range a.Module.Imports {
		desc, ok := deps[imp]
		switch {
		case imp == name:
			rep.Report(diag.NewError(diag.LibSelfImport, diag.NoSpan, fmt.Sprintf("module %s imports itself", name)))
		case !ok:
			rep.Report(diag.NewError(diag.LibNotFound, diag.NoSpan, fmt.Sprintf("module %s imports %s, which is not available", name, imp)))
		case desc != nil && desc.PreRelease && req.Config.ReportPreRelease && !req.Config.PreRelease:
			rep.Report(diag.NewError(diag.LibPreRelease, diag.NoSpan, fmt.Sprintf("module %s is compiled by a pre-release compiler and cannot be used by %s", imp, name)))
		}
	}
	if !bag.HasErrors() {
		return nil
	}
	return newFatalAnalysisError(name, bag.Errors(), idx)
}

func runLowering(ctx context.Context, req *Request, lc *lower.Context, prog progress) error {
	phases := req.Phases
	if phases == nil {
		phases = lower.DefaultPhases()
	}
	mgr, err := lower.NewManager(phases)
	if err != nil {
		return err
	}
	mgr.Observe(func(name string, _, _ int) { prog.phase(name) })
	done := prog.step(StageLower)
	stop := lc.Timer.Track("lower")
	err = mgr.Run(ctx, lc)
	stop("")
	done(err)
	return err
}

func emit(ctx context.Context, req *Request, m *ir.Module, desc *metadata.ModuleDescriptor, timer *observ.Timer, prog progress) (*EmitOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emitter := req.Emitter
	if emitter == nil {
		emitter = TextEmitter{}
	}
	done := prog.step(StageEmit)
	stop := timer.Track("emit")
	text, err := emitter.Emit(ctx, m)
	stop("")
	done(err)
	if err != nil {
		return nil, fmt.Errorf("emit %s: %w", m.Name, err)
	}
	return &EmitOutcome{Text: text, Descriptor: desc, Module: m}, nil
}

func writeArchive(ctx context.Context, req *Request, m *ir.Module, desc *metadata.ModuleDescriptor, table *archive.DeclarationTable, timer *observ.Timer, prog progress) (out *ArchiveOutcome, err error) {
	if req.OutputDir == "" {
		return nil, fmt.Errorf("driver: archive mode needs an output directory")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := prog.step(StageArchive)
	stop := timer.Track("archive")
	defer func() {
		stop("")
		done(err)
	}()

	// проверка чтения идёт по staging, до публикации
	var back *metadata.ModuleDescriptor
	var verifyErr error
	verify := func(staged archive.Layout) error {
		back, verifyErr = readBack(staged, desc, req)
		return verifyErr
	}
	layout, err := archive.Write(ctx, req.OutputDir, &archive.Library{
		Name:            m.Name,
		Descriptor:      desc,
		Module:          m,
		CompilerVersion: req.Config.CompilerVersion,
		MetadataVersion: req.Config.MetadataVersion,
		Table:           table,
		Verify:          verify,
	})
	if err != nil {
		if verifyErr != nil || isCanceled(err) || ice.Is(err) {
			return nil, err
		}
		return nil, newArchiveError(m.Name, req.OutputDir, err)
	}

	arc, err := archive.Open(layout.Dir)
	if err != nil {
		return nil, ice.Wrap(err, "archive "+m.Name, "cannot reopen written archive")
	}
	_, irErr := arc.LoadIR(m.Builtins)
	return &ArchiveOutcome{
		Layout:      layout,
		Descriptor:  desc,
		Module:      m,
		ReadBack:    back,
		IRRoundTrip: irErr,
	}, nil
}

// checkReadBack is compareDescriptors; tests swap it to reject an archive.
var checkReadBack = compareDescriptors

// readBack opens the staged archive, reads its metadata back and compares it
// with what was written.
func readBack(staged archive.Layout, desc *metadata.ModuleDescriptor, req *Request) (*metadata.ModuleDescriptor, error) {
	arc, err := archive.Open(staged.Dir)
	if err != nil {
		return nil, ice.Wrap(err, "archive "+staged.Name, "cannot reopen written archive")
	}
	provider, err := arc.Provider(metadata.DeserializationConfig{
		ReportErrorsOnPreReleaseDependencies: req.Config.ReportPreRelease,
	}, req.Config.Lookups)
	if err != nil {
		return nil, err
	}
	back, err := provider.Module()
	if err != nil {
		return nil, err
	}
	if err := checkReadBack(desc, back); err != nil {
		return nil, err
	}
	return back, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
