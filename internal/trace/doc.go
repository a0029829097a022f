// Package trace is the level-gated tracing used across a compilation.
//
// # Usage
//
//	strata build --trace=- --trace-level=phase app.toml
//
// A Tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "closure-conversion", parent)
//	defer span.End("")
//
// # Levels
//
//   - LevelOff: nothing
//   - LevelError: failures only
//   - LevelPhase: sessions and lowering phases
//   - LevelDetail: archive files, dependency loading
//   - LevelDebug: per-declaration events
//
// # Scopes
//
//   - ScopeSession: one compilation request
//   - ScopePhase: analysis, translation, each lowering phase, archive writing
//   - ScopeDetail: work inside a phase (one dependency, one archive file)
//   - ScopeDecl: one declaration
package trace
