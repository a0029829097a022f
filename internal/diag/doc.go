// Package diag defines the diagnostic model shared by the front-end boundary,
// the driver and the CLI.
//
// Diagnostics reach the back end already produced by the front end (the
// analyzed module carries them) and are only checked, sorted and rendered
// here. Positions are byte offsets into a source file; they are resolved to
// line:column through source.FileEntry when rendering, so the offset index is
// the single place where that conversion lives.
//
// # Data model
//
//   - Severity – Info, Warning, Error.
//   - Code – numeric identifier with a stable string form (see codes.go).
//   - Message – short, human oriented text.
//   - Primary – the Span the diagnostic is about.
//   - Notes – optional secondary spans.
package diag
