package diag

import "strata/internal/source"

// Span is a byte range in one source file.
type Span struct {
	File  string
	Start int32
	End   int32
}

// NoSpan is used for diagnostics not tied to a location.
var NoSpan = Span{Start: source.UndefinedOffset, End: source.UndefinedOffset}

// IsValid reports whether the span points into a file.
func (s Span) IsValid() bool {
	return s.File != "" && s.Start >= 0
}

type Note struct {
	Span Span
	Msg  string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Span
	Notes    []Note
}

func New(sev Severity, code Code, primary Span, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Primary: primary, Message: msg}
}

func NewError(code Code, primary Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(sp Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}
