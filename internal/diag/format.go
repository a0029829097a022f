package diag

import (
	"fmt"
	"strings"

	"strata/internal/source"
)

// Locate resolves a span through the offset index. Spans without a file
// resolve to an empty position.
func Locate(idx *source.Index, sp Span) source.Position {
	if !sp.IsValid() || idx == nil {
		return source.Position{File: sp.File}
	}
	return idx.Entry(sp.File).Position(sp.Start)
}

// FormatShort renders one line per diagnostic:
//
//	ERROR ANA1001 app/main.st:3:5 unresolved reference: foo
func FormatShort(diags []Diagnostic, idx *source.Index, includeNotes bool) string {
	var b strings.Builder
	for i, d := range diags {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s %s", d.Severity, d.Code.ID(), location(idx, d.Primary), d.Message)
		if includeNotes {
			for _, n := range d.Notes {
				fmt.Fprintf(&b, "\n  note: %s %s", location(idx, n.Span), n.Msg)
			}
		}
	}
	return b.String()
}

func location(idx *source.Index, sp Span) string {
	if !sp.IsValid() {
		if sp.File == "" {
			return "<unknown>"
		}
		return sp.File
	}
	return Locate(idx, sp).String()
}
