package driver

import (
	"context"
	"strings"

	"strata/internal/ir"
)

// Emitter turns a lowered module into target text.
type Emitter interface {
	Emit(ctx context.Context, m *ir.Module) (string, error)
}

// TextEmitter prints the lowered IR. It stands in for a target printer.
type TextEmitter struct {
	Positions bool
}

func (e TextEmitter) Emit(ctx context.Context, m *ir.Module) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := ir.DumpModule(&b, m, ir.DumpOptions{Positions: e.Positions}); err != nil {
		return "", err
	}
	return b.String(), nil
}
