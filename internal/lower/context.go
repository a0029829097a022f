package lower

import (
	"github.com/google/uuid"

	"strata/internal/ir"
	"strata/internal/observ"
	"strata/internal/trace"
)

// Context is the state of one compilation session shared by the phases.
// It is passed explicitly; nothing in this package keeps session state in
// globals.
type Context struct {
	SessionID string
	Module    *ir.Module
	Symbols   *ir.SymbolTable
	Builtins  *ir.Builtins
	Tracer    trace.Tracer
	Timer     *observ.Timer
}

// NewContext starts a session for m. A nil symbol table or tracer is replaced
// by an empty table and trace.Nop.
func NewContext(m *ir.Module, symbols *ir.SymbolTable, tracer trace.Tracer) *Context {
	if symbols == nil {
		symbols = ir.NewSymbolTable()
	}
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Context{
		SessionID: uuid.NewString(),
		Module:    m,
		Symbols:   symbols,
		Builtins:  m.Builtins,
		Tracer:    tracer,
	}
}

func (c *Context) subject(phase string) string {
	return "phase " + phase + " of module " + c.Module.Name
}
