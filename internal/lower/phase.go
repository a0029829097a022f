package lower

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"strata/internal/ice"
	"strata/internal/ir"
	"strata/internal/trace"
)

// Phase is one lowering step.
type Phase struct {
	Name     string
	Requires []string
	// Pre and Post may be nil.
	Pre  func(*Context) error
	Run  func(context.Context, *Context) error
	Post func(*Context) error
}

// CanceledError reports a run stopped at a phase boundary.
type CanceledError struct {
	Module    string
	Next      string // empty when canceled after the last phase
	Completed []string
	Err       error
}

func (e *CanceledError) Error() string {
	if e.Next == "" {
		return fmt.Sprintf("lowering of %s canceled after the last phase: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("lowering of %s canceled before phase %q: %v", e.Module, e.Next, e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

// ErrPhaseOrder is returned by NewManager for an invalid phase list.
var ErrPhaseOrder = errors.New("invalid phase order")

// Observer is notified after every completed phase.
type Observer func(name string, index, total int)

// Manager runs a validated list of phases.
type Manager struct {
	phases   []Phase
	observer Observer
}

// NewManager checks that names are unique and every prerequisite appears
// earlier in the list.
func NewManager(phases []Phase) (*Manager, error) {
	seen := make(map[string]bool, len(phases))
	for i, p := range phases {
		if p.Name == "" || p.Run == nil {
			return nil, fmt.Errorf("%w: phase #%d has no name or body", ErrPhaseOrder, i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: phase %q listed twice", ErrPhaseOrder, p.Name)
		}
		for _, req := range p.Requires {
			if !seen[req] {
				return nil, fmt.Errorf("%w: phase %q requires %q to run before it", ErrPhaseOrder, p.Name, req)
			}
		}
		seen[p.Name] = true
	}
	return &Manager{phases: append([]Phase(nil), phases...)}, nil
}

// Observe installs fn as the phase observer.
func (m *Manager) Observe(fn Observer) { m.observer = fn }

// Names lists the phases in run order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.phases))
	for i, p := range m.phases {
		out[i] = p.Name
	}
	return out
}

// Run executes every phase in order. A violated pre- or postcondition is an
// internal error naming the phase.
func (m *Manager) Run(ctx context.Context, c *Context) (err error) {
	defer ice.Recover(&err)

	ctx = trace.WithTracer(ctx, c.Tracer)
	sc := trace.CurrentSpan(ctx)
	if sc.Session == "" {
		sc.Session = c.SessionID
		ctx = trace.WithSpanContext(ctx, sc)
	}
	ctx, span := trace.Start(ctx, trace.ScopePhase, "lower")
	defer func() { span.End(errDetail(err)) }()

	completed := make([]string, 0, len(m.phases))
	for i, p := range m.phases {
		if cerr := ctx.Err(); cerr != nil {
			return &CanceledError{Module: c.Module.Name, Next: p.Name, Completed: completed, Err: cerr}
		}
		if err := m.runPhase(ctx, c, p); err != nil {
			return err
		}
		completed = append(completed, p.Name)
		if m.observer != nil {
			m.observer(p.Name, i+1, len(m.phases))
		}
	}
	if cerr := ctx.Err(); cerr != nil {
		return &CanceledError{Module: c.Module.Name, Completed: completed, Err: cerr}
	}
	return nil
}

func (m *Manager) runPhase(ctx context.Context, c *Context, p Phase) (err error) {
	_, span := trace.Start(ctx, trace.ScopePhase, p.Name)
	done := c.Timer.Track("lower/" + p.Name)
	defer func() {
		span.WithExtra("decls", strconv.Itoa(c.Module.Len())).End(errDetail(err))
		done("")
	}()

	if p.Pre != nil {
		if err := p.Pre(c); err != nil {
			return ice.Wrap(err, c.subject(p.Name), "precondition violated")
		}
	}
	if err := p.Run(ctx, c); err != nil {
		if ice.Is(err) {
			return err
		}
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	if p.Post != nil {
		if err := p.Post(c); err != nil {
			return ice.Wrap(err, c.subject(p.Name), "postcondition violated")
		}
	}
	if err := ir.Validate(c.Module); err != nil {
		return ice.Wrap(err, c.subject(p.Name), "malformed IR after phase")
	}
	return nil
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
