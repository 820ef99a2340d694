package program

import (
	"context"
	"sync"

	"promptopt/model"
)

// LM is the external model capability: given a rendered prompt, return a
// completion. Implemented by model.Client; failures are *model.TransportError.
type LM interface {
	Invoke(ctx context.Context, prompt string) (model.Response, error)
}

// LMFunc adapts a plain function to the LM interface.
type LMFunc func(ctx context.Context, prompt string) (model.Response, error)

func (f LMFunc) Invoke(ctx context.Context, prompt string) (model.Response, error) {
	return f(ctx, prompt)
}

// TraceStep is the concrete (input, output) pair one predictor produced
// during a traced forward pass.
type TraceStep struct {
	Predictor string
	Inputs    map[string]string
	Outputs   map[string]string
}

// Trace captures per-predictor steps during a forward pass. Safe for
// concurrent append.
type Trace struct {
	mu    sync.Mutex
	steps []TraceStep
}

func (t *Trace) add(step TraceStep) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

// Steps returns a snapshot of the captured steps.
func (t *Trace) Steps() []TraceStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceStep(nil), t.steps...)
}

// Runtime binds the LM capability and the invocation history that programs
// run against. Its lifecycle is owned by the caller of a compile or
// evaluate operation; there is no process-wide model binding.
type Runtime struct {
	lm      LM
	history *History
	trace   *Trace
}

func NewRuntime(lm LM) *Runtime {
	return &Runtime{lm: lm, history: &History{}}
}

// History returns the append-only invocation log shared by every program
// constructed on this runtime.
func (rt *Runtime) History() *History {
	return rt.history
}

// WithTrace returns a runtime that shares this runtime's model and history
// but also captures per-predictor steps into t.
func (rt *Runtime) WithTrace(t *Trace) *Runtime {
	return &Runtime{lm: rt.lm, history: rt.history, trace: t}
}
