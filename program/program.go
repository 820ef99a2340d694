package program

import (
	"context"
	"fmt"
)

// Program composes one or more predictors into an application-level
// transformation. Predictors are declared explicitly in order and addressed
// by a stable name, so an optimizer can compile each one individually.
type Program struct {
	rt    *Runtime
	names []string
	preds map[string]*Predictor
}

func NewProgram(rt *Runtime) *Program {
	return &Program{rt: rt, preds: map[string]*Predictor{}}
}

// Add registers a predictor under a unique name. Registration order is the
// forward execution order.
func (p *Program) Add(name string, pred *Predictor) *Program {
	if _, exists := p.preds[name]; exists {
		panic(fmt.Sprintf("program already has a predictor named %q", name))
	}
	pred.name = name
	pred.rt = p.rt
	p.names = append(p.names, name)
	p.preds[name] = pred
	return p
}

// Runtime returns the runtime the program was constructed on.
func (p *Program) Runtime() *Runtime {
	return p.rt
}

// Names returns the predictor names in execution order.
func (p *Program) Names() []string {
	return append([]string(nil), p.names...)
}

// Get returns the named predictor, or nil.
func (p *Program) Get(name string) *Predictor {
	return p.preds[name]
}

// Predictors returns the predictors in execution order.
func (p *Program) Predictors() []*Predictor {
	res := make([]*Predictor, 0, len(p.names))
	for _, name := range p.names {
		res = append(res, p.preds[name])
	}
	return res
}

// Forward runs the predictors in order. Each predictor sees the original
// inputs plus every output produced so far, so intermediate fields such as
// reasoning flow into later predictors. The returned prediction merges all
// predictor outputs; later predictors win on field collisions.
func (p *Program) Forward(ctx context.Context, inputs map[string]string) (Prediction, error) {
	if len(p.names) == 0 {
		return Prediction{}, fmt.Errorf("program has no predictors")
	}
	scope := make(map[string]string, len(inputs))
	for k, v := range inputs {
		scope[k] = v
	}
	merged := make(map[string]string)
	var raw string
	for _, name := range p.names {
		pred, err := p.preds[name].Run(ctx, scope)
		if err != nil {
			return Prediction{}, err
		}
		for k, v := range pred.Outputs {
			scope[k] = v
			merged[k] = v
		}
		raw = pred.Raw
	}
	return Prediction{Outputs: merged, Raw: raw}, nil
}

// Clone deep-copies the program structure onto rt. Predictor order, names,
// instructions and demos are all copied; nothing is shared by reference.
func (p *Program) Clone(rt *Runtime) *Program {
	cp := NewProgram(rt)
	for _, name := range p.names {
		pred := p.preds[name].Clone(rt)
		cp.names = append(cp.names, name)
		pred.name = name
		cp.preds[name] = pred
	}
	return cp
}
