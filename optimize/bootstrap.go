package optimize

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"promptopt/program"
)

// BootstrapFewShot compiles a program by running the unoptimized student
// over the training set and keeping the examples it already solves. The
// captured per-predictor input/output pairs of accepted runs become the
// compiled program's demonstrations; instructions are left untouched.
type BootstrapFewShot struct {
	Metric               Metric
	MaxBootstrappedDemos int
}

func (b *BootstrapFewShot) validate(trainset []program.Example) error {
	if b.Metric == nil {
		return &ConfigurationError{Reason: "metric is required"}
	}
	if b.MaxBootstrappedDemos < 0 {
		return &ConfigurationError{Reason: "max bootstrapped demos must be >= 0"}
	}
	if len(trainset) == 0 {
		return &ConfigurationError{Reason: "training set is empty"}
	}
	return nil
}

// Compile returns a structurally identical copy of student whose predictors
// carry up to MaxBootstrappedDemos accepted demonstrations each, collected
// in training-set order. Zero accepted examples is not an error; the
// compiled program is simply zero-shot.
func (b *BootstrapFewShot) Compile(ctx context.Context, student *program.Program, trainset []program.Example) (*program.Program, error) {
	if err := b.validate(trainset); err != nil {
		return nil, err
	}
	demos, err := b.collect(ctx, student, trainset)
	if err != nil {
		return nil, err
	}
	compiled := student.Clone(student.Runtime())
	for name, ds := range demos {
		compiled.Get(name).SetDemos(ds)
	}
	return compiled, nil
}

// collect gathers accepted demonstrations per predictor name.
func (b *BootstrapFewShot) collect(ctx context.Context, student *program.Program, trainset []program.Example) (map[string][]program.Demo, error) {
	demos := make(map[string][]program.Demo, len(student.Names()))
	if b.MaxBootstrappedDemos == 0 {
		return demos, nil
	}
	for _, example := range trainset {
		if b.full(student, demos) {
			break
		}
		trace := &program.Trace{}
		traced := student.Clone(student.Runtime().WithTrace(trace))
		pred, err := traced.Forward(ctx, example.Inputs())
		if err != nil {
			var perr *program.ParseError
			if errors.As(err, &perr) {
				log.Debug().Err(err).Msg("bootstrap candidate unparseable, skipping")
				continue
			}
			return nil, err
		}
		score, err := b.Metric(ctx, example, pred)
		if err != nil {
			log.Warn().Err(err).Msg("bootstrap metric failed, skipping example")
			continue
		}
		if !accepted(score) {
			continue
		}
		for _, step := range trace.Steps() {
			if len(demos[step.Predictor]) >= b.MaxBootstrappedDemos {
				continue
			}
			demos[step.Predictor] = append(demos[step.Predictor], program.Demo{
				Inputs:  step.Inputs,
				Outputs: step.Outputs,
			})
		}
	}
	return demos, nil
}

func (b *BootstrapFewShot) full(student *program.Program, demos map[string][]program.Demo) bool {
	for _, name := range student.Names() {
		if len(demos[name]) < b.MaxBootstrappedDemos {
			return false
		}
	}
	return true
}
