package optimize

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"promptopt/program"
)

// EvalResult holds the per-example scores of one evaluation batch and their
// mean.
type EvalResult struct {
	Mean   float64
	Scores []float64
}

// Evaluate runs the program over every example and averages the metric
// scores. Examples fan out concurrently up to parallelism. Parse failures
// and metric failures are isolated: the affected example scores 0 and the
// batch continues. Transport failures abort the whole evaluation.
func Evaluate(ctx context.Context, prog *program.Program, examples []program.Example, metric Metric, parallelism int) (EvalResult, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	scores := make([]float64, len(examples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, example := range examples {
		i, example := i, example
		g.Go(func() error {
			pred, err := prog.Forward(gctx, example.Inputs())
			if err != nil {
				var perr *program.ParseError
				if errors.As(err, &perr) {
					log.Debug().Err(err).Int("example", i).Msg("prediction unparseable, scoring 0")
					scores[i] = 0
					return nil
				}
				return err
			}
			score, err := metric(gctx, example, pred)
			if err != nil {
				log.Warn().Err(err).Int("example", i).Msg("metric failed, scoring 0")
				scores[i] = 0
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EvalResult{}, err
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := 0.0
	if len(scores) > 0 {
		mean = sum / float64(len(scores))
	}
	return EvalResult{Mean: mean, Scores: scores}, nil
}
