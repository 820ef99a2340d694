package optimize

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"promptopt/model"
	"promptopt/program"
)

func TestEvaluate(t *testing.T) {
	t.Run("averages metric scores across the batch", func(t *testing.T) {
		rt := program.NewRuntime(mathLM(allCorrect()))
		student := newMathStudent(rt)

		res, err := Evaluate(context.Background(), student, mathTrainset(), SubstringMatch("answer"), 2)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if res.Mean != 1 {
			t.Errorf("mean = %v, want 1", res.Mean)
		}
		if len(res.Scores) != 3 {
			t.Errorf("got %d scores, want 3", len(res.Scores))
		}
	})

	t.Run("metric failure on one example scores 0 and the batch continues", func(t *testing.T) {
		rt := program.NewRuntime(mathLM(allCorrect()))
		student := newMathStudent(rt)
		metric := func(ctx context.Context, example program.Example, pred program.Prediction) (float64, error) {
			if example.Get("question") == "What is 5 * 5?" {
				return 0, &MetricError{Err: errors.New("judge timed out")}
			}
			return 1, nil
		}

		res, err := Evaluate(context.Background(), student, mathTrainset(), metric, 3)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		want := 2.0 / 3.0
		if math.Abs(res.Mean-want) > 1e-9 {
			t.Errorf("mean = %v, want %v", res.Mean, want)
		}
		if res.Scores[1] != 0 {
			t.Errorf("failing example scored %v, want 0", res.Scores[1])
		}
	})

	t.Run("unparseable prediction scores 0 without aborting", func(t *testing.T) {
		inner := mathLM(allCorrect())
		rt := program.NewRuntime(program.LMFunc(func(ctx context.Context, prompt string) (model.Response, error) {
			if strings.Contains(prompt, "What is 5 * 5?") {
				return model.Response{Text: "no labels here"}, nil
			}
			return inner(ctx, prompt)
		}))
		student := newMathStudent(rt)

		res, err := Evaluate(context.Background(), student, mathTrainset(), SubstringMatch("answer"), 1)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		want := 2.0 / 3.0
		if math.Abs(res.Mean-want) > 1e-9 {
			t.Errorf("mean = %v, want %v", res.Mean, want)
		}
	})

	t.Run("transport failure aborts the evaluation", func(t *testing.T) {
		rt := program.NewRuntime(program.LMFunc(func(ctx context.Context, prompt string) (model.Response, error) {
			return model.Response{}, &model.TransportError{Err: errors.New("quota exceeded")}
		}))
		student := newMathStudent(rt)

		_, err := Evaluate(context.Background(), student, mathTrainset(), SubstringMatch("answer"), 2)
		var terr *model.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("got %T (%v), want *model.TransportError", err, err)
		}
	})
}
