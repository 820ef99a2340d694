package optimize

import (
	"context"
	"strconv"
	"strings"

	"promptopt/program"
)

// Metric scores a prediction against a labeled example. Boolean metrics map
// to 0 and 1; numeric metrics are maximized by search-based optimization.
type Metric func(ctx context.Context, example program.Example, pred program.Prediction) (float64, error)

// BoolMetric adapts an accept/reject check to the Metric contract.
func BoolMetric(check func(example program.Example, pred program.Prediction) bool) Metric {
	return func(ctx context.Context, example program.Example, pred program.Prediction) (float64, error) {
		if check(example, pred) {
			return 1, nil
		}
		return 0, nil
	}
}

// SubstringMatch accepts a prediction when the example's label for field is
// contained in the predicted value of the same field.
func SubstringMatch(field string) Metric {
	return BoolMetric(func(example program.Example, pred program.Prediction) bool {
		return strings.Contains(pred.Get(field), example.Get(field))
	})
}

// accepted is the pass threshold for boolean-like metrics used as filters.
func accepted(score float64) bool {
	return score > 0
}

// NewJudge builds the LM-as-judge program used by JudgeMetric. It is an
// ordinary program, so judge invocations log history like any other.
func NewJudge(rt *program.Runtime) *program.Program {
	sig := program.MustParseSignature("notes, generated_blog -> reasoning, score:int").
		WithInstruction(
			"You are a professional editor. Evaluate the generated blog post against the notes it was written from.\n" +
				"Criteria:\n" +
				"1. Language: the post must be written in Japanese. Some English is fine, but the main text must be Japanese.\n" +
				"2. Coverage: every major point from the notes is addressed.\n" +
				"3. Quality: the writing is engaging, professional and well structured.\n" +
				"4. Form: the post uses proper blog formatting such as headings.\n" +
				"Give an integer score from 1 to 5. If the post is not in Japanese, the score is 1.").
		WithDescriptions(map[string]string{
			"notes":          "the original notes given to the writer",
			"generated_blog": "the blog post produced by the writer",
			"reasoning":      "why the score was given",
			"score":          "an integer score from 1 to 5",
		})
	return program.NewProgram(rt).Add("judge", program.NewPredictor(rt, sig))
}

// JudgeMetric scores a generated blog with an LM judge. Posts without any
// hiragana are rejected outright before the judge is consulted. A failing
// judge call degrades to a MetricError, which the evaluation boundary
// converts to the minimum score.
func JudgeMetric(judge *program.Program) Metric {
	return func(ctx context.Context, example program.Example, pred program.Prediction) (float64, error) {
		blog := pred.Get("blog")
		if !containsHiragana(blog) {
			return 0, nil
		}
		verdict, err := judge.Forward(ctx, map[string]string{
			"notes":          example.Get("notes"),
			"generated_blog": blog,
		})
		if err != nil {
			return 0, &MetricError{Err: err}
		}
		score, err := strconv.Atoi(verdict.Get("score"))
		if err != nil {
			return 0, &MetricError{Err: err}
		}
		return float64(score), nil
	}
}

func containsHiragana(s string) bool {
	for _, r := range s {
		if r >= 'ぁ' && r <= 'ゖ' {
			return true
		}
	}
	return false
}
