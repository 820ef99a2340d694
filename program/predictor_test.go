package program

import (
	"context"
	"errors"
	"strings"
	"testing"

	"promptopt/model"
)

func scripted(text string) *Runtime {
	return NewRuntime(LMFunc(func(ctx context.Context, prompt string) (model.Response, error) {
		return model.Response{Text: text, Raw: text}, nil
	}))
}

func failing(err error) *Runtime {
	return NewRuntime(LMFunc(func(ctx context.Context, prompt string) (model.Response, error) {
		return model.Response{}, err
	}))
}

func TestPredictor_Render(t *testing.T) {
	t.Run("renders instruction, preamble, demos and blank outputs in order", func(t *testing.T) {
		sig := MustParseSignature("question -> answer").WithInstruction("Answer the question.")
		pred := NewPredictor(scripted(""), sig)
		pred.SetDemos([]Demo{
			{Inputs: map[string]string{"question": "What is 10 + 20?"}, Outputs: map[string]string{"answer": "30"}},
			{Inputs: map[string]string{"question": "What is 100 / 2?"}, Outputs: map[string]string{"answer": "50"}},
		})

		got := pred.Render(map[string]string{"question": "What is 5 * 5?"})
		want := "Answer the question.\n\n" +
			"Follow the following format.\n\n" +
			"Question: ${question}\n" +
			"Answer: ${answer}\n\n" +
			"---\n\n" +
			"Question: What is 10 + 20?\n" +
			"Answer: 30\n\n" +
			"---\n\n" +
			"Question: What is 100 / 2?\n" +
			"Answer: 50\n\n" +
			"---\n\n" +
			"Question: What is 5 * 5?\n" +
			"Answer:\n"
		if got != want {
			t.Errorf("render mismatch:\ngot:\n%s\nwant:\n%s", got, want)
		}
	})

	t.Run("never renders label fields of the current example", func(t *testing.T) {
		sig := MustParseSignature("question -> answer")
		pred := NewPredictor(scripted(""), sig)
		example := NewExample(map[string]string{
			"question": "What is 5 * 5?",
			"answer":   "twenty-five-label",
		}).WithInputs("question")

		got := pred.Render(example.Inputs())
		if strings.Contains(got, "twenty-five-label") {
			t.Errorf("label field leaked into prompt:\n%s", got)
		}
	})

	t.Run("render is deterministic", func(t *testing.T) {
		sig := MustParseSignature("notes -> reasoning, blog")
		pred := NewPredictor(scripted(""), sig)
		pred.SetDemos([]Demo{{
			Inputs:  map[string]string{"notes": "sleep tips"},
			Outputs: map[string]string{"reasoning": "outline first", "blog": "..."},
		}})
		inputs := map[string]string{"notes": "remote work"}
		first := pred.Render(inputs)
		for i := 0; i < 10; i++ {
			if again := pred.Render(inputs); again != first {
				t.Fatalf("render %d differs from first render", i)
			}
		}
	})
}

func TestPredictor_Run(t *testing.T) {
	t.Run("parses declared output fields", func(t *testing.T) {
		rt := scripted("Reasoning: 5 times 5 is 25.\nAnswer: 25")
		pred := ChainOfThought(rt, MustParseSignature("question -> answer"))

		got, err := pred.Run(context.Background(), map[string]string{"question": "What is 5 * 5?"})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if got.Get("answer") != "25" {
			t.Errorf("answer = %q, want %q", got.Get("answer"), "25")
		}
		if got.Get("reasoning") != "5 times 5 is 25." {
			t.Errorf("reasoning = %q", got.Get("reasoning"))
		}
	})

	t.Run("coerces integer-typed fields", func(t *testing.T) {
		rt := scripted("Reasoning: good coverage\nScore: 4")
		pred := NewPredictor(rt, MustParseSignature("notes, generated_blog -> reasoning, score:int"))

		got, err := pred.Run(context.Background(), map[string]string{"notes": "n", "generated_blog": "b"})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if got.Get("score") != "4" {
			t.Errorf("score = %q, want %q", got.Get("score"), "4")
		}
	})

	t.Run("non-numeric value for typed field is a ParseError", func(t *testing.T) {
		rt := scripted("Reasoning: fine\nScore: excellent")
		pred := NewPredictor(rt, MustParseSignature("notes -> reasoning, score:int"))

		_, err := pred.Run(context.Background(), map[string]string{"notes": "n"})
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("got %T (%v), want *ParseError", err, err)
		}
		if perr.Field != "score" {
			t.Errorf("failed field = %q, want %q", perr.Field, "score")
		}
	})

	t.Run("missing label is a ParseError and still logs history", func(t *testing.T) {
		rt := scripted("I refuse to follow the format.")
		pred := NewPredictor(rt, MustParseSignature("question -> answer"))

		_, err := pred.Run(context.Background(), map[string]string{"question": "q"})
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("got %T (%v), want *ParseError", err, err)
		}
		if rt.History().Len() != 1 {
			t.Fatalf("history has %d entries, want 1", rt.History().Len())
		}
		last, _ := rt.History().Last()
		if last.Response != "I refuse to follow the format." {
			t.Errorf("history response = %q", last.Response)
		}
		if last.Err == "" {
			t.Error("history entry should record the parse failure")
		}
	})

	t.Run("transport failure propagates and logs history", func(t *testing.T) {
		cause := &model.TransportError{Err: errors.New("connection refused")}
		rt := failing(cause)
		pred := NewPredictor(rt, MustParseSignature("question -> answer"))

		_, err := pred.Run(context.Background(), map[string]string{"question": "q"})
		var terr *model.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("got %T (%v), want *model.TransportError", err, err)
		}
		if rt.History().Len() != 1 {
			t.Errorf("history has %d entries, want 1", rt.History().Len())
		}
	})

	t.Run("every invocation appends exactly one history entry", func(t *testing.T) {
		rt := scripted("Answer: 30")
		pred := NewPredictor(rt, MustParseSignature("question -> answer"))
		for i := 0; i < 5; i++ {
			if _, err := pred.Run(context.Background(), map[string]string{"question": "q"}); err != nil {
				t.Fatalf("run %d failed: %v", i, err)
			}
		}
		if rt.History().Len() != 5 {
			t.Errorf("history has %d entries, want 5", rt.History().Len())
		}
	})
}

func TestPredictor_TraceCapture(t *testing.T) {
	t.Run("traced runtime records per-predictor input output pairs", func(t *testing.T) {
		rt := scripted("Answer: 30")
		trace := &Trace{}
		pred := NewPredictor(rt.WithTrace(trace), MustParseSignature("question -> answer"))

		_, err := pred.Run(context.Background(), map[string]string{"question": "What is 10 + 20?", "unrelated": "x"})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		steps := trace.Steps()
		if len(steps) != 1 {
			t.Fatalf("got %d trace steps, want 1", len(steps))
		}
		if steps[0].Inputs["question"] != "What is 10 + 20?" {
			t.Errorf("trace inputs = %v", steps[0].Inputs)
		}
		if _, leaked := steps[0].Inputs["unrelated"]; leaked {
			t.Error("trace captured a field outside the signature")
		}
		if steps[0].Outputs["answer"] != "30" {
			t.Errorf("trace outputs = %v", steps[0].Outputs)
		}
	})
}
