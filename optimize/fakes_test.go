package optimize

import (
	"context"
	"strings"

	"promptopt/model"
	"promptopt/program"
)

// lastField extracts the value of the last occurrence of a labeled line in
// a rendered prompt, i.e. the current input rather than a demo's.
func lastField(prompt, label string) string {
	idx := strings.LastIndex(prompt, "\n"+label+" ")
	if idx < 0 {
		if strings.HasPrefix(prompt, label+" ") {
			idx = -1
		} else {
			return ""
		}
	}
	start := idx + 1 + len(label) + 1
	rest := prompt[start:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

// mathLM fakes a model that solves exactly the questions listed in correct.
// It also serves the instruction proposer, deterministically deriving each
// proposal from the tip it was given, so seeded runs reproduce bit for bit.
func mathLM(correct map[string]string) program.LMFunc {
	return func(ctx context.Context, prompt string) (model.Response, error) {
		if strings.Contains(prompt, "Proposed Instruction:") {
			tip := lastField(prompt, "Tip:")
			text := "Proposed Instruction: Solve the arithmetic problem. " + tip
			return model.Response{Text: text, Raw: text}, nil
		}
		question := lastField(prompt, "Question:")
		answer, ok := correct[question]
		if !ok {
			answer = "wrong"
		}
		text := "Reasoning: computed step by step.\nAnswer: " + answer
		return model.Response{Text: text, Raw: text}, nil
	}
}

func mathTrainset() []program.Example {
	return []program.Example{
		program.NewExample(map[string]string{"question": "What is 10 + 20?", "answer": "30"}).WithInputs("question"),
		program.NewExample(map[string]string{"question": "What is 5 * 5?", "answer": "25"}).WithInputs("question"),
		program.NewExample(map[string]string{"question": "What is 100 / 2?", "answer": "50"}).WithInputs("question"),
	}
}

// allCorrect maps every training question to its label.
func allCorrect() map[string]string {
	return map[string]string{
		"What is 10 + 20?": "30",
		"What is 5 * 5?":   "25",
		"What is 100 / 2?": "50",
	}
}

func newMathStudent(rt *program.Runtime) *program.Program {
	sig := program.MustParseSignature("question -> answer").WithInstruction("Solve the math problem.")
	return program.NewProgram(rt).Add("solve", program.ChainOfThought(rt, sig))
}
