package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	ignore "github.com/sabhiram/go-gitignore"

	"promptopt/program"
)

// Math returns the built-in arithmetic dataset: question/answer pairs with
// the question marked as input.
func Math() []program.Example {
	pairs := []struct{ question, answer string }{
		{"What is 10 + 20?", "30"},
		{"What is 5 * 5?", "25"},
		{"What is 100 / 2?", "50"},
		{"What is 12 - 4?", "8"},
		{"What is 3 + 2 * 4?", "11"},
	}
	examples := make([]program.Example, 0, len(pairs))
	for _, p := range pairs {
		ex := program.NewExample(map[string]string{
			"question": p.question,
			"answer":   p.answer,
		}).WithInputs("question")
		examples = append(examples, ex)
	}
	return examples
}

// Split divides examples into a training prefix of n examples and a
// validation remainder.
func Split(examples []program.Example, n int) (train, val []program.Example) {
	if n > len(examples) {
		n = len(examples)
	}
	return examples[:n], examples[n:]
}

// LoadPairs walks inputDir and pairs every .txt file with the equally named
// file in labelDir, producing one example per pair with inputField marked
// as input. Files matched by a .gitignore in inputDir are skipped; files
// without a label counterpart are skipped with a log entry.
func LoadPairs(inputDir, labelDir, inputField, labelField string) ([]program.Example, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	ig, err := ignore.CompileIgnoreFile(filepath.Join(inputDir, ".gitignore"))
	if err != nil {
		ig = nil
	}

	var examples []program.Example
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		if ig != nil && ig.MatchesPath(name) {
			continue
		}
		labelPath := filepath.Join(labelDir, name)
		if _, err := os.Stat(labelPath); err != nil {
			log.Warn().Str("file", name).Msg("no label counterpart, skipping")
			continue
		}
		input, err := os.ReadFile(filepath.Join(inputDir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		label, err := os.ReadFile(labelPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", labelPath, err)
		}
		ex := program.NewExample(map[string]string{
			inputField: strings.TrimSpace(string(input)),
			labelField: strings.TrimSpace(string(label)),
		}).WithInputs(inputField)
		examples = append(examples, ex)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no paired examples found under %s and %s", inputDir, labelDir)
	}
	return examples, nil
}
