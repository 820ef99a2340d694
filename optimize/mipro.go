package optimize

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strconv"

	"github.com/rs/zerolog/log"

	"promptopt/program"
)

const (
	defaultMinibatchSize = 8
	defaultParallelism   = 4
	exploreProbability   = 0.25
	maxProposalAttempts  = 16
)

// proposer tips, rotated across instruction candidates so the generated
// pool covers different styles.
var instructionTips = []string{
	"Be concise and direct.",
	"Be very specific about the expected output format.",
	"Encourage careful step by step reasoning.",
	"Rephrase the task from a different angle.",
	"Add constraints that prevent common mistakes.",
}

// MIPRO jointly searches candidate instructions and candidate demonstration
// sets for every predictor of the student program, evaluating combinations
// against the metric over a budgeted number of trials.
type MIPRO struct {
	Metric               Metric
	NumCandidates        int
	MaxBootstrappedDemos int
	MaxLabeledDemos      int
	NumTrials            int
	Minibatch            bool
	MinibatchSize        int
	Parallelism          int
	Seed                 int64
}

// Assignment selects one instruction candidate and one demo-set candidate
// for a single predictor.
type Assignment struct {
	Instruction int `json:"instruction"`
	DemoSet     int `json:"demo_set"`
}

// Trial is one evaluated configuration: an assignment per predictor, in
// program order, plus the averaged score it obtained.
type Trial struct {
	Index  int          `json:"index"`
	Config []Assignment `json:"config"`
	Score  float64      `json:"score"`
}

// BestTrial returns the best-scoring trial; ties keep the earliest.
func BestTrial(trials []Trial) (Trial, bool) {
	if len(trials) == 0 {
		return Trial{}, false
	}
	best := trials[0]
	for _, t := range trials[1:] {
		if t.Score > best.Score {
			best = t
		}
	}
	return best, true
}

func (m *MIPRO) validate(trainset []program.Example) error {
	if m.Metric == nil {
		return &ConfigurationError{Reason: "metric is required"}
	}
	if m.NumCandidates <= 0 {
		return &ConfigurationError{Reason: "num candidates must be > 0"}
	}
	if m.NumTrials <= 0 {
		return &ConfigurationError{Reason: "num trials must be > 0"}
	}
	if m.MaxBootstrappedDemos < 0 || m.MaxLabeledDemos < 0 {
		return &ConfigurationError{Reason: "demo bounds must be >= 0"}
	}
	if len(trainset) == 0 {
		return &ConfigurationError{Reason: "training set is empty"}
	}
	return nil
}

// candidates is the per-predictor search space.
type candidates struct {
	instructions []string
	demoSets     [][]program.Demo
}

// Compile runs the joint search and returns the compiled program together
// with every recorded trial. Trial 0 always evaluates the unmodified
// baseline configuration, so the returned program never scores below
// zero-shot on the evaluated batches.
func (m *MIPRO) Compile(ctx context.Context, student *program.Program, trainset []program.Example) (*program.Program, []Trial, error) {
	if err := m.validate(trainset); err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(m.Seed))

	space, err := m.buildCandidates(ctx, student, trainset, rng)
	if err != nil {
		return nil, nil, err
	}

	parallelism := m.Parallelism
	if parallelism == 0 {
		parallelism = defaultParallelism
	}

	names := student.Names()
	var trials []Trial
	var best Trial
	seen := map[string]bool{}
	for t := 0; t < m.NumTrials; t++ {
		config := m.propose(rng, t, names, space, seen, best)
		if config == nil {
			log.Info().Int("trials", t).Msg("candidate space exhausted, stopping early")
			break
		}
		seen[configKey(config)] = true

		batch := trainset
		if m.Minibatch {
			batch = m.drawMinibatch(rng, trainset)
		}
		candidate := m.apply(student, config, names, space)
		res, err := Evaluate(ctx, candidate, batch, m.Metric, parallelism)
		if err != nil {
			return nil, nil, err
		}
		trial := Trial{Index: t, Config: config, Score: res.Mean}
		trials = append(trials, trial)
		log.Info().Int("trial", t).Float64("score", trial.Score).Msg("trial evaluated")
		if t == 0 || trial.Score > best.Score {
			best = trial
		}
	}

	compiled := m.apply(student, best.Config, names, space)
	return compiled, trials, nil
}

// buildCandidates generates the instruction pool and the demo-set pool for
// every predictor. Candidate 0 of each dimension is always the baseline:
// the student's current instruction and the empty demo set.
func (m *MIPRO) buildCandidates(ctx context.Context, student *program.Program, trainset []program.Example, rng *rand.Rand) (map[string]*candidates, error) {
	var bootstrapped map[string][]program.Demo
	if m.MaxBootstrappedDemos > 0 {
		b := &BootstrapFewShot{Metric: m.Metric, MaxBootstrappedDemos: m.MaxBootstrappedDemos}
		var err error
		bootstrapped, err = b.collect(ctx, student, trainset)
		if err != nil {
			return nil, err
		}
	}

	space := make(map[string]*candidates, len(student.Names()))
	for _, name := range student.Names() {
		pred := student.Get(name)
		instructions, err := m.proposeInstructions(ctx, student.Runtime(), pred, trainset)
		if err != nil {
			return nil, err
		}
		space[name] = &candidates{
			instructions: instructions,
			demoSets:     m.buildDemoSets(rng, bootstrapped[name], trainset),
		}
	}
	return space, nil
}

// buildDemoSets combines bootstrapped demonstrations with directly sampled
// labeled examples. Set 0 is always empty; when both bounds are zero the
// search degenerates to instruction-only optimization.
func (m *MIPRO) buildDemoSets(rng *rand.Rand, bootstrapped []program.Demo, trainset []program.Example) [][]program.Demo {
	sets := [][]program.Demo{nil}
	if m.MaxBootstrappedDemos == 0 && m.MaxLabeledDemos == 0 {
		return sets
	}
	for i := 1; i < m.NumCandidates; i++ {
		var set []program.Demo
		if len(bootstrapped) > 0 {
			take := m.MaxBootstrappedDemos
			if take > len(bootstrapped) {
				take = len(bootstrapped)
			}
			for _, idx := range rng.Perm(len(bootstrapped))[:take] {
				set = append(set, bootstrapped[idx])
			}
		}
		if m.MaxLabeledDemos > 0 {
			take := m.MaxLabeledDemos
			if take > len(trainset) {
				take = len(trainset)
			}
			for _, idx := range rng.Perm(len(trainset))[:take] {
				ex := trainset[idx]
				set = append(set, program.Demo{Inputs: ex.Inputs(), Outputs: ex.Labels()})
			}
		}
		if len(set) > 0 {
			sets = append(sets, set)
		}
	}
	return sets
}

// proposeInstructions returns NumCandidates instruction strings for pred.
// Candidate 0 is the predictor's current instruction; the rest come from
// the instruction-proposer program, which runs under the ordinary predictor
// contract and therefore logs history like everything else.
func (m *MIPRO) proposeInstructions(ctx context.Context, rt *program.Runtime, pred *program.Predictor, trainset []program.Example) ([]string, error) {
	instructions := []string{pred.Instruction()}
	if m.NumCandidates == 1 {
		return instructions, nil
	}
	proposer := newProposer(rt)
	examples := formatExamples(trainset)
	for i := 1; i < m.NumCandidates; i++ {
		tip := instructionTips[(i-1)%len(instructionTips)]
		out, err := proposer.Forward(ctx, map[string]string{
			"current_instruction": pred.Instruction(),
			"task_examples":       examples,
			"tip":                 tip,
		})
		if err != nil {
			var perr *program.ParseError
			if errors.As(err, &perr) {
				log.Warn().Err(err).Int("candidate", i).Msg("instruction proposal unparseable, reusing current instruction")
				instructions = append(instructions, pred.Instruction())
				continue
			}
			return nil, err
		}
		instructions = append(instructions, out.Get("proposed_instruction"))
	}
	return instructions, nil
}

func newProposer(rt *program.Runtime) *program.Program {
	sig := program.MustParseSignature("current_instruction, task_examples, tip -> proposed_instruction").
		WithInstruction(
			"You write instructions for language model programs. Given the current instruction and some worked " +
				"examples of the task, propose a new instruction that will make a language model solve the task more reliably. " +
				"Answer with the new instruction only.").
		WithDescriptions(map[string]string{
			"current_instruction":  "the instruction the program uses today",
			"task_examples":        "worked input/output examples of the task",
			"tip":                  "a style hint for the proposal",
			"proposed_instruction": "the improved instruction",
		})
	return program.NewProgram(rt).Add("propose", program.NewPredictor(rt, sig))
}

func formatExamples(trainset []program.Example) string {
	var buf bytes.Buffer
	limit := 3
	if len(trainset) < limit {
		limit = len(trainset)
	}
	for i := 0; i < limit; i++ {
		example := trainset[i]
		for _, name := range example.FieldNames() {
			buf.WriteString(name)
			buf.WriteString(": ")
			buf.WriteString(example.Get(name))
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// propose picks the next configuration to evaluate. Trial 0 is the
// baseline. Later trials explore randomly with a fixed probability and
// otherwise mutate one dimension of the best configuration seen so far.
// The choice is deterministic under a fixed seed and never repeats an
// already-evaluated configuration while unexplored ones remain; a nil
// return means the space is exhausted.
func (m *MIPRO) propose(rng *rand.Rand, t int, names []string, space map[string]*candidates, seen map[string]bool, best Trial) []Assignment {
	if t == 0 {
		return make([]Assignment, len(names))
	}
	for attempt := 0; attempt < maxProposalAttempts; attempt++ {
		var config []Assignment
		if rng.Float64() < exploreProbability || len(best.Config) != len(names) {
			config = m.randomConfig(rng, names, space)
		} else {
			config = append([]Assignment(nil), best.Config...)
			i := rng.Intn(len(names))
			c := space[names[i]]
			if rng.Intn(2) == 0 {
				config[i].Instruction = rng.Intn(len(c.instructions))
			} else {
				config[i].DemoSet = rng.Intn(len(c.demoSets))
			}
		}
		if !seen[configKey(config)] {
			return config
		}
	}
	return firstUnseen(names, space, seen)
}

func (m *MIPRO) randomConfig(rng *rand.Rand, names []string, space map[string]*candidates) []Assignment {
	config := make([]Assignment, len(names))
	for i, name := range names {
		c := space[name]
		config[i] = Assignment{
			Instruction: rng.Intn(len(c.instructions)),
			DemoSet:     rng.Intn(len(c.demoSets)),
		}
	}
	return config
}

// firstUnseen scans the configuration space in lexicographic order.
func firstUnseen(names []string, space map[string]*candidates, seen map[string]bool) []Assignment {
	config := make([]Assignment, len(names))
	for {
		if !seen[configKey(config)] {
			return config
		}
		if !increment(config, names, space) {
			return nil
		}
	}
}

func increment(config []Assignment, names []string, space map[string]*candidates) bool {
	for i := len(config) - 1; i >= 0; i-- {
		c := space[names[i]]
		if config[i].DemoSet+1 < len(c.demoSets) {
			config[i].DemoSet++
			return true
		}
		config[i].DemoSet = 0
		if config[i].Instruction+1 < len(c.instructions) {
			config[i].Instruction++
			return true
		}
		config[i].Instruction = 0
	}
	return false
}

func configKey(config []Assignment) string {
	var buf bytes.Buffer
	for _, a := range config {
		buf.WriteString(strconv.Itoa(a.Instruction))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(a.DemoSet))
		buf.WriteByte('|')
	}
	return buf.String()
}

func (m *MIPRO) drawMinibatch(rng *rand.Rand, trainset []program.Example) []program.Example {
	size := m.MinibatchSize
	if size <= 0 {
		size = defaultMinibatchSize
	}
	if size >= len(trainset) {
		return trainset
	}
	batch := make([]program.Example, 0, size)
	for _, idx := range rng.Perm(len(trainset))[:size] {
		batch = append(batch, trainset[idx])
	}
	return batch
}

// apply assembles a compiled copy of student carrying the configuration.
// Assignments are aligned with the program's declared predictor order, so
// no rng draw ever depends on map iteration order.
func (m *MIPRO) apply(student *program.Program, config []Assignment, names []string, space map[string]*candidates) *program.Program {
	compiled := student.Clone(student.Runtime())
	for i, name := range names {
		c := space[name]
		pred := compiled.Get(name)
		pred.SetInstruction(c.instructions[config[i].Instruction])
		pred.SetDemos(c.demoSets[config[i].DemoSet])
	}
	return compiled
}
