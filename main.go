package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"promptopt/database"
	"promptopt/dataset"
	"promptopt/model"
	"promptopt/optimize"
	"promptopt/program"
)

var (
	baseURL   string
	modelName string
	rateLimit float64
	saveRun   bool
	seed      int64
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:           "promptopt",
		Short:         "Optimize the instructions and few-shot demos of LM programs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:4000", "OpenAI-compatible endpoint, e.g. a LiteLLM proxy")
	root.PersistentFlags().StringVar(&modelName, "model", "gemma-3-27b-it", "model name to request")
	root.PersistentFlags().Float64Var(&rateLimit, "rps", 2, "max completion requests per second")
	root.PersistentFlags().BoolVar(&saveRun, "save", false, "persist the compiled program and trials to MongoDB")
	root.PersistentFlags().Int64Var(&seed, "seed", 0, "random seed for the trial search")

	root.AddCommand(bootstrapCmd(), miproCmd(), blogCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRuntime() (*program.Runtime, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "error: OPENAI_API_KEY environment variable is not set.")
		fmt.Fprintln(os.Stderr, "set it before running: export OPENAI_API_KEY='sk-...'")
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	client := model.NewClient(baseURL, key, modelName, model.WithRateLimit(rateLimit))
	return program.NewRuntime(client), nil
}

func mathSolver(rt *program.Runtime) *program.Program {
	sig := program.MustParseSignature("question -> answer").
		WithInstruction("Solve the math problem.")
	return program.NewProgram(rt).Add("solve", program.ChainOfThought(rt, sig))
}

// printLastPrompt dumps the most recent history entry, i.e. the exact
// prompt/response pair of the last invocation, as indented JSON.
func printLastPrompt(title string, rt *program.Runtime) {
	entry, ok := rt.History().Last()
	if !ok {
		fmt.Printf("\n%s %s %s\nNo history\n", strings.Repeat("=", 20), title, strings.Repeat("=", 20))
		return
	}
	printEntry(title, entry)
}

func persistRun(ctx context.Context, optimizer string, trials []optimize.Trial, compiled *program.Program) error {
	state, err := compiled.MarshalState()
	if err != nil {
		return err
	}
	if err := database.InitDB(ctx); err != nil {
		return err
	}
	defer func() {
		if err := database.CloseDB(ctx); err != nil {
			log.Error().Err(err).Msg("close db failed")
		}
	}()
	db := database.GetDBClient().Database("promptopt")
	rec := database.NewRunRecord(optimizer, trials, state)
	if err := database.SaveRun(ctx, db, rec); err != nil {
		return err
	}
	fmt.Printf("\nSaved run %s (best score %.3f)\n", rec.RunID, rec.BestScore)
	return nil
}

func bootstrapCmd() *cobra.Command {
	var maxDemos int
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap few-shot demos for the math solver from its own correct runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			trainset, _ := dataset.Split(dataset.Math(), 3)
			question := "What is 15 + 5 * 2?"

			fmt.Println("\n--- Zero-shot Execution ---")
			student := mathSolver(rt)
			pred, err := student.Forward(ctx, map[string]string{"question": question})
			if err != nil {
				return err
			}
			fmt.Printf("Question: %s\nAnswer: %s\n", question, pred.Get("answer"))
			preEntry, _ := rt.History().Last()

			fmt.Println("\n--- Optimizing... ---")
			teleprompter := &optimize.BootstrapFewShot{
				Metric:               optimize.SubstringMatch("answer"),
				MaxBootstrappedDemos: maxDemos,
			}
			compiled, err := teleprompter.Compile(ctx, student, trainset)
			if err != nil {
				return err
			}

			fmt.Println("\n--- Optimized Execution ---")
			predOpt, err := compiled.Forward(ctx, map[string]string{"question": question})
			if err != nil {
				return err
			}
			fmt.Printf("Question: %s\nAnswer: %s\nReasoning: %s\n", question, predOpt.Get("answer"), predOpt.Get("reasoning"))

			printEntry("Pre-Optimization Prompt", preEntry)
			printLastPrompt("Post-Optimization Prompt", rt)

			if saveRun {
				return persistRun(ctx, "bootstrap", nil, compiled)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDemos, "max-demos", 2, "max bootstrapped demos per predictor")
	return cmd
}

func printEntry(title string, entry program.Entry) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("dump history entry failed")
		return
	}
	fmt.Printf("\n%s %s %s\n%s\n%s\n", strings.Repeat("=", 20), title, strings.Repeat("=", 20), data, strings.Repeat("=", 45+len(title)))
}

func miproCmd() *cobra.Command {
	var (
		candidates  int
		trials      int
		maxBoot     int
		maxLabeled  int
		minibatch   bool
		batchSize   int
		parallelism int
	)
	cmd := &cobra.Command{
		Use:   "mipro",
		Short: "Jointly search instructions and few-shot demos for the math solver",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			trainset, _ := dataset.Split(dataset.Math(), 3)

			fmt.Println("\n--- Initializing joint instruction/demo search ---")
			m := &optimize.MIPRO{
				Metric:               optimize.SubstringMatch("answer"),
				NumCandidates:        candidates,
				MaxBootstrappedDemos: maxBoot,
				MaxLabeledDemos:      maxLabeled,
				NumTrials:            trials,
				Minibatch:            minibatch,
				MinibatchSize:        batchSize,
				Parallelism:          parallelism,
				Seed:                 seed,
			}
			fmt.Println("Compiling...")
			compiled, trialLog, err := m.Compile(ctx, mathSolver(rt), trainset)
			if err != nil {
				return err
			}
			for _, trial := range trialLog {
				fmt.Printf("trial %d: score %.3f\n", trial.Index, trial.Score)
			}

			fmt.Println("\n--- Optimized Execution ---")
			question := "What is 15 + 5 * 2?"
			pred, err := compiled.Forward(ctx, map[string]string{"question": question})
			if err != nil {
				return err
			}
			fmt.Printf("Question: %s\nAnswer: %s\nReasoning: %s\n", question, pred.Get("answer"), pred.Get("reasoning"))

			printLastPrompt("Optimized Prompt", rt)

			if saveRun {
				return persistRun(ctx, "mipro", trialLog, compiled)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&candidates, "candidates", 3, "instruction candidates per predictor")
	cmd.Flags().IntVar(&trials, "trials", 6, "trial budget")
	cmd.Flags().IntVar(&maxBoot, "bootstrapped", 0, "max bootstrapped demos per predictor")
	cmd.Flags().IntVar(&maxLabeled, "labeled", 0, "max labeled demos per predictor")
	cmd.Flags().BoolVar(&minibatch, "minibatch", false, "evaluate trials on a minibatch instead of the full trainset")
	cmd.Flags().IntVar(&batchSize, "minibatch-size", 0, "minibatch size (0 uses the default)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "concurrent example evaluations per trial")
	return cmd
}

func blogCmd() *cobra.Command {
	var (
		notesDir   string
		blogsDir   string
		candidates int
		trials     int
	)
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Optimize the zero-shot instruction of a notes-to-blog writer with an LM judge",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			trainset, err := dataset.LoadPairs(notesDir, blogsDir, "notes", "blog")
			if err != nil {
				return err
			}
			fmt.Printf("\n--- Loaded %d examples from %s ---\n", len(trainset), notesDir)

			sig := program.MustParseSignature("notes -> blog").
				WithInstruction(
					"You are a professional SEO writer. Based on the notes, write a blog post in Japanese that satisfies " +
						"the reader's search intent. Write in a friendly desu/masu style, state the conclusion first, use " +
						"Markdown headings, and add a short explanation for any technical term.").
				WithDescriptions(map[string]string{
					"notes": "bullet-point notes provided to the writer",
					"blog":  "the finished blog post in Markdown",
				})
			writer := program.NewProgram(rt).Add("write", program.ChainOfThought(rt, sig))

			testNotes := "- 良い睡眠をとるためには、寝る前のスマホを控える\n" +
				"- お風呂は就寝の90分前に済ませるのが理想\n" +
				"- 室温は20度〜25度くらいが快適\n" +
				"- 朝起きたら日光を浴びて体内時計をリセットする"

			fmt.Println("\n--- Capturing Initial Prompt (Before Optimization) ---")
			if _, err := writer.Forward(ctx, map[string]string{"notes": testNotes}); err != nil {
				log.Warn().Err(err).Msg("initial execution failed")
			}
			preEntry, _ := rt.History().Last()

			fmt.Println("\n--- Optimizing (instruction only, LM judge metric) ---")
			m := &optimize.MIPRO{
				Metric:        optimize.JudgeMetric(optimize.NewJudge(rt)),
				NumCandidates: candidates,
				NumTrials:     trials,
				Seed:          seed,
			}
			compiled, trialLog, err := m.Compile(ctx, writer, trainset)
			if err != nil {
				return err
			}
			for _, trial := range trialLog {
				fmt.Printf("trial %d: score %.3f\n", trial.Index, trial.Score)
			}

			fmt.Println("\n--- Optimized Execution Check ---")
			pred, err := compiled.Forward(ctx, map[string]string{"notes": testNotes})
			if err != nil {
				return err
			}
			fmt.Printf("\n%s Generated Blog %s\n%s\n%s\n", strings.Repeat("=", 20), strings.Repeat("=", 20), pred.Get("blog"), strings.Repeat("=", 56))

			printEntry("Initial Prompt (Before)", preEntry)
			printLastPrompt("Optimized Prompt (After)", rt)

			if saveRun {
				return persistRun(ctx, "mipro-blog", trialLog, compiled)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&notesDir, "notes-dir", "dataset/notes", "directory of note .txt files")
	cmd.Flags().StringVar(&blogsDir, "blogs-dir", "dataset/blogs", "directory of matching blog .txt files")
	cmd.Flags().IntVar(&candidates, "candidates", 3, "instruction candidates per predictor")
	cmd.Flags().IntVar(&trials, "trials", 4, "trial budget")
	return cmd
}
