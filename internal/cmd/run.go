package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rand/memento/internal/agent"
	"github.com/rand/memento/internal/batch"
)

var runCmd = &cobra.Command{
	Use:   "run <dataset.jsonl>",
	Short: "Run a question dataset through the agent",
	Long: `Process every question in a JSONL dataset, grade each answer against
its ground truth and write labeled cases back to the memory pool.
Questions already present in the result log are skipped, so an
interrupted run can be resumed by running the same command again.`,
	Example: `
# Run a dataset
memento run questions.jsonl

# Resume with a custom result log
memento run --results results/run1.jsonl questions.jsonl
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resultPath, _ := cmd.Flags().GetString("results")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		examples, err := batch.LoadDataset(args[0])
		if err != nil {
			return err
		}
		if len(examples) == 0 {
			return fmt.Errorf("dataset %s is empty", args[0])
		}

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		runner := batch.NewRunner(processorFunc(a.process), a.judge, a.store, resultPath)
		stats, err := runner.Run(ctx, examples)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"Processed %d (correct %d), skipped %d, failed %d\n",
			stats.Processed, stats.Correct, stats.Skipped, stats.Failed)
		return nil
	},
}

type processorFunc func(ctx context.Context, query string) (*agent.QueryRecord, error)

func (f processorFunc) ProcessQuery(ctx context.Context, query string) (*agent.QueryRecord, error) {
	return f(ctx, query)
}

func init() {
	runCmd.Flags().StringP("results", "r", "result.jsonl", "Result log path")
	rootCmd.AddCommand(runCmd)
}
