package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rand/memento/internal/agent"
	"github.com/rand/memento/internal/memory/casebank"
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer a single question",
	Long:  "Run one question through the planner/executor loop and print the answer.",
	Example: `
# Ask directly
memento ask "What year was the Eiffel Tower completed?"

# Show the generated plan as well
memento ask --plan "Compare the populations of Oslo and Helsinki"

# Save the outcome to case memory with a manual grade
memento ask --label positive "What year was the Eiffel Tower completed?"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showPlan, _ := cmd.Flags().GetBool("plan")
		labelFlag, _ := cmd.Flags().GetString("label")

		var label casebank.Label
		if labelFlag != "" {
			var err error
			if label, err = parseCaseLabel(labelFlag); err != nil {
				return err
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		question := strings.Join(args, " ")
		rec, err := a.process(ctx, question)
		if err != nil {
			return err
		}

		if showPlan && rec.PlanJSON != "" {
			fmt.Fprintln(cmd.OutOrStdout(), rec.PlanJSON)
		}
		fmt.Fprintln(cmd.OutOrStdout(), rec.Answer)

		// Interactive queries skip the judge; write back only when the
		// user grades the outcome themselves.
		if label != "" {
			if err := a.store.SaveEntry(question, rec.PlanJSON, label); err != nil {
				return fmt.Errorf("save case: %w", err)
			}
		}
		return nil
	},
}

// parseCaseLabel validates the user-supplied grade.
func parseCaseLabel(s string) (casebank.Label, error) {
	switch casebank.Label(strings.ToLower(s)) {
	case casebank.LabelPositive:
		return casebank.LabelPositive, nil
	case casebank.LabelNegative:
		return casebank.LabelNegative, nil
	default:
		return "", fmt.Errorf("invalid label %q: must be positive or negative", s)
	}
}

// process runs one query and completes its trace row when tracing is on.
// The trace store registers the query itself via the Recorder hooks.
func (a *app) process(ctx context.Context, query string) (*agent.QueryRecord, error) {
	rec, err := a.orchestrator.ProcessQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if a.traceStore != nil {
		a.traceStore.FinishQuery(rec)
	}
	return rec, nil
}

func init() {
	askCmd.Flags().BoolP("plan", "p", false, "Print the final plan before the answer")
	askCmd.Flags().StringP("label", "l", "", "Write the outcome back to case memory as positive or negative")
	rootCmd.AddCommand(askCmd)
}
