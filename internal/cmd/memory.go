package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rand/memento/internal/agent"
	"github.com/rand/memento/internal/batch"
	"github.com/rand/memento/internal/memory/casebank"
	"github.com/rand/memento/internal/memory/retrieval"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Case memory commands",
	Long:  "Inspect the case bank that past graded queries are written to.",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank stored cases against a query",
	Long:  "Score every stored case against the query and print the best matches. Uses the trained relevance head when configured, cosine similarity otherwise.",
	Example: `
# Find cases relevant to a new question
memento memory search "capital of France"

# More results, as JSON
memento memory search -n 20 -j "population of Oslo"
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		store, err := casebank.NewStore(cfg.Memory.Dir)
		if err != nil {
			return err
		}
		src, err := searchSource(store, limit)
		if err != nil {
			return err
		}

		cases, err := src.Retrieve(ctx, args[0])
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cases)
		}
		if len(cases) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No cases stored yet.")
			return nil
		}
		for i, c := range cases {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%.3f] (%s) %s\n", i+1, c.Score, c.Label, c.Query)
		}
		return nil
	},
}

// searchSource ranks with the trained head when one is configured and
// falls back to cosine similarity otherwise, so search works on a fresh
// install before any head has been trained.
func searchSource(store *casebank.Store, limit int) (agent.CaseSource, error) {
	if cfg.Memory.HeadPath != "" {
		return buildMemorySource(store, limit)
	}
	provider, err := buildProvider()
	if err != nil {
		return nil, err
	}
	return batch.NewMemorySource(store, retrieval.NewRetriever(provider, nil), limit), nil
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show case bank statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := casebank.NewStore(cfg.Memory.Dir)
		if err != nil {
			return err
		}

		_, meta, err := store.LoadPool()
		if err != nil && !errors.Is(err, casebank.ErrNoPool) && !errors.Is(err, casebank.ErrEmptyPool) {
			return err
		}

		counts := map[casebank.Label]int{}
		for _, m := range meta {
			counts[m.Label]++
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Pool:     %s\n", store.PoolPath())
		fmt.Fprintf(out, "Cases:    %d\n", len(meta))
		fmt.Fprintf(out, "Positive: %d\n", counts[casebank.LabelPositive])
		fmt.Fprintf(out, "Negative: %d\n", counts[casebank.LabelNegative])
		fmt.Fprintf(out, "Unknown:  %d\n", counts[casebank.LabelUnknown])
		return nil
	},
}

func init() {
	memorySearchCmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	memorySearchCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	memoryCmd.AddCommand(memorySearchCmd, memoryStatsCmd)
	rootCmd.AddCommand(memoryCmd)
}
