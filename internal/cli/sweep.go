package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramkit/engram/internal/observability"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a retention sweep now",
	Long: `Run one retention pass immediately: evict facts over the cap (oldest
first) and expire conversation summaries past the retention window.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	res, err := rt.memory.Sweep(ctx)
	if err != nil {
		return err
	}

	observability.RecordMemoryAudit(ctx, "retention", "sweep", "cli", "success", map[string]interface{}{
		"facts_evicted":     res.FactsEvicted,
		"summaries_evicted": res.SummariesEvicted,
	})

	fmt.Printf("Evicted %d facts, expired %d summaries\n", res.FactsEvicted, res.SummariesEvicted)
	return nil
}
