package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/pkg/memory"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <query>",
	Short: "Delete the fact best matching a query",
	Long: `Delete the single fact that best matches the query, provided the match
is confident enough. Preferences and conversation summaries are not affected.`,
	Args: cobra.ExactArgs(1),
	RunE: runForget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	fact, err := rt.memory.Forget(ctx, args[0])
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			fmt.Println("No fact matched confidently enough to forget.")
			return nil
		}
		observability.RecordMemoryAudit(ctx, "fact", "forget", "cli", "failure", nil)
		return err
	}

	observability.RecordMemoryAudit(ctx, "fact", "forget", "cli", "success", map[string]interface{}{
		"fact_id": fact.ID,
	})

	fmt.Printf("Forgot: %s\n", fact.Content)
	return nil
}
