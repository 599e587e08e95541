package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/pkg/memory"
)

var rememberCategory string

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a fact",
	Long: `Store a fact for later retrieval. Without --category the category is
inferred from the content.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemember,
}

func init() {
	rememberCmd.Flags().StringVar(&rememberCategory, "category", "", "fact category (personal, work, preference, general)")
	rootCmd.AddCommand(rememberCmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	fact, err := rt.memory.Remember(ctx, args[0], memory.Category(rememberCategory))
	if err != nil {
		observability.RecordMemoryAudit(ctx, "fact", "remember", "cli", "failure", nil)
		return err
	}

	observability.RecordMemoryAudit(ctx, "fact", "remember", "cli", "success", map[string]interface{}{
		"fact_id":  fact.ID,
		"category": string(fact.Category),
	})

	fmt.Printf("Remembered [%s] %s\n", fact.Category, fact.ID)
	if !fact.Embedded {
		fmt.Println("Note: stored without embedding, keyword matching only")
	}
	return nil
}
