package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recallLimit int

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Retrieve stored memories matching a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecall,
}

func init() {
	recallCmd.Flags().IntVar(&recallLimit, "limit", 0, "maximum results (default from config)")
	rootCmd.AddCommand(recallCmd)
}

func runRecall(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	results, err := rt.memory.Recall(cmd.Context(), args[0], recallLimit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}

	for i, r := range results {
		switch {
		case r.Fact != nil:
			fmt.Printf("%2d. %.2f [%s] %s\n", i+1, r.Relevance, r.Fact.Category, r.Fact.Content)
		case r.Summary != nil:
			fmt.Printf("%2d. %.2f [conversation %s] %s\n",
				i+1, r.Relevance, r.Summary.CreatedAt.Format("2006-01-02"), r.Summary.Summary)
		case r.Preference != nil:
			fmt.Printf("%2d. %.2f [setting] %s: %v\n",
				i+1, r.Relevance, r.Preference.Key, r.Preference.Value)
		}
	}
	return nil
}
