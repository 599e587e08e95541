package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	stats, err := rt.memory.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Facts:       %d\n", stats.Facts)
	fmt.Printf("Preferences: %d\n", stats.Preferences)
	fmt.Printf("Summaries:   %d\n", stats.Summaries)
	fmt.Printf("Database:    %s\n", stats.DBPath)
	return nil
}
