package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/pkg/memory"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage exact key/value preferences",
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference (last write wins)",
	Long: `Set a preference. The value is stored as a JSON value when it parses as
one (number, bool, object), otherwise as a string.`,
	Args: cobra.ExactArgs(2),
	RunE: runPrefsSet,
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a preference",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefsGet,
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsList,
}

var prefsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a preference",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefsDelete,
}

func init() {
	prefsCmd.AddCommand(prefsSetCmd, prefsGetCmd, prefsListCmd, prefsDeleteCmd)
	rootCmd.AddCommand(prefsCmd)
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	key, raw := args[0], args[1]

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	ctx := cmd.Context()
	if err := rt.memory.SetPreference(ctx, key, value); err != nil {
		observability.RecordMemoryAudit(ctx, "preference", "set", "cli", "failure", map[string]interface{}{"key": key})
		return err
	}

	observability.RecordMemoryAudit(ctx, "preference", "set", "cli", "success", map[string]interface{}{"key": key})
	fmt.Printf("Set %s\n", key)
	return nil
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	pref, err := rt.memory.GetPreference(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return fmt.Errorf("preference %q not found", args[0])
		}
		return err
	}

	encoded, _ := json.Marshal(pref.Value)
	fmt.Printf("%s = %s (updated %s)\n", pref.Key, encoded, pref.UpdatedAt.Format("2006-01-02 15:04"))
	return nil
}

func runPrefsList(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	prefs, err := rt.memory.AllPreferences(cmd.Context())
	if err != nil {
		return err
	}

	if len(prefs) == 0 {
		fmt.Println("No preferences set.")
		return nil
	}

	for _, pref := range prefs {
		encoded, _ := json.Marshal(pref.Value)
		fmt.Printf("%s = %s\n", pref.Key, encoded)
	}
	return nil
}

func runPrefsDelete(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	deleted, err := rt.memory.DeletePreference(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("Preference %q was not set.\n", args[0])
		return nil
	}

	observability.RecordMemoryAudit(ctx, "preference", "delete", "cli", "success", map[string]interface{}{"key": args[0]})
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
