package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dyah/lintas/internal/config"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions stored in the storage root",
	Long: `List the session names with credential storage under the configured
storage root. Works offline; it does not require a running daemon.`,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	names, err := listStoredSessions(cfg.StorageRoot)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

// listStoredSessions returns the session names found under root, sorted.
// Files that do not round-trip through the naming scheme are skipped.
func listStoredSessions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	resolver := sessions.NewResolver(root)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := resolver.Name(filepath.Join(root, entry.Name())); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
