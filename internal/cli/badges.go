package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/ingest"
	"github.com/ppiankov/triagewatch/internal/store"
)

var badgesDB string

func init() {
	badgesCmd.PersistentFlags().StringVar(&badgesDB, "db", "", "SQLite database holding badge events")
	badgesCmd.AddCommand(badgesImportCmd)
	rootCmd.AddCommand(badgesCmd)
}

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "Manage badge activity used for correlation",
}

var badgesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import badge events from a JSON file into the database",
	Long: "Reads a JSON array of badge events and inserts them in one transaction.\n" +
		"Each event needs badge_id and timestamp; a missing event_id is generated.\n" +
		"Any invalid or duplicate event aborts the import.",
	Args: cobra.ExactArgs(1),
	RunE: runBadgesImport,
}

func runBadgesImport(cmd *cobra.Command, args []string) error {
	if badgesDB == "" {
		return fmt.Errorf("--db is required")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read badges %s: %w", args[0], err)
	}
	badges, err := ingest.DecodeBadges(data)
	if err != nil {
		return err
	}

	db, err := store.OpenSQLite(badgesDB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := db.ImportBadgeEvents(commandContext(cmd), badges)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d badge events into %s.\n", n, badgesDB)
	return nil
}
