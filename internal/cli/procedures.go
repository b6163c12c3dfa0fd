package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/sop"
	"github.com/ppiankov/triagewatch/internal/store"
)

var (
	proceduresDB       string
	proceduresFile     string
	proceduresCategory string
	proceduresFormat   string
)

func init() {
	proceduresCmd.PersistentFlags().StringVar(&proceduresDB, "db", "", "SQLite database holding procedures")
	proceduresListCmd.Flags().StringVar(&proceduresFile, "procedures", "", "Procedure library YAML")
	proceduresListCmd.Flags().StringVar(&proceduresCategory, "category", "", "Only list this category")
	proceduresListCmd.Flags().StringVarP(&proceduresFormat, "format", "f", "text", "Output format (text|json)")
	proceduresCmd.AddCommand(proceduresImportCmd, proceduresListCmd)
	rootCmd.AddCommand(proceduresCmd)
}

var proceduresCmd = &cobra.Command{
	Use:   "procedures",
	Short: "Manage the standard operating procedure library",
}

var proceduresImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import procedures from a YAML file into the database",
	Long:  "Validates each procedure and upserts it by id. Malformed procedures\nare reported and skipped; the rest are written in one transaction.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProceduresImport,
}

var proceduresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List procedures from the database or a library file",
	RunE:  runProceduresList,
}

func runProceduresImport(cmd *cobra.Command, args []string) error {
	if proceduresDB == "" {
		return fmt.Errorf("--db is required")
	}
	records, report, err := sop.LoadFile(args[0], logger)
	if err != nil {
		return err
	}

	db, err := store.OpenSQLite(proceduresDB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, skipped, err := db.ImportProcedures(commandContext(cmd), records)
	if err != nil {
		return err
	}
	for _, e := range skipped {
		logger.Warn("skipping malformed procedure", zap.Error(e))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d procedures into %s (%d skipped).\n", n, proceduresDB, len(report.Skipped)+len(skipped))
	return nil
}

func runProceduresList(cmd *cobra.Command, args []string) error {
	procs, err := openProcedures(proceduresFile, proceduresDB)
	if err != nil {
		return err
	}
	defer procs.Close()
	if procs.repo == nil {
		return fmt.Errorf("one of --db or --procedures is required")
	}

	records, err := procs.repo.Query(commandContext(cmd), nil, proceduresCategory)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch proceduresFormat {
	case "json":
		if records == nil {
			records = []model.ProcedureRecord{}
		}
		return writeJSON(out, records)
	case "text":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCATEGORY\tOVERRIDE\tTITLE\tTRIGGERS")
		for _, r := range records {
			override := "-"
			if r.PriorityOverride != nil {
				override = string(*r.PriorityOverride)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Category, override, r.Title, strings.Join(r.TriggerPhrases, ", "))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q: use text or json", proceduresFormat)
	}
}
