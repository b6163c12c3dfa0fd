package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/audit"
	"github.com/ppiankov/triagewatch/internal/ingest"
	"github.com/ppiankov/triagewatch/internal/model"
)

var (
	triageEvents     string
	triageProcedures string
	triageDB         string
	triageCategory   string
	triageMaxResults int
	triageFormat     string
	triageOutput     string
	triageAuditLog   string
)

func init() {
	rootCmd.AddCommand(triageCmd)
	triageCmd.Flags().StringVarP(&triageEvents, "events", "e", "-", "Events file (JSON, JSON array or JSONL); - for stdin")
	triageCmd.Flags().StringVar(&triageProcedures, "procedures", "", "Procedure library YAML")
	triageCmd.Flags().StringVar(&triageDB, "db", "", "SQLite database holding procedures")
	triageCmd.Flags().StringVar(&triageCategory, "category", "", "Restrict procedures to a category")
	triageCmd.Flags().IntVar(&triageMaxResults, "max-results", 0, "Maximum procedures per event (default from config)")
	triageCmd.Flags().StringVarP(&triageFormat, "format", "f", "text", "Output format (text|json)")
	triageCmd.Flags().StringVarP(&triageOutput, "output", "o", "", "Also write JSON decisions to this file")
	triageCmd.Flags().StringVar(&triageAuditLog, "audit-log", "", "Append decisions to this hash-chained JSONL log")
}

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Classify events and apply matching procedures",
	Long: "Classifies each event, looks up matching standard operating procedures,\n" +
		"and prints the merged decision. Events are triaged in parallel;\n" +
		"output order matches input order.",
	RunE: runTriage,
}

func runTriage(cmd *cobra.Command, args []string) error {
	if triageFormat != "text" && triageFormat != "json" {
		return fmt.Errorf("unknown format %q: use text or json", triageFormat)
	}
	events, err := ingest.ReadFile(triageEvents, cmd.InOrStdin())
	if err != nil {
		return err
	}

	procs, err := openProcedures(triageProcedures, triageDB)
	if err != nil {
		return err
	}
	defer procs.Close()

	eng := newEngine(engineOptions{
		procedures: procs,
		category:   triageCategory,
		maxResults: triageMaxResults,
		cache:      true,
	})

	decisions, err := eng.TriageBatch(commandContext(cmd), events)
	if err != nil {
		return err
	}

	if triageAuditLog != "" {
		if err := recordDecisions(triageAuditLog, events, decisions); err != nil {
			return err
		}
	}

	if triageOutput != "" {
		if err := ingest.WriteJSON(triageOutput, decisions); err != nil {
			return fmt.Errorf("write %s: %w", triageOutput, err)
		}
	}

	out := cmd.OutOrStdout()
	if triageFormat == "json" {
		return writeJSON(out, decisions)
	}
	for i, d := range decisions {
		if i > 0 {
			fmt.Fprintln(out)
		}
		formatMergedText(out, d)
	}
	return nil
}

func recordDecisions(path string, events []model.Event, decisions []model.MergedDecision) error {
	l, err := audit.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()
	for i, d := range decisions {
		if err := l.RecordDecision(d, eventID(events[i]), configHash); err != nil {
			return err
		}
	}
	return nil
}
