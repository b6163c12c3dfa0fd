package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/classify"
	"github.com/ppiankov/triagewatch/internal/ingest"
	"github.com/ppiankov/triagewatch/internal/model"
)

var (
	classifyEvents string
	classifyFormat string
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVarP(&classifyEvents, "events", "e", "-", "Events file (JSON, JSON array or JSONL); - for stdin")
	classifyCmd.Flags().StringVarP(&classifyFormat, "format", "f", "text", "Output format (text|json)")
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify events without consulting procedures",
	Long:  "Runs the rule-based classifier on each event and prints the triage decision.",
	RunE:  runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	events, err := ingest.ReadFile(classifyEvents, cmd.InOrStdin())
	if err != nil {
		return err
	}

	c := classify.New(classify.Config{Timelines: cfg.Classifier.Timelines})
	decisions := make([]model.TriageDecision, 0, len(events))
	for _, ev := range events {
		decisions = append(decisions, c.Classify(ev))
	}

	out := cmd.OutOrStdout()
	switch classifyFormat {
	case "json":
		return writeJSON(out, decisions)
	case "text":
		for i, d := range decisions {
			if i > 0 {
				fmt.Fprintln(out)
			}
			formatDecisionText(out, d)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q: use text or json", classifyFormat)
	}
}
