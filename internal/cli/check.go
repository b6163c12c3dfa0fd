package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/scenario"
)

var (
	checkScenario string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run triage assertions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, triages each\n" +
		"case's event, and reports pass/fail against the expectations.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.\n" +
		"Use in CI to gate changes to rules and procedures.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	results, err := checkScenarios(cmd)
	if err != nil {
		return err
	}

	// Exit 1 if any scenario has failures
	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}
	return nil
}

func checkScenarios(cmd *cobra.Command) ([]*scenario.RunResult, error) {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(commandContext(cmd), path, cfg.Classifier.Timelines, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	switch checkFormat {
	case "json":
		s, err := scenario.FormatJSON(results)
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, scenario.FormatText(results))
	}
	return results, nil
}
