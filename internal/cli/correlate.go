package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/engine"
	"github.com/ppiankov/triagewatch/internal/ingest"
	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/store"
)

var (
	correlateDB       string
	correlateBadges   string
	correlateLocation string
	correlateAt       string
	correlateWindow   int
	correlateAnomaly  string
	correlateFormat   string
)

func init() {
	rootCmd.AddCommand(correlateCmd)
	correlateCmd.Flags().StringVar(&correlateDB, "db", "", "SQLite database holding badge events")
	correlateCmd.Flags().StringVar(&correlateBadges, "badges", "", "JSON file with badge events")
	correlateCmd.Flags().StringVar(&correlateLocation, "location", "", "Anomaly location (required)")
	correlateCmd.Flags().StringVar(&correlateAt, "at", "", "Anomaly time, RFC3339 (required)")
	correlateCmd.Flags().IntVar(&correlateWindow, "window", 0, "Correlation window in seconds, 30..60 (default from config)")
	correlateCmd.Flags().StringVar(&correlateAnomaly, "anomaly-id", "", "Anomaly event ID (generated if empty)")
	correlateCmd.Flags().StringVarP(&correlateFormat, "format", "f", "text", "Output format (text|json)")
	correlateCmd.MarkFlagRequired("location")
	correlateCmd.MarkFlagRequired("at")
}

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Correlate an access anomaly with badge activity",
	Long: "Looks up badge events near the anomaly location and time, scores\n" +
		"their timing, and assesses the risk. Badge events come from --db or\n" +
		"a --badges JSON file. An unreadable source yields a degraded result.",
	RunE: runCorrelate,
}

// badgeList serves a fixed set of badge events.
type badgeList []model.BadgeEvent

func (b badgeList) EventsNear(_ context.Context, _ string, _ time.Time, _ time.Duration) ([]model.BadgeEvent, error) {
	return b, nil
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	at, err := time.Parse(time.RFC3339, correlateAt)
	if err != nil {
		return fmt.Errorf("invalid --at time %q: %w", correlateAt, err)
	}
	anomaly := model.Anomaly{ID: correlateAnomaly, Location: correlateLocation, Timestamp: at}
	if anomaly.ID == "" {
		anomaly.ID = uuid.NewString()
	}

	var src engine.BadgeEventSource
	switch {
	case correlateDB != "" && correlateBadges != "":
		return fmt.Errorf("use either --db or --badges, not both")
	case correlateDB != "":
		db, err := store.OpenSQLite(correlateDB)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		src = db
	case correlateBadges != "":
		data, err := os.ReadFile(correlateBadges)
		if err != nil {
			return fmt.Errorf("read badges %s: %w", correlateBadges, err)
		}
		badges, err := ingest.DecodeBadges(data)
		if err != nil {
			return err
		}
		src = badgeList(badges)
	}

	window := correlateWindow
	if window == 0 {
		window = cfg.Correlation.WindowSeconds
	}

	eng := newEngine(engineOptions{})
	res := eng.Correlate(commandContext(cmd), src, anomaly, window)

	out := cmd.OutOrStdout()
	switch correlateFormat {
	case "json":
		return writeJSON(out, res)
	case "text":
		fmt.Fprintln(out, res.Summary)
		if res.SourceError != "" {
			fmt.Fprintf(out, "\nWARNING: badge source unavailable: %s\n", res.SourceError)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q: use text or json", correlateFormat)
	}
}
