package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/classify"
	"github.com/ppiankov/triagewatch/internal/engine"
	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/sop"
	"github.com/ppiankov/triagewatch/internal/store"
)

// procedureSource is the procedure repository selected by --procedures or --db.
type procedureSource struct {
	repo    sop.Repository
	library *sop.Library // set for --procedures
	db      *store.SQLite
}

func (p *procedureSource) Close() {
	if p.db != nil {
		_ = p.db.Close()
	}
}

// openProcedures opens at most one repository. Neither flag means no
// procedure consultation.
func openProcedures(proceduresPath, dbPath string) (*procedureSource, error) {
	switch {
	case proceduresPath != "" && dbPath != "":
		return nil, fmt.Errorf("use either --procedures or --db, not both")
	case proceduresPath != "":
		lib := sop.NewLibrary(nil)
		report, err := lib.Load(proceduresPath, logger)
		if err != nil {
			return nil, err
		}
		logger.Sugar().Infow("procedure library loaded", "path", proceduresPath, "loaded", report.Loaded, "skipped", len(report.Skipped))
		return &procedureSource{repo: lib, library: lib}, nil
	case dbPath != "":
		db, err := store.OpenSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return &procedureSource{repo: db, db: db}, nil
	default:
		return &procedureSource{}, nil
	}
}

type engineOptions struct {
	procedures *procedureSource
	category   string
	maxResults int
	cache      bool
	registry   prometheus.Registerer
}

func newEngine(opts engineOptions) *engine.Engine {
	ec := engine.Config{
		Classifier: classify.New(classify.Config{Timelines: cfg.Classifier.Timelines}),
		Logger:     logger,
		Metrics:    engine.NewMetrics(opts.registry),
		Category:   cfg.Matcher.Category,
		MaxResults: cfg.Matcher.MaxResults,
		Workers:    cfg.Batch.Workers,
	}
	if opts.category != "" {
		ec.Category = opts.category
	}
	if opts.maxResults > 0 {
		ec.MaxResults = opts.maxResults
	}
	if opts.procedures != nil && opts.procedures.repo != nil {
		ec.Matcher = sop.NewMatcher(opts.procedures.repo, logger)
	}
	if opts.cache {
		ec.Cache = engine.NewCache(cfg.Cache.Size, cfg.Cache.TTL)
	}
	return engine.New(ec)
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func formatDecisionText(w io.Writer, d model.TriageDecision) {
	writeDecisionText(w, d, d.RecommendedActions)
}

func writeDecisionText(w io.Writer, d model.TriageDecision, actions []string) {
	fmt.Fprintf(w, "%-8s priority %2d  %s\n", d.ThreatLevel, d.PriorityScore, d.Summary)
	fmt.Fprintf(w, "  timeline:   %s\n", d.ResponseTimeline)
	fmt.Fprintf(w, "  escalation: %t  confidence %.2f  false positive %.2f\n", d.EscalationRequired, d.Confidence, d.FalsePositiveProbability)
	for _, a := range actions {
		fmt.Fprintf(w, "  - %s\n", a)
	}
	fmt.Fprintf(w, "  reasoning:  %s\n", d.Reasoning)
}

// formatMergedText lists the merged actions, so procedure-mandated steps
// appear after the classifier's own.
func formatMergedText(w io.Writer, d model.MergedDecision) {
	writeDecisionText(w, d.TriageDecision, d.MergedActions)
	if d.Overridden() && d.OriginalThreatLevel != d.ThreatLevel {
		fmt.Fprintf(w, "  original:   %s\n", d.OriginalThreatLevel)
	}
	if len(d.ApplicableProcedures) > 0 {
		ids := make([]string, 0, len(d.ApplicableProcedures))
		for _, p := range d.ApplicableProcedures {
			ids = append(ids, fmt.Sprintf("%s (%.2f)", p.Procedure.ID, p.SimilarityScore))
		}
		fmt.Fprintf(w, "  procedures: %s\n", strings.Join(ids, ", "))
	}
	if len(d.Notifications) > 0 {
		fmt.Fprintf(w, "  notify:     %s\n", strings.Join(d.Notifications, ", "))
	}
	if len(d.RegulatoryRequirements) > 0 {
		fmt.Fprintf(w, "  regulatory: %s\n", strings.Join(d.RegulatoryRequirements, ", "))
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
