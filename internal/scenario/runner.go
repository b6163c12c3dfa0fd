package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/triagewatch/internal/classify"
	"github.com/ppiankov/triagewatch/internal/engine"
	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/sop"
)

// Run triages every case with eng and checks the expectations.
// Cases are independent; eng should not cache.
func Run(ctx context.Context, s *Scenario, eng *engine.Engine) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := CaseResult{Index: i + 1, Name: c.Name}

		ev, err := c.Event.Event()
		if err != nil {
			cr.Event = c.Event.Type
			cr.Failures = []string{fmt.Sprintf("invalid event: %v", err)}
		} else {
			d := eng.Triage(ctx, ev)
			cr.Event = ev.Summary()
			cr.Level = string(d.ThreatLevel)
			cr.Priority = d.PriorityScore
			cr.Timeline = d.ResponseTimeline
			cr.Failures = check(c.Expect, d)
		}

		if len(cr.Failures) == 0 {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func check(e Expect, d model.MergedDecision) []string {
	var failures []string
	if e.ThreatLevel != "" {
		want, err := model.ParseThreatLevel(e.ThreatLevel)
		if err != nil {
			failures = append(failures, err.Error())
		} else if d.ThreatLevel != want {
			failures = append(failures, fmt.Sprintf("threat_level: expected %s, got %s", want, d.ThreatLevel))
		}
	}
	if e.Escalation != nil && *e.Escalation != d.EscalationRequired {
		failures = append(failures, fmt.Sprintf("escalation: expected %t, got %t", *e.Escalation, d.EscalationRequired))
	}
	if e.MinPriority > 0 && d.PriorityScore < e.MinPriority {
		failures = append(failures, fmt.Sprintf("priority: expected >= %d, got %d", e.MinPriority, d.PriorityScore))
	}
	if e.MaxPriority > 0 && d.PriorityScore > e.MaxPriority {
		failures = append(failures, fmt.Sprintf("priority: expected <= %d, got %d", e.MaxPriority, d.PriorityScore))
	}
	if e.TimelineContains != "" && !strings.Contains(d.ResponseTimeline, e.TimelineContains) {
		failures = append(failures, fmt.Sprintf("timeline: expected to contain %q, got %q", e.TimelineContains, d.ResponseTimeline))
	}
	for _, id := range e.Procedures {
		found := false
		for _, p := range d.ApplicableProcedures {
			if p.Procedure.ID == id {
				found = true
				break
			}
		}
		if !found {
			failures = append(failures, fmt.Sprintf("procedures: expected %s to apply", id))
		}
	}
	return failures
}

// LoadAndRun loads a scenario YAML file, builds a classifier with timelines
// and the scenario's procedure library, and runs.
func LoadAndRun(ctx context.Context, path string, timelines classify.Timelines, logger *zap.Logger) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	cfg := engine.Config{
		Classifier: classify.New(classify.Config{Timelines: timelines}),
		Logger:     logger,
	}
	if s.Procedures != "" {
		procPath := s.Procedures
		if !filepath.IsAbs(procPath) {
			procPath = filepath.Join(filepath.Dir(path), procPath)
		}
		records, _, err := sop.LoadFile(procPath, logger)
		if err != nil {
			return nil, fmt.Errorf("load procedures for %s: %w", path, err)
		}
		cfg.Matcher = sop.NewMatcher(sop.NewLibrary(records), logger)
	}

	result := Run(ctx, &s, engine.New(cfg))
	result.File = path

	return result, nil
}
