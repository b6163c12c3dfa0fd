package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/triagewatch/internal/classify"
	"github.com/ppiankov/triagewatch/internal/correlate"
	"github.com/ppiankov/triagewatch/internal/merge"
	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/sop"
)

// DefaultWorkers bounds TriageBatch parallelism when Config.Workers is unset.
const DefaultWorkers = 8

// BadgeEventSource supplies badge activity around a point in time.
type BadgeEventSource interface {
	EventsNear(ctx context.Context, location string, at time.Time, window time.Duration) ([]model.BadgeEvent, error)
}

// Config wires an Engine. Classifier is required; a nil Matcher skips
// procedure consultation and a nil Cache disables caching.
type Config struct {
	Classifier *classify.Classifier
	Matcher    *sop.Matcher
	Cache      DecisionCache
	Metrics    *Metrics
	Logger     *zap.Logger

	Category   string
	MaxResults int
	Workers    int
}

// Engine runs the triage pipeline: classify, match procedures, merge.
type Engine struct {
	classifier *classify.Classifier
	matcher    *sop.Matcher
	cache      DecisionCache
	metrics    *Metrics
	logger     *zap.Logger
	category   string
	maxResults int
	workers    int
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.DefaultClassifierConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = sop.DefaultMaxResults
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Engine{
		classifier: cfg.Classifier,
		matcher:    cfg.Matcher,
		cache:      cfg.Cache,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.Named("engine"),
		category:   cfg.Category,
		maxResults: cfg.MaxResults,
		workers:    cfg.Workers,
	}
}

// Classify runs the classifier alone.
func (e *Engine) Classify(ev model.Event) model.TriageDecision {
	return e.classifier.Classify(ev)
}

// Triage produces the merged decision for one event. It always returns a
// complete decision; an unavailable repository degrades to the classifier
// result with SOP consultation marked as skipped.
func (e *Engine) Triage(ctx context.Context, ev model.Event) model.MergedDecision {
	key := e.cacheKey(ev)
	if e.cache != nil {
		if d, ok := e.cache.Get(key); ok {
			e.metrics.cacheHit()
			e.metrics.observeDecision(d)
			return d
		}
	}

	decision := e.classifier.Classify(ev)

	var merged model.MergedDecision
	cacheable := true
	if e.matcher == nil {
		merged = merge.Skipped(decision, "no procedure repository configured")
	} else {
		matches, err := e.matcher.Match(ctx, decision.Summary, e.category, e.maxResults)
		if err != nil {
			cacheable = false
			e.metrics.repositoryFailure()
			e.logger.Warn("procedure lookup failed", zap.String("event_type", string(ev.Type())), zap.Error(err))
			reason := err.Error()
			if errors.Is(err, model.ErrRepositoryUnavailable) {
				reason = model.ErrRepositoryUnavailable.Error()
			}
			merged = merge.Skipped(decision, reason)
		} else {
			merged = merge.Merge(decision, matches)
		}
	}

	if e.cache != nil && cacheable {
		e.cache.Add(key, merged)
	}
	e.metrics.observeDecision(merged)
	return merged
}

// TriageBatch triages events in parallel. Result i belongs to events[i].
// Cancelling ctx stops scheduling and returns ctx.Err().
func (e *Engine) TriageBatch(ctx context.Context, events []model.Event) ([]model.MergedDecision, error) {
	results := make([]model.MergedDecision, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, ev := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Triage(gctx, ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Correlate fetches badge activity for the anomaly and scores it. A source
// failure degrades to the no-badge verdict with SourceError set.
func (e *Engine) Correlate(ctx context.Context, src BadgeEventSource, anomaly model.Anomaly, windowSeconds int) model.CorrelationResult {
	window := correlate.NormalizeWindow(windowSeconds)
	if src == nil {
		res := correlate.Degraded(anomaly, window, fmt.Errorf("%w: no badge source configured", model.ErrCorrelationData))
		e.metrics.observeCorrelation(res, true)
		return res
	}

	badges, err := src.EventsNear(ctx, anomaly.Location, anomaly.Timestamp, time.Duration(window)*time.Second)
	if err != nil {
		if !errors.Is(err, model.ErrCorrelationData) {
			err = fmt.Errorf("%w: %v", model.ErrCorrelationData, err)
		}
		e.logger.Warn("badge source unavailable", zap.String("location", anomaly.Location), zap.Error(err))
		res := correlate.Degraded(anomaly, window, err)
		e.metrics.observeCorrelation(res, true)
		return res
	}

	res := correlate.Correlate(anomaly, badges, window)
	e.metrics.observeCorrelation(res, false)
	return res
}

// PurgeCache drops all cached decisions, e.g. after the procedure library changed.
func (e *Engine) PurgeCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

func (e *Engine) cacheKey(ev model.Event) string {
	return fmt.Sprintf("%s\x1e%s\x1e%d", ev.Signature(), e.category, e.maxResults)
}
