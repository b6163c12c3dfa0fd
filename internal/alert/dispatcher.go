package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/triagewatch/internal/ratelimit"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs    []Config
	limiters   []*ratelimit.Limiter
	logger     *zap.Logger
	wg         sync.WaitGroup
	suppressed atomic.Int64
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiters := make([]*ratelimit.Limiter, len(configs))
	for i, cfg := range configs {
		limiters[i] = ratelimit.New(cfg.RateLimit)
	}
	return &Dispatcher{configs: configs, limiters: limiters, logger: logger.Named("alert")}
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Matching is on the threat level name, "escalation" and "sop_override".
// Sends run in goroutines; Wait blocks until they finish.
func (d *Dispatcher) Dispatch(event Event) {
	now := time.Now()
	for i, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		if res := d.limiters[i].Allow(event.EventType+"|"+event.Summary, now); res.Exceeded {
			d.suppressed.Add(1)
			d.logger.Info("alert suppressed",
				zap.String("url", cfg.URL),
				zap.String("summary", event.Summary),
				zap.String("reason", res.Reason),
			)
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(cfg, event); err != nil {
				d.logger.Warn("alert delivery failed", zap.String("url", cfg.URL), zap.Error(err))
			}
		}(cfg)
	}
}

// Suppressed returns how many alerts the rate limits have dropped.
func (d *Dispatcher) Suppressed() int64 {
	return d.suppressed.Load()
}

// Wait blocks until every dispatched send has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		switch e {
		case event.ThreatLevel:
			return true
		case "escalation":
			if event.Escalation {
				return true
			}
		case "sop_override":
			if event.Overridden() {
				return true
			}
		}
	}
	return false
}
