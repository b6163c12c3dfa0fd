package alert

import (
	"strings"
	"time"

	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/ratelimit"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["critical", "escalation", "sop_override"]
	Headers map[string]string `yaml:"headers" json:"headers"`
	// RateLimit caps alerts per event type and summary, so a flapping
	// sensor pages once per window instead of on every event.
	RateLimit *ratelimit.Limit `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp     string   `json:"timestamp"`
	EventID       string   `json:"event_id,omitempty"`
	EventType     string   `json:"event_type"`
	Summary       string   `json:"summary"`
	ThreatLevel   string   `json:"threat_level"`
	OriginalLevel string   `json:"original_threat_level"`
	Priority      int      `json:"priority_score"`
	Escalation    bool     `json:"escalation_required"`
	Timeline      string   `json:"response_timeline"`
	Procedures    []string `json:"procedures,omitempty"`
	Notifications []string `json:"notifications,omitempty"`
	Reasoning     string   `json:"reasoning"`
	ConfigHash    string   `json:"config_hash,omitempty"`
}

// Overridden reports whether a procedure changed the threat level.
func (e Event) Overridden() bool {
	return e.OriginalLevel != "" && e.OriginalLevel != e.ThreatLevel
}

// NewEvent builds the alert payload for a merged decision.
func NewEvent(d model.MergedDecision, eventID, configHash string, at time.Time) Event {
	var ids []string
	for _, p := range d.ApplicableProcedures {
		ids = append(ids, p.Procedure.ID)
	}
	return Event{
		Timestamp:     at.UTC().Format(time.RFC3339),
		EventID:       eventID,
		EventType:     string(d.EventType),
		Summary:       d.Summary,
		ThreatLevel:   d.ThreatLevel.Label(),
		OriginalLevel: strings.ToLower(string(d.OriginalThreatLevel)),
		Priority:      d.PriorityScore,
		Escalation:    d.EscalationRequired,
		Timeline:      d.ResponseTimeline,
		Procedures:    ids,
		Notifications: d.Notifications,
		Reasoning:     d.Reasoning,
		ConfigHash:    configHash,
	}
}
