package model

// TriageDecision is the classifier's assessment of one event.
// Decisions are values; a changed assessment is a new decision.
type TriageDecision struct {
	EventType                EventType   `json:"event_type"`
	ThreatLevel              ThreatLevel `json:"threat_level"`
	Confidence               float64     `json:"confidence"`
	FalsePositiveProbability float64     `json:"false_positive_probability"`
	RecommendedActions       []string    `json:"recommended_actions"`
	EscalationRequired       bool        `json:"escalation_required"`
	ResponseTimeline         string      `json:"response_timeline"`
	Reasoning                string      `json:"reasoning"`
	Summary                  string      `json:"summary"`
	PriorityScore            int         `json:"priority_score"`
}

// Priority score bounds.
const (
	MinPriority = 1
	MaxPriority = 10
)

// ClampPriority bounds a score to [MinPriority, MaxPriority].
func ClampPriority(score int) int {
	if score < MinPriority {
		return MinPriority
	}
	if score > MaxPriority {
		return MaxPriority
	}
	return score
}

// MergedDecision is a TriageDecision reconciled against matching procedures.
// The embedded decision carries the final threat level, timeline,
// escalation flag, and reasoning.
type MergedDecision struct {
	TriageDecision

	OriginalThreatLevel    ThreatLevel      `json:"original_threat_level"`
	SOPPriorityOverride    *ThreatLevel     `json:"sop_priority_override,omitempty"`
	ApplicableProcedures   []ProcedureMatch `json:"applicable_procedures"`
	MergedActions          []string         `json:"merged_actions"`
	MergedTimeline         string           `json:"merged_timeline"`
	MergedEscalation       bool             `json:"merged_escalation"`
	Notifications          []string         `json:"notifications"`
	RegulatoryRequirements []string         `json:"regulatory_requirements"`
	SOPConsulted           bool             `json:"sop_consulted"`
}

// Overridden reports whether a procedure replaced the threat level.
func (m MergedDecision) Overridden() bool {
	return m.SOPPriorityOverride != nil
}
