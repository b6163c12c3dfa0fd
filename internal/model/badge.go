package model

import "time"

// BadgeEvent is one credential presentation at a reader.
type BadgeEvent struct {
	EventID        string    `json:"event_id,omitempty"`
	BadgeID        string    `json:"badge_id"`
	EmployeeName   string    `json:"employee_name"`
	EmployeeActive bool      `json:"employee_active"`
	AccessLevel    string    `json:"access_level"`
	Location       string    `json:"location"`
	Timestamp      time.Time `json:"timestamp"`
}

// Anomaly is an access anomaly to correlate against badge activity,
// e.g. an unescorted entry.
type Anomaly struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// TimingCategory buckets the signed offset between anomaly and badge event.
type TimingCategory string

const (
	TimingWellBefore    TimingCategory = "well_before"
	TimingShortlyBefore TimingCategory = "shortly_before"
	TimingSimultaneous  TimingCategory = "simultaneous"
	TimingShortlyAfter  TimingCategory = "shortly_after"
	TimingWellAfter     TimingCategory = "well_after"
)

// CorrelatedEvent is a badge event positioned relative to the anomaly.
type CorrelatedEvent struct {
	BadgeEvent            BadgeEvent     `json:"badge_event"`
	TimeDifferenceSeconds float64        `json:"time_difference_seconds"`
	TimingCategory        TimingCategory `json:"timing_category"`
	CorrelationStrength   float64        `json:"correlation_strength"`
}

// CorrelationResult is the verdict for one anomaly.
type CorrelationResult struct {
	CorrelationID        string            `json:"correlation_id"`
	AnomalyEventID       string            `json:"anomaly_event_id"`
	Location             string            `json:"location"`
	AnomalyTimestamp     time.Time         `json:"anomaly_timestamp"`
	WindowSeconds        int               `json:"window_seconds"`
	TotalEvents          int               `json:"total_events"`
	CorrelatedEvents     []CorrelatedEvent `json:"correlated_events"`
	StrongestCorrelation *CorrelatedEvent  `json:"strongest_correlation,omitempty"`
	RiskLevel            RiskLevel         `json:"risk_level"`
	RiskScore            float64           `json:"risk_score"`
	RiskFactors          []string          `json:"risk_factors"`
	Confidence           float64           `json:"confidence"`
	Summary              string            `json:"summary"`
	SourceError          string            `json:"source_error,omitempty"`
}
