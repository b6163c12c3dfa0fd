// Package audit keeps a tamper-evident record of triage decisions.
package audit

import (
	"strings"

	"github.com/ppiankov/triagewatch/internal/model"
)

// Entry is one line in the hash-chained JSONL decision log.
// Only structs and slices, so json.Marshal output is stable for hashing.
type Entry struct {
	Timestamp     string   `json:"ts"`
	EventID       string   `json:"event_id,omitempty"`
	EventType     string   `json:"event_type"`
	Summary       string   `json:"summary"`
	ThreatLevel   string   `json:"threat_level"`
	OriginalLevel string   `json:"original_threat_level"`
	Priority      int      `json:"priority_score"`
	Escalation    bool     `json:"escalation_required"`
	SOPConsulted  bool     `json:"sop_consulted"`
	Procedures    []string `json:"procedures"`
	ConfigHash    string   `json:"config_hash"`
	PrevHash      string   `json:"prev_hash"`
}

// NewEntry flattens a merged decision. Timestamp and PrevHash are set by Record.
func NewEntry(d model.MergedDecision, eventID, configHash string) Entry {
	procs := make([]string, 0, len(d.ApplicableProcedures))
	for _, p := range d.ApplicableProcedures {
		procs = append(procs, p.Procedure.ID)
	}
	return Entry{
		EventID:       eventID,
		EventType:     string(d.EventType),
		Summary:       d.Summary,
		ThreatLevel:   strings.ToLower(string(d.ThreatLevel)),
		OriginalLevel: strings.ToLower(string(d.OriginalThreatLevel)),
		Priority:      d.PriorityScore,
		Escalation:    d.EscalationRequired,
		SOPConsulted:  d.SOPConsulted,
		Procedures:    procs,
		ConfigHash:    configHash,
	}
}
