package model

import (
	"strings"
)

// ProcedureRecord is a Standard Operating Procedure as loaded from a repository.
type ProcedureRecord struct {
	ID                     string       `json:"id" yaml:"id"`
	Title                  string       `json:"title" yaml:"title"`
	Category               string       `json:"category" yaml:"category"`
	TriggerPhrases         []string     `json:"triggers" yaml:"triggers"`
	PriorityOverride       *ThreatLevel `json:"priority_override,omitempty" yaml:"priority_override,omitempty"`
	RequiredActions        []string     `json:"required_actions" yaml:"required_actions"`
	Notifications          []string     `json:"notifications" yaml:"notifications"`
	EscalationRequired     bool         `json:"escalation_required" yaml:"escalation_required"`
	TimelineText           string       `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	RegulatoryRequirements []string     `json:"regulatory_requirements" yaml:"regulatory_requirements"`

	// SearchText is the lowercase blob of all searchable fields.
	// Repositories fill it at load time; see BuildSearchText.
	SearchText string `json:"-" yaml:"-"`
}

// Validate reports why a record cannot take part in matching.
func (p ProcedureRecord) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &MalformedProcedureError{ID: p.ID, Reason: "missing id"}
	}
	if strings.TrimSpace(p.Title) == "" {
		return &MalformedProcedureError{ID: p.ID, Reason: "missing title"}
	}
	if p.PriorityOverride != nil && !p.PriorityOverride.Valid() {
		return &MalformedProcedureError{ID: p.ID, Reason: "unknown priority_override " + string(*p.PriorityOverride)}
	}
	return nil
}

// BuildSearchText concatenates title, category, triggers, required actions,
// notifications and regulatory text, lowercased.
func BuildSearchText(p ProcedureRecord) string {
	parts := []string{
		p.Title,
		p.Category,
		strings.Join(p.TriggerPhrases, " "),
		strings.Join(p.RequiredActions, " "),
		strings.Join(p.Notifications, " "),
		strings.Join(p.RegulatoryRequirements, " "),
	}
	nonEmpty := parts[:0]
	for _, s := range parts {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.ToLower(strings.Join(nonEmpty, " "))
}

// Indexed returns a copy with the priority override normalized to upper case
// (an empty override becomes nil) and SearchText populated.
func (p ProcedureRecord) Indexed() ProcedureRecord {
	if p.PriorityOverride != nil {
		l := ThreatLevel(strings.ToUpper(strings.TrimSpace(string(*p.PriorityOverride))))
		if l == "" {
			p.PriorityOverride = nil
		} else {
			p.PriorityOverride = &l
		}
	}
	if p.SearchText == "" {
		p.SearchText = BuildSearchText(p)
	}
	return p
}

// ProcedureMatch is one scored procedure for a query.
type ProcedureMatch struct {
	Procedure       ProcedureRecord `json:"procedure"`
	SimilarityScore float64         `json:"similarity_score"`
	MatchedTriggers []string        `json:"matched_triggers"`
}
