package scenario

import "github.com/ppiankov/triagewatch/internal/ingest"

// Expect lists the assertions for one case. Zero values are not checked.
type Expect struct {
	ThreatLevel      string   `yaml:"threat_level,omitempty"`
	Escalation       *bool    `yaml:"escalation,omitempty"`
	MinPriority      int      `yaml:"min_priority,omitempty"`
	MaxPriority      int      `yaml:"max_priority,omitempty"`
	TimelineContains string   `yaml:"timeline_contains,omitempty"`
	Procedures       []string `yaml:"procedures,omitempty"`
}

// Case is one test case within a scenario.
type Case struct {
	Name   string          `yaml:"name,omitempty"`
	Event  ingest.RawEvent `yaml:"event"`
	Expect Expect          `yaml:"expect"`
}

// Scenario is a named collection of triage test cases.
// Procedures is a library file resolved relative to the scenario file.
type Scenario struct {
	Name       string `yaml:"name"`
	Procedures string `yaml:"procedures,omitempty"`
	Cases      []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int      `json:"index"`
	Name     string   `json:"name,omitempty"`
	Passed   bool     `json:"passed"`
	Event    string   `json:"event"`
	Level    string   `json:"threat_level"`
	Priority int      `json:"priority_score"`
	Timeline string   `json:"response_timeline"`
	Failures []string `json:"failures,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
