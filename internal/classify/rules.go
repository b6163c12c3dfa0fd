package classify

import "github.com/ppiankov/triagewatch/internal/model"

// Outcome is the assessment a rule produces.
type Outcome struct {
	Level         model.ThreatLevel `yaml:"level"`
	Confidence    float64           `yaml:"confidence"`
	FalsePositive float64           `yaml:"false_positive"`
}

// Scope selects which normalized text a rule inspects.
type Scope string

const (
	ScopeLabel   Scope = "label"
	ScopeContext Scope = "context"
)

// KeywordRule fires when any keyword is a substring of the lowercased label.
type KeywordRule struct {
	Name     string
	Keywords []string
	Outcome  Outcome
}

// SourceRule fires when the context contains any SourceKeywords and the
// label contains any LabelKeywords.
type SourceRule struct {
	Name           string
	SourceKeywords []string
	LabelKeywords  []string
	Outcome        Outcome
}

// ActionRule appends Action when any keyword occurs in its scope.
type ActionRule struct {
	Keywords []string
	Scope    Scope
	Action   string
}

// NoteRule adds a reasoning sentence when any keyword occurs in its scope.
type NoteRule struct {
	Keywords []string
	Scope    Scope
	Note     string
}

// Profile is the complete rule table for one event type.
//
// Evaluation order (first match wins, no re-evaluation):
//  1. KeywordRules, most severe first
//  2. SourceRules
//  3. SeverityCodes (CV events only)
//  4. Default
type Profile struct {
	Type    model.EventType
	Subject string

	KeywordRules  []KeywordRule
	SourceRules   []SourceRule
	SeverityCodes map[string]Outcome
	Default       Outcome

	// Priority adjustments: +1 above ConfidenceUpper, -1 below ConfidenceLower,
	// +1 for a CriticalContext keyword, otherwise -1 for a MaintenanceContext keyword.
	ConfidenceUpper    float64
	ConfidenceLower    float64
	CriticalContext    []string
	MaintenanceContext []string

	BaseActions map[model.ThreatLevel][]string
	ActionRules []ActionRule
	LevelNotes  map[model.ThreatLevel]string
	NoteRules   []NoteRule
}

// BasePriority is the starting priority score per level.
var BasePriority = map[model.ThreatLevel]int{
	model.ThreatCritical: 9,
	model.ThreatHigh:     7,
	model.ThreatMedium:   5,
	model.ThreatLow:      3,
}

// DefaultOutcome applies when no rule matches or the label is missing.
var DefaultOutcome = Outcome{Level: model.ThreatMedium, Confidence: 0.65, FalsePositive: 0.30}

// CVProfile returns the built-in rules for computer-vision detections.
func CVProfile() *Profile {
	return &Profile{
		Type:    model.EventCV,
		Subject: "Threat '%s'",
		KeywordRules: []KeywordRule{
			{
				Name:     "cv.weapon_violence",
				Keywords: []string{"firearm", "gun", "weapon", "knife", "violence", "assault", "brandishing"},
				Outcome:  Outcome{Level: model.ThreatCritical, Confidence: 0.95, FalsePositive: 0.05},
			},
			{
				Name:     "cv.intrusion",
				Keywords: []string{"unauthorized", "intrusion", "trespassing", "suspicious", "loitering"},
				Outcome:  Outcome{Level: model.ThreatHigh, Confidence: 0.85, FalsePositive: 0.10},
			},
			{
				Name:     "cv.security_concern",
				Keywords: []string{"unattended", "overcrowding", "restricted", "violation"},
				Outcome:  Outcome{Level: model.ThreatMedium, Confidence: 0.75, FalsePositive: 0.20},
			},
		},
		SeverityCodes: map[string]Outcome{
			"SEV0": {Level: model.ThreatCritical, Confidence: 0.90, FalsePositive: 0.05},
			"SEV1": {Level: model.ThreatHigh, Confidence: 0.80, FalsePositive: 0.10},
			"SEV2": {Level: model.ThreatMedium, Confidence: 0.70, FalsePositive: 0.20},
			"SEV3": {Level: model.ThreatLow, Confidence: 0.60, FalsePositive: 0.30},
		},
		Default:         DefaultOutcome,
		ConfidenceUpper: 0.9,
		ConfidenceLower: 0.7,
		CriticalContext: []string{"entrance", "exit", "lobby", "secure"},
		BaseActions: map[model.ThreatLevel][]string{
			model.ThreatCritical: {
				"IMMEDIATE: Dispatch security personnel to location",
				"IMMEDIATE: Notify law enforcement if weapon confirmed",
				"IMMEDIATE: Consider lockdown procedures if necessary",
				"IMMEDIATE: Evacuate area if public safety at risk",
			},
			model.ThreatHigh: {
				"URGENT: Send security to investigate location",
				"URGENT: Review additional camera angles",
				"URGENT: Notify facility management",
				"URGENT: Document incident for investigation",
			},
			model.ThreatMedium: {
				"PROMPT: Assign security patrol to area",
				"PROMPT: Monitor situation for escalation",
				"PROMPT: Review security protocols for location",
			},
			model.ThreatLow: {
				"ROUTINE: Log incident for review",
				"ROUTINE: Monitor for pattern analysis",
			},
		},
		ActionRules: []ActionRule{
			{Keywords: []string{"firearm", "gun", "brandishing"}, Scope: ScopeLabel, Action: "CRITICAL: Implement active shooter protocols"},
			{Keywords: []string{"restricted", "secure"}, Scope: ScopeContext, Action: "PRIORITY: Verify access authorization"},
		},
		LevelNotes: map[model.ThreatLevel]string{
			model.ThreatCritical: "Critical threat requires immediate response and potential law enforcement notification",
			model.ThreatHigh:     "High-priority threat requires urgent security response",
			model.ThreatMedium:   "Medium-priority threat requires prompt investigation",
			model.ThreatLow:      "Low-priority event for routine monitoring",
		},
	}
}

// AccessProfile returns the built-in rules for access-control alarms.
func AccessProfile() *Profile {
	return &Profile{
		Type:    model.EventAccess,
		Subject: "Access control alarm '%s'",
		KeywordRules: []KeywordRule{
			{
				Name: "access.forced_entry_duress",
				Keywords: []string{
					"forced entry", "duress", "panic", "emergency", "break in", "tamper",
					"anti-passback violation", "tailgating", "unauthorized access attempt",
				},
				Outcome: Outcome{Level: model.ThreatCritical, Confidence: 0.90, FalsePositive: 0.05},
			},
			{
				Name: "access.invalid_credential",
				Keywords: []string{
					"door held open", "invalid card", "access denied", "unauthorized",
					"door left open", "propped open", "multiple failed attempts",
				},
				Outcome: Outcome{Level: model.ThreatHigh, Confidence: 0.80, FalsePositive: 0.10},
			},
			{
				Name: "access.system_fault",
				Keywords: []string{
					"door ajar", "communication lost", "sensor fault", "lock failure",
					"battery low", "time zone violation", "after hours access",
				},
				Outcome: Outcome{Level: model.ThreatMedium, Confidence: 0.70, FalsePositive: 0.20},
			},
			{
				Name: "access.maintenance",
				Keywords: []string{
					"scheduled maintenance", "system reboot", "status update",
					"normal operation", "periodic check", "heartbeat",
				},
				Outcome: Outcome{Level: model.ThreatLow, Confidence: 0.60, FalsePositive: 0.35},
			},
		},
		SourceRules: []SourceRule{
			{
				Name:           "access.contact_sensor_door",
				SourceKeywords: []string{"sensor", "contact"},
				LabelKeywords:  []string{"door"},
				Outcome:        Outcome{Level: model.ThreatMedium, Confidence: 0.75, FalsePositive: 0.25},
			},
		},
		Default:            DefaultOutcome,
		ConfidenceUpper:    0.85,
		ConfidenceLower:    0.65,
		CriticalContext:    []string{"door", "lock", "entry", "exit"},
		MaintenanceContext: []string{"sensor", "battery", "communication"},
		BaseActions: map[model.ThreatLevel][]string{
			model.ThreatCritical: {
				"IMMEDIATE: Dispatch security to location",
				"IMMEDIATE: Verify building security status",
				"IMMEDIATE: Check for additional security breaches",
				"IMMEDIATE: Consider lockdown if necessary",
			},
			model.ThreatHigh: {
				"URGENT: Send security to investigate",
				"URGENT: Review access logs for pattern",
				"URGENT: Verify door/lock status",
				"URGENT: Check camera footage if available",
			},
			model.ThreatMedium: {
				"PROMPT: Assign maintenance to check system",
				"PROMPT: Monitor for recurring issues",
				"PROMPT: Schedule system diagnostic",
			},
			model.ThreatLow: {
				"ROUTINE: Log for maintenance review",
				"ROUTINE: Update system status",
			},
		},
		ActionRules: []ActionRule{
			{Keywords: []string{"door held open"}, Scope: ScopeLabel, Action: "PRIORITY: Check if door is propped open intentionally"},
			{Keywords: []string{"invalid card"}, Scope: ScopeLabel, Action: "PRIORITY: Verify user credentials and access rights"},
			{Keywords: []string{"forced entry"}, Scope: ScopeLabel, Action: "CRITICAL: Immediate physical security response required"},
			{Keywords: []string{"communication lost"}, Scope: ScopeLabel, Action: "TECHNICAL: Check network connectivity to device"},
			{Keywords: []string{"battery low"}, Scope: ScopeLabel, Action: "MAINTENANCE: Schedule battery replacement"},
			{Keywords: []string{"sensor fault"}, Scope: ScopeLabel, Action: "MAINTENANCE: Inspect and test sensor functionality"},
		},
		LevelNotes: map[model.ThreatLevel]string{
			model.ThreatCritical: "Critical security breach requires immediate response",
			model.ThreatHigh:     "High-priority access violation requires urgent investigation",
			model.ThreatMedium:   "Medium-priority system issue requires prompt attention",
			model.ThreatLow:      "Low-priority system event for routine monitoring",
		},
		NoteRules: []NoteRule{
			{Keywords: []string{"door"}, Scope: ScopeLabel, Note: "Physical access point security event"},
			{Keywords: []string{"card"}, Scope: ScopeLabel, Note: "Credential-based access event"},
			{Keywords: []string{"sensor"}, Scope: ScopeContext, Note: "Hardware sensor-based event"},
		},
	}
}

// genericProfile handles Event implementations without a dedicated table.
func genericProfile(t model.EventType) *Profile {
	return &Profile{
		Type:            t,
		Subject:         "Event '%s'",
		Default:         DefaultOutcome,
		ConfidenceUpper: 0.9,
		ConfidenceLower: 0.7,
		BaseActions:     CVProfile().BaseActions,
		LevelNotes:      CVProfile().LevelNotes,
	}
}
