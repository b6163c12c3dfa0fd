package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/triagewatch/internal/model"
)

// Timelines holds the response window in minutes per threat level.
type Timelines struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
	Low      int `yaml:"low"`
}

// DefaultTimelines returns the standard response windows.
func DefaultTimelines() Timelines {
	return Timelines{Critical: 2, High: 5, Medium: 15, Low: 60}
}

// Text renders the timeline string for a level, e.g. "IMMEDIATE (within 2 minutes)".
func (t Timelines) Text(level model.ThreatLevel) string {
	switch level {
	case model.ThreatCritical:
		return "IMMEDIATE (within " + minutes(t.Critical) + ")"
	case model.ThreatHigh:
		return "URGENT (within " + minutes(t.High) + ")"
	case model.ThreatMedium:
		return "PROMPT (within " + minutes(t.Medium) + ")"
	default:
		return "ROUTINE (within " + minutes(t.Low) + ")"
	}
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

// Config configures a Classifier.
type Config struct {
	Timelines Timelines `yaml:"timelines"`
	// Profiles overrides the built-in rule tables. Keyed by event type.
	Profiles map[model.EventType]*Profile `yaml:"-"`
}

// DefaultClassifierConfig returns the built-in rule tables and timelines.
func DefaultClassifierConfig() Config {
	return Config{Timelines: DefaultTimelines()}
}

// Classifier maps events to triage decisions. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	timelines Timelines
	profiles  map[model.EventType]*Profile
}

// New creates a Classifier. Zero timeline values fall back to defaults.
func New(cfg Config) *Classifier {
	tl := cfg.Timelines
	def := DefaultTimelines()
	if tl.Critical <= 0 {
		tl.Critical = def.Critical
	}
	if tl.High <= 0 {
		tl.High = def.High
	}
	if tl.Medium <= 0 {
		tl.Medium = def.Medium
	}
	if tl.Low <= 0 {
		tl.Low = def.Low
	}

	profiles := map[model.EventType]*Profile{
		model.EventCV:     CVProfile(),
		model.EventAccess: AccessProfile(),
	}
	for t, p := range cfg.Profiles {
		profiles[t] = p
	}
	return &Classifier{timelines: tl, profiles: profiles}
}

// Classify produces the decision for one event. Malformed data degrades
// to the default outcome; a nil event is a contract violation and panics.
func (c *Classifier) Classify(ev model.Event) model.TriageDecision {
	if ev == nil {
		panic("classify: nil event")
	}

	p, ok := c.profiles[ev.Type()]
	if !ok {
		p = genericProfile(ev.Type())
	}

	label := ev.Label()
	missing := label == model.UnknownLabel
	lowerLabel := strings.ToLower(label)
	lowerCtx := strings.ToLower(ev.Context())

	out := p.Default
	if !missing {
		out = p.evaluate(lowerLabel, lowerCtx, severityOf(ev))
	}
	out.Confidence = model.Clamp01(out.Confidence)
	out.FalsePositive = model.Clamp01(out.FalsePositive)

	return model.TriageDecision{
		EventType:                ev.Type(),
		ThreatLevel:              out.Level,
		Confidence:               out.Confidence,
		FalsePositiveProbability: out.FalsePositive,
		RecommendedActions:       p.actions(out.Level, lowerLabel, lowerCtx),
		EscalationRequired:       out.Level.RequiresEscalation(),
		ResponseTimeline:         c.timelines.Text(out.Level),
		Reasoning:                p.reasoning(ev, label, out, missing, lowerLabel, lowerCtx),
		Summary:                  ev.Summary(),
		PriorityScore:            p.priority(out, lowerCtx),
	}
}

type severityCoder interface {
	Severity() string
}

func severityOf(ev model.Event) string {
	if s, ok := ev.(severityCoder); ok {
		return s.Severity()
	}
	return ""
}

// evaluate walks the ordered rule table. First match wins.
func (p *Profile) evaluate(label, context, severity string) Outcome {
	for _, r := range p.KeywordRules {
		if containsAny(label, r.Keywords) {
			return r.Outcome
		}
	}
	for _, r := range p.SourceRules {
		if containsAny(context, r.SourceKeywords) && containsAny(label, r.LabelKeywords) {
			return r.Outcome
		}
	}
	if severity != "" {
		if o, ok := p.SeverityCodes[severity]; ok {
			return o
		}
	}
	return p.Default
}

func (p *Profile) priority(out Outcome, context string) int {
	score := BasePriority[out.Level]
	if score == 0 {
		score = BasePriority[model.ThreatMedium]
	}
	if out.Confidence > p.ConfidenceUpper {
		score++
	} else if out.Confidence < p.ConfidenceLower {
		score--
	}
	if containsAny(context, p.CriticalContext) {
		score++
	} else if containsAny(context, p.MaintenanceContext) {
		score--
	}
	return model.ClampPriority(score)
}

func (p *Profile) actions(level model.ThreatLevel, label, context string) []string {
	base := p.BaseActions[level]
	actions := make([]string, 0, len(base)+len(p.ActionRules))
	actions = append(actions, base...)

	type hit struct {
		pos    int
		action string
	}
	var labelHits []hit
	var contextHits []string
	for _, r := range p.ActionRules {
		switch r.Scope {
		case ScopeContext:
			if containsAny(context, r.Keywords) {
				contextHits = append(contextHits, r.Action)
			}
		default:
			if pos := firstIndex(label, r.Keywords); pos >= 0 {
				labelHits = append(labelHits, hit{pos: pos, action: r.Action})
			}
		}
	}
	sort.SliceStable(labelHits, func(i, j int) bool { return labelHits[i].pos < labelHits[j].pos })
	for _, h := range labelHits {
		actions = append(actions, h.action)
	}
	return append(actions, contextHits...)
}

func (p *Profile) reasoning(ev model.Event, label string, out Outcome, missing bool, lowerLabel, lowerCtx string) string {
	parts := []string{fmt.Sprintf(p.Subject+" classified as %s priority", label, out.Level)}
	if missing {
		parts = append(parts, "Event label missing; default classification applied")
	}
	for _, f := range ev.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Value))
	}
	parts = append(parts,
		fmt.Sprintf("Confidence: %.0f%%", out.Confidence*100),
		fmt.Sprintf("False positive probability: %.0f%%", out.FalsePositive*100),
	)
	if note, ok := p.LevelNotes[out.Level]; ok {
		parts = append(parts, note)
	}
	for _, r := range p.NoteRules {
		text := lowerLabel
		if r.Scope == ScopeContext {
			text = lowerCtx
		}
		if containsAny(text, r.Keywords) {
			parts = append(parts, r.Note)
			break
		}
	}
	return strings.Join(parts, ". ")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// firstIndex returns the earliest position of any keyword in s, or -1.
func firstIndex(s string, keywords []string) int {
	best := -1
	for _, k := range keywords {
		if i := strings.Index(s, k); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}
