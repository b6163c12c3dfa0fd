package merge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/triagewatch/internal/model"
)

// TimelineRank is one entry of the urgency table.
type TimelineRank struct {
	Key  string
	Rank int
}

// TimelineRanks is checked in order; the first key found in a timeline
// (case-insensitive substring) gives its rank. Unmatched timelines rank 0.
var TimelineRanks = []TimelineRank{
	{Key: "IMMEDIATE", Rank: 5},
	{Key: "URGENT (within 1 minute)", Rank: 4},
	{Key: "URGENT (within 2 minutes)", Rank: 4},
	{Key: "URGENT (within 5 minutes)", Rank: 3},
	{Key: "15 minutes", Rank: 2},
	{Key: "30 minutes", Rank: 1},
}

// minuteRanks ranks a window in minutes for timelines the table does not
// name, such as those rendered from non-default classifier timelines.
var minuteRanks = []struct {
	Max  int
	Rank int
}{
	{Max: 2, Rank: 4},
	{Max: 5, Rank: 3},
	{Max: 15, Rank: 2},
	{Max: 30, Rank: 1},
}

var minutesPattern = regexp.MustCompile(`(\d+)\s*minute`)

// RankTimeline returns the urgency rank of a timeline string. Table keys
// are tried first; otherwise the first "N minute(s)" figure is ranked.
func RankTimeline(timeline string) int {
	lower := strings.ToLower(timeline)
	for _, tr := range TimelineRanks {
		if strings.Contains(lower, strings.ToLower(tr.Key)) {
			return tr.Rank
		}
	}
	m := minutesPattern.FindStringSubmatch(lower)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	for _, mr := range minuteRanks {
		if n <= mr.Max {
			return mr.Rank
		}
	}
	return 0
}

// Merge reconciles a classifier decision with matched procedures.
//
// Merge order:
//  1. Priority override: highest override among matches replaces the level
//  2. Timeline: most urgent of decision and procedure timelines
//  3. Actions: classifier first, then procedures in match order, deduplicated
//  4. Notifications and regulatory requirements: union in first-seen order
//  5. Escalation: OR of decision, procedures and the final level; never lowered
func Merge(decision model.TriageDecision, matches []model.ProcedureMatch) model.MergedDecision {
	out := model.MergedDecision{
		TriageDecision:       decision,
		OriginalThreatLevel:  decision.ThreatLevel,
		ApplicableProcedures: matches,
		SOPConsulted:         true,
	}
	if out.ApplicableProcedures == nil {
		out.ApplicableProcedures = []model.ProcedureMatch{}
	}

	var notes []string

	// Step 1: priority override (SOP authority is absolute)
	var overrideBy *model.ProcedureRecord
	for i := range matches {
		p := &matches[i].Procedure
		if p.PriorityOverride == nil || !p.PriorityOverride.Valid() {
			continue
		}
		if overrideBy == nil || p.PriorityOverride.Rank() > overrideBy.PriorityOverride.Rank() {
			overrideBy = p
		}
	}
	if overrideBy != nil {
		lvl := *overrideBy.PriorityOverride
		out.SOPPriorityOverride = &lvl
		if lvl != decision.ThreatLevel {
			out.ThreatLevel = lvl
			notes = append(notes, fmt.Sprintf("Threat level overridden from %s to %s by procedure %s",
				decision.ThreatLevel, lvl, procName(*overrideBy)))
		} else {
			notes = append(notes, fmt.Sprintf("Threat level %s confirmed by procedure %s", lvl, procName(*overrideBy)))
		}
	}

	// Step 2: timeline
	out.MergedTimeline = decision.ResponseTimeline
	best := RankTimeline(decision.ResponseTimeline)
	var timelineBy *model.ProcedureRecord
	for i := range matches {
		p := &matches[i].Procedure
		if p.TimelineText == "" {
			continue
		}
		if r := RankTimeline(p.TimelineText); r > best {
			best = r
			out.MergedTimeline = p.TimelineText
			timelineBy = p
		}
	}
	if timelineBy != nil {
		notes = append(notes, fmt.Sprintf("Response timeline set to %q by procedure %s", out.MergedTimeline, procName(*timelineBy)))
	}
	out.ResponseTimeline = out.MergedTimeline

	// Step 3: actions
	seen := make(map[string]bool)
	actions := make([]string, 0, len(decision.RecommendedActions))
	for _, a := range decision.RecommendedActions {
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}
	for i := range matches {
		p := &matches[i].Procedure
		added := 0
		for _, a := range p.RequiredActions {
			if !seen[a] {
				seen[a] = true
				actions = append(actions, a)
				added++
			}
		}
		if added > 0 {
			notes = append(notes, fmt.Sprintf("%d required actions added by procedure %s", added, procName(*p)))
		}
	}
	out.MergedActions = actions

	// Step 4: notifications and regulatory requirements
	out.Notifications = []string{}
	out.RegulatoryRequirements = []string{}
	for i := range matches {
		p := &matches[i].Procedure
		before := len(out.Notifications)
		out.Notifications = union(out.Notifications, p.Notifications)
		if added := len(out.Notifications) - before; added > 0 {
			notes = append(notes, fmt.Sprintf("%d notifications added by procedure %s", added, procName(*p)))
		}
		before = len(out.RegulatoryRequirements)
		out.RegulatoryRequirements = union(out.RegulatoryRequirements, p.RegulatoryRequirements)
		if added := len(out.RegulatoryRequirements) - before; added > 0 {
			notes = append(notes, fmt.Sprintf("%d regulatory requirements added by procedure %s", added, procName(*p)))
		}
	}

	// Step 5: escalation
	escalate := decision.EscalationRequired || out.ThreatLevel.RequiresEscalation()
	if !escalate {
		for i := range matches {
			if matches[i].Procedure.EscalationRequired {
				escalate = true
				notes = append(notes, fmt.Sprintf("Escalation required by procedure %s", procName(matches[i].Procedure)))
				break
			}
		}
	}
	out.MergedEscalation = escalate
	out.EscalationRequired = escalate

	if len(matches) == 0 {
		notes = append(notes, "No applicable procedures found")
	} else {
		ids := make([]string, len(matches))
		for i := range matches {
			ids[i] = matches[i].Procedure.ID
		}
		notes = append(notes, fmt.Sprintf("Procedures consulted: %s", strings.Join(ids, ", ")))
	}
	out.Reasoning = joinReasoning(decision.Reasoning, notes)
	return out
}

// Skipped builds the degraded result used when procedures could not be
// consulted. The classifier decision is carried unchanged.
func Skipped(decision model.TriageDecision, reason string) model.MergedDecision {
	out := model.MergedDecision{
		TriageDecision:         decision,
		OriginalThreatLevel:    decision.ThreatLevel,
		ApplicableProcedures:   []model.ProcedureMatch{},
		MergedActions:          append([]string(nil), decision.RecommendedActions...),
		MergedTimeline:         decision.ResponseTimeline,
		MergedEscalation:       decision.EscalationRequired || decision.ThreatLevel.RequiresEscalation(),
		Notifications:          []string{},
		RegulatoryRequirements: []string{},
	}
	out.EscalationRequired = out.MergedEscalation
	note := "SOP consultation skipped"
	if reason != "" {
		note += ": " + reason
	}
	out.Reasoning = joinReasoning(decision.Reasoning, []string{note})
	return out
}

func procName(p model.ProcedureRecord) string {
	if p.Title == "" {
		return p.ID
	}
	return fmt.Sprintf("%s (%s)", p.ID, p.Title)
}

func union(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

func joinReasoning(base string, notes []string) string {
	parts := make([]string, 0, len(notes)+1)
	if base != "" {
		parts = append(parts, base)
	}
	parts = append(parts, notes...)
	return strings.Join(parts, ". ")
}
