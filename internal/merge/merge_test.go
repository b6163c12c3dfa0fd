package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/triagewatch/internal/model"
)

func lvl(l model.ThreatLevel) *model.ThreatLevel { return &l }

func mediumDecision() model.TriageDecision {
	return model.TriageDecision{
		EventType:          model.EventAccess,
		ThreatLevel:        model.ThreatMedium,
		Confidence:         0.7,
		RecommendedActions: []string{"PROMPT: Assign maintenance to check system", "PROMPT: Monitor for recurring issues"},
		EscalationRequired: false,
		ResponseTimeline:   "PROMPT (within 15 minutes)",
		Reasoning:          "Access control alarm 'Door Ajar' classified as MEDIUM priority",
		PriorityScore:      5,
	}
}

func match(p model.ProcedureRecord) model.ProcedureMatch {
	return model.ProcedureMatch{Procedure: p, SimilarityScore: 0.5}
}

func TestOverrideRaisesLevel(t *testing.T) {
	d := mediumDecision()
	m := Merge(d, []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "SOP-7", Title: "Perimeter Door", PriorityOverride: lvl(model.ThreatHigh)}),
	})

	assert.Equal(t, model.ThreatHigh, m.ThreatLevel)
	assert.Equal(t, model.ThreatMedium, m.OriginalThreatLevel)
	require.NotNil(t, m.SOPPriorityOverride)
	assert.Equal(t, model.ThreatHigh, *m.SOPPriorityOverride)
	assert.True(t, m.Overridden())
	assert.True(t, m.MergedEscalation, "HIGH must escalate")
	assert.True(t, m.EscalationRequired)
	assert.Contains(t, m.Reasoning, "overridden from MEDIUM to HIGH by procedure SOP-7 (Perimeter Door)")
	assert.Equal(t, d.PriorityScore, m.PriorityScore)
	assert.True(t, m.SOPConsulted)
}

func TestHighestOverrideWins(t *testing.T) {
	m := Merge(mediumDecision(), []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "A", PriorityOverride: lvl(model.ThreatLow)}),
		match(model.ProcedureRecord{ID: "B", PriorityOverride: lvl(model.ThreatCritical)}),
		match(model.ProcedureRecord{ID: "C", PriorityOverride: lvl(model.ThreatCritical)}),
		match(model.ProcedureRecord{ID: "D"}),
	})
	assert.Equal(t, model.ThreatCritical, m.ThreatLevel)
	assert.Contains(t, m.Reasoning, "by procedure B")
	assert.NotContains(t, m.Reasoning, "by procedure C")
}

func TestOverrideMayLowerLevelButNotEscalation(t *testing.T) {
	d := mediumDecision()
	d.ThreatLevel = model.ThreatCritical
	d.EscalationRequired = true
	m := Merge(d, []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "SOP-DRILL", Title: "Scheduled Drill", PriorityOverride: lvl(model.ThreatLow)}),
	})
	assert.Equal(t, model.ThreatLow, m.ThreatLevel)
	assert.True(t, m.MergedEscalation)
	assert.True(t, m.EscalationRequired)
}

func TestTimelineMostUrgentWins(t *testing.T) {
	m := Merge(mediumDecision(), []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "A", TimelineText: "within 30 minutes"}),
		match(model.ProcedureRecord{ID: "B", Title: "Lockdown", TimelineText: "urgent (within 2 minutes)"}),
		match(model.ProcedureRecord{ID: "C", TimelineText: "URGENT (within 1 minute)"}),
	})
	assert.Equal(t, "urgent (within 2 minutes)", m.MergedTimeline)
	assert.Equal(t, m.MergedTimeline, m.ResponseTimeline)
	assert.Contains(t, m.Reasoning, `Response timeline set to "urgent (within 2 minutes)" by procedure B (Lockdown)`)
}

func TestTimelineKeepsDecisionWhenNothingRanks(t *testing.T) {
	d := mediumDecision()
	d.ResponseTimeline = "ROUTINE (within 60 minutes)"
	m := Merge(d, []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "A", TimelineText: "next business day"}),
	})
	assert.Equal(t, "ROUTINE (within 60 minutes)", m.MergedTimeline)
}

func TestRankTimeline(t *testing.T) {
	cases := map[string]int{
		"IMMEDIATE (within 2 minutes)": 5,
		"immediate":                    5,
		"URGENT (within 5 minutes)":    3,
		"PROMPT (within 15 minutes)":   2,
		"within 30 minutes":            1,
		"ROUTINE (within 60 minutes)":  0,
		"":                             0,
	}
	for in, want := range cases {
		assert.Equal(t, want, RankTimeline(in), in)
	}
}

func TestRankTimelineParsesMinutes(t *testing.T) {
	cases := map[string]int{
		"URGENT (within 1 minute)":    4,
		"URGENT (within 3 minutes)":   3,
		"PROMPT (within 10 minutes)":  2,
		"Respond within 20 minutes":   1,
		"ROUTINE (within 45 minutes)": 0,
		"next business day":           0,
	}
	for in, want := range cases {
		assert.Equal(t, want, RankTimeline(in), in)
	}
}

func TestConfiguredTimelineNotReplacedBySlowerProcedure(t *testing.T) {
	d := mediumDecision()
	d.ThreatLevel = model.ThreatHigh
	d.ResponseTimeline = "URGENT (within 3 minutes)"
	m := Merge(d, []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "SOP-CARD", TimelineText: "Respond within 30 minutes"}),
	})
	assert.Equal(t, "URGENT (within 3 minutes)", m.MergedTimeline)
	assert.NotContains(t, m.Reasoning, "Response timeline set")

	d.ResponseTimeline = "PROMPT (within 25 minutes)"
	m = Merge(d, []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "SOP-CARD", TimelineText: "Respond within 10 minutes"}),
	})
	assert.Equal(t, "Respond within 10 minutes", m.MergedTimeline)
}

func TestNotificationsAndRegulatoryAttributed(t *testing.T) {
	m := Merge(mediumDecision(), []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "A", Title: "Hazmat", Notifications: []string{"Fire Dept", "EHS"}, RegulatoryRequirements: []string{"OSHA 1910.120"}}),
		match(model.ProcedureRecord{ID: "B", Notifications: []string{"EHS"}}),
	})
	assert.Equal(t, []string{"Fire Dept", "EHS"}, m.Notifications)
	assert.Contains(t, m.Reasoning, "2 notifications added by procedure A (Hazmat)")
	assert.Contains(t, m.Reasoning, "1 regulatory requirements added by procedure A (Hazmat)")
	assert.NotContains(t, m.Reasoning, "added by procedure B")
}

func TestActionsNotificationsRegulatory(t *testing.T) {
	d := mediumDecision()
	m := Merge(d, []model.ProcedureMatch{
		match(model.ProcedureRecord{
			ID:                     "A",
			RequiredActions:        []string{"Dispatch guard", "PROMPT: Monitor for recurring issues"},
			Notifications:          []string{"Site Lead", "Facilities"},
			RegulatoryRequirements: []string{"OSHA 1910"},
		}),
		match(model.ProcedureRecord{
			ID:                     "B",
			RequiredActions:        []string{"Dispatch guard", "File report"},
			Notifications:          []string{"Facilities", "Police"},
			RegulatoryRequirements: []string{"OSHA 1910", "NFPA 101"},
		}),
	})

	assert.Equal(t, []string{
		"PROMPT: Assign maintenance to check system",
		"PROMPT: Monitor for recurring issues",
		"Dispatch guard",
		"File report",
	}, m.MergedActions)
	assert.Equal(t, []string{"Site Lead", "Facilities", "Police"}, m.Notifications)
	assert.Equal(t, []string{"OSHA 1910", "NFPA 101"}, m.RegulatoryRequirements)
	assert.Equal(t, d.RecommendedActions, m.RecommendedActions)
}

func TestEscalationFromProcedure(t *testing.T) {
	m := Merge(mediumDecision(), []model.ProcedureMatch{
		match(model.ProcedureRecord{ID: "A"}),
		match(model.ProcedureRecord{ID: "B", Title: "Hazmat", EscalationRequired: true}),
	})
	assert.True(t, m.MergedEscalation)
	assert.Equal(t, model.ThreatMedium, m.ThreatLevel)
	assert.Contains(t, m.Reasoning, "Escalation required by procedure B (Hazmat)")
}

func TestMergeNeverLowersEscalation(t *testing.T) {
	overrides := []*model.ThreatLevel{nil, lvl(model.ThreatLow), lvl(model.ThreatMedium), lvl(model.ThreatHigh), lvl(model.ThreatCritical)}
	for _, base := range model.ThreatLevels {
		for _, esc := range []bool{false, true} {
			for _, o := range overrides {
				for _, procEsc := range []bool{false, true} {
					d := mediumDecision()
					d.ThreatLevel = base
					d.EscalationRequired = esc || base.RequiresEscalation()
					m := Merge(d, []model.ProcedureMatch{
						match(model.ProcedureRecord{ID: "X", PriorityOverride: o, EscalationRequired: procEsc}),
					})
					if d.EscalationRequired {
						assert.True(t, m.MergedEscalation)
					}
					if m.ThreatLevel.RequiresEscalation() {
						assert.True(t, m.EscalationRequired)
					}
					assert.Equal(t, m.MergedEscalation, m.EscalationRequired)
				}
			}
		}
	}
}

func TestMergeNoMatches(t *testing.T) {
	d := mediumDecision()
	m := Merge(d, nil)
	assert.Equal(t, d.ThreatLevel, m.ThreatLevel)
	assert.Nil(t, m.SOPPriorityOverride)
	assert.NotNil(t, m.ApplicableProcedures)
	assert.Empty(t, m.ApplicableProcedures)
	assert.Equal(t, d.RecommendedActions, m.MergedActions)
	assert.Equal(t, d.ResponseTimeline, m.MergedTimeline)
	assert.Contains(t, m.Reasoning, "No applicable procedures found")
}

func TestSkipped(t *testing.T) {
	d := mediumDecision()
	d.ThreatLevel = model.ThreatHigh
	d.EscalationRequired = true
	m := Skipped(d, "procedure repository unavailable")

	assert.False(t, m.SOPConsulted)
	assert.Empty(t, m.ApplicableProcedures)
	assert.Equal(t, model.ThreatHigh, m.ThreatLevel)
	assert.True(t, m.MergedEscalation)
	assert.Equal(t, d.RecommendedActions, m.MergedActions)
	assert.Contains(t, m.Reasoning, "SOP consultation skipped: procedure repository unavailable")
}
