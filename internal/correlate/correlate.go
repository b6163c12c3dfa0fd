package correlate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/triagewatch/internal/model"
)

// Window bounds in seconds.
const (
	MinWindow     = 30
	MaxWindow     = 60
	DefaultWindow = 60
)

// Risk weights.
const (
	weightInactive      = 0.8
	weightNoBadge       = 0.6
	weightSimultaneous  = 0.2
	weightShortlyBefore = 0.4
	weightWellBefore    = 0.1
	confidenceFactor    = 0.9
	confidenceCeiling   = 0.95
)

const factorNoBadgeAccess = "No badge access found around incident time"

// timingWeights lists the additive contribution per timing category.
// shortly_after and well_after carry no weight.
var timingWeights = map[model.TimingCategory]float64{
	model.TimingSimultaneous:  weightSimultaneous,
	model.TimingShortlyBefore: weightShortlyBefore,
	model.TimingWellBefore:    weightWellBefore,
}

// riskThresholds is checked in order against the unclamped score.
var riskThresholds = []struct {
	min   float64
	level model.RiskLevel
}{
	{0.8, model.RiskCritical},
	{0.6, model.RiskHigh},
	{0.4, model.RiskMedium},
}

// NormalizeWindow maps a requested window to [MinWindow, MaxWindow].
// Non-positive values mean DefaultWindow.
func NormalizeWindow(seconds int) int {
	switch {
	case seconds <= 0:
		return DefaultWindow
	case seconds < MinWindow:
		return MinWindow
	case seconds > MaxWindow:
		return MaxWindow
	default:
		return seconds
	}
}

// Categorize buckets a signed offset (anomaly minus badge time, seconds).
func Categorize(dt float64) model.TimingCategory {
	switch {
	case dt < -10:
		return model.TimingWellBefore
	case dt < -2:
		return model.TimingShortlyBefore
	case dt <= 2:
		return model.TimingSimultaneous
	case dt <= 10:
		return model.TimingShortlyAfter
	default:
		return model.TimingWellAfter
	}
}

// Correlate scores badge activity around an anomaly. Badges outside the
// window or at a different location are ignored.
func Correlate(anomaly model.Anomaly, badges []model.BadgeEvent, windowSeconds int) model.CorrelationResult {
	window := NormalizeWindow(windowSeconds)
	res := newResult(anomaly, window)
	res.TotalEvents = len(badges)

	for _, b := range badges {
		if anomaly.Location != "" && b.Location != "" && !strings.EqualFold(anomaly.Location, b.Location) {
			continue
		}
		dt := anomaly.Timestamp.Sub(b.Timestamp).Seconds()
		if math.Abs(dt) > float64(window) {
			continue
		}
		res.CorrelatedEvents = append(res.CorrelatedEvents, model.CorrelatedEvent{
			BadgeEvent:            b,
			TimeDifferenceSeconds: dt,
			TimingCategory:        Categorize(dt),
			CorrelationStrength:   model.Clamp01(1 - math.Abs(dt)/float64(window)),
		})
	}
	sort.SliceStable(res.CorrelatedEvents, func(i, j int) bool {
		return res.CorrelatedEvents[i].CorrelationStrength > res.CorrelatedEvents[j].CorrelationStrength
	})
	if len(res.CorrelatedEvents) > 0 {
		strongest := res.CorrelatedEvents[0]
		res.StrongestCorrelation = &strongest
	}

	assess(&res)
	res.Summary = summarize(res)
	return res
}

// Degraded is the result returned when badge data could not be fetched.
func Degraded(anomaly model.Anomaly, windowSeconds int, cause error) model.CorrelationResult {
	res := Correlate(anomaly, nil, windowSeconds)
	if cause != nil {
		res.SourceError = cause.Error()
	}
	return res
}

func newResult(anomaly model.Anomaly, window int) model.CorrelationResult {
	return model.CorrelationResult{
		CorrelationID:    uuid.NewString(),
		AnomalyEventID:   anomaly.ID,
		Location:         anomaly.Location,
		AnomalyTimestamp: anomaly.Timestamp,
		WindowSeconds:    window,
		CorrelatedEvents: []model.CorrelatedEvent{},
		RiskFactors:      []string{},
	}
}

func assess(res *model.CorrelationResult) {
	var score float64

	seen := make(map[string]bool)
	for _, c := range res.CorrelatedEvents {
		b := c.BadgeEvent
		if b.EmployeeActive || seen[b.BadgeID] {
			continue
		}
		seen[b.BadgeID] = true
		res.RiskFactors = append(res.RiskFactors, fmt.Sprintf("Inactive employee %s involved", employee(b)))
		score += weightInactive
	}

	if len(res.CorrelatedEvents) == 0 {
		res.RiskFactors = append(res.RiskFactors, factorNoBadgeAccess)
		score += weightNoBadge
	} else {
		for _, c := range res.CorrelatedEvents {
			w, ok := timingWeights[c.TimingCategory]
			if !ok {
				continue
			}
			score += w
			res.RiskFactors = append(res.RiskFactors, timingFactor(c))
		}
	}

	res.RiskLevel = model.RiskLow
	for _, th := range riskThresholds {
		if score >= th.min-1e-9 {
			res.RiskLevel = th.level
			break
		}
	}
	res.RiskScore = math.Min(score, 1)
	res.Confidence = math.Min(score*confidenceFactor, confidenceCeiling)
}

func timingFactor(c model.CorrelatedEvent) string {
	name := employee(c.BadgeEvent)
	switch c.TimingCategory {
	case model.TimingSimultaneous:
		return fmt.Sprintf("Simultaneous badge access by %s", name)
	case model.TimingShortlyBefore:
		return fmt.Sprintf("Badge access shortly before incident by %s", name)
	default:
		return fmt.Sprintf("Badge access well before incident by %s", name)
	}
}

func employee(b model.BadgeEvent) string {
	if b.EmployeeName != "" {
		return b.EmployeeName
	}
	if b.BadgeID != "" {
		return "badge " + b.BadgeID
	}
	return "unknown employee"
}

func summarize(res model.CorrelationResult) string {
	loc := res.Location
	if loc == "" {
		loc = "Unknown location"
	}
	at := "Unknown time"
	if !res.AnomalyTimestamp.IsZero() {
		at = res.AnomalyTimestamp.Format(time.RFC3339)
	}

	parts := []string{
		fmt.Sprintf("Access anomaly detected at %s", loc),
		fmt.Sprintf("Incident time: %s", at),
	}
	if n := len(res.CorrelatedEvents); n > 0 {
		parts = append(parts, fmt.Sprintf("Found %d badge access events in correlation window", n))
		if s := res.StrongestCorrelation; s != nil {
			parts = append(parts, fmt.Sprintf("Strongest correlation: %s (strength: %.2f)", employee(s.BadgeEvent), s.CorrelationStrength))
		}
	} else {
		parts = append(parts, "No badge access events found in correlation window")
	}
	parts = append(parts, fmt.Sprintf("Risk Level: %s (score: %.2f)", res.RiskLevel, res.RiskScore))
	if len(res.RiskFactors) > 0 {
		parts = append(parts, "Risk factors identified:")
		for _, f := range res.RiskFactors {
			parts = append(parts, "- "+f)
		}
	}
	return strings.Join(parts, "\n")
}
