package model

import (
	"fmt"
	"strings"
)

// ThreatLevel is the assessed severity of a security event.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// ThreatRank maps threat levels to a comparable integer.
// LOW < MEDIUM < HIGH < CRITICAL. Unknown levels rank 0.
var ThreatRank = map[ThreatLevel]int{
	ThreatLow:      1,
	ThreatMedium:   2,
	ThreatHigh:     3,
	ThreatCritical: 4,
}

// ThreatLevels lists all levels in ascending order.
var ThreatLevels = []ThreatLevel{ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical}

// Rank returns the position of the level in the total order.
func (l ThreatLevel) Rank() int {
	return ThreatRank[l]
}

// Valid reports whether l is one of the four known levels.
func (l ThreatLevel) Valid() bool {
	_, ok := ThreatRank[l]
	return ok
}

// AtLeast reports whether l is ranked at or above other.
func (l ThreatLevel) AtLeast(other ThreatLevel) bool {
	return l.Rank() >= other.Rank()
}

// RequiresEscalation is true for HIGH and CRITICAL.
func (l ThreatLevel) RequiresEscalation() bool {
	return l.AtLeast(ThreatHigh)
}

// Label returns the lowercase name used in alert routing and metrics.
func (l ThreatLevel) Label() string {
	return strings.ToLower(string(l))
}

// MaxThreat returns the higher of two levels. Ties return a.
func MaxThreat(a, b ThreatLevel) ThreatLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseThreatLevel maps a case-insensitive name to a ThreatLevel.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	l := ThreatLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown threat level %q", s)
	}
	return l, nil
}

// RiskLevel is the aggregate verdict of badge correlation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskRank maps risk levels to a comparable integer.
var RiskRank = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank returns the position of the level in the total order.
func (r RiskLevel) Rank() int {
	return RiskRank[r]
}

// Threat converts a risk level to the equivalent threat level.
func (r RiskLevel) Threat() ThreatLevel {
	switch r {
	case RiskCritical:
		return ThreatCritical
	case RiskHigh:
		return ThreatHigh
	case RiskMedium:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
