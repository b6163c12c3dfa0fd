// Package ratelimit throttles repeated notifications for the same alarm.
package ratelimit

import "time"

// Limit allows at most MaxRequests per key inside one fixed Window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window"       json:"window"`
}

// Enabled returns true if both bounds are set.
func (l *Limit) Enabled() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}
