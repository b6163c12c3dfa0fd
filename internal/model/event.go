package model

import (
	"fmt"
	"strings"
	"time"
)

// EventType discriminates the Event variants.
type EventType string

const (
	EventCV     EventType = "CV_THREAT"
	EventAccess EventType = "ACCESS_CONTROL"
)

// UnknownLabel replaces a missing primary label.
const UnknownLabel = "Unknown"

// Field is a named contextual value carried into reasoning text.
type Field struct {
	Name  string
	Value string
}

// Event is a raw security event. Implementations are immutable values.
type Event interface {
	Type() EventType
	// Label is the detection or alarm name.
	Label() string
	// Context is the secondary text used for location/source criticality.
	Context() string
	// Fields lists the contextual fields in reasoning order.
	Fields() []Field
	// Summary is the one-line description used as SOP search context.
	Summary() string
	// Signature identifies events that classify identically.
	Signature() string
	OccurredAt() time.Time
}

// CVEvent is a computer-vision detection.
type CVEvent struct {
	ID            string    `json:"id,omitempty"`
	DetectionName string    `json:"detection_name"`
	SeverityCode  string    `json:"severity"`
	SiteName      string    `json:"site_name"`
	CameraName    string    `json:"camera_name"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e CVEvent) Type() EventType { return EventCV }

func (e CVEvent) Label() string {
	return labelOrUnknown(e.DetectionName)
}

// Location joins site and camera as "site > camera".
func (e CVEvent) Location() string {
	return fmt.Sprintf("%s > %s", orDefault(e.SiteName, "Unknown Site"), orDefault(e.CameraName, "Unknown Camera"))
}

// Severity returns the normalized severity code (e.g. SEV0).
func (e CVEvent) Severity() string {
	return strings.ToUpper(strings.TrimSpace(e.SeverityCode))
}

func (e CVEvent) Context() string { return e.Location() }

func (e CVEvent) Fields() []Field {
	return []Field{{Name: "Location", Value: e.Location()}}
}

func (e CVEvent) Summary() string {
	return fmt.Sprintf("%s detected at %s (%s)", e.Label(), e.Location(), orDefault(e.SiteName, "Unknown Site"))
}

func (e CVEvent) Signature() string {
	return signature(EventCV, e.DetectionName, e.SeverityCode, e.SiteName, e.CameraName)
}

func (e CVEvent) OccurredAt() time.Time { return e.Timestamp }

// AccessEvent is an access-control alarm.
type AccessEvent struct {
	ID           string    `json:"id,omitempty"`
	AlarmName    string    `json:"alarm_name"`
	DeviceID     string    `json:"device_id"`
	SourceSystem string    `json:"source"`
	ControllerID string    `json:"controller_id,omitempty"`
	BadgeID      string    `json:"badge_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e AccessEvent) Type() EventType { return EventAccess }

func (e AccessEvent) Label() string {
	return labelOrUnknown(e.AlarmName)
}

// Source returns the source system, defaulted when empty.
func (e AccessEvent) Source() string {
	return orDefault(e.SourceSystem, "Unknown Source")
}

// Device returns the device id, defaulted when empty.
func (e AccessEvent) Device() string {
	return orDefault(e.DeviceID, "Unknown Device")
}

func (e AccessEvent) Context() string { return e.Source() }

func (e AccessEvent) Fields() []Field {
	return []Field{
		{Name: "Device", Value: e.Device()},
		{Name: "Source", Value: e.Source()},
	}
}

func (e AccessEvent) Summary() string {
	return fmt.Sprintf("%s - %s (%s)", e.Label(), e.Device(), e.Source())
}

func (e AccessEvent) Signature() string {
	return signature(EventAccess, e.AlarmName, e.DeviceID, e.SourceSystem)
}

func (e AccessEvent) OccurredAt() time.Time { return e.Timestamp }

func labelOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return UnknownLabel
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func signature(t EventType, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(t))
	for _, p := range parts {
		b.WriteByte(0x1f)
		b.WriteString(p)
	}
	return b.String()
}
