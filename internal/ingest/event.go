// Package ingest turns untyped event payloads into the tagged event
// variants the engine consumes. Validation happens here, at the boundary,
// so the engine never sees an unrecognized event kind.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/triagewatch/internal/model"
)

// RawEvent is the wire form of a security event.
type RawEvent struct {
	Type          string `json:"type" yaml:"type"`
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	DetectionName string `json:"detection_name,omitempty" yaml:"detection_name,omitempty"`
	Severity      string `json:"severity,omitempty" yaml:"severity,omitempty"`
	SiteName      string `json:"site_name,omitempty" yaml:"site_name,omitempty"`
	CameraName    string `json:"camera_name,omitempty" yaml:"camera_name,omitempty"`
	AlarmName     string `json:"alarm_name,omitempty" yaml:"alarm_name,omitempty"`
	DeviceID      string `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	Source        string `json:"source,omitempty" yaml:"source,omitempty"`
	ControllerID  string `json:"controller_id,omitempty" yaml:"controller_id,omitempty"`
	BadgeID       string `json:"badge_id,omitempty" yaml:"badge_id,omitempty"`
	Timestamp     string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Event converts the payload to its typed variant.
// Unknown types and unparsable timestamps wrap model.ErrInvalidEvent.
// A missing label is not an error.
func (r RawEvent) Event() (model.Event, error) {
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "cv", "cv_threat":
		return model.CVEvent{
			ID:            r.ID,
			DetectionName: r.DetectionName,
			SeverityCode:  r.Severity,
			SiteName:      r.SiteName,
			CameraName:    r.CameraName,
			Timestamp:     ts,
		}, nil
	case "access", "access_control":
		return model.AccessEvent{
			ID:           r.ID,
			AlarmName:    r.AlarmName,
			DeviceID:     r.DeviceID,
			SourceSystem: r.Source,
			ControllerID: r.ControllerID,
			BadgeID:      r.BadgeID,
			Timestamp:    ts,
		}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", model.ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", model.ErrInvalidEvent, r.Type)
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", model.ErrInvalidEvent, s, err)
	}
	return ts, nil
}

// DecodeJSON decodes a single event object or an array of them.
func DecodeJSON(data []byte) ([]model.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raws []RawEvent
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidEvent, err)
		}
	} else {
		var raw RawEvent
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidEvent, err)
		}
		raws = []RawEvent{raw}
	}

	events := make([]model.Event, 0, len(raws))
	for i, r := range raws {
		ev, err := r.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DecodeLine decodes one JSONL line.
func DecodeLine(line []byte) (model.Event, error) {
	var raw RawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidEvent, err)
	}
	return raw.Event()
}

// DecodeJSONL reads one event per line. Blank lines are skipped.
func DecodeJSONL(r io.Reader) ([]model.Event, error) {
	var events []model.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ev, err := DecodeLine(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// ReadFile decodes events from path, or stdin when path is "-".
// Files ending in .jsonl are read line by line.
func ReadFile(path string, stdin io.Reader) ([]model.Event, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if looksLikeJSONL(data) {
			return DecodeJSONL(bytes.NewReader(data))
		}
		return DecodeJSON(data)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".jsonl") || looksLikeJSONL(data) {
		return DecodeJSONL(bytes.NewReader(data))
	}
	return DecodeJSON(data)
}

// looksLikeJSONL reports whether data holds more than one top-level object
// on separate lines.
func looksLikeJSONL(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return bytes.Contains(trimmed, []byte("}\n{")) || bytes.Contains(trimmed, []byte("}\r\n{"))
}

// DecodeBadges decodes a JSON array of badge events.
func DecodeBadges(data []byte) ([]model.BadgeEvent, error) {
	var badges []model.BadgeEvent
	if err := json.Unmarshal(data, &badges); err != nil {
		return nil, fmt.Errorf("%w: badge events: %v", model.ErrCorrelationData, err)
	}
	return badges, nil
}

// WriteJSON atomically writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename to final: %w", err)
	}
	return nil
}
