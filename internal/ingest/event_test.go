package ingest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/triagewatch/internal/model"
)

func TestRawEventVariants(t *testing.T) {
	cv, err := RawEvent{
		Type:          "CV_THREAT",
		ID:            "evt-1",
		DetectionName: "Person Brandishing Firearm",
		Severity:      "SEV0",
		SiteName:      "HQ",
		CameraName:    "Lobby Cam",
		Timestamp:     "2026-02-20T12:00:00Z",
	}.Event()
	if err != nil {
		t.Fatalf("cv: %v", err)
	}
	c, ok := cv.(model.CVEvent)
	if !ok {
		t.Fatalf("expected CVEvent, got %T", cv)
	}
	if c.SeverityCode != "SEV0" || c.CameraName != "Lobby Cam" {
		t.Errorf("unexpected fields %+v", c)
	}
	if !c.Timestamp.Equal(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", c.Timestamp)
	}

	ac, err := RawEvent{Type: "access", AlarmName: "Door Held Open", DeviceID: "D-1", Source: "door_contact", BadgeID: "B-7"}.Event()
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	a, ok := ac.(model.AccessEvent)
	if !ok {
		t.Fatalf("expected AccessEvent, got %T", ac)
	}
	if a.SourceSystem != "door_contact" || a.BadgeID != "B-7" {
		t.Errorf("unexpected fields %+v", a)
	}
	if !a.Timestamp.IsZero() {
		t.Errorf("expected zero timestamp, got %v", a.Timestamp)
	}
}

func TestRawEventInvalid(t *testing.T) {
	cases := []RawEvent{
		{},
		{Type: "intercom"},
		{Type: "cv", Timestamp: "yesterday"},
	}
	for _, r := range cases {
		if _, err := r.Event(); !errors.Is(err, model.ErrInvalidEvent) {
			t.Errorf("%+v: expected ErrInvalidEvent, got %v", r, err)
		}
	}
}

func TestMissingLabelIsNotAnError(t *testing.T) {
	ev, err := RawEvent{Type: "access", DeviceID: "D-9"}.Event()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Label() != model.UnknownLabel {
		t.Errorf("expected %q, got %q", model.UnknownLabel, ev.Label())
	}
}

func TestDecodeJSONObjectAndArray(t *testing.T) {
	one, err := DecodeJSON([]byte(`{"type":"cv","detection_name":"Loitering"}`))
	if err != nil {
		t.Fatalf("object: %v", err)
	}
	if len(one) != 1 || one[0].Label() != "Loitering" {
		t.Errorf("unexpected events %+v", one)
	}

	many, err := DecodeJSON([]byte(`[{"type":"cv","detection_name":"A"},{"type":"access","alarm_name":"B"}]`))
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if len(many) != 2 || many[1].Type() != model.EventAccess {
		t.Errorf("unexpected events %+v", many)
	}

	_, err = DecodeJSON([]byte(`[{"type":"cv"},{"type":"fax"}]`))
	if err == nil || !strings.Contains(err.Error(), "event 1") {
		t.Errorf("expected indexed error, got %v", err)
	}
	if _, err := DecodeJSON([]byte(`{not json`)); !errors.Is(err, model.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestDecodeJSONL(t *testing.T) {
	input := `{"type":"cv","detection_name":"A"}

{"type":"access","alarm_name":"B"}
`
	events, err := DecodeJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	_, err = DecodeJSONL(strings.NewReader("{\"type\":\"cv\"}\n{\"type\":\"nope\"}\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestReadFileDetectsJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	if err := os.WriteFile(path, []byte("{\"type\":\"cv\",\"detection_name\":\"A\"}\n{\"type\":\"cv\",\"detection_name\":\"B\"}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	events, err := ReadFile(path, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}

	events, err = ReadFile("-", strings.NewReader(`[{"type":"access","alarm_name":"C"}]`))
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	if len(events) != 1 || events[0].Label() != "C" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestDecodeBadges(t *testing.T) {
	data := []byte(`[{"badge_id":"B-1","employee_name":"J. Doe","employee_active":false,"location":"Lobby","timestamp":"2026-02-20T12:00:00Z"}]`)
	badges, err := DecodeBadges(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(badges) != 1 || badges[0].EmployeeActive || badges[0].Location != "Lobby" {
		t.Errorf("unexpected badges %+v", badges)
	}
	if _, err := DecodeBadges([]byte(`{`)); !errors.Is(err, model.ErrCorrelationData) {
		t.Errorf("expected ErrCorrelationData, got %v", err)
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "decisions.json")
	want := []model.TriageDecision{{ThreatLevel: model.ThreatHigh, PriorityScore: 7}}
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []model.TriageDecision
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].ThreatLevel != model.ThreatHigh {
		t.Errorf("unexpected content %s", data)
	}
}
