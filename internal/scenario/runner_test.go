package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ppiankov/triagewatch/internal/classify"
	"github.com/ppiankov/triagewatch/internal/engine"
	"github.com/ppiankov/triagewatch/internal/ingest"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func boolPtr(b bool) *bool { return &b }

func plainEngine() *engine.Engine {
	return engine.New(engine.Config{Classifier: classify.New(classify.DefaultClassifierConfig())})
}

func TestAllCasesPass(t *testing.T) {
	s := &Scenario{
		Name: "firearm",
		Cases: []Case{
			{
				Event:  ingest.RawEvent{Type: "cv", DetectionName: "Person Brandishing Firearm", Severity: "SEV0", SiteName: "HQ", CameraName: "Lobby"},
				Expect: Expect{ThreatLevel: "critical", Escalation: boolPtr(true), MinPriority: 9, TimelineContains: "2 min"},
			},
		},
	}

	result := Run(context.Background(), s, plainEngine())
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %d: %+v", result.Failed, result.Cases)
	}
	if result.Passed != 1 {
		t.Errorf("expected 1 passed, got %d", result.Passed)
	}
}

func TestFailedAssertionDetected(t *testing.T) {
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{
			// battery alarms are maintenance, never critical
			{
				Event:  ingest.RawEvent{Type: "access", AlarmName: "Battery Low Warning", DeviceID: "RDR-7", Source: "battery_monitor"},
				Expect: Expect{ThreatLevel: "CRITICAL", Escalation: boolPtr(true), MinPriority: 8},
			},
		},
	}

	result := Run(context.Background(), s, plainEngine())
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
	if result.Passed != 0 {
		t.Errorf("expected 0 passed, got %d", result.Passed)
	}
	c := result.Cases[0]
	if len(c.Failures) != 3 {
		t.Errorf("expected 3 failures, got %v", c.Failures)
	}
	if c.Priority != 4 {
		t.Errorf("expected priority 4, got %d", c.Priority)
	}
}

func TestInvalidEventFailsCase(t *testing.T) {
	s := &Scenario{Name: "bad", Cases: []Case{{Event: ingest.RawEvent{Type: "fax"}}}}
	result := Run(context.Background(), s, plainEngine())
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	if !strings.Contains(result.Cases[0].Failures[0], "invalid event") {
		t.Errorf("unexpected failure %v", result.Cases[0].Failures)
	}
}

func TestLoadAndRunWithProcedures(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "procedures.yaml", `
procedures:
  - id: SOP-DOOR
    title: Door Ajar Escalation
    category: access
    triggers: ["door ajar"]
    priority_override: high
    timeline: "URGENT (within 2 minutes)"
    required_actions: ["Dispatch guard to door"]
`)
	path := writeScenario(t, dir, "door.yaml", `
name: "door ajar escalates"
procedures: procedures.yaml
cases:
  - name: override applies
    event: {type: access, alarm_name: Door Ajar, device_id: D-3, source: panel}
    expect:
      threat_level: high
      escalation: true
      timeline_contains: URGENT
      procedures: [SOP-DOOR]
`)

	result, err := LoadAndRun(context.Background(), path, classify.DefaultTimelines(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
	if result.File != path {
		t.Errorf("expected file %s, got %s", path, result.File)
	}
	if result.Name != "door ajar escalates" {
		t.Errorf("unexpected name %q", result.Name)
	}
}

func TestLoadAndRunMissingProcedures(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "s.yaml", "name: x\nprocedures: missing.yaml\ncases: []\n")
	if _, err := LoadAndRun(context.Background(), path, classify.DefaultTimelines(), nil); err == nil {
		t.Error("expected error for missing procedures file")
	}
}

func TestLoadAndRunInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "bad.yaml", "cases: [unterminated")
	if _, err := LoadAndRun(context.Background(), path, classify.DefaultTimelines(), nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfiguredTimelines(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "t.yaml", `
name: timelines
cases:
  - event: {type: cv, detection_name: Person Brandishing Firearm, severity: SEV0}
    expect: {timeline_contains: "within 1 minute)"}
`)
	tl := classify.DefaultTimelines()
	tl.Critical = 1
	result, err := LoadAndRun(context.Background(), path, tl, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed != 1 {
		t.Errorf("expected pass, got %+v", result.Cases)
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "good", Total: 1, Passed: 1},
		{Name: "bad", Total: 2, Passed: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Passed: true, Event: "ok"},
			{Index: 2, Event: "Battery Low Warning - RDR-7", Failures: []string{"threat_level: expected CRITICAL, got LOW"}},
		}},
	}
	out := FormatText(results)
	for _, want := range []string{
		"Checking 2 scenario files...",
		"  PASS  good (1/1)",
		"  FAIL  bad (1/2)",
		"case 2:",
		"threat_level: expected CRITICAL, got LOW",
		"2 of 3 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", Total: 1, Passed: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "x"`) {
		t.Errorf("unexpected json %s", out)
	}
}
