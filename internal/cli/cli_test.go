package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/triagewatch/internal/model"
)

const doorProcedures = `
procedures:
  - id: SOP-DOOR
    title: Door Ajar Escalation
    category: access
    triggers: ["door ajar"]
    priority_override: high
    timeline: "URGENT (within 2 minutes)"
    required_actions: ["Dispatch guard to door"]
    notifications: ["Facilities"]
  - id: SOP-BROKEN
    category: access
`

func resetFlags() {
	configPath, logLevel = "", ""
	classifyEvents, classifyFormat = "-", "text"
	triageEvents, triageProcedures, triageDB, triageCategory, triageFormat, triageOutput = "-", "", "", "", "text", ""
	triageMaxResults, triageAuditLog = 0, ""
	runProcedures, runDB, runMetricsAddr, runCategory, runAuditLog = "", "", "", "", ""
	tailLines = 10
	runWatch = false
	correlateDB, correlateBadges, correlateLocation, correlateAt, correlateAnomaly, correlateFormat = "", "", "", "", "", "text"
	correlateWindow = 0
	badgesDB = ""
	proceduresDB, proceduresFile, proceduresCategory, proceduresFormat = "", "", "", "text"
	checkScenario, checkFormat = "", "text"
	initPath, initForce = "", false
}

// execute runs the root command with a config path that does not exist,
// so defaults apply unless the test passes its own --config.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	hasConfig := false
	for _, a := range args {
		if a == "--config" {
			hasConfig = true
		}
	}
	if !hasConfig {
		args = append(args, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	}
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "triagewatch"`) {
		t.Errorf("unexpected output %s", out)
	}
	if !strings.Contains(out, "sha256:") {
		t.Errorf("expected config hash in output %s", out)
	}
}

func TestInitConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	if _, err := execute(t, "", "init-config"); err != nil {
		t.Fatalf("init-config failed: %v", err)
	}
	path := filepath.Join(tmpDir, ".triagewatch", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if !strings.Contains(string(data), "window_seconds: 60") {
		t.Error("config.yaml missing correlation section")
	}

	sentinel := "# sentinel content\n"
	if err := os.WriteFile(path, []byte(sentinel), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "", "init-config")
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != sentinel {
		t.Error("config.yaml was overwritten without --force")
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("unexpected output %s", out)
	}

	if _, err := execute(t, "", "init-config", "--force"); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) == sentinel {
		t.Error("config.yaml was NOT overwritten with --force")
	}
}

func TestClassifyJSON(t *testing.T) {
	in := `{"type":"cv","detection_name":"Person Brandishing Firearm","severity":"SEV0","site_name":"HQ","camera_name":"Lobby"}`
	out, err := execute(t, in, "classify", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var got []model.TriageDecision
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].ThreatLevel != model.ThreatCritical {
		t.Errorf("expected one CRITICAL decision, got %+v", got)
	}
}

func TestClassifyRejectsUnknownType(t *testing.T) {
	if _, err := execute(t, `{"type":"fax"}`, "classify"); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestTriageWithProcedureFile(t *testing.T) {
	dir := t.TempDir()
	procs := writeFile(t, dir, "procedures.yaml", doorProcedures)
	outFile := filepath.Join(dir, "out", "decisions.json")

	in := `[{"type":"access","alarm_name":"Door Ajar","device_id":"D-3","source":"panel"},{"type":"access","alarm_name":"Battery Low Warning","device_id":"R-1","source":"battery_monitor"}]`
	out, err := execute(t, in, "triage", "--procedures", procs, "--format", "json", "--output", outFile)
	if err != nil {
		t.Fatal(err)
	}
	var got []model.MergedDecision
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	if got[0].ThreatLevel != model.ThreatHigh || got[0].OriginalThreatLevel != model.ThreatMedium {
		t.Errorf("expected MEDIUM raised to HIGH, got %s from %s", got[0].ThreatLevel, got[0].OriginalThreatLevel)
	}
	if !got[0].SOPConsulted {
		t.Error("expected SOP consultation")
	}
	if _, err := os.Stat(outFile); err != nil {
		t.Errorf("expected output file: %v", err)
	}

	text, err := execute(t, in, "triage", "--procedures", procs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "procedures: SOP-DOOR") || !strings.Contains(text, "original:   MEDIUM") {
		t.Errorf("unexpected text output:\n%s", text)
	}
	if !strings.Contains(text, "  - Dispatch guard to door\n") {
		t.Errorf("expected procedure action in text output:\n%s", text)
	}
	if !strings.Contains(text, "notify:     Facilities") {
		t.Errorf("expected procedure notification in text output:\n%s", text)
	}
}

func TestTriageRejectsBothSources(t *testing.T) {
	_, err := execute(t, `{"type":"cv"}`, "triage", "--procedures", "a.yaml", "--db", "b.db")
	if err == nil || !strings.Contains(err.Error(), "either --procedures or --db") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestProceduresImportListAndTriageFromDB(t *testing.T) {
	dir := t.TempDir()
	procs := writeFile(t, dir, "procedures.yaml", doorProcedures)
	db := filepath.Join(dir, "triage.db")

	out, err := execute(t, "", "procedures", "import", "--db", db, procs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Imported 1 procedures") || !strings.Contains(out, "(1 skipped)") {
		t.Errorf("unexpected import output %s", out)
	}

	out, err = execute(t, "", "procedures", "list", "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "SOP-DOOR") || !strings.Contains(out, "HIGH") {
		t.Errorf("unexpected list output %s", out)
	}

	out, err = execute(t, "", "procedures", "list", "--db", db, "--category", "weapons", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("expected empty list, got %s", out)
	}

	out, err = execute(t, `{"type":"access","alarm_name":"Door Ajar","device_id":"D-3"}`, "triage", "--db", db, "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var got []model.MergedDecision
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].ThreatLevel != model.ThreatHigh {
		t.Errorf("expected HIGH from database procedure, got %+v", got)
	}
}

func TestProceduresListRequiresSource(t *testing.T) {
	if _, err := execute(t, "", "procedures", "list"); err == nil {
		t.Error("expected error without --db or --procedures")
	}
}

func TestRunStreamsDecisionsAndAlerts(t *testing.T) {
	var alerts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alerts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	procs := writeFile(t, dir, "procedures.yaml", doorProcedures)
	conf := writeFile(t, dir, "config.yaml", "alerts:\n  - url: "+srv.URL+"\n    events: [sop_override]\n")

	in := strings.Join([]string{
		`{"type":"access","id":"a-1","alarm_name":"Door Ajar","device_id":"D-3"}`,
		`not json`,
		``,
		`{"type":"access","id":"a-2","alarm_name":"Battery Low Warning","device_id":"R-1","source":"battery_monitor"}`,
	}, "\n")
	logPath := filepath.Join(dir, "decisions.jsonl")
	out, err := execute(t, in, "run", "--procedures", procs, "--config", conf, "--audit-log", logPath)
	if err != nil {
		t.Fatal(err)
	}

	var lines []model.MergedDecision
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var d model.MergedDecision
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			t.Fatalf("invalid line %q: %v", sc.Text(), err)
		}
		lines = append(lines, d)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 decisions, got %d:\n%s", len(lines), out)
	}
	if lines[0].ThreatLevel != model.ThreatHigh {
		t.Errorf("expected HIGH, got %s", lines[0].ThreatLevel)
	}
	if alerts.Load() != 1 {
		t.Errorf("expected 1 alert for the override, got %d", alerts.Load())
	}

	verified, err := execute(t, "", "audit", "verify", logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(verified, "OK: 2 decisions verified (1 escalated, 1 overridden by procedure)") {
		t.Errorf("unexpected verify output %s", verified)
	}

	tail, err := execute(t, "", "audit", "tail", logPath, "-n", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(tail, "Battery Low Warning") || strings.Contains(tail, "Door Ajar") {
		t.Errorf("unexpected tail output %s", tail)
	}
}

func TestRunWatchRequiresProcedures(t *testing.T) {
	if _, err := execute(t, "", "run", "--watch"); err == nil {
		t.Error("expected error for --watch without --procedures")
	}
}

func TestCorrelateWithBadgeFile(t *testing.T) {
	dir := t.TempDir()
	badges := writeFile(t, dir, "badges.json", `[
  {"badge_id":"B-1","employee_name":"Former Contractor","employee_active":false,"location":"Lobby","timestamp":"2026-01-02T03:04:04Z"}
]`)
	out, err := execute(t, "", "correlate", "--badges", badges, "--location", "Lobby", "--at", "2026-01-02T03:04:05Z", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var res model.CorrelationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if res.RiskLevel != model.RiskCritical {
		t.Errorf("expected Critical, got %s", res.RiskLevel)
	}
	if res.AnomalyEventID == "" || res.CorrelationID == "" {
		t.Errorf("expected generated ids, got %q/%q", res.AnomalyEventID, res.CorrelationID)
	}
	if res.WindowSeconds != 60 {
		t.Errorf("expected default window 60, got %d", res.WindowSeconds)
	}
}

func TestBadgesImportThenCorrelateFromDB(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "triage.db")
	badges := writeFile(t, dir, "badges.json", `[
  {"badge_id":"B-1","employee_name":"Former Contractor","employee_active":false,"location":"Lobby","timestamp":"2026-01-02T03:04:04Z"},
  {"badge_id":"B-2","employee_name":"Night Guard","employee_active":true,"location":"Dock","timestamp":"2026-01-02T03:04:05Z"}
]`)

	out, err := execute(t, "", "badges", "import", "--db", db, badges)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Imported 2 badge events") {
		t.Errorf("unexpected import output %s", out)
	}

	out, err = execute(t, "", "correlate", "--db", db, "--location", "lobby", "--at", "2026-01-02T03:04:05Z", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var res model.CorrelationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if res.SourceError != "" {
		t.Errorf("expected healthy source, got %q", res.SourceError)
	}
	if len(res.CorrelatedEvents) != 1 || res.CorrelatedEvents[0].BadgeEvent.BadgeID != "B-1" {
		t.Errorf("expected only the lobby badge, got %+v", res.CorrelatedEvents)
	}
	if res.RiskLevel != model.RiskCritical {
		t.Errorf("expected Critical for inactive employee, got %s", res.RiskLevel)
	}
}

func TestBadgesImportRequiresDB(t *testing.T) {
	if _, err := execute(t, "", "badges", "import", "x.json"); err == nil {
		t.Error("expected error without --db")
	}
}

func TestCorrelateWithoutSourceDegrades(t *testing.T) {
	out, err := execute(t, "", "correlate", "--location", "Dock", "--at", "2026-01-02T03:04:05Z", "--window", "45")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "WARNING: badge source unavailable") {
		t.Errorf("expected degraded warning, got %s", out)
	}
}

func TestCorrelateRejectsBadTime(t *testing.T) {
	if _, err := execute(t, "", "correlate", "--location", "Dock", "--at", "noon"); err == nil {
		t.Error("expected error for invalid --at")
	}
}

func TestCheckScenarios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
name: "scenario A"
cases:
  - event: {type: cv, detection_name: Person Brandishing Firearm, severity: SEV0}
    expect: {threat_level: critical, escalation: true}
`)
	writeFile(t, dir, "b.yaml", `
name: "scenario B"
cases:
  - event: {type: access, alarm_name: Battery Low Warning, source: battery_monitor}
    expect: {escalation: false, max_priority: 5}
`)

	out, err := execute(t, "", "check", "--scenario", filepath.Join(dir, "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 of 2 cases passed.") {
		t.Errorf("unexpected output %s", out)
	}
}

func TestCheckNoMatches(t *testing.T) {
	_, err := execute(t, "", "check", "--scenario", filepath.Join(t.TempDir(), "*.yaml"))
	if err == nil || !strings.Contains(err.Error(), "no scenario files") {
		t.Errorf("unexpected error %v", err)
	}
}
