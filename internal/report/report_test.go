package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/schema"

	"github.com/google/uuid"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sampleEvents() schema.EventCollection {
	return schema.EventCollection{
		{EventID: "1", UserID: "alice", Timestamp: t0, Action: schema.ActionLogin, Role: "viewer", Location: "US", Success: true, IPAddress: "10.0.0.1"},
		{EventID: "2", UserID: "alice", Timestamp: t0.Add(time.Hour), Action: schema.ActionLogin, Role: "viewer", Location: "RU", Success: true, IPAddress: "203.0.113.7"},
		{EventID: "3", UserID: "bob", Timestamp: t0.Add(time.Minute), Action: schema.ActionRoleChange, Role: "viewer", Location: "US", Success: true},
		{EventID: "4", UserID: "bob", Timestamp: t0.Add(10 * time.Minute), Action: schema.ActionRoleChange, Role: "admin", Location: "US", Success: true},
	}
}

func sampleAlerts() []detection.Alert {
	return []detection.Alert{
		{
			ID:               uuid.MustParse("7d0c1c1e-1f9b-4e43-9a53-5d6a1b2c3d4e"),
			UserID:           "alice",
			RuleID:           detection.RuleUnusualLoginLocation.ID,
			Rule:             detection.RuleUnusualLoginLocation.Name,
			Severity:         detection.SeverityHigh,
			Timestamp:        t0.Add(time.Hour),
			Details:          "Baseline=US, New=RU",
			EvidenceEventIDs: []string{"2"},
		},
		{
			ID:               uuid.MustParse("0b6f5a52-8a34-4d8a-b0f4-1b2c3d4e5f60"),
			UserID:           "bob",
			RuleID:           detection.RulePrivilegeEscalation.ID,
			Rule:             detection.RulePrivilegeEscalation.Name,
			Severity:         detection.SeverityHigh,
			Timestamp:        t0.Add(10 * time.Minute),
			Details:          "viewer → admin in 0:09:00",
			EvidenceEventIDs: []string{"3", "4"},
		},
	}
}

func TestSummarize(t *testing.T) {
	alerts := append(sampleAlerts(), detection.Alert{
		UserID:   "carol",
		Rule:     detection.RuleUnusualLoginLocation.Name,
		Severity: detection.SeverityHigh,
	})

	rows := Summarize(alerts)
	want := []SummaryRow{
		{Rule: detection.RuleUnusualLoginLocation.Name, Severity: detection.SeverityHigh, Count: 2},
		{Rule: detection.RulePrivilegeEscalation.Name, Severity: detection.SeverityHigh, Count: 1},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Summarize() = %+v, want %+v", rows, want)
	}

	if got := Summarize(nil); len(got) != 0 {
		t.Errorf("Summarize(nil) = %+v, want empty", got)
	}
}

func TestEvidenceRows(t *testing.T) {
	rows := EvidenceRows(sampleAlerts()[1], sampleEvents())
	want := [][]string{
		{"3", "2025-03-10 09:01:00", "role_change", "", "US", "viewer"},
		{"4", "2025-03-10 09:10:00", "role_change", "", "US", "admin"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("EvidenceRows() = %v, want %v", rows, want)
	}
}

func TestConsole_NoAlerts(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsole(&buf, ConsoleOptions{}).Write(nil, sampleEvents()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, NoAlertsMessage) {
		t.Errorf("expected %q in output:\n%s", NoAlertsMessage, out)
	}
	if !strings.Contains(out, "Total events analyzed: 4") {
		t.Errorf("expected event count in output:\n%s", out)
	}
	if strings.Contains(out, "ALERT #1") {
		t.Error("unexpected alert block")
	}
}

func TestConsole_Alerts(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsole(&buf, ConsoleOptions{}).Write(sampleAlerts(), sampleEvents()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"ALERT SUMMARY",
		"ALERT #1",
		"ALERT #2",
		"Baseline=US, New=RU",
		"viewer → admin in 0:09:00",
		"203.0.113.7",
		"2025-03-10 09:10:00",
		"ip_address",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("expected no ANSI escapes without color")
	}
	if strings.Index(out, "ALERT #1") > strings.Index(out, "ALERT #2") {
		t.Error("alerts out of order")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleAlerts()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if !reflect.DeepEqual(records[0], CSVHeader) {
		t.Errorf("header = %v", records[0])
	}

	row := records[2]
	if row[0] != "bob" || row[1] != detection.RulePrivilegeEscalation.Name || row[2] != "High" {
		t.Errorf("unexpected row %v", row)
	}
	if row[3] != "2025-03-10T09:10:00Z" {
		t.Errorf("timestamp = %s", row[3])
	}
	if row[5] != "3;4" {
		t.Errorf("evidence = %s, want 3;4", row[5])
	}
	if row[6] != detection.RulePrivilegeEscalation.ID {
		t.Errorf("rule_id = %s", row[6])
	}
}

func TestWriteCSVFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "alerts.csv")
	if err := WriteCSVFile(path, sampleAlerts()); err != nil {
		t.Fatalf("WriteCSVFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), strings.Join(CSVHeader, ",")) {
		t.Errorf("unexpected file content:\n%s", data)
	}
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	res := NewResults("iam_logs.csv", sampleAlerts(), sampleEvents())
	if err := RenderHTML(&buf, res); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"iam_logs.csv",
		"Alert #1",
		"Baseline=US, New=RU",
		`class="sev-high"`,
		"203.0.113.7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in HTML output", want)
		}
	}
}

func TestRenderHTML_EscapesInput(t *testing.T) {
	events := schema.EventCollection{
		{EventID: "1", UserID: "<script>alert(1)</script>", Timestamp: t0, Action: schema.ActionLogin, Success: true},
	}
	var buf bytes.Buffer
	if err := RenderHTML(&buf, NewResults("x.csv", nil, events)); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if strings.Contains(buf.String(), "<script>alert(1)</script>") {
		t.Error("user input rendered unescaped")
	}
	if !strings.Contains(buf.String(), NoAlertsMessage) {
		t.Error("expected no-alerts message")
	}
}

func TestRenderIndex(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderIndex(&buf, "No file uploaded"); err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `name="logfile"`) || !strings.Contains(out, "No file uploaded") {
		t.Errorf("unexpected index output:\n%s", out)
	}
}
