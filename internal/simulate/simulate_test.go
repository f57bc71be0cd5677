package simulate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/ingest"
	"iam-abuse-detector/internal/schema"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func TestBuildDeterministic(t *testing.T) {
	s := DefaultScenario(testNow)

	a, err := s.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, err := s.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different events")
	}

	s.Seed = 7
	c, _ := s.Build()
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced identical events")
	}
}

func TestBuildShape(t *testing.T) {
	s := DefaultScenario(testNow)
	events, err := s.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// background + one baseline login per user + brute force + two promotions
	want := s.Events + len(s.Users) + s.BruteForceAttempts + 2
	if len(events) != want {
		t.Errorf("len = %d, want %d", len(events), want)
	}

	seen := make(map[string]bool)
	v := schema.NewValidator()
	for i, e := range events {
		if i > 0 && e.Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events not sorted at %d", i)
		}
		if seen[e.EventID] {
			t.Fatalf("duplicate event id %s", e.EventID)
		}
		seen[e.EventID] = true
		if err := v.Validate(&e); err != nil {
			t.Fatalf("event %s invalid: %v", e.EventID, err)
		}
		end := s.Start.Add(s.Span)
		if e.Timestamp.Before(s.Start) || e.Timestamp.After(end) {
			t.Errorf("event %s at %v outside span", e.EventID, e.Timestamp)
		}
	}

	counts := Summary(events)
	if counts[schema.ActionLogin] == 0 || counts[schema.ActionResourceAccess] == 0 || counts[schema.ActionRoleChange] == 0 {
		t.Errorf("action counts = %v", counts)
	}
}

func TestAttackTriggersEveryRule(t *testing.T) {
	for _, seed := range []uint64{1, 42, 1337} {
		s := DefaultScenario(testNow)
		s.Seed = seed
		events, err := s.Build()
		if err != nil {
			t.Fatalf("seed %d: Build() error = %v", seed, err)
		}

		engine, err := detection.NewEngineFromConfig(detection.DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		alerts, err := engine.Run(context.Background(), events)
		if err != nil {
			t.Fatalf("seed %d: Run() error = %v", seed, err)
		}

		rules := make(map[string]bool)
		for _, a := range alerts {
			if a.UserID == s.CompromisedUser {
				rules[a.RuleID] = true
			}
		}
		for _, r := range detection.BuiltinRules() {
			if !rules[r.ID] {
				t.Errorf("seed %d: compromised user missing %s alert", seed, r.ID)
			}
		}
	}
}

func TestNoAttack(t *testing.T) {
	s := DefaultScenario(testNow)
	s.CompromisedUser = ""
	events, err := s.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, e := range events {
		if e.IsFailedLogin() || e.Location == "RU" {
			t.Fatalf("unexpected attack event %+v", e)
		}
	}
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Scenario)
		errMsg string
	}{
		{"negative events", func(s *Scenario) { s.Events = -1 }, "events"},
		{"zero span", func(s *Scenario) { s.Span = 0 }, "span"},
		{"no users", func(s *Scenario) { s.Users = nil }, "user"},
		{"no resources", func(s *Scenario) { s.Resources = nil }, "resource"},
		{"unknown role", func(s *Scenario) { s.Users[0].Role = "root" }, "role"},
		{"missing ip pool", func(s *Scenario) { s.Users[0].HomeLocation = "FR" }, "IP pool"},
		{"unknown victim", func(s *Scenario) { s.CompromisedUser = "mallory" }, "not a configured user"},
		{"attack outside span", func(s *Scenario) { s.AttackOffset = 8 * 24 * time.Hour }, "inside the span"},
		{"no attack pool", func(s *Scenario) { s.AttackLocation = "CN" }, "attack location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultScenario(testNow)
			tt.modify(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestWriteCSVLoads(t *testing.T) {
	events, err := DefaultScenario(testNow).Build()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, events); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), strings.Join(Columns, ",")+"\n") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	loaded, err := ingest.NewLoader(schema.NewValidator()).Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != len(events) {
		t.Fatalf("loaded %d events, want %d", len(loaded), len(events))
	}
	if !loaded[0].Timestamp.Equal(events[0].Timestamp) || loaded[0].Success != events[0].Success {
		t.Errorf("first event = %+v, want %+v", loaded[0], events[0])
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "logs.csv")
	if err := WriteCSVFile(path, nil); err != nil {
		t.Fatalf("WriteCSVFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strings.Join(Columns, ",") {
		t.Errorf("content = %q", data)
	}
}
