package detection

import (
	"context"
	"reflect"
	"testing"
	"time"

	"iam-abuse-detector/internal/schema"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func login(id, user, location string, ts time.Time, success bool) schema.Event {
	return schema.Event{
		EventID:   id,
		UserID:    user,
		Timestamp: ts,
		Action:    schema.ActionLogin,
		Role:      RoleViewer,
		Location:  location,
		Success:   success,
		Resource:  "console",
		IPAddress: "34.12.45.1",
	}
}

func roleChange(id, user, role string, ts time.Time) schema.Event {
	return schema.Event{
		EventID:   id,
		UserID:    user,
		Timestamp: ts,
		Action:    schema.ActionRoleChange,
		Role:      role,
		Location:  "US",
		Success:   true,
	}
}

func detect(t *testing.T, d Detector, events schema.EventCollection) []Alert {
	t.Helper()
	alerts, err := d.Detect(context.Background(), events)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	return alerts
}

func assertEvidence(t *testing.T, alert Alert, want ...string) {
	t.Helper()
	if !reflect.DeepEqual(alert.EvidenceEventIDs, want) {
		t.Errorf("evidence = %v, want %v", alert.EvidenceEventIDs, want)
	}
}

// assertEvidenceExists checks that every evidence id refers to an input event.
func assertEvidenceExists(t *testing.T, alerts []Alert, events schema.EventCollection) {
	t.Helper()
	idx := events.Index()
	for _, a := range alerts {
		for _, id := range a.EvidenceEventIDs {
			if _, ok := idx[id]; !ok {
				t.Errorf("alert %s references unknown event %s", a.RuleID, id)
			}
		}
	}
}
