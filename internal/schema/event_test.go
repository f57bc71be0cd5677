package schema

import (
	"testing"
	"time"
)

func TestEventCollection_SortedByTime(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	events := EventCollection{
		{EventID: "3", UserID: "u", Timestamp: t0.Add(2 * time.Minute)},
		{EventID: "1", UserID: "u", Timestamp: t0},
		{EventID: "2a", UserID: "u", Timestamp: t0.Add(time.Minute)},
		{EventID: "2b", UserID: "u", Timestamp: t0.Add(time.Minute)},
	}

	sorted := events.SortedByTime()

	want := []string{"1", "2a", "2b", "3"}
	for i, id := range want {
		if sorted[i].EventID != id {
			t.Errorf("sorted[%d] = %s, want %s", i, sorted[i].EventID, id)
		}
	}
	if events[0].EventID != "3" {
		t.Error("SortedByTime() must not reorder the receiver")
	}
}

func TestEventCollection_GroupByUser(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	events := EventCollection{
		{EventID: "1", UserID: "bob", Timestamp: t0.Add(time.Minute)},
		{EventID: "2", UserID: "alice", Timestamp: t0},
		{EventID: "3", UserID: "bob", Timestamp: t0},
	}

	groups := events.GroupByUser()
	if len(groups) != 2 {
		t.Fatalf("GroupByUser() returned %d groups, want 2", len(groups))
	}
	if groups[0].UserID != "alice" || groups[1].UserID != "bob" {
		t.Errorf("groups ordered %s,%s, want alice,bob", groups[0].UserID, groups[1].UserID)
	}
	if got := groups[1].Events[0].EventID; got != "3" {
		t.Errorf("bob's first event = %s, want 3", got)
	}
}

func TestEventCollection_WithActionAndLookup(t *testing.T) {
	events := EventCollection{
		{EventID: "1", Action: ActionLogin},
		{EventID: "2", Action: ActionRoleChange},
		{EventID: "3", Action: ActionLogin, Success: false},
	}

	logins := events.WithAction(ActionLogin)
	if len(logins) != 2 {
		t.Errorf("WithAction(login) = %d events, want 2", len(logins))
	}

	found := events.Lookup([]string{"3", "missing", "1"})
	if len(found) != 2 || found[0].EventID != "3" || found[1].EventID != "1" {
		t.Errorf("Lookup() = %+v, want events 3 and 1 in order", found)
	}

	if !events[2].IsFailedLogin() {
		t.Error("IsFailedLogin() = false for unsuccessful login")
	}
	if events[1].IsFailedLogin() {
		t.Error("IsFailedLogin() = true for role change")
	}
}

func TestAction_IsKnown(t *testing.T) {
	if !ActionRoleChange.IsKnown() {
		t.Error("role_change should be known")
	}
	if Action("mfa_reset").IsKnown() {
		t.Error("mfa_reset should not be known")
	}
}
