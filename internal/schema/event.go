// Package schema defines the IAM event model consumed by every detector.
// Events are built once by the ingestion layer and are read-only afterwards.
package schema

import (
	"sort"
	"time"
)

// Action is the kind of IAM activity an event records.
type Action string

const (
	ActionLogin          Action = "login"
	ActionResourceAccess Action = "resource_access"
	ActionRoleChange     Action = "role_change"
)

// IsKnown reports whether the action is one the detectors look at.
// Unknown actions are still valid events; no rule matches them.
func (a Action) IsKnown() bool {
	switch a {
	case ActionLogin, ActionResourceAccess, ActionRoleChange:
		return true
	}
	return false
}

// Event is one IAM log entry.
type Event struct {
	// Required fields
	EventID   string    `json:"event_id" validate:"required,max=128"`
	UserID    string    `json:"user_id" validate:"required,max=256"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Action    Action    `json:"action" validate:"required,max=64"`

	// Role is required for role changes and optional otherwise.
	Role     string `json:"role,omitempty" validate:"required_if=Action role_change,max=64"`
	Location string `json:"location,omitempty" validate:"max=64"`
	Success  bool   `json:"success"`

	// Display-only fields
	Resource  string `json:"resource,omitempty" validate:"max=1024"`
	IPAddress string `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

// IsFailedLogin reports whether the event is an unsuccessful login.
func (e *Event) IsFailedLogin() bool {
	return e.Action == ActionLogin && !e.Success
}

// EventCollection is the full set of events for one analysis run.
type EventCollection []Event

// Filter returns the events matching keep, in collection order.
func (c EventCollection) Filter(keep func(*Event) bool) EventCollection {
	out := make(EventCollection, 0, len(c))
	for i := range c {
		if keep(&c[i]) {
			out = append(out, c[i])
		}
	}
	return out
}

// WithAction returns the events with the given action, in collection order.
func (c EventCollection) WithAction(action Action) EventCollection {
	return c.Filter(func(e *Event) bool { return e.Action == action })
}

// SortedByTime returns a copy ordered by timestamp. Events sharing a
// timestamp keep their collection order.
func (c EventCollection) SortedByTime() EventCollection {
	out := make(EventCollection, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// UserGroup is one user's events.
type UserGroup struct {
	UserID string
	Events EventCollection
}

// GroupByUser splits the collection per user. Groups are ordered by user id
// and each group is sorted by timestamp.
func (c EventCollection) GroupByUser() []UserGroup {
	byUser := make(map[string]EventCollection)
	for _, e := range c {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	groups := make([]UserGroup, 0, len(users))
	for _, u := range users {
		groups = append(groups, UserGroup{UserID: u, Events: byUser[u].SortedByTime()})
	}
	return groups
}

// Index returns the events keyed by event id.
func (c EventCollection) Index() map[string]*Event {
	idx := make(map[string]*Event, len(c))
	for i := range c {
		idx[c[i].EventID] = &c[i]
	}
	return idx
}

// Lookup returns the events with the given ids, in the order given.
// Unknown ids are skipped.
func (c EventCollection) Lookup(ids []string) EventCollection {
	idx := c.Index()
	out := make(EventCollection, 0, len(ids))
	for _, id := range ids {
		if e, ok := idx[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}
