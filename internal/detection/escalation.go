package detection

import (
	"context"
	"fmt"
	"time"

	"iam-abuse-detector/internal/schema"
)

// EscalationDetector flags a role change that raises the user's rank above
// the previous role change within Window. Only adjacent role changes are compared.
type EscalationDetector struct {
	roles  *RoleHierarchy
	window time.Duration
}

// NewEscalationDetector creates a privilege-escalation detector.
func NewEscalationDetector(roles *RoleHierarchy, window time.Duration) *EscalationDetector {
	return &EscalationDetector{roles: roles, window: window}
}

// Rule returns the rule this detector evaluates.
func (d *EscalationDetector) Rule() RuleInfo {
	return RulePrivilegeEscalation
}

// Detect emits at most one alert per user. A role missing from the hierarchy
// aborts the run with ErrUnknownRole.
func (d *EscalationDetector) Detect(ctx context.Context, events schema.EventCollection) ([]Alert, error) {
	changes := events.WithAction(schema.ActionRoleChange)

	var alerts []Alert
	for _, group := range changes.GroupByUser() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alert, ok, err := d.scanUser(group)
		if err != nil {
			return nil, err
		}
		if ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts, nil
}

func (d *EscalationDetector) scanUser(group schema.UserGroup) (Alert, bool, error) {
	var prev *schema.Event
	prevRank := 0

	for i := range group.Events {
		cur := &group.Events[i]
		rank, err := d.roles.Rank(cur.Role)
		if err != nil {
			return Alert{}, false, fmt.Errorf("event %s (user %s): %w", cur.EventID, cur.UserID, err)
		}

		if prev != nil && rank > prevRank {
			elapsed := cur.Timestamp.Sub(prev.Timestamp)
			if elapsed <= d.window {
				return newAlert(
					RulePrivilegeEscalation,
					group.UserID,
					cur.Timestamp,
					fmt.Sprintf("%s → %s in %s", prev.Role, cur.Role, formatElapsed(elapsed)),
					[]string{prev.EventID, cur.EventID},
				), true, nil
			}
		}

		prev = cur
		prevRank = rank
	}
	return Alert{}, false, nil
}
