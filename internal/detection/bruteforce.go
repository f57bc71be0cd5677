package detection

import (
	"context"
	"fmt"
	"time"

	"iam-abuse-detector/internal/schema"
)

// BruteForceDetector finds, per user, the earliest window of length Window
// holding at least Threshold failed logins.
type BruteForceDetector struct {
	threshold int
	window    time.Duration
}

// NewBruteForceDetector creates a brute-force detector.
func NewBruteForceDetector(threshold int, window time.Duration) *BruteForceDetector {
	return &BruteForceDetector{threshold: threshold, window: window}
}

// Rule returns the rule this detector evaluates.
func (d *BruteForceDetector) Rule() RuleInfo {
	return RuleFailedLogins
}

// Detect emits at most one alert per user.
func (d *BruteForceDetector) Detect(ctx context.Context, events schema.EventCollection) ([]Alert, error) {
	failed := events.Filter(func(e *schema.Event) bool { return e.IsFailedLogin() })

	var alerts []Alert
	for _, group := range failed.GroupByUser() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if alert, ok := d.scanUser(group); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts, nil
}

// scanUser walks window starts in order. The end pointer only moves forward:
// timestamps are sorted, so the window for start i+1 ends no earlier than the
// window for start i. Evidence is the contiguous run [i, end).
func (d *BruteForceDetector) scanUser(group schema.UserGroup) (Alert, bool) {
	attempts := group.Events
	end := 0
	for i := range attempts {
		if end < i+1 {
			end = i + 1
		}
		start := attempts[i].Timestamp
		for end < len(attempts) && attempts[end].Timestamp.Sub(start) <= d.window {
			end++
		}

		count := end - i
		if count < d.threshold {
			continue
		}

		evidence := make([]string, 0, count)
		for _, e := range attempts[i:end] {
			evidence = append(evidence, e.EventID)
		}
		return newAlert(
			RuleFailedLogins,
			group.UserID,
			start,
			fmt.Sprintf("%d failed logins within %s", count, formatElapsed(d.window)),
			evidence,
		), true
	}
	return Alert{}, false
}
