package detection

import (
	"context"
	"fmt"

	"iam-abuse-detector/internal/schema"
)

// GeoAnomalyDetector flags logins from a high-risk location that differs from
// the user's baseline, the location of the user's first login.
type GeoAnomalyDetector struct {
	highRisk map[string]struct{}
}

// NewGeoAnomalyDetector creates a detector for the given high-risk location codes.
func NewGeoAnomalyDetector(highRiskLocations []string) *GeoAnomalyDetector {
	highRisk := make(map[string]struct{}, len(highRiskLocations))
	for _, loc := range highRiskLocations {
		highRisk[loc] = struct{}{}
	}
	return &GeoAnomalyDetector{highRisk: highRisk}
}

// Rule returns the rule this detector evaluates.
func (d *GeoAnomalyDetector) Rule() RuleInfo {
	return RuleUnusualLoginLocation
}

// Detect scans logins in timestamp order. The baseline is set once per user
// and never moves, so every later high-risk login alerts on its own.
func (d *GeoAnomalyDetector) Detect(ctx context.Context, events schema.EventCollection) ([]Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logins := events.WithAction(schema.ActionLogin).SortedByTime()
	baseline := make(map[string]string)

	var alerts []Alert
	for _, e := range logins {
		base, ok := baseline[e.UserID]
		if !ok {
			baseline[e.UserID] = e.Location
			continue
		}

		if e.Location == base || !d.isHighRisk(e.Location) {
			continue
		}

		alerts = append(alerts, newAlert(
			RuleUnusualLoginLocation,
			e.UserID,
			e.Timestamp,
			fmt.Sprintf("Baseline=%s, New=%s", base, e.Location),
			[]string{e.EventID},
		))
	}
	return alerts, nil
}

func (d *GeoAnomalyDetector) isHighRisk(location string) bool {
	_, ok := d.highRisk[location]
	return ok
}
