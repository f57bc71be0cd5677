// Package detection provides the rule-based IAM anomaly detectors and the
// pipeline that runs them over one event collection.
package detection

import (
	"context"
	"fmt"
	"time"

	"iam-abuse-detector/internal/schema"

	"github.com/google/uuid"
)

// Severity levels for alerts.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// MITREMapping maps a rule to MITRE ATT&CK.
type MITREMapping struct {
	TacticID    string `json:"tactic_id" yaml:"tactic_id"`
	TacticName  string `json:"tactic_name" yaml:"tactic_name"`
	TechniqueID string `json:"technique_id" yaml:"technique_id"`
}

// RuleInfo describes a detection rule.
type RuleInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
	MITRE       *MITREMapping `json:"mitre,omitempty"`
}

// Built-in rules.
var (
	RuleUnusualLoginLocation = RuleInfo{
		ID:          "iam-geo-001",
		Name:        "Unusual Login Location (High-Risk Country)",
		Description: "Login from a high-risk location that differs from the user's baseline location",
		Severity:    SeverityHigh,
		MITRE: &MITREMapping{
			TacticID:    "TA0001",
			TacticName:  "Initial Access",
			TechniqueID: "T1078",
		},
	}

	RuleFailedLogins = RuleInfo{
		ID:          "iam-auth-001",
		Name:        "Multiple Failed Login Attempts",
		Description: "Failed logins for one user reaching the threshold inside the window",
		Severity:    SeverityHigh,
		MITRE: &MITREMapping{
			TacticID:    "TA0006",
			TacticName:  "Credential Access",
			TechniqueID: "T1110",
		},
	}

	RulePrivilegeEscalation = RuleInfo{
		ID:          "iam-priv-001",
		Name:        "Rapid Privilege Escalation",
		Description: "Consecutive role changes that raise the user's rank inside the window",
		Severity:    SeverityHigh,
		MITRE: &MITREMapping{
			TacticID:    "TA0004",
			TacticName:  "Privilege Escalation",
			TechniqueID: "T1098",
		},
	}
)

// BuiltinRules lists the built-in rules in pipeline order.
func BuiltinRules() []RuleInfo {
	return []RuleInfo{RuleUnusualLoginLocation, RuleFailedLogins, RulePrivilegeEscalation}
}

// LookupRule returns the built-in rule with the given id.
func LookupRule(id string) (RuleInfo, bool) {
	for _, r := range BuiltinRules() {
		if r.ID == id {
			return r, true
		}
	}
	return RuleInfo{}, false
}

// Alert is one detection result.
type Alert struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id"`
	RuleID           string    `json:"rule_id"`
	Rule             string    `json:"rule"`
	Severity         Severity  `json:"severity"`
	Timestamp        time.Time `json:"timestamp"`
	Details          string    `json:"details"`
	EvidenceEventIDs []string  `json:"evidence_event_ids"`
}

func newAlert(rule RuleInfo, userID string, ts time.Time, details string, evidence []string) Alert {
	return Alert{
		ID:               uuid.New(),
		UserID:           userID,
		RuleID:           rule.ID,
		Rule:             rule.Name,
		Severity:         rule.Severity,
		Timestamp:        ts,
		Details:          details,
		EvidenceEventIDs: evidence,
	}
}

// Detector evaluates one rule over an event collection.
// Implementations must not modify the collection.
type Detector interface {
	Rule() RuleInfo
	Detect(ctx context.Context, events schema.EventCollection) ([]Alert, error)
}

// formatElapsed renders a duration as H:MM:SS, with a leading day count
// when the duration spans whole days ("1 day, 2:00:00").
func formatElapsed(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)

	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)

	clock := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	switch {
	case days == 1:
		return fmt.Sprintf("%s1 day, %s", sign, clock)
	case days > 1:
		return fmt.Sprintf("%s%d days, %s", sign, days, clock)
	}
	return sign + clock
}
