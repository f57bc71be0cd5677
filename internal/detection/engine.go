package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"iam-abuse-detector/internal/schema"

	"golang.org/x/sync/errgroup"
)

// Config configures the built-in detectors.
type Config struct {
	HighRiskLocations []string `yaml:"high_risk_locations"`
	// RoleHierarchy lists roles lowest privilege first.
	RoleHierarchy       []string          `yaml:"role_hierarchy"`
	FailedLogin         FailedLoginConfig `yaml:"failed_login"`
	PrivilegeEscalation EscalationConfig  `yaml:"privilege_escalation"`
	// Disabled holds rule IDs to skip.
	Disabled []string `yaml:"disabled,omitempty"`
}

// FailedLoginConfig configures the brute-force detector.
type FailedLoginConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// EscalationConfig configures the privilege-escalation detector.
type EscalationConfig struct {
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the default detection configuration.
func DefaultConfig() Config {
	return Config{
		HighRiskLocations: []string{"RU"},
		RoleHierarchy:     append([]string(nil), DefaultRoles...),
		FailedLogin: FailedLoginConfig{
			Threshold: 3,
			Window:    10 * time.Minute,
		},
		PrivilegeEscalation: EscalationConfig{
			Window: 30 * time.Minute,
		},
	}
}

// Validate validates the detection configuration.
func (c *Config) Validate() error {
	if c.FailedLogin.Threshold <= 0 {
		return fmt.Errorf("failed_login.threshold must be positive")
	}
	if c.FailedLogin.Window < 0 {
		return fmt.Errorf("failed_login.window must not be negative")
	}
	if c.PrivilegeEscalation.Window < 0 {
		return fmt.Errorf("privilege_escalation.window must not be negative")
	}
	if _, err := NewRoleHierarchy(c.RoleHierarchy); err != nil {
		return fmt.Errorf("role_hierarchy: %w", err)
	}
	return nil
}

// Engine runs a fixed set of detectors over one event collection.
type Engine struct {
	detectors []Detector
}

// NewEngine creates an engine running detectors in the given order.
func NewEngine(detectors ...Detector) *Engine {
	return &Engine{detectors: detectors}
}

// NewEngineFromConfig builds the geo, brute-force and escalation detectors,
// in that order, skipping disabled rules.
func NewEngineFromConfig(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	roles, err := NewRoleHierarchy(cfg.RoleHierarchy)
	if err != nil {
		return nil, err
	}

	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, id := range cfg.Disabled {
		disabled[id] = true
	}

	all := []Detector{
		NewGeoAnomalyDetector(cfg.HighRiskLocations),
		NewBruteForceDetector(cfg.FailedLogin.Threshold, cfg.FailedLogin.Window),
		NewEscalationDetector(roles, cfg.PrivilegeEscalation.Window),
	}

	detectors := make([]Detector, 0, len(all))
	for _, d := range all {
		if disabled[d.Rule().ID] {
			slog.Info("detection rule disabled", "rule_id", d.Rule().ID)
			continue
		}
		detectors = append(detectors, d)
	}
	return NewEngine(detectors...), nil
}

// Rules returns the rules of the configured detectors.
func (e *Engine) Rules() []RuleInfo {
	rules := make([]RuleInfo, 0, len(e.detectors))
	for _, d := range e.detectors {
		rules = append(rules, d.Rule())
	}
	return rules
}

// Run executes every detector concurrently and concatenates their alerts in
// detector order. The first detector error cancels the others and is returned.
func (e *Engine) Run(ctx context.Context, events schema.EventCollection) ([]Alert, error) {
	start := time.Now()
	results := make([][]Alert, len(e.detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		g.Go(func() error {
			alerts, err := d.Detect(gctx, events)
			if err != nil {
				return fmt.Errorf("%s: %w", d.Rule().ID, err)
			}
			results[i] = alerts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var alerts []Alert
	for i, r := range results {
		slog.Debug("detector finished",
			"rule_id", e.detectors[i].Rule().ID,
			"alerts", len(r),
		)
		alerts = append(alerts, r...)
	}

	slog.Info("detection run complete",
		"events", len(events),
		"detectors", len(e.detectors),
		"alerts", len(alerts),
		"duration", time.Since(start),
	)
	return alerts, nil
}
