// Package simulate generates synthetic IAM logs with a scripted account
// takeover hidden among ordinary activity.
package simulate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/schema"
)

// TimeLayout is the timestamp format written to generated logs.
const TimeLayout = "2006-01-02 15:04:05"

// Columns is the header of generated logs.
var Columns = []string{
	"event_id", "user_id", "timestamp", "action", "success",
	"role", "resource", "ip_address", "location",
}

// UserProfile is a user's normal behaviour.
type UserProfile struct {
	ID           string `yaml:"id"`
	HomeLocation string `yaml:"home_location"`
	Role         string `yaml:"role"`
}

// Scenario configures one generated log.
type Scenario struct {
	Events    int           // background events
	Start     time.Time     // first possible event time
	Span      time.Duration // background events fall in [Start, Start+Span]
	Users     []UserProfile
	Roles     []string // lowest privilege first
	Resources []string
	IPPools   map[string][]string // addresses per location

	CompromisedUser    string
	AttackLocation     string
	AttackOffset       time.Duration // attack start relative to Start
	BruteForceAttempts int
	BruteForceSpan     time.Duration // failed logins fall in this window
	EscalationDelay    time.Duration // first role change after attack start
	EscalationSpan     time.Duration // role changes fall in this window

	// NormalEscalationRate is the chance a background role change promotes
	// an uncompromised user.
	NormalEscalationRate float64
	Seed                 uint64
}

// DefaultScenario returns five users over the week before now, with
// user_3 taken over from RU on the last day.
func DefaultScenario(now time.Time) Scenario {
	start := now.UTC().Add(-7 * 24 * time.Hour).Truncate(time.Second)
	return Scenario{
		Events: 300,
		Start:  start,
		Span:   7 * 24 * time.Hour,
		Users: []UserProfile{
			{ID: "user_1", HomeLocation: "US", Role: detection.RoleViewer},
			{ID: "user_2", HomeLocation: "US", Role: detection.RoleEditor},
			{ID: "user_3", HomeLocation: "UK", Role: detection.RoleViewer},
			{ID: "user_4", HomeLocation: "DE", Role: detection.RoleEditor},
			{ID: "user_5", HomeLocation: "US", Role: detection.RoleViewer},
		},
		Roles:     append([]string(nil), detection.DefaultRoles...),
		Resources: []string{"s3_bucket", "db_server", "config_file"},
		IPPools: map[string][]string{
			"US": {"34.12.45.1", "34.12.45.2"},
			"UK": {"51.140.10.1", "51.140.10.2"},
			"DE": {"18.196.5.1", "18.196.5.2"},
			"RU": {"185.220.101.1"},
		},
		CompromisedUser:      "user_3",
		AttackLocation:       "RU",
		AttackOffset:         6 * 24 * time.Hour,
		BruteForceAttempts:   5,
		BruteForceSpan:       8 * time.Minute,
		EscalationDelay:      10 * time.Minute,
		EscalationSpan:       20 * time.Minute,
		NormalEscalationRate: 0.05,
		Seed:                 42,
	}
}

// Validate checks the scenario is internally consistent.
func (s *Scenario) Validate() error {
	if s.Events < 0 {
		return errors.New("simulate: events must not be negative")
	}
	if s.Span <= 0 {
		return errors.New("simulate: span must be positive")
	}
	if len(s.Users) == 0 {
		return errors.New("simulate: at least one user is required")
	}
	if len(s.Resources) == 0 {
		return errors.New("simulate: at least one resource is required")
	}

	roles, err := detection.NewRoleHierarchy(s.Roles)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	found := false
	for _, u := range s.Users {
		if _, err := roles.Rank(u.Role); err != nil {
			return fmt.Errorf("simulate: user %s: %w", u.ID, err)
		}
		if len(s.IPPools[u.HomeLocation]) == 0 {
			return fmt.Errorf("simulate: no IP pool for location %q", u.HomeLocation)
		}
		if u.ID == s.CompromisedUser {
			found = true
		}
	}

	if s.CompromisedUser == "" {
		return nil
	}
	if !found {
		return fmt.Errorf("simulate: compromised user %q is not a configured user", s.CompromisedUser)
	}
	if len(s.IPPools[s.AttackLocation]) == 0 {
		return fmt.Errorf("simulate: no IP pool for attack location %q", s.AttackLocation)
	}
	if s.AttackOffset <= 0 || s.AttackOffset > s.Span {
		return errors.New("simulate: attack offset must fall inside the span")
	}
	if s.BruteForceAttempts < 0 || s.BruteForceSpan < 0 || s.EscalationDelay < 0 || s.EscalationSpan < 0 {
		return errors.New("simulate: attack timings must not be negative")
	}
	return nil
}

// generator holds the per-build state.
type generator struct {
	s      *Scenario
	rng    *rand.Rand
	roles  *detection.RoleHierarchy
	users  map[string]UserProfile
	role   map[string]string // current role per user
	events schema.EventCollection
}

// Build generates the log. The same scenario always yields the same events.
// Events are ordered by timestamp and numbered in generation order.
func (s Scenario) Build() (schema.EventCollection, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	roles, _ := detection.NewRoleHierarchy(s.Roles)
	g := &generator{
		s:     &s,
		rng:   rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15)),
		roles: roles,
		users: make(map[string]UserProfile, len(s.Users)),
		role:  make(map[string]string, len(s.Users)),
	}
	for _, u := range s.Users {
		g.users[u.ID] = u
		g.role[u.ID] = u.Role
	}

	g.baselineLogins()
	for i := 0; i < s.Events; i++ {
		g.background()
	}
	if s.CompromisedUser != "" {
		g.attack()
	}

	return g.events.SortedByTime(), nil
}

// baselineLogins gives every user a successful home login at the start so
// each user's location baseline is known.
func (g *generator) baselineLogins() {
	for i, u := range g.s.Users {
		g.emit(u.ID, g.s.Start.Add(time.Duration(i)*time.Minute), schema.ActionLogin, true, u.HomeLocation)
	}
}

var actionWeights = []struct {
	action schema.Action
	weight float64
}{
	{schema.ActionLogin, 0.5},
	{schema.ActionResourceAccess, 0.35},
	{schema.ActionRoleChange, 0.15},
}

func (g *generator) pickAction() schema.Action {
	r := g.rng.Float64()
	for _, w := range actionWeights {
		if r < w.weight {
			return w.action
		}
		r -= w.weight
	}
	return actionWeights[len(actionWeights)-1].action
}

func (g *generator) background() {
	u := g.s.Users[g.rng.IntN(len(g.s.Users))]
	action := g.pickAction()
	ts := g.s.Start.Add(time.Duration(g.rng.Int64N(int64(g.s.Span/time.Minute)+1)) * time.Minute)

	if action == schema.ActionRoleChange && u.ID != g.s.CompromisedUser &&
		g.rng.Float64() < g.s.NormalEscalationRate {
		g.promote(u.ID)
	}
	g.emit(u.ID, ts, action, true, u.HomeLocation)
}

// attack emits the failed logins from the attack location followed by a
// stepwise climb to the top role.
func (g *generator) attack() {
	user := g.s.CompromisedUser
	at := g.s.Start.Add(g.s.AttackOffset)

	for i := 0; i < g.s.BruteForceAttempts; i++ {
		g.emit(user, at.Add(g.jitter(g.s.BruteForceSpan)), schema.ActionLogin, false, g.s.AttackLocation)
	}

	var steps int
	for r := g.role[user]; ; steps++ {
		next, ok := g.roles.Next(r)
		if !ok {
			break
		}
		r = next
	}
	if steps == 0 {
		return
	}

	// Spread the steps evenly so they stay ordered inside the window.
	step := g.s.EscalationSpan / time.Duration(steps)
	ts := at.Add(g.s.EscalationDelay)
	for i := 0; i < steps; i++ {
		g.promote(user)
		g.emit(user, ts.Add(g.jitter(step)), schema.ActionRoleChange, true, g.s.AttackLocation)
		ts = ts.Add(step)
	}
}

func (g *generator) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(g.rng.Int64N(int64(max/time.Second)+1)) * time.Second
}

func (g *generator) promote(user string) {
	if next, ok := g.roles.Next(g.role[user]); ok {
		g.role[user] = next
	}
}

func (g *generator) emit(user string, ts time.Time, action schema.Action, success bool, location string) {
	pool := g.s.IPPools[location]
	g.events = append(g.events, schema.Event{
		EventID:   strconv.Itoa(len(g.events) + 1),
		UserID:    user,
		Timestamp: ts,
		Action:    action,
		Role:      g.role[user],
		Location:  location,
		Success:   success,
		Resource:  g.s.Resources[g.rng.IntN(len(g.s.Resources))],
		IPAddress: pool[g.rng.IntN(len(pool))],
	})
}

// WriteCSV writes events in the ingest CSV format.
func WriteCSV(w io.Writer, events schema.EventCollection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, e := range events {
		record := []string{
			e.EventID,
			e.UserID,
			e.Timestamp.UTC().Format(TimeLayout),
			string(e.Action),
			strconv.FormatBool(e.Success),
			e.Role,
			e.Resource,
			e.IPAddress,
			e.Location,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes events to path, creating parent directories.
func WriteCSVFile(path string, events schema.EventCollection) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("simulate: create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	if err := WriteCSV(f, events); err != nil {
		f.Close()
		return fmt.Errorf("simulate: write %s: %w", path, err)
	}
	return f.Close()
}

// Summary counts generated events per action.
func Summary(events schema.EventCollection) map[schema.Action]int {
	counts := make(map[schema.Action]int)
	for _, e := range events {
		counts[e.Action]++
	}
	return counts
}
