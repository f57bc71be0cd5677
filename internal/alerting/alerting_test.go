package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"iam-abuse-detector/internal/detection"

	"github.com/google/uuid"
)

type fakeChannel struct {
	name  string
	fails int // number of leading calls that fail
	err   error

	mu    sync.Mutex
	calls int
	got   []detection.Alert
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, alerts []detection.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	f.got = alerts
	return nil
}

func testAlerts() []detection.Alert {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []detection.Alert{
		{
			ID:               uuid.New(),
			UserID:           "alice",
			RuleID:           detection.RuleUnusualLoginLocation.ID,
			Rule:             detection.RuleUnusualLoginLocation.Name,
			Severity:         detection.SeverityHigh,
			Timestamp:        ts,
			Details:          "Baseline=US, New=RU",
			EvidenceEventIDs: []string{"7"},
		},
		{
			ID:               uuid.New(),
			UserID:           "bob",
			RuleID:           detection.RuleFailedLogins.ID,
			Rule:             detection.RuleFailedLogins.Name,
			Severity:         detection.SeverityHigh,
			Timestamp:        ts.Add(time.Minute),
			Details:          "3 failed logins within 0:10:00",
			EvidenceEventIDs: []string{"1", "2", "3"},
		},
	}
}

func fastConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
		AttemptTimeout: time.Second,
	}
}

func TestDispatchAllChannels(t *testing.T) {
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	d := NewDispatcher(fastConfig(), a, b)

	alerts := testAlerts()
	records, err := d.Dispatch(context.Background(), alerts)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	for i, name := range []string{"a", "b"} {
		if records[i].Channel != name || records[i].Status != DeliverySent || records[i].Attempts != 1 {
			t.Errorf("records[%d] = %+v", i, records[i])
		}
	}
	if len(a.got) != 2 || len(b.got) != 2 {
		t.Errorf("channels received %d and %d alerts, want 2", len(a.got), len(b.got))
	}
}

func TestDispatchRetries(t *testing.T) {
	flaky := &fakeChannel{name: "flaky", fails: 2, err: errors.New("temporary")}
	d := NewDispatcher(fastConfig(), flaky)

	records, err := d.Dispatch(context.Background(), testAlerts())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if records[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", records[0].Attempts)
	}
	if records[0].Status != DeliverySent {
		t.Errorf("Status = %s, want sent", records[0].Status)
	}
}

func TestDispatchJoinsFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeChannel{name: "bad", fails: 100, err: boom}
	good := &fakeChannel{name: "good"}
	d := NewDispatcher(fastConfig(), bad, good)

	records, err := d.Dispatch(context.Background(), testAlerts())
	if err == nil {
		t.Fatal("Dispatch() expected error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap boom", err)
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q missing channel name", err)
	}
	if records[0].Status != DeliveryFailed || records[0].Attempts != 3 {
		t.Errorf("bad record = %+v", records[0])
	}
	if records[0].LastError != "boom" {
		t.Errorf("LastError = %q", records[0].LastError)
	}
	if records[1].Status != DeliverySent {
		t.Errorf("good record = %+v", records[1])
	}
}

func TestDispatchCanceled(t *testing.T) {
	bad := &fakeChannel{name: "bad", fails: 100, err: errors.New("down")}
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour
	d := NewDispatcher(cfg, bad)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Dispatch(ctx, testAlerts())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if bad.calls != 1 {
		t.Errorf("calls = %d, want 1", bad.calls)
	}
}

func TestAddChannel(t *testing.T) {
	d := NewDispatcher(DefaultDeliveryConfig())
	d.AddChannel(&fakeChannel{name: "x"})
	d.AddChannel(&fakeChannel{name: "y"})

	names := d.Channels()
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Errorf("Channels() = %v", names)
	}
}

func TestDispatchNoChannels(t *testing.T) {
	d := NewDispatcher(DefaultDeliveryConfig())
	records, err := d.Dispatch(context.Background(), testAlerts())
	if err != nil || len(records) != 0 {
		t.Errorf("Dispatch() = %v, %v", records, err)
	}
}
