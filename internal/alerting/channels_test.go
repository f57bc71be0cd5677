package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/storage/s3"

	"github.com/redis/go-redis/v9"
)

func TestWebhookChannel(t *testing.T) {
	var got WebhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("hook", srv.URL, map[string]string{"Authorization": "Bearer x"}, 0)
	if ch.Name() != "hook" {
		t.Errorf("Name() = %q", ch.Name())
	}
	if err := ch.Send(context.Background(), testAlerts()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.AlertCount != 2 || len(got.Alerts) != 2 {
		t.Errorf("payload = %+v", got)
	}
	if got.Alerts[1].UserID != "bob" {
		t.Errorf("alerts[1].UserID = %q", got.Alerts[1].UserID)
	}
	if auth != "Bearer x" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookChannel("hook", srv.URL, nil, 0).Send(context.Background(), testAlerts())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("Send() error = %v, want 502", err)
	}
}

func TestWebhookChannelSkipsEmpty(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if err := NewWebhookChannel("hook", srv.URL, nil, 0).Send(context.Background(), nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if called {
		t.Error("webhook called for empty run")
	}
}

func TestCSVChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "alerts.csv")
	ch := NewCSVChannel(path)
	if err := ch.Send(context.Background(), testAlerts()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if !strings.Contains(lines[2], "1;2;3") {
		t.Errorf("row %q missing joined evidence", lines[2])
	}
}

func TestLogChannel(t *testing.T) {
	var sb strings.Builder
	ch := NewLogChannel(slog.New(slog.NewTextHandler(&sb, nil)))
	if err := ch.Send(context.Background(), testAlerts()); err != nil {
		t.Fatal(err)
	}
	if strings.Count(sb.String(), "msg=ALERT") != 2 {
		t.Errorf("log output = %q", sb.String())
	}
}

type fakePublisher struct {
	got []detection.Alert
	err error
}

func (f *fakePublisher) PublishAlerts(_ context.Context, alerts []detection.Alert) error {
	f.got = alerts
	return f.err
}

type fakeInserter struct{ got []detection.Alert }

func (f *fakeInserter) WriteAlerts(_ context.Context, alerts []detection.Alert) error {
	f.got = alerts
	return nil
}

type fakeArchiver struct{ got []detection.Alert }

func (f *fakeArchiver) ArchiveAlerts(_ context.Context, alerts []detection.Alert) (*s3.UploadOutput, error) {
	f.got = alerts
	return &s3.UploadOutput{}, nil
}

func TestSinkChannels(t *testing.T) {
	pub := &fakePublisher{}
	ins := &fakeInserter{}
	arc := &fakeArchiver{}

	channels := []Channel{NewKafkaChannel(pub), NewClickHouseChannel(ins), NewS3Channel(arc)}
	d := NewDispatcher(fastConfig(), channels...)
	if _, err := d.Dispatch(context.Background(), testAlerts()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if names := strings.Join(d.Channels(), ","); names != "kafka,clickhouse,s3" {
		t.Errorf("Channels() = %s", names)
	}
	for name, got := range map[string][]detection.Alert{"kafka": pub.got, "clickhouse": ins.got, "s3": arc.got} {
		if len(got) != 2 {
			t.Errorf("%s received %d alerts, want 2", name, len(got))
		}
	}
}

func TestKafkaChannelError(t *testing.T) {
	boom := errors.New("broker down")
	err := NewKafkaChannel(&fakePublisher{err: boom}).Send(context.Background(), testAlerts())
	if !errors.Is(err, boom) {
		t.Errorf("Send() error = %v", err)
	}
}

type fakeStream struct {
	args   []*redis.XAddArgs
	err    error
	closed bool
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func TestRedisChannel(t *testing.T) {
	fake := &fakeStream{}
	ch := newRedisChannel(fake, "iamd:alerts", 1000)

	if err := ch.Send(context.Background(), testAlerts()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(fake.args) != 2 {
		t.Fatalf("XADD calls = %d, want 2", len(fake.args))
	}

	first := fake.args[0]
	if first.Stream != "iamd:alerts" || first.MaxLen != 1000 || !first.Approx {
		t.Errorf("args = %+v", first)
	}
	values := first.Values.(map[string]interface{})
	if values["user_id"] != "alice" || values["rule_id"] != detection.RuleUnusualLoginLocation.ID {
		t.Errorf("values = %v", values)
	}
	if fake.args[1].Values.(map[string]interface{})["evidence"] != "1,2,3" {
		t.Errorf("evidence = %v", fake.args[1].Values)
	}

	if err := ch.Close(); err != nil || !fake.closed {
		t.Errorf("Close() = %v, closed = %v", err, fake.closed)
	}
}

func TestRedisChannelError(t *testing.T) {
	fake := &fakeStream{err: errors.New("READONLY")}
	err := newRedisChannel(fake, "s", 0).Send(context.Background(), testAlerts())
	if err == nil || !strings.Contains(err.Error(), "XADD s") {
		t.Errorf("Send() error = %v", err)
	}
	if len(fake.args) != 1 {
		t.Errorf("XADD calls = %d, want 1 (stop at first failure)", len(fake.args))
	}
}

func TestNewRedisChannelRequiresAddr(t *testing.T) {
	if _, err := NewRedisChannel(RedisConfig{}); err == nil {
		t.Error("expected error for empty addr")
	}
}
