package errors

import (
	"errors"
	"fmt"
	"testing"
)

func withProduction(t *testing.T, on bool) {
	t.Helper()
	prev := productionMode
	SetProductionMode(on)
	t.Cleanup(func() { SetProductionMode(prev) })
}

func TestSanitizeString(t *testing.T) {
	withProduction(t, true)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"path stripped", "open /var/lib/iamd/logs.csv: permission denied", "open logs.csv: permission denied"},
		{"backend hidden", "clickhouse: dial tcp 10.0.0.5:9000: connection refused", GenericMessage},
		{"credential hidden", "bad dsn password=hunter2", GenericMessage},
		{"stack hidden", "panic\ngoroutine 1 [running]:", GenericMessage},
		{"plain kept", "no file uploaded", "no file uploaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeString(tt.in); got != tt.want {
				t.Errorf("SanitizeString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeDevelopment(t *testing.T) {
	withProduction(t, false)

	in := "open /etc/iamd/config.yaml: no such file"
	if got := SanitizeString(in); got != in {
		t.Errorf("SanitizeString() = %q, want unchanged", got)
	}
	err := errors.New(in)
	if SanitizeError(err) != err {
		t.Error("SanitizeError() should return err unchanged")
	}
}

func TestWrapSanitized(t *testing.T) {
	withProduction(t, true)

	if WrapSanitized(nil, "x") != nil {
		t.Error("WrapSanitized(nil) != nil")
	}
	got := WrapSanitized(errors.New("read /tmp/upload-123/file.csv failed"), "load")
	if got.Error() != "load: read file.csv failed" {
		t.Errorf("WrapSanitized() = %q", got)
	}
}

var errBadInput = errors.New("ingest: invalid row")

func TestPublicMessage(t *testing.T) {
	userErr := fmt.Errorf("line 4: %w: bad ip", errBadInput)
	internal := errors.New("redis: XADD iamd:alerts: READONLY")

	withProduction(t, true)
	if got := PublicMessage(userErr, errBadInput); got != userErr.Error() {
		t.Errorf("user error = %q", got)
	}
	if got := PublicMessage(internal, errBadInput); got != GenericMessage {
		t.Errorf("internal error = %q", got)
	}
	if got := PublicMessage(fmt.Errorf("/srv/data/x.csv: %w", errBadInput), errBadInput); got != "x.csv: ingest: invalid row" {
		t.Errorf("path in user error = %q", got)
	}
	if PublicMessage(nil) != "" {
		t.Error("PublicMessage(nil) not empty")
	}

	SetProductionMode(false)
	if got := PublicMessage(internal); got != internal.Error() {
		t.Errorf("development = %q", got)
	}
}
