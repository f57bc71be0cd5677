package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iam-abuse-detector/internal/schema"
)

const header = "event_id,user_id,timestamp,action,resource,role,ip_address,location,success\n"

func newTestLoader() *Loader {
	return NewLoader(schema.NewValidatorWithConfig(schema.ValidatorConfig{}))
}

func TestLoad_Valid(t *testing.T) {
	data := header +
		"1,alice,2024-01-01 10:00:00,login,portal,viewer,10.0.0.1,US,True\n" +
		"2,alice,2024-01-01T10:05:00Z,login,portal,viewer,203.0.113.9,RU,false\n" +
		"3,bob,2024-01-01 11:00:00.250000,role_change,iam,admin,10.0.0.2,US,1\n"

	events, err := newTestLoader().Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	first := events[0]
	if first.EventID != "1" || first.UserID != "alice" || first.Action != schema.ActionLogin {
		t.Errorf("unexpected first event %+v", first)
	}
	if !first.Success {
		t.Error("expected first event success")
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, first.Timestamp)
	}

	if events[1].Success {
		t.Error("expected second event failure")
	}
	if events[1].Location != "RU" || events[1].IPAddress != "203.0.113.9" {
		t.Errorf("unexpected second event %+v", events[1])
	}

	if events[2].Timestamp.Nanosecond() != 250_000_000 {
		t.Errorf("expected fractional seconds, got %v", events[2].Timestamp)
	}
	if events[2].Role != "admin" {
		t.Errorf("expected role admin, got %s", events[2].Role)
	}
}

func TestLoad_ColumnOrderAndExtras(t *testing.T) {
	data := "success,location,extra,ip_address,role,resource,action,timestamp,user_id,event_id\n" +
		"yes,DE,x,,editor,bucket,resource_access,2024-02-01 08:00:00,carol,e-9\n"

	events, err := newTestLoader().Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventID != "e-9" || events[0].Location != "DE" || !events[0].Success {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestLoad_HeaderOnly(t *testing.T) {
	events, err := newTestLoader().Load(strings.NewReader(header))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestLoad_SkipsBlankLines(t *testing.T) {
	data := header + "1,alice,2024-01-01 10:00:00,login,,,,US,true\n,,,,,,,,\n"
	events, err := newTestLoader().Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "empty input",
			data:    "",
			wantErr: ErrMissingColumns,
		},
		{
			name:    "missing columns",
			data:    "event_id,user_id,timestamp\n1,alice,2024-01-01 10:00:00\n",
			wantErr: ErrMissingColumns,
		},
		{
			name:    "bad timestamp",
			data:    header + "1,alice,yesterday,login,,,,US,true\n",
			wantErr: ErrInvalidTimestamp,
		},
		{
			name:    "empty timestamp",
			data:    header + "1,alice,,login,,,,US,true\n",
			wantErr: ErrInvalidTimestamp,
		},
		{
			name:    "bad success",
			data:    header + "1,alice,2024-01-01 10:00:00,login,,,,US,maybe\n",
			wantErr: ErrInvalidRow,
		},
		{
			name:    "missing user",
			data:    header + "1,,2024-01-01 10:00:00,login,,,,US,true\n",
			wantErr: ErrInvalidRow,
		},
		{
			name:    "role change without role",
			data:    header + "1,alice,2024-01-01 10:00:00,role_change,,,,US,true\n",
			wantErr: ErrInvalidRow,
		},
		{
			name:    "bad ip",
			data:    header + "1,alice,2024-01-01 10:00:00,login,,,not-an-ip,US,true\n",
			wantErr: ErrInvalidRow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader().Load(strings.NewReader(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_ErrorNamesLine(t *testing.T) {
	data := header +
		"1,alice,2024-01-01 10:00:00,login,,,,US,true\n" +
		"2,alice,bogus,login,,,,US,true\n"
	_, err := newTestLoader().Load(strings.NewReader(data))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected error naming line 3, got %v", err)
	}
}

func TestLoad_TooLarge(t *testing.T) {
	data := header + strings.Repeat("1,alice,2024-01-01 10:00:00,login,,,,US,true\n", 50)
	_, err := newTestLoader().WithMaxSize(int64(len(header) + 10)).Load(strings.NewReader(data))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestLoad_ExactSizeFits(t *testing.T) {
	data := header + "1,alice,2024-01-01 10:00:00,login,,,,US,true\n"
	events, err := newTestLoader().WithMaxSize(int64(len(data))).Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("not found", func(t *testing.T) {
		_, err := newTestLoader().LoadFile(filepath.Join(dir, "missing.csv"))
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "log.json")
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := newTestLoader().LoadFile(path)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("upper case extension", func(t *testing.T) {
		path := filepath.Join(dir, "LOG.CSV")
		data := header + "1,alice,2024-01-01 10:00:00,login,,,,US,true\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		events, err := newTestLoader().LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("expected 1 event, got %d", len(events))
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-05T12:30:00Z", time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)},
		{"2024-03-05T14:30:00+02:00", time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)},
		{"2024-03-05 12:30:00", time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)},
		{"2024-03-05T12:30:00", time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)},
		{"2024-03-05 12:30:00.5", time.Date(2024, 3, 5, 12, 30, 0, 500_000_000, time.UTC)},
		{"2024-03-05 12:30:00+00:00", time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", tt.input, err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"True", true, false},
		{"FALSE", false, false},
		{"1", true, false},
		{"0", false, false},
		{"yes", true, false},
		{"No", false, false},
		{"", false, true},
		{"2", false, true},
	}

	for _, tt := range tests {
		got, err := ParseBool(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBool(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
