// Package ingest loads IAM event logs from CSV into a validated event collection.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"iam-abuse-detector/internal/schema"
)

var (
	// ErrFileNotFound indicates the log file does not exist.
	ErrFileNotFound = errors.New("ingest: file not found")
	// ErrUnsupportedFormat indicates the file is not a CSV file.
	ErrUnsupportedFormat = errors.New("ingest: only CSV files are supported")
	// ErrMissingColumns indicates the header lacks required columns.
	ErrMissingColumns = errors.New("ingest: missing required columns")
	// ErrInvalidTimestamp indicates a timestamp could not be parsed.
	ErrInvalidTimestamp = errors.New("ingest: invalid timestamp format")
	// ErrInvalidRow indicates a row failed parsing or validation.
	ErrInvalidRow = errors.New("ingest: invalid row")
	// ErrTooLarge indicates the input exceeds the configured size limit.
	ErrTooLarge = errors.New("ingest: input too large")
)

// RequiredColumns lists the header columns every log file must carry.
var RequiredColumns = []string{
	"event_id",
	"user_id",
	"timestamp",
	"action",
	"resource",
	"role",
	"ip_address",
	"location",
	"success",
}

// Accepted timestamp layouts. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// Loader reads CSV event logs.
type Loader struct {
	validator *schema.Validator
	maxSize   int64
}

// NewLoader creates a loader that validates every event with v.
func NewLoader(v *schema.Validator) *Loader {
	return &Loader{
		validator: v,
		maxSize:   100 * 1024 * 1024, // 100MB default
	}
}

// WithMaxSize sets the maximum input size in bytes. Zero or less disables the limit.
func (l *Loader) WithMaxSize(n int64) *Loader {
	l.maxSize = n
	return l
}

// CheckExtension rejects names that do not end in .csv.
func CheckExtension(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return nil
}

// UserErrors lists the sentinels that describe bad input rather than a
// failure of the loader itself.
var UserErrors = []error{
	ErrFileNotFound,
	ErrUnsupportedFormat,
	ErrMissingColumns,
	ErrInvalidTimestamp,
	ErrInvalidRow,
	ErrTooLarge,
}

// LoadFile loads the CSV log at path.
func (l *Loader) LoadFile(path string) (schema.EventCollection, error) {
	if err := CheckExtension(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	events, err := l.Load(f)
	if err != nil {
		return nil, err
	}

	slog.Info("event log loaded", "path", path, "events", len(events))
	return events, nil
}

// Load reads a CSV log from r. The first record is the header; column order
// is free and extra columns are ignored.
func (l *Loader) Load(r io.Reader) (schema.EventCollection, error) {
	if l.maxSize > 0 {
		r = &limitedReader{r: r, remaining: l.maxSize}
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(RequiredColumns, ", "))
		}
		return nil, wrapReadErr(err)
	}

	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var events schema.EventCollection
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapReadErr(err)
		}
		if isBlank(record) {
			continue
		}

		event, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if l.validator != nil {
			if err := l.validator.Validate(&event); err != nil {
				return nil, fmt.Errorf("line %d: %w: %v", line, ErrInvalidRow, err)
			}
		}
		events = append(events, event)
	}

	return events, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRecord(record []string, cols map[string]int) (schema.Event, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	ts, err := ParseTimestamp(field("timestamp"))
	if err != nil {
		return schema.Event{}, err
	}

	success, err := ParseBool(field("success"))
	if err != nil {
		return schema.Event{}, fmt.Errorf("%w: success: %v", ErrInvalidRow, err)
	}

	return schema.Event{
		EventID:   field("event_id"),
		UserID:    field("user_id"),
		Timestamp: ts,
		Action:    schema.Action(field("action")),
		Role:      field("role"),
		Location:  field("location"),
		Success:   success,
		Resource:  field("resource"),
		IPAddress: field("ip_address"),
	}, nil
}

// ParseTimestamp parses s using the accepted layouts and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseBool parses the success column. Accepts true/false, 1/0, yes/no
// and t/f in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y":
		return true, nil
	case "false", "f", "0", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func wrapReadErr(err error) error {
	if errors.Is(err, ErrTooLarge) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidRow, err)
}

// limitedReader fails with ErrTooLarge instead of silently truncating.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.remaining <= 0 {
		// Probe for one more byte to tell EOF from overflow.
		var one [1]byte
		n, err := lr.r.Read(one[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > lr.remaining {
		p = p[:lr.remaining]
	}
	n, err := lr.r.Read(p)
	lr.remaining -= int64(n)
	return n, err
}
