package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"iam-abuse-detector/internal/detection"
)

// EvidenceSeparator joins evidence ids in a single CSV cell.
const EvidenceSeparator = ";"

// CSVHeader is the column order of exported alerts.
var CSVHeader = []string{
	"user_id",
	"rule",
	"severity",
	"timestamp",
	"details",
	"evidence_event_ids",
	"rule_id",
	"alert_id",
}

// WriteCSV writes alerts as CSV with a header row.
func WriteCSV(w io.Writer, alerts []detection.Alert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, a := range alerts {
		record := []string{
			a.UserID,
			a.Rule,
			string(a.Severity),
			a.Timestamp.UTC().Format(time.RFC3339),
			a.Details,
			strings.Join(a.EvidenceEventIDs, EvidenceSeparator),
			a.RuleID,
			a.ID.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write alert %s: %w", a.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes alerts to path, creating parent directories.
func WriteCSVFile(path string, alerts []detection.Alert) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, alerts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
