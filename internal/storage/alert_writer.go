package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"iam-abuse-detector/internal/detection"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// AlertsTable is the table alerts are written to.
const AlertsTable = "iam_alerts"

const insertAlertsQuery = `
	INSERT INTO iam_alerts (
		alert_id, rule_id, rule, severity, user_id,
		timestamp, details, evidence_event_ids, mitre_technique
	)
`

// BatchPreparer prepares ClickHouse insert batches.
type BatchPreparer interface {
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
}

// AlertWriterConfig holds configuration for the alert writer.
type AlertWriterConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultAlertWriterConfig returns the default alert writer configuration.
func DefaultAlertWriterConfig() AlertWriterConfig {
	return AlertWriterConfig{
		BatchSize:  1000,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// AlertWriter inserts alerts in batches.
type AlertWriter struct {
	db     BatchPreparer
	config AlertWriterConfig

	totalWritten atomic.Uint64
	totalFailed  atomic.Uint64
	batchCount   atomic.Uint64
}

// NewAlertWriter creates a new AlertWriter.
func NewAlertWriter(db BatchPreparer, cfg AlertWriterConfig) *AlertWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultAlertWriterConfig().BatchSize
	}
	return &AlertWriter{db: db, config: cfg}
}

// WriteAlerts inserts alerts, splitting them into batches of BatchSize.
// Each batch is retried independently.
func (w *AlertWriter) WriteAlerts(ctx context.Context, alerts []detection.Alert) error {
	for start := 0; start < len(alerts); start += w.config.BatchSize {
		end := min(start+w.config.BatchSize, len(alerts))
		if err := w.writeWithRetry(ctx, alerts[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *AlertWriter) writeWithRetry(ctx context.Context, alerts []detection.Alert) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				w.totalFailed.Add(uint64(len(alerts)))
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.insertBatch(ctx, alerts); err != nil {
			lastErr = err
			slog.Warn("alert batch insert failed",
				"attempt", attempt+1,
				"max_retries", w.config.MaxRetries,
				"error", err,
			)
			continue
		}

		w.totalWritten.Add(uint64(len(alerts)))
		w.batchCount.Add(1)
		return nil
	}

	w.totalFailed.Add(uint64(len(alerts)))
	return WrapBatchError(AlertsTable, lastErr, w.config.MaxRetries)
}

func (w *AlertWriter) insertBatch(ctx context.Context, alerts []detection.Alert) error {
	batch, err := w.db.PrepareBatch(ctx, insertAlertsQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, a := range alerts {
		technique := ""
		if rule, ok := detection.LookupRule(a.RuleID); ok && rule.MITRE != nil {
			technique = rule.MITRE.TechniqueID
		}

		evidence := a.EvidenceEventIDs
		if evidence == nil {
			evidence = []string{}
		}

		if err := batch.Append(
			a.ID,
			a.RuleID,
			a.Rule,
			string(a.Severity),
			a.UserID,
			a.Timestamp,
			a.Details,
			evidence,
			technique,
		); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append alert %s: %w", a.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	slog.Debug("alert batch inserted", "count", len(alerts))
	return nil
}

// Metrics returns writer statistics.
func (w *AlertWriter) Metrics() AlertWriterMetrics {
	return AlertWriterMetrics{
		Written: w.totalWritten.Load(),
		Failed:  w.totalFailed.Load(),
		Batches: w.batchCount.Load(),
	}
}

// AlertWriterMetrics holds alert writer statistics.
type AlertWriterMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
}
