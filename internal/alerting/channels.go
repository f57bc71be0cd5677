package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/report"
	"iam-abuse-detector/internal/storage/s3"
)

// WebhookPayload is the JSON body posted by WebhookChannel.
type WebhookPayload struct {
	Source     string            `json:"source"`
	SentAt     time.Time         `json:"sent_at"`
	AlertCount int               `json:"alert_count"`
	Alerts     []detection.Alert `json:"alerts"`
}

// WebhookChannel posts a run's alerts as one JSON document.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates a new webhook channel.
func NewWebhookChannel(name, url string, headers map[string]string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		name:    name,
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *WebhookChannel) Name() string {
	return w.name
}

// Send posts nothing when there are no alerts.
func (w *WebhookChannel) Send(ctx context.Context, alerts []detection.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(WebhookPayload{
		Source:     "iam-abuse-detector",
		SentAt:     time.Now().UTC(),
		AlertCount: len(alerts),
		Alerts:     alerts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// CSVChannel writes the alerts CSV export. The file is rewritten on every
// run, so an empty run leaves a header-only file.
type CSVChannel struct {
	path string
}

// NewCSVChannel creates a channel writing to path.
func NewCSVChannel(path string) *CSVChannel {
	return &CSVChannel{path: path}
}

func (c *CSVChannel) Name() string {
	return "csv"
}

func (c *CSVChannel) Send(_ context.Context, alerts []detection.Alert) error {
	return report.WriteCSVFile(c.path, alerts)
}

// LogChannel logs each alert.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a channel logging to logger.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Name() string {
	return "log"
}

func (l *LogChannel) Send(_ context.Context, alerts []detection.Alert) error {
	for _, a := range alerts {
		l.logger.Warn("ALERT",
			"alert_id", a.ID,
			"rule_id", a.RuleID,
			"severity", a.Severity,
			"user_id", a.UserID,
			"details", a.Details,
		)
	}
	return nil
}

// AlertPublisher publishes alerts to a broker. *kafka.Producer implements it.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []detection.Alert) error
}

// KafkaChannel publishes one message per alert.
type KafkaChannel struct {
	producer AlertPublisher
}

// NewKafkaChannel creates a Kafka channel.
func NewKafkaChannel(producer AlertPublisher) *KafkaChannel {
	return &KafkaChannel{producer: producer}
}

func (k *KafkaChannel) Name() string {
	return "kafka"
}

func (k *KafkaChannel) Send(ctx context.Context, alerts []detection.Alert) error {
	return k.producer.PublishAlerts(ctx, alerts)
}

// AlertInserter stores alerts in a table. *storage.AlertWriter implements it.
type AlertInserter interface {
	WriteAlerts(ctx context.Context, alerts []detection.Alert) error
}

// ClickHouseChannel inserts alerts into the iam_alerts table.
type ClickHouseChannel struct {
	writer AlertInserter
}

// NewClickHouseChannel creates a ClickHouse channel.
func NewClickHouseChannel(writer AlertInserter) *ClickHouseChannel {
	return &ClickHouseChannel{writer: writer}
}

func (c *ClickHouseChannel) Name() string {
	return "clickhouse"
}

func (c *ClickHouseChannel) Send(ctx context.Context, alerts []detection.Alert) error {
	return c.writer.WriteAlerts(ctx, alerts)
}

// AlertArchiver uploads a run archive. *s3.Archiver implements it.
type AlertArchiver interface {
	ArchiveAlerts(ctx context.Context, alerts []detection.Alert) (*s3.UploadOutput, error)
}

// S3Channel archives each run's alerts as one object.
type S3Channel struct {
	archiver AlertArchiver
}

// NewS3Channel creates an S3 archive channel.
func NewS3Channel(archiver AlertArchiver) *S3Channel {
	return &S3Channel{archiver: archiver}
}

func (s *S3Channel) Name() string {
	return "s3"
}

func (s *S3Channel) Send(ctx context.Context, alerts []detection.Alert) error {
	_, err := s.archiver.ArchiveAlerts(ctx, alerts)
	return err
}
