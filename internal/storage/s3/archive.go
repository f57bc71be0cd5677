package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"iam-abuse-detector/internal/detection"

	"github.com/google/uuid"
)

// AlertArchive is the document stored for one detection run.
type AlertArchive struct {
	ID         string            `json:"archive_id"`
	CreatedAt  time.Time         `json:"created_at"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	AlertCount int               `json:"alert_count"`
	Alerts     []detection.Alert `json:"alerts"`
}

// ArchiverConfig configures the archiver.
type ArchiverConfig struct {
	// PathTemplate for archive keys (supports {date}, {year}, {month}, {day}, {id}).
	PathTemplate string `json:"path_template" yaml:"path_template"`
}

// DefaultArchiverConfig returns default archiver configuration.
func DefaultArchiverConfig() *ArchiverConfig {
	return &ArchiverConfig{
		PathTemplate: "{date}/{id}.json.gz",
	}
}

// Archiver stores gzip-compressed JSON archives of alerts.
type Archiver struct {
	client *Client
	config *ArchiverConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates a new archiver.
func NewArchiver(client *Client, cfg *ArchiverConfig, logger *slog.Logger) *Archiver {
	return &Archiver{
		client: client,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ArchiveAlerts uploads one archive holding every alert. An empty slice
// uploads nothing and returns nil.
func (a *Archiver) ArchiveAlerts(ctx context.Context, alerts []detection.Alert) (*UploadOutput, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	archive := AlertArchive{
		ID:         uuid.New().String(),
		CreatedAt:  a.now().UTC(),
		StartTime:  alerts[0].Timestamp,
		EndTime:    alerts[0].Timestamp,
		AlertCount: len(alerts),
		Alerts:     alerts,
	}
	for _, al := range alerts[1:] {
		if al.Timestamp.Before(archive.StartTime) {
			archive.StartTime = al.Timestamp
		}
		if al.Timestamp.After(archive.EndTime) {
			archive.EndTime = al.Timestamp
		}
	}

	data, err := json.Marshal(archive)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to marshal archive: %w", err)
	}

	compressed, err := compressGzip(data)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to compress archive: %w", err)
	}

	out, err := a.client.Upload(ctx, &UploadInput{
		Key:             a.generateKey(archive.ID, archive.CreatedAt),
		Body:            compressed,
		ContentType:     "application/json",
		ContentEncoding: "gzip",
		Metadata: map[string]string{
			"archive-id":    archive.ID,
			"alert-count":   strconv.Itoa(archive.AlertCount),
			"original-size": strconv.Itoa(len(data)),
		},
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("alerts archived",
		"location", out.Location,
		"alerts", archive.AlertCount,
		"bytes", out.Size,
	)
	return out, nil
}

// Restore downloads an archive by its full key and returns its alerts.
func (a *Archiver) Restore(ctx context.Context, key string) (*AlertArchive, error) {
	data, err := a.client.Download(ctx, key)
	if err != nil {
		return nil, err
	}

	raw, err := decompressGzip(data)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to decompress %s: %w", key, err)
	}

	var archive AlertArchive
	if err := json.Unmarshal(raw, &archive); err != nil {
		return nil, fmt.Errorf("s3: failed to decode %s: %w", key, err)
	}
	return &archive, nil
}

func (a *Archiver) generateKey(id string, at time.Time) string {
	return strings.NewReplacer(
		"{date}", at.Format("2006/01/02"),
		"{year}", at.Format("2006"),
		"{month}", at.Format("01"),
		"{day}", at.Format("02"),
		"{id}", id,
	).Replace(a.config.PathTemplate)
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
