// Package alerting delivers the alerts of a detection run to external sinks.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"iam-abuse-detector/internal/detection"
)

// Channel delivers a run's alerts to one destination. Send receives every
// alert of the run at once, possibly none.
type Channel interface {
	Name() string
	Send(ctx context.Context, alerts []detection.Alert) error
}

// DeliveryStatus represents the outcome of delivering to one channel.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryRecord tracks the delivery to one channel.
type DeliveryRecord struct {
	Channel   string         `json:"channel"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// DeliveryConfig configures retries.
type DeliveryConfig struct {
	MaxAttempts    int           // Attempts per channel (default 3)
	InitialBackoff time.Duration // First retry delay (default 500ms)
	MaxBackoff     time.Duration // Maximum backoff duration (default 10s)
	BackoffFactor  float64       // Backoff multiplier (default 2.0)
	AttemptTimeout time.Duration // Per-attempt timeout (default 30s)
}

// DefaultDeliveryConfig returns sensible delivery defaults.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		AttemptTimeout: 30 * time.Second,
	}
}

// Dispatcher sends alerts to every registered channel concurrently.
type Dispatcher struct {
	config   DeliveryConfig
	channels []Channel
	mu       sync.RWMutex
}

// NewDispatcher creates a dispatcher for channels.
func NewDispatcher(cfg DeliveryConfig, channels ...Channel) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{config: cfg, channels: channels}
}

// AddChannel registers a channel.
func (d *Dispatcher) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
	slog.Info("added alert channel", "name", ch.Name())
}

// Channels returns the names of the registered channels.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Dispatch delivers alerts to every channel and waits for all of them.
// Records are returned in channel registration order. The error joins
// every channel failure.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []detection.Alert) ([]DeliveryRecord, error) {
	d.mu.RLock()
	channels := make([]Channel, len(d.channels))
	copy(channels, d.channels)
	d.mu.RUnlock()

	records := make([]DeliveryRecord, len(channels))
	errs := make([]error, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records[i], errs[i] = d.deliver(ctx, ch, alerts)
		}()
	}
	wg.Wait()

	return records, errors.Join(errs...)
}

// deliver attempts delivery with exponential backoff.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, alerts []detection.Alert) (DeliveryRecord, error) {
	start := time.Now()
	record := DeliveryRecord{Channel: ch.Name()}
	backoff := d.config.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		record.Attempts = attempt

		attemptCtx := ctx
		cancel := func() {}
		if d.config.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.config.AttemptTimeout)
		}
		lastErr = ch.Send(attemptCtx, alerts)
		cancel()

		if lastErr == nil {
			record.Status = DeliverySent
			record.Duration = time.Since(start)
			slog.Info("alerts delivered",
				"channel", ch.Name(),
				"alerts", len(alerts),
				"attempts", attempt,
			)
			return record, nil
		}

		slog.Warn("alert delivery failed",
			"channel", ch.Name(),
			"attempt", attempt,
			"max_attempts", d.config.MaxAttempts,
			"error", lastErr,
		)

		if attempt == d.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = errors.Join(lastErr, ctx.Err())
			attempt = d.config.MaxAttempts
			continue
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * d.config.BackoffFactor)
		if d.config.MaxBackoff > 0 && backoff > d.config.MaxBackoff {
			backoff = d.config.MaxBackoff
		}
	}

	record.Status = DeliveryFailed
	record.LastError = lastErr.Error()
	record.Duration = time.Since(start)
	slog.Error("alert delivery gave up",
		"channel", ch.Name(),
		"attempts", record.Attempts,
		"error", lastErr,
	)
	return record, fmt.Errorf("%s: %w", ch.Name(), lastErr)
}
