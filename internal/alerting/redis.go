package alerting

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"iam-abuse-detector/internal/detection"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis stream channel.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	MaxLen       int64 // Approximate stream cap, 0 for unbounded
	TLSEnabled   bool
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns the default stream settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Stream:       "iamd:alerts",
		MaxLen:       100000,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// streamClient is the subset of *redis.Client the channel uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisChannel appends each alert to a Redis stream.
type RedisChannel struct {
	client streamClient
	stream string
	maxLen int64
}

// NewRedisChannel connects to Redis and verifies the connection.
func NewRedisChannel(cfg RedisConfig) (*RedisChannel, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultRedisConfig().Stream
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisChannel(client, cfg.Stream, cfg.MaxLen), nil
}

func newRedisChannel(client streamClient, stream string, maxLen int64) *RedisChannel {
	return &RedisChannel{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisChannel) Name() string {
	return "redis"
}

// Send adds one stream entry per alert, in order.
func (r *RedisChannel) Send(ctx context.Context, alerts []detection.Alert) error {
	for _, a := range alerts {
		if err := r.client.XAdd(ctx, r.entry(a)).Err(); err != nil {
			return fmt.Errorf("redis: XADD %s: %w", r.stream, err)
		}
	}
	return nil
}

func (r *RedisChannel) entry(a detection.Alert) *redis.XAddArgs {
	raw, _ := json.Marshal(a)
	return &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		Values: map[string]interface{}{
			"alert_id":  a.ID.String(),
			"user_id":   a.UserID,
			"rule_id":   a.RuleID,
			"severity":  string(a.Severity),
			"timestamp": a.Timestamp.UTC().Format(time.RFC3339),
			"details":   a.Details,
			"evidence":  strings.Join(a.EvidenceEventIDs, ","),
			"json":      string(raw),
		},
	}
}

// Close closes the Redis connection.
func (r *RedisChannel) Close() error {
	return r.client.Close()
}
