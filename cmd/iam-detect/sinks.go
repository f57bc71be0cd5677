package main

import (
	"context"
	"fmt"
	"log/slog"

	"iam-abuse-detector/internal/alerting"
	"iam-abuse-detector/internal/config"
	"iam-abuse-detector/internal/kafka"
	"iam-abuse-detector/internal/logging"
	"iam-abuse-detector/internal/secrets"
	"iam-abuse-detector/internal/storage"
	"iam-abuse-detector/internal/storage/s3"
)

// sinks holds the external alert channels enabled in the configuration.
type sinks struct {
	channels []alerting.Channel
	closers  []func() error
}

// Close releases every sink connection.
func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close sink", "error", err)
		}
	}
}

// buildSinks connects to every enabled sink. On error the sinks opened so
// far are closed.
func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *sinks, err error) {
	s = &sinks{}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	out := cfg.Output
	resolver := secrets.NewResolver(cfg.Secrets, logger)
	var refs []*string
	if out.Kafka.Enabled {
		refs = append(refs, &out.Kafka.SASLPassword)
	}
	if out.ClickHouse.Enabled {
		refs = append(refs, &out.ClickHouse.Password)
	}
	if out.Redis.Enabled {
		refs = append(refs, &out.Redis.Password)
	}
	if out.S3.Enabled {
		refs = append(refs, &out.S3.AccessKeyID, &out.S3.SecretAccessKey)
	}
	if err := resolver.ResolveInPlace(ctx, refs...); err != nil {
		return s, fmt.Errorf("sink credentials: %w", err)
	}
	headers := make(map[string]string, len(out.Webhook.Headers))
	if out.Webhook.Enabled {
		for k, v := range out.Webhook.Headers {
			resolved, err := resolver.Resolve(ctx, v)
			if err != nil {
				return s, fmt.Errorf("webhook header %s: %w", k, err)
			}
			headers[k] = resolved
		}
	}

	if out.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafkaConfig(out.Kafka), logger)
		if err != nil {
			return s, fmt.Errorf("kafka: %w", err)
		}
		s.closers = append(s.closers, producer.Close)
		s.channels = append(s.channels, alerting.NewKafkaChannel(producer))
		logger.Info("kafka sink enabled", "brokers", out.Kafka.Brokers, "topic", out.Kafka.Topic)
	}

	if out.ClickHouse.Enabled {
		chCfg := clickHouseConfig(out.ClickHouse)
		if err := storage.EnsureDatabase(ctx, chCfg); err != nil {
			return s, fmt.Errorf("clickhouse: %w", err)
		}
		client, err := storage.NewClickHouseClient(ctx, chCfg)
		if err != nil {
			return s, fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, client.Close)

		if err := storage.NewMigrator(client).Run(ctx); err != nil {
			return s, fmt.Errorf("clickhouse: %w", err)
		}
		s.channels = append(s.channels, alerting.NewClickHouseChannel(
			storage.NewAlertWriter(client, storage.DefaultAlertWriterConfig()),
		))
		logger.Info("clickhouse sink enabled", "hosts", out.ClickHouse.Hosts, "database", client.Database())
	}

	if out.Redis.Enabled {
		ch, err := alerting.NewRedisChannel(alerting.RedisConfig{
			Addr:         out.Redis.Addr,
			Password:     out.Redis.Password,
			DB:           out.Redis.DB,
			Stream:       out.Redis.Stream,
			MaxLen:       out.Redis.MaxLen,
			TLSEnabled:   out.Redis.TLSEnabled,
			DialTimeout:  out.Redis.DialTimeout,
			WriteTimeout: out.Redis.WriteTimeout,
		})
		if err != nil {
			return s, err
		}
		s.closers = append(s.closers, ch.Close)
		s.channels = append(s.channels, ch)
		logger.Info("redis sink enabled", "addr", out.Redis.Addr, "stream", out.Redis.Stream)
	}

	if out.S3.Enabled {
		client, err := s3.NewClient(ctx, s3Config(out.S3), logger)
		if err != nil {
			return s, fmt.Errorf("s3: %w", err)
		}
		archiver := s3.NewArchiver(client, s3.DefaultArchiverConfig(), logger)
		s.channels = append(s.channels, alerting.NewS3Channel(archiver))
		logger.Info("s3 sink enabled", "bucket", out.S3.Bucket, "prefix", out.S3.Prefix)
	}

	if out.Webhook.Enabled {
		s.channels = append(s.channels, alerting.NewWebhookChannel("webhook", out.Webhook.URL, headers, out.Webhook.Timeout))
		logger.Info("webhook sink enabled", "url", logging.MaskURL(out.Webhook.URL))
	}

	return s, nil
}

func kafkaConfig(c config.KafkaConfig) *kafka.Config {
	kc := kafka.DefaultConfig()
	kc.Brokers = c.Brokers
	if c.Topic != "" {
		kc.Topic = c.Topic
	}
	if c.CompressionType != "" {
		kc.CompressionType = c.CompressionType
	}
	if c.SecurityProtocol != "" {
		kc.SecurityProtocol = c.SecurityProtocol
	}
	kc.SASLMechanism = c.SASLMechanism
	kc.SASLUsername = c.SASLUsername
	kc.SASLPassword = c.SASLPassword
	if c.WriteTimeout > 0 {
		kc.WriteTimeout = c.WriteTimeout
	}
	return kc
}

func clickHouseConfig(c config.ClickHouseConfig) storage.ClickHouseConfig {
	cc := storage.DefaultClickHouseConfig()
	if len(c.Hosts) > 0 {
		cc.Hosts = c.Hosts
	}
	if c.Database != "" {
		cc.Database = c.Database
	}
	if c.Username != "" {
		cc.Username = c.Username
	}
	cc.Password = c.Password
	if c.MaxOpenConns > 0 {
		cc.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		cc.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		cc.ConnMaxLifetime = c.ConnMaxLifetime
	}
	if c.DialTimeout > 0 {
		cc.DialTimeout = c.DialTimeout
	}
	cc.TLSEnabled = c.TLSEnabled
	return cc
}

func s3Config(c config.S3Config) *s3.Config {
	sc := s3.DefaultConfig()
	if c.Region != "" {
		sc.Region = c.Region
	}
	sc.Bucket = c.Bucket
	if c.Prefix != "" {
		sc.Prefix = c.Prefix
	}
	sc.Endpoint = c.Endpoint
	sc.AccessKeyID = c.AccessKeyID
	sc.SecretAccessKey = c.SecretAccessKey
	sc.UsePathStyle = c.UsePathStyle
	if c.StorageClass != "" {
		sc.StorageClass = c.StorageClass
	}
	return sc
}
