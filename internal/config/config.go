// Package config handles configuration loading for the IAM abuse detector.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/secrets"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Detection detection.Config `yaml:"detection"`
	Ingest    IngestConfig     `yaml:"ingest"`
	Output    OutputConfig     `yaml:"output"`
	Server    ServerConfig     `yaml:"server"`
	Simulate  SimulateConfig   `yaml:"simulate"`
	Secrets   secrets.Config   `yaml:"secrets"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// IngestConfig holds log file loading settings.
type IngestConfig struct {
	MaxFileSize int64         `yaml:"max_file_size"`
	MaxFuture   time.Duration `yaml:"max_future"` // 0 disables the future timestamp check
}

// OutputConfig selects where alerts are delivered after a run.
type OutputConfig struct {
	CSVPath    string           `yaml:"csv_path"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	S3         S3Config         `yaml:"s3"`
	Webhook    WebhookConfig    `yaml:"webhook"`
}

// KafkaConfig holds Kafka alert publishing settings.
type KafkaConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Brokers          []string      `yaml:"brokers"`
	Topic            string        `yaml:"topic"`
	CompressionType  string        `yaml:"compression_type"`
	SecurityProtocol string        `yaml:"security_protocol"`
	SASLMechanism    string        `yaml:"sasl_mechanism"`
	SASLUsername     string        `yaml:"sasl_username"`
	SASLPassword     string        `yaml:"sasl_password"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// RedisConfig holds Redis stream settings.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Stream       string        `yaml:"stream"`
	MaxLen       int64         `yaml:"max_len"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// S3Config holds alert archive settings.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	StorageClass    string `yaml:"storage_class"`
}

// WebhookConfig holds webhook delivery settings.
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort      int           `yaml:"http_port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size"`
	// Production hides internal error details from HTTP clients.
	Production bool            `yaml:"production"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client request limits for the upload endpoints.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	BurstSize     int           `yaml:"burst_size"`
	WindowSize    time.Duration `yaml:"window_size"`
	TrustProxy    bool          `yaml:"trust_proxy"`
}

// SimulateConfig holds defaults for synthetic log generation.
type SimulateConfig struct {
	Events  int    `yaml:"events"`
	Seed    int64  `yaml:"seed"`
	OutPath string `yaml:"out_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Detection: detection.DefaultConfig(),
		Ingest: IngestConfig{
			MaxFileSize: 100 * 1024 * 1024, // 100MB
			MaxFuture:   0,
		},
		Output: OutputConfig{
			CSVPath: "data/alerts.csv",
			Kafka: KafkaConfig{
				Brokers:          []string{"localhost:9092"},
				Topic:            "iam-alerts",
				CompressionType:  "lz4",
				SecurityProtocol: "PLAINTEXT",
				WriteTimeout:     10 * time.Second,
			},
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "iam",
				Username:        "default",
				MaxOpenConns:    5,
				MaxIdleConns:    2,
				ConnMaxLifetime: time.Hour,
				DialTimeout:     10 * time.Second,
			},
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				Stream:       "iamd:alerts",
				MaxLen:       100000,
				DialTimeout:  5 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			S3: S3Config{
				Region:       "us-east-1",
				Bucket:       "iam-alert-archive",
				Prefix:       "alerts/",
				StorageClass: "STANDARD",
			},
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
			},
		},
		Server: ServerConfig{
			HTTPPort:      8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			MaxUploadSize: 32 * 1024 * 1024, // 32MB
			RateLimit: RateLimitConfig{
				Enabled:       true,
				RequestsPerIP: 60,
				BurstSize:     10,
				WindowSize:    time.Minute,
			},
		},
		Simulate: SimulateConfig{
			Events:  200,
			Seed:    42,
			OutPath: "data/simulated_iam_logs.csv",
		},
		Secrets: secrets.DefaultConfig(),
	}
}

// Load loads configuration from $IAMD_CONFIG_PATH (default configs/config.yaml),
// falling back to defaults when the file does not exist.
func Load() (*Config, error) {
	configPath := os.Getenv("IAMD_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. A missing file yields defaults.
// Environment overrides are applied in both cases.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// File doesn't exist, use defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("IAMD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("IAMD_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	// Detection settings
	if locs := os.Getenv("IAMD_HIGH_RISK_LOCATIONS"); locs != "" {
		c.Detection.HighRiskLocations = splitAndTrim(locs, ",")
	}

	if roles := os.Getenv("IAMD_ROLE_HIERARCHY"); roles != "" {
		c.Detection.RoleHierarchy = splitAndTrim(roles, ",")
	}

	if n := os.Getenv("IAMD_FAILED_LOGIN_THRESHOLD"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Detection.FailedLogin.Threshold = v
		}
	}

	if w := os.Getenv("IAMD_FAILED_LOGIN_WINDOW"); w != "" {
		if d, err := time.ParseDuration(w); err == nil {
			c.Detection.FailedLogin.Window = d
		}
	}

	if w := os.Getenv("IAMD_ESCALATION_WINDOW"); w != "" {
		if d, err := time.ParseDuration(w); err == nil {
			c.Detection.PrivilegeEscalation.Window = d
		}
	}

	if port := os.Getenv("IAMD_HTTP_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			c.Server.HTTPPort = v
		}
	}

	if prod := os.Getenv("IAMD_PRODUCTION"); prod != "" {
		if v, err := strconv.ParseBool(prod); err == nil {
			c.Server.Production = v
		}
	}

	if path := os.Getenv("IAMD_ALERTS_CSV"); path != "" {
		c.Output.CSVPath = path
	}

	// Output sinks
	if brokers := os.Getenv("IAMD_KAFKA_BROKERS"); brokers != "" {
		c.Output.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Output.Kafka.Enabled = true
	}

	if topic := os.Getenv("IAMD_KAFKA_TOPIC"); topic != "" {
		c.Output.Kafka.Topic = topic
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Output.ClickHouse.Hosts = []string{host}
		c.Output.ClickHouse.Enabled = true
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Output.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Output.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Output.ClickHouse.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Output.Redis.Addr = addr
		c.Output.Redis.Enabled = true
	}

	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Output.Redis.Password = pass
	}

	if bucket := os.Getenv("IAMD_S3_BUCKET"); bucket != "" {
		c.Output.S3.Bucket = bucket
		c.Output.S3.Enabled = true
	}

	if endpoint := os.Getenv("IAMD_S3_ENDPOINT"); endpoint != "" {
		c.Output.S3.Endpoint = endpoint
	}

	if url := os.Getenv("IAMD_WEBHOOK_URL"); url != "" {
		c.Output.Webhook.URL = url
		c.Output.Webhook.Enabled = true
	}

	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		c.Secrets.Vault.Address = addr
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		c.Secrets.Vault.Token = token
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerIP <= 0 || c.Server.RateLimit.WindowSize <= 0) {
		return fmt.Errorf("rate_limit requires positive requests_per_ip and window_size")
	}

	if c.Ingest.MaxFileSize <= 0 {
		return fmt.Errorf("ingest.max_file_size must be positive")
	}

	if c.Simulate.Events < 0 {
		return fmt.Errorf("simulate.events must not be negative")
	}

	if c.Output.Kafka.Enabled && (len(c.Output.Kafka.Brokers) == 0 || c.Output.Kafka.Topic == "") {
		return fmt.Errorf("output.kafka requires brokers and topic")
	}

	if c.Output.ClickHouse.Enabled && len(c.Output.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("output.clickhouse requires at least one host")
	}

	if c.Output.Redis.Enabled && (c.Output.Redis.Addr == "" || c.Output.Redis.Stream == "") {
		return fmt.Errorf("output.redis requires addr and stream")
	}

	if c.Output.S3.Enabled && (c.Output.S3.Bucket == "" || c.Output.S3.Region == "") {
		return fmt.Errorf("output.s3 requires bucket and region")
	}

	if c.Output.Webhook.Enabled && c.Output.Webhook.URL == "" {
		return fmt.Errorf("output.webhook requires url")
	}

	return nil
}
