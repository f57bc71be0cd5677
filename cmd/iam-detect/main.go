// Package main provides iam-detect, the IAM abuse detection CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"iam-abuse-detector/internal/config"
	"iam-abuse-detector/internal/detection"
	sanitize "iam-abuse-detector/internal/errors"
	"iam-abuse-detector/internal/ingest"
	"iam-abuse-detector/internal/logging"
	"iam-abuse-detector/internal/schema"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "analyze":
		os.Exit(runAnalyze(args))
	case "simulate":
		os.Exit(runSimulate(args))
	case "serve":
		os.Exit(runServe(args))
	case "browse":
		os.Exit(runBrowse(args))
	case "version", "-version", "--version", "-v":
		fmt.Printf("iam-detect %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: iam-detect <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  analyze   Analyze an IAM event log and report alerts\n")
	fmt.Fprintf(os.Stderr, "  simulate  Generate a synthetic IAM event log\n")
	fmt.Fprintf(os.Stderr, "  serve     Run the upload web interface\n")
	fmt.Fprintf(os.Stderr, "  browse    Analyze a log and browse the alerts in the terminal\n")
	fmt.Fprintf(os.Stderr, "  version   Show version and exit\n\n")
	fmt.Fprintf(os.Stderr, "Run 'iam-detect <command> -h' for command flags.\n")
}

// setup loads and validates the configuration and installs the default
// logger. An empty path uses $IAMD_CONFIG_PATH.
func setup(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	sanitize.SetProductionMode(cfg.Server.Production)

	slog.Debug("configuration loaded",
		"high_risk_locations", cfg.Detection.HighRiskLocations,
		"role_hierarchy", cfg.Detection.RoleHierarchy,
		"kafka", cfg.Output.Kafka.Enabled,
		"clickhouse", cfg.Output.ClickHouse.Enabled,
		"redis", cfg.Output.Redis.Enabled,
		"s3", cfg.Output.S3.Enabled,
		"webhook_url", cfg.Output.Webhook.URL,
	)
	return cfg, nil
}

// newLoader builds the CSV loader from the ingest settings.
func newLoader(cfg *config.Config) *ingest.Loader {
	v := schema.NewValidatorWithConfig(schema.ValidatorConfig{MaxFuture: cfg.Ingest.MaxFuture})
	return ingest.NewLoader(v).WithMaxSize(cfg.Ingest.MaxFileSize)
}

// newEngine builds the detection engine from the detection settings.
func newEngine(cfg *config.Config) (*detection.Engine, error) {
	engine, err := detection.NewEngineFromConfig(cfg.Detection)
	if err != nil {
		return nil, fmt.Errorf("invalid detection configuration: %w", err)
	}
	return engine, nil
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return 1
}
