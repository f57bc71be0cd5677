package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"iam-abuse-detector/internal/alerting"
	"iam-abuse-detector/internal/report"
	"iam-abuse-detector/internal/tui"
)

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $IAMD_CONFIG_PATH or configs/config.yaml)")
	out := fs.String("out", "", "Alerts CSV path (default output.csv_path)")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	noSinks := fs.Bool("no-sinks", false, "Skip the configured external sinks")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: iam-detect analyze [-config file] [-out alerts.csv] [-no-color] [-no-sinks] <log.csv>\n")
		return 1
	}

	cfg, err := setup(*configPath)
	if err != nil {
		return fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := fs.Arg(0)
	events, err := newLoader(cfg).LoadFile(path)
	if err != nil {
		return fail("%v", err)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return fail("%v", err)
	}

	alerts, err := engine.Run(ctx, events)
	if err != nil {
		return fail("detection failed: %v", err)
	}

	console := report.NewConsole(os.Stdout, report.ConsoleOptions{Color: !*noColor})
	if err := console.Write(alerts, events); err != nil {
		return fail("failed to write report: %v", err)
	}

	csvPath := cfg.Output.CSVPath
	if *out != "" {
		csvPath = *out
	}

	dispatcher := alerting.NewDispatcher(alerting.DefaultDeliveryConfig(), alerting.NewCSVChannel(csvPath))
	if !*noSinks {
		s, err := buildSinks(ctx, cfg, slog.Default())
		if err != nil {
			return fail("%v", err)
		}
		defer s.Close()
		for _, ch := range s.channels {
			dispatcher.AddChannel(ch)
		}
	}

	if _, err := dispatcher.Dispatch(ctx, alerts); err != nil {
		return fail("alert delivery failed: %v", err)
	}
	fmt.Printf("\nAlerts written to %s\n", csvPath)
	return 0
}

func runBrowse(args []string) int {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $IAMD_CONFIG_PATH or configs/config.yaml)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: iam-detect browse [-config file] <log.csv>\n")
		return 1
	}

	cfg, err := setup(*configPath)
	if err != nil {
		return fail("%v", err)
	}

	path := fs.Arg(0)
	events, err := newLoader(cfg).LoadFile(path)
	if err != nil {
		return fail("%v", err)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return fail("%v", err)
	}

	alerts, err := engine.Run(context.Background(), events)
	if err != nil {
		return fail("detection failed: %v", err)
	}

	// The TUI owns the terminal; keep logs off it.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := tui.Run(tui.Data{
		Filename: path,
		Events:   events,
		Alerts:   alerts,
		Rules:    engine.Rules(),
	}); err != nil {
		return fail("%v", err)
	}
	return 0
}
