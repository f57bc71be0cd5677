package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"iam-abuse-detector/internal/alerting"
	"iam-abuse-detector/internal/web"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $IAMD_CONFIG_PATH or configs/config.yaml)")
	port := fs.Int("port", 0, "HTTP port (default server.http_port)")
	fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		return fail("%v", err)
	}
	if *port > 0 {
		cfg.Server.HTTPPort = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := newEngine(cfg)
	if err != nil {
		return fail("%v", err)
	}

	server := web.NewServer(cfg.Server, newLoader(cfg), engine, slog.Default())

	s, err := buildSinks(ctx, cfg, slog.Default())
	if err != nil {
		return fail("%v", err)
	}
	defer s.Close()
	if len(s.channels) > 0 {
		server.WithDispatcher(alerting.NewDispatcher(alerting.DefaultDeliveryConfig(), s.channels...))
	}

	slog.Info("starting iam-detect server",
		"version", version,
		"port", cfg.Server.HTTPPort,
		"rules", len(engine.Rules()),
		"sinks", len(s.channels),
	)

	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fail("%v", err)
	}
	slog.Info("server stopped")
	return 0
}
