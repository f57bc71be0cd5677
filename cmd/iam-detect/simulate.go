package main

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	"iam-abuse-detector/internal/simulate"
)

func runSimulate(args []string) int {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $IAMD_CONFIG_PATH or configs/config.yaml)")
	n := fs.Int("n", 0, "Background events to generate (default simulate.events)")
	seed := fs.Int64("seed", -1, "Random seed (default simulate.seed)")
	out := fs.String("out", "", "Output CSV path (default simulate.out_path)")
	fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		return fail("%v", err)
	}

	scenario := simulate.DefaultScenario(time.Now())
	scenario.Events = cfg.Simulate.Events
	scenario.Seed = uint64(cfg.Simulate.Seed)
	if *n > 0 {
		scenario.Events = *n
	}
	if *seed >= 0 {
		scenario.Seed = uint64(*seed)
	}

	path := cfg.Simulate.OutPath
	if *out != "" {
		path = *out
	}

	events, err := scenario.Build()
	if err != nil {
		return fail("%v", err)
	}
	if err := simulate.WriteCSVFile(path, events); err != nil {
		return fail("%v", err)
	}

	counts := simulate.Summary(events)
	slog.Info("simulated log written",
		"path", path,
		"events", len(events),
		"logins", counts["login"],
		"resource_accesses", counts["resource_access"],
		"role_changes", counts["role_change"],
		"seed", scenario.Seed,
	)
	fmt.Printf("Simulated IAM logs saved to %s (%d events)\n", path, len(events))
	return 0
}
