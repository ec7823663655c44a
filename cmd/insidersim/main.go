// insidersim - deterministic insider-threat simulation over a service twin
//
//	insidersim run        Generate one simulation run as JSONL
//	insidersim eval       Score a finished run log
//	insidersim validate   Check a log against the event schema
//	insidersim watch      Re-run the simulation whenever the config changes
//	insidersim version    Print version information
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"insidersim/internal/config"
	"insidersim/internal/event"
	"insidersim/internal/logging"
	"insidersim/internal/metrics"
	"insidersim/internal/schema"
	"insidersim/internal/sim"
	"insidersim/internal/store"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "eval":
		cmdEval()
	case "validate":
		cmdValidate()
	case "watch":
		cmdWatch()
	case "version":
		fmt.Printf("insidersim %s (commit: %s, built: %s)\n", version, commit, buildTime)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`insidersim - deterministic insider-threat simulation

USAGE:
    insidersim <command> [options]

COMMANDS:
    run         Generate one run and write it as JSONL
    eval        Score a run log (precision/recall/F1, TTD, disruption)
    validate    Check a JSONL log against the event schema
    watch       Re-run the simulation whenever the config file changes
    version     Print version information
    help        Show this help message

BASIC WORKFLOW:
    1. insidersim run -seed 7 -out run7.jsonl     # Generate a run
    2. insidersim validate -log run7.jsonl        # Check the wire format
    3. insidersim eval -log run7.jsonl            # Score detection quality

Runs are reproducible: the same seed and parameters always produce a
byte-identical log. Pass -db to archive finished runs in SQLite and
'eval -db <file> -run <id>' to score them later without the JSONL.`)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (TOML, JSON, or YAML)")
	seed := fs.Int64("seed", 0, "Run seed")
	warmup := fs.Int("warmup-steps", sim.DefaultWarmupSteps, "Unscored steps before the test phase")
	testSteps := fs.Int("test-steps", sim.DefaultTestSteps, "Scored steps after warmup")
	threshold := fs.Int("confirmation-threshold", sim.DefaultConfirmationThreshold, "Distinct malicious actors the monitor needs before confirming")
	degrade := fs.Float64("degrade-threshold", sim.DefaultDegradeThreshold, "Severity at which the twin reports degraded mode")
	out := fs.String("out", "", "Output path for the JSONL log ('-' for stdout)")
	dbPath := fs.String("db", "", "Optional SQLite archive for the finished run")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Log format: text or json")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment values.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Simulation.Seed = *seed
		case "warmup-steps":
			cfg.Simulation.WarmupSteps = *warmup
		case "test-steps":
			cfg.Simulation.TestSteps = *testSteps
		case "confirmation-threshold":
			cfg.Simulation.ConfirmationThreshold = *threshold
		case "degrade-threshold":
			cfg.Simulation.DegradeThreshold = *degrade
		case "out":
			cfg.Output.EventsPath = *out
		case "db":
			cfg.Output.DBPath = *dbPath
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log := setupLogging(&cfg.Logging)
	defer log.Close()

	simCfg := sim.Config{
		Seed:                  cfg.Simulation.Seed,
		WarmupSteps:           cfg.Simulation.WarmupSteps,
		TestSteps:             cfg.Simulation.TestSteps,
		ConfirmationThreshold: cfg.Simulation.ConfirmationThreshold,
		DegradeThreshold:      cfg.Simulation.DegradeThreshold,
	}

	runner, err := sim.New(sim.ModelInsider, simCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("run starting", "params", cfg.Summary())
	started := time.Now()

	events, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}

	digest, err := event.Digest(events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing digest: %v\n", err)
		os.Exit(1)
	}

	outPath := cfg.Output.EventsPath
	if outPath == "-" {
		w := event.NewWriter(os.Stdout)
		for i := range events {
			if err := w.Write(events[i]); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing log: %v\n", err)
				os.Exit(1)
			}
		}
		if err := w.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing log: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := event.WriteFile(outPath, events); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing log: %v\n", err)
			os.Exit(1)
		}
	}

	log.Info("run complete",
		"steps", simCfg.WarmupSteps+simCfg.TestSteps,
		"events", len(events),
		"digest", digest,
		"elapsed", time.Since(started).Round(time.Millisecond))

	if cfg.Output.DBPath != "" {
		runID, err := archiveRun(cfg.Output.DBPath, simCfg, events, digest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error archiving run: %v\n", err)
			os.Exit(1)
		}
		log.Info("run archived", "db", cfg.Output.DBPath, "run_id", runID)
		if outPath != "-" {
			fmt.Printf("archived run %s\n", runID)
		}
	}

	if outPath != "-" {
		fmt.Printf("wrote %d events to %s (digest %s)\n", len(events), outPath, digest)
	}
}

func cmdEval() {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	logPath := fs.String("log", "", "JSONL run log to score")
	dbPath := fs.String("db", "", "SQLite archive to read from (with -run)")
	runID := fs.String("run", "", "Archived run id to score (with -db)")
	service := fs.String("service", metrics.DefaultService, "Service whose twin snapshots are scored")
	asJSON := fs.Bool("json", false, "Emit the scorecard as JSON")
	fs.Parse(os.Args[2:])

	var events []event.Event
	var err error
	switch {
	case *logPath != "":
		events, err = event.ReadFile(*logPath)
	case *dbPath != "" && *runID != "":
		events, err = loadArchivedRun(*dbPath, *runID)
	default:
		fmt.Fprintln(os.Stderr, "Usage: insidersim eval -log <events.jsonl> | -db <runs.db> -run <id>")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading events: %v\n", err)
		os.Exit(1)
	}

	m := metrics.Evaluate(events, *service)

	if *asJSON {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding metrics: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Actors observed:       %d (%d malicious)\n", m.NumActors, m.NumMaliciousActors)
	fmt.Printf("Actor precision:       %.4f\n", m.Precision)
	fmt.Printf("Actor recall:          %.4f\n", m.Recall)
	fmt.Printf("Actor F1:              %.4f\n", m.F1)
	fmt.Printf("Mean TTD:              %s\n", fmtOptional(m.MeanTTD))
	fmt.Printf("Impact-weighted TTD:   %s\n", fmtOptional(m.ImpactWeightedTTD))
	fmt.Printf("Service disruption:    %.0f\n", m.SDP)
	fmt.Printf("Avg degraded duration: %.4f steps\n", m.AvgDegradedMode)
}

func cmdValidate() {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	logPath := fs.String("log", "", "JSONL run log to check")
	fs.Parse(os.Args[2:])

	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: insidersim validate -log <events.jsonl>")
		os.Exit(2)
	}

	f, err := os.Open(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	n, err := schema.ValidateLog(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Schema violation after %d valid records: %v\n", n, err)
		os.Exit(1)
	}

	fmt.Printf("%s: %d records valid\n", *logPath, n)
}

func cmdWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file to watch (TOML, JSON, or YAML)")
	outDir := fs.String("out-dir", "runs", "Directory for generated logs")
	fs.Parse(os.Args[2:])

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: insidersim watch -config <file> [-out-dir dir]")
		os.Exit(2)
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	defer loader.Close()

	log := setupLogging(&cfg.Logging)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Serialize reruns through a channel; a change arriving mid-run
	// replaces any still-pending one instead of queueing.
	changes := make(chan *config.Config, 1)
	loader.OnChange(func(c *config.Config) {
		replacePending(changes, c)
	})
	if err := loader.Watch(); err != nil {
		fmt.Fprintf(os.Stderr, "Error watching config: %v\n", err)
		os.Exit(1)
	}

	log.Info("watching config", "path", *configPath, "out_dir", *outDir)
	runOnce(ctx, cfg, *outDir, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return
		case err := <-loader.Errors():
			log.Error("config reload rejected", "error", err)
		case c := <-changes:
			log.Info("config changed", "params", c.Summary())
			runOnce(ctx, c, *outDir, log)
		}
	}
}

// replacePending parks c as the single pending config, displacing any
// config already waiting so the next rerun always sees the latest write.
// The loader serializes callbacks, so no competing sender can fill the
// slot between the drain and the final send.
func replacePending(changes chan *config.Config, c *config.Config) {
	select {
	case changes <- c:
	default:
		select {
		case <-changes:
		default:
		}
		changes <- c
	}
}

// runOnce generates and scores a single run for the watch loop. Failures
// are logged, not fatal: the loop keeps serving future config changes.
func runOnce(ctx context.Context, cfg *config.Config, outDir string, log *logging.Logger) {
	simCfg := sim.Config{
		Seed:                  cfg.Simulation.Seed,
		WarmupSteps:           cfg.Simulation.WarmupSteps,
		TestSteps:             cfg.Simulation.TestSteps,
		ConfirmationThreshold: cfg.Simulation.ConfirmationThreshold,
		DegradeThreshold:      cfg.Simulation.DegradeThreshold,
	}

	runner, err := sim.New(sim.ModelInsider, simCfg)
	if err != nil {
		log.Error("model init failed", "error", err)
		return
	}
	events, err := runner.Run(ctx)
	if err != nil {
		log.Error("run failed", "error", err)
		return
	}

	digest, err := event.Digest(events)
	if err != nil {
		log.Error("digest failed", "error", err)
		return
	}

	outPath := filepath.Join(outDir, fmt.Sprintf("run-%s.jsonl", uuid.NewString()))
	if err := event.WriteFile(outPath, events); err != nil {
		log.Error("write failed", "error", err)
		return
	}

	m := metrics.Evaluate(events, cfg.Simulation.Service)
	log.Info("run complete",
		"out", outPath,
		"events", len(events),
		"digest", digest[:12],
		"precision", m.Precision,
		"recall", m.Recall,
		"f1", m.F1)
}

// setupLogging builds the process logger from a validated logging section
// and installs it as the default.
func setupLogging(lc *config.LoggingConfig) *logging.Logger {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    lc.Output,
		FilePath:  lc.FilePath,
		Component: "insidersim",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	return logger
}

func archiveRun(dbPath string, cfg sim.Config, events []event.Event, digest string) (string, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run := &store.Run{
		ID:                    store.NewRunID(),
		CreatedAt:             time.Now().UnixNano(),
		Seed:                  cfg.Seed,
		WarmupSteps:           cfg.WarmupSteps,
		TestSteps:             cfg.TestSteps,
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		DegradeThreshold:      cfg.DegradeThreshold,
		EventCount:            len(events),
		Digest:                digest,
	}
	if err := st.SaveRun(run, events); err != nil {
		return "", err
	}
	return run.ID, nil
}

func loadArchivedRun(dbPath, runID string) ([]event.Event, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	run, err := st.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return st.LoadEvents(runID)
}

func fmtOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f steps", *v)
}
