// Command insidersweep runs the confirmation-threshold ablation: a grid of
// independent simulations over thresholds and seeds, scored per run and
// aggregated per threshold into a CSV summary.
//
// Usage:
//
//	insidersweep [flags]
//
// Examples:
//
//	# Default grid (thresholds 3-7, 10 seeds each)
//	insidersweep -out sweep.csv
//
//	# Wider grid with a markdown report
//	insidersweep -threshold-min 2 -threshold-max 8 -seeds 25 \
//	    -out sweep.csv -report sweep.md
//
//	# Single-threaded, for timing comparisons
//	insidersweep -workers 1 -out sweep.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"insidersim/internal/config"
	"insidersim/internal/logging"
	"insidersim/internal/sweep"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (TOML, JSON, or YAML)")
	model := flag.String("model", "", "registered simulation model")
	out := flag.String("out", "", "CSV output path")
	report := flag.String("report", "", "optional markdown report path")
	seeds := flag.Int("seeds", 0, "seeds per threshold, run as 0..n-1")
	warmup := flag.Int("warmup-steps", 0, "unscored steps before the test phase")
	testSteps := flag.Int("test-steps", 0, "scored steps after warmup")
	thresholdMin := flag.Int("threshold-min", 0, "lowest confirmation threshold, inclusive")
	thresholdMax := flag.Int("threshold-max", 0, "highest confirmation threshold, inclusive")
	degrade := flag.Float64("degrade-threshold", 0, "severity at which the twin reports degraded mode")
	workers := flag.Int("workers", 0, "concurrent runs (0 = one per CPU)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "log format: text or json")
	versionFlag := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "insidersweep - confirmation-threshold ablation over seeded runs\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery (threshold, seed) pair is one independent run. Per-threshold\n")
		fmt.Fprintf(os.Stderr, "rows in the CSV average the runs of that threshold across seeds;\n")
		fmt.Fprintf(os.Stderr, "timing columns are empty when no run of a threshold defined them.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -out sweep.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -threshold-min 2 -threshold-max 8 -seeds 25 -out sweep.csv\n", os.Args[0])
	}

	flag.Parse()

	if *versionFlag || (flag.NArg() > 0 && flag.Arg(0) == "version") {
		fmt.Printf("insidersweep %s (commit: %s, built: %s)\n", version, commit, buildTime)
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Sweep.Model = *model
		case "out":
			cfg.Output.CSVPath = *out
		case "report":
			cfg.Output.ReportPath = *report
		case "seeds":
			cfg.Sweep.NumSeeds = *seeds
		case "warmup-steps":
			cfg.Simulation.WarmupSteps = *warmup
		case "test-steps":
			cfg.Simulation.TestSteps = *testSteps
		case "threshold-min":
			cfg.Sweep.ThresholdMin = *thresholdMin
		case "threshold-max":
			cfg.Sweep.ThresholdMax = *thresholdMax
		case "degrade-threshold":
			cfg.Simulation.DegradeThreshold = *degrade
		case "workers":
			cfg.Sweep.Workers = *workers
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

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "insidersweep",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	params := sweep.Params{
		Model:            cfg.Sweep.Model,
		ThresholdMin:     cfg.Sweep.ThresholdMin,
		ThresholdMax:     cfg.Sweep.ThresholdMax,
		NumSeeds:         cfg.Sweep.NumSeeds,
		WarmupSteps:      cfg.Simulation.WarmupSteps,
		TestSteps:        cfg.Simulation.TestSteps,
		DegradeThreshold: cfg.Simulation.DegradeThreshold,
		Service:          cfg.Simulation.Service,
		Workers:          cfg.Sweep.Workers,
		Logger:           logger.Logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := sweep.Run(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		os.Exit(1)
	}

	if err := sweep.WriteCSVFile(cfg.Output.CSVPath, result.Aggregates); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", cfg.Output.CSVPath)

	if cfg.Output.ReportPath != "" {
		if err := sweep.WriteReportFile(cfg.Output.ReportPath, params, result.Aggregates); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", cfg.Output.ReportPath)
	}
}
