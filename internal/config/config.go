// Package config handles configuration loading, validation, and hot-reload
// for the insidersim tools.
package config

import (
	"fmt"
	"os"
	"strconv"

	"insidersim/internal/sim"
)

// Config holds the complete tool configuration.
type Config struct {
	// Simulation configures single runs.
	Simulation SimulationConfig `toml:"simulation" json:"simulation" yaml:"simulation"`

	// Sweep configures the threshold ablation grid.
	Sweep SweepConfig `toml:"sweep" json:"sweep" yaml:"sweep"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Output configures where runs and summaries are written.
	Output OutputConfig `toml:"output" json:"output" yaml:"output"`
}

// SimulationConfig holds the parameters of a single run.
type SimulationConfig struct {
	// Seed drives every random draw of a run. Equal seeds with equal
	// parameters reproduce a run bit for bit.
	Seed int64 `toml:"seed" json:"seed" yaml:"seed"`

	// WarmupSteps is the number of unscored steps at the start of a run.
	WarmupSteps int `toml:"warmup_steps" json:"warmup_steps" yaml:"warmup_steps"`

	// TestSteps is the number of scored steps after warmup.
	TestSteps int `toml:"test_steps" json:"test_steps" yaml:"test_steps"`

	// ConfirmationThreshold is how many distinct malicious actors the
	// monitor must have seen before it starts confirming.
	ConfirmationThreshold int `toml:"confirmation_threshold" json:"confirmation_threshold" yaml:"confirmation_threshold"`

	// DegradeThreshold is the severity at which the service twin reports
	// degraded mode, in (0, 1].
	DegradeThreshold float64 `toml:"degrade_threshold" json:"degrade_threshold" yaml:"degrade_threshold"`

	// Service is the monitored service name used when scoring runs.
	Service string `toml:"service" json:"service" yaml:"service"`
}

// SweepConfig holds the threshold ablation parameters.
type SweepConfig struct {
	// Model is the registered simulation model to run.
	Model string `toml:"model" json:"model" yaml:"model"`

	// ThresholdMin is the lowest confirmation threshold swept, inclusive.
	ThresholdMin int `toml:"threshold_min" json:"threshold_min" yaml:"threshold_min"`

	// ThresholdMax is the highest confirmation threshold swept, inclusive.
	ThresholdMax int `toml:"threshold_max" json:"threshold_max" yaml:"threshold_max"`

	// NumSeeds runs seeds 0 through NumSeeds-1 per threshold.
	NumSeeds int `toml:"num_seeds" json:"num_seeds" yaml:"num_seeds"`

	// Workers bounds concurrent runs. 0 means one worker per CPU.
	Workers int `toml:"workers" json:"workers" yaml:"workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// OutputConfig holds artifact paths.
type OutputConfig struct {
	// EventsPath is where a single run writes its JSONL event log.
	EventsPath string `toml:"events_path" json:"events_path" yaml:"events_path"`

	// CSVPath is where a sweep writes its summary table.
	CSVPath string `toml:"csv_path" json:"csv_path" yaml:"csv_path"`

	// ReportPath is where a sweep writes the optional markdown report.
	// Empty disables the report.
	ReportPath string `toml:"report_path" json:"report_path" yaml:"report_path"`

	// DBPath is the optional SQLite archive for finished runs. Empty
	// disables archiving.
	DBPath string `toml:"db_path" json:"db_path" yaml:"db_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:                  0,
			WarmupSteps:           sim.DefaultWarmupSteps,
			TestSteps:             sim.DefaultTestSteps,
			ConfirmationThreshold: sim.DefaultConfirmationThreshold,
			DegradeThreshold:      sim.DefaultDegradeThreshold,
			Service:               sim.ServiceName,
		},
		Sweep: SweepConfig{
			Model:        sim.ModelInsider,
			ThresholdMin: 3,
			ThresholdMax: 7,
			NumSeeds:     10,
			Workers:      0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Output: OutputConfig{
			EventsPath: "events.jsonl",
			CSVPath:    "sweep.csv",
		},
	}
}

// Load reads configuration from the specified path. An empty path or a
// missing file yields the defaults. Supports TOML, JSON, and YAML formats
// based on file extension. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with INSIDERSIM_; numeric values
// that fail to parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	// Simulation overrides
	envInt64("INSIDERSIM_SEED", &c.Simulation.Seed)
	envInt("INSIDERSIM_WARMUP_STEPS", &c.Simulation.WarmupSteps)
	envInt("INSIDERSIM_TEST_STEPS", &c.Simulation.TestSteps)
	envInt("INSIDERSIM_CONFIRMATION_THRESHOLD", &c.Simulation.ConfirmationThreshold)
	envFloat("INSIDERSIM_DEGRADE_THRESHOLD", &c.Simulation.DegradeThreshold)
	envString("INSIDERSIM_SERVICE", &c.Simulation.Service)

	// Sweep overrides
	envString("INSIDERSIM_MODEL", &c.Sweep.Model)
	envInt("INSIDERSIM_THRESHOLD_MIN", &c.Sweep.ThresholdMin)
	envInt("INSIDERSIM_THRESHOLD_MAX", &c.Sweep.ThresholdMax)
	envInt("INSIDERSIM_NUM_SEEDS", &c.Sweep.NumSeeds)
	envInt("INSIDERSIM_WORKERS", &c.Sweep.Workers)

	// Logging overrides
	envString("INSIDERSIM_LOG_LEVEL", &c.Logging.Level)
	envString("INSIDERSIM_LOG_FORMAT", &c.Logging.Format)
	envString("INSIDERSIM_LOG_PATH", &c.Logging.FilePath)

	// Output overrides
	envString("INSIDERSIM_EVENTS_PATH", &c.Output.EventsPath)
	envString("INSIDERSIM_CSV_PATH", &c.Output.CSVPath)
	envString("INSIDERSIM_REPORT_PATH", &c.Output.ReportPath)
	envString("INSIDERSIM_DB_PATH", &c.Output.DBPath)
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Summary returns a short single-line description of the run parameters,
// used in startup logs.
func (c *Config) Summary() string {
	return fmt.Sprintf("seed=%d warmup=%d test=%d threshold=%d degrade=%g service=%s",
		c.Simulation.Seed,
		c.Simulation.WarmupSteps,
		c.Simulation.TestSteps,
		c.Simulation.ConfirmationThreshold,
		c.Simulation.DegradeThreshold,
		c.Simulation.Service)
}

// Environment helpers

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
