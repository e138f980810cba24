// Package config loads run configuration from TOML files.
//
// A configuration file has three optional tables:
//
//	[weights]
//	com = 1.0
//	footprint = 0.5
//	path_length = 2.0
//
//	[anneal]
//	seed = 42
//	batch_size = 200
//	max_iterations = 20000
//	cooling_rate = 0.97
//
//	[log]
//	level = "debug"
//	format = "text"
//
// Missing values keep their defaults. Command-line flags override file
// values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/opt"
)

// Config is the decoded run configuration.
type Config struct {
	Weights cost.Weights `toml:"weights"`
	Anneal  Anneal       `toml:"anneal"`
	Log     Log          `toml:"log"`
}

// Anneal holds annealer options. Params fields left at zero fall back to
// the adaptive schedule.
type Anneal struct {
	opt.Params
	Seed      int64 `toml:"seed"`
	BatchSize int   `toml:"batch_size"`
}

// Log selects the log level and output format.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Weights: cost.DefaultWeights(),
		Anneal:  Anneal{Seed: 1, BatchSize: opt.DefaultBatchSize},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default. Unknown keys are logged, not fatal.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text on top of Default and validates the result.
func Parse(text string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, err
	}
	for _, key := range md.Undecoded() {
		slog.Warn("Unknown config key", "key", key.String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects negative weights and unknown log settings.
func (c Config) Validate() error {
	if c.Weights.CoM < 0 || c.Weights.Footprint < 0 || c.Weights.PathLength < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if c.Anneal.BatchSize < 0 {
		return fmt.Errorf("anneal.batch_size must be non-negative")
	}
	// zero keeps the adaptive rate
	if r := c.Anneal.CoolingRate; r < 0 || r >= 1 {
		return fmt.Errorf("anneal.cooling_rate must be in (0, 1), got %g", r)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	return nil
}

// Options converts the anneal table into annealer options.
func (c Config) Options() opt.Options {
	return opt.Options{
		Seed:      c.Anneal.Seed,
		BatchSize: c.Anneal.BatchSize,
		Overrides: c.Anneal.Params,
	}
}

// ParseLevel maps a level name to a slog level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
