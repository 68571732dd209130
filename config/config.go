// Package config defines the sceneforecast configuration and its loader.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Annotations is a glob of annotation CSV files.
	Annotations string `koanf:"annotations"`

	// DBPath is the SQLite database used by import and predict --store.
	DBPath string `koanf:"db_path"`

	// SplitPath points to a JSON file of named token lists, Split picks one.
	SplitPath string `koanf:"split_path"`
	Split     string `koanf:"split"`

	SecondsOfHistory float64 `koanf:"seconds_of_history"`
	SecondsOfFuture  float64 `koanf:"seconds_of_future"`
	SampledAt        float64 `koanf:"sampled_at"`

	// MaxTimeDiff is the largest gap in seconds between two annotations of
	// an agent that still yields velocity and acceleration estimates.
	MaxTimeDiff float64 `koanf:"max_time_diff"`

	// Workers bounds prediction concurrency.
	Workers int `koanf:"workers"`

	Raster     RasterConfig     `koanf:"raster"`
	Model      ModelConfig      `koanf:"model"`
	Submission SubmissionConfig `koanf:"submission"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// RasterConfig sizes the agent box rasterizer.
type RasterConfig struct {
	Resolution     float64 `koanf:"resolution"`
	MetersAhead    float64 `koanf:"meters_ahead"`
	MetersBehind   float64 `koanf:"meters_behind"`
	MetersLeft     float64 `koanf:"meters_left"`
	MetersRight    float64 `koanf:"meters_right"`
	HistorySeconds float64 `koanf:"history_seconds"`
}

// ModelConfig holds learned and sampling predictor settings.
type ModelConfig struct {
	Head         string  `koanf:"head"`
	Path         string  `koanf:"path"`
	LatticePath  string  `koanf:"lattice_path"`
	HiddenSizes  []int   `koanf:"hidden_sizes"`
	Modes        int     `koanf:"modes"`
	TopK         int     `koanf:"top_k"`
	Epochs       int     `koanf:"epochs"`
	LearningRate float64 `koanf:"learning_rate"`
	BatchSize    int     `koanf:"batch_size"`
	Seed         int64   `koanf:"seed"`
	PoolGrid     int     `koanf:"pool_grid"`

	// Neighbours and draws of the knn sampler.
	K       int `koanf:"k"`
	NumSims int `koanf:"num_sims"`
}

// SubmissionConfig controls where predictions are written.
type SubmissionConfig struct {
	Path        string `koanf:"path"`
	Compression string `koanf:"compression"`
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	Addr     string `koanf:"addr"`
	Textfile string `koanf:"textfile"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Annotations:      "annotations/*.csv",
		DBPath:           "sceneforecast.db",
		Split:            "val",
		SecondsOfHistory: 2,
		SecondsOfFuture:  6,
		SampledAt:        2,
		MaxTimeDiff:      1.5,
		Workers:          runtime.NumCPU(),
		Raster: RasterConfig{
			Resolution:     0.1,
			MetersAhead:    40,
			MetersBehind:   10,
			MetersLeft:     25,
			MetersRight:    25,
			HistorySeconds: 2,
		},
		Model: ModelConfig{
			Head:         "mtp",
			Path:         "model.gob.gz",
			HiddenSizes:  []int{64},
			Modes:        3,
			TopK:         5,
			Epochs:       10,
			LearningRate: 0.001,
			BatchSize:    8,
			Seed:         1,
			PoolGrid:     8,
			K:            10,
			NumSims:      100,
		},
		Submission: SubmissionConfig{
			Path:        "submission.json",
			Compression: "none",
		},
	}
}

// Timesteps is the number of future points each prediction holds.
func (c *Config) Timesteps() int {
	return int(c.SecondsOfFuture * c.SampledAt)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q", c.LogLevel))
	}
	if c.SecondsOfHistory < 0 {
		problems = append(problems, "seconds_of_history must not be negative")
	}
	if c.SecondsOfFuture <= 0 {
		problems = append(problems, "seconds_of_future must be positive")
	}
	if c.SampledAt <= 0 {
		problems = append(problems, "sampled_at must be positive")
	}
	if c.MaxTimeDiff <= 0 {
		problems = append(problems, "max_time_diff must be positive")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.Raster.Resolution <= 0 {
		problems = append(problems, "raster.resolution must be positive")
	}
	if c.Raster.MetersAhead+c.Raster.MetersBehind <= 0 || c.Raster.MetersLeft+c.Raster.MetersRight <= 0 {
		problems = append(problems, "raster extent must be positive")
	}
	if c.Model.Modes < 1 || c.Model.Modes > 25 {
		problems = append(problems, "model.modes must be in [1,25]")
	}
	if c.Model.TopK < 1 || c.Model.TopK > 25 {
		problems = append(problems, "model.top_k must be in [1,25]")
	}
	if c.Model.PoolGrid < 1 {
		problems = append(problems, "model.pool_grid must be positive")
	}
	if c.Model.K < 1 || c.Model.NumSims < 1 {
		problems = append(problems, "model.k and model.num_sims must be positive")
	}
	switch c.Submission.Compression {
	case "none", "gzip", "zstd":
	default:
		problems = append(problems, fmt.Sprintf("submission.compression %q", c.Submission.Compression))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
