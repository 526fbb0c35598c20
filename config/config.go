// Package config loads the YAML run configuration of the tsforecast tool.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tsforecast/dataset"
	"tsforecast/filtering"
	"tsforecast/logging"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid value")

// Config is the whole run configuration.
type Config struct {
	Log     logging.Config `yaml:"log"`
	Dataset DatasetConfig  `yaml:"dataset"`
	Filter  FilterConfig   `yaml:"filter"`
}

// DatasetConfig holds the training window settings.
type DatasetConfig struct {
	InputChunkLength    int    `yaml:"input_chunk_length"`
	OutputChunkLength   int    `yaml:"output_chunk_length"`
	MaxSamplesPerSeries int    `yaml:"max_samples_per_series"`
	TimeColumn          string `yaml:"time_column"`
}

// FilterConfig holds the Kalman filter settings.
type FilterConfig struct {
	DimX         int    `yaml:"dim_x"`
	NumBlockRows int    `yaml:"num_block_rows"`
	NumSamples   int    `yaml:"num_samples"`
	Seed         uint64 `yaml:"seed"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: logging.Config{Level: "INFO", Filename: "stderr"},
		Dataset: DatasetConfig{
			InputChunkLength:  12,
			OutputChunkLength: 1,
		},
		Filter: FilterConfig{
			DimX:         1,
			NumBlockRows: 10,
			NumSamples:   1,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the numeric settings.
func (c Config) Validate() error {
	if c.Dataset.InputChunkLength <= 0 || c.Dataset.OutputChunkLength <= 0 {
		return fmt.Errorf("%w: chunk lengths must be > 0, got %d and %d",
			ErrInvalid, c.Dataset.InputChunkLength, c.Dataset.OutputChunkLength)
	}
	if c.Dataset.MaxSamplesPerSeries < 0 {
		return fmt.Errorf("%w: max_samples_per_series must be >= 0", ErrInvalid)
	}
	if c.Filter.DimX <= 0 {
		return fmt.Errorf("%w: dim_x must be > 0", ErrInvalid)
	}
	if c.Filter.NumBlockRows <= 0 {
		return fmt.Errorf("%w: num_block_rows must be > 0", ErrInvalid)
	}
	if c.Filter.NumSamples <= 0 {
		return fmt.Errorf("%w: num_samples must be > 0", ErrInvalid)
	}
	return nil
}

// DatasetOptions converts the dataset section for dataset.NewSequentialDataset.
func (c Config) DatasetOptions() dataset.Config {
	return dataset.Config{
		Window: dataset.Window{
			InputChunkLength:  c.Dataset.InputChunkLength,
			OutputChunkLength: c.Dataset.OutputChunkLength,
		},
		MaxSamplesPerSeries: c.Dataset.MaxSamplesPerSeries,
	}
}

// FilterOptions converts the filter section for filtering.NewKalmanFilter.
// The output dimension is left to Fit.
func (c Config) FilterOptions() filtering.Config {
	return filtering.Config{
		DimX:         c.Filter.DimX,
		NumBlockRows: c.Filter.NumBlockRows,
		Seed:         c.Filter.Seed,
	}
}
