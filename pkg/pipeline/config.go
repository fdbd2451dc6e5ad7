// Package pipeline orchestrates the batch stages: align, train, score, fuse.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/marketguard/pkg/detectors"
)

// Reconstruction threshold modes.
const (
	// ThresholdBatch recomputes the error percentile over every scored
	// batch. Adapts to drift; the same row can flip verdict across batches.
	ThresholdBatch = "batch"
	// ThresholdFixed reuses the percentile computed over the training
	// errors and persisted in the model.
	ThresholdFixed = "fixed"
)

// Config carries every path and parameter of one run. Components never reach
// for global constants; everything flows through here.
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs"`
	Bundles  BundlesConfig  `yaml:"bundles"`
	Output   OutputConfig   `yaml:"output"`
	Training TrainingConfig `yaml:"training"`
	Scoring  ScoringConfig  `yaml:"scoring"`
}

// InputsConfig locates the two event stream files.
type InputsConfig struct {
	SentimentCSV    string `yaml:"sentiment_csv"`
	TransactionsCSV string `yaml:"transactions_csv"`
}

// BundlesConfig locates each model's artifact directory. The two models keep
// separate bundles; scoring loads each model's own paired contract and scaler.
type BundlesConfig struct {
	IsolationForestDir string `yaml:"isolation_forest_dir"`
	AutoencoderDir     string `yaml:"autoencoder_dir"`
}

// OutputConfig locates the verdict file.
type OutputConfig struct {
	AnomaliesCSV string `yaml:"anomalies_csv"`
}

// TrainingConfig holds model hyperparameters.
type TrainingConfig struct {
	Contamination   float64 `yaml:"contamination"`
	Trees           int     `yaml:"trees"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            int64   `yaml:"seed"`
}

// ScoringConfig holds verdict derivation parameters.
type ScoringConfig struct {
	ThresholdMode   string  `yaml:"threshold_mode"`   // batch | fixed
	ErrorPercentile float64 `yaml:"error_percentile"` // fraction in (0,1)
	FusionPolicy    string  `yaml:"fusion_policy"`    // or | and | none
}

// DefaultConfig returns a runnable configuration with paths left empty.
// Detector-level defaults come from the detectors package so the CLI and
// direct library use agree on them.
func DefaultConfig() *Config {
	det := detectors.DefaultConfig()
	return &Config{
		Training: TrainingConfig{
			Contamination:   det.Contamination,
			Trees:           100,
			Epochs:          50,
			BatchSize:       32,
			ValidationSplit: 0.2,
			Seed:            det.RandomSeed,
		},
		Scoring: ScoringConfig{
			ThresholdMode:   ThresholdBatch,
			ErrorPercentile: 0.95,
			FusionPolicy:    "or",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate ensures the configuration is consistent.
func (c *Config) Validate() error {
	if c.Inputs.SentimentCSV == "" || c.Inputs.TransactionsCSV == "" {
		return fmt.Errorf("both input paths are required")
	}
	if c.Bundles.IsolationForestDir == "" || c.Bundles.AutoencoderDir == "" {
		return fmt.Errorf("both bundle directories are required")
	}
	if c.Bundles.IsolationForestDir == c.Bundles.AutoencoderDir {
		return fmt.Errorf("models must not share a bundle directory")
	}
	if c.Output.AnomaliesCSV == "" {
		return fmt.Errorf("output path is required")
	}
	if c.Training.Contamination <= 0 || c.Training.Contamination >= 1 {
		return fmt.Errorf("contamination must be in (0,1), got %g", c.Training.Contamination)
	}
	if c.Training.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", c.Training.Trees)
	}
	if c.Training.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Training.Epochs)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.ValidationSplit < 0 || c.Training.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in [0,1), got %g", c.Training.ValidationSplit)
	}
	if c.Scoring.ThresholdMode != ThresholdBatch && c.Scoring.ThresholdMode != ThresholdFixed {
		return fmt.Errorf("threshold_mode must be %q or %q, got %q", ThresholdBatch, ThresholdFixed, c.Scoring.ThresholdMode)
	}
	if c.Scoring.ErrorPercentile <= 0 || c.Scoring.ErrorPercentile >= 1 {
		return fmt.Errorf("error_percentile must be in (0,1), got %g", c.Scoring.ErrorPercentile)
	}
	if _, err := fusionPolicy(c.Scoring.FusionPolicy); err != nil {
		return err
	}
	return nil
}
