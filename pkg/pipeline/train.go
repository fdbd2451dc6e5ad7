package pipeline

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hed1ad/marketguard/pkg/bundle"
	"github.com/hed1ad/marketguard/pkg/detectors"
	"github.com/hed1ad/marketguard/pkg/detectors/autoencoder"
	"github.com/hed1ad/marketguard/pkg/detectors/iforest"
	"github.com/hed1ad/marketguard/pkg/features"
	"github.com/hed1ad/marketguard/pkg/scaling"
)

// Train aligns the configured streams and fits both detectors over the same
// feature frame. Each model gets its own bundle: contract, scaler, and model
// blob under a fresh version id. A retrain overwrites the previous artifacts.
func Train(cfg *Config) error {
	rows, err := openAligned(cfg)
	if err != nil {
		return err
	}

	contract := bundle.Contract(features.Names())
	matrix, err := features.Matrix(rows, contract)
	if err != nil {
		return err
	}

	forest := iforest.New(
		iforest.WithTrees(cfg.Training.Trees),
		iforest.WithContamination(cfg.Training.Contamination),
		iforest.WithSeed(cfg.Training.Seed),
	)
	if err := trainOne(kindIsolationForest, forest, matrix, contract, cfg.Bundles.IsolationForestDir); err != nil {
		return err
	}

	ae := autoencoder.New(
		autoencoder.WithEpochs(cfg.Training.Epochs),
		autoencoder.WithBatchSize(cfg.Training.BatchSize),
		autoencoder.WithValidationSplit(cfg.Training.ValidationSplit),
		autoencoder.WithThresholdPercentile(cfg.Scoring.ErrorPercentile),
		autoencoder.WithSeed(cfg.Training.Seed),
	)
	return trainOne(kindAutoencoder, ae, matrix, contract, cfg.Bundles.AutoencoderDir)
}

// trainOne fits a scaler and a detector on the matrix and persists them as
// one paired bundle. The scaler is fitted here and nowhere else; scoring only
// ever transforms with it.
func trainOne(kind string, model detectors.Detector, matrix [][]float64, contract bundle.Contract, dir string) error {
	start := time.Now()

	scaler, err := scaling.Fit(matrix)
	if err != nil {
		return fmt.Errorf("fit %s scaler: %w", kind, err)
	}
	scaled, err := scaler.Transform(matrix)
	if err != nil {
		return fmt.Errorf("scale %s training data: %w", kind, err)
	}

	if err := model.Fit(scaled); err != nil {
		return fmt.Errorf("fit %s: %w", kind, err)
	}

	scalerBlob, err := scaler.Save()
	if err != nil {
		return fmt.Errorf("serialize %s scaler: %w", kind, err)
	}
	modelBlob, err := model.Save()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", kind, err)
	}

	b := bundle.New(kind, contract, scalerBlob, modelBlob)
	if err := b.Save(dir); err != nil {
		return fmt.Errorf("save %s bundle: %w", kind, err)
	}

	log.Info().
		Str("model", kind).
		Str("version", b.Manifest.Version).
		Str("dir", dir).
		Int("rows", len(matrix)).
		Dur("elapsed", time.Since(start)).
		Msg("trained and saved bundle")
	return nil
}
