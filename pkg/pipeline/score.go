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
	"github.com/hed1ad/marketguard/pkg/fusion"
	"github.com/hed1ad/marketguard/pkg/scaling"
)

// Score aligns the configured streams, scores every bucket with both trained
// models, fuses the verdicts, and writes the output file. The file is only
// written after both models have scored; a failure anywhere leaves no partial
// output.
func Score(cfg *Config) ([]fusion.Verdict, error) {
	rows, err := openAligned(cfg)
	if err != nil {
		return nil, err
	}

	buckets := make([]time.Time, len(rows))
	for i, row := range rows {
		buckets[i] = row.Bucket
	}

	forest := iforest.New()
	densityScores, err := scoreOne(kindIsolationForest, forest, rows, cfg.Bundles.IsolationForestDir)
	if err != nil {
		return nil, err
	}

	ae := autoencoder.New()
	recErrors, err := scoreOne(kindAutoencoder, ae, rows, cfg.Bundles.AutoencoderDir)
	if err != nil {
		return nil, err
	}

	var recThreshold float64
	switch cfg.Scoring.ThresholdMode {
	case ThresholdFixed:
		recThreshold = ae.TrainThreshold()
	default:
		recThreshold = fusion.PercentileThreshold(recErrors, cfg.Scoring.ErrorPercentile)
	}

	policy, err := fusionPolicy(cfg.Scoring.FusionPolicy)
	if err != nil {
		return nil, err
	}

	verdicts, err := fusion.Fuse(buckets, densityScores, forest.Threshold(), recErrors, recThreshold, policy)
	if err != nil {
		return nil, err
	}

	sink, err := newVerdictSink(cfg.Output.AnomaliesCSV, policy != fusion.PolicyNone)
	if err != nil {
		return nil, err
	}
	if err := sink.WriteAll(verdicts); err != nil {
		sink.Close()
		return nil, fmt.Errorf("write verdicts: %w", err)
	}
	if err := sink.Close(); err != nil {
		return nil, fmt.Errorf("write verdicts: %w", err)
	}

	var densityFlagged, recFlagged int
	for _, v := range verdicts {
		densityFlagged += v.DensityFlag
		recFlagged += v.ReconstructionFlag
	}
	log.Info().
		Int("buckets", len(verdicts)).
		Int("density_flagged", densityFlagged).
		Int("reconstruction_flagged", recFlagged).
		Str("threshold_mode", cfg.Scoring.ThresholdMode).
		Str("output", cfg.Output.AnomaliesCSV).
		Msg("scored and fused")

	return verdicts, nil
}

// scoreOne loads one model's bundle, enforces its contract against this run's
// feature columns, and returns per-bucket scores. Any contract divergence
// fails before a single score is computed.
func scoreOne(kind string, model detectors.Detector, rows []features.FusedRow, dir string) ([]float64, error) {
	b, err := bundle.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s bundle: %w", kind, err)
	}
	if b.Manifest.Model != kind {
		return nil, fmt.Errorf("bundle in %s holds a %q model, expected %q", dir, b.Manifest.Model, kind)
	}

	if err := b.Contract.Check(features.Names()); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	matrix, err := features.Matrix(rows, b.Contract)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	scaler, err := scaling.Load(b.Scaler)
	if err != nil {
		return nil, fmt.Errorf("load %s scaler: %w", kind, err)
	}
	scaled, err := scaler.Transform(matrix)
	if err != nil {
		return nil, fmt.Errorf("scale for %s: %w", kind, err)
	}

	if err := model.Load(b.Model); err != nil {
		return nil, fmt.Errorf("load %s model: %w", kind, err)
	}

	scores, err := model.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("score with %s: %w", kind, err)
	}

	log.Debug().Str("model", kind).Str("version", b.Manifest.Version).Int("rows", len(scores)).Msg("scored")
	return scores, nil
}
