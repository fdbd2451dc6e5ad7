package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/marketguard/pkg/bundle"
	"github.com/hed1ad/marketguard/pkg/detectors/iforest"
	"github.com/hed1ad/marketguard/pkg/features"
	mgio "github.com/hed1ad/marketguard/pkg/io"
	"github.com/hed1ad/marketguard/pkg/scaling"
)

// writeStreams produces both input CSVs with `hours` co-occurring hourly
// buckets starting at start.
func writeStreams(t *testing.T, dir string, start time.Time, hours int) (string, string) {
	t.Helper()

	var sent strings.Builder
	sent.WriteString("timestamp,text,polarity\n")
	var tx strings.Builder
	tx.WriteString("hash,from,to,value,gas_used,timestamp\n")

	for h := 0; h < hours; h++ {
		hour := start.Add(time.Duration(h) * time.Hour)
		fmt.Fprintf(&sent, "%s,post,%0.3f\n", hour.Add(5*time.Minute).Format(time.RFC3339), 0.1+0.01*float64(h%7))
		fmt.Fprintf(&sent, "%s,post,%0.3f\n", hour.Add(40*time.Minute).Format(time.RFC3339), -0.05+0.02*float64(h%5))
		fmt.Fprintf(&tx, "0x%04x,a,b,%0.2f,%d,%s\n", 2*h, 3.0+float64(h%9), 21000+100*(h%13), hour.Add(10*time.Minute).Format(time.RFC3339))
		fmt.Fprintf(&tx, "0x%04x,a,b,%0.2f,%d,%s\n", 2*h+1, 2.0+float64(h%4), 21000+150*(h%11), hour.Add(50*time.Minute).Format(time.RFC3339))
	}

	sentPath := filepath.Join(dir, "sentiment.csv")
	txPath := filepath.Join(dir, "transactions.csv")
	require.NoError(t, os.WriteFile(sentPath, []byte(sent.String()), 0o644))
	require.NoError(t, os.WriteFile(txPath, []byte(tx.String()), 0o644))
	return sentPath, txPath
}

func testConfig(t *testing.T, dir string) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Inputs.SentimentCSV = filepath.Join(dir, "sentiment.csv")
	cfg.Inputs.TransactionsCSV = filepath.Join(dir, "transactions.csv")
	cfg.Bundles.IsolationForestDir = filepath.Join(dir, "bundles", "iforest")
	cfg.Bundles.AutoencoderDir = filepath.Join(dir, "bundles", "autoencoder")
	cfg.Output.AnomaliesCSV = filepath.Join(dir, "anomalies.csv")
	cfg.Training.Epochs = 10
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestTrainScoreEndToEnd(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	writeStreams(t, dir, start, 60)
	cfg := testConfig(t, dir)

	require.NoError(t, Train(cfg))

	// Both bundles exist and are properly paired
	forestBundle, err := bundle.Load(cfg.Bundles.IsolationForestDir)
	require.NoError(t, err)
	assert.Equal(t, kindIsolationForest, forestBundle.Manifest.Model)
	assert.Equal(t, bundle.Contract(features.Names()), forestBundle.Contract)

	aeBundle, err := bundle.Load(cfg.Bundles.AutoencoderDir)
	require.NoError(t, err)
	assert.Equal(t, kindAutoencoder, aeBundle.Manifest.Model)
	assert.NotEqual(t, forestBundle.Manifest.Version, aeBundle.Manifest.Version)

	verdicts, err := Score(cfg)
	require.NoError(t, err)
	require.Len(t, verdicts, 60)

	// One verdict per aligned bucket, in order
	for i, v := range verdicts {
		assert.Equal(t, start.Add(time.Duration(i)*time.Hour), v.Bucket)
	}

	// Batch-relative 95th percentile flags round(0.05 * 60) rows
	recFlagged := 0
	for _, v := range verdicts {
		recFlagged += v.ReconstructionFlag
	}
	assert.Equal(t, 3, recFlagged)

	// The output file holds every verdict plus header and consensus column
	out, err := os.ReadFile(cfg.Output.AnomaliesCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 61)
	assert.Contains(t, lines[0], "consensus")
}

func TestScoreIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeStreams(t, dir, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 30)
	cfg := testConfig(t, dir)

	require.NoError(t, Train(cfg))

	first, err := Score(cfg)
	require.NoError(t, err)
	second, err := Score(cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTrainEmptyAlignment(t *testing.T) {
	dir := t.TempDir()

	// Sentiment at 09:00 only, transactions at 11:00 only
	sent := "timestamp,text,polarity\n2026-03-02T09:10:00Z,post,0.2\n"
	tx := "hash,from,to,value,gas_used,timestamp\n0x1,a,b,5,21000,2026-03-02T11:20:00Z\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentiment.csv"), []byte(sent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transactions.csv"), []byte(tx), 0o644))

	cfg := testConfig(t, dir)
	err := Train(cfg)
	assert.ErrorIs(t, err, ErrEmptyAlignment)

	// No partial artifacts are left behind
	_, statErr := os.Stat(cfg.Bundles.IsolationForestDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMissingColumnAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeStreams(t, dir, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 5)

	// Strip the polarity column from the sentiment stream
	sent := "timestamp,text\n2026-03-02T09:10:00Z,post\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentiment.csv"), []byte(sent), 0o644))

	cfg := testConfig(t, dir)
	err := Train(cfg)
	assert.ErrorIs(t, err, mgio.ErrMissingField)
}

func TestScoreRejectsForeignContract(t *testing.T) {
	dir := t.TempDir()
	writeStreams(t, dir, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 20)
	cfg := testConfig(t, dir)

	require.NoError(t, Train(cfg))

	// Re-save the forest bundle with a permuted contract, as if it came from
	// a training run with different column order
	permuted := make(bundle.Contract, 0, len(features.Names()))
	names := features.Names()
	for i := len(names) - 1; i >= 0; i-- {
		permuted = append(permuted, names[i])
	}

	matrix := [][]float64{{1, 2, 3, 4, 5, 6, 7}, {2, 3, 4, 5, 6, 7, 8}, {3, 4, 5, 6, 7, 8, 9}}
	scaler, err := scaling.Fit(matrix)
	require.NoError(t, err)
	scalerBlob, err := scaler.Save()
	require.NoError(t, err)

	forest := iforest.New(iforest.WithTrees(5))
	require.NoError(t, forest.Fit(matrix))
	modelBlob, err := forest.Save()
	require.NoError(t, err)

	require.NoError(t, bundle.New(kindIsolationForest, permuted, scalerBlob, modelBlob).Save(cfg.Bundles.IsolationForestDir))

	_, err = Score(cfg)
	assert.ErrorIs(t, err, bundle.ErrContractMismatch)

	// Scoring failed before writing any output
	_, statErr := os.Stat(cfg.Output.AnomaliesCSV)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScoreWrongModelKind(t *testing.T) {
	dir := t.TempDir()
	writeStreams(t, dir, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 20)
	cfg := testConfig(t, dir)

	require.NoError(t, Train(cfg))

	// Point the forest slot at the autoencoder bundle
	cfg.Bundles.IsolationForestDir = cfg.Bundles.AutoencoderDir
	_, err := Score(cfg)
	assert.Error(t, err)
}

func TestFixedThresholdMode(t *testing.T) {
	dir := t.TempDir()
	writeStreams(t, dir, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 40)
	cfg := testConfig(t, dir)
	cfg.Scoring.ThresholdMode = ThresholdFixed

	require.NoError(t, Train(cfg))
	verdicts, err := Score(cfg)
	require.NoError(t, err)
	require.Len(t, verdicts, 40)

	// Scoring the training population against the persisted training
	// percentile flags roughly the same tail
	recFlagged := 0
	for _, v := range verdicts {
		recFlagged += v.ReconstructionFlag
	}
	assert.InDelta(t, 3, recFlagged, 3)
}

func TestFixedThresholdHonorsErrorPercentile(t *testing.T) {
	dir := t.TempDir()
	writeStreams(t, dir, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 40)
	cfg := testConfig(t, dir)
	cfg.Scoring.ThresholdMode = ThresholdFixed
	cfg.Scoring.ErrorPercentile = 0.5

	require.NoError(t, Train(cfg))
	verdicts, err := Score(cfg)
	require.NoError(t, err)

	// The median of the training errors is persisted, so about half the
	// scored population sits at or above it
	recFlagged := 0
	for _, v := range verdicts {
		recFlagged += v.ReconstructionFlag
	}
	assert.InDelta(t, 20, recFlagged, 8)
}
