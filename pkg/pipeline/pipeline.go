package pipeline

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hed1ad/marketguard/pkg/features"
	"github.com/hed1ad/marketguard/pkg/fusion"
	mgio "github.com/hed1ad/marketguard/pkg/io"
	csvio "github.com/hed1ad/marketguard/pkg/io/csv"
)

// ErrEmptyAlignment reports that the two streams share no hourly buckets.
// Training or scoring on zero rows is never attempted.
var ErrEmptyAlignment = errors.New("aligned feature set is empty")

// Model kinds recorded in bundle manifests.
const (
	kindIsolationForest = "isolation_forest"
	kindAutoencoder     = "autoencoder"
)

func fusionPolicy(s string) (fusion.Policy, error) {
	return fusion.ParsePolicy(s)
}

// loadAligned drains both sources, normalizes them, and aligns them onto the
// hourly grid. Per-record coercion failures degrade to drops; their counts
// are logged for diagnosis.
func loadAligned(sentSrc, txSrc mgio.EventSource) ([]features.FusedRow, error) {
	sentRows, err := sentSrc.Read()
	if err != nil {
		return nil, fmt.Errorf("read sentiment stream: %w", err)
	}
	txRows, err := txSrc.Read()
	if err != nil {
		return nil, fmt.Errorf("read transaction stream: %w", err)
	}

	sentiment, sentDropped := features.NormalizeSentiment(sentRows)
	transactions, txDropped := features.NormalizeTransactions(txRows)

	log.Info().
		Int("sentiment_events", len(sentiment)).
		Int("sentiment_dropped", sentDropped).
		Int("transaction_events", len(transactions)).
		Int("transaction_dropped", txDropped).
		Msg("normalized event streams")

	rows := features.Align(sentiment, transactions)
	log.Info().Int("buckets", len(rows)).Msg("aligned hourly buckets")

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: the streams have no co-occurring hours", ErrEmptyAlignment)
	}
	return rows, nil
}

// newVerdictSink opens the output file behind the VerdictSink boundary.
func newVerdictSink(path string, withConsensus bool) (mgio.VerdictSink, error) {
	return csvio.NewWriter(path, withConsensus)
}

// openAligned wires the configured CSV inputs through loadAligned.
func openAligned(cfg *Config) ([]features.FusedRow, error) {
	sentSrc, err := csvio.NewReader(cfg.Inputs.SentimentCSV, features.SentimentColumns())
	if err != nil {
		return nil, err
	}
	defer sentSrc.Close()

	txSrc, err := csvio.NewReader(cfg.Inputs.TransactionsCSV, features.TransactionColumns())
	if err != nil {
		return nil, err
	}
	defer txSrc.Close()

	return loadAligned(sentSrc, txSrc)
}
