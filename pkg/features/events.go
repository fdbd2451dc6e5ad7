// Package features turns raw market event streams into aligned hourly feature rows.
package features

import "time"

// SentimentEvent is a single scored social post. Polarity is assigned by an
// external sentiment scorer and lies in [-1, 1].
type SentimentEvent struct {
	Timestamp time.Time
	Text      string
	Polarity  float64
}

// TransactionEvent is a single on-chain transfer.
type TransactionEvent struct {
	TxID      string
	From      string
	To        string
	Value     float64
	GasUsed   float64
	Timestamp time.Time
}

// Feature names shared by training and scoring. Order matters: Names returns
// the canonical ordering both models are trained on.
const (
	FeatSentiment  = "sentiment"
	FeatDay        = "day"
	FeatMonth      = "month"
	FeatWeekday    = "weekday"
	FeatAvgGasUsed = "avg_gas_used"
	FeatTotalValue = "total_value"
	FeatTxnCount   = "txn_count"
)

// Names returns the canonical feature order.
func Names() []string {
	return []string{
		FeatSentiment,
		FeatDay,
		FeatMonth,
		FeatWeekday,
		FeatAvgGasUsed,
		FeatTotalValue,
		FeatTxnCount,
	}
}

// FusedRow is one aligned hourly bucket with features from both streams.
// A row exists only for hours where both streams produced at least one event.
type FusedRow struct {
	Bucket      time.Time
	Sentiment   float64
	Day         float64
	Month       float64
	Weekday     float64
	AvgGasUsed  float64
	TotalValue  float64
	TxnCount    float64
}

// Feature returns the named feature's value.
func (r FusedRow) Feature(name string) (float64, bool) {
	switch name {
	case FeatSentiment:
		return r.Sentiment, true
	case FeatDay:
		return r.Day, true
	case FeatMonth:
		return r.Month, true
	case FeatWeekday:
		return r.Weekday, true
	case FeatAvgGasUsed:
		return r.AvgGasUsed, true
	case FeatTotalValue:
		return r.TotalValue, true
	case FeatTxnCount:
		return r.TxnCount, true
	}
	return 0, false
}
