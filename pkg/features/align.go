package features

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// BucketWidth is the fixed alignment interval between the two streams.
const BucketWidth = time.Hour

// floorBucket normalizes a timestamp to the canonical naive representation
// (UTC, offset discarded) and floors it to the enclosing bucket. Both streams
// must go through this exact normalization or the join silently drops rows.
func floorBucket(t time.Time) time.Time {
	return t.UTC().Truncate(BucketWidth)
}

type sentimentAgg struct {
	polarities []float64
}

type transactionAgg struct {
	gasSum   float64
	valueSum float64
	count    int
}

// Align buckets both event streams to the hour and inner-joins them on the
// bucket key. Only hours with co-occurring evidence from both streams produce
// a row; buckets present in a single stream are dropped. Empty input on either
// side yields an empty result, which is valid here and must be rejected by the
// caller before training or scoring.
func Align(sentiment []SentimentEvent, transactions []TransactionEvent) []FusedRow {
	sentByBucket := make(map[time.Time]*sentimentAgg)
	for _, ev := range sentiment {
		bucket := floorBucket(ev.Timestamp)
		agg, ok := sentByBucket[bucket]
		if !ok {
			agg = &sentimentAgg{}
			sentByBucket[bucket] = agg
		}
		agg.polarities = append(agg.polarities, ev.Polarity)
	}

	txByBucket := make(map[time.Time]*transactionAgg)
	for _, ev := range transactions {
		bucket := floorBucket(ev.Timestamp)
		agg, ok := txByBucket[bucket]
		if !ok {
			agg = &transactionAgg{}
			txByBucket[bucket] = agg
		}
		agg.gasSum += ev.GasUsed
		agg.valueSum += ev.Value
		agg.count++
	}

	rows := make([]FusedRow, 0, len(sentByBucket))
	for bucket, sentAgg := range sentByBucket {
		txAgg, ok := txByBucket[bucket]
		if !ok {
			continue
		}

		// Calendar features come from the bucket itself, not from any
		// individual event inside it. Weekday is Monday-based.
		row := FusedRow{
			Bucket:     bucket,
			Sentiment:  stat.Mean(sentAgg.polarities, nil),
			Day:        float64(bucket.Day()),
			Month:      float64(int(bucket.Month())),
			Weekday:    float64((int(bucket.Weekday()) + 6) % 7),
			AvgGasUsed: txAgg.gasSum / float64(txAgg.count),
			TotalValue: txAgg.valueSum,
			TxnCount:   float64(txAgg.count),
		}
		if !finite(row) {
			continue
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Bucket.Before(rows[j].Bucket)
	})

	return rows
}

// finite reports whether every feature of the row is a finite number.
func finite(r FusedRow) bool {
	for _, name := range Names() {
		v, _ := r.Feature(name)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
