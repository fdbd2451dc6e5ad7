package features

import (
	"strconv"
	"strings"
	"time"
)

// Accepted timestamp layouts, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeSentiment coerces raw sentiment rows into typed events. Rows with
// an unparseable timestamp or polarity are dropped. The second return value is
// the number of dropped rows.
func NormalizeSentiment(rows []map[string]string) ([]SentimentEvent, int) {
	events := make([]SentimentEvent, 0, len(rows))
	dropped := 0

	for _, row := range rows {
		ts, ok := parseTimestamp(row[ColTimestamp])
		if !ok {
			dropped++
			continue
		}
		polarity, ok := parseFloat(row[ColPolarity])
		if !ok || polarity < -1 || polarity > 1 {
			dropped++
			continue
		}

		events = append(events, SentimentEvent{
			Timestamp: ts,
			Text:      row[ColText],
			Polarity:  polarity,
		})
	}

	return events, dropped
}

// NormalizeTransactions coerces raw transaction rows into typed events. All
// five identity/value fields plus the timestamp are required; a row missing or
// failing to coerce any of them is dropped.
func NormalizeTransactions(rows []map[string]string) ([]TransactionEvent, int) {
	events := make([]TransactionEvent, 0, len(rows))
	dropped := 0

	for _, row := range rows {
		txID := strings.TrimSpace(row[ColTxHash])
		from := strings.TrimSpace(row[ColFrom])
		to := strings.TrimSpace(row[ColTo])
		if txID == "" || from == "" || to == "" {
			dropped++
			continue
		}

		ts, ok := parseTimestamp(row[ColTimestamp])
		if !ok {
			dropped++
			continue
		}
		value, ok := parseFloat(row[ColValue])
		if !ok || value < 0 {
			dropped++
			continue
		}
		gasUsed, ok := parseFloat(row[ColGasUsed])
		if !ok || gasUsed < 0 {
			dropped++
			continue
		}

		events = append(events, TransactionEvent{
			TxID:      txID,
			From:      from,
			To:        to,
			Value:     value,
			GasUsed:   gasUsed,
			Timestamp: ts,
		})
	}

	return events, dropped
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
