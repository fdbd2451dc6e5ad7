package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSentiment(t *testing.T) {
	tests := []struct {
		name        string
		rows        []map[string]string
		wantKept    int
		wantDropped int
	}{
		{
			name: "valid rows in both layouts",
			rows: []map[string]string{
				{ColTimestamp: "2026-03-02T10:05:00Z", ColText: "up", ColPolarity: "0.8"},
				{ColTimestamp: "2026-03-02 10:40:00", ColText: "down", ColPolarity: "-0.2"},
			},
			wantKept: 2,
		},
		{
			name: "bad timestamp dropped",
			rows: []map[string]string{
				{ColTimestamp: "yesterday", ColText: "x", ColPolarity: "0.1"},
			},
			wantDropped: 1,
		},
		{
			name: "bad polarity dropped",
			rows: []map[string]string{
				{ColTimestamp: "2026-03-02T10:05:00Z", ColText: "x", ColPolarity: "n/a"},
			},
			wantDropped: 1,
		},
		{
			name: "polarity out of range dropped",
			rows: []map[string]string{
				{ColTimestamp: "2026-03-02T10:05:00Z", ColText: "x", ColPolarity: "1.5"},
			},
			wantDropped: 1,
		},
		{
			name: "missing fields dropped",
			rows: []map[string]string{
				{ColText: "no timestamp or polarity"},
			},
			wantDropped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, dropped := NormalizeSentiment(tt.rows)
			assert.Len(t, events, tt.wantKept)
			assert.Equal(t, tt.wantDropped, dropped)
		})
	}
}

func TestNormalizeSentimentValues(t *testing.T) {
	events, dropped := NormalizeSentiment([]map[string]string{
		{ColTimestamp: "2026-03-02T10:05:00Z", ColText: "bullish", ColPolarity: "0.8"},
	})
	require.Len(t, events, 1)
	assert.Zero(t, dropped)
	assert.Equal(t, "bullish", events[0].Text)
	assert.Equal(t, 0.8, events[0].Polarity)
	assert.Equal(t, 2026, events[0].Timestamp.Year())
}

func TestNormalizeTransactions(t *testing.T) {
	valid := map[string]string{
		ColTxHash: "0xabc", ColFrom: "0x1", ColTo: "0x2",
		ColValue: "5.5", ColGasUsed: "21000",
		ColTimestamp: "2026-03-02T10:05:00Z",
	}

	tests := []struct {
		name        string
		mutate      func(map[string]string)
		wantKept    int
		wantDropped int
	}{
		{name: "valid row kept", mutate: func(m map[string]string) {}, wantKept: 1},
		{name: "missing hash", mutate: func(m map[string]string) { delete(m, ColTxHash) }, wantDropped: 1},
		{name: "blank sender", mutate: func(m map[string]string) { m[ColFrom] = "  " }, wantDropped: 1},
		{name: "negative value", mutate: func(m map[string]string) { m[ColValue] = "-1" }, wantDropped: 1},
		{name: "unparseable gas", mutate: func(m map[string]string) { m[ColGasUsed] = "lots" }, wantDropped: 1},
		{name: "unparseable timestamp", mutate: func(m map[string]string) { m[ColTimestamp] = "soon" }, wantDropped: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := make(map[string]string, len(valid))
			for k, v := range valid {
				row[k] = v
			}
			tt.mutate(row)

			events, dropped := NormalizeTransactions([]map[string]string{row})
			assert.Len(t, events, tt.wantKept)
			assert.Equal(t, tt.wantDropped, dropped)
		})
	}
}

func TestNormalizeTransactionsPartialRecordsNeverSurvive(t *testing.T) {
	// One good row among several partial ones
	rows := []map[string]string{
		{ColTxHash: "0x1", ColFrom: "a", ColTo: "b", ColValue: "1", ColGasUsed: "21000", ColTimestamp: "2026-03-02T10:00:00Z"},
		{ColTxHash: "0x2", ColFrom: "a", ColTo: "b", ColValue: "1", ColGasUsed: "21000"},
		{ColTxHash: "0x3", ColValue: "1", ColGasUsed: "21000", ColTimestamp: "2026-03-02T10:00:00Z"},
	}

	events, dropped := NormalizeTransactions(rows)
	require.Len(t, events, 1)
	assert.Equal(t, "0x1", events[0].TxID)
	assert.Equal(t, 2, dropped)
}
