package features

// Input column names. Schemas are fixed and explicit: readers validate these
// exact headers instead of normalizing whatever arrives.
const (
	ColTimestamp = "timestamp"
	ColText      = "text"
	ColPolarity  = "polarity"

	ColTxHash  = "hash"
	ColFrom    = "from"
	ColTo      = "to"
	ColValue   = "value"
	ColGasUsed = "gas_used"
)

// SentimentColumns returns the required columns of the sentiment stream.
func SentimentColumns() []string {
	return []string{ColTimestamp, ColText, ColPolarity}
}

// TransactionColumns returns the required columns of the transaction stream.
func TransactionColumns() []string {
	return []string{ColTxHash, ColFrom, ColTo, ColValue, ColGasUsed, ColTimestamp}
}
