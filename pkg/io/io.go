// Package io defines the pipeline's input and output boundaries.
package io

import (
	"errors"

	"github.com/hed1ad/marketguard/pkg/fusion"
)

// ErrMissingField reports a required input column absent from a source. It
// aborts the run immediately; no partial output is written.
var ErrMissingField = errors.New("required column missing")

// EventSource reads one raw event stream as tabular rows keyed by column name.
type EventSource interface {
	// Read returns the complete row set.
	Read() ([]map[string]string, error)

	// Close releases resources.
	Close() error
}

// VerdictSink persists the scored buckets of one run.
type VerdictSink interface {
	// WriteAll outputs all verdicts of a run.
	WriteAll(verdicts []fusion.Verdict) error

	// Close flushes and releases resources.
	Close() error
}
