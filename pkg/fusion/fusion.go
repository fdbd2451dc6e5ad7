// Package fusion combines the per-bucket verdicts of both detectors.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Policy selects how the two binary flags combine into a consensus label.
type Policy string

const (
	// PolicyOr flags a bucket when either model flags it.
	PolicyOr Policy = "or"
	// PolicyAnd flags a bucket only when both models agree.
	PolicyAnd Policy = "and"
	// PolicyNone reports both flags without a consensus label.
	PolicyNone Policy = "none"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyOr, PolicyAnd, PolicyNone:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown fusion policy %q", s)
}

// Verdict is the terminal output for one aligned hourly bucket.
type Verdict struct {
	Bucket              time.Time
	DensityScore        float64
	DensityFlag         int
	ReconstructionError float64
	ReconstructionFlag  int
	// Consensus is meaningful only when a combining policy is set.
	Consensus int
}

// Fuse pairs both models' outputs per bucket. Density flags come from the
// forest's fitted threshold, reconstruction flags from recThreshold (batch
// percentile or the persisted training percentile, depending on mode). All
// slices must be keyed by the same bucket order.
func Fuse(buckets []time.Time, densityScores []float64, densityThreshold float64, recErrors []float64, recThreshold float64, policy Policy) ([]Verdict, error) {
	if len(densityScores) != len(buckets) || len(recErrors) != len(buckets) {
		return nil, fmt.Errorf("verdicts are misaligned: %d buckets, %d density scores, %d reconstruction errors",
			len(buckets), len(densityScores), len(recErrors))
	}

	verdicts := make([]Verdict, len(buckets))
	for i, bucket := range buckets {
		v := Verdict{
			Bucket:              bucket,
			DensityScore:        densityScores[i],
			ReconstructionError: recErrors[i],
		}
		if densityScores[i] >= densityThreshold {
			v.DensityFlag = 1
		}
		if recErrors[i] >= recThreshold {
			v.ReconstructionFlag = 1
		}

		switch policy {
		case PolicyOr:
			if v.DensityFlag == 1 || v.ReconstructionFlag == 1 {
				v.Consensus = 1
			}
		case PolicyAnd:
			if v.DensityFlag == 1 && v.ReconstructionFlag == 1 {
				v.Consensus = 1
			}
		}

		verdicts[i] = v
	}

	return verdicts, nil
}

// PercentileThreshold returns the p-th quantile (p in (0,1)) of values using
// linear interpolation between adjacent order statistics. Rows with a value
// greater than or equal to the result are the flagged fraction.
func PercentileThreshold(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
