// Package scaling implements the standard scaler fitted once per training run.
package scaling

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler holds per-feature mean and standard deviation. It is fitted exactly
// once, on the training matrix, and is never mutated by Transform.
type Scaler struct {
	Means []float64
	Stds  []float64
}

// Fit computes per-feature statistics over the training matrix.
func Fit(data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, errors.New("empty training data")
	}

	nFeatures := len(data[0])
	s := &Scaler{
		Means: make([]float64, nFeatures),
		Stds:  make([]float64, nFeatures),
	}

	col := make([]float64, len(data))
	for j := 0; j < nFeatures; j++ {
		for i, row := range data {
			if len(row) != nFeatures {
				return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
			}
			col[i] = row[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) {
			std = 0
		}
		s.Means[j] = mean
		s.Stds[j] = std
	}

	return s, nil
}

// NumFeatures returns the width the scaler was fitted on.
func (s *Scaler) NumFeatures() int {
	return len(s.Means)
}

// Transform scales a matrix with the fitted statistics. The input column
// order must match the order the scaler was fitted on.
func (s *Scaler) Transform(data [][]float64) ([][]float64, error) {
	out := make([][]float64, len(data))
	for i, row := range data {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformRow scales a single feature vector.
func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(s.Means) {
		return nil, fmt.Errorf("vector has %d features, scaler fitted on %d", len(row), len(s.Means))
	}

	out := make([]float64, len(row))
	for j, v := range row {
		// Constant features are centered only.
		if s.Stds[j] == 0 {
			out[j] = v - s.Means[j]
			continue
		}
		out[j] = (v - s.Means[j]) / s.Stds[j]
	}
	return out, nil
}

// Save serializes the fitted scaler.
func (s *Scaler) Save() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a fitted scaler.
func Load(data []byte) (*Scaler, error) {
	var s Scaler
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	if len(s.Means) == 0 || len(s.Means) != len(s.Stds) {
		return nil, errors.New("malformed scaler state")
	}
	return &s, nil
}
