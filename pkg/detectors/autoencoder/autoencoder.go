// Package autoencoder implements a bottlenecked feed-forward network for
// reconstruction-based anomaly detection.
package autoencoder

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// Adam optimizer constants.
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// Autoencoder learns to reconstruct normal-looking feature vectors through a
// compressed bottleneck. The per-row mean squared reconstruction error is the
// anomaly signal: higher means more anomalous.
type Autoencoder struct {
	mu sync.RWMutex

	// Configuration
	hidden1             int
	hidden2             int
	epochs              int
	batchSize           int
	learningRate        float64
	l1Penalty           float64
	validationSplit     float64
	thresholdPercentile float64
	rng                 *rand.Rand

	// Trained model
	layers    []*dense
	nFeatures int
	trained   bool

	// Percentile of reconstruction error over the training data, persisted
	// for fixed-threshold scoring.
	trainThreshold float64

	// Adam timestep
	step int
}

// dense is one fully connected layer. Weights are out x in.
type dense struct {
	in, out int
	relu    bool

	w [][]float64
	b []float64

	// Adam moment estimates, not serialized.
	mW, vW [][]float64
	mB, vB []float64
}

// Option configures an Autoencoder.
type Option func(*Autoencoder)

// WithEpochs sets the number of training epochs.
func WithEpochs(n int) Option {
	return func(a *Autoencoder) {
		a.epochs = n
	}
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(a *Autoencoder) {
		a.batchSize = n
	}
}

// WithLearningRate sets the Adam learning rate.
func WithLearningRate(lr float64) Option {
	return func(a *Autoencoder) {
		a.learningRate = lr
	}
}

// WithL1Penalty sets the sparsity penalty on first-layer activations.
func WithL1Penalty(l1 float64) Option {
	return func(a *Autoencoder) {
		a.l1Penalty = l1
	}
}

// WithValidationSplit sets the held-out fraction used to monitor training.
func WithValidationSplit(frac float64) Option {
	return func(a *Autoencoder) {
		a.validationSplit = frac
	}
}

// WithHiddenSizes sets the widths of the outer hidden layer and the bottleneck.
func WithHiddenSizes(outer, bottleneck int) Option {
	return func(a *Autoencoder) {
		a.hidden1 = outer
		a.hidden2 = bottleneck
	}
}

// WithThresholdPercentile sets the training-error percentile persisted for
// fixed-threshold scoring.
func WithThresholdPercentile(p float64) Option {
	return func(a *Autoencoder) {
		a.thresholdPercentile = p
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(a *Autoencoder) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new Autoencoder with the given options.
func New(opts ...Option) *Autoencoder {
	a := &Autoencoder{
		hidden1:             32,
		hidden2:             16,
		epochs:              50,
		batchSize:           32,
		learningRate:        1e-3,
		l1Penalty:           1e-5,
		validationSplit:     0.2,
		thresholdPercentile: 0.95,
		rng:                 rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Fit trains the network to reconstruct the provided data, which is assumed
// to be mostly normal. A held-out split monitors generalization; there is no
// early stopping, training always runs the configured number of epochs.
func (a *Autoencoder) Fit(data [][]float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}

	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	a.nFeatures = nFeatures
	a.step = 0
	a.layers = []*dense{
		a.newDense(nFeatures, a.hidden1, true),
		a.newDense(a.hidden1, a.hidden2, true),
		a.newDense(a.hidden2, a.hidden1, true),
		a.newDense(a.hidden1, nFeatures, false),
	}

	// Shuffled train/validation split
	perm := a.rng.Perm(len(data))
	nVal := int(float64(len(data)) * a.validationSplit)
	if nVal >= len(data) {
		nVal = len(data) - 1
	}
	valIdx := perm[:nVal]
	trainIdx := perm[nVal:]

	batchSize := a.batchSize
	if batchSize > len(trainIdx) {
		batchSize = len(trainIdx)
	}

	for epoch := 1; epoch <= a.epochs; epoch++ {
		a.rng.Shuffle(len(trainIdx), func(i, j int) {
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		})

		var epochLoss float64
		var batches int
		for start := 0; start < len(trainIdx); start += batchSize {
			end := start + batchSize
			if end > len(trainIdx) {
				end = len(trainIdx)
			}
			batch := make([][]float64, 0, end-start)
			for _, idx := range trainIdx[start:end] {
				batch = append(batch, data[idx])
			}
			epochLoss += a.trainBatch(batch)
			batches++
		}

		var valLoss float64
		for _, idx := range valIdx {
			valLoss += a.reconstructionError(data[idx])
		}
		if len(valIdx) > 0 {
			valLoss /= float64(len(valIdx))
		}

		log.Debug().
			Int("epoch", epoch).
			Float64("train_loss", epochLoss/float64(batches)).
			Float64("val_loss", valLoss).
			Msg("autoencoder epoch")
	}

	a.trained = true

	// Training-time error percentile, used by fixed-threshold scoring
	trainErrors := make([]float64, len(data))
	for i, row := range data {
		trainErrors[i] = a.reconstructionError(row)
	}
	sort.Float64s(trainErrors)
	a.trainThreshold = stat.Quantile(a.thresholdPercentile, stat.Empirical, trainErrors, nil)

	return nil
}

// newDense initializes a layer with Glorot uniform weights.
func (a *Autoencoder) newDense(in, out int, relu bool) *dense {
	d := &dense{
		in:   in,
		out:  out,
		relu: relu,
		w:    make([][]float64, out),
		b:    make([]float64, out),
		mW:   make([][]float64, out),
		vW:   make([][]float64, out),
		mB:   make([]float64, out),
		vB:   make([]float64, out),
	}

	limit := math.Sqrt(6 / float64(in+out))
	for i := range d.w {
		d.w[i] = make([]float64, in)
		d.mW[i] = make([]float64, in)
		d.vW[i] = make([]float64, in)
		for j := range d.w[i] {
			d.w[i][j] = (a.rng.Float64()*2 - 1) * limit
		}
	}

	return d
}

// forward runs the network, returning the activations of every layer.
// acts[0] is the input, acts[len(layers)] the reconstruction.
func (a *Autoencoder) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(a.layers)+1)
	acts[0] = x
	for l, layer := range a.layers {
		acts[l+1] = layer.apply(acts[l])
	}
	return acts
}

func (d *dense) apply(x []float64) []float64 {
	out := make([]float64, d.out)
	for i := 0; i < d.out; i++ {
		sum := d.b[i]
		for j, v := range x {
			sum += d.w[i][j] * v
		}
		if d.relu && sum < 0 {
			sum = 0
		}
		out[i] = sum
	}
	return out
}

// trainBatch accumulates gradients over one mini-batch and applies a single
// Adam step. Returns the mean reconstruction loss of the batch.
func (a *Autoencoder) trainBatch(batch [][]float64) float64 {
	gradW := make([][][]float64, len(a.layers))
	gradB := make([][]float64, len(a.layers))
	for l, layer := range a.layers {
		gradW[l] = make([][]float64, layer.out)
		for i := range gradW[l] {
			gradW[l][i] = make([]float64, layer.in)
		}
		gradB[l] = make([]float64, layer.out)
	}

	var loss float64
	for _, x := range batch {
		loss += a.backprop(x, gradW, gradB)
	}

	scale := 1 / float64(len(batch))
	loss *= scale

	a.step++
	for l, layer := range a.layers {
		layer.adamStep(gradW[l], gradB[l], scale, a.learningRate, a.step)
	}

	return loss
}

// backprop adds this sample's gradients into the accumulators and returns its
// reconstruction loss.
func (a *Autoencoder) backprop(x []float64, gradW [][][]float64, gradB [][]float64) float64 {
	acts := a.forward(x)
	out := acts[len(acts)-1]

	// Output delta: d/dy of mean squared error
	delta := make([]float64, len(out))
	var loss float64
	for i, y := range out {
		diff := y - x[i]
		loss += diff * diff
		delta[i] = 2 * diff / float64(len(out))
	}
	loss /= float64(len(out))

	for l := len(a.layers) - 1; l >= 0; l-- {
		layer := a.layers[l]
		in := acts[l]
		act := acts[l+1]

		// ReLU derivative: zero where the activation was clamped
		if layer.relu {
			for i := range delta {
				if act[i] <= 0 {
					delta[i] = 0
				}
			}
		}

		for i := range delta {
			gradB[l][i] += delta[i]
			for j, v := range in {
				gradW[l][i][j] += delta[i] * v
			}
		}

		if l == 0 {
			break
		}

		// Propagate to the previous layer
		prev := make([]float64, layer.in)
		for j := range prev {
			var sum float64
			for i := range delta {
				sum += layer.w[i][j] * delta[i]
			}
			prev[j] = sum
		}

		// Sparsity penalty on the first hidden layer's activations
		if l == 1 && a.l1Penalty > 0 {
			for j, v := range acts[1] {
				if v > 0 {
					prev[j] += a.l1Penalty
				}
			}
		}

		delta = prev
	}

	return loss
}

// adamStep applies one Adam update using batch-averaged gradients.
func (d *dense) adamStep(gradW [][]float64, gradB []float64, scale, lr float64, step int) {
	corr1 := 1 - math.Pow(adamBeta1, float64(step))
	corr2 := 1 - math.Pow(adamBeta2, float64(step))

	for i := range d.w {
		for j := range d.w[i] {
			g := gradW[i][j] * scale
			d.mW[i][j] = adamBeta1*d.mW[i][j] + (1-adamBeta1)*g
			d.vW[i][j] = adamBeta2*d.vW[i][j] + (1-adamBeta2)*g*g
			d.w[i][j] -= lr * (d.mW[i][j] / corr1) / (math.Sqrt(d.vW[i][j]/corr2) + adamEpsilon)
		}

		g := gradB[i] * scale
		d.mB[i] = adamBeta1*d.mB[i] + (1-adamBeta1)*g
		d.vB[i] = adamBeta2*d.vB[i] + (1-adamBeta2)*g*g
		d.b[i] -= lr * (d.mB[i] / corr1) / (math.Sqrt(d.vB[i]/corr2) + adamEpsilon)
	}
}

// reconstructionError returns the mean squared difference between the input
// and its reconstruction.
func (a *Autoencoder) reconstructionError(x []float64) float64 {
	acts := a.forward(x)
	out := acts[len(acts)-1]

	var sum float64
	for i, y := range out {
		diff := y - x[i]
		sum += diff * diff
	}
	return sum / float64(len(out))
}

// Predict returns per-row reconstruction errors for the given samples.
func (a *Autoencoder) Predict(data [][]float64) ([]float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return nil, errors.New("model not trained")
	}

	errs := make([]float64, len(data))
	for i, row := range data {
		if len(row) != a.nFeatures {
			return nil, fmt.Errorf("row %d has %d features, model fitted on %d", i, len(row), a.nFeatures)
		}
		errs[i] = a.reconstructionError(row)
	}
	return errs, nil
}

// PredictOne returns the reconstruction error for a single sample.
func (a *Autoencoder) PredictOne(sample []float64) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return 0, errors.New("model not trained")
	}
	if len(sample) != a.nFeatures {
		return 0, fmt.Errorf("sample has %d features, model fitted on %d", len(sample), a.nFeatures)
	}
	return a.reconstructionError(sample), nil
}

// NumFeatures returns the feature count the model was fitted on.
func (a *Autoencoder) NumFeatures() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nFeatures
}

// TrainThreshold returns the configured percentile of reconstruction error
// over the training data. Fixed-threshold scoring reuses this value;
// batch-relative scoring ignores it.
func (a *Autoencoder) TrainThreshold() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trainThreshold
}

// savedModel is the gob representation of a trained network.
type savedModel struct {
	Hidden1        int
	Hidden2        int
	NFeatures      int
	TrainThreshold float64
	Weights        [][][]float64
	Biases         [][]float64
}

// Save serializes the trained model.
func (a *Autoencoder) Save() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return nil, errors.New("model not trained")
	}

	saved := savedModel{
		Hidden1:        a.hidden1,
		Hidden2:        a.hidden2,
		NFeatures:      a.nFeatures,
		TrainThreshold: a.trainThreshold,
		Weights:        make([][][]float64, len(a.layers)),
		Biases:         make([][]float64, len(a.layers)),
	}
	for l, layer := range a.layers {
		saved.Weights[l] = layer.w
		saved.Biases[l] = layer.b
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(saved); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (a *Autoencoder) Load(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var saved savedModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&saved); err != nil {
		return err
	}
	if len(saved.Weights) != 4 || len(saved.Biases) != 4 {
		return errors.New("malformed autoencoder state")
	}

	a.hidden1 = saved.Hidden1
	a.hidden2 = saved.Hidden2
	a.nFeatures = saved.NFeatures
	a.trainThreshold = saved.TrainThreshold

	sizes := []int{a.nFeatures, a.hidden1, a.hidden2, a.hidden1, a.nFeatures}
	a.layers = make([]*dense, 4)
	for l := 0; l < 4; l++ {
		layer := a.newDense(sizes[l], sizes[l+1], l < 3)
		if len(saved.Weights[l]) != layer.out {
			return errors.New("malformed autoencoder state")
		}
		layer.w = saved.Weights[l]
		layer.b = saved.Biases[l]
		a.layers[l] = layer
	}

	a.trained = true
	return nil
}
