package datasets

import (
	"errors"
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ErrBatchShape is returned when an example does not fit the batch layout.
var ErrBatchShape = errors.New("example does not match batch shape")

// BatchFlat packs model inputs and future trajectory labels into contiguous
// buffers. Labels hold Timesteps (x, y) pairs per example, interleaved as
// x0, y0, x1, y1, ...
type BatchFlat struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	Timesteps int
}

// NewBatchFlat returns an empty batch for inputs of inputDim features and
// labels of timesteps points, with room for capacity examples.
func NewBatchFlat(inputDim, timesteps, capacity int) *BatchFlat {
	return &BatchFlat{
		Inputs:    make([]float32, 0, capacity*inputDim),
		Labels:    make([]float32, 0, capacity*2*timesteps),
		InputDim:  inputDim,
		Timesteps: timesteps,
	}
}

// Append adds one example. label is a flattened trajectory in agent frame.
func (b *BatchFlat) Append(input, label []float32) error {
	if len(input) != b.InputDim {
		return fmt.Errorf("%w: example %d has %d features, want %d", ErrBatchShape, b.BatchSize, len(input), b.InputDim)
	}
	if len(label) != 2*b.Timesteps {
		return fmt.Errorf("%w: example %d has %d label values, want %d", ErrBatchShape, b.BatchSize, len(label), 2*b.Timesteps)
	}
	b.Inputs = append(b.Inputs, input...)
	b.Labels = append(b.Labels, label...)
	b.BatchSize++
	return nil
}

// Input returns the features of example i without copying.
func (b *BatchFlat) Input(i int) []float32 {
	return b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
}

// Label returns the future of example i as points.
func (b *BatchFlat) Label(i int) []Point {
	raw := b.Labels[i*2*b.Timesteps : (i+1)*2*b.Timesteps]
	out := make([]Point, b.Timesteps)
	for t := range out {
		out[t] = Point{float64(raw[2*t]), float64(raw[2*t+1])}
	}
	return out
}

// MakeBatchFlat builds a batch from per-example inputs and flattened
// trajectory labels. The dimensions are taken from the first example.
func MakeBatchFlat(inputs, labels [][]float32) (*BatchFlat, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("%w: %d inputs, %d labels", ErrBatchShape, len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &BatchFlat{}, nil
	}
	if len(labels[0])%2 != 0 {
		return nil, fmt.Errorf("%w: label of %d values is not a list of points", ErrBatchShape, len(labels[0]))
	}
	b := NewBatchFlat(len(inputs[0]), len(labels[0])/2, len(inputs))
	for i := range inputs {
		if err := b.Append(inputs[i], labels[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ToGomlxTensors returns the inputs shaped [batch, inputDim] and the labels
// shaped [batch, timesteps, 2].
func (b *BatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	inputs := make([][]float32, b.BatchSize)
	labels := make([][][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Input(i)
		raw := b.Labels[i*2*b.Timesteps : (i+1)*2*b.Timesteps]
		labels[i] = make([][]float32, b.Timesteps)
		for t := range labels[i] {
			labels[i][t] = raw[2*t : 2*t+2]
		}
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}
