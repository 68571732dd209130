// Package simple implements small fully connected trajectory predictors
// trained in pure Go: a multi-modal regression head (MTP) and a
// classification head over a fixed trajectory set (CoverNet).
package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/prediction"
)

// Config holds configurable hyperparameters for the MLP model and training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// InputDim is the dimensionality of the input feature vector. Required.
	InputDim int

	// Head selects the output layer and loss. Default: HeadMTP.
	Head Head

	// NumModes is the number of trajectories the MTP head regresses.
	// Default 3, at most prediction.MaxModes.
	NumModes int

	// Timesteps is the number of future points per trajectory. Default 12.
	Timesteps int

	// Lattice is the trajectory set classified by HeadTrajectorySet.
	Lattice Lattice

	// OutputDim is only used by HeadRegression. Default 2.
	OutputDim int

	// ClassificationWeight scales the mode classification term of the MTP
	// loss. Default 1.
	ClassificationWeight float64

	LearningRate float64

	// Epochs to train for (default if 0 will be set by NewModel to 10).
	Epochs int

	// BatchSize for mini-batch updates (default if 0 will be set by NewModel to 8).
	BatchSize int

	// Seed controls RNG for weight init and shuffling. If zero, time-based seed is used.
	Seed int64

	// ClipNorm bounds the global L2 norm of each batch gradient. Default 10.
	ClipNorm float32
}

// Dataset is what the trainer needs from a training set.
type Dataset interface {
	Len() int
	// Batch returns inputs and labels for the provided indices. Labels are
	// flattened future trajectories (x0, y0, x1, y1, ...) in the agent frame
	// for the MTP and trajectory set heads.
	Batch(indices []int) ([][]float32, [][]float32, error)
}

// Model is a small configurable MLP. Hidden layers use ReLU, the output
// layer is linear and interpreted by the configured Head.
type Model struct {
	Config Config
	Logger *zap.Logger

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	rng *rand.Rand
}

func (cfg *Config) setDefaults() {
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.Head == "" {
		cfg.Head = HeadMTP
	}
	if cfg.NumModes == 0 {
		cfg.NumModes = 3
	}
	if cfg.Timesteps == 0 {
		cfg.Timesteps = 12
	}
	if cfg.OutputDim == 0 {
		cfg.OutputDim = 2
	}
	if cfg.ClassificationWeight == 0 {
		cfg.ClassificationWeight = 1
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 10
	}
}

func (cfg Config) outputDim() (int, error) {
	switch cfg.Head {
	case HeadRegression:
		return cfg.OutputDim, nil
	case HeadMTP:
		if cfg.NumModes > prediction.MaxModes {
			return 0, fmt.Errorf("%w: %d modes", prediction.ErrTooManyModes, cfg.NumModes)
		}
		return cfg.NumModes * (2*cfg.Timesteps + 1), nil
	case HeadTrajectorySet:
		if len(cfg.Lattice) == 0 {
			return 0, errors.New("trajectory set head needs a lattice")
		}
		if got := cfg.Lattice.Timesteps(); got != cfg.Timesteps {
			return 0, fmt.Errorf("lattice has %d timesteps, model expects %d", got, cfg.Timesteps)
		}
		return len(cfg.Lattice), nil
	default:
		return 0, fmt.Errorf("unknown head %q", cfg.Head)
	}
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	cfg.setDefaults()
	if cfg.InputDim <= 0 {
		return nil, errors.New("input dimension must be positive")
	}
	outputDim, err := cfg.outputDim()
	if err != nil {
		return nil, err
	}

	m := &Model{
		Config: cfg,
		Logger: zap.NewNop(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		// Xavier/Glorot uniform initialization heuristic
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	return m, nil
}

// InputDim returns the expected feature length.
func (m *Model) InputDim() int { return m.layerSizes[0] }

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// activationReLUDeriv is 1 where preact>0, else 0.
func activationReLUDeriv(preact []float32) []float32 {
	d := make([]float32, len(preact))
	for i := range preact {
		if preact[i] > 0 {
			d[i] = 1.0
		}
	}
	return d
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActivations: list of pre-activation vectors per layer (len = L)
// - activations: list of activation vectors per layer (len = L+1, activations[0] = input)
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, fmt.Errorf("input has dimension %d, model expects %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = make([]float32, len(input))
	copy(acts[0], input)

	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		outDim := len(m.biases[l])
		pre := make([]float32, outDim)
		W := m.weights[l]
		b := m.biases[l]
		for j := 0; j < outDim; j++ {
			sum := float32(0.0)
			row := W[j]
			for i := range inVec {
				sum += row[i] * inVec[i]
			}
			pre[j] = sum + b[j]
		}
		preActs[l] = pre

		act := make([]float32, outDim)
		copy(act, pre)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// PredictBatch returns the raw output layer for a batch of inputs.
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// Loss returns the mean head loss over a batch.
func (m *Model) Loss(inputs, labels [][]float32) (float64, error) {
	if len(inputs) != len(labels) {
		return 0, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	outs, err := m.PredictBatch(inputs)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range outs {
		l, _, err := m.lossAndGrad(outs[i], labels[i])
		if err != nil {
			return 0, err
		}
		sum += l
	}
	return sum / float64(len(outs)), nil
}

// TrainWithDataset runs mini-batch SGD over ds. Gradients are averaged over
// each batch and clipped to Config.ClipNorm.
func (m *Model) TrainWithDataset(ds Dataset) error {
	if ds == nil {
		return errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return errors.New("dataset has no examples")
	}

	epochs := m.Config.Epochs
	batchSize := m.Config.BatchSize
	lr := float32(m.Config.LearningRate)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := 0; l < L; l++ {
		gradW[l] = make([][]float32, len(m.biases[l]))
		for j := range gradW[l] {
			gradW[l][j] = make([]float32, len(m.weights[l][0]))
		}
		gradB[l] = make([]float32, len(m.biases[l]))
	}

	for ep := 0; ep < epochs; ep++ {
		m.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var epochLoss float64
		for bstart := 0; bstart < n; bstart += batchSize {
			bend := min(bstart+batchSize, n)

			inputs, labels, err := ds.Batch(indices[bstart:bend])
			if err != nil {
				return err
			}
			batchN := len(inputs)
			if batchN == 0 {
				continue
			}
			if len(labels) != batchN {
				return fmt.Errorf("batch returned %d inputs and %d labels", batchN, len(labels))
			}

			for l := 0; l < L; l++ {
				for j := range gradW[l] {
					clear(gradW[l][j])
				}
				clear(gradB[l])
			}

			for ex := 0; ex < batchN; ex++ {
				preacts, acts, err := m.forwardSingle(inputs[ex])
				if err != nil {
					return err
				}
				loss, delta, err := m.lossAndGrad(acts[len(acts)-1], labels[ex])
				if err != nil {
					return err
				}
				epochLoss += loss

				for l := L - 1; l >= 0; l-- {
					inAct := acts[l]
					for j := range delta {
						gradB[l][j] += delta[j]
						row := gradW[l][j]
						for i := range inAct {
							row[i] += delta[j] * inAct[i]
						}
					}

					if l > 0 {
						prevLen := len(m.weights[l][0])
						newDelta := make([]float32, prevLen)
						for i := 0; i < prevLen; i++ {
							sum := float32(0.0)
							for j := range delta {
								sum += m.weights[l][j][i] * delta[j]
							}
							newDelta[i] = sum
						}
						deriv := activationReLUDeriv(preacts[l-1])
						for i := range newDelta {
							newDelta[i] *= deriv[i]
						}
						delta = newDelta
					}
				}
			}

			scale := float32(1.0 / float64(batchN))
			if norm := gradNorm(gradW, gradB) * float64(scale); norm > float64(m.Config.ClipNorm) {
				scale *= m.Config.ClipNorm / float32(norm)
			}
			for l := 0; l < L; l++ {
				for j := range m.biases[l] {
					m.biases[l][j] -= lr * gradB[l][j] * scale
					row := m.weights[l][j]
					for i := range row {
						row[i] -= lr * gradW[l][j][i] * scale
					}
				}
			}
		}

		m.Logger.Debug("epoch complete",
			zap.Int("epoch", ep+1),
			zap.Int("examples", n),
			zap.Float64("loss", epochLoss/float64(n)))
	}

	return nil
}

func gradNorm(gradW [][][]float32, gradB [][]float32) float64 {
	var sum float64
	for l := range gradW {
		for j := range gradW[l] {
			for _, g := range gradW[l][j] {
				sum += float64(g) * float64(g)
			}
		}
		for _, g := range gradB[l] {
			sum += float64(g) * float64(g)
		}
	}
	return math.Sqrt(sum)
}
