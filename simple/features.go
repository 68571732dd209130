package simple

import (
	"context"
	"fmt"
	"runtime"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/raster"
)

// StateDim is the length of AgentState.
const StateDim = 3

// AgentState returns [velocity, acceleration, heading change rate] for the
// agent. Values the helper cannot estimate are 0.
func AgentState(h *datasets.Helper, instance, sample string) ([]float32, error) {
	v, err := h.GetVelocityForAgent(instance, sample)
	if err != nil {
		return nil, err
	}
	a, err := h.GetAccelerationForAgent(instance, sample)
	if err != nil {
		return nil, err
	}
	yr, err := h.GetHeadingChangeRateForAgent(instance, sample)
	if err != nil {
		return nil, err
	}
	return []float32{
		float32(datasets.NanToZero(v)),
		float32(datasets.NanToZero(a)),
		float32(datasets.NanToZero(yr)),
	}, nil
}

// Featurizer turns an agent at a sample into a model input: the input
// representation average pooled to Grid×Grid cells, followed by the agent
// state.
type Featurizer struct {
	Helper         *datasets.Helper
	Representation *raster.InputRepresentation
	Grid           int
}

// NewFeaturizer builds the default agent box representation over a blank
// map layer.
func NewFeaturizer(h *datasets.Helper, grid int) *Featurizer {
	boxes := raster.NewAgentBoxes(h)
	w, ht := boxes.Size()
	return &Featurizer{
		Helper:         h,
		Representation: raster.NewInputRepresentation(raster.BlankLayer{Width: w, Height: ht}, boxes, nil),
		Grid:           grid,
	}
}

// Dim returns the feature length.
func (f *Featurizer) Dim() int { return 3*f.Grid*f.Grid + StateDim }

// Features computes the input vector for instance at sample.
func (f *Featurizer) Features(instance, sample string) ([]float32, error) {
	img, err := f.Representation.MakeInputRepresentation(instance, sample)
	if err != nil {
		return nil, err
	}
	pooled, err := raster.AveragePool(img, f.Grid)
	if err != nil {
		return nil, err
	}
	state, err := AgentState(f.Helper, instance, sample)
	if err != nil {
		return nil, err
	}
	return append(pooled, state...), nil
}

// TrainingSet holds precomputed features and agent frame future labels.
type TrainingSet struct {
	Tokens   []string
	inputs   [][]float32
	labels   [][]float32
	inputDim int
}

// NewTrainingSet featurizes every token whose future spans the full
// horizon of timesteps points. Tokens with a shorter future are skipped.
func NewTrainingSet(ctx context.Context, f *Featurizer, tokens []string, timesteps int, logger *zap.Logger) (*TrainingSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seconds := float64(timesteps) / f.Helper.SampleFrequency()

	inputs := make([][]float32, len(tokens))
	labels := make([][]float32, len(tokens))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, tok := range tokens {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inst, samp, err := datasets.SplitToken(tok)
			if err != nil {
				return err
			}
			future, err := f.Helper.GetFutureForAgent(inst, samp, seconds, true)
			if err != nil {
				return err
			}
			if len(future) < timesteps {
				return nil
			}
			feat, err := f.Features(inst, samp)
			if err != nil {
				return fmt.Errorf("features for %s: %w", tok, err)
			}
			inputs[i] = feat
			labels[i] = flatten(future[:timesteps])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ts := &TrainingSet{inputDim: f.Dim()}
	for i, tok := range tokens {
		if inputs[i] == nil {
			continue
		}
		ts.Tokens = append(ts.Tokens, tok)
		ts.inputs = append(ts.inputs, inputs[i])
		ts.labels = append(ts.labels, labels[i])
	}
	logger.Info("training set built",
		zap.Int("tokens", len(tokens)),
		zap.Int("examples", len(ts.Tokens)),
		zap.Int("skipped", len(tokens)-len(ts.Tokens)))
	return ts, nil
}

// NewTrainingSetFromSlices wraps precomputed features and labels.
func NewTrainingSetFromSlices(inputs, labels [][]float32) (*TrainingSet, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	ts := &TrainingSet{inputs: inputs, labels: labels}
	if len(inputs) > 0 {
		ts.inputDim = len(inputs[0])
	}
	return ts, nil
}

// Len implements Dataset.
func (t *TrainingSet) Len() int { return len(t.inputs) }

// InputDim returns the feature length.
func (t *TrainingSet) InputDim() int { return t.inputDim }

// Batch implements Dataset.
func (t *TrainingSet) Batch(indices []int) ([][]float32, [][]float32, error) {
	in := make([][]float32, len(indices))
	la := make([][]float32, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(t.inputs) {
			return nil, nil, fmt.Errorf("index %d out of range [0,%d)", idx, len(t.inputs))
		}
		in[i] = t.inputs[idx]
		la[i] = t.labels[idx]
	}
	return in, la, nil
}

// Tensors returns the selected examples as gomlx tensors shaped
// [batch, inputDim] and [batch, timesteps, 2].
func (t *TrainingSet) Tensors(indices []int) (*tensors.Tensor, *tensors.Tensor, error) {
	in, la, err := t.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	flat, err := datasets.MakeBatchFlat(in, la)
	if err != nil {
		return nil, nil, err
	}
	return flat.ToGomlxTensors()
}
