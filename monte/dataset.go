package monte

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/prediction"
	"github.com/Noofbiz/sceneforecast/simple"
)

// historyPoints is the number of past positions included in Features.
const historyPoints = 2

// Features is the agent state followed by the last historyPoints positions
// in the agent frame, zero padded when the track is shorter.
func Features(h *datasets.Helper, instance, sample string) ([]float32, error) {
	state, err := simple.AgentState(h, instance, sample)
	if err != nil {
		return nil, err
	}
	past, err := h.GetPastForAgent(instance, sample, historyPoints/h.SampleFrequency(), true)
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, len(state)+2*historyPoints)
	out = append(out, state...)
	for i := 0; i < historyPoints; i++ {
		if i < len(past) {
			out = append(out, float32(past[i][0]), float32(past[i][1]))
		} else {
			out = append(out, 0, 0)
		}
	}
	return out, nil
}

// HelperDataset precomputes features and agent frame futures for a list of
// "instance_sample" tokens.
type HelperDataset struct {
	tokens   []string
	features [][]float32
	futures  []prediction.Trajectory
}

// NewHelperDataset keeps the tokens whose future covers timesteps points.
func NewHelperDataset(h *datasets.Helper, tokens []string, timesteps int, features FeatureFunc, logger *zap.Logger) (*HelperDataset, error) {
	if features == nil {
		features = Features
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seconds := float64(timesteps) / h.SampleFrequency()
	ds := &HelperDataset{}
	for _, tok := range tokens {
		inst, samp, err := datasets.SplitToken(tok)
		if err != nil {
			return nil, err
		}
		future, err := h.GetFutureForAgent(inst, samp, seconds, true)
		if err != nil {
			return nil, err
		}
		if len(future) < timesteps {
			continue
		}
		feat, err := features(h, inst, samp)
		if err != nil {
			return nil, fmt.Errorf("features for %s: %w", tok, err)
		}
		ds.tokens = append(ds.tokens, tok)
		ds.features = append(ds.features, feat)
		ds.futures = append(ds.futures, prediction.Trajectory(future[:timesteps]))
	}
	logger.Info("monte dataset built",
		zap.Int("tokens", len(tokens)),
		zap.Int("examples", len(ds.tokens)))
	return ds, nil
}

// Len implements Dataset.
func (d *HelperDataset) Len() int { return len(d.tokens) }

// Example implements Dataset.
func (d *HelperDataset) Example(idx int) ([]float32, prediction.Trajectory, error) {
	if idx < 0 || idx >= len(d.tokens) {
		return nil, nil, fmt.Errorf("index %d out of range [0,%d)", idx, len(d.tokens))
	}
	return d.features[idx], d.futures[idx], nil
}

// Token returns the token example idx was built from.
func (d *HelperDataset) Token(idx int) string { return d.tokens[idx] }
