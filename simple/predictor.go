package simple

import (
	"context"
	"fmt"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/prediction"
)

// Predictor serves a trained Model for "instance_sample" tokens. Model
// outputs are in the agent frame and are converted to the global frame.
type Predictor struct {
	Model      *Model
	Featurizer *Featurizer
	TopK       int
}

// NewPredictor returns a Predictor producing at most topK modes.
func NewPredictor(m *Model, f *Featurizer, topK int) (*Predictor, error) {
	if f.Dim() != m.InputDim() {
		return nil, fmt.Errorf("featurizer produces %d features, model expects %d", f.Dim(), m.InputDim())
	}
	return &Predictor{Model: m, Featurizer: f, TopK: topK}, nil
}

// Predict implements physics.Predictor.
func (p *Predictor) Predict(ctx context.Context, token string) (*prediction.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, samp, err := datasets.SplitToken(token)
	if err != nil {
		return nil, err
	}
	ann, err := p.Featurizer.Helper.GetSampleAnnotation(inst, samp)
	if err != nil {
		return nil, err
	}
	feat, err := p.Featurizer.Features(inst, samp)
	if err != nil {
		return nil, err
	}
	local, probs, err := p.Model.PredictModes(feat, p.TopK)
	if err != nil {
		return nil, err
	}
	global := make([]prediction.Trajectory, len(local))
	for i, tr := range local {
		global[i] = datasets.ConvertLocalCoordsToGlobal(tr, ann.Translation(), ann.Yaw)
	}
	return prediction.New(inst, samp, global, probs)
}
