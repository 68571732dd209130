package physics

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/prediction"
)

const (
	// DefaultSecFromNow is the prediction horizon in seconds.
	DefaultSecFromNow = 6.0
	// DefaultSampledAt is the output rate in Hz.
	DefaultSampledAt = 2.0
)

// Predictor produces a prediction for an "instance_sample" token.
type Predictor interface {
	Predict(ctx context.Context, token string) (*prediction.Prediction, error)
}

// ConstantVelocityHeadingPredictor extrapolates the current velocity along
// the current heading.
type ConstantVelocityHeadingPredictor struct {
	Helper     *datasets.Helper
	SecFromNow float64
	SampledAt  float64
}

// NewConstantVelocityHeading returns a predictor with the default horizon.
func NewConstantVelocityHeading(h *datasets.Helper) *ConstantVelocityHeadingPredictor {
	return &ConstantVelocityHeadingPredictor{Helper: h, SecFromNow: DefaultSecFromNow, SampledAt: DefaultSampledAt}
}

// Predict implements Predictor.
func (p *ConstantVelocityHeadingPredictor) Predict(ctx context.Context, token string) (*prediction.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, samp, err := datasets.SplitToken(token)
	if err != nil {
		return nil, err
	}
	k, err := KinematicsFromTokens(p.Helper, inst, samp)
	if err != nil {
		return nil, err
	}
	path := ConstantVelocityHeading(k, p.SecFromNow, p.SampledAt)
	return prediction.New(inst, samp, []prediction.Trajectory{path}, []float64{1})
}

// PhysicsOracle runs every path function and keeps the one closest to the
// ground truth future. It is an upper bound for the physics baselines, not a
// usable predictor, since it looks at the future.
type PhysicsOracle struct {
	Helper     *datasets.Helper
	SecFromNow float64
	SampledAt  float64
	Paths      []PathFunc
	Logger     *zap.Logger
}

// NewPhysicsOracle returns an oracle over the four physics models.
func NewPhysicsOracle(h *datasets.Helper, logger *zap.Logger) *PhysicsOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhysicsOracle{
		Helper:     h,
		SecFromNow: DefaultSecFromNow,
		SampledAt:  DefaultSampledAt,
		Paths: []PathFunc{
			ConstantVelocityHeading,
			ConstantAccelerationHeading,
			ConstantSpeedYawRate,
			ConstantMagnitudeAccelerationYawRate,
		},
		Logger: logger,
	}
}

// Predict implements Predictor.
func (o *PhysicsOracle) Predict(ctx context.Context, token string) (*prediction.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, samp, err := datasets.SplitToken(token)
	if err != nil {
		return nil, err
	}
	k, err := KinematicsFromTokens(o.Helper, inst, samp)
	if err != nil {
		return nil, err
	}
	gt, err := o.Helper.GetFutureForAgent(inst, samp, o.SecFromNow, false)
	if err != nil {
		return nil, err
	}
	if len(o.Paths) == 0 {
		return nil, fmt.Errorf("physics oracle has no path functions")
	}

	var best prediction.Trajectory
	if len(gt) == 0 {
		o.Logger.Debug("no ground truth, falling back to constant velocity", zap.String("token", token))
		best = ConstantVelocityHeading(k, o.SecFromNow, o.SampledAt)
	} else {
		bestDist := math.Inf(1)
		for _, fn := range o.Paths {
			path := fn(k, o.SecFromNow, o.SampledAt)
			if d := AverageDisplacement(path, gt); d < bestDist {
				best, bestDist = path, d
			}
		}
	}
	return prediction.New(inst, samp, []prediction.Trajectory{best}, []float64{1})
}

// AverageDisplacement is the mean L2 distance between path and gt over the
// points both contain. It is +Inf when they share no points.
func AverageDisplacement(path prediction.Trajectory, gt []prediction.Point) float64 {
	n := min(len(path), len(gt))
	if n == 0 {
		return math.Inf(1)
	}
	dists := make([]float64, n)
	for i := range n {
		dists[i] = floats.Distance(path[i][:], gt[i][:], 2)
	}
	return stat.Mean(dists, nil)
}
