package physics

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/datasets/datasetstest"
	"github.com/Noofbiz/sceneforecast/prediction"
)

func tok(inst string, i int) string {
	return datasets.JoinToken(inst, datasetstest.SampleToken("sc", i))
}

func TestKinematicsFromTokens(t *testing.T) {
	h := datasetstest.Helper(t)

	k, err := KinematicsFromTokens(h, "car", datasetstest.SampleToken("sc", 5))
	require.NoError(t, err)
	assert.InDelta(t, 12.5, k.X, 1e-9)
	assert.InDelta(t, 5, k.VX, 1e-9)
	assert.InDelta(t, 0, k.VY, 1e-9)
	assert.InDelta(t, 0, k.Acceleration, 1e-9)

	// the first sample of a track has no previous annotation: NaN becomes 0
	k, err = KinematicsFromTokens(h, "car", datasetstest.SampleToken("sc", 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, k.Speed)
	assert.Equal(t, 0.0, k.YawRate)
	assert.False(t, math.IsNaN(k.Acceleration))
}

func TestPathFunctions(t *testing.T) {
	k := Kinematics{Speed: 2, VX: 2, Acceleration: 1, AX: 1, YawRate: 0}

	cv := ConstantVelocityHeading(k, 6, 2)
	require.Len(t, cv, 12)
	assert.InDelta(t, 1, cv[0][0], 1e-12)
	assert.InDelta(t, 12, cv[11][0], 1e-12)

	ca := ConstantAccelerationHeading(k, 6, 2)
	require.Len(t, ca, 12)
	assert.InDelta(t, 2*6+0.5*36, ca[11][0], 1e-12)

	// zero yaw rate makes the yaw rate models straight lines
	cs := ConstantSpeedYawRate(k, 6, 2)
	for i := range cs {
		assert.InDelta(t, cv[i][0], cs[i][0], 1e-12)
		assert.InDelta(t, 0, cs[i][1], 1e-12)
	}

	cm := ConstantMagnitudeAccelerationYawRate(k, 6, 2)
	require.Len(t, cm, 12)
	// speed grows by 0.5 m/s each half second step
	assert.InDelta(t, 1, cm[0][0], 1e-12)
	assert.InDelta(t, 1+1.25, cm[1][0], 1e-12)

	// a turning agent curves left
	turn := ConstantSpeedYawRate(Kinematics{Speed: 4, YawRate: 0.5}, 3, 2)
	require.Len(t, turn, 6)
	assert.Greater(t, turn[5][1], 0.0)

	assert.Empty(t, ConstantVelocityHeading(k, 0, 2))
	assert.Len(t, ConstantVelocityHeading(k, 3, 2), 6)
}

func TestConstantVelocityHeadingPredictor(t *testing.T) {
	h := datasetstest.Helper(t)
	p := NewConstantVelocityHeading(h)

	pred, err := p.Predict(context.Background(), tok("car", 5))
	require.NoError(t, err)
	require.Equal(t, 1, pred.NumberOfModes())
	assert.Equal(t, []float64{1}, pred.Probabilities)
	require.Equal(t, 12, pred.Timesteps())
	assert.InDelta(t, 15, pred.Trajectories[0][0][0], 1e-9)
	assert.InDelta(t, 42.5, pred.Trajectories[0][11][0], 1e-9)

	_, err = p.Predict(context.Background(), "broken")
	assert.Error(t, err)
	_, err = p.Predict(context.Background(), tok("ghost", 5))
	assert.True(t, errors.Is(err, datasets.ErrNotFound))
}

func TestPhysicsOracle(t *testing.T) {
	h := datasetstest.Helper(t)
	o := NewPhysicsOracle(h, nil)

	// the truck is generated with a constant speed and yaw rate, so that model
	// reproduces the ground truth exactly
	pred, err := o.Predict(context.Background(), tok("truck", 5))
	require.NoError(t, err)
	k, err := KinematicsFromTokens(h, "truck", datasetstest.SampleToken("sc", 5))
	require.NoError(t, err)
	want := ConstantSpeedYawRate(k, 6, 2)
	gt, err := h.GetFutureForAgent("truck", datasetstest.SampleToken("sc", 5), 6, false)
	require.NoError(t, err)
	assert.InDelta(t, 0, AverageDisplacement(pred.Trajectories[0], gt), 1e-9)
	for i := range want {
		assert.InDelta(t, want[i][0], pred.Trajectories[0][i][0], 1e-9)
		assert.InDelta(t, want[i][1], pred.Trajectories[0][i][1], 1e-9)
	}

	// no future: falls back to constant velocity
	pred, err = o.Predict(context.Background(), tok("car", 19))
	require.NoError(t, err)
	assert.Equal(t, 12, pred.Timesteps())
	assert.Equal(t, []float64{1}, pred.Probabilities)
}

func TestAverageDisplacement(t *testing.T) {
	a := prediction.Trajectory{{0, 0}, {3, 4}, {100, 100}}
	b := []prediction.Point{{0, 0}, {0, 0}}
	assert.InDelta(t, 2.5, AverageDisplacement(a, b), 1e-12)
	assert.True(t, math.IsInf(AverageDisplacement(a, nil), 1))
}

type fakePredictor struct {
	calls atomic.Int32
	fail  string
}

func (f *fakePredictor) Predict(ctx context.Context, token string) (*prediction.Prediction, error) {
	f.calls.Add(1)
	if token == f.fail {
		return nil, errors.New("boom")
	}
	inst, samp, err := datasets.SplitToken(token)
	if err != nil {
		return nil, err
	}
	return prediction.New(inst, samp, []prediction.Trajectory{{{0, 0}}}, []float64{1})
}

type countingObserver struct{ n atomic.Int32 }

func (c *countingObserver) ObservePrediction(string, time.Duration) { c.n.Add(1) }

func TestRunnerPreservesOrder(t *testing.T) {
	tokens := []string{"a_1", "b_2", "c_3", "d_4", "e_5"}
	obs := &countingObserver{}
	r := &Runner{Model: "fake", Predictor: &fakePredictor{}, Workers: 3, Observer: obs}

	preds, err := r.Run(context.Background(), tokens)
	require.NoError(t, err)
	require.Len(t, preds, len(tokens))
	for i, p := range preds {
		assert.Equal(t, tokens[i], p.Token())
	}
	assert.Equal(t, int32(len(tokens)), obs.n.Load())
}

func TestRunnerError(t *testing.T) {
	r := &Runner{Predictor: &fakePredictor{fail: "c_3"}, Workers: 1}
	_, err := r.Run(context.Background(), []string{"a_1", "c_3", "d_4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c_3")
}
