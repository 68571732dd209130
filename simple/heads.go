package simple

import (
	"fmt"
	"math"
	"sort"

	"github.com/Noofbiz/sceneforecast/prediction"
)

// Head selects how the output layer is read and trained.
type Head string

const (
	// HeadRegression is a plain MSE regression onto the label.
	HeadRegression Head = "regression"
	// HeadMTP regresses NumModes trajectories and one logit per mode. Only
	// the mode closest to the ground truth receives regression gradient.
	HeadMTP Head = "mtp"
	// HeadTrajectorySet classifies over Config.Lattice.
	HeadTrajectorySet Head = "covernet"
)

// ParseHead maps a name to a Head.
func ParseHead(s string) (Head, error) {
	switch Head(s) {
	case HeadRegression, HeadMTP, HeadTrajectorySet:
		return Head(s), nil
	case "trajectory-set":
		return HeadTrajectorySet, nil
	}
	return "", fmt.Errorf("unknown head %q", s)
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	maxV := math.Inf(-1)
	for _, v := range logits {
		maxV = math.Max(maxV, float64(v))
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// meanDistance is the average L2 distance between two flattened
// trajectories of equal length.
func meanDistance(a, b []float32) float64 {
	n := len(a) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for t := 0; t < n; t++ {
		dx := float64(a[2*t] - b[2*t])
		dy := float64(a[2*t+1] - b[2*t+1])
		sum += math.Hypot(dx, dy)
	}
	return sum / float64(n)
}

func flatten(tr prediction.Trajectory) []float32 {
	out := make([]float32, 2*len(tr))
	for i, p := range tr {
		out[2*i] = float32(p[0])
		out[2*i+1] = float32(p[1])
	}
	return out
}

func unflatten(v []float32) prediction.Trajectory {
	out := make(prediction.Trajectory, len(v)/2)
	for i := range out {
		out[i] = prediction.Point{float64(v[2*i]), float64(v[2*i+1])}
	}
	return out
}

// lossAndGrad returns the head loss for one example and its gradient with
// respect to the output layer.
func (m *Model) lossAndGrad(out, label []float32) (float64, []float32, error) {
	cfg := m.Config
	grad := make([]float32, len(out))
	switch cfg.Head {
	case HeadRegression:
		if len(label) != len(out) {
			return 0, nil, fmt.Errorf("label has %d values, output %d", len(label), len(out))
		}
		var loss float64
		for j := range out {
			d := out[j] - label[j]
			loss += float64(d * d)
			grad[j] = 2 * d
		}
		return loss / float64(len(out)), grad, nil

	case HeadMTP:
		span := 2 * cfg.Timesteps
		if len(label) != span {
			return 0, nil, fmt.Errorf("label has %d values, want %d", len(label), span)
		}
		logits := out[cfg.NumModes*span:]
		best, bestDist := 0, math.Inf(1)
		for k := 0; k < cfg.NumModes; k++ {
			if d := meanDistance(out[k*span:(k+1)*span], label); d < bestDist {
				best, bestDist = k, d
			}
		}
		var loss float64
		mode := out[best*span : (best+1)*span]
		for j := range mode {
			d := mode[j] - label[j]
			loss += float64(d * d)
			grad[best*span+j] = 2 * d
		}
		loss /= float64(span)

		probs := softmax(logits)
		w := cfg.ClassificationWeight
		loss -= w * math.Log(math.Max(probs[best], 1e-12))
		for k, p := range probs {
			target := 0.0
			if k == best {
				target = 1
			}
			grad[cfg.NumModes*span+k] = float32(w * (p - target))
		}
		return loss, grad, nil

	case HeadTrajectorySet:
		target := cfg.Lattice.Closest(unflatten(label))
		probs := softmax(out)
		for k, p := range probs {
			t := 0.0
			if k == target {
				t = 1
			}
			grad[k] = float32(p - t)
		}
		return -math.Log(math.Max(probs[target], 1e-12)), grad, nil
	}
	return 0, nil, fmt.Errorf("unknown head %q", cfg.Head)
}

type scoredMode struct {
	traj prediction.Trajectory
	prob float64
}

// PredictModes runs the model on one feature vector and returns at most topK
// agent frame trajectories, most likely first, with probabilities
// renormalized over the returned modes.
func (m *Model) PredictModes(features []float32, topK int) ([]prediction.Trajectory, []float64, error) {
	if m.Config.Head == HeadRegression {
		return nil, nil, fmt.Errorf("regression head has no modes")
	}
	_, acts, err := m.forwardSingle(features)
	if err != nil {
		return nil, nil, err
	}
	out := acts[len(acts)-1]

	var modes []scoredMode
	switch m.Config.Head {
	case HeadMTP:
		span := 2 * m.Config.Timesteps
		probs := softmax(out[m.Config.NumModes*span:])
		for k, p := range probs {
			modes = append(modes, scoredMode{traj: unflatten(out[k*span : (k+1)*span]), prob: p})
		}
	case HeadTrajectorySet:
		probs := softmax(out)
		for k, p := range probs {
			modes = append(modes, scoredMode{traj: m.Config.Lattice[k], prob: p})
		}
	}

	sort.SliceStable(modes, func(i, j int) bool { return modes[i].prob > modes[j].prob })
	if topK <= 0 || topK > prediction.MaxModes {
		topK = prediction.MaxModes
	}
	if len(modes) > topK {
		modes = modes[:topK]
	}

	var total float64
	for _, md := range modes {
		total += md.prob
	}
	trajs := make([]prediction.Trajectory, len(modes))
	probs := make([]float64, len(modes))
	for i, md := range modes {
		trajs[i] = append(prediction.Trajectory(nil), md.traj...)
		probs[i] = md.prob / total
	}
	return trajs, probs, nil
}
