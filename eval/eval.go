// Package eval scores predictions against ground truth futures.
package eval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/prediction"
)

// DefaultMissTolerance is the distance in meters beyond which a mode misses.
const DefaultMissTolerance = 2.0

// ErrNoGroundTruth is returned when a prediction has no ground truth future.
var ErrNoGroundTruth = errors.New("no ground truth")

// topK returns the indices of the k most likely modes.
func topK(p *prediction.Prediction, k int) []int {
	idx := make([]int, p.NumberOfModes())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p.Probabilities[idx[a]] > p.Probabilities[idx[b]] })
	if k > 0 && k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

// displacements returns the L2 error at each point both trajectories share.
func displacements(tr prediction.Trajectory, gt []prediction.Point) []float64 {
	n := min(len(tr), len(gt))
	out := make([]float64, n)
	for i := range n {
		out[i] = floats.Distance(tr[i][:], gt[i][:], 2)
	}
	return out
}

func check(p *prediction.Prediction, gt []prediction.Point) error {
	if len(gt) == 0 {
		return fmt.Errorf("%w for %s", ErrNoGroundTruth, p.Token())
	}
	if p.NumberOfModes() == 0 {
		return fmt.Errorf("prediction %s has no modes", p.Token())
	}
	return nil
}

// MinADEK is the smallest average displacement error among the k most
// likely modes.
func MinADEK(p *prediction.Prediction, gt []prediction.Point, k int) (float64, error) {
	if err := check(p, gt); err != nil {
		return 0, err
	}
	best := math.Inf(1)
	for _, m := range topK(p, k) {
		if d := displacements(p.Trajectories[m], gt); len(d) > 0 {
			best = math.Min(best, stat.Mean(d, nil))
		}
	}
	return best, nil
}

// MinFDEK is the smallest displacement at the last shared point among the k
// most likely modes.
func MinFDEK(p *prediction.Prediction, gt []prediction.Point, k int) (float64, error) {
	if err := check(p, gt); err != nil {
		return 0, err
	}
	best := math.Inf(1)
	for _, m := range topK(p, k) {
		if d := displacements(p.Trajectories[m], gt); len(d) > 0 {
			best = math.Min(best, d[len(d)-1])
		}
	}
	return best, nil
}

// MissRateTopK is 1 when every one of the k most likely modes strays more
// than tolerance meters from the ground truth at some point, else 0.
func MissRateTopK(p *prediction.Prediction, gt []prediction.Point, k int, tolerance float64) (float64, error) {
	if err := check(p, gt); err != nil {
		return 0, err
	}
	for _, m := range topK(p, k) {
		d := displacements(p.Trajectories[m], gt)
		if len(d) > 0 && floats.Max(d) <= tolerance {
			return 0, nil
		}
	}
	return 1, nil
}

// Summary holds metric means keyed by k.
type Summary struct {
	Count    int
	Skipped  int
	MinADE   map[int]float64
	MinFDE   map[int]float64
	MissRate map[int]float64
}

// Evaluate averages the metrics over preds for every k. Predictions without
// ground truth are counted in Skipped.
func Evaluate(preds []*prediction.Prediction, gt map[string][]prediction.Point, ks []int, tolerance float64) (Summary, error) {
	s := Summary{
		MinADE:   make(map[int]float64, len(ks)),
		MinFDE:   make(map[int]float64, len(ks)),
		MissRate: make(map[int]float64, len(ks)),
	}
	ade := make(map[int][]float64, len(ks))
	fde := make(map[int][]float64, len(ks))
	miss := make(map[int][]float64, len(ks))
	for _, p := range preds {
		truth, ok := gt[p.Token()]
		if !ok || len(truth) == 0 {
			s.Skipped++
			continue
		}
		s.Count++
		for _, k := range ks {
			a, err := MinADEK(p, truth, k)
			if err != nil {
				return Summary{}, err
			}
			f, err := MinFDEK(p, truth, k)
			if err != nil {
				return Summary{}, err
			}
			mr, err := MissRateTopK(p, truth, k, tolerance)
			if err != nil {
				return Summary{}, err
			}
			ade[k] = append(ade[k], a)
			fde[k] = append(fde[k], f)
			miss[k] = append(miss[k], mr)
		}
	}
	if s.Count == 0 {
		return s, ErrNoGroundTruth
	}
	for _, k := range ks {
		s.MinADE[k] = stat.Mean(ade[k], nil)
		s.MinFDE[k] = stat.Mean(fde[k], nil)
		s.MissRate[k] = stat.Mean(miss[k], nil)
	}
	return s, nil
}

// GroundTruth collects the global frame futures of the given tokens.
func GroundTruth(h *datasets.Helper, tokens []string, seconds float64) (map[string][]prediction.Point, error) {
	out := make(map[string][]prediction.Point, len(tokens))
	for _, tok := range tokens {
		inst, samp, err := datasets.SplitToken(tok)
		if err != nil {
			return nil, err
		}
		future, err := h.GetFutureForAgent(inst, samp, seconds, false)
		if err != nil {
			return nil, err
		}
		out[tok] = future
	}
	return out, nil
}
