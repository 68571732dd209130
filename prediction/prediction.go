// Package prediction defines the record submitted for each (instance, sample)
// pair: a set of candidate future trajectories for one agent and a
// probability for each of them.
//
// A Prediction can only be obtained through New, Deserialize or JSON
// decoding, and all three validate the record before returning it.
package prediction

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MaxModes is the largest number of candidate trajectories a single
// Prediction may carry.
const MaxModes = 25

// Point is an (x, y) coordinate in meters.
type Point [2]float64

// Trajectory is a time-ordered sequence of points.
type Trajectory []Point

// Prediction holds the candidate trajectories (modes) for one agent at one
// sample.
type Prediction struct {
	Instance      string
	Sample        string
	Trajectories  []Trajectory
	Probabilities []float64
}

// New validates and builds a Prediction. The trajectories and probabilities are
// copied so later changes to the caller's slices do not leak into the record.
func New(instance, sample string, trajectories []Trajectory, probabilities []float64) (*Prediction, error) {
	if trajectories == nil {
		return nil, ErrPredictionNotArray
	}
	if probabilities == nil {
		return nil, ErrProbabilitiesNotArray
	}
	if err := validate(trajectories, probabilities); err != nil {
		return nil, err
	}

	p := &Prediction{
		Instance:      instance,
		Sample:        sample,
		Trajectories:  make([]Trajectory, len(trajectories)),
		Probabilities: append([]float64{}, probabilities...),
	}
	for i, tr := range trajectories {
		p.Trajectories[i] = append(Trajectory{}, tr...)
	}
	return p, nil
}

func validate(trajectories []Trajectory, probabilities []float64) error {
	if len(trajectories) > MaxModes {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyModes, len(trajectories), MaxModes)
	}
	if len(trajectories) != len(probabilities) {
		return fmt.Errorf("%w: %d modes, %d probabilities", ErrModeCountMismatch, len(trajectories), len(probabilities))
	}
	for i := 1; i < len(trajectories); i++ {
		if len(trajectories[i]) != len(trajectories[0]) {
			return fmt.Errorf("%w: mode %d has %d timesteps, mode 0 has %d",
				ErrTrajectoryShape, i, len(trajectories[i]), len(trajectories[0]))
		}
	}
	for i, pr := range probabilities {
		if !finite(pr) {
			return fmt.Errorf("%w: probability %d is %v", ErrNonFinite, i, pr)
		}
	}
	for i, tr := range trajectories {
		for j, pt := range tr {
			if !finite(pt[0]) || !finite(pt[1]) {
				return fmt.Errorf("%w: mode %d point %d is %v", ErrNonFinite, i, j, pt)
			}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks the record again. It matters for records built as struct
// literals, which skip the checks done by New and Deserialize.
func (p *Prediction) Validate() error {
	if p.Trajectories == nil {
		return ErrPredictionNotArray
	}
	if p.Probabilities == nil {
		return ErrProbabilitiesNotArray
	}
	return validate(p.Trajectories, p.Probabilities)
}

// NumberOfModes returns how many candidate trajectories the record holds.
func (p *Prediction) NumberOfModes() int {
	return len(p.Trajectories)
}

// Timesteps returns the length of each trajectory (0 when there are no modes).
func (p *Prediction) Timesteps() int {
	if len(p.Trajectories) == 0 {
		return 0
	}
	return len(p.Trajectories[0])
}

// Token returns the "instance_sample" key used by prediction splits.
func (p *Prediction) Token() string {
	return p.Instance + "_" + p.Sample
}

// Equal reports whether two records hold the same tokens, trajectories and
// probabilities.
func (p *Prediction) Equal(o *Prediction) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Instance != o.Instance || p.Sample != o.Sample {
		return false
	}
	if len(p.Trajectories) != len(o.Trajectories) || len(p.Probabilities) != len(o.Probabilities) {
		return false
	}
	for i := range p.Probabilities {
		if p.Probabilities[i] != o.Probabilities[i] {
			return false
		}
	}
	for i := range p.Trajectories {
		if len(p.Trajectories[i]) != len(o.Trajectories[i]) {
			return false
		}
		for j := range p.Trajectories[i] {
			a, b := p.Trajectories[i][j], o.Trajectories[i][j]
			if a != b {
				return false
			}
		}
	}
	return true
}

func (p *Prediction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prediction(instance=%s, sample=%s, modes=%d, timesteps=%d, probabilities=%v)",
		p.Instance, p.Sample, p.NumberOfModes(), p.Timesteps(), p.Probabilities)
	return b.String()
}

// Serialize returns the record as plain values, in the layout used by the
// submission file.
func (p *Prediction) Serialize() map[string]any {
	traj := make([]any, len(p.Trajectories))
	for i, tr := range p.Trajectories {
		pts := make([]any, len(tr))
		for j, pt := range tr {
			pts[j] = []any{pt[0], pt[1]}
		}
		traj[i] = pts
	}
	probs := make([]any, len(p.Probabilities))
	for i, v := range p.Probabilities {
		probs[i] = v
	}
	return map[string]any{
		"instance":      p.Instance,
		"sample":        p.Sample,
		"prediction":    traj,
		"probabilities": probs,
	}
}

// wireFormat is the JSON layout of a record. [2]float64 encodes as a
// two-element array, which keeps the (modes, timesteps, 2) nesting.
type wireFormat struct {
	Instance      string       `json:"instance"`
	Sample        string       `json:"sample"`
	Prediction    []Trajectory `json:"prediction"`
	Probabilities []float64    `json:"probabilities"`
}

// MarshalJSON implements json.Marshaler.
func (p *Prediction) MarshalJSON() ([]byte, error) {
	w := wireFormat{
		Instance:      p.Instance,
		Sample:        p.Sample,
		Prediction:    p.Trajectories,
		Probabilities: p.Probabilities,
	}
	if w.Prediction == nil {
		w.Prediction = []Trajectory{}
	}
	if w.Probabilities == nil {
		w.Probabilities = []float64{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Fields are type checked before
// the record is validated, so a numeric instance token or an object where an
// array belongs is reported with the matching sentinel error.
func (p *Prediction) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode prediction: %w", err)
	}

	instance, err := rawString(raw, "instance", ErrInstanceNotString)
	if err != nil {
		return err
	}
	sample, err := rawString(raw, "sample", ErrSampleNotString)
	if err != nil {
		return err
	}

	if !rawIsArray(raw["prediction"]) {
		return ErrPredictionNotArray
	}
	if !rawIsArray(raw["probabilities"]) {
		return ErrProbabilitiesNotArray
	}

	var nested [][][]float64
	if err := json.Unmarshal(raw["prediction"], &nested); err != nil {
		return fmt.Errorf("%w: %v", ErrTrajectoryShape, err)
	}
	trajectories, err := fromNested(nested)
	if err != nil {
		return err
	}
	var probabilities []float64
	if err := json.Unmarshal(raw["probabilities"], &probabilities); err != nil {
		return fmt.Errorf("%w: %v", ErrProbabilitiesNotArray, err)
	}
	if trajectories == nil {
		trajectories = []Trajectory{}
	}
	if probabilities == nil {
		probabilities = []float64{}
	}

	v, err := New(instance, sample, trajectories, probabilities)
	if err != nil {
		return err
	}
	*p = *v
	return nil
}

func rawString(raw map[string]json.RawMessage, key string, kind error) (string, error) {
	msg, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", kind, key)
	}
	var s string
	if !strings.HasPrefix(strings.TrimSpace(string(msg)), `"`) {
		return "", fmt.Errorf("%w: %s", kind, strings.TrimSpace(string(msg)))
	}
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", fmt.Errorf("%w: %s", kind, strings.TrimSpace(string(msg)))
	}
	return s, nil
}

func rawIsArray(msg json.RawMessage) bool {
	s := strings.TrimSpace(string(msg))
	return strings.HasPrefix(s, "[")
}
