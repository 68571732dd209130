package prediction

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Deserialize builds a Prediction from loosely typed content, such as a
// record decoded into map[string]any or assembled by hand. instance and
// sample must be strings; prediction and probabilities must be arrays (a
// []any or any typed Go slice or array) of numbers nested as
// (modes, timesteps, 2) and (modes,) respectively.
func Deserialize(content map[string]any) (*Prediction, error) {
	instance, ok := content["instance"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInstanceNotString, content["instance"])
	}
	sample, ok := content["sample"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrSampleNotString, content["sample"])
	}

	rawPred, ok := asArray(content["prediction"])
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrPredictionNotArray, content["prediction"])
	}
	rawProbs, ok := asArray(content["probabilities"])
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrProbabilitiesNotArray, content["probabilities"])
	}

	trajectories := make([]Trajectory, len(rawPred))
	for m, mode := range rawPred {
		steps, ok := asArray(mode)
		if !ok {
			return nil, fmt.Errorf("%w: mode %d is %T", ErrTrajectoryShape, m, mode)
		}
		tr := make(Trajectory, len(steps))
		for t, step := range steps {
			xy, ok := asArray(step)
			if !ok || len(xy) != 2 {
				return nil, fmt.Errorf("%w: mode %d step %d", ErrTrajectoryShape, m, t)
			}
			x, okX := asFloat(xy[0])
			y, okY := asFloat(xy[1])
			if !okX || !okY {
				return nil, fmt.Errorf("%w: mode %d step %d is not numeric", ErrTrajectoryShape, m, t)
			}
			tr[t] = Point{x, y}
		}
		trajectories[m] = tr
	}

	probabilities := make([]float64, len(rawProbs))
	for i, v := range rawProbs {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrProbabilitiesNotArray, i, v)
		}
		probabilities[i] = f
	}

	return New(instance, sample, trajectories, probabilities)
}

// fromNested converts decoded JSON numbers into trajectories, insisting on two
// coordinates per point.
func fromNested(nested [][][]float64) ([]Trajectory, error) {
	out := make([]Trajectory, len(nested))
	for m, mode := range nested {
		tr := make(Trajectory, len(mode))
		for t, xy := range mode {
			if len(xy) != 2 {
				return nil, fmt.Errorf("%w: mode %d step %d has %d coordinates", ErrTrajectoryShape, m, t, len(xy))
			}
			tr[t] = Point{xy[0], xy[1]}
		}
		out[m] = tr
	}
	return out, nil
}

// asArray unpacks slices and arrays of any element type. Strings and maps are
// not arrays.
func asArray(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if a, ok := v.([]any); ok {
		return a, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asFloat accepts every Go numeric kind, named types included, and
// json.Number as produced by a decoder with UseNumber.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	}
	return 0, false
}
