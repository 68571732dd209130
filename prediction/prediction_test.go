package prediction

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straight(n int, dx float64) Trajectory {
	tr := make(Trajectory, n)
	for i := range tr {
		tr[i] = Point{float64(i+1) * dx, 0}
	}
	return tr
}

func modes(m, steps int) ([]Trajectory, []float64) {
	trs := make([]Trajectory, m)
	probs := make([]float64, m)
	for i := range trs {
		trs[i] = straight(steps, float64(i+1))
		probs[i] = 1 / float64(m)
	}
	return trs, probs
}

func TestNewValid(t *testing.T) {
	trs, probs := modes(3, 12)
	p, err := New("inst", "samp", trs, probs)
	require.NoError(t, err)
	assert.Equal(t, "inst", p.Instance)
	assert.Equal(t, "samp", p.Sample)
	assert.Equal(t, 3, p.NumberOfModes())
	assert.Equal(t, 12, p.Timesteps())
	assert.Equal(t, "inst_samp", p.Token())

	// the record must not alias the caller's slices
	trs[0][0] = Point{99, 99}
	probs[0] = 42
	assert.Equal(t, Point{1, 0}, p.Trajectories[0][0])
	assert.InDelta(t, 1.0/3, p.Probabilities[0], 1e-12)
}

func TestNewMaxModes(t *testing.T) {
	trs, probs := modes(MaxModes, 4)
	_, err := New("i", "s", trs, probs)
	require.NoError(t, err)

	trs, probs = modes(MaxModes+1, 4)
	_, err = New("i", "s", trs, probs)
	require.ErrorIs(t, err, ErrTooManyModes)
}

func TestNewModeCountMismatch(t *testing.T) {
	trs, _ := modes(3, 4)
	_, err := New("i", "s", trs, []float64{0.5, 0.5})
	require.ErrorIs(t, err, ErrModeCountMismatch)
}

func TestNewRagged(t *testing.T) {
	trs := []Trajectory{straight(4, 1), straight(3, 1)}
	_, err := New("i", "s", trs, []float64{0.5, 0.5})
	require.ErrorIs(t, err, ErrTrajectoryShape)
}

func TestNewNilArrays(t *testing.T) {
	_, err := New("i", "s", nil, []float64{})
	require.ErrorIs(t, err, ErrPredictionNotArray)
	_, err = New("i", "s", []Trajectory{}, nil)
	require.ErrorIs(t, err, ErrProbabilitiesNotArray)
}

func TestNewRejectsNonFinite(t *testing.T) {
	trs, probs := modes(2, 3)
	probs[1] = math.NaN()
	_, err := New("i", "s", trs, probs)
	require.ErrorIs(t, err, ErrNonFinite)

	trs, probs = modes(2, 3)
	probs[0] = math.Inf(1)
	_, err = New("i", "s", trs, probs)
	require.ErrorIs(t, err, ErrNonFinite)

	trs, probs = modes(2, 3)
	trs[1][2] = Point{0, math.Inf(-1)}
	_, err = New("i", "s", trs, probs)
	require.ErrorIs(t, err, ErrNonFinite)
}

func TestValidateStructLiteral(t *testing.T) {
	p := &Prediction{
		Instance:      "i",
		Sample:        "s",
		Trajectories:  []Trajectory{{{1, 2}}},
		Probabilities: []float64{math.NaN()},
	}
	require.ErrorIs(t, p.Validate(), ErrNonFinite)
	_, err := json.Marshal(p)
	assert.Error(t, err)

	p.Probabilities[0] = 1
	require.NoError(t, p.Validate())
	p.Probabilities = nil
	require.ErrorIs(t, p.Validate(), ErrProbabilitiesNotArray)
}

func TestDeserializeTypeChecks(t *testing.T) {
	good := func() map[string]any {
		return map[string]any{
			"instance":      "i",
			"sample":        "s",
			"prediction":    []any{[]any{[]any{1.0, 2.0}, []any{3.0, 4.0}}},
			"probabilities": []any{1.0},
		}
	}

	cases := []struct {
		name  string
		mod   func(map[string]any)
		want  error
		valid bool
	}{
		{name: "valid", mod: func(map[string]any) {}, valid: true},
		{name: "instance not string", mod: func(c map[string]any) { c["instance"] = 5 }, want: ErrInstanceNotString},
		{name: "sample not string", mod: func(c map[string]any) { c["sample"] = []string{"s"} }, want: ErrSampleNotString},
		{name: "prediction not array", mod: func(c map[string]any) { c["prediction"] = "oops" }, want: ErrPredictionNotArray},
		{name: "prediction map", mod: func(c map[string]any) { c["prediction"] = map[string]any{} }, want: ErrPredictionNotArray},
		{name: "probabilities not array", mod: func(c map[string]any) { c["probabilities"] = 1.0 }, want: ErrProbabilitiesNotArray},
		{name: "probabilities missing", mod: func(c map[string]any) { delete(c, "probabilities") }, want: ErrProbabilitiesNotArray},
		{name: "three coords", mod: func(c map[string]any) {
			c["prediction"] = []any{[]any{[]any{1.0, 2.0, 3.0}}}
		}, want: ErrTrajectoryShape},
		{name: "count mismatch", mod: func(c map[string]any) { c["probabilities"] = []any{0.5, 0.5} }, want: ErrModeCountMismatch},
		{name: "typed slices", mod: func(c map[string]any) {
			c["prediction"] = [][][2]float64{{{1, 2}, {3, 4}}}
			c["probabilities"] = []float32{1}
		}, valid: true},
		{name: "small integer kinds", mod: func(c map[string]any) {
			c["prediction"] = [][][2]int16{{{1, 2}, {3, 4}}}
			c["probabilities"] = []uint8{1}
		}, valid: true},
		{name: "json numbers", mod: func(c map[string]any) {
			c["prediction"] = []any{[]any{[]any{json.Number("1"), json.Number("2")}, []any{json.Number("3"), json.Number("4e0")}}}
			c["probabilities"] = []any{json.Number("1")}
		}, valid: true},
		{name: "bad json number", mod: func(c map[string]any) { c["probabilities"] = []any{json.Number("x")} }, want: ErrProbabilitiesNotArray},
		{name: "nan probability", mod: func(c map[string]any) { c["probabilities"] = []any{math.NaN()} }, want: ErrNonFinite},
		{name: "infinite probability", mod: func(c map[string]any) { c["probabilities"] = []any{math.Inf(1)} }, want: ErrNonFinite},
		{name: "infinite coordinate", mod: func(c map[string]any) {
			c["prediction"] = []any{[]any{[]any{1.0, math.Inf(-1)}, []any{3.0, 4.0}}}
		}, want: ErrNonFinite},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := good()
			tc.mod(c)
			p, err := Deserialize(c)
			if tc.valid {
				require.NoError(t, err)
				assert.Equal(t, Trajectory{{1, 2}, {3, 4}}, p.Trajectories[0])
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeserializeTooManyModes(t *testing.T) {
	pred := make([]any, MaxModes+1)
	probs := make([]any, MaxModes+1)
	for i := range pred {
		pred[i] = []any{[]any{0.0, 0.0}}
		probs[i] = 0.0
	}
	_, err := Deserialize(map[string]any{"instance": "i", "sample": "s", "prediction": pred, "probabilities": probs})
	require.ErrorIs(t, err, ErrTooManyModes)
}

func TestSerializeRoundTrip(t *testing.T) {
	trs, probs := modes(5, 12)
	p, err := New("a1b2", "c3d4", trs, probs)
	require.NoError(t, err)

	back, err := Deserialize(p.Serialize())
	require.NoError(t, err)
	if diff := cmp.Diff(p, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.Equal(back))
}

func TestJSONRoundTrip(t *testing.T) {
	trs, probs := modes(2, 6)
	p, err := New("inst", "samp", trs, probs)
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back Prediction
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(*p, back); diff != "" {
		t.Fatalf("json round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalJSONTypeChecks(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want error
	}{
		"numeric instance":      {`{"instance":1,"sample":"s","prediction":[],"probabilities":[]}`, ErrInstanceNotString},
		"null sample":           {`{"instance":"i","sample":null,"prediction":[],"probabilities":[]}`, ErrSampleNotString},
		"object prediction":     {`{"instance":"i","sample":"s","prediction":{},"probabilities":[]}`, ErrPredictionNotArray},
		"scalar probabilities":  {`{"instance":"i","sample":"s","prediction":[],"probabilities":0.3}`, ErrProbabilitiesNotArray},
		"string probabilities":  {`{"instance":"i","sample":"s","prediction":[],"probabilities":"[1]"}`, ErrProbabilitiesNotArray},
		"mismatch":              {`{"instance":"i","sample":"s","prediction":[[[0,0]]],"probabilities":[0.5,0.5]}`, ErrModeCountMismatch},
		"single coordinate":     {`{"instance":"i","sample":"s","prediction":[[[0]]],"probabilities":[1]}`, ErrTrajectoryShape},
		"missing instance":      {`{"sample":"s","prediction":[],"probabilities":[]}`, ErrInstanceNotString},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var p Prediction
			err := json.Unmarshal([]byte(tc.doc), &p)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEqual(t *testing.T) {
	trs, probs := modes(2, 3)
	a, _ := New("i", "s", trs, probs)
	b, _ := New("i", "s", trs, probs)
	assert.True(t, a.Equal(b))

	b.Probabilities[1] = 0.9
	assert.False(t, a.Equal(b))

	c, _ := New("i", "other", trs, probs)
	assert.False(t, a.Equal(c))

	var nilPred *Prediction
	assert.False(t, a.Equal(nilPred))
	assert.Contains(t, a.String(), "modes=2")
}
