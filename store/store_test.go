package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/sceneforecast/datasets/datasetstest"
	"github.com/Noofbiz/sceneforecast/prediction"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "forecast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportAnnotations(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	anns := datasetstest.Scene()
	n, err := s.ImportAnnotations(ctx, anns)
	require.NoError(t, err)
	assert.Equal(t, len(anns), n)

	// importing again upserts instead of duplicating
	anns[0].X = 99
	_, err = s.ImportAnnotations(ctx, anns[:1])
	require.NoError(t, err)

	got, err := s.Annotations(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(anns))
	// ordered by instance then time: car comes first
	assert.Equal(t, "car", got[0].Instance)
	assert.Equal(t, 99.0, got[0].X)
	assert.Equal(t, "vehicle.car", got[0].Category)
}

func TestPredictionRuns(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	id, err := s.CreateRun(ctx, "cvh", "baseline")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p1, err := prediction.New("car", "s1", []prediction.Trajectory{{{1, 2}, {3, 4}}}, []float64{1})
	require.NoError(t, err)
	p2, err := prediction.New("ped", "s1", []prediction.Trajectory{{{0, 0}, {0, 1}}, {{0, 0}, {1, 0}}}, []float64{0.25, 0.75})
	require.NoError(t, err)
	require.NoError(t, s.SavePredictions(ctx, id, []*prediction.Prediction{p1, p2}))

	got, err := s.LoadPredictions(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(p1))
	assert.True(t, got[1].Equal(p2))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "cvh", runs[0].Model)
	assert.Equal(t, 2, runs[0].Count)
	assert.False(t, runs[0].CreatedAt.IsZero())
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.LoadPredictions(ctx, "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	err = s.SavePredictions(ctx, "nope", nil)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
