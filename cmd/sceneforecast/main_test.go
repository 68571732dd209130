package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/config"
	"github.com/Noofbiz/sceneforecast/datasets/datasetstest"
	"github.com/Noofbiz/sceneforecast/metrics"
	"github.com/Noofbiz/sceneforecast/prediction"
	"github.com/Noofbiz/sceneforecast/submission"
)

// setup points the package globals at a scratch directory holding the test
// scene as CSV.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	datasetstest.WriteCSV(t, dir, "scene.csv", datasetstest.Scene())

	logger = zap.NewNop()
	manager = metrics.NewManager()
	fromDB = false

	cfg = config.New()
	cfg.Annotations = filepath.Join(dir, "*.csv")
	cfg.DBPath = filepath.Join(dir, "sceneforecast.db")
	cfg.Submission.Path = filepath.Join(dir, "submission.json")
	cfg.Model.Path = filepath.Join(dir, "model.gob.gz")
	cfg.SecondsOfHistory = 1
	cfg.SecondsOfFuture = 3
	cfg.Workers = 2
	cfg.Raster.Resolution = 1
	cfg.Model.HiddenSizes = []int{8}
	cfg.Model.Modes = 2
	cfg.Model.Epochs = 2
	cfg.Model.PoolGrid = 2
	cfg.Model.K = 3
	cfg.Model.NumSims = 10
	require.NoError(t, cfg.Validate())

	predictModel, predictOut, predictStore, predictNote = "cvh", "", false, ""
	trainHead = ""
	evaluateKs, evaluateTolerance, evaluateRun = []int{1, 5}, 2, ""
	rasterPNG = ""
	return dir
}

func newCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return cmd, &buf
}

func TestPredictValidateEvaluate(t *testing.T) {
	setup(t)

	for _, model := range []string{"cvh", "oracle", "knn"} {
		t.Run(model, func(t *testing.T) {
			predictModel = model
			cmd, out := newCmd()
			require.NoError(t, runPredict(cmd, nil))
			// 12 tokens per track have 1 s of history and 3 s of future.
			assert.Contains(t, out.String(), "wrote 36 predictions")

			preds, err := submission.Read(cfg.Submission.Path)
			require.NoError(t, err)
			require.Len(t, preds, 36)
			for _, p := range preds {
				assert.LessOrEqual(t, p.NumberOfModes(), prediction.MaxModes)
				assert.Equal(t, cfg.Timesteps(), p.Timesteps())
			}

			cmd, out = newCmd()
			require.NoError(t, runValidate(cmd, nil))
			assert.Contains(t, out.String(), "36 valid predictions")

			cmd, out = newCmd()
			require.NoError(t, runEvaluate(cmd, nil))
			assert.Contains(t, out.String(), "36 scored, 0 skipped")
			assert.Contains(t, out.String(), "minADE")
		})
	}
}

func TestPredictConstantVelocityIsExactForCar(t *testing.T) {
	setup(t)
	cmd, _ := newCmd()
	require.NoError(t, runPredict(cmd, nil))

	preds, err := submission.Read(cfg.Submission.Path)
	require.NoError(t, err)
	for _, p := range preds {
		if p.Instance != "car" {
			continue
		}
		var idx int
		_, err := fmt.Sscanf(p.Sample, "scs%02d", &idx)
		require.NoError(t, err)
		path := p.Trajectories[0]
		// 5 m/s east, first point half a second out, last one 3 s out.
		assert.InDelta(t, 2.5*float64(idx)+2.5, path[0][0], 1e-6)
		assert.InDelta(t, 2.5*float64(idx)+15, path[len(path)-1][0], 1e-6)
		assert.InDelta(t, 0, path[len(path)-1][1], 1e-9)
	}
}

func TestPredictCompressedSubmission(t *testing.T) {
	dir := setup(t)
	cfg.Submission.Compression = "gzip"
	cmd, out := newCmd()
	require.NoError(t, runPredict(cmd, nil))

	path := filepath.Join(dir, "submission.json.gz")
	assert.Contains(t, out.String(), path)
	preds, err := submission.Read(path)
	require.NoError(t, err)
	assert.Len(t, preds, 36)
}

func TestPredictPlainReplacesCompressedSuffix(t *testing.T) {
	dir := setup(t)
	predictOut = filepath.Join(dir, "x.json.gz")
	cmd, out := newCmd()
	require.NoError(t, runPredict(cmd, nil))

	path := filepath.Join(dir, "x.json")
	assert.Contains(t, out.String(), "to "+path+"\n")
	preds, err := submission.Read(path)
	require.NoError(t, err)
	assert.Len(t, preds, 36)
}

func TestImportPredictStoreRuns(t *testing.T) {
	setup(t)

	cmd, out := newCmd()
	require.NoError(t, runImport(cmd, nil))
	assert.Contains(t, out.String(), "imported 60 annotations")

	fromDB = true
	predictStore = true
	predictNote = "baseline"
	cmd, out = newCmd()
	require.NoError(t, runPredict(cmd, nil))
	assert.Contains(t, out.String(), "stored run ")
	runID := strings.TrimSpace(out.String()[strings.Index(out.String(), "stored run ")+len("stored run "):])

	cmd, out = newCmd()
	require.NoError(t, runRuns(cmd, nil))
	assert.Contains(t, out.String(), runID)
	assert.Contains(t, out.String(), "baseline")

	evaluateRun = runID
	cmd, out = newCmd()
	require.NoError(t, runEvaluate(cmd, nil))
	assert.Contains(t, out.String(), "run "+runID+": 36 scored")
}

func TestTrainAndPredict(t *testing.T) {
	for _, head := range []string{"mtp", "covernet"} {
		t.Run(head, func(t *testing.T) {
			dir := setup(t)
			if head == "covernet" {
				cfg.Model.LatticePath = filepath.Join(dir, "lattice.json")
			}
			trainHead = head
			cmd, out := newCmd()
			require.NoError(t, runTrain(cmd, nil))
			assert.Contains(t, out.String(), "on 36 examples")
			// pool grid 2 gives 3*2*2+3 features, 3 s at 2 Hz gives 6 points
			assert.Contains(t, out.String(), "batch tensors: input [8 15], label [8 6 2]")
			_, err := os.Stat(cfg.Model.Path)
			require.NoError(t, err)

			predictModel = head
			cmd, _ = newCmd()
			require.NoError(t, runPredict(cmd, nil))
			preds, err := submission.Read(cfg.Submission.Path)
			require.NoError(t, err)
			require.Len(t, preds, 36)
			for _, p := range preds {
				assert.LessOrEqual(t, p.NumberOfModes(), cfg.Model.TopK)
			}

			other := map[string]string{"mtp": "covernet", "covernet": "mtp"}[head]
			predictModel = other
			cmd, _ = newCmd()
			assert.Error(t, runPredict(cmd, nil))
		})
	}
}

func TestTrainWritesDefaultLattice(t *testing.T) {
	dir := setup(t)
	cfg.Model.LatticePath = filepath.Join(dir, "lattice.json")
	trainHead = "covernet"
	cmd, _ := newCmd()
	require.NoError(t, runTrain(cmd, nil))
	_, err := os.Stat(cfg.Model.LatticePath)
	assert.NoError(t, err)
}

func TestUnknownModel(t *testing.T) {
	setup(t)
	predictModel = "transformer"
	cmd, _ := newCmd()
	err := runPredict(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model")
}

func TestValidateRejectsDuplicates(t *testing.T) {
	setup(t)
	p, err := prediction.New("car", datasetstest.SampleToken("sc", 3),
		[]prediction.Trajectory{{{1, 2}, {3, 4}}}, []float64{1})
	require.NoError(t, err)
	require.NoError(t, submission.Write(cfg.Submission.Path, []*prediction.Prediction{p, p}, submission.None))

	cmd, _ := newCmd()
	err = runValidate(cmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, submission.ErrDuplicate))

	rec := httptest.NewRecorder()
	manager.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `sceneforecast_validation_failures_total{reason="duplicate"} 1`)
}

func TestValidateRejectsTooManyModes(t *testing.T) {
	dir := setup(t)
	modes := make([]string, prediction.MaxModes+1)
	probs := make([]string, prediction.MaxModes+1)
	for i := range modes {
		modes[i] = "[[0,0]]"
		probs[i] = "0.01"
	}
	body := fmt.Sprintf(`[{"instance":"car","sample":"scs03","prediction":[%s],"probabilities":[%s]}]`,
		strings.Join(modes, ","), strings.Join(probs, ","))
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cmd, _ := newCmd()
	err := runValidate(cmd, []string{path})
	require.Error(t, err)
	assert.Equal(t, "too_many_modes", failureReason(err))
	assert.Contains(t, err.Error(), "record 0")
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("record 3: %w", prediction.ErrModeCountMismatch), "mode_count_mismatch"},
		{fmt.Errorf("record 0: %w", prediction.ErrNonFinite), "non_finite"},
		{fmt.Errorf("wrapped: %w", submission.ErrUnknownFormat), "unknown_format"},
		{fmt.Errorf("open submission: %w", os.ErrNotExist), "missing_file"},
		{errors.New("unexpected EOF"), "malformed"},
	}
	for _, tt := range tests {
		if got := failureReason(tt.err); got != tt.want {
			t.Fatalf("failureReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRaster(t *testing.T) {
	dir := setup(t)
	rasterPNG = filepath.Join(dir, "truck.png")
	cmd, out := newCmd()
	require.NoError(t, runRaster(cmd, []string{"truck_" + datasetstest.SampleToken("sc", 5)}))
	assert.Contains(t, out.String(), "wrote 50x50 raster")

	f, err := os.Open(rasterPNG)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	cmd, _ = newCmd()
	assert.Error(t, runRaster(cmd, []string{"no-underscore"}))
}

func TestRootCommandLoadsConfigAndWritesMetrics(t *testing.T) {
	dir := setup(t)
	p, err := prediction.New("car", "scs03", []prediction.Trajectory{{{1, 2}}}, []float64{1})
	require.NoError(t, err)
	subPath := filepath.Join(dir, "one.json")
	require.NoError(t, submission.Write(subPath, []*prediction.Prediction{p}, submission.None))

	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("log_level: warn\nannotations: %s\nsubmission:\n  path: %s\n", cfg.Annotations, subPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	textfile := filepath.Join(dir, "sceneforecast.prom")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"validate", "--config", cfgPath, "--metrics-textfile", textfile})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath, metricsTextfile = "", ""
	})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Contains(t, buf.String(), "1 valid predictions")
	_, err = os.Stat(textfile)
	assert.NoError(t, err)
}

func TestImportDirectory(t *testing.T) {
	dir := setup(t)
	cmd, out := newCmd()
	require.NoError(t, runImport(cmd, []string{dir}))
	assert.Contains(t, out.String(), "imported 60 annotations")

	cmd, _ = newCmd()
	assert.Error(t, runImport(cmd, []string{t.TempDir()}))
}
