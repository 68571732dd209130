package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot/plotter"

	"github.com/Noofbiz/sceneforecast/datasets/datasetstest"
)

func TestAutoRangeIsSquare(t *testing.T) {
	xmin, xmax, ymin, ymax := autoRange(plotter.XYs{{X: 0, Y: 0}, {X: 10, Y: 2}})
	if xmax-xmin != ymax-ymin {
		t.Fatalf("expected square range, got x [%v,%v] y [%v,%v]", xmin, xmax, ymin, ymax)
	}
	if xmin > 0 || xmax < 10 || ymin > 0 || ymax < 2 {
		t.Fatalf("range does not cover the points: x [%v,%v] y [%v,%v]", xmin, xmax, ymin, ymax)
	}
	if a, b, c, d := autoRange(nil); a != -1 || b != 1 || c != -1 || d != 1 {
		t.Fatalf("unexpected empty range %v %v %v %v", a, b, c, d)
	}
}

func TestRunWritesPlots(t *testing.T) {
	dir := t.TempDir()
	datasetstest.WriteCSV(t, dir, "scene.csv", datasetstest.Scene())

	logger = zap.NewNop()
	annotations = filepath.Join(dir, "*.csv")
	tokens = nil
	models = []string{"cvh", "oracle", "knn"}
	outDir = filepath.Join(dir, "out")
	limit = 2
	seconds = 3
	history = 1
	knnK, knnSims, seed = 3, 10, 1

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	if err := run(cmd, nil); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	for _, name := range models {
		if !strings.Contains(buf.String(), name) {
			t.Fatalf("expected a score line for %s, got: %s", name, buf.String())
		}
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != limit {
		t.Fatalf("expected %d plots, got %d", limit, len(entries))
	}
}

func TestUnknownPredictor(t *testing.T) {
	logger = zap.NewNop()
	if _, err := newPredictor("transformer", datasetstest.Helper(t)); err == nil {
		t.Fatalf("expected error for unknown predictor")
	}
}
