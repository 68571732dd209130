// Package datasetstest builds small synthetic scenes for tests.
package datasetstest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Noofbiz/sceneforecast/datasets"
)

// StepMicros is the spacing between samples (2 Hz).
const StepMicros = 500_000

// SampleToken returns the token of the i-th sample of scene.
func SampleToken(scene string, i int) string {
	return fmt.Sprintf("%ss%02d", scene, i)
}

// Track describes one agent moving through a scene.
type Track struct {
	Instance string
	Category string
	// Start is the first sample index the agent appears in, Samples how many
	// consecutive samples it spans.
	Start, Samples int
	X0, Y0         float64
	Yaw0           float64
	Speed          float64 // m/s along the heading
	Accel          float64 // m/s²
	YawRate        float64 // rad/s
}

// Annotations integrates the track at 2 Hz.
func (tr Track) Annotations(scene string) []datasets.Annotation {
	out := make([]datasets.Annotation, 0, tr.Samples)
	x, y, yaw, v := tr.X0, tr.Y0, tr.Yaw0, tr.Speed
	dt := float64(StepMicros) * 1e-6
	for i := 0; i < tr.Samples; i++ {
		idx := tr.Start + i
		out = append(out, datasets.Annotation{
			Instance:  tr.Instance,
			Sample:    SampleToken(scene, idx),
			Scene:     scene,
			Timestamp: int64(idx) * StepMicros,
			X:         x,
			Y:         y,
			Yaw:       yaw,
			Width:     2,
			Length:    4.5,
			Category:  tr.Category,
		})
		x += v * dt * math.Cos(yaw)
		y += v * dt * math.Sin(yaw)
		v += tr.Accel * dt
		yaw += tr.YawRate * dt
	}
	return out
}

// Scene returns the annotations of the default test scene "sc": a car driving
// east at 5 m/s, a truck turning left, and a pedestrian standing still, each
// present in 20 samples.
func Scene() []datasets.Annotation {
	tracks := []Track{
		{Instance: "car", Category: "vehicle.car", Samples: 20, Speed: 5},
		{Instance: "truck", Category: "vehicle.truck", Samples: 20, X0: 0, Y0: -10, Speed: 4, YawRate: 0.1},
		{Instance: "ped", Category: "human.pedestrian.adult", Samples: 20, X0: 10, Y0: 10, Yaw0: math.Pi / 2},
	}
	var out []datasets.Annotation
	for _, tr := range tracks {
		out = append(out, tr.Annotations("sc")...)
	}
	return out
}

// Helper indexes Scene.
func Helper(t testing.TB) *datasets.Helper {
	t.Helper()
	h, err := datasets.NewHelper(Scene())
	if err != nil {
		t.Fatalf("NewHelper failed: %v", err)
	}
	return h
}

// Header is the CSV header written by WriteCSV.
const Header = "token,instance_token,sample_token,scene_token,timestamp,x,y,yaw,width,length,category"

// WriteCSV writes anns to dir/name in the annotation CSV layout and returns
// the path.
func WriteCSV(t testing.TB, dir, name string, anns []datasets.Annotation) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(Header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, a := range anns {
		row := fmt.Sprintf("%s,%s,%s,%s,%d,%s,%s,%s,%s,%s,%s\n",
			a.Token, a.Instance, a.Sample, a.Scene, a.Timestamp,
			ff(a.X), ff(a.Y), ff(a.Yaw), ff(a.Width), ff(a.Length), a.Category)
		if _, err := f.WriteString(row); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
	return path
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
