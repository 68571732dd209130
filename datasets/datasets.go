package datasets

import (
	"errors"
	"math"

	"github.com/Noofbiz/sceneforecast/prediction"
)

// This package holds the driving-scene dataset side of the project: loading
// agent annotations from CSV, linking them into per-agent tracks, and
// answering the history/future queries prediction models need.
//
// Layout and intended usage:
//
// AnnotationDataset
//   - Stores paths to CSV files matching a glob pattern
//   - Reads rows on demand; one row is one annotated agent in one sample
//   - Required columns: instance_token, sample_token, scene_token, timestamp,
//     x, y, yaw. Optional: token, width, length, category
//
// Helper
//   - Built from the full annotation list (from CSV or the SQLite store)
//   - Links every instance's annotations in time order (prev/next)
//   - Answers past/future queries in the global or the agent frame, and
//     estimates velocity, acceleration and heading change rate
//
// Timestamps are microseconds, positions meters, yaw radians (counter-clockwise
// from +x).

// Point aliases the prediction package's coordinate type so trajectories from
// the helper can be passed straight into prediction records.
type Point = prediction.Point

// Annotation is one agent observed in one sample.
type Annotation struct {
	Token     string
	Instance  string
	Sample    string
	Scene     string
	Timestamp int64
	X         float64
	Y         float64
	Yaw       float64
	Width     float64
	Length    float64
	Category  string

	// Prev and Next are annotation tokens of the same instance in the
	// neighbouring samples; empty at the ends of the track. Filled in by
	// NewHelper.
	Prev string
	Next string
}

// Translation returns the annotation's position.
func (a Annotation) Translation() Point {
	return Point{a.X, a.Y}
}

// Seconds returns the timestamp in seconds.
func (a Annotation) Seconds() float64 {
	return float64(a.Timestamp) * 1e-6
}

// IsVehicle reports whether the category names a vehicle.
func (a Annotation) IsVehicle() bool {
	return hasCategoryPrefix(a.Category, "vehicle")
}

// IsPedestrian reports whether the category names a pedestrian.
func (a Annotation) IsPedestrian() bool {
	return hasCategoryPrefix(a.Category, "human") || hasCategoryPrefix(a.Category, "pedestrian")
}

// Sentinel errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrNegativeSeconds = errors.New("seconds must be non-negative")
)

// Dataset is the minimal row-level interface the loaders implement.
type Dataset interface {
	Len() int
	Example(i int) (Annotation, error)
	Batch(indices []int) ([]Annotation, error)
}

// NanToZero replaces NaN and infinite values with zero. Kinematic estimates
// are NaN when an agent has no usable history.
func NanToZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
