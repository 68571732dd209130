package simple

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Noofbiz/sceneforecast/physics"
	"github.com/Noofbiz/sceneforecast/prediction"
)

// Lattice is a fixed set of agent frame trajectories.
type Lattice []prediction.Trajectory

// BuildLattice rolls out a constant speed and yaw rate path for every
// combination of speeds and yawRates. Paths start at the agent facing +y.
func BuildLattice(speeds, yawRates []float64, secFromNow, sampledAt float64) Lattice {
	out := make(Lattice, 0, len(speeds)*len(yawRates))
	for _, s := range speeds {
		for _, w := range yawRates {
			k := physics.Kinematics{Speed: s, YawRate: w, Yaw: math.Pi / 2}
			out = append(out, physics.ConstantSpeedYawRate(k, secFromNow, sampledAt))
		}
	}
	return out
}

// DefaultLattice covers 0 to 20 m/s and -0.6 to 0.6 rad/s.
func DefaultLattice(secFromNow, sampledAt float64) Lattice {
	speeds := []float64{0, 1, 2.5, 5, 7.5, 10, 12.5, 15, 20}
	yawRates := []float64{-0.6, -0.3, -0.1, 0, 0.1, 0.3, 0.6}
	return BuildLattice(speeds, yawRates, secFromNow, sampledAt)
}

// Timesteps returns the length of the lattice trajectories.
func (l Lattice) Timesteps() int {
	if len(l) == 0 {
		return 0
	}
	return len(l[0])
}

// Closest returns the index of the lattice trajectory with the smallest
// average displacement from tr.
func (l Lattice) Closest(tr prediction.Trajectory) int {
	best, bestDist := 0, math.Inf(1)
	for i, cand := range l {
		if d := physics.AverageDisplacement(cand, tr); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// SaveLattice writes l as a JSON array of (T, 2) arrays.
func SaveLattice(path string, l Lattice) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lattice: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadLattice reads a lattice written by SaveLattice. All trajectories
// must have the same length.
func LoadLattice(path string) (Lattice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lattice: %w", err)
	}
	var l Lattice
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("unmarshal lattice: %w", err)
	}
	for i, tr := range l {
		if len(tr) != l.Timesteps() {
			return nil, fmt.Errorf("%w: lattice entry %d has %d points, want %d",
				prediction.ErrTrajectoryShape, i, len(tr), l.Timesteps())
		}
	}
	return l, nil
}
