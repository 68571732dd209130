// Package physics implements physics based trajectory baselines.
package physics

import (
	"math"

	"github.com/Noofbiz/sceneforecast/datasets"
)

// Kinematics is the state of an agent at one sample, in the global frame.
type Kinematics struct {
	X, Y         float64
	VX, VY       float64
	AX, AY       float64
	Speed        float64
	YawRate      float64
	Acceleration float64
	Yaw          float64
}

// KinematicsFromTokens reads the state of instance at sample. Quantities the
// helper cannot estimate (first annotation of a track, large gaps) are 0.
func KinematicsFromTokens(h *datasets.Helper, instance, sample string) (Kinematics, error) {
	ann, err := h.GetSampleAnnotation(instance, sample)
	if err != nil {
		return Kinematics{}, err
	}
	v, err := h.GetVelocityForAgent(instance, sample)
	if err != nil {
		return Kinematics{}, err
	}
	a, err := h.GetAccelerationForAgent(instance, sample)
	if err != nil {
		return Kinematics{}, err
	}
	yr, err := h.GetHeadingChangeRateForAgent(instance, sample)
	if err != nil {
		return Kinematics{}, err
	}
	v, a, yr = datasets.NanToZero(v), datasets.NanToZero(a), datasets.NanToZero(yr)

	cos, sin := math.Cos(ann.Yaw), math.Sin(ann.Yaw)
	return Kinematics{
		X:            ann.X,
		Y:            ann.Y,
		VX:           v * cos,
		VY:           v * sin,
		AX:           a * cos,
		AY:           a * sin,
		Speed:        v,
		YawRate:      yr,
		Acceleration: a,
		Yaw:          ann.Yaw,
	}, nil
}
