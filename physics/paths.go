package physics

import (
	"math"

	"github.com/Noofbiz/sceneforecast/prediction"
)

// PathFunc extrapolates k for secFromNow seconds and returns
// int(secFromNow*sampledAt) points spaced 1/sampledAt seconds apart.
type PathFunc func(k Kinematics, secFromNow, sampledAt float64) prediction.Trajectory

func steps(secFromNow, sampledAt float64) (n int, dt float64) {
	if secFromNow <= 0 || sampledAt <= 0 {
		return 0, 0
	}
	return int(secFromNow * sampledAt), 1 / sampledAt
}

// ConstantVelocityHeading keeps velocity and heading fixed.
func ConstantVelocityHeading(k Kinematics, secFromNow, sampledAt float64) prediction.Trajectory {
	n, dt := steps(secFromNow, sampledAt)
	out := make(prediction.Trajectory, n)
	for i := range n {
		t := float64(i+1) * dt
		out[i] = prediction.Point{k.X + k.VX*t, k.Y + k.VY*t}
	}
	return out
}

// ConstantAccelerationHeading keeps acceleration and heading fixed.
func ConstantAccelerationHeading(k Kinematics, secFromNow, sampledAt float64) prediction.Trajectory {
	n, dt := steps(secFromNow, sampledAt)
	out := make(prediction.Trajectory, n)
	for i := range n {
		t := float64(i+1) * dt
		out[i] = prediction.Point{
			k.X + k.VX*t + 0.5*k.AX*t*t,
			k.Y + k.VY*t + 0.5*k.AY*t*t,
		}
	}
	return out
}

// ConstantSpeedYawRate keeps speed and yaw rate fixed.
func ConstantSpeedYawRate(k Kinematics, secFromNow, sampledAt float64) prediction.Trajectory {
	n, dt := steps(secFromNow, sampledAt)
	out := make(prediction.Trajectory, n)
	x, y, yaw := k.X, k.Y, k.Yaw
	dist := k.Speed * dt
	yawStep := k.YawRate * dt
	for i := range n {
		x += dist * math.Cos(yaw)
		y += dist * math.Sin(yaw)
		out[i] = prediction.Point{x, y}
		yaw += yawStep
	}
	return out
}

// ConstantMagnitudeAccelerationYawRate keeps the magnitude of acceleration
// and the yaw rate fixed.
func ConstantMagnitudeAccelerationYawRate(k Kinematics, secFromNow, sampledAt float64) prediction.Trajectory {
	n, dt := steps(secFromNow, sampledAt)
	out := make(prediction.Trajectory, n)
	x, y, yaw, speed := k.X, k.Y, k.Yaw, k.Speed
	speedStep := k.Acceleration * dt
	yawStep := k.YawRate * dt
	for i := range n {
		dist := speed * dt
		x += dist * math.Cos(yaw)
		y += dist * math.Sin(yaw)
		out[i] = prediction.Point{x, y}
		speed += speedStep
		yaw += yawStep
	}
	return out
}
