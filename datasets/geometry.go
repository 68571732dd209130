package datasets

import "math"

// agentFrameAngle is the rotation that takes global coordinates into the
// agent frame, where the agent faces +y and +x is to its right.
func agentFrameAngle(yaw float64) float64 {
	return math.Pi/2 - yaw
}

func rotate(p Point, angle float64) Point {
	c, s := math.Cos(angle), math.Sin(angle)
	return Point{c*p[0] - s*p[1], s*p[0] + c*p[1]}
}

// ConvertGlobalCoordsToLocal maps global points into the frame of an agent
// located at translation with heading yaw.
func ConvertGlobalCoordsToLocal(points []Point, translation Point, yaw float64) []Point {
	angle := agentFrameAngle(yaw)
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = rotate(Point{p[0] - translation[0], p[1] - translation[1]}, angle)
	}
	return out
}

// ConvertLocalCoordsToGlobal is the inverse of ConvertGlobalCoordsToLocal.
func ConvertLocalCoordsToGlobal(points []Point, translation Point, yaw float64) []Point {
	angle := -agentFrameAngle(yaw)
	out := make([]Point, len(points))
	for i, p := range points {
		r := rotate(p, angle)
		out[i] = Point{r[0] + translation[0], r[1] + translation[1]}
	}
	return out
}

// LocalYaw returns the heading of an object with global heading yaw as seen
// from an agent with heading agentYaw. Zero means "same direction as the
// agent", which points up (+y) in the agent frame.
func LocalYaw(yaw, agentYaw float64) float64 {
	return AngleDiff(yaw, agentYaw, 2*math.Pi)
}

// AngleDiff returns the signed smallest difference x - y for angles with the
// given period, in [-period/2, period/2).
func AngleDiff(x, y, period float64) float64 {
	diff := math.Mod(x-y+period/2, period)
	if diff < 0 {
		diff += period
	}
	diff -= period / 2
	if diff > math.Pi {
		diff -= 2 * math.Pi
	}
	return diff
}
