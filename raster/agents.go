package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"

	"golang.org/x/image/vector"

	"github.com/Noofbiz/sceneforecast/datasets"
)

// Box colors by agent role. History boxes are drawn with the same color at
// reduced brightness.
var (
	// TargetColor (red) marks the agent being predicted.
	TargetColor = color.RGBA{R: 255, A: 255}
	// VehicleColor (yellow) marks other vehicle.* agents.
	VehicleColor = color.RGBA{R: 255, G: 255, A: 255}
	// PedestrianColor (orange) marks human.* and pedestrian agents.
	PedestrianColor = color.RGBA{R: 255, G: 153, B: 51, A: 255}
	// OtherColor (white) marks agents of any other category.
	OtherColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// minBrightness is the brightness of the oldest history box.
const minBrightness = 0.1

// AgentBoxes draws every agent as an oriented box in the target agent's
// frame, heading up, with faded boxes for past positions.
type AgentBoxes struct {
	Helper           *datasets.Helper
	Resolution       float64 // meters per pixel
	MetersAhead      float64
	MetersBehind     float64
	MetersLeft       float64
	MetersRight      float64
	SecondsOfHistory float64
}

// NewAgentBoxes uses a 0.1 m resolution, 40 m ahead, 10 m behind, 25 m to
// each side and 2 s of history.
func NewAgentBoxes(h *datasets.Helper) *AgentBoxes {
	return &AgentBoxes{
		Helper:           h,
		Resolution:       0.1,
		MetersAhead:      40,
		MetersBehind:     10,
		MetersLeft:       25,
		MetersRight:      25,
		SecondsOfHistory: 2,
	}
}

// Size returns the image width and height in pixels.
func (a *AgentBoxes) Size() (w, h int) {
	w = int(math.Round((a.MetersLeft + a.MetersRight) / a.Resolution))
	h = int(math.Round((a.MetersAhead + a.MetersBehind) / a.Resolution))
	return w, h
}

// toPixel maps an agent frame point (x right, y ahead) to image coordinates.
func (a *AgentBoxes) toPixel(p datasets.Point) (float32, float32) {
	return float32((a.MetersLeft + p[0]) / a.Resolution), float32((a.MetersAhead - p[1]) / a.Resolution)
}

// corners returns the four corners of ann's footprint in the global frame.
func corners(ann datasets.Annotation) []datasets.Point {
	l, w := ann.Length, ann.Width
	if l <= 0 {
		l = 1
	}
	if w <= 0 {
		w = 1
	}
	cos, sin := math.Cos(ann.Yaw), math.Sin(ann.Yaw)
	offsets := [4][2]float64{{l / 2, w / 2}, {l / 2, -w / 2}, {-l / 2, -w / 2}, {-l / 2, w / 2}}
	out := make([]datasets.Point, 4)
	for i, o := range offsets {
		out[i] = datasets.Point{
			ann.X + o[0]*cos - o[1]*sin,
			ann.Y + o[0]*sin + o[1]*cos,
		}
	}
	return out
}

func fade(c color.RGBA, brightness float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * brightness),
		G: uint8(float64(c.G) * brightness),
		B: uint8(float64(c.B) * brightness),
		A: c.A,
	}
}

func categoryColor(ann datasets.Annotation) color.RGBA {
	switch {
	case ann.IsVehicle():
		return VehicleColor
	case ann.IsPedestrian():
		return PedestrianColor
	default:
		return OtherColor
	}
}

// Rasterize implements Layer.
func (a *AgentBoxes) Rasterize(instance, sample string) (*image.RGBA, error) {
	target, err := a.Helper.GetSampleAnnotation(instance, sample)
	if err != nil {
		return nil, err
	}
	present, err := a.Helper.GetAnnotationsForSample(sample)
	if err != nil {
		return nil, err
	}
	history, err := a.Helper.GetPastForSampleRecords(sample, a.SecondsOfHistory)
	if err != nil {
		return nil, err
	}

	w, h := a.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	r := vector.NewRasterizer(w, h)
	origin := target.Translation()

	drawBox := func(ann datasets.Annotation, c color.RGBA) {
		pts := datasets.ConvertGlobalCoordsToLocal(corners(ann), origin, target.Yaw)
		r.Reset(w, h)
		x, y := a.toPixel(pts[0])
		r.MoveTo(x, y)
		for _, p := range pts[1:] {
			x, y = a.toPixel(p)
			r.LineTo(x, y)
		}
		r.ClosePath()
		r.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
	}

	// oldest history first so newer boxes land on top
	steps := int(math.Round(a.SecondsOfHistory * a.Helper.SampleFrequency()))
	instances := make([]string, 0, len(history))
	for inst := range history {
		instances = append(instances, inst)
	}
	sort.Strings(instances)
	for i := steps; i >= 1; i-- {
		brightness := 1 - (1-minBrightness)*float64(i)/float64(steps+1)
		for _, inst := range instances {
			recs := history[inst]
			if i > len(recs) {
				continue
			}
			ann := recs[i-1]
			c := categoryColor(ann)
			if inst == instance {
				c = TargetColor
			}
			drawBox(ann, fade(c, brightness))
		}
	}

	for _, ann := range present {
		if ann.Instance == instance {
			continue
		}
		drawBox(ann, categoryColor(ann))
	}
	drawBox(target, TargetColor)
	return img, nil
}
