// Package raster renders the scene around an agent into an image that
// learned predictors take as input.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
)

// ErrSizeMismatch is returned when layers of different sizes are combined.
var ErrSizeMismatch = errors.New("raster layers have different sizes")

// Layer renders one aspect of the scene centered on an agent.
type Layer interface {
	Rasterize(instance, sample string) (*image.RGBA, error)
}

// StaticLayer renders scene context that does not move (map, lanes).
type StaticLayer interface {
	Layer
}

// BlankLayer is a black StaticLayer. It stands in for map rendering.
type BlankLayer struct {
	Width, Height int
}

// Rasterize implements Layer.
func (b BlankLayer) Rasterize(string, string) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img, nil
}

// Combinator merges layers, bottom first, into one image.
type Combinator func(layers []*image.RGBA) (*image.RGBA, error)

// Combine overlays the layers in order: every non-black pixel of a later
// layer replaces the pixel beneath it.
func Combine(layers []*image.RGBA) (*image.RGBA, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers to combine")
	}
	b := layers[0].Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, layers[0], b.Min, draw.Src)
	for _, l := range layers[1:] {
		if l.Bounds().Size() != b.Size() {
			return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, l.Bounds().Size(), b.Size())
		}
		lb := l.Bounds()
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := l.RGBAAt(lb.Min.X+x, lb.Min.Y+y)
				if c.R == 0 && c.G == 0 && c.B == 0 {
					continue
				}
				out.SetRGBA(b.Min.X+x, b.Min.Y+y, c)
			}
		}
	}
	return out, nil
}

// InputRepresentation stacks a static layer and an agent layer.
type InputRepresentation struct {
	Static     StaticLayer
	Agents     Layer
	Combinator Combinator
}

// NewInputRepresentation uses Combine when combinator is nil.
func NewInputRepresentation(static StaticLayer, agents Layer, combinator Combinator) *InputRepresentation {
	if combinator == nil {
		combinator = Combine
	}
	return &InputRepresentation{Static: static, Agents: agents, Combinator: combinator}
}

// MakeInputRepresentation renders the image for one agent at one sample.
func (r *InputRepresentation) MakeInputRepresentation(instance, sample string) (*image.RGBA, error) {
	var layers []*image.RGBA
	for _, l := range []Layer{r.Static, r.Agents} {
		if l == nil {
			continue
		}
		img, err := l.Rasterize(instance, sample)
		if err != nil {
			return nil, err
		}
		layers = append(layers, img)
	}
	return r.Combinator(layers)
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
