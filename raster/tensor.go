package raster

import (
	"fmt"
	"image"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// channels returns the image as three [H][W] planes scaled to [0,1].
func channels(img *image.RGBA) [][][]float32 {
	b := img.Bounds()
	out := make([][][]float32, 3)
	for c := range out {
		out[c] = make([][]float32, b.Dy())
		for y := range out[c] {
			out[c][y] = make([]float32, b.Dx())
		}
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			px := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			out[0][y][x] = float32(px.R) / 255
			out[1][y][x] = float32(px.G) / 255
			out[2][y][x] = float32(px.B) / 255
		}
	}
	return out
}

// ToTensor converts img to a float32 tensor shaped (3, H, W).
func ToTensor(img *image.RGBA) *tensors.Tensor {
	return tensors.FromAnyValue(channels(img))
}

// AveragePool downsamples img to grid×grid cells per channel and returns
// the cell means, channel major, in [0,1].
func AveragePool(img *image.RGBA, grid int) ([]float32, error) {
	b := img.Bounds()
	if grid <= 0 || grid > b.Dx() || grid > b.Dy() {
		return nil, fmt.Errorf("invalid pool grid %d for %dx%d image", grid, b.Dx(), b.Dy())
	}
	sums := make([]float64, 3*grid*grid)
	counts := make([]int, grid*grid)
	for y := 0; y < b.Dy(); y++ {
		gy := y * grid / b.Dy()
		for x := 0; x < b.Dx(); x++ {
			gx := x * grid / b.Dx()
			cell := gy*grid + gx
			px := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			sums[cell] += float64(px.R)
			sums[grid*grid+cell] += float64(px.G)
			sums[2*grid*grid+cell] += float64(px.B)
			counts[cell]++
		}
	}
	out := make([]float32, len(sums))
	for i, s := range sums {
		out[i] = float32(s / float64(counts[i%(grid*grid)]) / 255)
	}
	return out, nil
}
