package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/raster"
)

var rasterPNG string

var rasterCmd = &cobra.Command{
	Use:   "raster <instance_sample>",
	Short: "Render the input representation of one agent",
	Long: `Draws the agent box representation the learned models see, centred on
the agent and rotated so it faces up, and writes it as a PNG.`,
	Args: cobra.ExactArgs(1),
	RunE: runRaster,
}

func init() {
	rasterCmd.Flags().StringVar(&rasterPNG, "png", "", "Output path (default <instance_sample>.png)")
}

func runRaster(cmd *cobra.Command, args []string) error {
	inst, samp, err := datasets.SplitToken(args[0])
	if err != nil {
		return err
	}
	h, err := loadHelper(cmd.Context())
	if err != nil {
		return err
	}
	img, err := newRepresentation(h).MakeInputRepresentation(inst, samp)
	if err != nil {
		return err
	}
	out := rasterPNG
	if out == "" {
		out = fmt.Sprintf("%s.png", args[0])
	}
	if err := raster.WritePNG(out, img); err != nil {
		return err
	}
	b := img.Bounds()
	logger.Debug("raster written", zap.String("path", out), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
	cmd.Printf("wrote %dx%d raster to %s\n", b.Dx(), b.Dy(), out)
	return nil
}
