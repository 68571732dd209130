// Command compare plots the predictions of several predictors next to the
// ground truth past and future of a few agents, and reports how each one
// scores on them.
package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/eval"
	"github.com/Noofbiz/sceneforecast/monte"
	"github.com/Noofbiz/sceneforecast/physics"
	"github.com/Noofbiz/sceneforecast/prediction"
	"github.com/Noofbiz/sceneforecast/simple"
)

var (
	annotations string
	tokens      []string
	models      []string
	modelPath   string
	outDir      string
	limit       int
	seconds     float64
	history     float64
	knnK        int
	knnSims     int
	seed        int64
	verbose     bool

	logger *zap.Logger
)

// modelColors cycles per predictor.
var modelColors = []color.RGBA{
	{R: 20, G: 80, B: 200, A: 220},
	{R: 200, G: 30, B: 30, A: 200},
	{R: 40, G: 150, B: 40, A: 200},
	{R: 200, G: 120, B: 0, A: 200},
	{R: 140, G: 40, B: 160, A: 200},
}

var rootCmd = &cobra.Command{
	Use:   "compare",
	Short: "Plot predictor output against the ground truth",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&annotations, "annotations", "annotations/*.csv", "Glob of annotation CSV files")
	rootCmd.Flags().StringSliceVar(&tokens, "token", nil, "instance_sample tokens to plot (default: the first --limit eligible)")
	rootCmd.Flags().StringSliceVar(&models, "models", []string{"cvh", "oracle", "knn"}, "Predictors: cvh, oracle, knn, mtp, covernet")
	rootCmd.Flags().StringVar(&modelPath, "model-path", "model.gob.gz", "Trained model for mtp or covernet")
	rootCmd.Flags().StringVarP(&outDir, "out", "o", "output", "Directory for the PNG files")
	rootCmd.Flags().IntVar(&limit, "limit", 5, "Tokens to plot when --token is not given")
	rootCmd.Flags().Float64Var(&seconds, "seconds", physics.DefaultSecFromNow, "Prediction horizon in seconds")
	rootCmd.Flags().Float64Var(&history, "history", 2, "Seconds of past to draw")
	rootCmd.Flags().IntVar(&knnK, "k", 10, "Neighbours of the knn sampler")
	rootCmd.Flags().IntVar(&knnSims, "sims", 100, "Draws of the knn sampler")
	rootCmd.Flags().Int64Var(&seed, "seed", 1, "Seed of the knn sampler")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	anns, err := datasets.LoadAnnotations(annotations)
	if err != nil {
		return err
	}
	h, err := datasets.NewHelper(anns, datasets.WithLogger(logger))
	if err != nil {
		return err
	}

	selected := tokens
	if len(selected) == 0 {
		all, err := h.PredictionTokens(history, seconds)
		if err != nil {
			return err
		}
		if len(all) > limit {
			all = all[:limit]
		}
		selected = all
	}
	if len(selected) == 0 {
		return fmt.Errorf("no token has %.1f s of history and %.1f s of future", history, seconds)
	}

	preds := make(map[string][]*prediction.Prediction, len(models))
	for _, name := range models {
		p, err := newPredictor(name, h)
		if err != nil {
			return err
		}
		runner := &physics.Runner{Model: name, Predictor: p, Logger: logger}
		out, err := runner.Run(ctx, selected)
		if err != nil {
			return err
		}
		preds[name] = out
	}

	gt, err := eval.GroundTruth(h, selected, seconds)
	if err != nil {
		return err
	}
	for _, name := range models {
		s, err := eval.Evaluate(preds[name], gt, []int{1, 5}, eval.DefaultMissTolerance)
		if err != nil {
			logger.Warn("evaluation failed", zap.String("model", name), zap.Error(err))
			continue
		}
		cmd.Printf("%-9s minADE_1=%.3f minADE_5=%.3f minFDE_1=%.3f missRate_5=%.3f\n",
			name, s.MinADE[1], s.MinADE[5], s.MinFDE[1], s.MissRate[5])
	}

	if err := ensureDir(outDir); err != nil {
		return err
	}
	for i, tok := range selected {
		inst, samp, err := datasets.SplitToken(tok)
		if err != nil {
			return err
		}
		past, err := h.GetPastForAgent(inst, samp, history, false)
		if err != nil {
			return err
		}
		byModel := make(map[string]*prediction.Prediction, len(models))
		for _, name := range models {
			byModel[name] = preds[name][i]
		}
		path := filepath.Join(outDir, "compare_"+sanitize(tok)+".png")
		if err := plotCompare(path, tok, past, gt[tok], byModel); err != nil {
			return err
		}
		logger.Info("plot written", zap.String("token", tok), zap.String("path", path))
	}
	return nil
}

func newPredictor(name string, h *datasets.Helper) (physics.Predictor, error) {
	switch name {
	case "cvh":
		p := physics.NewConstantVelocityHeading(h)
		p.SecFromNow = seconds
		return p, nil
	case "oracle":
		p := physics.NewPhysicsOracle(h, logger)
		p.SecFromNow = seconds
		return p, nil
	case "knn":
		all, err := h.PredictionTokens(0, seconds)
		if err != nil {
			return nil, err
		}
		timesteps := int(seconds * h.SampleFrequency())
		ds, err := monte.NewHelperDataset(h, all, timesteps, monte.Features, logger)
		if err != nil {
			return nil, err
		}
		m, err := monte.NewMonte(ds, knnK)
		if err != nil {
			return nil, err
		}
		m.NumSims = knnSims
		m.Helper = h
		m.Logger = logger
		m.Seed(seed)
		return m, nil
	case "mtp", "covernet":
		model, err := simple.LoadModel(modelPath)
		if err != nil {
			return nil, err
		}
		// The pooling grid is recovered from the model's input size.
		grid := int(math.Round(math.Sqrt(float64(model.InputDim()-simple.StateDim) / 3)))
		return simple.NewPredictor(model, simple.NewFeaturizer(h, grid), 5)
	}
	return nil, fmt.Errorf("unknown model %q", name)
}

func plotCompare(path, token string, past, future []datasets.Point, preds map[string]*prediction.Prediction) error {
	p := plot.New()
	p.Title.Text = token + ": past (grey), future (black)"
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"

	var all plotter.XYs
	if len(past) > 0 {
		xys := toXYs(past)
		all = append(all, xys...)
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
		sc.GlyphStyle.Radius = vg.Points(1.8)
		p.Add(sc)
		p.Legend.Add("past", sc)
	}
	if len(future) > 0 {
		xys := toXYs(future)
		all = append(all, xys...)
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = color.Black
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("ground truth", line)
	}

	for i, name := range models {
		pred := preds[name]
		if pred == nil {
			continue
		}
		base := modelColors[i%len(modelColors)]
		for m, tr := range pred.Trajectories {
			if len(tr) == 0 {
				continue
			}
			xys := toXYs(tr)
			all = append(all, xys...)
			line, err := plotter.NewLine(xys)
			if err != nil {
				return err
			}
			// Fade modes by probability.
			col := base
			col.A = uint8(60 + 195*math.Min(1, pred.Probabilities[m]))
			line.Color = col
			line.Width = vg.Points(0.8)
			p.Add(line)
			if m == 0 {
				p.Legend.Add(name, line)
			}
		}
	}

	p.Add(plotter.NewGrid())
	xmin, xmax, ymin, ymax := autoRange(all)
	p.X.Min = xmin
	p.X.Max = xmax
	p.Y.Min = ymin
	p.Y.Max = ymax

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

func toXYs(points []prediction.Point) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X, xys[i].Y = pt[0], pt[1]
	}
	return xys
}

// autoRange computes padded min/max for X and Y for a set of points, keeping
// both axes on the same scale.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin, xmax = math.Min(xmin, p.X), math.Max(xmax, p.X)
		ymin, ymax = math.Min(ymin, p.Y), math.Max(ymax, p.Y)
	}
	half := math.Max(xmax-xmin, ymax-ymin)/2 + 1
	cx, cy := (xmin+xmax)/2, (ymin+ymax)/2
	return cx - half, cx + half, cy - half, cy + half
}

func sanitize(token string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, token)
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
