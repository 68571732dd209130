package main

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/simple"
)

var trainHead string

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train an MTP or CoverNet style model",
	Long: `Featurizes every token of the configured split (rasterized agent boxes
pooled to a grid, plus the agent state), trains the model, and saves it to
model.path. The covernet head classifies over the lattice at
model.lattice_path, or over the default lattice when none is set.`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainHead, "head", "", "Output head: mtp or covernet (default model.head)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := trainHead
	if name == "" {
		name = cfg.Model.Head
	}
	head, err := simple.ParseHead(name)
	if err != nil {
		return err
	}

	h, err := loadHelper(ctx)
	if err != nil {
		return err
	}
	tokens, err := loadTokens(h)
	if err != nil {
		return err
	}
	f := newFeaturizer(h)
	ts, err := simple.NewTrainingSet(ctx, f, tokens, cfg.Timesteps(), logger)
	if err != nil {
		return err
	}

	if ts.Len() > 0 {
		first := make([]int, min(cfg.Model.BatchSize, ts.Len()))
		for i := range first {
			first[i] = i
		}
		in, lab, err := ts.Tensors(first)
		if err != nil {
			return err
		}
		cmd.Printf("batch tensors: input %v, label %v\n", in.Shape().Dimensions, lab.Shape().Dimensions)
	}

	mc := simple.Config{
		HiddenSizes:  cfg.Model.HiddenSizes,
		InputDim:     f.Dim(),
		Head:         head,
		NumModes:     cfg.Model.Modes,
		Timesteps:    cfg.Timesteps(),
		LearningRate: cfg.Model.LearningRate,
		Epochs:       cfg.Model.Epochs,
		BatchSize:    cfg.Model.BatchSize,
		Seed:         cfg.Model.Seed,
	}
	if head == simple.HeadTrajectorySet {
		mc.Lattice, err = trainLattice()
		if err != nil {
			return err
		}
	}
	model, err := simple.NewModel(mc)
	if err != nil {
		return err
	}
	model.Logger = logger

	logger.Info("training",
		zap.String("head", string(head)),
		zap.Int("examples", ts.Len()),
		zap.Int("input_dim", f.Dim()),
		zap.Int("epochs", mc.Epochs))
	if err := model.TrainWithDataset(ts); err != nil {
		return err
	}
	if err := simple.SaveModel(cfg.Model.Path, model); err != nil {
		return err
	}
	cmd.Printf("trained %s model on %d examples, saved to %s\n", head, ts.Len(), cfg.Model.Path)
	return nil
}

// trainLattice loads the configured lattice, or builds the default one and
// saves it when lattice_path names a file that does not exist yet.
func trainLattice() (simple.Lattice, error) {
	if cfg.Model.LatticePath == "" {
		return simple.DefaultLattice(cfg.SecondsOfFuture, cfg.SampledAt), nil
	}
	l, err := simple.LoadLattice(cfg.Model.LatticePath)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	l = simple.DefaultLattice(cfg.SecondsOfFuture, cfg.SampledAt)
	if err := simple.SaveLattice(cfg.Model.LatticePath, l); err != nil {
		return nil, err
	}
	logger.Info("default lattice saved", zap.String("path", cfg.Model.LatticePath), zap.Int("modes", len(l)))
	return l, nil
}
