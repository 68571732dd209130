package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/physics"
	"github.com/Noofbiz/sceneforecast/store"
	"github.com/Noofbiz/sceneforecast/submission"
)

var (
	predictModel string
	predictOut   string
	predictStore bool
	predictNote  string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Produce a prediction submission",
	Long: `Runs a predictor over the configured split and writes the predictions
as a submission file. Models: cvh (constant velocity and heading), oracle
(best physics model given the future), knn (nearest-neighbour sampler), mtp
and covernet (trained with the train command).`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVarP(&predictModel, "model", "m", "cvh", "Predictor: cvh, oracle, knn, mtp or covernet")
	predictCmd.Flags().StringVarP(&predictOut, "out", "o", "", "Submission path (default submission.path)")
	predictCmd.Flags().BoolVar(&predictStore, "store", false, "Also save the predictions as a run in the SQLite store")
	predictCmd.Flags().StringVar(&predictNote, "note", "", "Note attached to the stored run")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stop := serveMetrics()
	defer stop()

	h, err := loadHelper(ctx)
	if err != nil {
		return err
	}
	tokens, err := loadTokens(h)
	if err != nil {
		return err
	}
	predictor, err := newPredictor(predictModel, h)
	if err != nil {
		return err
	}

	runner := &physics.Runner{
		Model:     predictModel,
		Predictor: predictor,
		Workers:   cfg.Workers,
		Logger:    logger,
		Observer:  manager,
	}
	preds, err := runner.Run(ctx, tokens)
	if err != nil {
		return err
	}

	out := predictOut
	if out == "" {
		out = cfg.Submission.Path
	}
	compression, err := submission.ParseCompression(cfg.Submission.Compression)
	if err != nil {
		return err
	}
	if got, err := submission.CompressionFromPath(out); err != nil || got != compression {
		out = submission.WithExtension(out, compression)
	}
	if err := submission.Write(out, preds, compression); err != nil {
		return err
	}
	logger.Info("submission written", zap.String("path", out), zap.Int("predictions", len(preds)))
	cmd.Printf("wrote %d predictions to %s\n", len(preds), out)

	if !predictStore {
		return nil
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	runID, err := st.CreateRun(ctx, predictModel, predictNote)
	if err != nil {
		return err
	}
	if err := st.SavePredictions(ctx, runID, preds); err != nil {
		return err
	}
	logger.Info("run stored", zap.String("run_id", runID), zap.String("db", cfg.DBPath))
	cmd.Printf("stored run %s\n", runID)
	return nil
}
