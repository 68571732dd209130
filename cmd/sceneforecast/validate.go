package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/prediction"
	"github.com/Noofbiz/sceneforecast/submission"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check that a submission file is well formed",
	Long: `Reads every record of the submission (default submission.path) and
checks its shape, the mode limit, and that no (instance, sample) pair is
predicted twice.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

// failureReasons maps validation errors to metric labels.
var failureReasons = []struct {
	err    error
	reason string
}{
	{prediction.ErrInstanceNotString, "instance_not_string"},
	{prediction.ErrSampleNotString, "sample_not_string"},
	{prediction.ErrPredictionNotArray, "prediction_not_array"},
	{prediction.ErrProbabilitiesNotArray, "probabilities_not_array"},
	{prediction.ErrTooManyModes, "too_many_modes"},
	{prediction.ErrModeCountMismatch, "mode_count_mismatch"},
	{prediction.ErrTrajectoryShape, "trajectory_shape"},
	{prediction.ErrNonFinite, "non_finite"},
	{submission.ErrDuplicate, "duplicate"},
	{submission.ErrUnknownFormat, "unknown_format"},
	{os.ErrNotExist, "missing_file"},
}

func failureReason(err error) string {
	for _, fr := range failureReasons {
		if errors.Is(err, fr.err) {
			return fr.reason
		}
	}
	return "malformed"
}

func submissionPath(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Submission.Path
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := submissionPath(args)
	preds, err := submission.Read(path)
	if err == nil {
		err = submission.Validate(preds)
	}
	if err != nil {
		reason := failureReason(err)
		manager.RecordValidationFailure(reason)
		logger.Warn("submission rejected", zap.String("path", path), zap.String("reason", reason), zap.Error(err))
		return err
	}
	modes := 0
	for _, p := range preds {
		modes = max(modes, p.NumberOfModes())
	}
	logger.Info("submission valid", zap.String("path", path), zap.Int("predictions", len(preds)), zap.Int("max_modes", modes))
	cmd.Printf("%s: %d valid predictions\n", path, len(preds))
	return nil
}
