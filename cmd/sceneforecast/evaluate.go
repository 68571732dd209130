package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/eval"
	"github.com/Noofbiz/sceneforecast/prediction"
	"github.com/Noofbiz/sceneforecast/store"
	"github.com/Noofbiz/sceneforecast/submission"
)

var (
	evaluateKs        []int
	evaluateTolerance float64
	evaluateRun       string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Score a submission against the ground truth future",
	Long: `Computes minADE_k, minFDE_k and the miss rate at k for a submission
(default submission.path) or a stored run (--run), using the annotations as
ground truth.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().IntSliceVarP(&evaluateKs, "k", "k", []int{1, 5, 10}, "Values of k to report")
	evaluateCmd.Flags().Float64Var(&evaluateTolerance, "tolerance", eval.DefaultMissTolerance, "Miss distance in meters")
	evaluateCmd.Flags().StringVar(&evaluateRun, "run", "", "Evaluate a run from the SQLite store instead of a file")
}

func loadPredictions(cmd *cobra.Command, args []string) ([]*prediction.Prediction, string, error) {
	if evaluateRun == "" {
		path := submissionPath(args)
		preds, err := submission.Read(path)
		return preds, path, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, "", err
	}
	defer st.Close()
	preds, err := st.LoadPredictions(cmd.Context(), evaluateRun)
	return preds, "run " + evaluateRun, err
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	preds, source, err := loadPredictions(cmd, args)
	if err != nil {
		return err
	}
	h, err := loadHelper(cmd.Context())
	if err != nil {
		return err
	}
	tokens := make([]string, len(preds))
	for i, p := range preds {
		tokens[i] = p.Token()
	}
	gt, err := eval.GroundTruth(h, tokens, cfg.SecondsOfFuture)
	if err != nil {
		return err
	}
	summary, err := eval.Evaluate(preds, gt, evaluateKs, evaluateTolerance)
	if err != nil {
		return err
	}
	manager.RecordSummary(summary)
	logger.Info("evaluation complete",
		zap.String("source", source),
		zap.Int("scored", summary.Count),
		zap.Int("skipped", summary.Skipped))

	ks := append([]int(nil), evaluateKs...)
	sort.Ints(ks)
	cmd.Printf("%s: %d scored, %d skipped\n", source, summary.Count, summary.Skipped)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "k\tminADE\tminFDE\tmiss rate")
	for _, k := range ks {
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.3f\n", k, summary.MinADE[k], summary.MinFDE[k], summary.MissRate[k])
	}
	return w.Flush()
}
