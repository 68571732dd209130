package physics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/sceneforecast/prediction"
)

// Observer is notified after each prediction. metrics.Manager satisfies it.
type Observer interface {
	ObservePrediction(model string, d time.Duration)
}

// Runner fans prediction requests out over a bounded set of goroutines.
type Runner struct {
	Model     string
	Predictor Predictor
	Workers   int
	Logger    *zap.Logger
	Observer  Observer
}

// Run predicts every token. The output has the same order as tokens and the
// first error cancels the remaining work.
func (r *Runner) Run(ctx context.Context, tokens []string) ([]*prediction.Prediction, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]*prediction.Prediction, len(tokens))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tok := range tokens {
		g.Go(func() error {
			start := time.Now()
			p, err := r.Predictor.Predict(ctx, tok)
			if err != nil {
				return fmt.Errorf("predict %s: %w", tok, err)
			}
			if r.Observer != nil {
				r.Observer.ObservePrediction(r.Model, time.Since(start))
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Info("predictions complete",
		zap.String("model", r.Model),
		zap.Int("count", len(out)),
		zap.Int("workers", workers))
	return out, nil
}
