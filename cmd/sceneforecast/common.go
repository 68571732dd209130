package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/monte"
	"github.com/Noofbiz/sceneforecast/physics"
	"github.com/Noofbiz/sceneforecast/raster"
	"github.com/Noofbiz/sceneforecast/simple"
	"github.com/Noofbiz/sceneforecast/store"
)

// loadHelper indexes the configured annotations, from CSV or from the store
// when --from-db is set.
func loadHelper(ctx context.Context) (*datasets.Helper, error) {
	var (
		anns []datasets.Annotation
		err  error
	)
	if fromDB {
		var st *store.Store
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		anns, err = st.Annotations(ctx)
	} else {
		anns, err = datasets.LoadAnnotations(cfg.Annotations)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("annotations loaded", zap.Int("count", len(anns)), zap.Bool("from_db", fromDB))
	return datasets.NewHelper(anns,
		datasets.WithLogger(logger),
		datasets.WithSampleFrequency(cfg.SampledAt),
		datasets.WithMaxTimeDiff(cfg.MaxTimeDiff))
}

// loadTokens returns the configured split, or every token with enough history
// and future when no split file is set.
func loadTokens(h *datasets.Helper) ([]string, error) {
	if cfg.SplitPath != "" {
		return datasets.LoadSplit(cfg.SplitPath, cfg.Split)
	}
	return h.PredictionTokens(cfg.SecondsOfHistory, cfg.SecondsOfFuture)
}

func newAgentBoxes(h *datasets.Helper) *raster.AgentBoxes {
	boxes := raster.NewAgentBoxes(h)
	boxes.Resolution = cfg.Raster.Resolution
	boxes.MetersAhead = cfg.Raster.MetersAhead
	boxes.MetersBehind = cfg.Raster.MetersBehind
	boxes.MetersLeft = cfg.Raster.MetersLeft
	boxes.MetersRight = cfg.Raster.MetersRight
	boxes.SecondsOfHistory = cfg.Raster.HistorySeconds
	return boxes
}

func newRepresentation(h *datasets.Helper) *raster.InputRepresentation {
	boxes := newAgentBoxes(h)
	w, ht := boxes.Size()
	return raster.NewInputRepresentation(raster.BlankLayer{Width: w, Height: ht}, boxes, nil)
}

func newFeaturizer(h *datasets.Helper) *simple.Featurizer {
	f := simple.NewFeaturizer(h, cfg.Model.PoolGrid)
	f.Representation = newRepresentation(h)
	return f
}

// newPredictor builds the predictor registered under name.
func newPredictor(name string, h *datasets.Helper) (physics.Predictor, error) {
	switch name {
	case "cvh":
		p := physics.NewConstantVelocityHeading(h)
		p.SecFromNow, p.SampledAt = cfg.SecondsOfFuture, cfg.SampledAt
		return p, nil
	case "oracle":
		p := physics.NewPhysicsOracle(h, logger)
		p.SecFromNow, p.SampledAt = cfg.SecondsOfFuture, cfg.SampledAt
		return p, nil
	case "knn":
		tokens, err := h.PredictionTokens(0, cfg.SecondsOfFuture)
		if err != nil {
			return nil, err
		}
		ds, err := monte.NewHelperDataset(h, tokens, cfg.Timesteps(), monte.Features, logger)
		if err != nil {
			return nil, err
		}
		m, err := monte.NewMonte(ds, cfg.Model.K)
		if err != nil {
			return nil, err
		}
		m.NumSims = cfg.Model.NumSims
		m.Helper = h
		m.Logger = logger
		m.Seed(cfg.Model.Seed)
		return m, nil
	case "mtp", "covernet":
		model, err := simple.LoadModel(cfg.Model.Path)
		if err != nil {
			return nil, err
		}
		model.Logger = logger
		want, err := simple.ParseHead(name)
		if err != nil {
			return nil, err
		}
		if model.Config.Head != want {
			return nil, fmt.Errorf("model at %s has head %s, not %s", cfg.Model.Path, model.Config.Head, want)
		}
		return simple.NewPredictor(model, newFeaturizer(h), cfg.Model.TopK)
	}
	return nil, fmt.Errorf("unknown model %q (want cvh, oracle, knn, mtp or covernet)", name)
}

// serveMetrics exposes the metrics registry until the returned stop function
// is called. It is a no-op without a configured address.
func serveMetrics() func() {
	if cfg.Metrics.Addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", manager.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
