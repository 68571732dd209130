package simple

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// snapshot is the on-disk form of a Model.
type snapshot struct {
	Config     Config
	LayerSizes []int
	Weights    [][][]float32
	Biases     [][]float32
}

// SaveModel writes m to path as gzip compressed gob.
func SaveModel(path string, m *Model) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	zw := gzip.NewWriter(f)
	snap := snapshot{Config: m.Config, LayerSizes: m.layerSizes, Weights: m.weights, Biases: m.biases}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return zw.Close()
}

// LoadModel reads a model written by SaveModel.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer zr.Close()

	var snap snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(snap.LayerSizes) < 2 || len(snap.Weights) != len(snap.LayerSizes)-1 {
		return nil, fmt.Errorf("model file %s is malformed", path)
	}
	want, err := snap.Config.outputDim()
	if err != nil {
		return nil, err
	}
	if got := snap.LayerSizes[len(snap.LayerSizes)-1]; got != want {
		return nil, fmt.Errorf("model output has %d units, head %s expects %d", got, snap.Config.Head, want)
	}
	return &Model{
		Config:     snap.Config,
		Logger:     zap.NewNop(),
		layerSizes: snap.LayerSizes,
		weights:    snap.Weights,
		biases:     snap.Biases,
		rng:        rand.New(rand.NewSource(snap.Config.Seed)),
	}, nil
}
