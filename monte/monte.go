// Package monte predicts futures by Monte Carlo sampling the recorded
// futures of the agents whose state is closest to the query agent.
package monte

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/prediction"
)

// SimulationResult holds the future drawn by a single Monte Carlo sample.
type SimulationResult struct {
	// Trajectory is in the query agent's frame.
	Trajectory prediction.Trajectory

	// NeighborIdx is the index of the dataset example that was sampled.
	NeighborIdx int
}

// Dataset is the source of empirical futures.
type Dataset interface {
	Len() int

	// Example returns the features and the agent frame future of example idx.
	Example(idx int) (features []float32, future prediction.Trajectory, err error)
}

// tokenSource is implemented by datasets that know which token each example
// came from, so Predict can skip the query itself.
type tokenSource interface {
	Token(idx int) string
}

// FeatureFunc computes the features of an agent at a sample.
type FeatureFunc func(h *datasets.Helper, instance, sample string) ([]float32, error)

// Monte samples futures of the K nearest dataset examples in feature space.
type Monte struct {
	DS Dataset
	K  int

	// NumSims is the number of draws Predict makes. Default 100.
	NumSims int

	// Jitter is the half width, in meters, of the uniform noise added to each
	// point of a drawn future. Zero keeps draws exact.
	Jitter float64

	// Helper and Features are needed by Predict.
	Helper   *datasets.Helper
	Features FeatureFunc

	Logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMonte creates a new Monte object. ds must be non-nil and k >= 1.
func NewMonte(ds Dataset, k int) (*Monte, error) {
	if ds == nil {
		return nil, errors.New("dataset cannot be nil")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	return &Monte{
		DS:       ds,
		K:        k,
		NumSims:  100,
		Features: Features,
		Logger:   zap.NewNop(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Seed makes subsequent draws reproducible.
func (m *Monte) Seed(seed int64) {
	m.mu.Lock()
	m.rng = rand.New(rand.NewSource(seed))
	m.mu.Unlock()
}

func (m *Monte) seeds(n int) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = m.rng.Int63()
	}
	return out
}

// Simulate runs numSims draws for an agent with the given features:
//  1. Find the K nearest dataset examples in Euclidean feature distance,
//     skipping the example whose token is exclude.
//  2. Sample one neighbour per draw with probability proportional to the
//     inverse distance.
//  3. Return the neighbour's future, perturbed by Jitter.
func (m *Monte) Simulate(features []float32, numSims int, exclude string) ([]SimulationResult, error) {
	if m == nil {
		return nil, errors.New("Monte object is nil")
	}
	if len(features) == 0 {
		return nil, errors.New("features must not be empty")
	}
	if numSims <= 0 {
		return nil, fmt.Errorf("numSims must be > 0")
	}

	neighbors, err := m.knnNeighbors(features, m.K, exclude)
	if err != nil {
		return nil, err
	}

	const eps = 1e-6
	weights := make([]float64, len(neighbors))
	var totalWeight float64
	for i, nb := range neighbors {
		w := 1.0 / (float64(nb.distance) + eps)
		weights[i] = w
		totalWeight += w
	}

	results := make([]SimulationResult, numSims)
	seeds := m.seeds(numSims)

	workerCount := min(runtime.NumCPU(), numSims)
	jobs := make(chan int, numSims)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for sim := range jobs {
				rng := rand.New(rand.NewSource(seeds[sim]))

				target := rng.Float64() * totalWeight
				acc := 0.0
				choice := len(weights) - 1
				for i, w := range weights {
					acc += w
					if target <= acc {
						choice = i
						break
					}
				}
				chosen := neighbors[choice]

				traj := make(prediction.Trajectory, len(chosen.future))
				for i, p := range chosen.future {
					if m.Jitter > 0 {
						p[0] += (rng.Float64()*2.0 - 1.0) * m.Jitter
						p[1] += (rng.Float64()*2.0 - 1.0) * m.Jitter
					}
					traj[i] = p
				}
				results[sim] = SimulationResult{Trajectory: traj, NeighborIdx: chosen.idx}
			}
		}()
	}

	for i := 0; i < numSims; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, nil
}

// Group merges draws of the same neighbour into one mode whose trajectory
// is the mean of the draws and whose probability is their share of all
// draws. At most maxModes modes are kept, most frequent first, and the
// probabilities are renormalized over them.
func Group(results []SimulationResult, maxModes int) ([]prediction.Trajectory, []float64) {
	type mode struct {
		idx   int
		count int
		sum   prediction.Trajectory
	}
	byIdx := make(map[int]*mode)
	var order []*mode
	for _, r := range results {
		md, ok := byIdx[r.NeighborIdx]
		if !ok {
			md = &mode{idx: r.NeighborIdx, sum: make(prediction.Trajectory, len(r.Trajectory))}
			byIdx[r.NeighborIdx] = md
			order = append(order, md)
		}
		md.count++
		for i, p := range r.Trajectory {
			if i < len(md.sum) {
				md.sum[i][0] += p[0]
				md.sum[i][1] += p[1]
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].idx < order[j].idx
	})
	if maxModes > 0 && len(order) > maxModes {
		order = order[:maxModes]
	}

	var total int
	for _, md := range order {
		total += md.count
	}
	trajs := make([]prediction.Trajectory, len(order))
	probs := make([]float64, len(order))
	for i, md := range order {
		n := float64(md.count)
		tr := make(prediction.Trajectory, len(md.sum))
		for t, p := range md.sum {
			tr[t] = prediction.Point{p[0] / n, p[1] / n}
		}
		trajs[i] = tr
		probs[i] = n / float64(total)
	}
	return trajs, probs
}

// Predict implements physics.Predictor. Draws are grouped into at most
// prediction.MaxModes modes and returned in the global frame.
func (m *Monte) Predict(ctx context.Context, token string) (*prediction.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Helper == nil || m.Features == nil {
		return nil, errors.New("monte predictor needs a helper and a feature function")
	}
	inst, samp, err := datasets.SplitToken(token)
	if err != nil {
		return nil, err
	}
	ann, err := m.Helper.GetSampleAnnotation(inst, samp)
	if err != nil {
		return nil, err
	}
	feat, err := m.Features(m.Helper, inst, samp)
	if err != nil {
		return nil, err
	}
	numSims := m.NumSims
	if numSims <= 0 {
		numSims = 100
	}
	results, err := m.Simulate(feat, numSims, token)
	if err != nil {
		return nil, err
	}
	local, probs := Group(results, prediction.MaxModes)
	if m.Logger != nil {
		m.Logger.Debug("monte draws grouped",
			zap.String("token", token),
			zap.Int("draws", numSims),
			zap.Int("modes", len(local)))
	}

	global := make([]prediction.Trajectory, len(local))
	for i, tr := range local {
		global[i] = datasets.ConvertLocalCoordsToGlobal(tr, ann.Translation(), ann.Yaw)
	}
	return prediction.New(inst, samp, global, probs)
}

// neighbor holds a dataset neighbor candidate.
type neighbor struct {
	idx      int
	distance float32
	future   prediction.Trajectory
}

// knnNeighbors performs a linear scan KNN search over the dataset and
// returns up to k neighbors sorted by increasing distance.
func (m *Monte) knnNeighbors(features []float32, k int, exclude string) ([]neighbor, error) {
	n := m.DS.Len()
	if n == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	tokens, _ := m.DS.(tokenSource)

	jobs := make(chan int, n)
	resultsCh := make(chan neighbor, n)

	workerCount := min(runtime.NumCPU(), n)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if exclude != "" && tokens != nil && tokens.Token(i) == exclude {
					continue
				}
				inp, future, err := m.DS.Example(i)
				if err != nil || len(inp) != len(features) || len(future) == 0 {
					continue
				}
				resultsCh <- neighbor{
					idx:      i,
					distance: float32(math.Sqrt(euclideanDistanceSquared(features, inp))),
					future:   future,
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	candidates := make([]neighbor, 0, n)
	for nb := range resultsCh {
		candidates = append(candidates, nb)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no readable examples in dataset")
	}

	// ties broken by index so results do not depend on worker scheduling
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].idx < candidates[j].idx
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// euclideanDistanceSquared computes squared Euclidean distance between two equal-length float32 slices.
func euclideanDistanceSquared(a, b []float32) float64 {
	sum := 0.0
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}
