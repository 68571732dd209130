package main

// Example command that walks through the prediction helper: lazily loading
// annotations, querying an agent's past and future, estimating its
// kinematics, making a baseline prediction, rasterizing the agent's
// surroundings, and packing a small batch into gomlx tensors.
//
// Usage:
//   go run ./datasets/example [annotations glob]
//
// The default glob is annotations/*.csv. Files need the columns
// instance_token, sample_token, scene_token, timestamp, x, y and yaw.

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/physics"
	"github.com/Noofbiz/sceneforecast/raster"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	pattern := "annotations/*.csv"
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	// The dataset only records file paths and row counts until rows are asked for.
	ds, err := datasets.NewAnnotationDataset(pattern)
	if err != nil {
		log.Fatalf("failed to open annotation dataset: %v", err)
	}
	fmt.Printf("Using annotation CSV pattern: %s (%d files)\n", pattern, len(ds.Files()))
	fmt.Printf("Total annotations available: %d\n", ds.Len())

	anns, err := ds.All()
	if err != nil {
		log.Fatalf("failed to read annotations: %v", err)
	}
	h, err := datasets.NewHelper(anns, datasets.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to index annotations: %v", err)
	}

	tokens, err := h.PredictionTokens(2, 6)
	if err != nil {
		log.Fatalf("failed to list prediction tokens: %v", err)
	}
	if len(tokens) == 0 {
		log.Fatalf("no agent has 2 s of history and 6 s of future")
	}
	fmt.Printf("Agents with 2 s of history and 6 s of future: %d\n\n", len(tokens))

	token := tokens[0]
	inst, samp, err := datasets.SplitToken(token)
	if err != nil {
		log.Fatal(err)
	}
	ann, err := h.GetSampleAnnotation(inst, samp)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Agent %s at sample %s: %s at (%.2f, %.2f), yaw %.2f\n", inst, samp, ann.Category, ann.X, ann.Y, ann.Yaw)

	// Global coordinates.
	past, err := h.GetPastForAgent(inst, samp, 2, false)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  Past 2 s (global, most recent first): %v\n", past)

	// The agent frame puts the agent at the origin facing +y.
	future, err := h.GetFutureForAgent(inst, samp, 6, true)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  Future 6 s (agent frame): %v\n", future)

	others, err := h.GetAnnotationsForSample(samp)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  Agents present at the same sample: %d\n", len(others))

	v, err := h.GetVelocityForAgent(inst, samp)
	if err != nil {
		log.Fatalf("failed to estimate velocity: %v", err)
	}
	a, err := h.GetAccelerationForAgent(inst, samp)
	if err != nil {
		log.Fatalf("failed to estimate acceleration: %v", err)
	}
	w, err := h.GetHeadingChangeRateForAgent(inst, samp)
	if err != nil {
		log.Fatalf("failed to estimate heading change rate: %v", err)
	}
	fmt.Printf("  Velocity %.2f m/s, acceleration %.2f m/s², heading change rate %.3f rad/s\n\n", v, a, w)

	// Baselines produce one mode with probability 1.
	cv := physics.NewConstantVelocityHeading(h)
	p, err := cv.Predict(context.Background(), token)
	if err != nil {
		log.Fatalf("constant velocity prediction failed: %v", err)
	}
	truth, err := groundTruth(h, inst, samp, 6)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Constant velocity and heading prediction: %d mode(s), %d timesteps\n", p.NumberOfModes(), p.Timesteps())
	fmt.Printf("  Last point %v vs ground truth %v\n", p.Trajectories[0][p.Timesteps()-1], truth[len(truth)-1])

	oracle := physics.NewPhysicsOracle(h, logger)
	op, err := oracle.Predict(context.Background(), token)
	if err != nil {
		log.Fatalf("oracle prediction failed: %v", err)
	}
	fmt.Printf("Physics oracle average displacement: %.3f m\n\n",
		physics.AverageDisplacement(op.Trajectories[0], truth))

	// Input representation: agent boxes over a blank map.
	boxes := raster.NewAgentBoxes(h)
	width, height := boxes.Size()
	rep := raster.NewInputRepresentation(raster.BlankLayer{Width: width, Height: height}, boxes, nil)
	img, err := rep.MakeInputRepresentation(inst, samp)
	if err != nil {
		log.Fatalf("failed to rasterize: %v", err)
	}
	t := raster.ToTensor(img)
	fmt.Printf("Input representation: %dx%d image, tensor shape %v\n", width, height, t.Shape())
	if err := raster.WritePNG("example_raster.png", img); err != nil {
		log.Fatalf("failed to write png: %v", err)
	}
	fmt.Println("  Wrote example_raster.png")

	// Batch: pooled raster features as inputs, agent frame futures as labels.
	n := min(8, len(tokens))
	inputs := make([][]float32, 0, n)
	labels := make([][]float32, 0, n)
	for _, tok := range tokens[:n] {
		i, s, err := datasets.SplitToken(tok)
		if err != nil {
			log.Fatal(err)
		}
		img, err := rep.MakeInputRepresentation(i, s)
		if err != nil {
			log.Fatal(err)
		}
		pooled, err := raster.AveragePool(img, 4)
		if err != nil {
			log.Fatal(err)
		}
		fut, err := h.GetFutureForAgent(i, s, 6, true)
		if err != nil {
			log.Fatal(err)
		}
		label := make([]float32, 0, 2*len(fut))
		for _, pt := range fut {
			label = append(label, float32(pt[0]), float32(pt[1]))
		}
		inputs = append(inputs, pooled)
		labels = append(labels, label)
	}
	flat, err := datasets.MakeBatchFlat(inputs, labels)
	if err != nil {
		log.Fatalf("failed to make batch flat: %v", err)
	}
	inT, laT, err := flat.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("\nCreated batch tensors: input %v, label %v\n", inT.Shape(), laT.Shape())

	fmt.Println("\nExample completed successfully!")
}

// groundTruth returns the agent's future in global coordinates. An agent with
// no recorded future is an error.
func groundTruth(h *datasets.Helper, inst, samp string, seconds float64) ([]datasets.Point, error) {
	fut, err := h.GetFutureForAgent(inst, samp, seconds, false)
	if err != nil {
		return nil, fmt.Errorf("future of %s_%s: %w", inst, samp, err)
	}
	if len(fut) == 0 {
		return nil, fmt.Errorf("no future for %s_%s", inst, samp)
	}
	return fut, nil
}
