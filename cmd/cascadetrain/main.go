// Command cascadetrain trains a cascaded landmark regression model from an
// annotated dataset. It reports held-out validation error, retrains on the
// full dataset, and writes the model file used by cascadepredict.
//
// Usage: cascadetrain <shapes.json> [options]
package main

import (
	"flag"
	"fmt"
	"os"

	"face-aligner/internal/cascade"
	"face-aligner/internal/dataset"
	"face-aligner/internal/descriptor"
	"face-aligner/internal/metrics"
	"face-aligner/internal/preprocess"
	"face-aligner/internal/version"
	"face-aligner/pkg/geometry"
)

var (
	flagModel    = flag.String("model", "lib/cascade.json", "Output model file")
	flagStages   = flag.Int("stages", 5, "Number of cascade stages")
	flagScale    = flag.Float64("scale", 0.25, "Downscale factor applied to all images and shapes")
	flagBaseSize = flag.Float64("base-size", 10, "Descriptor support size in original-image pixels")
	flagDampFrom = flag.Float64("damp-from", 1.0, "Damping factor of the first stage")
	flagDampTo   = flag.Float64("damp-to", 0.1, "Damping factor of the last stage")
	flagCells    = flag.Int("cells", 4, "Descriptor cells per patch side")
	flagBins     = flag.Int("bins", 8, "Descriptor orientation bins")
	flagSplit    = flag.Float64("split", 0.2, "Validation fraction (0 disables validation)")
	flagSeed     = flag.Int64("seed", 69, "Random seed for the train/validation split")
	flagParallel = flag.Int("j", 0, "Parallel workers per stage (0 = all CPUs)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s <shapes.json> [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("cascadetrain v%s\n", version.Version)

	shapesPath := flag.Arg(0)
	fmt.Printf("Loading dataset: %s\n", shapesPath)
	set, err := dataset.Load(shapesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading dataset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  %d samples, %d landmarks\n", len(set.Samples), set.K)

	exCfg := cascade.ExtractorConfig{
		BaseSize: *flagBaseSize,
		Scale:    *flagScale,
		HOG:      descriptor.HOGParams{Cells: *flagCells, Bins: *flagBins},
	}
	damping := cascade.LinearSchedule(*flagStages, *flagDampFrom, *flagDampTo)
	fmt.Printf("Damping schedule: %v\n", damping)

	// Held-out validation before the final full-data train.
	if *flagSplit > 0 {
		trainSet, valSet, err := set.Split(*flagSplit, *flagSeed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error splitting dataset: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Validation split: %d train / %d held out (seed %d)\n",
			len(trainSet.Samples), len(valSet.Samples), *flagSeed)

		model, err := train(trainSet, exCfg, damping)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error training validation model: %v\n", err)
			os.Exit(1)
		}

		pred, truth, err := predictSet(model, valSet)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error predicting validation set: %v\n", err)
			os.Exit(1)
		}
		summary, err := metrics.Summarize(pred, truth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error computing validation error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Validation (at scale %.3g): mean dist %.3f px, max dist %.3f px, MSE %.3f\n",
			*flagScale, summary.MeanDistance, summary.MaxDistance, summary.MSE)
	}

	fmt.Printf("Training final model on all %d samples...\n", len(set.Samples))
	model, err := train(set, exCfg, damping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error training: %v\n", err)
		os.Exit(1)
	}

	if err := model.Save(*flagModel); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving model: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d-stage model to %s\n", len(model.Stages), *flagModel)
}

// train preprocesses a sample set and fits a cascade on it.
func train(set *dataset.Set, exCfg cascade.ExtractorConfig, damping []float64) (*cascade.Model, error) {
	images, err := preprocess.DownscaleAll(set.Images(), exCfg.Scale)
	if err != nil {
		return nil, err
	}
	shapes := preprocess.RescaleShapes(set.Shapes(), exCfg.Scale)

	ex, err := exCfg.NewExtractor()
	if err != nil {
		return nil, err
	}
	trainer, err := cascade.NewTrainer(ex, cascade.Config{
		Damping:   damping,
		Workers:   *flagParallel,
		Extractor: exCfg,
	})
	if err != nil {
		return nil, err
	}
	return trainer.Train(images, shapes)
}

// predictSet runs the model over a sample set and returns predictions and
// ground truth at the model's processing scale.
func predictSet(model *cascade.Model, set *dataset.Set) (pred, truth []geometry.Shape, err error) {
	images, err := preprocess.DownscaleAll(set.Images(), model.Descriptor.Scale)
	if err != nil {
		return nil, nil, err
	}
	ex, err := model.Descriptor.NewExtractor()
	if err != nil {
		return nil, nil, err
	}
	p, err := cascade.NewPredictor(model, ex)
	if err != nil {
		return nil, nil, err
	}
	pred, err = p.PredictAll(images)
	if err != nil {
		return nil, nil, err
	}
	return pred, preprocess.RescaleShapes(set.Shapes(), model.Descriptor.Scale), nil
}
