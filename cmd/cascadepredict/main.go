// Command cascadepredict applies a trained cascade model to a directory of
// images. Predictions are written as a CSV of original-resolution
// coordinates, optionally with landmark overlay images.
//
// Usage: cascadepredict <model.json> <images-dir> [options]
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"face-aligner/internal/cascade"
	"face-aligner/internal/dataset"
	"face-aligner/internal/export"
	"face-aligner/internal/preprocess"
)

var (
	flagCSV     = flag.String("csv", "results.csv", "Output CSV file")
	flagOverlay = flag.String("overlay", "", "Directory for overlay PNGs (empty = skip)")
	flagVerbose = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <model.json> <images-dir> [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	modelPath := flag.Arg(0)
	imagesDir := flag.Arg(1)

	fmt.Printf("Loading model: %s\n", modelPath)
	model, err := cascade.LoadModel(modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  %d stages, %d landmarks, scale %.3g\n",
		len(model.Stages), model.K(), model.Descriptor.Scale)

	ex, err := model.Descriptor.NewExtractor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building descriptor extractor: %v\n", err)
		os.Exit(1)
	}
	predictor, err := cascade.NewPredictor(model, ex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building predictor: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loading images: %s\n", imagesDir)
	images, paths, err := dataset.LoadImages(imagesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading images: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  %d images\n", len(images))

	scaled, err := preprocess.DownscaleAll(images, model.Descriptor.Scale)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preprocessing images: %v\n", err)
		os.Exit(1)
	}

	predictions, err := predictor.PredictAll(scaled)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error predicting: %v\n", err)
		os.Exit(1)
	}

	// Back to original-image coordinates.
	predictions = preprocess.RescaleShapes(predictions, 1/model.Descriptor.Scale)

	if *flagVerbose {
		for i, shape := range predictions {
			fmt.Printf("  %s: %v\n", filepath.Base(paths[i]), shape)
		}
	}

	if err := export.SaveCSV(*flagCSV, predictions); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d predictions to %s\n", len(predictions), *flagCSV)

	if *flagOverlay != "" {
		red := color.RGBA{R: 255, A: 255}
		for i, img := range images {
			base := strings.TrimSuffix(filepath.Base(paths[i]), filepath.Ext(paths[i]))
			out := filepath.Join(*flagOverlay, base+"_landmarks.png")
			if err := export.SaveOverlayPNG(out, img, predictions[i], red); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing overlay for %s: %v\n", paths[i], err)
				os.Exit(1)
			}
		}
		fmt.Printf("Wrote %d overlays to %s\n", len(images), *flagOverlay)
	}
}
