package cascade

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"face-aligner/internal/descriptor"
	"face-aligner/internal/regress"
	"face-aligner/pkg/geometry"
)

// Config holds the training configuration, fixed before training starts.
type Config struct {
	// Damping is the per-stage damping schedule; its length is the number
	// of cascade stages.
	Damping []float64

	// Workers bounds the parallel per-sample feature extraction within a
	// stage. Zero means one worker per CPU. Parallelism does not change
	// results: samples are independent within a stage.
	Workers int

	// Extractor is recorded in the trained model for prediction-time
	// reconstruction of the descriptor backend.
	Extractor ExtractorConfig
}

// Trainer builds a cascade model from training images and ground-truth
// shapes.
type Trainer struct {
	ex  *descriptor.Extractor
	cfg Config
}

// NewTrainer creates a trainer. The damping schedule must contain only
// positive factors; an empty schedule trains a zero-stage cascade.
func NewTrainer(ex *descriptor.Extractor, cfg Config) (*Trainer, error) {
	if ex == nil {
		return nil, fmt.Errorf("nil descriptor extractor")
	}
	for i, d := range cfg.Damping {
		if d <= 0 {
			return nil, fmt.Errorf("damping factor %d is %g, must be positive", i, d)
		}
	}
	return &Trainer{ex: ex, cfg: cfg}, nil
}

// TrainCascade is the one-call training entry point.
func TrainCascade(ex *descriptor.Extractor, images []*image.Gray, truth []geometry.Shape, damping []float64) (*Model, error) {
	t, err := NewTrainer(ex, Config{Damping: damping})
	if err != nil {
		return nil, err
	}
	return t.Train(images, truth)
}

// Train fits one stage regressor per damping factor. Per stage: extract
// features at every sample's current shape, regress the damped residuals to
// the ground truth, then advance every current shape by the damped regressor
// output. Any failure aborts the build; no partial model is returned.
func (t *Trainer) Train(images []*image.Gray, truth []geometry.Shape) (*Model, error) {
	n := len(images)
	if n == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	if len(truth) != n {
		return nil, fmt.Errorf("image/shape count mismatch: %d vs %d", n, len(truth))
	}
	for i, img := range images {
		if img == nil {
			return nil, fmt.Errorf("training image %d is nil", i)
		}
	}

	prior, err := geometry.MeanShape(truth)
	if err != nil {
		return nil, fmt.Errorf("shape prior: %w", err)
	}

	// Per-sample working buffers; fresh copies so the shared prior is
	// never aliased or mutated.
	current := make([]geometry.Shape, n)
	for j := range current {
		current[j] = prior.Clone()
	}

	model := &Model{
		Version:    1,
		Prior:      prior.Clone(),
		Stages:     make([]Stage, 0, len(t.cfg.Damping)),
		Descriptor: t.cfg.Extractor,
	}

	for i, d := range t.cfg.Damping {
		feats := make([][]float64, n)
		targets := make([][]float64, n)

		err := t.forEachSample(n, func(j int) error {
			f, err := t.ex.Extract(images[j], current[j])
			if err != nil {
				return fmt.Errorf("sample %d: %w", j, err)
			}
			feats[j] = f
			targets[j] = truth[j].Sub(current[j]).Scale(d).Flatten()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("stage %d features: %w", i, err)
		}

		reg, err := regress.Fit(feats, targets)
		if err != nil {
			return nil, fmt.Errorf("stage %d fit: %w", i, err)
		}
		model.Stages = append(model.Stages, Stage{Regressor: reg, Damping: d})

		// Advance every sample's working shape with the damped output of
		// the regressor that was just fitted, on the same features.
		err = t.forEachSample(n, func(j int) error {
			raw, err := reg.Predict(feats[j])
			if err != nil {
				return fmt.Errorf("sample %d: %w", j, err)
			}
			delta, err := geometry.ShapeFromFlat(raw)
			if err != nil {
				return fmt.Errorf("sample %d: %w", j, err)
			}
			current[j].AddScaled(delta, d)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("stage %d update: %w", i, err)
		}
	}

	return model, nil
}

// forEachSample runs fn for every sample index, striped across workers.
// The first error wins; all workers run to completion.
func (t *Trainer) forEachSample(n int, fn func(j int) error) error {
	workers := t.cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for j := 0; j < n; j++ {
			if err := fn(j); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, n)
	perWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				errs[j] = fn(j)
			}
		}(start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
