// Package cascade implements cascaded shape regression: a sequence of linear
// stage regressors that iteratively refine landmark positions, starting from
// the mean training shape, by predicting damped corrections from appearance
// descriptors sampled at the current estimate.
package cascade

import (
	"fmt"

	"face-aligner/internal/descriptor"
	"face-aligner/internal/regress"
	"face-aligner/pkg/geometry"

	"gonum.org/v1/gonum/floats"
)

// Stage pairs a fitted regressor with the damping factor it was trained
// with. The same factor scales both the regression targets at training time
// and the raw regressor output at update time, so a stage's effective
// correction carries the factor twice. That compounding is part of the
// trained model and must match between training and prediction.
type Stage struct {
	Regressor *regress.Regressor `json:"regressor"`
	Damping   float64            `json:"damping"`
}

// ExtractorConfig records the descriptor configuration a model was trained
// with, so prediction cannot run with a mismatched extractor.
type ExtractorConfig struct {
	BaseSize float64              `json:"base_size"`
	Scale    float64              `json:"scale"`
	HOG      descriptor.HOGParams `json:"hog"`
}

// NewExtractor builds the extractor described by the configuration.
func (c ExtractorConfig) NewExtractor() (*descriptor.Extractor, error) {
	hog, err := descriptor.NewHOG(c.HOG)
	if err != nil {
		return nil, err
	}
	return descriptor.NewExtractor(hog, c.BaseSize, c.Scale)
}

// Model is the trained cascade: the shape prior used as the universal
// initial guess, the ordered stage regressors, and the descriptor
// configuration. Read-only after training.
type Model struct {
	Version    int             `json:"version"`
	Prior      geometry.Shape  `json:"prior"`
	Stages     []Stage         `json:"stages"`
	Descriptor ExtractorConfig `json:"descriptor"`
}

// K returns the landmark count.
func (m *Model) K() int {
	return len(m.Prior)
}

// Validate checks the internal consistency of a model, typically after
// loading it from disk.
func (m *Model) Validate() error {
	if len(m.Prior) == 0 {
		return fmt.Errorf("model has no shape prior")
	}
	want := 2 * len(m.Prior)
	for i, st := range m.Stages {
		if st.Regressor == nil {
			return fmt.Errorf("stage %d has no regressor", i)
		}
		if err := st.Regressor.Validate(); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
		if st.Regressor.OutDim != want {
			return fmt.Errorf("stage %d predicts %d outputs, want %d", i, st.Regressor.OutDim, want)
		}
		if st.Damping <= 0 {
			return fmt.Errorf("stage %d has non-positive damping %g", i, st.Damping)
		}
	}
	return nil
}

// LinearSchedule returns numStages damping factors linearly spaced from
// `from` down to `to` (the reference run uses 1.0 to 0.1). A single stage
// gets `from`.
func LinearSchedule(numStages int, from, to float64) []float64 {
	if numStages < 1 {
		return nil
	}
	if numStages == 1 {
		return []float64{from}
	}
	return floats.Span(make([]float64, numStages), from, to)
}
