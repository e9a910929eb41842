package cascade

import (
	"fmt"
	"image"

	"face-aligner/internal/descriptor"
	"face-aligner/pkg/geometry"
)

// Predictor applies a trained cascade to fresh images. It holds the model
// read-only together with the descriptor extractor matching the one used in
// training.
type Predictor struct {
	model *Model
	ex    *descriptor.Extractor
}

// NewPredictor creates a predictor for a trained model.
func NewPredictor(model *Model, ex *descriptor.Extractor) (*Predictor, error) {
	if model == nil {
		return nil, fmt.Errorf("nil model")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, fmt.Errorf("nil descriptor extractor")
	}
	return &Predictor{model: model, ex: ex}, nil
}

// Predict refines the model's shape prior on one image by applying every
// stage in training order. A zero-stage model returns the prior unchanged.
// Fully deterministic given a model and an image.
func (p *Predictor) Predict(img *image.Gray) (geometry.Shape, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	current := p.model.Prior.Clone()
	for i, st := range p.model.Stages {
		feat, err := p.ex.Extract(img, current)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		raw, err := st.Regressor.Predict(feat)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		delta, err := geometry.ShapeFromFlat(raw)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		current.AddScaled(delta, st.Damping)
	}
	return current, nil
}

// PredictAll predicts a shape for every image in order.
func (p *Predictor) PredictAll(images []*image.Gray) ([]geometry.Shape, error) {
	out := make([]geometry.Shape, len(images))
	for i, img := range images {
		shape, err := p.Predict(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = shape
	}
	return out, nil
}
