// Package descriptor computes local appearance descriptors at landmark
// positions. An Extractor concatenates one fixed-length descriptor per
// landmark into a single feature vector for the whole shape.
package descriptor

import (
	"fmt"
	"image"

	"face-aligner/pkg/geometry"
)

// Backend computes a fixed-length appearance descriptor around one point.
// Implementations must be deterministic and must tolerate points near or
// outside the image bounds by clamping their sampling region.
type Backend interface {
	// Dim returns the descriptor length, constant across all calls.
	Dim() int

	// Compute returns the descriptor for the support region of the given
	// size centered on the point.
	Compute(img *image.Gray, center geometry.Point2D, size float64) ([]float64, error)
}

// Extractor produces whole-shape feature vectors from a descriptor backend.
// The support size is fixed at construction: a base size in original-image
// pixels multiplied by the active processing scale, so the descriptor covers
// a physically consistent patch regardless of preprocessing resolution.
type Extractor struct {
	backend Backend
	size    float64
}

// NewExtractor creates an extractor with support size baseSize*scale.
func NewExtractor(backend Backend, baseSize, scale float64) (*Extractor, error) {
	if backend == nil {
		return nil, fmt.Errorf("nil descriptor backend")
	}
	if backend.Dim() < 1 {
		return nil, fmt.Errorf("descriptor backend reports dimension %d", backend.Dim())
	}
	size := baseSize * scale
	if size <= 0 {
		return nil, fmt.Errorf("invalid support size %g (base %g, scale %g)", size, baseSize, scale)
	}
	return &Extractor{backend: backend, size: size}, nil
}

// Size returns the support-region size in pixels at the active scale.
func (e *Extractor) Size() float64 {
	return e.size
}

// Dim returns the length of the concatenated feature vector for a shape
// with k landmarks.
func (e *Extractor) Dim(k int) int {
	return k * e.backend.Dim()
}

// Extract computes the concatenated feature vector for a shape. A backend
// failure is a configuration error: it would change the feature length and
// break every downstream stage, so it is fatal rather than skipped.
func (e *Extractor) Extract(img *image.Gray, shape geometry.Shape) ([]float64, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("empty shape")
	}

	dim := e.backend.Dim()
	out := make([]float64, 0, len(shape)*dim)
	for i, p := range shape {
		d, err := e.backend.Compute(img, p, e.size)
		if err != nil {
			return nil, fmt.Errorf("descriptor at landmark %d: %w", i, err)
		}
		if len(d) != dim {
			return nil, fmt.Errorf("descriptor at landmark %d has length %d, want %d", i, len(d), dim)
		}
		out = append(out, d...)
	}
	return out, nil
}
