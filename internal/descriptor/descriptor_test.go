package descriptor

import (
	"image"
	"image/color"
	"math"
	"testing"

	"face-aligner/pkg/geometry"
)

// gradientImage returns a test image with a horizontal intensity ramp.
func gradientImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / (w - 1))})
		}
	}
	return img
}

func TestHOGDimension(t *testing.T) {
	hog, err := NewHOG(DefaultHOGParams())
	if err != nil {
		t.Fatalf("NewHOG: %v", err)
	}
	if hog.Dim() != 128 {
		t.Errorf("Dim = %d, want 128", hog.Dim())
	}

	img := gradientImage(64, 64)
	d, err := hog.Compute(img, geometry.NewPoint2D(32, 32), 10)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(d) != hog.Dim() {
		t.Errorf("descriptor length = %d, want %d", len(d), hog.Dim())
	}
}

func TestHOGOutOfBoundsClamping(t *testing.T) {
	hog, err := NewHOG(DefaultHOGParams())
	if err != nil {
		t.Fatalf("NewHOG: %v", err)
	}
	img := gradientImage(32, 32)

	// Points far outside the image must not fail; the sampling region is
	// clamped to the border pixels.
	for _, p := range []geometry.Point2D{
		{X: -100, Y: -100},
		{X: 1000, Y: 16},
		{X: 16, Y: -50},
	} {
		d, err := hog.Compute(img, p, 10)
		if err != nil {
			t.Errorf("Compute at %v: %v", p, err)
			continue
		}
		if len(d) != hog.Dim() {
			t.Errorf("descriptor at %v has length %d, want %d", p, len(d), hog.Dim())
		}
	}
}

func TestHOGDeterminism(t *testing.T) {
	hog, _ := NewHOG(DefaultHOGParams())
	img := gradientImage(48, 48)
	p := geometry.NewPoint2D(20.3, 17.8)

	a, err := hog.Compute(img, p, 10)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := hog.Compute(img, p, 10)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("descriptor differs at %d: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestHOGNormalized(t *testing.T) {
	hog, _ := NewHOG(DefaultHOGParams())
	img := gradientImage(48, 48)

	d, err := hog.Compute(img, geometry.NewPoint2D(24, 24), 12)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	var sum float64
	for _, v := range d {
		sum += v * v
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-9 {
		t.Errorf("descriptor norm = %g, want 1", math.Sqrt(sum))
	}
}

// constBackend returns a fixed descriptor regardless of input.
type constBackend struct {
	dim int
	bad bool // report a different length than Dim claims
}

func (c *constBackend) Dim() int { return c.dim }

func (c *constBackend) Compute(img *image.Gray, center geometry.Point2D, size float64) ([]float64, error) {
	n := c.dim
	if c.bad {
		n++
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out, nil
}

func TestExtractorConcatenatesInLandmarkOrder(t *testing.T) {
	ex, err := NewExtractor(&constBackend{dim: 3}, 10, 0.5)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	if ex.Size() != 5 {
		t.Errorf("Size = %g, want 5", ex.Size())
	}

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	shape := geometry.Shape{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}, {X: 5, Y: 5}}

	feat, err := ex.Extract(img, shape)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(feat) != ex.Dim(len(shape)) {
		t.Errorf("feature length = %d, want %d", len(feat), ex.Dim(len(shape)))
	}
	if len(feat) != 15 {
		t.Errorf("feature length = %d, want K*D = 15", len(feat))
	}
}

func TestExtractorLengthMismatchIsFatal(t *testing.T) {
	ex, err := NewExtractor(&constBackend{dim: 3, bad: true}, 10, 1)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	if _, err := ex.Extract(img, geometry.Shape{{X: 1, Y: 1}}); err == nil {
		t.Error("expected error for descriptor length mismatch")
	}
}

func TestExtractorConfigErrors(t *testing.T) {
	if _, err := NewExtractor(nil, 10, 1); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := NewExtractor(&constBackend{dim: 3}, 0, 1); err == nil {
		t.Error("expected error for zero support size")
	}

	ex, _ := NewExtractor(&constBackend{dim: 3}, 10, 1)
	if _, err := ex.Extract(nil, geometry.Shape{{X: 1, Y: 1}}); err == nil {
		t.Error("expected error for nil image")
	}
	if _, err := ex.Extract(image.NewGray(image.Rect(0, 0, 4, 4)), nil); err == nil {
		t.Error("expected error for empty shape")
	}
}
