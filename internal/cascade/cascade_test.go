package cascade

import (
	"encoding/json"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"face-aligner/internal/descriptor"
	"face-aligner/internal/regress"
	"face-aligner/pkg/geometry"
)

// flatImage returns a constant-intensity image.
func flatImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// intensityBackend describes a point by the image's intensity only. With
// constant-intensity images this gives every sample a distinct scalar
// feature, so a linear regressor can recover affine targets exactly.
type intensityBackend struct{}

func (intensityBackend) Dim() int { return 1 }

func (intensityBackend) Compute(img *image.Gray, center geometry.Point2D, size float64) ([]float64, error) {
	return []float64{float64(img.GrayAt(img.Bounds().Min.X, img.Bounds().Min.Y).Y)}, nil
}

// positionBackend additionally sees the current landmark position, making
// stage updates depend on the shape estimate they start from.
type positionBackend struct{}

func (positionBackend) Dim() int { return 3 }

func (positionBackend) Compute(img *image.Gray, center geometry.Point2D, size float64) ([]float64, error) {
	v := float64(img.GrayAt(img.Bounds().Min.X, img.Bounds().Min.Y).Y)
	return []float64{v, center.X, center.Y}, nil
}

func newTestExtractor(t *testing.T, b descriptor.Backend) *descriptor.Extractor {
	t.Helper()
	ex, err := descriptor.NewExtractor(b, 10, 1)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return ex
}

// affineDataset builds images with intensities 40, 80, 120, ... and truth
// shapes affine in the intensity, so a one-feature linear fit is exact.
func affineDataset(n int) ([]*image.Gray, []geometry.Shape) {
	images := make([]*image.Gray, n)
	truth := make([]geometry.Shape, n)
	for i := 0; i < n; i++ {
		v := uint8(40 * (i + 1))
		images[i] = flatImage(16, 16, v)
		truth[i] = geometry.Shape{
			{X: 2 + 0.05*float64(v), Y: 3 + 0.025*float64(v)},
			{X: 10 - 0.05*float64(v), Y: 7 + 0.05*float64(v)},
		}
	}
	return images, truth
}

func shapeClose(a, b geometry.Shape, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i].X-b[i].X) > tol || math.Abs(a[i].Y-b[i].Y) > tol {
			return false
		}
	}
	return true
}

func TestZeroStagesReturnsPrior(t *testing.T) {
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(3)

	model, err := TrainCascade(ex, images, truth, nil)
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}
	if len(model.Stages) != 0 {
		t.Fatalf("stages = %d, want 0", len(model.Stages))
	}

	prior, err := geometry.MeanShape(truth)
	if err != nil {
		t.Fatalf("MeanShape: %v", err)
	}

	p, err := NewPredictor(model, ex)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}
	got, err := p.Predict(flatImage(16, 16, 200))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !shapeClose(got, prior, 0) {
		t.Errorf("zero-stage prediction = %v, want prior %v", got, prior)
	}
}

func TestEndToEndConvergence(t *testing.T) {
	// One stage, damping 1.0, zero-noise affine targets: the fit recovers
	// the targets exactly and prediction lands on the ground truth, also
	// for a held-out intensity on the same affine map.
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(3)

	model, err := TrainCascade(ex, images, truth, []float64{1.0})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}
	p, err := NewPredictor(model, ex)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}

	for i, img := range images {
		got, err := p.Predict(img)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if !shapeClose(got, truth[i], 1e-6) {
			t.Errorf("sample %d: got %v, want %v", i, got, truth[i])
		}
	}

	// Held-out image with intensity 100 (inside the training range).
	heldOut := flatImage(16, 16, 100)
	want := geometry.Shape{
		{X: 2 + 0.05*100, Y: 3 + 0.025*100},
		{X: 10 - 0.05*100, Y: 7 + 0.05*100},
	}
	got, err := p.Predict(heldOut)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !shapeClose(got, want, 1e-6) {
		t.Errorf("held-out: got %v, want %v", got, want)
	}
}

func TestDampingCompounding(t *testing.T) {
	// With damping d the stage target is pre-scaled by d and the regressor
	// output is scaled by d again at update time, so an exact fit moves
	// the shape by d*d of the residual.
	const d = 0.5
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(3)

	model, err := TrainCascade(ex, images, truth, []float64{d})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}
	p, err := NewPredictor(model, ex)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}

	prior, _ := geometry.MeanShape(truth)
	for i, img := range images {
		got, err := p.Predict(img)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		want := prior.Clone()
		want.AddScaled(truth[i].Sub(prior), d*d)
		if !shapeClose(got, want, 1e-6) {
			t.Errorf("sample %d: got %v, want prior + d^2*residual = %v", i, got, want)
		}
	}
}

func TestStageOrderingMatters(t *testing.T) {
	ex := newTestExtractor(t, positionBackend{})
	images, truth := affineDataset(4)

	model, err := TrainCascade(ex, images, truth, []float64{0.8, 0.4})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}

	swapped := &Model{
		Version: model.Version,
		Prior:   model.Prior.Clone(),
		Stages:  []Stage{model.Stages[1], model.Stages[0]},
	}

	p1, err := NewPredictor(model, ex)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}
	p2, err := NewPredictor(swapped, ex)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}

	a, err := p1.Predict(images[0])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	b, err := p2.Predict(images[0])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if shapeClose(a, b, 1e-9) {
		t.Error("reordered stages produced identical predictions")
	}
}

func TestPredictionDeterminism(t *testing.T) {
	ex := newTestExtractor(t, positionBackend{})
	images, truth := affineDataset(4)

	model, err := TrainCascade(ex, images, truth, []float64{0.9, 0.5})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}
	p, err := NewPredictor(model, ex)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}

	a, err := p.Predict(images[1])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	b, err := p.Predict(images[1])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeated prediction differs at landmark %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestParallelTrainingMatchesSequential(t *testing.T) {
	images, truth := affineDataset(6)

	var models [2]*Model
	for i, workers := range []int{1, 4} {
		ex := newTestExtractor(t, positionBackend{})
		tr, err := NewTrainer(ex, Config{Damping: []float64{0.7, 0.3}, Workers: workers})
		if err != nil {
			t.Fatalf("NewTrainer: %v", err)
		}
		m, err := tr.Train(images, truth)
		if err != nil {
			t.Fatalf("Train (workers=%d): %v", workers, err)
		}
		models[i] = m
	}

	a, _ := json.Marshal(models[0])
	b, _ := json.Marshal(models[1])
	if string(a) != string(b) {
		t.Error("parallel training produced a different model than sequential")
	}
}

func TestTrainSingleSample(t *testing.T) {
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(1)

	model, err := TrainCascade(ex, images, truth, []float64{1.0})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}
	if len(model.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(model.Stages))
	}
}

func TestTrainConfigErrors(t *testing.T) {
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(3)

	if _, err := TrainCascade(ex, nil, nil, []float64{1}); err == nil {
		t.Error("expected error for empty training set")
	}
	if _, err := TrainCascade(ex, images, truth[:2], []float64{1}); err == nil {
		t.Error("expected error for image/shape count mismatch")
	}
	if _, err := TrainCascade(ex, images, truth, []float64{0}); err == nil {
		t.Error("expected error for zero damping factor")
	}
	if _, err := TrainCascade(ex, []*image.Gray{nil}, truth[:1], []float64{1}); err == nil {
		t.Error("expected error for nil training image")
	}

	ragged := []geometry.Shape{truth[0], truth[1][:1], truth[2]}
	if _, err := TrainCascade(ex, images, ragged, []float64{1}); err == nil {
		t.Error("expected error for mismatched landmark counts")
	}
}

func TestPriorIsNotMutatedByTraining(t *testing.T) {
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(3)

	model, err := TrainCascade(ex, images, truth, []float64{1.0, 0.5})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}

	mean, _ := geometry.MeanShape(truth)
	if !shapeClose(model.Prior, mean, 0) {
		t.Errorf("model prior %v drifted from training mean %v", model.Prior, mean)
	}
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	ex := newTestExtractor(t, intensityBackend{})
	images, truth := affineDataset(3)

	model, err := TrainCascade(ex, images, truth, []float64{1.0, 0.5})
	if err != nil {
		t.Fatalf("TrainCascade: %v", err)
	}

	path := filepath.Join(t.TempDir(), "models", "cascade.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	p1, _ := NewPredictor(model, ex)
	p2, _ := NewPredictor(loaded, ex)
	a, err := p1.Predict(images[2])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	b, err := p2.Predict(images[2])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !shapeClose(a, b, 0) {
		t.Errorf("loaded model predicts %v, original %v", b, a)
	}
}

func TestLoadModelRejectsTruncatedRegressor(t *testing.T) {
	// A model file whose regressor claims more inputs than it has
	// coefficient rows must be rejected at load time, not crash later in
	// prediction.
	data := `{
		"version": 1,
		"prior": [{"x": 1, "y": 2}],
		"stages": [{
			"regressor": {"coef": [[0.1, 0.2], [0.3, 0.4]], "in_dim": 5, "out_dim": 2},
			"damping": 1.0
		}]
	}`
	path := filepath.Join(t.TempDir(), "cascade.json")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadModel(path); err == nil {
		t.Fatal("expected error for regressor with missing coefficient rows")
	}
}

func TestValidateRejectsInconsistentStage(t *testing.T) {
	model := &Model{
		Version: 1,
		Prior:   geometry.Shape{{X: 1, Y: 2}},
		Stages: []Stage{{
			Regressor: &regress.Regressor{
				Coef:   [][]float64{{0.1, 0.2}},
				InDim:  3,
				OutDim: 2,
			},
			Damping: 1.0,
		}},
	}
	if err := model.Validate(); err == nil {
		t.Error("expected error for inconsistent stage regressor")
	}
}

func TestLinearSchedule(t *testing.T) {
	s := LinearSchedule(5, 1.0, 0.1)
	if len(s) != 5 {
		t.Fatalf("length = %d, want 5", len(s))
	}
	if s[0] != 1.0 || math.Abs(s[4]-0.1) > 1e-12 {
		t.Errorf("endpoints = %g, %g, want 1.0, 0.1", s[0], s[4])
	}
	for i := 1; i < len(s); i++ {
		if s[i] >= s[i-1] {
			t.Errorf("schedule not decreasing at %d: %g >= %g", i, s[i], s[i-1])
		}
	}

	if got := LinearSchedule(1, 1.0, 0.1); len(got) != 1 || got[0] != 1.0 {
		t.Errorf("single stage schedule = %v, want [1.0]", got)
	}
	if got := LinearSchedule(0, 1.0, 0.1); got != nil {
		t.Errorf("zero stage schedule = %v, want nil", got)
	}
}
