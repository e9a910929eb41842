package preprocess

import (
	"testing"

	"face-aligner/pkg/geometry"
)

func TestRescaleShapes(t *testing.T) {
	shapes := []geometry.Shape{
		{{X: 4, Y: 8}, {X: 16, Y: 32}},
		{{X: 1, Y: 2}},
	}

	scaled := RescaleShapes(shapes, 0.25)
	if scaled[0][0] != (geometry.Point2D{X: 1, Y: 2}) {
		t.Errorf("got %v, want {1 2}", scaled[0][0])
	}
	if scaled[0][1] != (geometry.Point2D{X: 4, Y: 8}) {
		t.Errorf("got %v, want {4 8}", scaled[0][1])
	}
	if scaled[1][0] != (geometry.Point2D{X: 0.25, Y: 0.5}) {
		t.Errorf("got %v, want {0.25 0.5}", scaled[1][0])
	}

	// Originals untouched.
	if shapes[0][0] != (geometry.Point2D{X: 4, Y: 8}) {
		t.Error("RescaleShapes mutated its input")
	}
}

func TestRescaleShapesRoundTrip(t *testing.T) {
	shapes := []geometry.Shape{{{X: 100, Y: 240}, {X: 56, Y: 12}}}
	back := RescaleShapes(RescaleShapes(shapes, 0.25), 4)
	for i, p := range back[0] {
		if p != shapes[0][i] {
			t.Errorf("point %d = %v, want %v", i, p, shapes[0][i])
		}
	}
}
