// Package metrics computes landmark prediction error measures from pairs of
// shape collections. The cascade itself never consumes these; they are
// reporting-only.
package metrics

import (
	"fmt"

	"face-aligner/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// PointDistances returns the per-landmark Euclidean distance between a
// predicted and a ground-truth shape.
func PointDistances(pred, truth geometry.Shape) ([]float64, error) {
	if len(pred) != len(truth) {
		return nil, fmt.Errorf("landmark count mismatch: %d vs %d", len(pred), len(truth))
	}
	out := make([]float64, len(pred))
	for i := range pred {
		out[i] = pred[i].Distance(truth[i])
	}
	return out, nil
}

// AllPointDistances flattens PointDistances over equal-length shape
// collections, in sample order.
func AllPointDistances(pred, truth []geometry.Shape) ([]float64, error) {
	if len(pred) != len(truth) {
		return nil, fmt.Errorf("shape count mismatch: %d vs %d", len(pred), len(truth))
	}
	var out []float64
	for i := range pred {
		d, err := PointDistances(pred[i], truth[i])
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
		out = append(out, d...)
	}
	return out, nil
}

// MeanSquaredError returns the mean squared coordinate error over all
// landmarks of all shapes.
func MeanSquaredError(pred, truth []geometry.Shape) (float64, error) {
	if len(pred) != len(truth) {
		return 0, fmt.Errorf("shape count mismatch: %d vs %d", len(pred), len(truth))
	}
	if len(pred) == 0 {
		return 0, fmt.Errorf("empty shape collections")
	}

	var sum float64
	var count int
	for i := range pred {
		if len(pred[i]) != len(truth[i]) {
			return 0, fmt.Errorf("shape %d landmark count mismatch: %d vs %d", i, len(pred[i]), len(truth[i]))
		}
		for j := range pred[i] {
			dx := pred[i][j].X - truth[i][j].X
			dy := pred[i][j].Y - truth[i][j].Y
			sum += dx*dx + dy*dy
			count += 2
		}
	}
	return sum / float64(count), nil
}

// Summary is an aggregate error report for a prediction run.
type Summary struct {
	MeanDistance float64
	MaxDistance  float64
	MSE          float64
}

// Summarize computes the aggregate report for a prediction run.
func Summarize(pred, truth []geometry.Shape) (Summary, error) {
	dists, err := AllPointDistances(pred, truth)
	if err != nil {
		return Summary{}, err
	}
	mse, err := MeanSquaredError(pred, truth)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		MeanDistance: stat.Mean(dists, nil),
		MSE:          mse,
	}
	for _, d := range dists {
		if d > s.MaxDistance {
			s.MaxDistance = d
		}
	}
	return s, nil
}
