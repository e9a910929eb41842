package geometry

import (
	"fmt"
)

// Shape is an ordered sequence of landmark coordinates. Point i always
// denotes the same anatomical landmark across every shape in a run.
type Shape []Point2D

// NewShape creates a zero-valued shape with k landmarks.
func NewShape(k int) Shape {
	return make(Shape, k)
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Flatten returns the coordinates as [x0, y0, x1, y1, ...].
func (s Shape) Flatten() []float64 {
	out := make([]float64, 0, 2*len(s))
	for _, p := range s {
		out = append(out, p.X, p.Y)
	}
	return out
}

// ShapeFromFlat rebuilds a shape from a flat [x0, y0, x1, y1, ...] slice.
func ShapeFromFlat(v []float64) (Shape, error) {
	if len(v)%2 != 0 {
		return nil, fmt.Errorf("flat shape has odd length %d", len(v))
	}
	out := make(Shape, len(v)/2)
	for i := range out {
		out[i] = Point2D{X: v[2*i], Y: v[2*i+1]}
	}
	return out, nil
}

// Sub returns the landmark-wise difference s - other.
func (s Shape) Sub(other Shape) Shape {
	out := make(Shape, len(s))
	for i := range s {
		out[i] = s[i].Sub(other[i])
	}
	return out
}

// Scale returns the shape with every coordinate multiplied by factor.
func (s Shape) Scale(factor float64) Shape {
	out := make(Shape, len(s))
	for i := range s {
		out[i] = s[i].Scale(factor)
	}
	return out
}

// AddScaled adds factor*delta to the shape in place. The receiver is the
// mutable working buffer; delta is left untouched.
func (s Shape) AddScaled(delta Shape, factor float64) {
	for i := range s {
		s[i].X += factor * delta[i].X
		s[i].Y += factor * delta[i].Y
	}
}

// MeanShape computes the landmark-wise arithmetic mean of a set of shapes.
// All shapes must have the same landmark count.
func MeanShape(shapes []Shape) (Shape, error) {
	if len(shapes) == 0 {
		return nil, fmt.Errorf("mean of empty shape set")
	}
	k := len(shapes[0])
	mean := NewShape(k)
	for i, s := range shapes {
		if len(s) != k {
			return nil, fmt.Errorf("shape %d has %d landmarks, want %d", i, len(s), k)
		}
		for j, p := range s {
			mean[j].X += p.X
			mean[j].Y += p.Y
		}
	}
	n := float64(len(shapes))
	for j := range mean {
		mean[j].X /= n
		mean[j].Y /= n
	}
	return mean, nil
}
