package descriptor

import (
	"fmt"
	"image"
	"math"

	"face-aligner/pkg/geometry"

	"gonum.org/v1/gonum/floats"
)

// HOGParams holds the histogram-of-gradients grid configuration.
type HOGParams struct {
	// Cells is the number of cells per side of the support region.
	Cells int `json:"cells"`
	// Bins is the number of unsigned orientation bins (0-180 degrees).
	Bins int `json:"bins"`
}

// DefaultHOGParams returns the SIFT-like 4x4 grid with 8 orientation bins
// (128 values per landmark).
func DefaultHOGParams() HOGParams {
	return HOGParams{Cells: 4, Bins: 8}
}

// HOG is a histogram-of-oriented-gradients patch descriptor. For each cell
// of a Cells x Cells grid over the support region it accumulates a
// magnitude-weighted orientation histogram; the concatenated histograms are
// L2-normalized. Sampling outside the image clamps to the nearest pixel.
type HOG struct {
	params HOGParams
}

// samples per cell side; keeps the descriptor well populated even when the
// support region shrinks below one pixel per cell at small scales
const cellSamples = 3

// NewHOG creates a HOG backend.
func NewHOG(params HOGParams) (*HOG, error) {
	if params.Cells < 1 {
		return nil, fmt.Errorf("cells must be >= 1, got %d", params.Cells)
	}
	if params.Bins < 1 {
		return nil, fmt.Errorf("bins must be >= 1, got %d", params.Bins)
	}
	return &HOG{params: params}, nil
}

// Params returns the grid configuration.
func (h *HOG) Params() HOGParams {
	return h.params
}

// Dim returns Cells*Cells*Bins.
func (h *HOG) Dim() int {
	return h.params.Cells * h.params.Cells * h.params.Bins
}

// Compute returns the descriptor for the support region centered on the
// point. The point may lie near or outside the image bounds.
func (h *HOG) Compute(img *image.Gray, center geometry.Point2D, size float64) ([]float64, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if size <= 0 {
		return nil, fmt.Errorf("support size must be positive, got %g", size)
	}

	cells := h.params.Cells
	bins := h.params.Bins
	binWidth := 180.0 / float64(bins)

	out := make([]float64, h.Dim())
	cellSize := size / float64(cells)
	sampleStep := cellSize / float64(cellSamples)
	x0 := center.X - size/2
	y0 := center.Y - size/2

	for cy := 0; cy < cells; cy++ {
		for cx := 0; cx < cells; cx++ {
			hist := out[(cy*cells+cx)*bins : (cy*cells+cx+1)*bins]
			for sy := 0; sy < cellSamples; sy++ {
				for sx := 0; sx < cellSamples; sx++ {
					px := x0 + float64(cx)*cellSize + (float64(sx)+0.5)*sampleStep
					py := y0 + float64(cy)*cellSize + (float64(sy)+0.5)*sampleStep
					x := int(math.Round(px))
					y := int(math.Round(py))

					// Central differences with replicated borders.
					gx := float64(grayAt(img, x+1, y)) - float64(grayAt(img, x-1, y))
					gy := float64(grayAt(img, x, y+1)) - float64(grayAt(img, x, y-1))
					mag := math.Hypot(gx, gy)
					if mag == 0 {
						continue
					}

					angle := math.Mod(math.Atan2(gy, gx)*180/math.Pi, 180)
					if angle < 0 {
						angle += 180
					}
					bin := int(angle / binWidth)
					if bin >= bins {
						bin = bins - 1
					}
					hist[bin] += mag
				}
			}
		}
	}

	if norm := floats.Norm(out, 2); norm > 0 {
		floats.Scale(1/norm, out)
	}
	return out, nil
}

// grayAt reads a pixel with coordinates clamped to the image bounds.
func grayAt(img *image.Gray, x, y int) uint8 {
	b := img.Bounds()
	if x < b.Min.X {
		x = b.Min.X
	} else if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y < b.Min.Y {
		y = b.Min.Y
	} else if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	return img.GrayAt(x, y).Y
}
