// Package export writes prediction results to their downstream sinks: a
// flattened-coordinates CSV and landmark overlay images.
package export

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"face-aligner/pkg/geometry"
)

// WriteCSV writes one row per shape with coordinates flattened as
// x0,y0,x1,y1,... All shapes must share one landmark count.
func WriteCSV(w io.Writer, shapes []geometry.Shape) error {
	if len(shapes) == 0 {
		return fmt.Errorf("no shapes to write")
	}
	k := len(shapes[0])

	cw := csv.NewWriter(w)
	record := make([]string, 2*k)
	for i, s := range shapes {
		if len(s) != k {
			return fmt.Errorf("shape %d has %d landmarks, want %d", i, len(s), k)
		}
		for j, v := range s.Flatten() {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the shapes CSV to a file, creating parent directories.
func SaveCSV(path string, shapes []geometry.Shape) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	return WriteCSV(file, shapes)
}

// ReadCSV parses shapes written by WriteCSV: one row per shape, flattened
// x0,y0,x1,y1,... coordinates.
func ReadCSV(r io.Reader) ([]geometry.Shape, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV")
	}

	shapes := make([]geometry.Shape, len(records))
	for i, record := range records {
		flat := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j, err)
			}
			flat[j] = v
		}
		shape, err := geometry.ShapeFromFlat(flat)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		shapes[i] = shape
	}
	return shapes, nil
}

// LoadCSV reads a shapes CSV file.
func LoadCSV(path string) ([]geometry.Shape, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// MarkerSize is the arm length of the overlay crosses in pixels.
const MarkerSize = 4

// Overlay returns a copy of the image with a '+' cross drawn at every
// landmark.
func Overlay(img image.Image, shape geometry.Shape, clr color.Color) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	for _, p := range shape {
		cx := int(p.X + 0.5)
		cy := int(p.Y + 0.5)
		for d := -MarkerSize; d <= MarkerSize; d++ {
			setIfInside(out, cx+d, cy, clr)
			setIfInside(out, cx, cy+d, clr)
		}
	}
	return out
}

// SaveOverlayPNG renders the overlay and writes it as PNG.
func SaveOverlayPNG(path string, img image.Image, shape geometry.Shape, clr color.Color) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, Overlay(img, shape, clr)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

func setIfInside(img *image.RGBA, x, y int, clr color.Color) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, clr)
	}
}
