// Command alignview is a small viewer for prediction results: it shows each
// image with its predicted landmarks drawn on top and lets you step through
// the set.
//
// Usage: alignview <images-dir> <results.csv>
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"face-aligner/internal/dataset"
	"face-aligner/internal/export"
	"face-aligner/pkg/geometry"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// viewer steps through images and their predicted shapes.
type viewer struct {
	images []image.Image
	paths  []string
	shapes []geometry.Shape

	index  int
	canvas *fynecanvas.Image
	status *widget.Label
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <images-dir> <results.csv>\n", os.Args[0])
		os.Exit(1)
	}

	images, paths, err := dataset.LoadImages(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading images: %v\n", err)
		os.Exit(1)
	}
	shapes, err := export.LoadCSV(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading predictions: %v\n", err)
		os.Exit(1)
	}
	if len(shapes) != len(images) {
		fmt.Fprintf(os.Stderr, "Error: %d predictions for %d images\n", len(shapes), len(images))
		os.Exit(1)
	}

	v := &viewer{
		images: images,
		paths:  paths,
		shapes: shapes,
		status: widget.NewLabel(""),
	}
	v.canvas = fynecanvas.NewImageFromImage(v.overlay())
	v.canvas.FillMode = fynecanvas.ImageFillContain

	fyneApp := app.New()
	win := fyneApp.NewWindow("Landmark Viewer")

	prevBtn := widget.NewButton("< Prev", func() { v.step(-1) })
	nextBtn := widget.NewButton("Next >", func() { v.step(1) })
	toolbar := container.NewHBox(prevBtn, nextBtn, v.status)

	win.SetContent(container.NewBorder(
		toolbar,  // top
		nil, nil, nil,
		v.canvas, // center
	))
	win.Resize(fyne.NewSize(800, 600))

	v.refresh()
	win.ShowAndRun()
}

// step moves the viewer by delta images, wrapping around.
func (v *viewer) step(delta int) {
	n := len(v.images)
	v.index = ((v.index+delta)%n + n) % n
	v.refresh()
}

func (v *viewer) refresh() {
	v.canvas.Image = v.overlay()
	v.canvas.Refresh()
	v.status.SetText(fmt.Sprintf("%s (%d/%d)",
		filepath.Base(v.paths[v.index]), v.index+1, len(v.images)))
}

func (v *viewer) overlay() image.Image {
	red := color.RGBA{R: 255, A: 255}
	return export.Overlay(v.images[v.index], v.shapes[v.index], red)
}
