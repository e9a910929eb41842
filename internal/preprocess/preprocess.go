// Package preprocess converts input images to the scale and color space the
// cascade operates in. Ground-truth shapes must be rescaled with the same
// factor as their images; predictions are rescaled back with the inverse
// factor before export.
package preprocess

import (
	"fmt"
	"image"

	"face-aligner/pkg/geometry"

	"gocv.io/x/gocv"
)

// Downscale resizes an image by the given factor and converts it to
// grayscale. A factor of 1 still performs the grayscale conversion.
func Downscale(img image.Image, scale float64) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %g", scale)
	}

	mat, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	w := int(float64(img.Bounds().Dx()) * scale)
	h := int(float64(img.Bounds().Dy()) * scale)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("scale %g collapses %dx%d image", scale, img.Bounds().Dx(), img.Bounds().Dy())
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Point{X: w, Y: h}, 0, 0, gocv.InterpolationLinear)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)

	return grayMatToImage(gray), nil
}

// DownscaleAll preprocesses a batch of images with one factor.
func DownscaleAll(images []image.Image, scale float64) ([]*image.Gray, error) {
	out := make([]*image.Gray, len(images))
	for i, img := range images {
		g, err := Downscale(img, scale)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = g
	}
	return out, nil
}

// RescaleShapes returns the shapes with every coordinate multiplied by
// factor, matching an image resize by the same factor.
func RescaleShapes(shapes []geometry.Shape, factor float64) []geometry.Shape {
	out := make([]geometry.Shape, len(shapes))
	for i, s := range shapes {
		out[i] = s.Scale(factor)
	}
	return out
}

// imageToMat converts a Go image.Image to a BGR gocv.Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width < 1 || height < 1 {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// OpenCV stores channels as BGR.
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}

// grayMatToImage copies a single-channel Mat into an image.Gray.
func grayMatToImage(mat gocv.Mat) *image.Gray {
	h := mat.Rows()
	w := mat.Cols()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		rowOffset := y * img.Stride
		for x := 0; x < w; x++ {
			img.Pix[rowOffset+x] = mat.GetUCharAt(y, x)
		}
	}
	return img
}
