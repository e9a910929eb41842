// Package dataset loads annotated landmark samples from disk and provides
// a seeded train/validation split. A dataset is a directory of images plus
// a JSON shapes file listing the ground-truth landmarks per image.
package dataset

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"face-aligner/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

// Sample is one annotated training example.
type Sample struct {
	Path  string
	Image image.Image
	Shape geometry.Shape
}

// Set is an ordered collection of samples sharing one landmark count.
type Set struct {
	Samples []Sample
	K       int
}

// Images returns the sample images in order.
func (s *Set) Images() []image.Image {
	out := make([]image.Image, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.Image
	}
	return out
}

// Shapes returns the ground-truth shapes in order.
func (s *Set) Shapes() []geometry.Shape {
	out := make([]geometry.Shape, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.Shape
	}
	return out
}

// shapesFile is the on-disk annotation format.
type shapesFile struct {
	Landmarks int           `json:"landmarks"`
	Samples   []shapesEntry `json:"samples"`
}

type shapesEntry struct {
	Image  string             `json:"image"`
	Points []geometry.Point2D `json:"points"`
}

// Load reads a shapes file and the images it references (relative to the
// shapes file's directory). Every sample must carry the landmark count
// declared in the file.
func Load(shapesPath string) (*Set, error) {
	data, err := os.ReadFile(shapesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read shapes file: %w", err)
	}
	var sf shapesFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse shapes file: %w", err)
	}
	if sf.Landmarks < 1 {
		return nil, fmt.Errorf("shapes file declares %d landmarks", sf.Landmarks)
	}
	if len(sf.Samples) == 0 {
		return nil, fmt.Errorf("shapes file has no samples")
	}

	dir := filepath.Dir(shapesPath)
	set := &Set{K: sf.Landmarks}
	for i, entry := range sf.Samples {
		if len(entry.Points) != sf.Landmarks {
			return nil, fmt.Errorf("sample %d (%s) has %d points, want %d",
				i, entry.Image, len(entry.Points), sf.Landmarks)
		}
		path := filepath.Join(dir, entry.Image)
		img, err := DecodeImage(path)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		set.Samples = append(set.Samples, Sample{
			Path:  path,
			Image: img,
			Shape: geometry.Shape(entry.Points).Clone(),
		})
	}
	return set, nil
}

// LoadImages loads every supported image in a directory, sorted by name.
// Used for prediction on unannotated images.
func LoadImages(dir string) ([]image.Image, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedFormat(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no supported images in %s", dir)
	}

	images := make([]image.Image, len(paths))
	for i, path := range paths {
		img, err := DecodeImage(path)
		if err != nil {
			return nil, nil, err
		}
		images[i] = img
	}
	return images, paths, nil
}

// DecodeImage opens and decodes a single image file.
func DecodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Split partitions the set into train and validation subsets using a seeded
// shuffle, so a given seed always produces the same split. testFraction is
// the validation share in (0, 1).
func (s *Set) Split(testFraction float64, seed int64) (train, test *Set, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %g", testFraction)
	}
	n := len(s.Samples)
	nTest := int(float64(n) * testFraction)
	if nTest < 1 || nTest >= n {
		return nil, nil, fmt.Errorf("cannot split %d samples with fraction %g", n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	train = &Set{K: s.K}
	test = &Set{K: s.K}
	for i, idx := range perm {
		if i < nTest {
			test.Samples = append(test.Samples, s.Samples[idx])
		} else {
			train.Samples = append(train.Samples, s.Samples[idx])
		}
	}
	return train, test, nil
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".tiff", ".tif":
		return true
	}
	return false
}
