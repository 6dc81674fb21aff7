package imaging

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultMaxDimension caps the longer side of the pixel buffer inspected
// by the Analyzer.
const DefaultMaxDimension = 256

// FallbackReason explains why an Extraction used the hash-derived color.
type FallbackReason string

const (
	ReasonLoadFailed     FallbackReason = "load_failed"
	ReasonEmptyHistogram FallbackReason = "empty_histogram"
	ReasonPanic          FallbackReason = "panic"
)

// Extraction is the outcome of one analysis pass over an image URL.
//
// Color is always valid. When Fallback is true, Color was derived from the
// normalized URL and Reason/Err describe what prevented pixel analysis.
type Extraction struct {
	// URL is the normalized URL the color belongs to.
	URL string `json:"url"`

	// Color is the tint in HSL; CSS is its rendered form.
	Color HSLColor `json:"hsl"`
	CSS   string   `json:"color"`

	// Dominant is the histogram winner, nil on the fallback path.
	Dominant *RGBColor `json:"dominant,omitempty"`

	Fallback bool           `json:"fallback"`
	Reason   FallbackReason `json:"reason,omitempty"`
	Err      error          `json:"-"`

	// Source and sample dimensions; zero when the image never loaded.
	Width        int `json:"width"`
	Height       int `json:"height"`
	SampleWidth  int `json:"sample_width"`
	SampleHeight int `json:"sample_height"`

	// QualifyingPixels is the number of pixels that survived rejection.
	QualifyingPixels int `json:"qualifying_pixels"`
}

// Analyzer turns images into a single representative tint.
//
// Analyzer is safe for concurrent use; it holds no mutable state.
type Analyzer struct {
	loader       Loader
	maxDimension int
}

// NewAnalyzer creates an Analyzer reading images through loader. A
// non-positive maxDimension selects DefaultMaxDimension.
func NewAnalyzer(loader Loader, maxDimension int) *Analyzer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Analyzer{loader: loader, maxDimension: maxDimension}
}

// Analyze loads rawURL and extracts its tint. It never fails: load errors,
// images without qualifying pixels, and panics all resolve to the
// hash-derived fallback for the normalized URL.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (ext *Extraction) {
	key := NormalizeURL(rawURL)

	defer func() {
		if r := recover(); r != nil {
			ext = fallbackExtraction(key, ReasonPanic, fmt.Errorf("extraction panicked: %v", r))
		}
	}()

	img, err := a.loader.Load(ctx, rawURL)
	if err != nil {
		return fallbackExtraction(key, ReasonLoadFailed, err)
	}
	return a.AnalyzeImage(key, img)
}

// AnalyzeImage extracts the tint of an already decoded image. key is the
// normalized URL used for the fallback color.
//
// # Algorithm
//
//  1. Downscale so the longer side is at most maxDimension, nearest-neighbor
//     so that no color absent from the source is introduced.
//  2. Build an exact-color Histogram over qualifying pixels.
//  3. Pick the most frequent color (first seen wins ties).
//  4. Convert it with TintFromRGB.
//
// An empty histogram yields the fallback color.
func (a *Analyzer) AnalyzeImage(key string, img image.Image) *Extraction {
	bounds := img.Bounds()
	sample := Downscale(img, a.maxDimension)
	hist := BuildHistogram(sample)

	var ext *Extraction
	if dominant, ok := hist.Dominant(); ok {
		tint := TintFromRGB(dominant)
		ext = &Extraction{
			URL:      key,
			Color:    tint,
			CSS:      tint.String(),
			Dominant: &dominant,
		}
	} else {
		ext = fallbackExtraction(key, ReasonEmptyHistogram,
			fmt.Errorf("no qualifying pixels in %dx%d sample", sample.Bounds().Dx(), sample.Bounds().Dy()))
	}

	ext.Width = bounds.Dx()
	ext.Height = bounds.Dy()
	ext.SampleWidth = sample.Bounds().Dx()
	ext.SampleHeight = sample.Bounds().Dy()
	ext.QualifyingPixels = hist.Total()
	return ext
}

func fallbackExtraction(key string, reason FallbackReason, err error) *Extraction {
	tint := FallbackColor(key)
	return &Extraction{
		URL:      key,
		Color:    tint,
		CSS:      tint.String(),
		Fallback: true,
		Reason:   reason,
		Err:      err,
	}
}

// SampleSize computes the downscaled dimensions for a width x height image so
// that the longer side is at most maxDim. Aspect ratio is preserved and each
// side is at least 1px. Images already within bounds keep their size.
func SampleSize(width, height, maxDim int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	longest := width
	if height > longest {
		longest = height
	}
	if maxDim <= 0 || longest <= maxDim {
		return width, height
	}

	ratio := float64(maxDim) / float64(longest)
	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Downscale renders img into a non-premultiplied buffer of SampleSize using
// nearest-neighbor sampling.
func Downscale(img image.Image, maxDim int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := SampleSize(bounds.Dx(), bounds.Dy(), maxDim)
	if w == 0 || h == 0 {
		return &image.NRGBA{}
	}
	if w == bounds.Dx() && h == bounds.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.NearestNeighbor)
}
