package imaging

import (
	"errors"
	"fmt"
	"image"

	"github.com/EdlinOrg/prominentcolor"
)

// ColorFrequency represents a color and its share of the qualifying pixels.
type ColorFrequency struct {
	Hex        string   `json:"hex"`        // Hex color "#RRGGBB" (exact)
	Percentage float64  `json:"percentage"` // Share of qualifying pixels (0-100)
	RGB        RGBColor `json:"rgb"`        // RGB components
	Tint       string   `json:"tint"`       // The color as TintFromRGB renders it
}

// DominantColorsResult contains the most frequently occurring colors in an image.
//
// Colors are sorted by frequency in descending order (most common first).
type DominantColorsResult struct {
	Colors           []ColorFrequency `json:"colors"`
	QualifyingPixels int              `json:"qualifying_pixels"`
	SampleWidth      int              `json:"sample_width"`
	SampleHeight     int              `json:"sample_height"`
}

// DominantColors returns the count most common exact colors of img, using the
// same downscale and pixel rejection rules as the Analyzer. The first entry,
// when present, is the color the Analyzer would pick.
//
// A non-positive maxDim selects DefaultMaxDimension.
func DominantColors(img image.Image, count, maxDim int) *DominantColorsResult {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	sample := Downscale(img, maxDim)
	hist := BuildHistogram(sample)

	top := hist.Top(count)
	colors := make([]ColorFrequency, 0, len(top))
	for _, e := range top {
		colors = append(colors, ColorFrequency{
			Hex:        e.Color.Hex(),
			Percentage: float64(e.Count) / float64(hist.Total()) * 100,
			RGB:        e.Color,
			Tint:       TintFromRGB(e.Color).String(),
		})
	}

	return &DominantColorsResult{
		Colors:           colors,
		QualifyingPixels: hist.Total(),
		SampleWidth:      sample.Bounds().Dx(),
		SampleHeight:     sample.Bounds().Dy(),
	}
}

const (
	// MaxDominantColors caps DominantColors results requested by callers.
	MaxDominantColors = 64

	// MaxPaletteColors caps the k of Palette; each cluster costs a pass over
	// the sample.
	MaxPaletteColors = 16
)

// PaletteResult is a k-means palette of an image.
type PaletteResult struct {
	Colors []ColorFrequency `json:"colors"`
}

// Palette clusters the image into count representative colors with k-means
// (prominentcolor). Unlike DominantColors it groups similar shades, so it
// suits multi-color theming rather than picking a single tint.
//
// Image borders are kept (no cropping) and the library's default background
// masks drop pure black, white and green-screen pixels.
//
// # Errors
//
//   - Returns error if count exceeds MaxPaletteColors
//   - Returns error if the image has no pixels left after masking
func Palette(img image.Image, count int) (*PaletteResult, error) {
	if count <= 0 {
		count = prominentcolor.DefaultK
	}
	if count > MaxPaletteColors {
		return nil, fmt.Errorf("palette of %d colors exceeds %d", count, MaxPaletteColors)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}

	items, err := prominentcolor.KmeansWithAll(count, img, prominentcolor.ArgumentNoCropping,
		prominentcolor.DefaultSize, prominentcolor.GetDefaultMasks())
	if err != nil {
		return nil, fmt.Errorf("failed to cluster colors: %w", err)
	}

	total := 0
	for _, item := range items {
		total += item.Cnt
	}

	colors := make([]ColorFrequency, 0, len(items))
	for _, item := range items {
		rgb := RGBColor{R: uint8(item.Color.R), G: uint8(item.Color.G), B: uint8(item.Color.B)}
		pct := 0.0
		if total > 0 {
			pct = float64(item.Cnt) / float64(total) * 100
		}
		colors = append(colors, ColorFrequency{
			Hex:        rgb.Hex(),
			Percentage: pct,
			RGB:        rgb,
			Tint:       TintFromRGB(rgb).String(),
		})
	}
	return &PaletteResult{Colors: colors}, nil
}
