package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
)

const (
	// DefaultSwatchSize is the edge length of a swatch when none is requested.
	DefaultSwatchSize = 160

	// MaxSwatchSize bounds the swatch canvas, which is allocated up front.
	MaxSwatchSize = 1024
)

// SwatchResult contains a tint preview encoded as base64 PNG.
type SwatchResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Color       string `json:"color"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Swatch renders a size x size preview: the poster fitted and centered on a
// square filled with its tint, so the tint shows as a frame around the artwork.
//
// # Errors
//
//   - Returns error if size exceeds MaxSwatchSize
//   - Returns error if size leaves no room for the poster inside the frame
//   - Returns error if PNG encoding fails
func Swatch(img image.Image, tint HSLColor, size int) (*SwatchResult, error) {
	if size <= 0 {
		size = DefaultSwatchSize
	}
	if size > MaxSwatchSize {
		return nil, fmt.Errorf("swatch size %d exceeds %d", size, MaxSwatchSize)
	}
	border := size / 16
	if border < 2 {
		border = 2
	}
	inner := size - 2*border
	if inner < 1 {
		return nil, fmt.Errorf("swatch size %d too small", size)
	}

	canvas := imaging.New(size, size, tint.NRGBA())
	thumb := imaging.Fit(img, inner, inner, imaging.Lanczos)
	offset := image.Pt((size-thumb.Bounds().Dx())/2, (size-thumb.Bounds().Dy())/2)
	canvas = imaging.Paste(canvas, thumb, offset)

	var buf bytes.Buffer
	if err := imgio.PNGEncoder()(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode swatch: %w", err)
	}

	return &SwatchResult{
		Width:       size,
		Height:      size,
		Color:       tint.String(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
