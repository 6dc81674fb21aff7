package imaging

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Tint ranges for colors derived from a histogram winner. They keep the
// result legible against a dark UI background.
const (
	TintMinSaturation = 22
	TintMaxSaturation = 42
	TintMinLightness  = 52
	TintMaxLightness  = 66
)

// Fallback ranges for hash-derived colors.
const (
	FallbackMinSaturation = 36
	FallbackMaxSaturation = 54
	FallbackMinLightness  = 58
	FallbackMaxLightness  = 68
)

// RGBColor represents an RGB color with 8-bit components.
//
// Each component ranges from 0 to 255, where:
//   - 0 represents no intensity (black for all components)
//   - 255 represents full intensity (white for all components)
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// Hex returns the color as "#RRGGBB".
func (c RGBColor) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
//
// HSL is the representation handed to styling layers:
//   - Hue represents the color type (red, green, blue, etc.)
//   - Saturation represents color intensity (gray to vivid)
//   - Lightness represents brightness (black to white)
type HSLColor struct {
	H int `json:"h"` // Hue: 0-359 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// String renders the color in CSS syntax, e.g. "hsl(210, 34%, 58%)".
func (c HSLColor) String() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.H, c.S, c.L)
}

// NRGBA converts the color back to an opaque 8-bit RGB color.
func (c HSLColor) NRGBA() color.NRGBA {
	r, g, b := colorful.Hsl(float64(c.H), float64(c.S)/100, float64(c.L)/100).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// ParseHSL parses the output of HSLColor.String. It is strict: anything that
// String could not have produced is rejected.
func ParseHSL(s string) (HSLColor, error) {
	var c HSLColor
	n, err := fmt.Sscanf(s, "hsl(%d, %d%%, %d%%)", &c.H, &c.S, &c.L)
	if err != nil || n != 3 {
		return HSLColor{}, fmt.Errorf("invalid hsl color %q", s)
	}
	if c.H < 0 || c.H > 359 || c.S < 0 || c.S > 100 || c.L < 0 || c.L > 100 {
		return HSLColor{}, fmt.Errorf("hsl color %q out of range", s)
	}
	if c.String() != s {
		return HSLColor{}, fmt.Errorf("invalid hsl color %q", s)
	}
	return c, nil
}

// TintFromRGB converts a histogram winner into its UI tint.
//
// The raw HSL saturation and lightness (fractions in [0,1]) are rescaled and
// clamped rather than used directly:
//
//	saturation = clamp(s*62+12, 22, 42)
//	lightness  = clamp(l*80+18, 52, 66)
//
// Hue is kept as converted, rounded to whole degrees.
func TintFromRGB(c RGBColor) HSLColor {
	h, s, l := rgbToHSL(c.R, c.G, c.B)
	return HSLColor{
		H: int(math.Round(h)) % 360,
		S: clampInt(int(math.Round(s*62+12)), TintMinSaturation, TintMaxSaturation),
		L: clampInt(int(math.Round(l*80+18)), TintMinLightness, TintMaxLightness),
	}
}

// FallbackColor derives a deterministic color from a cache key, used when no
// pixel data is available. The same key always yields the same color.
//
// The key is hashed with 32-bit FNV-1a and read as a signed integer h:
//
//	hue        = |h| mod 360
//	saturation = 36 + (|h| / 360) mod 19
//	lightness  = 58 + (|h| / 6840) mod 11
func FallbackColor(key string) HSLColor {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	v := int64(int32(hasher.Sum32()))
	if v < 0 {
		v = -v
	}

	satSpan := int64(FallbackMaxSaturation - FallbackMinSaturation + 1)
	lightSpan := int64(FallbackMaxLightness - FallbackMinLightness + 1)
	return HSLColor{
		H: int(v % 360),
		S: FallbackMinSaturation + int((v/360)%satSpan),
		L: FallbackMinLightness + int((v/(360*satSpan))%lightSpan),
	}
}

// rgbToHSL converts 8-bit RGB values to HSL.
//
// Returns hue in degrees [0,360) and saturation/lightness as fractions [0,1].
// Achromatic input yields hue 0 and saturation 0.
func rgbToHSL(r, g, b uint8) (h, s, l float64) {
	c := colorful.Color{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
	}
	return c.Hsl()
}

// clampInt constrains an integer value to the range [lo, hi].
func clampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
