// Package imaging loads poster images and derives their UI tint color.
//
// The package has two layers:
//   - Loader / HTTPLoader: fetches an image anonymously into a decoded
//     image.Image with a per-request timeout. All failures wrap ErrLoadFailed.
//   - Analyzer: downsamples the bitmap, builds an exact-color Histogram over
//     qualifying pixels and converts the most frequent color into a clamped
//     HSL tint. When no pixel data is usable it falls back to a color derived
//     from the URL hash, so Analyze never fails.
//
// # Pixel Rejection
//
// A pixel does not take part in dominant color selection when any of:
//   - alpha < 240 (near-transparent)
//   - R+G+B < 60 or > 720 (too dark or too bright for an accent)
//   - max(R,G,B) - min(R,G,B) < 12 (near-gray)
//
// # Color Representation
//
// Tints are HSLColor values rendered as "hsl(H, S%, L%)":
//   - histogram tints: saturation 22-42, lightness 52-66
//   - fallback tints: saturation 36-54, lightness 58-68
//
// # Thread Safety
//
// Analyzer, HTTPLoader and ImageCache are safe for concurrent use. Histogram
// values are built and read by a single goroutine.
//
// # Auxiliary Tools
//
// DominantColors, Palette and Swatch back the image inspection tools of the
// MCP server: the exact top colors, a k-means palette, and a PNG preview of a
// poster framed in its tint.
package imaging
