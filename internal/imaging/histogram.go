package imaging

import (
	"image"
	"image/color"
	"sort"
)

// Pixel rejection thresholds applied while building a Histogram.
const (
	// MinOpaqueAlpha rejects near-transparent pixels.
	MinOpaqueAlpha = 240

	// MinChannelSum and MaxChannelSum reject pixels too dark or too bright
	// to serve as an accent (R+G+B outside [60, 720]).
	MinChannelSum = 60
	MaxChannelSum = 720

	// MinChannelSpread rejects near-gray pixels (max-min channel < 12).
	MinChannelSpread = 12
)

// HistogramEntry is one distinct color and the number of qualifying pixels
// that had exactly that color.
type HistogramEntry struct {
	Color RGBColor `json:"rgb"`
	Count int      `json:"count"`
}

// Histogram counts exact RGB triples over the qualifying pixels of an image.
//
// Entries are kept in first-seen order (row-major scan), which makes every
// selection over the histogram deterministic for a given pixel buffer.
type Histogram struct {
	index   map[RGBColor]int
	entries []HistogramEntry
	total   int
}

// Qualifies reports whether a non-premultiplied pixel takes part in dominant
// color selection.
func Qualifies(r, g, b, a uint8) bool {
	if a < MinOpaqueAlpha {
		return false
	}
	sum := int(r) + int(g) + int(b)
	if sum < MinChannelSum || sum > MaxChannelSum {
		return false
	}
	hi, lo := r, r
	for _, v := range [2]uint8{g, b} {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return int(hi)-int(lo) >= MinChannelSpread
}

// BuildHistogram scans every pixel of img and counts the qualifying ones by
// their exact color. No quantization is applied.
func BuildHistogram(img image.Image) *Histogram {
	h := &Histogram{index: make(map[RGBColor]int)}

	if nrgba, ok := img.(*image.NRGBA); ok {
		bounds := nrgba.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := nrgba.Pix[nrgba.PixOffset(bounds.Min.X, y):]
			for x := 0; x < bounds.Dx(); x++ {
				p := row[x*4 : x*4+4 : x*4+4]
				h.add(p[0], p[1], p[2], p[3])
			}
		}
		return h
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			h.add(c.R, c.G, c.B, c.A)
		}
	}
	return h
}

func (h *Histogram) add(r, g, b, a uint8) {
	if !Qualifies(r, g, b, a) {
		return
	}
	key := RGBColor{R: r, G: g, B: b}
	if i, ok := h.index[key]; ok {
		h.entries[i].Count++
	} else {
		h.index[key] = len(h.entries)
		h.entries = append(h.entries, HistogramEntry{Color: key, Count: 1})
	}
	h.total++
}

// Len returns the number of distinct qualifying colors.
func (h *Histogram) Len() int {
	return len(h.entries)
}

// Total returns the number of qualifying pixels.
func (h *Histogram) Total() int {
	return h.total
}

// Count returns how many qualifying pixels had exactly color c.
func (h *Histogram) Count(c RGBColor) int {
	if i, ok := h.index[c]; ok {
		return h.entries[i].Count
	}
	return 0
}

// Dominant returns the most frequent color. Ties go to the color seen first.
// ok is false when the histogram is empty.
func (h *Histogram) Dominant() (c RGBColor, ok bool) {
	best := -1
	for i, e := range h.entries {
		if best < 0 || e.Count > h.entries[best].Count {
			best = i
		}
	}
	if best < 0 {
		return RGBColor{}, false
	}
	return h.entries[best].Color, true
}

// Top returns up to n entries ordered by count, most frequent first. Equal
// counts keep first-seen order.
func (h *Histogram) Top(n int) []HistogramEntry {
	sorted := make([]HistogramEntry, len(h.entries))
	copy(sorted, h.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
