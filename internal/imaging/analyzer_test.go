package imaging

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
)

// fakeLoader serves images from a map and counts calls per URL.
type fakeLoader struct {
	mu     sync.Mutex
	images map[string]image.Image
	calls  map[string]int
	panics bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		images: make(map[string]image.Image),
		calls:  make(map[string]int),
	}
}

func (f *fakeLoader) Load(_ context.Context, rawURL string) (image.Image, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	img, ok := f.images[rawURL]
	f.mu.Unlock()

	if f.panics {
		panic("decoder exploded")
	}
	if !ok {
		return nil, ErrLoadFailed
	}
	return img, nil
}

func TestSampleSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"within bounds", 100, 50, 256, 100, 50},
		{"exactly max", 256, 256, 256, 256, 256},
		{"landscape", 512, 256, 256, 256, 128},
		{"portrait", 600, 900, 256, 171, 256},
		{"extreme landscape", 1000, 3, 256, 256, 1},
		{"extreme portrait", 3, 1000, 256, 1, 256},
		{"empty", 0, 10, 256, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := SampleSize(tt.w, tt.h, tt.maxDim)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("SampleSize(%d,%d,%d): got %dx%d, want %dx%d",
					tt.w, tt.h, tt.maxDim, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDownscale_NoInventedColors(t *testing.T) {
	a := color.NRGBA{200, 40, 60, 255}
	b := color.NRGBA{40, 60, 200, 255}
	img := image.NewNRGBA(image.Rect(0, 0, 900, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 900; x++ {
			if (x/3+y/3)%2 == 0 {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}

	sample := Downscale(img, 256)
	bounds := sample.Bounds()
	if bounds.Dx() != 256 || bounds.Dy() != 171 {
		t.Fatalf("sample size: got %dx%d, want 256x171", bounds.Dx(), bounds.Dy())
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := sample.NRGBAAt(x, y)
			if c != a && c != b {
				t.Fatalf("pixel (%d,%d) = %v is not a source color", x, y, c)
			}
		}
	}
}

func TestDownscale_SmallImageKeepsSize(t *testing.T) {
	img := createInMemoryImage(30, 20, color.NRGBA{200, 40, 60, 255})
	sample := Downscale(img, 256)
	if sample.Bounds().Dx() != 30 || sample.Bounds().Dy() != 20 {
		t.Errorf("got %dx%d, want 30x20", sample.Bounds().Dx(), sample.Bounds().Dy())
	}
}

func TestAnalyzer_Deterministic(t *testing.T) {
	loader := newFakeLoader()
	loader.images["poster.jpg"] = createBandedImage(400, 600, 200,
		color.NRGBA{200, 40, 60, 255}, color.NRGBA{40, 60, 200, 255})
	a := NewAnalyzer(loader, 0)

	first := a.Analyze(context.Background(), "poster.jpg")
	if first.Fallback {
		t.Fatalf("unexpected fallback: %s (%v)", first.Reason, first.Err)
	}
	for i := 0; i < 3; i++ {
		got := a.Analyze(context.Background(), "poster.jpg")
		if got.CSS != first.CSS || *got.Dominant != *first.Dominant {
			t.Fatalf("run %d: got %s, want %s", i, got.CSS, first.CSS)
		}
	}
	if *first.Dominant != (RGBColor{40, 60, 200}) {
		t.Errorf("Dominant: got %v, want {40 60 200}", *first.Dominant)
	}
	if first.SampleWidth != 171 || first.SampleHeight != 256 {
		t.Errorf("sample: got %dx%d, want 171x256", first.SampleWidth, first.SampleHeight)
	}
	if first.Width != 400 || first.Height != 600 {
		t.Errorf("source: got %dx%d, want 400x600", first.Width, first.Height)
	}
}

func TestAnalyzer_GrayDominatedScenario(t *testing.T) {
	accent := RGBColor{200, 40, 60}
	loader := newFakeLoader()
	loader.images["mostly-gray.png"] = createBandedImage(100, 100, 10,
		color.NRGBA{accent.R, accent.G, accent.B, 255}, color.NRGBA{128, 128, 128, 255})

	ext := NewAnalyzer(loader, 256).Analyze(context.Background(), "mostly-gray.png")

	if ext.Fallback {
		t.Fatalf("unexpected fallback: %s", ext.Reason)
	}
	want := TintFromRGB(accent)
	if ext.Color != want {
		t.Errorf("Color: got %v, want %v", ext.Color, want)
	}
	if ext.Color.S < TintMinSaturation || ext.Color.S > TintMaxSaturation ||
		ext.Color.L < TintMinLightness || ext.Color.L > TintMaxLightness {
		t.Errorf("Color %v outside tint range", ext.Color)
	}
	if ext.QualifyingPixels != 1000 {
		t.Errorf("QualifyingPixels: got %d, want 1000", ext.QualifyingPixels)
	}
}

func TestAnalyzer_AllTransparentFallsBack(t *testing.T) {
	loader := newFakeLoader()
	loader.images["clear.png?v=3"] = createInMemoryImage(64, 64, color.NRGBA{0, 0, 0, 0})
	a := NewAnalyzer(loader, 0)

	ext := a.Analyze(context.Background(), "clear.png?v=3")
	if !ext.Fallback || ext.Reason != ReasonEmptyHistogram {
		t.Fatalf("expected empty_histogram fallback, got fallback=%v reason=%s", ext.Fallback, ext.Reason)
	}
	if ext.Color != FallbackColor("clear.png") {
		t.Errorf("Color: got %v, want fallback for normalized url %v", ext.Color, FallbackColor("clear.png"))
	}
	if again := a.Analyze(context.Background(), "clear.png?v=3"); again.Color != ext.Color {
		t.Errorf("fallback not stable: %v then %v", ext.Color, again.Color)
	}
}

func TestAnalyzer_LoadFailureFallsBack(t *testing.T) {
	a := NewAnalyzer(newFakeLoader(), 0)

	ext := a.Analyze(context.Background(), "https://cdn.example/missing.jpg?token=1")
	if !ext.Fallback || ext.Reason != ReasonLoadFailed {
		t.Fatalf("expected load_failed fallback, got fallback=%v reason=%s", ext.Fallback, ext.Reason)
	}
	if !errors.Is(ext.Err, ErrLoadFailed) {
		t.Errorf("Err should wrap ErrLoadFailed, got %v", ext.Err)
	}
	if ext.URL != "https://cdn.example/missing.jpg" {
		t.Errorf("URL: got %s", ext.URL)
	}
	c := ext.Color
	if c.S < FallbackMinSaturation || c.S > FallbackMaxSaturation ||
		c.L < FallbackMinLightness || c.L > FallbackMaxLightness {
		t.Errorf("fallback %v outside fallback range", c)
	}
	if ext.CSS != c.String() {
		t.Errorf("CSS %q does not match Color %v", ext.CSS, c)
	}
}

func TestAnalyzer_PanicFallsBack(t *testing.T) {
	loader := newFakeLoader()
	loader.panics = true

	ext := NewAnalyzer(loader, 0).Analyze(context.Background(), "boom.jpg")
	if !ext.Fallback || ext.Reason != ReasonPanic {
		t.Fatalf("expected panic fallback, got fallback=%v reason=%s", ext.Fallback, ext.Reason)
	}
	if ext.Color != FallbackColor("boom.jpg") {
		t.Errorf("Color: got %v, want %v", ext.Color, FallbackColor("boom.jpg"))
	}
}

func TestAnalyzer_EmptyImageFallsBack(t *testing.T) {
	ext := NewAnalyzer(newFakeLoader(), 0).AnalyzeImage("empty.png", image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	if !ext.Fallback || ext.Reason != ReasonEmptyHistogram {
		t.Errorf("expected empty_histogram fallback, got fallback=%v reason=%s", ext.Fallback, ext.Reason)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"img.jpg?x=1", "img.jpg"},
		{"img.jpg?x=2", "img.jpg"},
		{"https://cdn.example/p.jpg?w=300#top", "https://cdn.example/p.jpg"},
		{"https://cdn.example/p.jpg#frag?notquery", "https://cdn.example/p.jpg"},
		{"  /posters/a.webp  ", "/posters/a.webp"},
		{"plain.png", "plain.png"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
