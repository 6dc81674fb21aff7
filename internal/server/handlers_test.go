package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"testing"

	"github.com/ironsheep/poster-tint/internal/imaging"
)

// callTool runs tools/call and returns the raw response.
func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, _ := json.Marshal(params)

	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	}

	resp := s.handleRequest(context.Background(), req)
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// callToolResult runs tools/call and decodes the text content into v.
func callToolResult(t *testing.T, s *Server, name string, args interface{}, v interface{}) {
	t.Helper()

	resp := callTool(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %+v", name, resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("%s: unexpected content: %v", name, content)
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("%s: failed to decode result: %v", name, err)
	}
}

var (
	red     = color.RGBA{220, 40, 40, 255}
	redTint = imaging.TintFromRGB(imaging.RGBColor{R: 220, G: 40, B: 40}).String()
)

func TestHandleToolsCall_TintColor(t *testing.T) {
	s, dir := newTestServer(t)
	name := writePoster(t, dir, "poster.png", 20, 30, red)

	var got tintColorResult
	callToolResult(t, s, "tint_color", map[string]interface{}{"url": name}, &got)

	if got.URL != name {
		t.Errorf("URL: got %q, want %q", got.URL, name)
	}
	if got.Color != redTint {
		t.Errorf("Color: got %q, want %q", got.Color, redTint)
	}
}

func TestHandleToolsCall_TintColorMissingImage(t *testing.T) {
	s, _ := newTestServer(t)

	var got tintColorResult
	callToolResult(t, s, "tint_color", map[string]interface{}{"url": "missing.png"}, &got)

	if want := imaging.FallbackColor("missing.png").String(); got.Color != want {
		t.Errorf("Color: got %q, want fallback %q", got.Color, want)
	}
}

func TestHandleToolsCall_TintColors(t *testing.T) {
	s, dir := newTestServer(t)
	a := writePoster(t, dir, "a.png", 10, 10, red)
	b := writePoster(t, dir, "b.png", 10, 10, color.RGBA{40, 90, 200, 255})

	var got struct {
		Colors map[string]string `json:"colors"`
	}
	callToolResult(t, s, "tint_colors", map[string]interface{}{"urls": []string{a, b, a + "?v=2"}}, &got)

	if len(got.Colors) != 3 {
		t.Fatalf("colors: got %v", got.Colors)
	}
	if got.Colors[a] != redTint || got.Colors[a+"?v=2"] != redTint {
		t.Errorf("a: got %q / %q, want %q", got.Colors[a], got.Colors[a+"?v=2"], redTint)
	}
	if want := imaging.TintFromRGB(imaging.RGBColor{R: 40, G: 90, B: 200}).String(); got.Colors[b] != want {
		t.Errorf("b: got %q, want %q", got.Colors[b], want)
	}
}

func TestHandleToolsCall_TintExtract(t *testing.T) {
	s, dir := newTestServer(t)
	name := writePoster(t, dir, "wide.png", 512, 128, red)

	var got struct {
		Extraction struct {
			URL              string            `json:"url"`
			Color            string            `json:"color"`
			Dominant         *imaging.RGBColor `json:"dominant"`
			Fallback         bool              `json:"fallback"`
			Width            int               `json:"width"`
			SampleWidth      int               `json:"sample_width"`
			SampleHeight     int               `json:"sample_height"`
			QualifyingPixels int               `json:"qualifying_pixels"`
		} `json:"extraction"`
		Error string `json:"error"`
	}
	callToolResult(t, s, "tint_extract", map[string]interface{}{"url": name + "#top"}, &got)

	ext := got.Extraction
	if ext.URL != name || ext.Color != redTint || ext.Fallback {
		t.Errorf("extraction: got %+v", ext)
	}
	if ext.Dominant == nil || *ext.Dominant != (imaging.RGBColor{R: 220, G: 40, B: 40}) {
		t.Errorf("Dominant: got %v", ext.Dominant)
	}
	if ext.Width != 512 || ext.SampleWidth != 256 || ext.SampleHeight != 64 {
		t.Errorf("dimensions: got %dx -> %dx%d", ext.Width, ext.SampleWidth, ext.SampleHeight)
	}
	if ext.QualifyingPixels != 256*64 {
		t.Errorf("QualifyingPixels: got %d", ext.QualifyingPixels)
	}
	if got.Error != "" {
		t.Errorf("Error: got %q", got.Error)
	}

	// diagnostics never populate the cache
	if stats := s.svc.Stats(context.Background()); stats.Entries != 0 {
		t.Errorf("cache entries after tint_extract: got %d, want 0", stats.Entries)
	}
}

func TestHandleToolsCall_TintExtractFallback(t *testing.T) {
	s, _ := newTestServer(t)

	var got struct {
		Extraction struct {
			Fallback bool   `json:"fallback"`
			Reason   string `json:"reason"`
		} `json:"extraction"`
		Error string `json:"error"`
	}
	callToolResult(t, s, "tint_extract", map[string]interface{}{"url": "nope.png"}, &got)

	if !got.Extraction.Fallback || got.Extraction.Reason != string(imaging.ReasonLoadFailed) {
		t.Errorf("extraction: got %+v", got.Extraction)
	}
	if got.Error == "" {
		t.Error("load error should be reported")
	}
}

func TestHandleToolsCall_CacheTools(t *testing.T) {
	s, dir := newTestServer(t)
	name := writePoster(t, dir, "poster.png", 10, 10, red)

	var tinted tintColorResult
	callToolResult(t, s, "tint_color", map[string]interface{}{"url": name}, &tinted)
	callToolResult(t, s, "image_dominant_colors", map[string]interface{}{"url": name}, &map[string]interface{}{})

	var stats struct {
		Entries   int    `json:"entries"`
		Capacity  int    `json:"capacity"`
		TTL       string `json:"ttl"`
		Namespace string `json:"namespace"`
	}
	callToolResult(t, s, "tint_cache_stats", nil, &stats)
	if stats.Entries != 1 || stats.Capacity != 80 || stats.TTL != "24h0m0s" || stats.Namespace != "poster-tint:colors" {
		t.Errorf("stats: got %+v", stats)
	}
	if s.images.Len() != 1 {
		t.Errorf("image cache: got %d, want 1", s.images.Len())
	}

	var cleared map[string]bool
	callToolResult(t, s, "tint_clear_cache", map[string]interface{}{}, &cleared)
	if !cleared["cleared"] {
		t.Errorf("clear result: got %v", cleared)
	}

	callToolResult(t, s, "tint_cache_stats", nil, &stats)
	if stats.Entries != 0 {
		t.Errorf("entries after clear: got %d", stats.Entries)
	}
	if s.images.Len() != 0 {
		t.Errorf("image cache after clear: got %d", s.images.Len())
	}
}

func TestHandleToolsCall_DominantColors(t *testing.T) {
	s, dir := newTestServer(t)
	name := writePoster(t, dir, "poster.png", 10, 10, red)

	var got imaging.DominantColorsResult
	callToolResult(t, s, "image_dominant_colors", map[string]interface{}{"url": name, "count": 3}, &got)

	if len(got.Colors) != 1 {
		t.Fatalf("colors: got %d, want 1 for a solid image", len(got.Colors))
	}
	if got.Colors[0].Hex != "#DC2828" {
		t.Errorf("Hex: got %s, want #DC2828", got.Colors[0].Hex)
	}
	if got.Colors[0].Percentage != 100 {
		t.Errorf("Percentage: got %v, want 100", got.Colors[0].Percentage)
	}
	if got.Colors[0].Tint != redTint {
		t.Errorf("Tint: got %s, want %s", got.Colors[0].Tint, redTint)
	}
}

func TestHandleToolsCall_Palette(t *testing.T) {
	s, dir := newTestServer(t)
	name := writePoster(t, dir, "poster.png", 40, 40, red)

	var got imaging.PaletteResult
	callToolResult(t, s, "image_palette", map[string]interface{}{"url": name, "count": 1}, &got)

	if len(got.Colors) != 1 {
		t.Fatalf("colors: got %d, want 1", len(got.Colors))
	}
}

func TestHandleToolsCall_TintSwatch(t *testing.T) {
	s, dir := newTestServer(t)
	name := writePoster(t, dir, "poster.png", 30, 60, red)

	var got imaging.SwatchResult
	callToolResult(t, s, "image_tint_swatch", map[string]interface{}{"url": name, "size": 64}, &got)

	if got.Width != 64 || got.Height != 64 {
		t.Errorf("size: got %dx%d, want 64x64", got.Width, got.Height)
	}
	if got.Color != redTint {
		t.Errorf("Color: got %s, want %s", got.Color, redTint)
	}
	if got.MimeType != "image/png" {
		t.Errorf("MimeType: got %s", got.MimeType)
	}
	if _, err := base64.StdEncoding.DecodeString(got.ImageBase64); err != nil {
		t.Errorf("ImageBase64 is not valid base64: %v", err)
	}
}

func TestHandleToolsCall_Errors(t *testing.T) {
	s, dir := newTestServer(t)
	poster := writePoster(t, dir, "a.png", 10, 10, red)

	tests := []struct {
		name     string
		tool     string
		args     interface{}
		wantCode int
	}{
		{"unknown tool", "image_ocr_full", map[string]interface{}{}, -32000},
		{"missing url", "tint_color", map[string]interface{}{}, -32602},
		{"blank url", "tint_extract", map[string]interface{}{"url": "  "}, -32602},
		{"missing urls", "tint_colors", map[string]interface{}{}, -32602},
		{"wrong type", "tint_colors", map[string]interface{}{"urls": "a.png"}, -32602},
		{"negative count", "image_dominant_colors", map[string]interface{}{"url": "a.png", "count": -1}, -32602},
		{"negative size", "image_tint_swatch", map[string]interface{}{"url": "a.png", "size": -5}, -32602},
		{"huge size", "image_tint_swatch", map[string]interface{}{"url": poster, "size": 100000}, -32602},
		{"huge palette", "image_palette", map[string]interface{}{"url": poster, "count": 100000}, -32602},
		{"huge dominant count", "image_dominant_colors", map[string]interface{}{"url": poster, "count": imaging.MaxDominantColors + 1}, -32602},
		{"image not found", "image_palette", map[string]interface{}{"url": "missing.png"}, -32000},
		{"swatch too small", "image_tint_swatch", map[string]interface{}{"url": poster, "size": 3}, -32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, tt.tool, tt.args)
			if resp.Error == nil {
				t.Fatalf("expected error, got result %v", resp.Result)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("Code: got %d, want %d (%s)", resp.Error.Code, tt.wantCode, resp.Error.Data)
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s, _ := newTestServer(t)

	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	}
	resp := s.handleRequest(context.Background(), req)
	if resp == nil || resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602, got %+v", resp)
	}
}
