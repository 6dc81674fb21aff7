package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/poster-tint/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "tint_color", "image_palette").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// paramsError marks tool arguments that could not be used; it maps to
// JSON-RPC -32602 instead of a tool failure.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{err: fmt.Errorf(format, args...)}
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Malformed arguments return -32602; tool execution errors return -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var pe *paramsError
		if errors.As(err, &pe) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Resolves colors through the tint service or loads images from cache
//  4. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Tint Lookups
	case "tint_color":
		return s.handleTintColor(ctx, args)
	case "tint_colors":
		return s.handleTintColors(ctx, args)
	case "tint_extract":
		return s.handleTintExtract(ctx, args)

	// Cache Management
	case "tint_clear_cache":
		return s.handleTintClearCache(ctx)
	case "tint_cache_stats":
		return s.svc.Stats(ctx), nil

	// Image Analysis
	case "image_dominant_colors":
		return s.handleImageDominantColors(ctx, args)
	case "image_palette":
		return s.handleImagePalette(ctx, args)
	case "image_tint_swatch":
		return s.handleImageTintSwatch(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	resp := &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
		},
	}
	if data != "" {
		resp.Error.Data = data
	}
	return resp
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, treating absent arguments as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &paramsError{err: err}
	}
	return nil
}

// === Tint Lookup Handlers ===

type urlArgs struct {
	URL string `json:"url"`
}

func (a *urlArgs) validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return invalidParams("url is required")
	}
	return nil
}

type tintColorResult struct {
	URL   string `json:"url"`
	Color string `json:"color"`
}

func (s *Server) handleTintColor(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a urlArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &tintColorResult{URL: a.URL, Color: s.svc.GetColor(ctx, a.URL)}, nil
}

type tintColorsArgs struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleTintColors(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a tintColorsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.URLs == nil {
		return nil, invalidParams("urls is required")
	}
	return map[string]interface{}{
		"colors": s.svc.GetColors(ctx, a.URLs),
	}, nil
}

func (s *Server) handleTintExtract(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a urlArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	ext := s.svc.Extract(ctx, a.URL)
	result := map[string]interface{}{
		"extraction": ext,
	}
	if ext.Err != nil {
		result["error"] = ext.Err.Error()
	}
	return result, nil
}

// === Cache Management Handlers ===

func (s *Server) handleTintClearCache(ctx context.Context) (interface{}, error) {
	s.svc.ClearCache(ctx)
	if s.images != nil {
		s.images.Clear()
	}
	return map[string]interface{}{"cleared": true}, nil
}

// === Image Analysis Handlers ===

type imageDominantColorsArgs struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

func (s *Server) handleImageDominantColors(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageDominantColorsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Count == 0 {
		a.Count = 5
	}
	if a.Count < 0 || a.Count > imaging.MaxDominantColors {
		return nil, invalidParams("count must be between 1 and %d, got %d", imaging.MaxDominantColors, a.Count)
	}

	img, err := s.loadImage(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	return imaging.DominantColors(img, a.Count, s.maxDimension), nil
}

type imagePaletteArgs struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

func (s *Server) handleImagePalette(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imagePaletteArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Count == 0 {
		a.Count = 3
	}
	if a.Count < 0 || a.Count > imaging.MaxPaletteColors {
		return nil, invalidParams("count must be between 1 and %d, got %d", imaging.MaxPaletteColors, a.Count)
	}

	img, err := s.loadImage(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	return imaging.Palette(img, a.Count)
}

type imageTintSwatchArgs struct {
	URL  string `json:"url"`
	Size int    `json:"size"`
}

func (s *Server) handleImageTintSwatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageTintSwatchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Size == 0 {
		a.Size = imaging.DefaultSwatchSize
	}
	if a.Size < 0 || a.Size > imaging.MaxSwatchSize {
		return nil, invalidParams("size must be between 1 and %d, got %d", imaging.MaxSwatchSize, a.Size)
	}

	img, err := s.loadImage(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	tint, err := imaging.ParseHSL(s.svc.GetColor(ctx, a.URL))
	if err != nil {
		return nil, err
	}
	return imaging.Swatch(img, tint, a.Size)
}

func (s *Server) loadImage(ctx context.Context, rawURL string) (image.Image, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, invalidParams("url is required")
	}
	return s.images.Load(ctx, rawURL)
}
