package server

import "github.com/ironsheep/poster-tint/internal/imaging"

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func urlProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Image URL (http, https, protocol-relative, site-relative, or a local path)",
	}
}

func noArguments() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Tint Lookups
		{
			Name:        "tint_color",
			Description: "Get the UI tint color for a poster image as a CSS hsl() string. Results are cached per URL (query string and fragment ignored) for 24 hours. Never fails: unreadable images get a stable fallback color derived from the URL.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": urlProperty(),
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        "tint_colors",
			Description: "Get tint colors for many poster images at once. Cached URLs are answered immediately; the rest are extracted at most three at a time. Returns a map keyed by the URLs as given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"urls": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Image URLs to resolve",
					},
				},
				"required": []string{"urls"},
			},
		},
		{
			Name:        "tint_extract",
			Description: "Run color extraction for one image without using the cache and report the details: dominant RGB color, tint, whether the fallback was used and why, source and sample dimensions, and the number of qualifying pixels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": urlProperty(),
				},
				"required": []string{"url"},
			},
		},

		// Cache Management
		{
			Name:        "tint_clear_cache",
			Description: "Remove every cached tint color, in memory and in persistent storage.",
			InputSchema: noArguments(),
		},
		{
			Name:        "tint_cache_stats",
			Description: "Report the number of cached colors and the cache capacity, TTL, schema version and storage namespace.",
			InputSchema: noArguments(),
		},

		// Image Analysis
		{
			Name:        "image_dominant_colors",
			Description: "List the most frequent exact colors of an image after filtering out transparent, near-black, near-white and gray pixels, with their share of the qualifying pixels and the tint each would produce.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": urlProperty(),
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of colors to return (default 5)",
						"default":     5,
						"minimum":     1,
						"maximum":     imaging.MaxDominantColors,
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        "image_palette",
			Description: "Compute a k-means color palette of an image, for comparison with the exact-histogram colors.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": urlProperty(),
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of palette colors (default 3)",
						"default":     3,
						"minimum":     1,
						"maximum":     imaging.MaxPaletteColors,
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        "image_tint_swatch",
			Description: "Render the image inside a border of its tint color and return it as base64-encoded PNG, to preview how the tint looks next to the poster.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": urlProperty(),
					"size": map[string]interface{}{
						"type":        "integer",
						"description": "Edge length of the square swatch in pixels (default 160)",
						"default":     imaging.DefaultSwatchSize,
						"minimum":     1,
						"maximum":     imaging.MaxSwatchSize,
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
