// Package server implements the MCP (Model Context Protocol) server for poster tint tools.
//
// This package provides a JSON-RPC 2.0 server that exposes tint extraction
// and the supporting image analysis through the MCP protocol, so an assistant
// or a UI build step can ask for the accent color of a poster by URL.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Tint Lookups:
//   - tint_color: Tint of one image, cached
//   - tint_colors: Tints of many images, at most three extractions at a time
//   - tint_extract: Uncached extraction with diagnostics
//
// Cache Management:
//   - tint_clear_cache: Drop every cached color
//   - tint_cache_stats: Size and settings of the color cache
//
// Image Analysis:
//   - image_dominant_colors: Most frequent exact colors
//   - image_palette: K-means palette
//   - image_tint_swatch: PNG preview of the poster framed by its tint
//
// # Caching
//
// Tint colors live in the tint.Service cache (persisted, 24 hour TTL).
// Decoded images used by the image_* tools are kept in an
// imaging.ImageCache for the lifetime of the process; tint_clear_cache
// empties both.
//
// # Error Handling
//
// Tint lookups never fail: unreadable images resolve to a fallback color.
// Other errors are returned as JSON-RPC error responses with:
//   - code: -32602 for missing or malformed arguments, -32000 for tool failures
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(svc, imaging.NewImageCache(loader, 0), server.Options{})
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    logger.Fatal("server failed", zap.Error(err))
//	}
package server
