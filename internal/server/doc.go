// Package server implements the MCP (Model Context Protocol) server for image renditions.
//
// This package provides a JSON-RPC 2.0 server that exposes the rendition
// pipeline through the MCP protocol, so that site generators and AI agents
// can ask for correctly sized, cache-friendly copies of source images.
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
//   - image_load: Locate an image and report its hash, size and format
//   - image_rendition: Produce one rendition
//   - image_rendition_set: Produce a rendition at several output scales, with a srcset
//   - image_rendition_plan: Report the size and path of a rendition without rendering it
//
// Rendition tools accept the resize constraints in snake_case (resize,
// scale, scale_min_width, scale_min_height, width, height, max_width,
// max_height, fill_crop_x, fill_crop_y, output_scale) together with the
// output parameters format, background and quality.
//
// # Caching
//
// Source metadata is kept in an in-memory index keyed by path and refreshed
// when a file's modification time changes. Renditions are cached on disk:
// their path is derived from the source content hash and every parameter,
// so an existing file at that path is always the right one.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(server.Options{Index: index, Renderer: renderer})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
