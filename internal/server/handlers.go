package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironsheep/image-rendition-mcp/internal/geometry"
	"github.com/ironsheep/image-rendition-mcp/internal/imaging"
	"github.com/ironsheep/image-rendition-mcp/internal/rendition"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "image_rendition").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
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
//  2. Resolves and indexes the source image
//  3. Converts the arguments to constraints and output parameters
//  4. Calls the renderer
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_load":
		return s.handleImageLoad(args)
	case "image_rendition":
		return s.handleImageRendition(ctx, args)
	case "image_rendition_set":
		return s.handleImageRenditionSet(ctx, args)
	case "image_rendition_plan":
		return s.handleImageRenditionPlan(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// source resolves an image reference and returns its indexed record.
func (s *Server) source(path string) (imaging.Record, error) {
	if path == "" {
		return imaging.Record{}, fmt.Errorf("path is required")
	}
	resolved, err := s.index.Find(path)
	if err != nil {
		return imaging.Record{}, err
	}
	return s.index.Lookup(resolved)
}

// === Source Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.source(a.Path)
}

// === Rendition Handlers ===

// renditionArgs are the constraint and output arguments shared by the
// rendition tools. Pointer fields distinguish "not given" from zero so that
// an explicit zero is rejected rather than ignored.
type renditionArgs struct {
	Path string `json:"path"`

	Resize         string   `json:"resize"`
	Scale          *float64 `json:"scale"`
	ScaleMinWidth  *float64 `json:"scale_min_width"`
	ScaleMinHeight *float64 `json:"scale_min_height"`
	Width          *float64 `json:"width"`
	Height         *float64 `json:"height"`
	MaxWidth       *float64 `json:"max_width"`
	MaxHeight      *float64 `json:"max_height"`
	FillCropX      *float64 `json:"fill_crop_x"`
	FillCropY      *float64 `json:"fill_crop_y"`
	OutputScale    *float64 `json:"output_scale"`

	Format     string               `json:"format"`
	Background rendition.Background `json:"background"`
	Quality    int                  `json:"quality"`
}

func (a renditionArgs) constraints() (geometry.Constraints, error) {
	mode, err := geometry.ParseMode(a.Resize)
	if err != nil {
		return geometry.Constraints{}, err
	}

	opts := []geometry.Option{geometry.WithMode(mode)}
	add := func(v *float64, opt func(float64) geometry.Option) {
		if v != nil {
			opts = append(opts, opt(*v))
		}
	}
	add(a.Scale, geometry.WithScale)
	add(a.ScaleMinWidth, geometry.WithScaleMinWidth)
	add(a.ScaleMinHeight, geometry.WithScaleMinHeight)
	add(a.Width, geometry.WithWidth)
	add(a.Height, geometry.WithHeight)
	add(a.MaxWidth, geometry.WithMaxWidth)
	add(a.MaxHeight, geometry.WithMaxHeight)
	add(a.OutputScale, geometry.WithOutputScale)

	if a.FillCropX != nil || a.FillCropY != nil {
		x, y := 0.5, 0.5
		if a.FillCropX != nil {
			x = *a.FillCropX
		}
		if a.FillCropY != nil {
			y = *a.FillCropY
		}
		opts = append(opts, geometry.WithFillCrop(x, y))
	}

	return geometry.NewConstraints(opts...)
}

func (a renditionArgs) output() rendition.Output {
	return rendition.Output{
		Format:     a.Format,
		Background: a.Background,
		Quality:    a.Quality,
	}
}

// prepare converts decoded rendition arguments into constraints and indexes
// their source.
func (s *Server) prepare(a *renditionArgs) (rendition.Source, geometry.Constraints, error) {
	c, err := a.constraints()
	if err != nil {
		return rendition.Source{}, geometry.Constraints{}, err
	}
	rec, err := s.source(a.Path)
	if err != nil {
		return rendition.Source{}, geometry.Constraints{}, err
	}
	return rec.Source(), c, nil
}

func (s *Server) handleImageRendition(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a renditionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, c, err := s.prepare(&a)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(ctx, src, c, a.output())
}

type renditionSetArgs struct {
	renditionArgs
	Scales []float64 `json:"scales"`
}

func (s *Server) handleImageRenditionSet(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a renditionSetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, c, err := s.prepare(&a.renditionArgs)
	if err != nil {
		return nil, err
	}
	if len(a.Scales) == 0 {
		a.Scales = s.scales
	}
	return s.renderer.RenderSet(ctx, src, c, a.output(), a.Scales)
}

// planResult is the image_rendition_plan response.
type planResult struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	CropBox []int  `json:"crop_box,omitempty"`
	Flatten bool   `json:"flatten"`
	Exists  bool   `json:"exists"`
}

func (s *Server) handleImageRenditionPlan(args json.RawMessage) (interface{}, error) {
	var a renditionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, c, err := s.prepare(&a)
	if err != nil {
		return nil, err
	}
	plan, err := s.renderer.Plan(src, c, a.output())
	if err != nil {
		return nil, err
	}

	res := &planResult{
		Path:    plan.Key.Path,
		Format:  plan.Key.Format,
		Width:   plan.Geometry.Width,
		Height:  plan.Geometry.Height,
		Flatten: plan.Key.Flatten,
		Exists:  plan.Exists,
	}
	if plan.Geometry.Cropped() {
		b := plan.Geometry.Box
		res.CropBox = []int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
	}
	return res, nil
}
