package server

import (
	"context"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-rendition-mcp/internal/imaging"
	"github.com/ironsheep/image-rendition-mcp/internal/rendition"
)

// callTool issues a tools/call request and returns the raw response.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	require.NotNil(t, resp)
	return resp
}

// decodeToolResult unwraps the MCP text content of a successful response
// into v.
func decodeToolResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "Result should be a map")
	content, ok := result["content"].([]map[string]interface{})
	require.True(t, ok, "content should be a slice")
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0]["type"])

	text, ok := content[0]["text"].(string)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(text), v))
}

func requireToolError(t *testing.T, resp *MCPResponse) *MCPError {
	t.Helper()
	require.NotNil(t, resp.Error, "expected an error response")
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, "Tool execution failed", resp.Error.Message)
	return resp.Error
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	env := newTestEnv(t)
	path := env.createTestImageFile(t, "Photo.png", 400, 300, color.NRGBA{255, 0, 0, 255})

	for _, ref := range []string{"Photo.png", path} {
		t.Run(ref, func(t *testing.T) {
			var rec imaging.Record
			decodeToolResult(t, callTool(t, env.server, "image_load", map[string]interface{}{"path": ref}), &rec)

			assert.Equal(t, path, rec.Path)
			assert.Equal(t, 400, rec.Width)
			assert.Equal(t, 300, rec.Height)
			assert.Equal(t, "png", rec.Format)
			assert.Len(t, rec.Hash, 32)
		})
	}
}

func TestHandleToolsCall_ImageLoad_Errors(t *testing.T) {
	env := newTestEnv(t)

	err := requireToolError(t, callTool(t, env.server, "image_load", map[string]interface{}{"path": "missing.png"}))
	assert.Contains(t, err.Data, imaging.ErrNotFound.Error())

	requireToolError(t, callTool(t, env.server, "image_load", map[string]interface{}{}))
}

func TestHandleToolsCall_ImageRendition(t *testing.T) {
	env := newTestEnv(t)
	env.createTestImageFile(t, "Photo.png", 400, 300, color.NRGBA{255, 0, 0, 255})
	args := map[string]interface{}{"path": "Photo.png", "width": 200}

	var first rendition.Result
	decodeToolResult(t, callTool(t, env.server, "image_rendition", args), &first)

	assert.Equal(t, 200, first.Width)
	assert.Equal(t, 150, first.Height)
	assert.Nil(t, first.CropBox)
	assert.False(t, first.Cached)
	assert.True(t, strings.HasPrefix(first.Path, "_img/"), first.Path)
	assert.Contains(t, first.Path, "/photo_")
	assert.True(t, strings.HasSuffix(first.Path, "_200x150.png"), first.Path)

	info, err := os.Stat(filepath.Join(env.staticDir, filepath.FromSlash(first.Path)))
	require.NoError(t, err, "rendition should be written under the static dir")
	assert.Positive(t, info.Size())

	var second rendition.Result
	decodeToolResult(t, callTool(t, env.server, "image_rendition", args), &second)
	assert.Equal(t, first.Path, second.Path)
	assert.True(t, second.Cached)
}

func TestHandleToolsCall_ImageRendition_Fill(t *testing.T) {
	env := newTestEnv(t)
	env.createTestImageFile(t, "Photo.png", 400, 300, color.NRGBA{0, 0, 255, 255})

	var res rendition.Result
	decodeToolResult(t, callTool(t, env.server, "image_rendition", map[string]interface{}{
		"path":   "Photo.png",
		"resize": "fill",
		"width":  100,
		"height": 100,
	}), &res)

	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 100, res.Height)
	assert.Equal(t, []int{50, 0, 350, 300}, res.CropBox)
	assert.True(t, strings.HasSuffix(res.Path, "_100x100_50-0-350-300.png"), res.Path)

	var left rendition.Result
	decodeToolResult(t, callTool(t, env.server, "image_rendition", map[string]interface{}{
		"path":        "Photo.png",
		"resize":      "fill",
		"width":       100,
		"height":      100,
		"fill_crop_x": 0,
	}), &left)
	assert.Equal(t, []int{0, 0, 300, 300}, left.CropBox)
	assert.NotEqual(t, res.Path, left.Path)
}

func TestHandleToolsCall_ImageRendition_Output(t *testing.T) {
	env := newTestEnv(t)
	env.createTestImageFile(t, "Photo.png", 400, 300, color.NRGBA{0, 0, 0, 0})

	var res rendition.Result
	decodeToolResult(t, callTool(t, env.server, "image_rendition", map[string]interface{}{
		"path":       "Photo.png",
		"width":      200,
		"format":     "JPG",
		"background": []int{255, 255, 255},
		"quality":    80,
	}), &res)

	assert.True(t, strings.HasSuffix(res.Path, "_200x150_b255-255-255_q80.jpg"), res.Path)
	_, err := os.Stat(filepath.Join(env.staticDir, filepath.FromSlash(res.Path)))
	assert.NoError(t, err)
}

func TestHandleToolsCall_ImageRendition_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.createTestImageFile(t, "Photo.png", 40, 30, color.White)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"unknown mode", map[string]interface{}{"path": "Photo.png", "resize": "squash"}},
		{"zero width", map[string]interface{}{"path": "Photo.png", "width": 0}},
		{"negative scale", map[string]interface{}{"path": "Photo.png", "scale": -2}},
		{"crop out of range", map[string]interface{}{"path": "Photo.png", "fill_crop_y": 1.5}},
		{"unsafe format", map[string]interface{}{"path": "Photo.png", "format": "../png"}},
		{"unsupported format", map[string]interface{}{"path": "Photo.png", "format": "webp"}},
		{"bad background", map[string]interface{}{"path": "Photo.png", "format": "jpg", "background": "no-such-colour"}},
		{"bad quality", map[string]interface{}{"path": "Photo.png", "format": "jpg", "quality": 101}},
		{"missing source", map[string]interface{}{"path": "Other.png"}},
		{"escaping path", map[string]interface{}{"path": "../Photo.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireToolError(t, callTool(t, env.server, "image_rendition", tt.args))
		})
	}
}

func TestHandleToolsCall_ImageRenditionSet(t *testing.T) {
	env := newTestEnv(t)
	env.createTestImageFile(t, "Photo.png", 400, 300, color.NRGBA{0, 255, 0, 255})

	var set rendition.Set
	decodeToolResult(t, callTool(t, env.server, "image_rendition_set", map[string]interface{}{
		"path":  "Photo.png",
		"width": 100,
	}), &set)

	require.Len(t, set.Renditions, 2)
	assert.Equal(t, []float64{1, 2}, set.Scales, "server default scales")
	assert.Equal(t, 100, set.Renditions[0].Width)
	assert.Equal(t, 75, set.Renditions[0].Height)
	assert.Equal(t, 200, set.Renditions[1].Width)
	assert.Equal(t, 150, set.Renditions[1].Height)
	assert.Equal(t, set.Renditions[0].Path+" 1x, "+set.Renditions[1].Path+" 2x", set.Srcset)

	decodeToolResult(t, callTool(t, env.server, "image_rendition_set", map[string]interface{}{
		"path":   "Photo.png",
		"width":  100,
		"scales": []float64{3},
	}), &set)
	require.Len(t, set.Renditions, 1)
	assert.Equal(t, 300, set.Renditions[0].Width)
	assert.True(t, strings.HasSuffix(set.Srcset, " 3x"), set.Srcset)
}

func TestHandleToolsCall_ImageRenditionPlan(t *testing.T) {
	env := newTestEnv(t)
	env.createTestImageFile(t, "Photo.png", 400, 300, color.White)
	args := map[string]interface{}{"path": "Photo.png", "max_width": 100, "format": "jpg"}

	var before planResult
	decodeToolResult(t, callTool(t, env.server, "image_rendition_plan", args), &before)
	assert.Equal(t, 100, before.Width)
	assert.Equal(t, 75, before.Height)
	assert.Equal(t, "jpg", before.Format)
	assert.True(t, before.Flatten)
	assert.False(t, before.Exists)

	_, err := os.Stat(filepath.Join(env.staticDir, filepath.FromSlash(before.Path)))
	assert.True(t, os.IsNotExist(err), "planning must not render")

	var res rendition.Result
	decodeToolResult(t, callTool(t, env.server, "image_rendition", args), &res)
	assert.Equal(t, before.Path, res.Path)

	var after planResult
	decodeToolResult(t, callTool(t, env.server, "image_rendition_plan", args), &after)
	assert.True(t, after.Exists)
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	env := newTestEnv(t)
	err := requireToolError(t, callTool(t, env.server, "image_sharpen", map[string]interface{}{}))
	assert.Contains(t, err.Data, "unknown tool")
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	env := newTestEnv(t)
	resp := env.server.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      7,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
	assert.Equal(t, 7, resp.ID)
}

func TestRenditionArgs_Constraints(t *testing.T) {
	var a renditionArgs
	require.NoError(t, json.Unmarshal([]byte(`{"resize":"FILL","width":10,"height":20,"fill_crop_x":1}`), &a))

	c, err := a.constraints()
	require.NoError(t, err)
	assert.Equal(t, "fill", string(c.Mode()))
	assert.Equal(t, 1.0, c.OutputScale())

	a = renditionArgs{}
	c, err = a.constraints()
	require.NoError(t, err)
	assert.Equal(t, "fit", string(c.Mode()), "fit is the default mode")
}
