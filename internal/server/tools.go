package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Source Information
		{
			Name:        "image_load",
			Description: "Locate an image on the search path and return its content hash, dimensions and format.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Renditions
		{
			Name: "image_rendition",
			Description: "Produce a resized rendition of an image and return its path relative to the static directory. " +
				"Existing renditions are reused; the path changes whenever the source content or any parameter changes.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": renditionProperties(),
				"required":   []string{"path"},
			},
		},
		{
			Name: "image_rendition_set",
			Description: "Produce the same rendition at several output scales (for example 1x and 2x) and return " +
				"every path plus an HTML srcset value.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(renditionProperties(), map[string]interface{}{
					"scales": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
						"description": "Output scales to render. Defaults to the server's configured scales (usually [1, 2])",
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name: "image_rendition_plan",
			Description: "Resolve the size, crop box and path a rendition would have, and whether it already exists, " +
				"without rendering anything.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": renditionProperties(),
				"required":   []string{"path"},
			},
		},
	}
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file, or a path relative to one of the configured search paths",
	}
}

func positiveNumber(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":             "number",
		"exclusiveMinimum": 0,
		"description":      description,
	}
}

func unitNumber(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"minimum":     0,
		"maximum":     1,
		"default":     0.5,
		"description": description,
	}
}

// renditionProperties returns the schema properties shared by the rendition
// tools. Constraints are applied in the order they are listed.
func renditionProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty(),
		"resize": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"fit", "fill", "stretch"},
			"default":     "fit",
			"description": "fit keeps the aspect ratio inside the box; fill covers the box and crops the overflow; stretch sets both sides independently",
		},
		"scale":            positiveNumber("Divide the source size by this factor"),
		"scale_min_width":  positiveNumber("Raise the width to at least this after scaling"),
		"scale_min_height": positiveNumber("Raise the height to at least this after scaling"),
		"width":            positiveNumber("Target width in pixels; the image is never upscaled past the source in fit and fill"),
		"height":           positiveNumber("Target height in pixels"),
		"max_width":        positiveNumber("Hard width limit applied after width and height"),
		"max_height":       positiveNumber("Hard height limit applied after width and height"),
		"fill_crop_x":      unitNumber("Horizontal crop position for fill: 0 keeps the left edge, 1 the right"),
		"fill_crop_y":      unitNumber("Vertical crop position for fill: 0 keeps the top edge, 1 the bottom"),
		"output_scale":     positiveNumber("Multiply the final size, e.g. 2 for a high-density rendition"),
		"format": map[string]interface{}{
			"type":        "string",
			"description": "Output format (jpg, png, gif, tif, bmp). Defaults to the source format",
		},
		"background": map[string]interface{}{
			"type":        []string{"string", "array", "integer"},
			"items":       map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 255},
			"description": "Colour for transparent areas when the format has no alpha: #hex, a colour name, [r,g,b(,a)] or a grey level",
		},
		"quality": map[string]interface{}{
			"type":        "integer",
			"minimum":     1,
			"maximum":     100,
			"description": "JPEG quality. Defaults to 75",
		},
	}
}

func withProperties(base, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
