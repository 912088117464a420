package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ironsheep/image-rendition-mcp/internal/geometry"
	"github.com/ironsheep/image-rendition-mcp/internal/rendition"
)

// renderFlags maps float flags to the constraint they set. Only flags the
// user actually passed are applied.
var renderFlags = []struct {
	name  string
	usage string
	opt   func(float64) geometry.Option
}{
	{"scale", "divide the source size by this factor", geometry.WithScale},
	{"scale-min-width", "raise the width to at least this after scaling", geometry.WithScaleMinWidth},
	{"scale-min-height", "raise the height to at least this after scaling", geometry.WithScaleMinHeight},
	{"width", "target width in pixels", geometry.WithWidth},
	{"height", "target height in pixels", geometry.WithHeight},
	{"max-width", "hard width limit", geometry.WithMaxWidth},
	{"max-height", "hard height limit", geometry.WithMaxHeight},
	{"output-scale", "multiply the final size", geometry.WithOutputScale},
}

func newRenderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <image>",
		Short: "Render one rendition and print its description as JSON",
		Long: `Render resolves <image> against the search paths, produces the requested
rendition under the static directory if it does not exist yet, and prints the
result as JSON.

With --scales the rendition is produced once per output scale and the result
includes an HTML srcset. With --plan nothing is rendered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.render(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.String("resize", "fit", "resize mode: fit, fill or stretch")
	for _, rf := range renderFlags {
		f.Float64(rf.name, 0, rf.usage)
	}
	f.Float64("fill-crop-x", 0.5, "horizontal crop position for fill, 0 (left) to 1 (right)")
	f.Float64("fill-crop-y", 0.5, "vertical crop position for fill, 0 (top) to 1 (bottom)")
	f.String("format", "", "output format (default: the source format)")
	f.String("background", "", "flatten colour for formats without alpha: #hex, name, r,g,b or grey level")
	f.Int("quality", 0, "JPEG quality 1-100 (default 75)")
	f.Float64Slice("scales", nil, "render a set at these output scales, e.g. 1,2")
	f.Bool("plan", false, "print the resolved geometry and path without rendering")
	return cmd
}

func (a *app) render(cmd *cobra.Command, name string) error {
	f := cmd.Flags()

	c, err := constraintsFromFlags(f)
	if err != nil {
		return err
	}
	o := outputFromFlags(f)

	ix := a.index()
	path, err := ix.Find(name)
	if err != nil {
		return err
	}
	rec, err := ix.Lookup(path)
	if err != nil {
		return err
	}

	r := a.renderer(prometheus.NewRegistry())
	src := rec.Source()

	var out interface{}
	plan, _ := f.GetBool("plan")
	scales, _ := f.GetFloat64Slice("scales")
	switch {
	case plan:
		var p *rendition.Plan
		if p, err = r.Plan(src, c, o); err == nil {
			out = planOutput(p)
		}
	case len(scales) > 0:
		out, err = r.RenderSet(cmd.Context(), src, c, o, scales)
	default:
		out, err = r.Render(cmd.Context(), src, c, o)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func constraintsFromFlags(f *pflag.FlagSet) (geometry.Constraints, error) {
	resize, _ := f.GetString("resize")
	mode, err := geometry.ParseMode(resize)
	if err != nil {
		return geometry.Constraints{}, err
	}

	opts := []geometry.Option{geometry.WithMode(mode)}
	for _, rf := range renderFlags {
		if f.Changed(rf.name) {
			v, _ := f.GetFloat64(rf.name)
			opts = append(opts, rf.opt(v))
		}
	}
	if f.Changed("fill-crop-x") || f.Changed("fill-crop-y") {
		x, _ := f.GetFloat64("fill-crop-x")
		y, _ := f.GetFloat64("fill-crop-y")
		opts = append(opts, geometry.WithFillCrop(x, y))
	}
	return geometry.NewConstraints(opts...)
}

func outputFromFlags(f *pflag.FlagSet) rendition.Output {
	format, _ := f.GetString("format")
	quality, _ := f.GetInt("quality")
	bg, _ := f.GetString("background")
	return rendition.Output{
		Format:     format,
		Background: parseBackground(bg),
		Quality:    quality,
	}
}

// parseBackground reads "r,g,b" or "r,g,b,a" as a component tuple and
// anything else as a single value.
func parseBackground(s string) rendition.Background {
	s = strings.TrimSpace(s)
	if s == "" {
		return rendition.Background{}
	}
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return rendition.BackgroundValue(s)
	}
	components := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return rendition.BackgroundValue(s)
		}
		components[i] = n
	}
	return rendition.BackgroundRGB(components...)
}

// planOutput flattens a plan into the shape the MCP plan tool reports.
func planOutput(p *rendition.Plan) map[string]interface{} {
	out := map[string]interface{}{
		"path":    p.Key.Path,
		"format":  p.Key.Format,
		"width":   p.Geometry.Width,
		"height":  p.Geometry.Height,
		"flatten": p.Key.Flatten,
		"exists":  p.Exists,
	}
	if p.Geometry.Cropped() {
		b := p.Geometry.Box
		out["crop_box"] = []int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
	}
	return out
}
