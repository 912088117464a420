package rendition

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ironsheep/image-rendition-mcp/internal/geometry"
)

// Job is everything a Codec needs to produce one rendition.
type Job struct {
	// Source is the path of the source image file.
	Source string

	// Geometry is the target size and optional crop box.
	Geometry geometry.Geometry

	// Format is the output format without a leading dot.
	Format string

	// Background is the flattening colour, or nil to leave alpha handling
	// to the encoder.
	Background color.Color

	// Quality is the JPEG quality, zero for the codec default.
	Quality int
}

// Codec decodes a source, resamples it and encodes the result to w.
type Codec interface {
	Render(ctx context.Context, w io.Writer, job Job) error
}

// Plan is a resolved rendition that may or may not exist yet.
type Plan struct {
	Key      Key
	Geometry geometry.Geometry
	Exists   bool
}

// Result describes a rendition on disk.
type Result struct {
	// Path is relative to the static root and slash-separated.
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// CropBox is [x0, y0, x1, y1] in source pixels, for fill renditions.
	CropBox []int `json:"crop_box,omitempty"`

	// Cached is true when no codec work was done for this request.
	Cached bool `json:"cached"`
}

// Set is a group of renditions of one constraint set at several output
// scales.
type Set struct {
	Renditions []*Result `json:"renditions"`
	Scales     []float64 `json:"scales"`

	// Srcset is an HTML srcset value ("a.jpg 1x, b.jpg 2x") built from the
	// URL-escaped rendition paths.
	Srcset string `json:"srcset"`
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// StaticDir is the directory rendition paths are relative to.
	StaticDir string

	Keys    KeyBuilder
	Codec   Codec
	Logger  *slog.Logger
	Metrics *Metrics
}

// Renderer produces renditions on demand, treating the existence of the
// output file as a cache hit.
//
// Renderer is safe for concurrent use. Concurrent requests for the same key
// share a single codec invocation, and output is written to a temporary file
// and renamed into place, so a partially written rendition is never visible
// at its final path.
type Renderer struct {
	staticDir string
	keys      KeyBuilder
	codec     Codec
	logger    *slog.Logger
	metrics   *Metrics

	group singleflight.Group
}

// NewRenderer creates a Renderer. A nil Logger uses slog.Default().
func NewRenderer(opts RendererOptions) *Renderer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		staticDir: opts.StaticDir,
		keys:      opts.Keys,
		codec:     opts.Codec,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Plan resolves geometry and key for a request and checks whether the
// rendition already exists. It never invokes the codec.
func (r *Renderer) Plan(src Source, c geometry.Constraints, o Output) (*Plan, error) {
	g, err := geometry.Resolve(src.Width, src.Height, c)
	if err != nil {
		return nil, err
	}
	key, err := r.keys.Build(src, g, o)
	if err != nil {
		return nil, err
	}
	exists, err := r.exists(key.Path)
	if err != nil {
		return nil, err
	}
	return &Plan{Key: key, Geometry: g, Exists: exists}, nil
}

// Render returns the rendition of src for the given constraints, generating
// it first if it does not exist.
func (r *Renderer) Render(ctx context.Context, src Source, c geometry.Constraints, o Output) (*Result, error) {
	plan, err := r.Plan(src, c, o)
	if err != nil {
		r.metrics.observe(resultError)
		return nil, err
	}

	res := &Result{
		Path:   plan.Key.Path,
		Width:  plan.Geometry.Width,
		Height: plan.Geometry.Height,
	}
	if plan.Geometry.Cropped() {
		b := plan.Geometry.Box
		res.CropBox = []int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
	}

	if plan.Exists {
		r.metrics.observe(resultHit)
		r.logger.Debug("rendition cache hit", "path", plan.Key.Path)
		res.Cached = true
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		r.metrics.observe(resultError)
		return nil, err
	}

	// Only the caller whose closure runs did the work; everyone else waited
	// on it. The work is detached from that caller's cancellation, and each
	// caller stops waiting when its own context is done.
	executed := false
	ch := r.group.DoChan(plan.Key.Path, func() (interface{}, error) {
		executed = true
		return r.generate(context.WithoutCancel(ctx), src, plan, o)
	})

	var call singleflight.Result
	select {
	case <-ctx.Done():
		r.metrics.observe(resultError)
		return nil, ctx.Err()
	case call = <-ch:
	}
	if call.Err != nil {
		r.metrics.observe(resultError)
		return nil, call.Err
	}

	switch {
	case !executed:
		r.metrics.observe(resultShared)
		res.Cached = true
	case call.Val.(bool):
		r.metrics.observe(resultMiss)
	default:
		r.metrics.observe(resultHit)
		res.Cached = true
	}
	return res, nil
}

// RenderSet renders c at each output scale concurrently. Results are in the
// order of scales.
func (r *Renderer) RenderSet(ctx context.Context, src Source, c geometry.Constraints, o Output, scales []float64) (*Set, error) {
	if len(scales) == 0 {
		return nil, fmt.Errorf("%w: no output scales", geometry.ErrInvalidConstraint)
	}

	results := make([]*Result, len(scales))
	g, gctx := errgroup.WithContext(ctx)
	for i, scale := range scales {
		i, scale := i, scale
		g.Go(func() error {
			sc, err := c.AtScale(scale)
			if err != nil {
				return err
			}
			res, err := r.Render(gctx, src, sc, o)
			if err != nil {
				return fmt.Errorf("rendition at %gx: %w", scale, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]string, len(results))
	for i, res := range results {
		entries[i] = srcsetURL(res.Path) + " " + strconv.FormatFloat(scales[i], 'g', -1, 64) + "x"
	}

	return &Set{
		Renditions: results,
		Scales:     append([]float64(nil), scales...),
		Srcset:     strings.Join(entries, ", "),
	}, nil
}

// srcsetURL escapes each segment of a rendition path so that characters such
// as '#' or ',' from a background token survive inside a srcset.
func srcsetURL(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// generate runs inside the per-key critical section. It reports false when
// the rendition turned out to exist already.
func (r *Renderer) generate(ctx context.Context, src Source, plan *Plan, o Output) (bool, error) {
	if exists, err := r.exists(plan.Key.Path); err != nil || exists {
		return false, err
	}

	job := Job{
		Source:   src.Path,
		Geometry: plan.Geometry,
		Format:   plan.Key.Format,
		Quality:  o.Quality,
	}
	if plan.Key.Flatten && !o.Background.IsZero() {
		bg, err := o.Background.Color()
		if err != nil {
			return false, err
		}
		job.Background = bg
	}

	start := time.Now()
	if err := r.write(ctx, r.fullPath(plan.Key.Path), job); err != nil {
		r.logger.Error("rendition failed", "path", plan.Key.Path, "source", src.Path, "error", err)
		return false, err
	}
	elapsed := time.Since(start)
	r.metrics.observeRender(elapsed)

	r.logger.Info("rendition generated",
		"path", plan.Key.Path,
		"source", src.Path,
		"width", plan.Geometry.Width,
		"height", plan.Geometry.Height,
		"duration", elapsed,
	)
	return true, nil
}

// write encodes job into a temporary file next to dst and renames it into
// place.
func (r *Renderer) write(ctx context.Context, dst string, job Job) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create rendition directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if err := r.codec.Render(ctx, f, job); err != nil {
		f.Close()
		return fmt.Errorf("failed to render %s: %w", job.Source, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write rendition: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move rendition into place: %w", err)
	}
	return nil
}

func (r *Renderer) exists(rel string) (bool, error) {
	_, err := os.Stat(r.fullPath(rel))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat rendition: %w", err)
	}
}

func (r *Renderer) fullPath(rel string) string {
	return filepath.Join(r.staticDir, filepath.FromSlash(rel))
}
