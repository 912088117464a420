package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-rendition-mcp/internal/geometry"
	"github.com/ironsheep/image-rendition-mcp/internal/rendition"
)

// ErrUnsupportedFormat is returned when the codec cannot write a format.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// DefaultJPEGQuality is used when a JPEG rendition has no explicit quality.
const DefaultJPEGQuality = 75

// Codec renders renditions with Lanczos resampling. It implements
// rendition.Codec and holds no state.
type Codec struct{}

// NewCodec returns a Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Render decodes job.Source, crops and resamples it to job.Geometry, flattens
// it onto job.Background when one is set, and encodes it to w in job.Format.
func (c *Codec) Render(ctx context.Context, w io.Writer, job rendition.Job) error {
	enc, err := Encoder(job.Format, job.Quality)
	if err != nil {
		return err
	}

	src, err := imaging.Open(job.Source)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var out image.Image = Resample(src, job.Geometry)
	if job.Background != nil {
		out = Flatten(out, job.Background)
	}

	if err := enc(w, out); err != nil {
		return fmt.Errorf("failed to encode rendition: %w", err)
	}
	return nil
}

// Resample crops img to the geometry's box, if any, and resizes the result to
// the geometry's size.
func Resample(img image.Image, g geometry.Geometry) *image.NRGBA {
	if g.Cropped() {
		img = imaging.Crop(img, g.Box.Add(img.Bounds().Min))
	}

	b := img.Bounds()
	if b.Dx() == g.Width && b.Dy() == g.Height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, g.Width, g.Height, imaging.Lanczos)
}

// Flatten composites img over a solid background, removing transparency.
func Flatten(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// Encoder returns the encoder for an output format.
//
// JPEG and PNG go through bild's encoders, which take the quality setting
// directly; GIF, TIFF and BMP go through disintegration/imaging.
func Encoder(format string, quality int) (imgio.Encoder, error) {
	switch format {
	case "jpg", "jpeg":
		if quality <= 0 {
			quality = DefaultJPEGQuality
		}
		return imgio.JPEGEncoder(quality), nil
	case "png":
		return imgio.PNGEncoder(), nil
	case "gif":
		return imagingEncoder(imaging.GIF), nil
	case "tif", "tiff":
		return imagingEncoder(imaging.TIFF), nil
	case "bmp":
		return imagingEncoder(imaging.BMP), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func imagingEncoder(format imaging.Format) imgio.Encoder {
	return func(w io.Writer, img image.Image) error {
		return imaging.Encode(w, img, format)
	}
}
