package rendition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

var (
	// ErrInvalidSource is returned for a source with a malformed content hash
	// or non-positive dimensions.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidOutput is returned for an unusable format, background or
	// quality.
	ErrInvalidOutput = errors.New("invalid output parameters")
)

var formatToken = regexp.MustCompile(`^[a-z0-9]+$`)

// Output holds the parameters that change rendition bytes without changing
// its geometry.
type Output struct {
	// Format is the requested file format ("jpg", "png", ...). Empty keeps
	// the source's format and extension, or uses FallbackFormat when that
	// format cannot be written.
	Format string

	// Background is the colour transparent pixels are flattened onto when
	// Format cannot store transparency.
	Background Background

	// Quality is the JPEG quality (1-100). Zero means the codec default.
	Quality int
}

// normalizedFormat returns the lowercased format without a leading dot.
func (o Output) normalizedFormat() (string, error) {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(o.Format), "."))
	if f == "" {
		return "", nil
	}
	if !formatToken.MatchString(f) {
		return "", fmt.Errorf("%w: format %q", ErrInvalidOutput, o.Format)
	}
	if !Writable(f) {
		return "", fmt.Errorf("%w: format %q cannot be written", ErrInvalidOutput, o.Format)
	}
	return f, nil
}

func (o Output) validate() error {
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside 1-100", ErrInvalidOutput, o.Quality)
	}
	if !o.Background.IsZero() {
		if _, err := o.Background.Color(); err != nil {
			return err
		}
	}
	return nil
}

// FallbackFormat is used when no format is requested and the source's own
// format cannot be written.
const FallbackFormat = "png"

// Writable reports whether renditions can be encoded in format.
func Writable(format string) bool {
	switch format {
	case "jpg", "jpeg", "png", "gif", "tif", "tiff", "bmp":
		return true
	}
	return false
}

// SupportsTransparency reports whether a format keeps an alpha channel.
// Renditions in any other requested format are flattened.
func SupportsTransparency(format string) bool {
	switch format {
	case "png", "gif":
		return true
	}
	return false
}

// IsLossy reports whether a format takes a quality setting.
func IsLossy(format string) bool {
	return format == "jpg" || format == "jpeg"
}

// Background is a flattening colour, given either as a scalar (a hex string
// such as "#fff", a colour name, or a grey level) or as a tuple of 8-bit
// RGB or RGBA components.
type Background struct {
	value      string
	components []int
}

// BackgroundValue returns a scalar background.
func BackgroundValue(v string) Background {
	return Background{value: strings.TrimSpace(v)}
}

// BackgroundRGB returns a tuple background from 3 or 4 components.
func BackgroundRGB(components ...int) Background {
	return Background{components: append([]int(nil), components...)}
}

// IsZero reports whether no background was given.
func (b Background) IsZero() bool {
	return b.value == "" && len(b.components) == 0
}

// Token is the background's representation in a rendition filename: tuple
// components joined by "-", or the scalar verbatim.
func (b Background) Token() string {
	if len(b.components) > 0 {
		parts := make([]string, len(b.components))
		for i, c := range b.components {
			parts[i] = strconv.Itoa(c)
		}
		return strings.Join(parts, "-")
	}
	return b.value
}

// String implements fmt.Stringer.
func (b Background) String() string {
	return b.Token()
}

// Color converts the background to a colour. Hex strings are parsed with
// go-colorful, names are looked up in the SVG 1.1 colour table, and bare
// integers are grey levels.
func (b Background) Color() (color.Color, error) {
	if len(b.components) > 0 {
		if len(b.components) != 3 && len(b.components) != 4 {
			return nil, fmt.Errorf("%w: background needs 3 or 4 components, got %d", ErrInvalidOutput, len(b.components))
		}
		c := [4]uint8{0, 0, 0, 255}
		for i, v := range b.components {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: background component %d outside 0-255", ErrInvalidOutput, v)
			}
			c[i] = uint8(v)
		}
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
	}

	switch {
	case b.value == "":
		return nil, fmt.Errorf("%w: empty background", ErrInvalidOutput)
	case strings.HasPrefix(b.value, "#"):
		c, err := colorful.Hex(b.value)
		if err != nil {
			return nil, fmt.Errorf("%w: background %q: %v", ErrInvalidOutput, b.value, err)
		}
		r, g, bl := c.RGB255()
		return color.NRGBA{R: r, G: g, B: bl, A: 255}, nil
	}

	if c, ok := colornames.Map[strings.ToLower(b.value)]; ok {
		return c, nil
	}
	if grey, err := strconv.Atoi(b.value); err == nil && grey >= 0 && grey <= 255 {
		return color.Gray{Y: uint8(grey)}, nil
	}
	return nil, fmt.Errorf("%w: unknown background %q", ErrInvalidOutput, b.value)
}

// UnmarshalJSON accepts a string, a number, or an array of components.
func (b *Background) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*b = Background{}
		return nil
	case len(data) > 0 && data[0] == '[':
		var components []int
		if err := json.Unmarshal(data, &components); err != nil {
			return fmt.Errorf("background: %w", err)
		}
		*b = BackgroundRGB(components...)
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("background: %w", err)
		}
		*b = BackgroundValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	*b = BackgroundValue(n.String())
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (b Background) MarshalJSON() ([]byte, error) {
	if len(b.components) > 0 {
		return json.Marshal(b.components)
	}
	if b.value == "" {
		return []byte("null"), nil
	}
	return json.Marshal(b.value)
}
