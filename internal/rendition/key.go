package rendition

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ironsheep/image-rendition-mcp/internal/geometry"
)

const (
	// DefaultOutputDir is the directory, relative to the static root, that
	// renditions are written under.
	DefaultOutputDir = "_img"

	// DefaultHashSuffixLen is how many trailing hex digits of the content
	// hash are embedded in each filename.
	DefaultHashSuffixLen = 10

	// shardLen is the number of leading hash digits used for the two
	// directory levels (2 + 4).
	shardLen = 6
)

var (
	hexDigest = regexp.MustCompile(`^[0-9a-f]+$`)
	slugRun   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Source identifies a source image by file name and content.
type Source struct {
	// Path is the source file; only its base name is used for naming.
	Path string

	// Hash is the hex digest of the file's full contents.
	Hash string

	Width  int
	Height int
}

// Key is the identity of a rendition.
type Key struct {
	// Path is the slash-separated location relative to the static root.
	Path string

	// Format is the output format, taken from the request or from the
	// source extension, lowercased and without a dot.
	Format string

	// Flatten is set when the requested format has no alpha channel.
	Flatten bool
}

// KeyBuilder derives rendition keys. The zero value uses DefaultOutputDir and
// DefaultHashSuffixLen.
type KeyBuilder struct {
	OutputDir     string
	HashSuffixLen int
}

// Build returns the key for rendering src with geometry g and output o.
//
// Build is deterministic: identical arguments always give an identical key,
// and any change to size, crop box, format, background or quality changes
// the path. It performs no I/O.
func (b KeyBuilder) Build(src Source, g geometry.Geometry, o Output) (Key, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return Key{}, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidSource, src.Width, src.Height)
	}

	suffixLen := b.HashSuffixLen
	if suffixLen <= 0 {
		suffixLen = DefaultHashSuffixLen
	}
	hash := strings.ToLower(src.Hash)
	if len(hash) < max(suffixLen, shardLen) || !hexDigest.MatchString(hash) {
		return Key{}, fmt.Errorf("%w: content hash %q", ErrInvalidSource, src.Hash)
	}

	if err := o.validate(); err != nil {
		return Key{}, err
	}

	base := path.Base(filepath.ToSlash(src.Path))
	ext := strings.ToLower(path.Ext(base))
	stem := strings.TrimSuffix(base, path.Ext(base))

	format, err := o.normalizedFormat()
	if err != nil {
		return Key{}, err
	}
	flatten := false
	if format != "" {
		ext = "." + format
		flatten = !SupportsTransparency(format)
	} else {
		format = strings.TrimPrefix(ext, ".")
		if !Writable(format) {
			format = FallbackFormat
			ext = "." + format
		}
	}

	parts := []string{Slug(stem), hash[len(hash)-suffixLen:]}

	// Any size other than the source's is named, upscales included.
	if g.Width != src.Width || g.Height != src.Height {
		parts = append(parts, strconv.Itoa(g.Width)+"x"+strconv.Itoa(g.Height))
	}
	if g.Cropped() {
		parts = append(parts, fmt.Sprintf("%d-%d-%d-%d", g.Box.Min.X, g.Box.Min.Y, g.Box.Max.X, g.Box.Max.Y))
	}
	if flatten && !o.Background.IsZero() {
		parts = append(parts, "b"+o.Background.Token())
	}
	if IsLossy(format) && o.Quality > 0 {
		parts = append(parts, "q"+strconv.Itoa(o.Quality))
	}

	outDir := b.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir
	}

	return Key{
		Path:    path.Join(filepath.ToSlash(outDir), hash[0:2], hash[2:6], strings.Join(parts, "_")+ext),
		Format:  format,
		Flatten: flatten,
	}, nil
}

// Slug turns a file stem into a filesystem and URL safe token: accents are
// stripped, letters lowercased, and runs of anything other than ASCII letters
// and digits collapse to a single "-".
func Slug(stem string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, stem)
	if err != nil {
		folded = stem
	}

	slug := strings.Trim(slugRun.ReplaceAllString(strings.ToLower(folded), "-"), "-")
	if slug == "" {
		return "image"
	}
	return slug
}
