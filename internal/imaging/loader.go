package imaging

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/image-rendition-mcp/internal/rendition"
)

// ErrNotFound is returned when an image cannot be located on the search path.
var ErrNotFound = errors.New("image not found")

// Record is the indexed metadata of a source image.
type Record struct {
	// Path is the resolved file path the record was built from.
	Path string `json:"path"`

	// Hash is the lowercase hex MD5 digest of the full file contents.
	Hash string `json:"hash"`

	// Width is the decoded image width in pixels.
	Width int `json:"width"`

	// Height is the decoded image height in pixels.
	Height int `json:"height"`

	// Format is the decoder that recognised the file: "png", "jpeg", "gif",
	// "bmp", "tiff" or "webp". Detection is based on file contents.
	Format string `json:"format"`

	// ModTime is the file modification time when the record was built.
	ModTime time.Time `json:"mod_time"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// Source returns the record in the form the rendition package consumes.
func (r Record) Source() rendition.Source {
	return rendition.Source{
		Path:   r.Path,
		Hash:   r.Hash,
		Width:  r.Width,
		Height: r.Height,
	}
}

// Index provides thread-safe caching of source image metadata.
//
// Each record is keyed by the exact path used to look it up. A cached record
// is reused until the file's modification time moves past the one recorded,
// at which point the file is hashed and measured again.
//
// Index is safe for concurrent use by multiple goroutines.
//
// # Example Usage
//
//	index := imaging.NewIndex([]string{"content/images"}, nil)
//	path, err := index.Find("sunset.jpg")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rec, err := index.Lookup(path)
type Index struct {
	mu      sync.RWMutex
	records map[string]Record

	searchPaths []string
	logger      *slog.Logger
}

// NewIndex creates an empty index that resolves relative names against
// searchPaths, in order. A nil logger uses slog.Default().
func NewIndex(searchPaths []string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		records:     make(map[string]Record),
		searchPaths: append([]string(nil), searchPaths...),
		logger:      logger,
	}
}

// Find resolves an image reference to a file path.
//
// Absolute paths are returned as-is if they name a regular file. Relative
// names are tried against each search path in order and must stay within it;
// the first regular file found wins.
//
// # Errors
//
//   - Returns ErrNotFound (wrapped) if no search path holds the file
func (ix *Index) Find(name string) (string, error) {
	if filepath.IsAbs(name) {
		if isRegular(name) {
			return name, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	clean := filepath.Clean(filepath.FromSlash(name))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s escapes the search path", ErrNotFound, name)
	}
	for _, dir := range ix.searchPaths {
		candidate := filepath.Join(dir, clean)
		if isRegular(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Lookup returns the metadata record for the image at path, building or
// refreshing it when needed.
//
// Parameters:
//   - path: Path to the image file. Supported formats are PNG, JPEG, GIF,
//     BMP, TIFF and WebP.
//
// Returns:
//   - Record: Content hash, dimensions and format of the file.
//   - error: Non-nil if the file cannot be read or decoded, or reports
//     zero dimensions.
func (ix *Index) Lookup(path string) (Record, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Record{}, fmt.Errorf("failed to stat image: %w", err)
	}

	ix.mu.RLock()
	rec, ok := ix.records[path]
	ix.mu.RUnlock()
	if ok && !stat.ModTime().After(rec.ModTime) {
		return rec, nil
	}

	ix.logger.Info("indexing image", "path", path)
	rec, err = readRecord(path, stat)
	if err != nil {
		return Record{}, err
	}

	ix.mu.Lock()
	ix.records[path] = rec
	ix.mu.Unlock()

	return rec, nil
}

// Evict removes the record for path, forcing the next Lookup to re-read the
// file. Unknown paths are ignored.
func (ix *Index) Evict(path string) {
	ix.mu.Lock()
	delete(ix.records, path)
	ix.mu.Unlock()
}

// Clear removes all records.
func (ix *Index) Clear() {
	ix.mu.Lock()
	ix.records = make(map[string]Record)
	ix.mu.Unlock()
}

// readRecord hashes and measures the file in one open.
func readRecord(path string, stat fs.FileInfo) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return Record{}, fmt.Errorf("failed to hash image: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Record{}, fmt.Errorf("failed to rewind image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Record{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Record{}, fmt.Errorf("image %s has invalid dimensions %dx%d", path, cfg.Width, cfg.Height)
	}

	return Record{
		Path:          path,
		Hash:          hex.EncodeToString(h.Sum(nil)),
		Width:         cfg.Width,
		Height:        cfg.Height,
		Format:        format,
		ModTime:       stat.ModTime(),
		FileSizeBytes: stat.Size(),
	}, nil
}

func isRegular(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Mode().IsRegular()
}
