package filecache

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
)

// Entry is a cached file. It is immutable once stored.
type Entry struct {
	Path        string
	Content     []byte
	ContentType string
	Size        int64
	ModTime     time.Time
	ETag        string

	// LoadedAt is the insertion time the max age is measured from.
	LoadedAt time.Time
}

// fallbackTypes covers extensions missing from the platform MIME table.
var fallbackTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".txt":   "text/plain; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".ico":   "image/x-icon",
	".wasm":  "application/wasm",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// ContentType returns the media type for a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if ct, ok := fallbackTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ETag returns a strong entity tag for content.
func ETag(content []byte) string {
	h1, h2 := murmur3.Sum128(content)
	return fmt.Sprintf(`"%016x%016x"`, h1, h2)
}

// ReadEntry reads the regular file at path into a new Entry.
// Size and ModTime come from the open descriptor, so they describe the bytes read.
func ReadEntry(path string, now time.Time) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("filecache: %s is not a regular file", path)
	}

	content := make([]byte, info.Size())
	if _, err := io.ReadFull(f, content); err != nil {
		return nil, fmt.Errorf("filecache: read %s: %w", path, err)
	}

	return &Entry{
		Path:        path,
		Content:     content,
		ContentType: ContentType(path),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ETag:        ETag(content),
		LoadedAt:    now,
	}, nil
}
