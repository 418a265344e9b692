// Package fsutil holds the filesystem helpers shared by the scanner,
// analyzer, validator and executor: project-relative path handling, a
// file content cache and durable copies.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrTooLarge is returned when a file exceeds the cache read limit
var ErrTooLarge = errors.New("file too large to analyze")

// ToSlash normalizes a project-relative path to forward slashes without a
// leading "./".
func ToSlash(rel string) string {
	p := path.Clean(filepath.ToSlash(rel))
	return strings.TrimPrefix(p, "./")
}

// Rel returns the slash-separated path of abs relative to root
func Rel(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return ToSlash(rel), nil
}

// Abs joins a project-relative slash path onto root. Absolute paths are
// returned cleaned.
func Abs(root, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// WithinRoot reports whether a slash-separated relative path stays inside
// the project root.
func WithinRoot(rel string) bool {
	p := path.Clean(rel)
	if path.IsAbs(p) {
		return false
	}
	return p != ".." && !strings.HasPrefix(p, "../")
}

// ContentCache is a bounded LRU of file contents keyed by project-relative
// path. Analysis and validation read the same files; the cache keeps the
// second pass off the disk. It is safe for concurrent use.
type ContentCache struct {
	root    string
	maxSize int64
	cache   *lru.Cache[string, []byte]
}

// NewContentCache creates a cache holding at most entries files, refusing
// files larger than maxSize bytes.
func NewContentCache(root string, entries int, maxSize int64) *ContentCache {
	if entries <= 0 {
		entries = 1
	}
	// Only fails for a non-positive size
	cache, _ := lru.New[string, []byte](entries)
	return &ContentCache{
		root:    root,
		maxSize: maxSize,
		cache:   cache,
	}
}

// Read returns the content of a project-relative file
func (c *ContentCache) Read(rel string) ([]byte, error) {
	if data, ok := c.cache.Get(rel); ok {
		return data, nil
	}

	full := Abs(c.root, rel)
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", rel)
	}
	if c.maxSize > 0 && info.Size() > c.maxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", rel, ErrTooLarge, info.Size())
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	c.cache.Add(rel, data)
	return data, nil
}

// Invalidate drops the cached contents of rel
func (c *ContentCache) Invalidate(rel string) {
	c.cache.Remove(rel)
}

// Len returns the number of cached files
func (c *ContentCache) Len() int {
	return c.cache.Len()
}

// CopyFile copies src to dst, creating dst's parent directories and
// preserving mode and modification time. dst is synced before returning.
// With exclusive set the copy fails if dst already exists.
func CopyFile(src, dst string, exclusive bool) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if exclusive {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	out, err := os.OpenFile(dst, flags, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, err
	}
	if err := out.Close(); err != nil {
		return n, err
	}

	// Best effort; a lost mtime does not invalidate the copy
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())

	return n, nil
}

// PruneEmptyDirs removes dir and its ancestors while they are empty,
// stopping at (and never removing) root. It returns the removed directories.
func PruneEmptyDirs(root, dir string) []string {
	var removed []string

	root = filepath.Clean(root)
	current := filepath.Clean(dir)

	for current != root && strings.HasPrefix(current, root+string(filepath.Separator)) {
		entries, err := os.ReadDir(current)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(current); err != nil {
			break
		}
		removed = append(removed, current)
		current = filepath.Dir(current)
	}

	return removed
}
