// Package links tracks symbolic links inside the project packages directory
// and creates or removes them for locally developed packages.
package links

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
)

// Scan maps each symbolic link directly inside dir to its absolute target.
// A missing directory yields an empty map; unreadable entries are skipped.
func Scan(dir string) map[string]string {
	links := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return links
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		fi, err := os.Lstat(full)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(full)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		links[full] = filepath.Clean(target)
	}
	return links
}

// Index is a cached link scan of one directory. The cache is kept until
// Refresh or a mutation through the index.
type Index struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	links map[string]string
}

// New creates an index over dir.
func New(dir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{dir: dir, logger: logger}
}

// Dir returns the indexed directory.
func (x *Index) Dir() string { return x.dir }

// Refresh drops the cached scan.
func (x *Index) Refresh() {
	x.mu.Lock()
	x.links = nil
	x.mu.Unlock()
}

func (x *Index) loadLocked() map[string]string {
	if x.links == nil {
		x.links = Scan(x.dir)
	}
	return x.links
}

// Links returns a copy of the link -> target mapping.
func (x *Index) Links() map[string]string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]string, len(x.loadLocked()))
	for k, v := range x.links {
		out[k] = v
	}
	return out
}

// LinkFor returns the link pointing at target.
func (x *Index) LinkFor(target string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return findLink(x.loadLocked(), target)
}

func findLink(links map[string]string, target string) (string, bool) {
	want := normalize(target)
	paths := make([]string, 0, len(links))
	for link := range links {
		paths = append(paths, link)
	}
	sort.Strings(paths)
	for _, link := range paths {
		if normalize(links[link]) == want {
			return link, true
		}
	}
	return "", false
}

// Create links <dir>/<basename(target)> to target. An existing link to the
// same target is returned as is; any other entry at that path is a
// STATE_CONFLICT.
func (x *Index) Create(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", target, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", yerrors.NotFoundf("link target '%s' is not a directory", abs)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if link, ok := findLink(x.loadLocked(), abs); ok {
		return link, nil
	}

	link := filepath.Join(x.dir, filepath.Base(abs))
	if _, err := os.Lstat(link); err == nil {
		return "", yerrors.Conflict("'%s' already exists", link)
	}
	if err := os.MkdirAll(x.dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", x.dir, err)
	}
	if err := os.Symlink(abs, link); err != nil {
		return "", fmt.Errorf("creating symlink %s -> %s: %w", link, abs, err)
	}
	x.links = nil
	x.logger.Info("link created", "link", link, "target", abs)
	return link, nil
}

// Delete removes the link pointing at target and returns its path. It
// reports false when no link points there.
func (x *Index) Delete(target string) (string, bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	link, ok := findLink(x.loadLocked(), target)
	if !ok {
		return "", false, nil
	}
	if err := os.Remove(link); err != nil {
		return "", false, fmt.Errorf("removing symlink %s: %w", link, err)
	}
	x.links = nil
	x.logger.Info("link removed", "link", link, "target", target)
	return link, true, nil
}

func normalize(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.ToSlash(filepath.Clean(p))
}
