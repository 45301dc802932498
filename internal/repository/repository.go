// Package repository aggregates the packages discovered below one root,
// its favorites, and the reconciliation of package status flags against
// the project manifest and link state.
package repository

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/frederic-klein/yapm/internal/pkginfo"
	"github.com/frederic-klein/yapm/internal/scanner"
)

// Kind tells whether a repository owns its packages or delegates reads and
// writes to another repository.
type Kind int

const (
	// Direct repositories own their package and favorite lists.
	Direct Kind = iota
	// Delegating repositories forward to a local repository loaded from disk.
	Delegating
)

// Repository is a named package source.
type Repository struct {
	Name         string                `yaml:"name" toml:"name"`
	URL          string                `yaml:"url,omitempty" toml:"url,omitempty"`
	ExcludeNames []string              `yaml:"excludeNames,omitempty" toml:"exclude_names,omitempty"`
	ExcludePaths []string              `yaml:"excludePaths,omitempty" toml:"exclude_paths,omitempty"`
	Packages     []*pkginfo.Descriptor `yaml:"packages,omitempty" toml:"packages,omitempty"`
	Favorites    []Favorite            `yaml:"favorites,omitempty" toml:"favorites,omitempty"`

	localDir  string
	reference *Repository
}

// New creates a direct repository for url. A bare path or a file:// URL
// makes it local.
func New(name, rawURL string) *Repository {
	r := &Repository{Name: name, URL: rawURL}
	r.updateURL()
	return r
}

// LocalDir returns the local root directory, or "" for remote repositories.
func (r *Repository) LocalDir() string { return r.localDir }

// IsLocal reports whether the repository has a local root.
func (r *Repository) IsLocal() bool { return r.localDir != "" }

// Kind reports whether r delegates to a reference.
func (r *Repository) Kind() Kind {
	if r.reference != nil {
		return Delegating
	}
	return Direct
}

// Reference returns the repository r delegates to.
func (r *Repository) Reference() (*Repository, bool) {
	return r.reference, r.reference != nil
}

// SetReference makes r delegate to ref. A nil ref makes r direct again.
func (r *Repository) SetReference(ref *Repository) {
	if ref == r {
		ref = nil
	}
	r.reference = ref
}

// target is the repository that owns the authoritative lists.
func (r *Repository) target() *Repository {
	if r.reference != nil {
		return r.reference
	}
	return r
}

// AllPackages returns the authoritative package list.
func (r *Repository) AllPackages() []*pkginfo.Descriptor {
	return r.target().Packages
}

// AllFavorites returns the authoritative favorite list.
func (r *Repository) AllFavorites() []Favorite {
	return r.target().Favorites
}

// Package returns the first package named name.
func (r *Repository) Package(name string) (*pkginfo.Descriptor, bool) {
	for _, d := range r.AllPackages() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// IsProject reports whether the local root is the project directory.
func (r *Repository) IsProject(projectDir string) bool {
	if r.localDir == "" || projectDir == "" {
		return false
	}
	return samePath(r.localDir, projectDir)
}

// Scan replaces the package list with a fresh discovery of the local root.
// Remote repositories are left unchanged.
func (r *Repository) Scan(ctx context.Context, sc *scanner.Scanner, projectDir string, codeExtensions []string) error {
	t := r.target()
	r.updateURL()
	t.updateURL()
	if !t.IsLocal() {
		return nil
	}
	packages, err := sc.Scan(ctx, scanner.Options{
		Root:           t.localDir,
		ExcludeNames:   r.ExcludeNames,
		ExcludePaths:   r.ExcludePaths,
		Project:        t.IsProject(projectDir),
		CodeExtensions: codeExtensions,
	})
	if err != nil {
		return err
	}
	for _, d := range packages {
		d.SetOwner(t)
	}
	t.Packages = packages
	return nil
}

// Bind resolves the local dir from URL and restores owner back-references.
// Call it after decoding a repository record.
func (r *Repository) Bind() {
	for _, d := range r.Packages {
		d.SetOwner(r)
	}
	r.updateURL()
}

func (r *Repository) updateURL() {
	r.localDir = localDirFromURL(r.URL)
}

func localDirFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return filepath.FromSlash(u.Path)
}

func samePath(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.ToSlash(filepath.Clean(p))
}
