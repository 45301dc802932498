package workspace

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/frederic-klein/yapm/internal/pkginfo"
	"github.com/frederic-klein/yapm/internal/repository"
)

// Packages returns every package of every loaded repository, project
// first. Missing favorites are included as synthesized descriptors.
func (w *Workspace) Packages(ctx context.Context) ([]*pkginfo.Descriptor, error) {
	repos, err := w.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	var out []*pkginfo.Descriptor
	for _, r := range repos {
		out = append(out, r.AllPackages()...)
		out = append(out, r.MissingDescriptors()...)
	}
	return out, nil
}

func (w *Workspace) allPackages() []*pkginfo.Descriptor {
	var out []*pkginfo.Descriptor
	for _, r := range w.repos {
		out = append(out, r.AllPackages()...)
	}
	return out
}

// PackageInfo finds a package by name, preferring favorites.
func (w *Workspace) PackageInfo(name string) (*pkginfo.Descriptor, bool) {
	var first *pkginfo.Descriptor
	for _, d := range w.allPackages() {
		if d.Name != name {
			continue
		}
		if d.IsFavorite() {
			return d, true
		}
		if first == nil {
			first = d
		}
	}
	return first, first != nil
}

// StarPackageInfo finds a favorite package by name.
func (w *Workspace) StarPackageInfo(name string) (*pkginfo.Descriptor, bool) {
	for _, d := range w.allPackages() {
		if d.Name == name && d.IsFavorite() {
			return d, true
		}
	}
	return nil, false
}

// IsProjectPackage reports whether the project contains name outside the
// package cache.
func (w *Workspace) IsProjectPackage(name string) bool {
	if w.projectRepo == nil {
		return false
	}
	for _, d := range w.projectRepo.AllPackages() {
		if d.Name == name && !d.IsCache() {
			return true
		}
	}
	return false
}

// DirectDependencies returns the declared dependencies of name.
func (w *Workspace) DirectDependencies(name string) []pkginfo.Dependency {
	d, ok := w.PackageInfo(name)
	if !ok {
		return nil
	}
	return append([]pkginfo.Dependency(nil), d.Dependencies...)
}

// AllDependencies returns name and its transitive dependencies in depth
// first order. The first entry is name itself, referenced by its manifest
// URI. A package name is visited once, so cycles terminate.
func (w *Workspace) AllDependencies(name string) []pkginfo.Dependency {
	d, ok := w.PackageInfo(name)
	if !ok {
		return nil
	}
	var out []pkginfo.Dependency
	seen := make(map[string]bool)
	w.collect(pkginfo.Dependency{Name: name, Version: d.ManifestURI(w.cfg.PackagesDir)}, seen, &out)
	return out
}

func (w *Workspace) collect(dep pkginfo.Dependency, seen map[string]bool, out *[]pkginfo.Dependency) {
	if seen[dep.Name] {
		return
	}
	seen[dep.Name] = true
	*out = append(*out, dep)

	d, ok := w.PackageInfo(dep.Name)
	if !ok {
		return
	}
	for _, next := range d.Dependencies {
		w.collect(next, seen, out)
	}
}

// LocalReference returns the manifest URI of the favorite package name when
// it has a local directory.
func (w *Workspace) LocalReference(name string) (string, bool) {
	d, ok := w.StarPackageInfo(name)
	if !ok || d.FullDir() == "" {
		return "", false
	}
	return d.ManifestURI(w.cfg.PackagesDir), true
}

// Match is a search hit.
type Match struct {
	Package    *pkginfo.Descriptor
	Repository string
	Score      int
}

type searchSource []searchItem

type searchItem struct {
	d    *pkginfo.Descriptor
	repo string
}

func (s searchSource) String(i int) string {
	d := s[i].d
	if d.DisplayName != "" && d.DisplayName != d.Name {
		return d.Name + " " + d.DisplayName
	}
	return d.Name
}

func (s searchSource) Len() int { return len(s) }

// Search fuzzy-matches pattern against package names and display names
// across all repositories, best match first.
func (w *Workspace) Search(ctx context.Context, pattern string) ([]Match, error) {
	repos, err := w.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	var src searchSource
	for _, r := range repos {
		for _, d := range r.AllPackages() {
			src = append(src, searchItem{d: d, repo: r.Name})
		}
	}
	if pattern == "" {
		out := make([]Match, len(src))
		for i, it := range src {
			out[i] = Match{Package: it.d, Repository: it.repo}
		}
		return out, nil
	}

	results := fuzzy.FindFrom(pattern, src)
	out := make([]Match, 0, len(results))
	for _, m := range results {
		it := src[m.Index]
		out = append(out, Match{Package: it.d, Repository: it.repo, Score: m.Score})
	}
	return out, nil
}

// FindRepository returns the loaded repository owning d.
func (w *Workspace) FindRepository(d *pkginfo.Descriptor) (*repository.Repository, bool) {
	for _, r := range w.repos {
		for _, p := range r.AllPackages() {
			if p == d {
				return r, true
			}
		}
	}
	return nil, false
}

func baseName(p string) string {
	p = strings.TrimRight(filepath.ToSlash(p), "/")
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	return path.Base(p)
}
