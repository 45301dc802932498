package repository

import "github.com/frederic-klein/yapm/internal/pkginfo"

// Favorite bookmarks a package by name and, optionally, path or version.
type Favorite struct {
	Name        string `yaml:"name" toml:"name"`
	DisplayName string `yaml:"displayName,omitempty" toml:"display_name,omitempty"`
	Version     string `yaml:"version,omitempty" toml:"version,omitempty"`
	Path        string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// Matches reports whether f refers to d: names are equal and, when set, the
// path matches; without a path a set version must match.
func (f Favorite) Matches(d *pkginfo.Descriptor) bool {
	if f.Name != d.Name {
		return false
	}
	if f.Path != "" {
		return f.Path == d.Path
	}
	if f.Version != "" {
		return f.Version == d.Version
	}
	return true
}

// IsFavorite reports whether any favorite matches d.
func (r *Repository) IsFavorite(d *pkginfo.Descriptor) bool {
	for _, f := range r.AllFavorites() {
		if f.Matches(d) {
			return true
		}
	}
	return false
}

// AddFavorite bookmarks d. It reports false when d already is a favorite.
func (r *Repository) AddFavorite(d *pkginfo.Descriptor) bool {
	if r.IsFavorite(d) {
		return false
	}
	t := r.target()
	t.Favorites = append(t.Favorites, Favorite{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Version:     d.Version,
		Path:        d.Path,
	})
	d.Flags.Favorite = true
	return true
}

// RemoveFavorite drops the favorite with d's name and path.
func (r *Repository) RemoveFavorite(d *pkginfo.Descriptor) bool {
	t := r.target()
	for i, f := range t.Favorites {
		if f.Name == d.Name && f.Path == d.Path {
			t.Favorites = append(t.Favorites[:i], t.Favorites[i+1:]...)
			d.Flags.Favorite = r.IsFavorite(d)
			return true
		}
	}
	return false
}

// MissingFavorites returns the favorites no current package matches.
func (r *Repository) MissingFavorites() []Favorite {
	var missing []Favorite
	packages := r.AllPackages()
	for _, f := range r.AllFavorites() {
		found := false
		for _, d := range packages {
			if f.Matches(d) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f)
		}
	}
	return missing
}

// MissingDescriptors synthesizes a Missing|Favorite descriptor for every
// missing favorite. The descriptors have no owner and no files.
func (r *Repository) MissingDescriptors() []*pkginfo.Descriptor {
	missing := r.MissingFavorites()
	out := make([]*pkginfo.Descriptor, 0, len(missing))
	for _, f := range missing {
		out = append(out, &pkginfo.Descriptor{
			Name:        f.Name,
			DisplayName: f.DisplayName,
			Version:     f.Version,
			Path:        f.Path,
			Flags:       pkginfo.Flags{Missing: true, Favorite: true},
		})
	}
	return out
}
