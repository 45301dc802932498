// Package pkginfo describes a single package: its identity read from the
// package file, its dependency list and its status flags.
package pkginfo

import (
	"path/filepath"
	"strings"

	"github.com/frederic-klein/yapm/internal/version"
)

// FileName is the package marker file.
const FileName = "package.json"

// LocalPrefix marks a dependency version that is a local path reference.
const LocalPrefix = "file:"

// Dependency is one name -> version-or-path entry.
type Dependency struct {
	Name    string `yaml:"name" toml:"name"`
	Version string `yaml:"version" toml:"version"`
}

// IsLocal reports whether the dependency refers to a local path.
func (d Dependency) IsLocal() bool {
	return IsLocalVersion(d.Version)
}

// IsLocalVersion reports whether v is a "file:" reference.
func IsLocalVersion(v string) bool {
	return strings.Contains(v, LocalPrefix)
}

// Owner is the non-owning back-reference from a descriptor to the
// repository it was discovered in.
type Owner interface {
	LocalDir() string
}

// Descriptor is the parsed identity of one package.
type Descriptor struct {
	Name         string       `yaml:"name" toml:"name"`
	DisplayName  string       `yaml:"displayName,omitempty" toml:"display_name,omitempty"`
	Version      string       `yaml:"version,omitempty" toml:"version,omitempty"`
	Description  string       `yaml:"description,omitempty" toml:"description,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`

	// Path is relative to the owning repository root, slash separated.
	Path  string `yaml:"path,omitempty" toml:"path,omitempty"`
	Flags Flags  `yaml:"flags,omitempty" toml:"flags,omitempty"`

	TotalCodeFiles int `yaml:"totalCodeFiles,omitempty" toml:"total_code_files,omitempty"`
	TotalCodeLines int `yaml:"totalCodeLines,omitempty" toml:"total_code_lines,omitempty"`

	// Location is the absolute directory the descriptor was loaded from.
	Location string `yaml:"-" toml:"-"`

	owner  Owner
	parsed *version.Version
}

// Owner returns the owning repository, if any.
func (d *Descriptor) Owner() Owner { return d.owner }

// SetOwner records the owning repository.
func (d *Descriptor) SetOwner(o Owner) { d.owner = o }

// ParsedVersion returns the version, or version.Empty when it does not parse.
func (d *Descriptor) ParsedVersion() version.Version {
	if d.parsed == nil {
		v, err := version.Parse(d.Version)
		if err != nil {
			v = version.Empty
		}
		d.parsed = &v
	}
	return *d.parsed
}

// SetVersion replaces the version string.
func (d *Descriptor) SetVersion(v version.Version) {
	d.Version = v.String()
	d.parsed = &v
}

// FullDir returns the absolute package directory, or "" when the package
// has no local files.
func (d *Descriptor) FullDir() string {
	if d.owner != nil {
		if root := d.owner.LocalDir(); root != "" {
			dir, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(d.Path)))
			if err == nil {
				return dir
			}
		}
	}
	return d.Location
}

// FilePath returns the package file path, or "".
func (d *Descriptor) FilePath() string {
	dir := d.FullDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, FileName)
}

// ManifestURI returns the value a dependency manifest uses to reference this
// package: a "file:" path relative to packagesDir, or the plain version when
// the package has no local directory.
func (d *Descriptor) ManifestURI(packagesDir string) string {
	dir := d.FullDir()
	if dir == "" {
		return d.Version
	}
	rel := dir
	if base, err := filepath.Abs(packagesDir); err == nil {
		if r, err := filepath.Rel(base, dir); err == nil {
			rel = r
		}
	}
	return LocalPrefix + strings.TrimSuffix(filepath.ToSlash(rel), "/")
}

// IsFavorite reports whether the Favorite flag is set.
func (d *Descriptor) IsFavorite() bool { return d.Flags.Favorite }

// IsUsed reports whether any usage flag is set.
func (d *Descriptor) IsUsed() bool { return d.Flags.IsUsed() }

// IsCache reports whether the package lives in the package cache.
func (d *Descriptor) IsCache() bool { return d.Flags.PackageCache }

// Title returns the display name, falling back to the name.
func (d *Descriptor) Title() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}
