package pkginfo

import "strings"

// Flags is the status of a package within its repository. Usage is tracked
// per source; IsUsed derives the aggregate.
type Flags struct {
	PackageCache bool `yaml:"packageCache,omitempty" toml:"package_cache,omitempty"`
	Local        bool `yaml:"local,omitempty" toml:"local,omitempty"`
	Missing      bool `yaml:"missing,omitempty" toml:"missing,omitempty"`
	Favorite     bool `yaml:"favorite,omitempty" toml:"favorite,omitempty"`

	ProjectUsed  bool `yaml:"projectUsed,omitempty" toml:"project_used,omitempty"`
	ManifestUsed bool `yaml:"manifestUsed,omitempty" toml:"manifest_used,omitempty"`
	VersionUsed  bool `yaml:"versionUsed,omitempty" toml:"version_used,omitempty"`
	LocalUsed    bool `yaml:"localUsed,omitempty" toml:"local_used,omitempty"`
	LinkUsed     bool `yaml:"linkUsed,omitempty" toml:"link_used,omitempty"`
}

// IsUsed reports whether any usage flag is set.
func (f Flags) IsUsed() bool {
	return f.ProjectUsed || f.ManifestUsed || f.VersionUsed || f.LocalUsed || f.LinkUsed
}

// Persisted returns the subset of flags that survives a rescan.
func (f Flags) Persisted() Flags {
	return Flags{PackageCache: f.PackageCache, Favorite: f.Favorite}
}

// String lists the set flags, comma separated, or "-".
func (f Flags) String() string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(f.PackageCache, "cache")
	add(f.Local, "local")
	add(f.Missing, "missing")
	add(f.Favorite, "favorite")
	add(f.ProjectUsed, "project")
	add(f.ManifestUsed, "manifest")
	add(f.VersionUsed, "version")
	add(f.LocalUsed, "local-used")
	add(f.LinkUsed, "link")
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
