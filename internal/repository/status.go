package repository

import (
	"os"

	"github.com/frederic-klein/yapm/internal/pkginfo"
	"github.com/frederic-klein/yapm/internal/version"
)

// ManifestReader is the part of the dependency manifest status flags read.
type ManifestReader interface {
	Version(name string) (string, bool)
	HasVersion(name, version string) bool
}

// LinkReader finds the link pointing at a package directory.
type LinkReader interface {
	LinkFor(target string) (string, bool)
}

// ProjectLookup answers whether the project holds a package of that name.
type ProjectLookup interface {
	IsProjectPackage(name string) bool
}

// Env is the state status flags are reconciled against.
type Env struct {
	Manifest    ManifestReader
	Links       LinkReader
	Project     ProjectLookup
	ProjectDir  string
	PackagesDir string
}

// Update reloads every package and recomputes its status flags. A
// delegating repository forwards the update to its reference.
func (r *Repository) Update(env Env) {
	r.updateURL()
	isProject := r.IsProject(env.ProjectDir)
	for _, d := range r.Packages {
		if d.FullDir() != "" {
			// failures set Missing
			_ = d.Reload()
		}
		d.Flags = ComputeStatusFlags(d, r, isProject, env)
	}
	if r.reference != nil {
		r.reference.Update(env)
	}
}

// ComputeStatusFlags derives d's flags from its persisted flags, the
// favorites of r, the manifest, the link index and the project packages.
func ComputeStatusFlags(d *pkginfo.Descriptor, r *Repository, isProject bool, env Env) pkginfo.Flags {
	f := d.Flags.Persisted()
	f.Missing = d.Flags.Missing

	if dir := d.FullDir(); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			f.Local = true
		}
	}
	f.Favorite = r != nil && r.IsFavorite(d)

	if f.Local {
		if env.Manifest != nil && env.Manifest.HasVersion(d.Name, d.ManifestURI(env.PackagesDir)) {
			f.LocalUsed = true
		}
		if env.Links != nil {
			if _, ok := env.Links.LinkFor(d.FullDir()); ok {
				f.LinkUsed = true
			}
		}
	}

	if env.Manifest != nil {
		if declared, ok := env.Manifest.Version(d.Name); ok {
			f.ManifestUsed = true
			if _, err := version.Parse(declared); err == nil {
				f.VersionUsed = true
			}
		}
	}

	if isProject {
		if !f.PackageCache {
			f.ProjectUsed = true
		}
	} else if env.Project != nil && env.Project.IsProjectPackage(d.Name) {
		f.ProjectUsed = true
	}
	return f
}
