package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/pkginfo"
)

// CopyAction is the outcome of CopyToPackages.
type CopyAction int

const (
	CopyUnchanged CopyAction = iota
	CopyCreated
	CopyDeleted
)

func (a CopyAction) String() string {
	switch a {
	case CopyCreated:
		return "copied"
	case CopyDeleted:
		return "deleted"
	}
	return "unchanged"
}

func (w *Workspace) starPackage(ctx context.Context, name string) (*pkginfo.Descriptor, error) {
	if _, err := w.Repositories(ctx); err != nil {
		return nil, err
	}
	d, ok := w.StarPackageInfo(name)
	if !ok {
		return nil, yerrors.NotFoundf("favorite package '%s' not found", name)
	}
	return d, nil
}

func (w *Workspace) anyPackage(ctx context.Context, name string) (*pkginfo.Descriptor, error) {
	if _, err := w.Repositories(ctx); err != nil {
		return nil, err
	}
	d, ok := w.PackageInfo(name)
	if !ok {
		return nil, yerrors.NotFoundf("package '%s' not found", name)
	}
	return d, nil
}

// AddPackage declares name in the manifest. An empty version uses the
// version of the favorite package name.
func (w *Workspace) AddPackage(ctx context.Context, name, version string) (bool, error) {
	if version == "" {
		d, err := w.starPackage(ctx, name)
		if err != nil {
			return false, err
		}
		version = d.Version
	}
	if version == "" {
		return false, yerrors.Invalid("package '%s' has no version", name)
	}
	changed, err := w.manifest.Add(name, version)
	if err != nil {
		return false, err
	}
	w.updateIfLoaded()
	return changed, nil
}

// AddLocalPackage declares the favorite package name by its local path,
// together with the local packages it depends on.
func (w *Workspace) AddLocalPackage(ctx context.Context, name string) (bool, error) {
	d, err := w.starPackage(ctx, name)
	if err != nil {
		return false, err
	}
	ref := d.ManifestURI(w.cfg.PackagesDir)
	if ref == "" {
		ref = d.Version
	}
	changed, err := w.manifest.AddLocal(name, ref, w)
	if err != nil {
		return false, err
	}
	w.update()
	return changed, nil
}

// RemovePackage drops name from the manifest and deletes a link pointing at
// the package.
func (w *Workspace) RemovePackage(ctx context.Context, name string) (bool, error) {
	changed, err := w.manifest.Remove(name)
	if err != nil {
		return false, err
	}
	if _, err := w.Repositories(ctx); err != nil {
		return changed, err
	}
	if d, ok := w.PackageInfo(name); ok && d.FullDir() != "" {
		_, deleted, err := w.links.Delete(d.FullDir())
		if err != nil {
			return changed, err
		}
		changed = changed || deleted
	}
	w.update()
	return changed, nil
}

// LinkPackage links the package directory of name into the packages
// directory and returns the link path.
func (w *Workspace) LinkPackage(ctx context.Context, name string) (string, error) {
	d, err := w.anyPackage(ctx, name)
	if err != nil {
		return "", err
	}
	dir := d.FullDir()
	if dir == "" {
		return "", yerrors.Invalid("package '%s' has no local directory", name)
	}
	link, err := w.links.Create(dir)
	if err != nil {
		return "", err
	}
	w.update()
	return link, nil
}

// UnlinkPackage removes the link pointing at the package directory of name.
func (w *Workspace) UnlinkPackage(ctx context.Context, name string) (string, bool, error) {
	d, err := w.anyPackage(ctx, name)
	if err != nil {
		return "", false, err
	}
	if d.FullDir() == "" {
		return "", false, nil
	}
	link, ok, err := w.links.Delete(d.FullDir())
	if err != nil {
		return "", false, err
	}
	w.update()
	return link, ok, nil
}

// CopyToPackages toggles a copy of the package at
// <packages>/<name>@<version>. A missing copy is created; an existing copy
// is deleted when the manifest declares name and left alone otherwise.
func (w *Workspace) CopyToPackages(ctx context.Context, name string) (CopyAction, string, error) {
	d, err := w.anyPackage(ctx, name)
	if err != nil {
		return CopyUnchanged, "", err
	}
	src := d.FullDir()
	if src == "" {
		return CopyUnchanged, "", yerrors.Invalid("package '%s' has no local directory", name)
	}
	target := filepath.Join(w.cfg.PackagesDir, d.Name+"@"+d.Version)

	if _, err := os.Stat(target); err == nil {
		if !w.manifest.Has(d.Name) {
			return CopyUnchanged, target, nil
		}
		if err := os.RemoveAll(target); err != nil {
			return CopyUnchanged, target, fmt.Errorf("deleting %s: %w", target, err)
		}
		w.logger.Info("package copy deleted", "name", d.Name, "path", target)
		w.update()
		return CopyDeleted, target, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return CopyUnchanged, target, fmt.Errorf("checking %s: %w", target, err)
	}

	if err := copyDir(src, target); err != nil {
		os.RemoveAll(target)
		return CopyUnchanged, target, err
	}
	w.logger.Info("package copied", "name", d.Name, "path", target, "source", src)
	w.update()
	return CopyCreated, target, nil
}

// copyDir copies the tree at src to dst. Symbolic links are recreated, not
// followed.
func copyDir(src, dst string) error {
	src, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", src, err)
	}
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		}
		return nil
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// AddFavorite bookmarks the package name in its owning repository.
func (w *Workspace) AddFavorite(ctx context.Context, name string) (bool, error) {
	d, err := w.anyPackage(ctx, name)
	if err != nil {
		return false, err
	}
	r, ok := w.FindRepository(d)
	if !ok {
		return false, yerrors.NotFoundf("no repository owns package '%s'", name)
	}
	if !r.AddFavorite(d) {
		return false, nil
	}
	if err := r.Save(w.global); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveFavorite drops the bookmark for name from whichever repository
// holds it, including favorites whose package has gone missing.
func (w *Workspace) RemoveFavorite(ctx context.Context, name string) (bool, error) {
	repos, err := w.Repositories(ctx)
	if err != nil {
		return false, err
	}
	removed := false
	for _, r := range repos {
		candidates := append([]*pkginfo.Descriptor(nil), r.AllPackages()...)
		candidates = append(candidates, r.MissingDescriptors()...)
		for _, d := range candidates {
			if d.Name != name || !d.IsFavorite() {
				continue
			}
			if r.RemoveFavorite(d) {
				removed = true
				if err := r.Save(w.global); err != nil {
					return removed, err
				}
			}
		}
	}
	return removed, nil
}

func (w *Workspace) updateIfLoaded() {
	if w.loaded {
		w.update()
	} else {
		w.Refresh()
	}
}
