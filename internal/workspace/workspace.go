// Package workspace is the per-project context: it owns the manifest and
// link caches, the settings stores and the loaded repositories, and runs
// package operations against them.
//
// A Workspace is not safe for concurrent use. The caches it owns guard
// themselves.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/frederic-klein/yapm/internal/config"
	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/links"
	"github.com/frederic-klein/yapm/internal/manifest"
	"github.com/frederic-klein/yapm/internal/repository"
	"github.com/frederic-klein/yapm/internal/scanner"
	"github.com/frederic-klein/yapm/internal/settings"
)

// ProjectRepositoryName names the repository of the project itself.
const ProjectRepositoryName = "[Project]"

// Workspace ties a project directory to its caches and repositories.
type Workspace struct {
	cfg    *config.Config
	logger *slog.Logger

	manifest *manifest.Manifest
	links    *links.Index
	scanner  *scanner.Scanner

	global  *settings.Store
	project *settings.Store

	projectRepo *repository.Repository
	repos       []*repository.Repository
	loaded      bool
}

// Open loads the settings stores for cfg. Repositories are loaded lazily.
func Open(cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	global, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	project, err := settings.Load(cfg.ProjectSettingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading project settings: %w", err)
	}
	return &Workspace{
		cfg:      cfg,
		logger:   logger,
		manifest: manifest.New(cfg.ManifestPath(), logger),
		links:    links.New(cfg.PackagesDir, logger),
		scanner:  scanner.New(logger),
		global:   global,
		project:  project,
	}, nil
}

// Config returns the configuration the workspace was opened with.
func (w *Workspace) Config() *config.Config { return w.cfg }

// Manifest returns the dependency manifest.
func (w *Workspace) Manifest() *manifest.Manifest { return w.manifest }

// Links returns the link index of the packages directory.
func (w *Workspace) Links() *links.Index { return w.links }

// Settings returns the global settings store.
func (w *Workspace) Settings() *settings.Store { return w.global }

// ProjectSettings returns the project settings store.
func (w *Workspace) ProjectSettings() *settings.Store { return w.project }

// Refresh drops the manifest and link caches.
func (w *Workspace) Refresh() {
	w.manifest.MarkDirty()
	w.links.Refresh()
}

// Env returns the status environment used to compute package flags.
func (w *Workspace) Env() repository.Env {
	return repository.Env{
		Manifest:    w.manifest,
		Links:       w.links,
		Project:     w,
		ProjectDir:  w.cfg.ProjectDir,
		PackagesDir: w.cfg.PackagesDir,
	}
}

// Repositories returns the loaded repositories, project first, loading them
// on first use.
func (w *Workspace) Repositories(ctx context.Context) ([]*repository.Repository, error) {
	if !w.loaded {
		if err := w.LoadRepositories(ctx); err != nil {
			return nil, err
		}
	}
	return w.repos, nil
}

// Repository returns the loaded repository named name.
func (w *Workspace) Repository(ctx context.Context, name string) (*repository.Repository, error) {
	repos, err := w.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range repos {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, yerrors.NotFoundf("repository '%s' not found", name)
}

// LoadRepositories (re)loads the project repository and every configured
// repository, then recomputes package flags.
func (w *Workspace) LoadRepositories(ctx context.Context) error {
	w.Refresh()

	project, err := w.loadProject(ctx)
	if err != nil {
		return err
	}
	w.projectRepo = project
	repos := []*repository.Repository{project}

	for _, rec := range w.global.Settings().Repositories {
		rec.Bind()
		if rec.IsLocal() {
			local, err := repository.LoadLocal(rec.LocalDir())
			if err != nil {
				return fmt.Errorf("loading repository %s: %w", rec.Name, err)
			}
			adoptLocal(rec, local)
		}
		repos = append(repos, rec)
	}

	w.repos = repos
	w.loaded = true
	w.update()
	return nil
}

// adoptLocal makes rec delegate to the document loaded from its root. The
// document's name and exclude lists win; a fresh document takes the
// record's.
func adoptLocal(rec, local *repository.Repository) {
	rec.SetReference(local)
	if local.Name == "" {
		local.Name = rec.Name
	}
	if len(local.ExcludeNames) == 0 {
		local.ExcludeNames = rec.ExcludeNames
	}
	if len(local.ExcludePaths) == 0 {
		local.ExcludePaths = rec.ExcludePaths
	}
	rec.Name = local.Name
	rec.ExcludeNames = local.ExcludeNames
	rec.ExcludePaths = local.ExcludePaths
}

// loadProject loads the project repository from its document, scanning and
// persisting it when there is none yet.
func (w *Workspace) loadProject(ctx context.Context) (*repository.Repository, error) {
	root := w.cfg.ProjectDir
	_, statErr := os.Stat(repository.DocPath(root))
	fresh := errors.Is(statErr, fs.ErrNotExist)

	r, err := repository.LoadLocal(root)
	if err != nil {
		return nil, fmt.Errorf("loading project repository: %w", err)
	}
	r.Name = ProjectRepositoryName
	if len(r.ExcludeNames) == 0 {
		r.ExcludeNames = w.cfg.ExcludeNames
	}
	if len(r.ExcludePaths) == 0 {
		r.ExcludePaths = w.cfg.ExcludePaths
	}
	if !fresh {
		return r, nil
	}

	if err := r.Scan(ctx, w.scanner, root, w.cfg.CodeExtensions); err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	if _, err := r.SaveLocal(root); err != nil {
		return nil, err
	}
	return r, nil
}

// ScanRepository rescans the root of the repository named name and
// persists the result.
func (w *Workspace) ScanRepository(ctx context.Context, name string) (*repository.Repository, error) {
	r, err := w.Repository(ctx, name)
	if err != nil {
		return nil, err
	}
	if !r.IsLocal() {
		return nil, yerrors.Invalid("repository '%s' has no local directory", name)
	}
	if err := r.Scan(ctx, w.scanner, w.cfg.ProjectDir, w.cfg.CodeExtensions); err != nil {
		return nil, fmt.Errorf("scanning repository %s: %w", name, err)
	}
	r.Update(w.Env())
	if err := r.Save(w.global); err != nil {
		return nil, fmt.Errorf("saving repository %s: %w", name, err)
	}
	return r, nil
}

// update recomputes the flags of every loaded package against fresh
// manifest and link state.
func (w *Workspace) update() {
	w.Refresh()
	env := w.Env()
	for _, r := range w.repos {
		r.Update(env)
	}
}

// AddRepository records a repository for url and loads it. The name
// defaults to the last path element of url.
func (w *Workspace) AddRepository(ctx context.Context, name, url string) (*repository.Repository, error) {
	if url == "" {
		return nil, yerrors.Invalid("repository url is empty")
	}
	s := w.global.Settings()
	for _, r := range s.Repositories {
		if r.URL == url {
			return nil, yerrors.Conflict("repository '%s' already uses '%s'", r.Name, url)
		}
	}
	r := repository.New(name, url)
	if r.Name == "" {
		r.Name = defaultRepositoryName(r)
	}
	if _, ok := s.Repository(r.Name); ok || r.Name == ProjectRepositoryName {
		return nil, yerrors.Conflict("repository '%s' already exists", r.Name)
	}
	s.Repositories = append(s.Repositories, r)
	if err := w.global.Save(); err != nil {
		return nil, err
	}
	w.logger.Info("repository added", "name", r.Name, "url", url)

	if err := w.LoadRepositories(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveRepository drops the repository record named name. A local
// repository's document is left on disk.
func (w *Workspace) RemoveRepository(name string) error {
	s := w.global.Settings()
	for i, r := range s.Repositories {
		if r.Name != name {
			continue
		}
		s.Repositories = append(s.Repositories[:i], s.Repositories[i+1:]...)
		if err := w.global.Save(); err != nil {
			return err
		}
		w.loaded = false
		w.logger.Info("repository removed", "name", name)
		return nil
	}
	return yerrors.NotFoundf("repository '%s' not found", name)
}

func defaultRepositoryName(r *repository.Repository) string {
	if dir := r.LocalDir(); dir != "" {
		return baseName(dir)
	}
	return baseName(r.URL)
}
