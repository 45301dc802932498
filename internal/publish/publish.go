// Package publish releases a package directory to the registry: version
// bump, release checks against git, tagging and the registry upload.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/pkginfo"
	"github.com/frederic-klein/yapm/internal/process"
	"github.com/frederic-klein/yapm/internal/registry"
	"github.com/frederic-klein/yapm/internal/vcs"
	"github.com/frederic-klein/yapm/internal/version"
)

// changedFilesShown caps the file list of a dirty-tree error.
const changedFilesShown = 3

// Repo is the version-control view of a package directory.
type Repo interface {
	ChangedFiles(ctx context.Context) ([]string, error)
	LatestVersionTag(ctx context.Context) (string, bool, error)
	TagCommit(ctx context.Context, tag string) (string, error)
	HeadCommit(ctx context.Context) (string, error)
	TagExists(ctx context.Context, tag string) (bool, error)
	Commit(ctx context.Context, msg string, files ...string) error
	CreateTag(ctx context.Context, tag string) error
	DefaultRemote(ctx context.Context) (string, error)
	PushTag(ctx context.Context, remote, tag string) error
}

// Opener opens the repository containing dir; ok is false outside one.
type Opener func(ctx context.Context, dir string) (repo Repo, ok bool, err error)

// Registry uploads and removes package versions.
type Registry interface {
	Publish(ctx context.Context, auth registry.Auth, dir string, onOutput func(string)) error
	Unpublish(ctx context.Context, auth registry.Auth, dir, name, version string, onOutput func(string)) error
}

// VersionChecker reports whether a version is already published.
type VersionChecker interface {
	HasVersion(ctx context.Context, name, version string) (bool, error)
}

// Request describes one publish.
type Request struct {
	Dir string
	// Version replaces the package version when set; otherwise Bump applies.
	Version   string
	Bump      Bump
	CreateTag bool
	Push      bool
	Auth      registry.Auth
}

// Publisher runs publish and unpublish flows.
type Publisher struct {
	open     Opener
	registry Registry
	versions VersionChecker
	logger   *slog.Logger
}

// New creates a publisher using git through runner. versions may be nil to
// skip the registry metadata check.
func New(runner process.Runner, reg Registry, versions VersionChecker, logger *slog.Logger) *Publisher {
	open := func(ctx context.Context, dir string) (Repo, bool, error) {
		r, ok, err := vcs.Open(ctx, runner, dir)
		if !ok || err != nil {
			return nil, ok, err
		}
		return r, true, nil
	}
	return newPublisher(open, reg, versions, logger)
}

func newPublisher(open Opener, reg Registry, versions VersionChecker, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{open: open, registry: reg, versions: versions, logger: logger}
}

// Publish releases the package in req.Dir and returns the published
// version. Nothing is written before every check has passed.
func (p *Publisher) Publish(ctx context.Context, req Request, progress *Progress) (string, error) {
	if _, err := os.Stat(req.Dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", yerrors.NotFoundf("package directory '%s' does not exist", req.Dir)
		}
		return "", fmt.Errorf("checking %s: %w", req.Dir, err)
	}
	d, err := pkginfo.Load(req.Dir)
	if err != nil {
		return "", err
	}
	progress.SetTitle("Publish package " + d.Name)

	next, err := nextVersion(d, req)
	if err != nil {
		return "", err
	}
	ver := next.String()
	props, err := pkginfo.ReadProperties(d.FilePath())
	if err != nil {
		return "", err
	}
	if _, ok := props[pkginfo.PropVersion]; !ok {
		return "", yerrors.Parse("%s has no top-level \"%s\" property to update", d.FilePath(), pkginfo.PropVersion)
	}
	tag := ""
	if req.CreateTag {
		tag = "v" + ver
	}

	repo, inRepo, err := p.open(ctx, req.Dir)
	if err != nil {
		return "", err
	}
	if inRepo {
		if err := p.checkRepo(ctx, repo, tag); err != nil {
			return "", err
		}
	} else if req.CreateTag {
		return "", yerrors.Conflict("cannot create tag '%s': '%s' is not inside a git repository", tag, req.Dir)
	}

	if p.versions != nil {
		published, err := p.versions.HasVersion(ctx, d.Name, ver)
		if err != nil {
			return "", fmt.Errorf("checking published versions: %w", err)
		}
		if published {
			return "", yerrors.Conflict("%s@%s is already published", d.Name, ver)
		}
	}

	progress.SetMessage("writing version " + ver)
	changed, err := pkginfo.WriteProperty(d.FilePath(), pkginfo.PropVersion, ver)
	if err != nil {
		return "", err
	}
	if !changed && d.Version != ver {
		return "", yerrors.Parse("version of %s was not updated to %s", d.FilePath(), ver)
	}
	d.SetVersion(next)

	if inRepo {
		if err := p.commitAndTag(ctx, repo, ver, tag, changed, req.Push, progress); err != nil {
			return "", err
		}
	}

	progress.SetMessage("publishing")
	progress.SetPercent(0.5)
	if err := p.registry.Publish(ctx, req.Auth, d.FullDir(), progress.SetMessage); err != nil {
		return "", err
	}
	p.logger.Info("published", "name", d.Name, "version", ver)
	return ver, nil
}

func nextVersion(d *pkginfo.Descriptor, req Request) (version.Version, error) {
	if req.Version != "" {
		return version.Parse(req.Version)
	}
	cur, err := version.Parse(d.Version)
	if err != nil {
		return version.Empty, fmt.Errorf("package %s: %w", d.Name, err)
	}
	return req.Bump.Apply(cur)
}

func (p *Publisher) checkRepo(ctx context.Context, repo Repo, tag string) error {
	files, err := repo.ChangedFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		shown := files[:min(len(files), changedFilesShown)]
		return yerrors.Conflict("package directory has files(%d) changed:\n%s", len(files), strings.Join(shown, "\n"))
	}

	latest, ok, err := repo.LatestVersionTag(ctx)
	if err != nil {
		return err
	}
	if ok {
		tagged, err := repo.TagCommit(ctx, latest)
		if err != nil {
			return err
		}
		head, err := repo.HeadCommit(ctx)
		if err != nil {
			return err
		}
		if tagged == head {
			return yerrors.Conflict("not changed since tag '%s'", latest)
		}
	}

	if tag != "" {
		exists, err := repo.TagExists(ctx, tag)
		if err != nil {
			return err
		}
		if exists {
			return yerrors.Conflict("tag '%s' already exists", tag)
		}
	}
	return nil
}

func (p *Publisher) commitAndTag(ctx context.Context, repo Repo, ver, tag string, changed, push bool, progress *Progress) error {
	if changed {
		files, err := repo.ChangedFiles(ctx)
		if err != nil {
			return err
		}
		if slices.Contains(files, pkginfo.FileName) {
			progress.SetMessage("committing " + pkginfo.FileName)
			if err := repo.Commit(ctx, "v"+ver, pkginfo.FileName); err != nil {
				return err
			}
		}
	}
	if tag == "" {
		return nil
	}

	progress.SetMessage("creating tag " + tag)
	if err := repo.CreateTag(ctx, tag); err != nil {
		return err
	}
	if !push {
		return nil
	}
	remote, err := repo.DefaultRemote(ctx)
	if err != nil {
		return err
	}
	progress.SetMessage("pushing tag " + tag + " to " + remote)
	return repo.PushTag(ctx, remote, tag)
}

// Unpublish removes name@ver from the registry.
func (p *Publisher) Unpublish(ctx context.Context, auth registry.Auth, dir, name, ver string, progress *Progress) error {
	progress.SetTitle(fmt.Sprintf("Unpublish package %s@%s", name, ver))
	if err := p.registry.Unpublish(ctx, auth, dir, name, ver, progress.SetMessage); err != nil {
		return err
	}
	p.logger.Info("unpublished", "name", name, "version", ver)
	return nil
}

// PublishAsync runs Publish as a background job.
func (p *Publisher) PublishAsync(req Request) *Job {
	return Start("Publish package", func(ctx context.Context, pr *Progress) (string, error) {
		return p.Publish(ctx, req, pr)
	})
}

// UnpublishAsync runs Unpublish as a background job. The job result is the
// removed version.
func (p *Publisher) UnpublishAsync(auth registry.Auth, dir, name, ver string) *Job {
	return Start("Unpublish package", func(ctx context.Context, pr *Progress) (string, error) {
		return ver, p.Unpublish(ctx, auth, dir, name, ver, pr)
	})
}
