// Package vcs wraps the git command line for the checks and steps of a
// package release: working tree state, version tags and commits.
package vcs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/frederic-klein/yapm/internal/process"
)

// DefaultRemote is used when a repository has no remotes configured.
const DefaultRemote = "origin"

// Repo is a git working copy seen from a directory inside it. Paths are
// relative to that directory.
type Repo struct {
	runner process.Runner
	dir    string
	prefix string
}

// IsRepository reports whether dir lies inside a git working copy.
func IsRepository(ctx context.Context, runner process.Runner, dir string) bool {
	_, err := runner.Run(ctx, dir, "git", "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// Open opens the working copy containing dir. ok is false when dir is not
// inside a working copy.
func Open(ctx context.Context, runner process.Runner, dir string) (r *Repo, ok bool, err error) {
	if !IsRepository(ctx, runner, dir) {
		return nil, false, nil
	}
	r = &Repo{runner: runner, dir: dir}
	out, err := r.git(ctx, "rev-parse", "--show-prefix")
	if err != nil {
		return nil, false, err
	}
	r.prefix = strings.TrimSpace(out)
	return r, true, nil
}

// Dir returns the directory the repo was opened from.
func (r *Repo) Dir() string { return r.dir }

// ChangedFiles lists modified, staged, deleted and untracked files below
// the directory.
func (r *Repo) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "status", "--porcelain", "-z", "--untracked-files=all", "--", ".")
	if err != nil {
		return nil, err
	}
	return parseStatus(out, r.prefix), nil
}

// HasUncommittedChanges reports whether ChangedFiles is non-empty.
func (r *Repo) HasUncommittedChanges(ctx context.Context) (bool, error) {
	files, err := r.ChangedFiles(ctx)
	return len(files) > 0, err
}

func parseStatus(out, prefix string) []string {
	var files []string
	entries := strings.Split(out, "\x00")
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if len(e) < 4 {
			continue
		}
		status, path := e[:2], e[3:]
		// renames and copies carry their source path as the next entry
		if status[0] == 'R' || status[0] == 'C' {
			i++
		}
		files = append(files, strings.TrimPrefix(path, prefix))
	}
	return files
}

// HeadCommit returns the commit id of HEAD.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

// VersionTags returns the tags that parse as versions, newest first.
// Tags may carry a "v" prefix.
func (r *Repo) VersionTags(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "tag", "--list")
	if err != nil {
		return nil, err
	}

	type tagged struct {
		name string
		v    *semver.Version
	}
	var tags []tagged
	for _, name := range process.Lines(out) {
		v, err := semver.NewVersion(name)
		if err != nil {
			continue
		}
		tags = append(tags, tagged{name, v})
	}
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].v.GreaterThan(tags[j].v)
	})

	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.name
	}
	return names, nil
}

// LatestVersionTag returns the highest version tag, if any.
func (r *Repo) LatestVersionTag(ctx context.Context) (string, bool, error) {
	tags, err := r.VersionTags(ctx)
	if err != nil || len(tags) == 0 {
		return "", false, err
	}
	return tags[0], true, nil
}

// TagCommit returns the commit id a tag points at.
func (r *Repo) TagCommit(ctx context.Context, tag string) (string, error) {
	out, err := r.git(ctx, "rev-list", "-n", "1", tag)
	return strings.TrimSpace(out), err
}

// TagExists reports whether a tag with exactly this name exists.
func (r *Repo) TagExists(ctx context.Context, tag string) (bool, error) {
	out, err := r.git(ctx, "tag", "--list", tag)
	if err != nil {
		return false, err
	}
	for _, t := range process.Lines(out) {
		if t == tag {
			return true, nil
		}
	}
	return false, nil
}

// Commit stages files and commits them with msg.
func (r *Repo) Commit(ctx context.Context, msg string, files ...string) error {
	if len(files) > 0 {
		args := append([]string{"add", "--"}, files...)
		if _, err := r.git(ctx, args...); err != nil {
			return err
		}
	}
	_, err := r.git(ctx, "commit", "-m", msg, "--", ".")
	return err
}

// CreateTag tags HEAD.
func (r *Repo) CreateTag(ctx context.Context, tag string) error {
	_, err := r.git(ctx, "tag", tag)
	return err
}

// DefaultRemote returns the first configured remote, or "origin".
func (r *Repo) DefaultRemote(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "remote")
	if err != nil {
		return "", err
	}
	if remotes := process.Lines(out); len(remotes) > 0 {
		return remotes[0], nil
	}
	return DefaultRemote, nil
}

// PushTag pushes a single tag to remote.
func (r *Repo) PushTag(ctx context.Context, remote, tag string) error {
	_, err := r.git(ctx, "push", remote, "refs/tags/"+tag)
	return err
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, r.dir, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return res.Stdout, nil
}
