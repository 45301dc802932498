package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/process"
	"github.com/frederic-klein/yapm/internal/publish"
	"github.com/frederic-klein/yapm/internal/registry"
	"github.com/frederic-klein/yapm/internal/version"
)

// progressInterval is how often a running job's progress is sampled.
const progressInterval = 200 * time.Millisecond

var (
	bumpField     string
	bumpPre       bool
	bumpPreID     string
	bumpSeparator string
	newVersion    string
	createTag     bool
	pushTag       bool
)

func releaseCommands() []*cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version <version>",
		Short: "Print the version a bump would produce",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersion,
	}
	addBumpFlags(versionCmd)

	publishCmd := &cobra.Command{
		Use:   "publish [dir]",
		Short: "Publish a package directory to the registry",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPublish,
	}
	addBumpFlags(publishCmd)
	publishCmd.Flags().StringVar(&newVersion, "version", "", "Publish as this version instead of bumping")
	publishCmd.Flags().BoolVar(&createTag, "tag", false, "Create the git tag v<version>")
	publishCmd.Flags().BoolVar(&pushTag, "push", false, "Push the tag to the default remote")

	unpublishCmd := &cobra.Command{
		Use:   "unpublish <name>@<version>",
		Short: "Remove a published package version from the registry",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnpublish,
	}

	return []*cobra.Command{versionCmd, publishCmd, unpublishCmd}
}

func addBumpFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&bumpField, "bump", "none", "Field to increment: major, minor, build, revision or none")
	cmd.Flags().BoolVar(&bumpPre, "pre", false, "Produce a pre-release version")
	cmd.Flags().StringVar(&bumpPreID, "pre-id", "", "Pre-release id (default: current id or \""+publish.DefaultPreID+"\")")
	cmd.Flags().StringVar(&bumpSeparator, "separator", "", "Pre-release separator, - or . (default: current or \""+publish.DefaultSeparator+"\")")
}

func bumpFromFlags() (publish.Bump, error) {
	field, err := version.ParseField(bumpField)
	if err != nil {
		return publish.NoBump, err
	}
	return publish.Bump{Field: field, Pre: bumpPre, PreID: bumpPreID, Separator: bumpSeparator}, nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, err := version.Parse(args[0])
	if err != nil {
		return err
	}
	bump, err := bumpFromFlags()
	if err != nil {
		return err
	}
	next, err := bump.Apply(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), next)
	return nil
}

func resolveAuth() (registry.Auth, error) {
	ws := current.ws
	return registry.ResolveAuth(ws.ProjectSettings().Settings().Registry, ws.Settings().Settings().Registry)
}

func newPublisher(auth registry.Auth) *publish.Publisher {
	runner := process.NewExec(current.cfg.ProcessTimeout, current.logger)
	idx := registry.NewIndex(auth.URL(), &http.Client{Timeout: current.cfg.ProcessTimeout})
	return publish.New(runner, registry.NewClient(runner, current.logger), idx, current.logger)
}

func runPublish(cmd *cobra.Command, args []string) error {
	bump, err := bumpFromFlags()
	if err != nil {
		return err
	}
	if newVersion != "" && !bump.IsZero() {
		return yerrors.Invalid("--version cannot be combined with --bump or --pre")
	}
	if pushTag && !createTag {
		return yerrors.Invalid("--push requires --tag")
	}
	auth, err := resolveAuth()
	if err != nil {
		return err
	}

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}

	job := newPublisher(auth).PublishAsync(publish.Request{
		Dir:       dir,
		Version:   newVersion,
		Bump:      bump,
		CreateTag: createTag,
		Push:      pushTag,
		Auth:      auth,
	})
	ver, err := follow(cmd.Context(), job)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", ver)
	return nil
}

func runUnpublish(cmd *cobra.Command, args []string) error {
	name, ver, ok := splitPackageVersion(args[0])
	if !ok {
		return yerrors.Invalid("expected <name>@<version>, got '%s'", args[0])
	}
	auth, err := resolveAuth()
	if err != nil {
		return err
	}

	dir := current.cfg.ProjectDir
	if _, err := current.ws.Repositories(cmd.Context()); err == nil {
		if d, found := current.ws.PackageInfo(name); found && d.FullDir() != "" {
			dir = d.FullDir()
		}
	}

	job := newPublisher(auth).UnpublishAsync(auth, dir, name, ver)
	if _, err := follow(cmd.Context(), job); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "unpublished %s@%s\n", name, ver)
	return nil
}

// splitPackageVersion splits at the last '@' so scoped names survive.
func splitPackageVersion(s string) (name, ver string, ok bool) {
	i := strings.LastIndex(s, "@")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// follow waits for job, logging each progress message change.
func follow(ctx context.Context, job *publish.Job) (string, error) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-job.Done():
			return job.Wait(ctx)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			state := job.Progress.Snapshot()
			if state.Message != "" && state.Message != last {
				last = state.Message
				current.logger.Info(state.Title, "job", job.ID, "progress", fmt.Sprintf("%.0f%%", state.Percent*100), "message", state.Message)
			}
		}
	}
}
