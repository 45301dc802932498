package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/pkginfo"
	"github.com/frederic-klein/yapm/internal/registry"
	"github.com/frederic-klein/yapm/internal/report"
)

var (
	listUsed       bool
	listMissing    bool
	searchRemote   bool
	favoriteRemove bool
)

func packageCommands() []*cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the packages of all repositories",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&listUsed, "used", false, "Only packages the project uses")
	listCmd.Flags().BoolVar(&listMissing, "missing", false, "Only packages whose directory is gone")

	scanCmd := &cobra.Command{
		Use:   "scan [repository]",
		Short: "Rescan one repository, or every local repository",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}

	searchCmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Fuzzy search packages by name and display name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().BoolVar(&searchRemote, "remote", false, "Search the configured registry instead")

	depsCmd := &cobra.Command{
		Use:   "deps <name>",
		Short: "Show the transitive dependencies of a package",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeps,
	}

	addCmd := &cobra.Command{
		Use:   "add <name> [version]",
		Short: "Declare a package version in the manifest",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runAdd,
	}

	addLocalCmd := &cobra.Command{
		Use:   "add-local <name>",
		Short: "Declare a favorite package and its local dependencies by path",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddLocal,
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a package from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}

	linkCmd := &cobra.Command{
		Use:   "link <name>",
		Short: "Link a package directory into the packages directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runLink,
	}

	unlinkCmd := &cobra.Command{
		Use:   "unlink <name>",
		Short: "Remove the link to a package directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnlink,
	}

	copyCmd := &cobra.Command{
		Use:   "copy <name>",
		Short: "Toggle a copy of a package in the packages directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runCopy,
	}

	favoriteCmd := &cobra.Command{
		Use:   "favorite <name>",
		Short: "Mark a package as favorite",
		Args:  cobra.ExactArgs(1),
		RunE:  runFavorite,
	}
	favoriteCmd.Flags().BoolVar(&favoriteRemove, "remove", false, "Remove the favorite mark instead")

	return []*cobra.Command{
		listCmd, scanCmd, searchCmd, depsCmd,
		addCmd, addLocalCmd, removeCmd,
		linkCmd, unlinkCmd, copyCmd, favoriteCmd,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	repos, err := current.ws.Repositories(cmd.Context())
	if err != nil {
		return err
	}
	sections := make([]report.Section, 0, len(repos))
	for _, r := range repos {
		pkgs := append([]*pkginfo.Descriptor(nil), r.AllPackages()...)
		pkgs = append(pkgs, r.MissingDescriptors()...)
		sections = append(sections, report.Section{Name: r.Name, Packages: pkgs})
	}

	emitter := report.NewEmitter(cmd.OutOrStdout())
	if listUsed || listMissing {
		emitter.WithFilter(func(d *pkginfo.Descriptor) bool {
			return (!listUsed || d.IsUsed()) && (!listMissing || d.Flags.Missing)
		})
	}
	return emitter.Emit(sections)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 1 {
		r, err := current.ws.ScanRepository(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d packages\n", r.Name, len(r.AllPackages()))
		return nil
	}

	repos, err := current.ws.Repositories(ctx)
	if err != nil {
		return err
	}
	for _, r := range repos {
		if !r.IsLocal() {
			continue
		}
		if _, err := current.ws.ScanRepository(ctx, r.Name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d packages\n", r.Name, len(r.AllPackages()))
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if searchRemote {
		auth, err := resolveAuth()
		if err != nil {
			return err
		}
		idx := registry.NewIndex(auth.URL(), &http.Client{Timeout: current.cfg.ProcessTimeout})
		found, err := idx.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, p := range found {
			fmt.Fprintf(out, "%s %s\t%s\n", p.Name, p.Version, p.Description)
		}
		return nil
	}

	matches, err := current.ws.Search(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, m := range matches {
		d := m.Package
		fmt.Fprintf(out, "%s %s\t%s\t[%s] %s\n", d.Name, d.Version, d.Title(), m.Repository, d.Flags)
	}
	return nil
}

func runDeps(cmd *cobra.Command, args []string) error {
	if _, err := current.ws.Repositories(cmd.Context()); err != nil {
		return err
	}
	deps := current.ws.AllDependencies(args[0])
	if deps == nil {
		return yerrors.NotFoundf("package '%s' not found", args[0])
	}
	for _, d := range deps {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", d.Name, d.Version)
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	ver := ""
	if len(args) == 2 {
		ver = args[1]
	}
	changed, err := current.ws.AddPackage(cmd.Context(), args[0], ver)
	if err != nil {
		return err
	}
	return reportChange(cmd, changed, "added %s", args[0])
}

func runAddLocal(cmd *cobra.Command, args []string) error {
	changed, err := current.ws.AddLocalPackage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return reportChange(cmd, changed, "added %s by path", args[0])
}

func runRemove(cmd *cobra.Command, args []string) error {
	changed, err := current.ws.RemovePackage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return reportChange(cmd, changed, "removed %s", args[0])
}

func runLink(cmd *cobra.Command, args []string) error {
	link, err := current.ws.LinkPackage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "linked %s at %s\n", args[0], link)
	return nil
}

func runUnlink(cmd *cobra.Command, args []string) error {
	link, ok, err := current.ws.UnlinkPackage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not linked\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "unlinked %s\n", link)
	return nil
}

func runCopy(cmd *cobra.Command, args []string) error {
	action, target, err := current.ws.CopyToPackages(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", action, target)
	return nil
}

func runFavorite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if favoriteRemove {
		changed, err := current.ws.RemoveFavorite(ctx, args[0])
		if err != nil {
			return err
		}
		return reportChange(cmd, changed, "%s is no longer a favorite", args[0])
	}
	changed, err := current.ws.AddFavorite(ctx, args[0])
	if err != nil {
		return err
	}
	return reportChange(cmd, changed, "%s is a favorite", args[0])
}

func reportChange(cmd *cobra.Command, changed bool, format string, args ...any) error {
	if !changed {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing changed")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	return nil
}
