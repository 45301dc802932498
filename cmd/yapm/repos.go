package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var repoName string

func newRepoCmd() *cobra.Command {
	repoCmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage package repositories",
	}

	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a repository by path or file:// URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runRepoAdd,
	}
	addCmd.Flags().StringVar(&repoName, "name", "", "Repository name (default: last path element)")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runRepoRemove,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered repositories",
		Args:  cobra.NoArgs,
		RunE:  runRepoList,
	}

	repoCmd.AddCommand(addCmd, removeCmd, listCmd)
	return repoCmd
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	r, err := current.ws.AddRepository(cmd.Context(), repoName, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added repository %s (%d packages)\n", r.Name, len(r.AllPackages()))
	return nil
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	if err := current.ws.RemoveRepository(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed repository %s\n", args[0])
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	repos, err := current.ws.Repositories(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPACKAGES\tFAVORITES\tLOCATION")
	for _, r := range repos {
		loc := r.LocalDir()
		if loc == "" {
			loc = r.URL
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Name, len(r.AllPackages()), len(r.AllFavorites()), loc)
	}
	return tw.Flush()
}
