package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/yapm/internal/config"
	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/logging"
	"github.com/frederic-klein/yapm/internal/workspace"
)

var (
	projectDir string
	configFile string
	verbosity  int
	quiet      bool
)

// app is the state shared by every command, built before a command runs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	ws     *workspace.Workspace
}

var current *app

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "yapm",
		Short: "Yet Another Package Manager - local package repositories for Unity projects",
		Long: "YAPM discovers packages in local repositories, tracks how a project uses them " +
			"and edits the project's dependency manifest, links and copies. It also publishes " +
			"packages to an npm registry.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if current == nil {
				return nil
			}
			return current.closer.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&projectDir, "project", "C", "", "Project directory (default: current directory)")
	flags.StringVar(&configFile, "config", "", "Config file (default: yapm.toml in the project or ~/.config/yapm)")
	flags.CountVarP(&verbosity, "verbose", "v", "Verbose output (-vv for debug)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress log output")

	rootCmd.AddCommand(packageCommands()...)
	rootCmd.AddCommand(newRepoCmd())
	rootCmd.AddCommand(releaseCommands()...)
	return rootCmd
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(projectDir, configFile)
	if err != nil {
		return err
	}
	level := logging.LevelFromVerbosity(verbosity, quiet, logging.LevelFromString(cfg.LogLevel))
	logger, closer, err := logging.Setup(cmd.ErrOrStderr(), level, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logger.Debug("configuration loaded", "project", cfg.ProjectDir, "file", cfg.File)

	ws, err := workspace.Open(cfg, logger)
	if err != nil {
		closer.Close()
		return err
	}
	current = &app{cfg: cfg, logger: logger, closer: closer, ws: ws}
	return nil
}

// exitCode maps an error code to a process exit status.
func exitCode(err error) int {
	switch yerrors.CodeOf(err) {
	case yerrors.NotFound:
		return 3
	case yerrors.StateConflict:
		return 4
	case yerrors.ExternalTool:
		return 5
	case yerrors.InvalidArgument, yerrors.ParseFailed:
		return 2
	}
	return 1
}
