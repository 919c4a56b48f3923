// craft-hooks runs the LXD cleanup hooks: configure (garbage-collect base
// instances with superseded compatibility tags) and remove (tear down the
// application's LXD project on uninstall).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canonical/craft-providers-sub001/internal/base"
	"github.com/canonical/craft-providers-sub001/internal/hooks"
	"github.com/canonical/craft-providers-sub001/internal/logging"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	var (
		logLevel string
		project  string
		tag      string
		simulate bool
		debug    bool
	)

	root := &cobra.Command{
		Use:           "craft-hooks",
		Short:         "Maintenance hooks for craft-managed LXD build environments",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&project, "project", "", "LXD project to operate on")
	root.PersistentFlags().StringVar(&tag, "compatibility-tag", base.DefaultTag, "Live compatibility tag; base instances without it are superseded")
	root.PersistentFlags().BoolVar(&simulate, "simulate", false, "Log what would be deleted without deleting anything")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Trace every instance decision (shorthand for --log-level debug)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if debug {
			level = slog.LevelDebug
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	newHelper := func(ctx context.Context) (*hooks.Helper, error) {
		return hooks.NewHelper(ctx, hooks.Options{
			Project:          project,
			CompatibilityTag: tag,
			Simulate:         simulate,
			Logger:           logger,
		})
	}

	configure := &cobra.Command{
		Use:   "configure",
		Short: "Delete base instances with superseded compatibility tags and their derived instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			helper, err := newHelper(cmd.Context())
			if err != nil {
				return err
			}
			return helper.ConfigureHook(cmd.Context())
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Delete every instance and image in the project, then the project itself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			helper, err := newHelper(cmd.Context())
			if err != nil {
				return err
			}
			return helper.RemoveHook(cmd.Context())
		},
	}

	root.AddCommand(configure, remove)
	return root
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
