package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	config "github.com/cochaviz/liveforge/config"
	"github.com/cochaviz/liveforge/internal/artifacts"
	"github.com/cochaviz/liveforge/internal/logging"
	"github.com/cochaviz/liveforge/internal/setup"
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
	setup.SetLogger(logger.With("component", "setup"))

	logLevel := defaultLogLevel

	root := &cobra.Command{
		Use:           "liveforge",
		Short:         "Assemble custom bootable Linux live images",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	root.AddCommand(
		newBuildCommand(logger),
		newProfilesCommand(logger),
		newResetToolingCommand(logger),
		newArtifactsCommand(),
	)
	return root
}

func newBuildCommand(logger *slog.Logger) *cobra.Command {
	var (
		rootDir  string
		jobCount int
	)

	cmd := &cobra.Command{
		Use:   "build <profile-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Run the full provisioning pipeline for the specified profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID := strings.TrimSpace(args[0])
			if profileID == "" {
				return fmt.Errorf("profile is required")
			}

			cmdLogger := logger.With("command", "build", "profile", profileID)
			cmdLogger.Info("starting build", "root", rootDir, "jobs", jobCount)

			isoPath, err := config.BuildLive(cmd.Context(), profileID, rootDir, jobCount, cmdLogger)
			if err != nil {
				cmdLogger.Error("build failed", "error", err)
				return err
			}

			cmdLogger.Info("build completed")
			fmt.Fprintln(cmd.OutOrStdout(), isoPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&rootDir, "root", setup.RootDir(), "Build root directory")
	cmd.Flags().IntVar(&jobCount, "jobs", 0, "Kernel build parallelism (0 = processor count)")

	return cmd
}

func newProfilesCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the embedded build profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := config.ListProfiles()
			if err != nil {
				logger.Error("listing profiles failed", "error", err)
				return err
			}

			out := cmd.OutOrStdout()
			for _, profile := range list {
				fmt.Fprintf(out, "%s\t%s\t(kernel %s)\n",
					profile.ID, profile.Rootfs.Kind, profile.Kernel.Version)
			}
			return nil
		},
	}
}

func newResetToolingCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-tooling <rootfs-path>",
		Args:  cobra.ExactArgs(1),
		Short: "Stage factory-reset tooling into an existing rootfs tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			rootfsPath := strings.TrimSpace(args[0])
			if rootfsPath == "" {
				return fmt.Errorf("rootfs path is required")
			}

			cmdLogger := logger.With("command", "reset-tooling")
			if err := config.InstallResetTooling(rootfsPath, cmdLogger); err != nil {
				cmdLogger.Error("installing reset tooling failed", "error", err)
				return err
			}
			cmdLogger.Info("reset tooling installed", "rootfs", rootfsPath)
			return nil
		},
	}
}

func newArtifactsCommand() *cobra.Command {
	var rootDir string

	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List artifacts recorded under the build root",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := &artifacts.LocalStore{BaseDir: filepath.Join(rootDir, "artifacts")}
			list, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no artifacts")
				return nil
			}
			for _, artifact := range list {
				fmt.Fprintf(out, "%s\t%s\t%s\n", artifact.ID, artifact.Kind, artifact.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rootDir, "root", setup.RootDir(), "Build root directory")

	return cmd
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}
