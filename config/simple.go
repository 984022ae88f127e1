// Package config wires the default component graph for straightforward CLI
// use: embedded profiles, local artifact store, exec-backed command runner.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cochaviz/liveforge/internal/artifacts"
	"github.com/cochaviz/liveforge/internal/build"
	"github.com/cochaviz/liveforge/internal/factory"
	"github.com/cochaviz/liveforge/internal/fetch"
	"github.com/cochaviz/liveforge/internal/logging"
	"github.com/cochaviz/liveforge/internal/pipeline"
	"github.com/cochaviz/liveforge/internal/profiles"
	"github.com/cochaviz/liveforge/internal/rootfs"
	"github.com/cochaviz/liveforge/internal/setup"
)

// BuildLive executes the end-to-end pipeline for the requested profile and
// returns the path of the produced ISO. The two append-only logs are written
// under rootDir for the lifetime of the run.
func BuildLive(ctx context.Context, profileID, rootDir string, jobCount int, logger *slog.Logger) (string, error) {
	logger = logging.Ensure(logger).With("component", "config")

	if profileID == "" {
		return "", fmt.Errorf("profile id is required")
	}
	if rootDir == "" {
		rootDir = setup.RootDir()
	}

	repo, err := profiles.NewEmbeddedProfileRepository()
	if err != nil {
		return "", err
	}
	profile, err := repo.Get(profileID)
	if err != nil {
		return "", err
	}
	if err := setup.Verify(profile.Rootfs.Kind); err != nil {
		return "", fmt.Errorf("host verification: %w", err)
	}

	env := pipeline.NewBuildEnvironment(rootDir, jobCount, nil)

	buildLog, err := logging.OpenBuildLog(env.LogPath, env.ErrorLogPath)
	if err != nil {
		return "", err
	}
	defer buildLog.Close()

	// Console records keep the caller's handler; every record additionally
	// lands in the build log, errors also in the error log.
	env.Logger = slog.New(logging.Tee(logger.Handler(), buildLog.Handler(nil)))

	service := &build.Service{
		Logger:            env.Logger,
		Env:               env,
		ProfileRepository: repo,
		Runner:            rootfs.ExecRunner{},
		Client:            fetch.NewClient(env.Logger),
		ArtifactStore:     &artifacts.LocalStore{BaseDir: filepath.Join(rootDir, "artifacts")},
	}

	result, err := service.Run(ctx, &build.Request{
		ProfileID:   profileID,
		RequestedAt: time.Now(),
		JobCount:    jobCount,
	})
	if err != nil {
		return "", err
	}
	return result.ISOPath, nil
}

// ListProfiles returns every embedded profile.
func ListProfiles() ([]profiles.Profile, error) {
	repo, err := profiles.NewEmbeddedProfileRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListAll(), nil
}

// InstallResetTooling stages the factory-reset tooling into an existing
// rootfs tree without running the rest of the pipeline.
func InstallResetTooling(rootfsPath string, logger *slog.Logger) error {
	logger = logging.Ensure(logger).With("component", "config")
	installer := &factory.Installer{Logger: logger.With("component", "factory")}
	return installer.InstallResetTooling(rootfsPath)
}
