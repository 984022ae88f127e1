package build

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/liveforge/internal/artifacts"
	"github.com/cochaviz/liveforge/internal/factory"
	"github.com/cochaviz/liveforge/internal/fetch"
	"github.com/cochaviz/liveforge/internal/image"
	"github.com/cochaviz/liveforge/internal/kernel"
	"github.com/cochaviz/liveforge/internal/pipeline"
	"github.com/cochaviz/liveforge/internal/profiles"
	"github.com/cochaviz/liveforge/internal/rootfs"
	"github.com/cochaviz/liveforge/internal/theme"
)

// ProfileRepository serves buildable profiles.
type ProfileRepository interface {
	Get(id string) (profiles.Profile, error)
	ListAll() []profiles.Profile
}

// Service turns a profile into the ordered stage list and drives it. One
// Service instance runs one build at a time; the build root is exclusively
// owned by that run.
type Service struct {
	Logger            *slog.Logger
	Env               *pipeline.BuildEnvironment
	ProfileRepository ProfileRepository
	Runner            rootfs.Runner
	Client            *fetch.Client
	ArtifactStore     artifacts.Store

	// SkipPrivilegeCheck is set by tests that never reach a privileged
	// stage.
	SkipPrivilegeCheck bool
}

// Run executes the full pipeline for the requested profile and returns the
// produced ISO path.
func (s *Service) Run(ctx context.Context, request *Request) (*Result, error) {
	if s.ProfileRepository == nil {
		return nil, errors.New("profile repository is not configured")
	}
	if s.Env == nil {
		return nil, errors.New("build environment is not configured")
	}

	profile, err := s.ProfileRepository.Get(request.ProfileID)
	if err != nil {
		return nil, err
	}

	if request.JobCount > 0 {
		s.Env.JobCount = request.JobCount
	}

	runID := uuid.NewString()
	logger := s.logger().With("profile", profile.ID, "run", runID)
	logger.Info("starting live image build",
		"kind", profile.Rootfs.Kind,
		"kernel", profile.Kernel.Version,
	)

	if !s.SkipPrivilegeCheck {
		if err := pipeline.RequirePrivilege(); err != nil {
			return nil, err
		}
	}

	lay := s.layout(profile)
	stages := s.stages(profile, lay)

	driver := &pipeline.Driver{Env: s.Env}
	if err := driver.Run(ctx, stages); err != nil {
		return nil, err
	}

	if s.ArtifactStore != nil {
		if err := s.recordArtifacts(profile, lay, runID, request); err != nil {
			return nil, err
		}
	}

	logger.Info("live image build completed", "iso", lay.isoPath)
	return &Result{RunID: runID, Profile: profile, ISOPath: lay.isoPath}, nil
}

// layout fixes where every intermediate and final output of a run lives,
// relative to the build root and cache.
type layout struct {
	rootfsDir     string
	kernelTarball string
	kernelSrcDir  string
	kernelImage   string
	busyboxPath   string
	initPath      string
	isoPath       string
}

func (s *Service) layout(profile profiles.Profile) layout {
	return layout{
		rootfsDir:     filepath.Join(s.Env.RootDir, "rootfs"),
		kernelTarball: filepath.Join(s.Env.CacheDir, filepath.Base(profile.Kernel.URL)),
		kernelSrcDir:  filepath.Join(s.Env.CacheDir, "linux-"+profile.Kernel.Version),
		kernelImage:   kernel.InstalledImagePath(s.Env.RootDir, profile.Kernel.Version),
		busyboxPath:   filepath.Join(s.Env.CacheDir, "busybox-"+profile.Rootfs.BusyboxVersion),
		initPath:      filepath.Join(s.Env.RootDir, "init"),
		isoPath:       filepath.Join(s.Env.RootDir, "out", profile.ISOName),
	}
}

// recordArtifacts registers the run's outputs in the artifact store: the
// fetched archives, the built kernel image, the rootfs tree and the ISO.
// Checksums are taken from the files as they exist after the run, so cached
// inputs carry their original download digest.
func (s *Service) recordArtifacts(profile profiles.Profile, lay layout, runID string, request *Request) error {
	metadata := map[string]any{
		"profile":        profile.ID,
		"run":            runID,
		"kernel_version": profile.Kernel.Version,
		"requested_at":   request.RequestedAt.Format(time.RFC3339),
	}

	if err := s.recordFile(lay.kernelTarball, artifacts.ArchiveArtifact, metadata); err != nil {
		return err
	}
	if profile.Rootfs.Kind == profiles.KindBare {
		if err := s.recordFile(lay.busyboxPath, artifacts.ArchiveArtifact, metadata); err != nil {
			return err
		}
	}
	if err := s.recordFile(lay.kernelImage, artifacts.KernelArtifact, metadata); err != nil {
		return err
	}
	if _, err := s.ArtifactStore.Record(lay.rootfsDir, artifacts.RootfsArtifact, "", metadata); err != nil {
		return err
	}
	return s.recordFile(lay.isoPath, artifacts.ISOArtifact, metadata)
}

func (s *Service) recordFile(path string, kind artifacts.ArtifactKind, metadata map[string]any) error {
	checksum, err := fetch.Checksum(path)
	if err != nil {
		return err
	}
	_, err = s.ArtifactStore.Record(path, kind, checksum, metadata)
	return err
}

// stages declares the pipeline for one profile. Order is load-bearing: every
// stage consumes outputs of the ones before it. Only theme installation is
// best-effort; every stage whose output a later stage consumes is mandatory.
func (s *Service) stages(profile profiles.Profile, lay layout) []pipeline.Stage {
	target := rootfs.Target{
		Kind: profile.Rootfs.Kind,
		Path: lay.rootfsDir,
		Spec: profile.Rootfs,
	}

	builder := &kernel.Builder{
		Logger: s.logger().With("component", "kernel"),
		Runner: s.Runner,
		Client: s.Client,
	}
	assembler := &rootfs.Assembler{
		Logger:      s.logger().With("component", "rootfs"),
		Runner:      s.Runner,
		BusyboxPath: lay.busyboxPath,
	}
	resetInstaller := &factory.Installer{
		Logger: s.logger().With("component", "factory"),
	}
	themeInstaller := &theme.Installer{
		Logger: s.logger().With("component", "theme"),
		Runner: s.Runner,
		Client: s.Client,
	}
	finalizer := &image.Finalizer{
		Logger:     s.logger().With("component", "image"),
		StagingDir: filepath.Join(s.Env.RootDir, "staging"),
	}

	stages := []pipeline.Stage{
		{
			Name:          "fetch-kernel",
			SkipIfPresent: lay.kernelTarball,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				_, _, err := builder.Fetch(ctx, profile.Kernel, env)
				return err
			},
		},
		{
			Name:          "extract-kernel",
			SkipIfPresent: lay.kernelSrcDir,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				_, err := builder.Extract(ctx, profile.Kernel, lay.kernelTarball, env)
				return err
			},
		},
		{
			Name:          "build-kernel",
			SkipIfPresent: lay.kernelImage,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				_, err := builder.Build(ctx, profile.Kernel, lay.kernelSrcDir, env)
				return err
			},
		},
	}

	if profile.Rootfs.Kind == profiles.KindBare {
		stages = append(stages, pipeline.Stage{
			Name:          "fetch-busybox",
			SkipIfPresent: lay.busyboxPath,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				client := s.Client
				if client == nil {
					client = fetch.NewClient(env.Logger)
				}
				_, err := client.Download(ctx, profile.Rootfs.BusyboxURL, lay.busyboxPath)
				return err
			},
		})
	}

	stages = append(stages,
		pipeline.Stage{
			Name:          "assemble-rootfs",
			SkipIfPresent: filepath.Join(lay.rootfsDir, ".assembled"),
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				if err := assembler.Assemble(ctx, target); err != nil {
					return err
				}
				return touch(filepath.Join(lay.rootfsDir, ".assembled"))
			},
		},
		pipeline.Stage{
			Name:          "install-reset-tooling",
			SkipIfPresent: filepath.Join(lay.rootfsDir, factory.SnapshotDir),
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				return resetInstaller.InstallResetTooling(lay.rootfsDir)
			},
		},
	)

	if profile.Theme.URL != "" {
		// The marker is written only after installation succeeds, so a
		// failed theme install is retried on the next run.
		themeMarker := filepath.Join(lay.rootfsDir, ".theme-installed")
		stages = append(stages, pipeline.Stage{
			Name:          "install-theme",
			SkipIfPresent: themeMarker,
			AllowFailure:  true,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				if err := themeInstaller.Install(ctx, profile.Theme, target); err != nil {
					return err
				}
				return touch(themeMarker)
			},
		})
	}

	stages = append(stages,
		pipeline.Stage{
			Name:          "write-init-payload",
			SkipIfPresent: lay.initPath,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				return rootfs.WriteInitScript(lay.initPath)
			},
		},
		pipeline.Stage{
			Name:          "finalize-image",
			SkipIfPresent: lay.isoPath,
			Run: func(ctx context.Context, env *pipeline.BuildEnvironment) error {
				_, err := finalizer.Finalize(ctx, image.ImageArtifact{
					KernelImagePath: lay.kernelImage,
					InitScriptPath:  lay.initPath,
					VolumeLabel:     profile.ID,
					OutputISOPath:   lay.isoPath,
				})
				return err
			},
		},
	)

	return stages
}

// touch writes an empty marker file recording stage completion.
func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func (s *Service) logger() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
