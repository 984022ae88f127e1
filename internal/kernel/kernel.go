// Package kernel drives the external kernel build: fetch a pinned source
// tarball, extract it, run the kernel's own build system and install the
// resulting image under <root>/boot. Build correctness is entirely the kernel
// build system's concern; this package only sequences it.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cochaviz/liveforge/internal/artifacts"
	"github.com/cochaviz/liveforge/internal/fetch"
	"github.com/cochaviz/liveforge/internal/pipeline"
	"github.com/cochaviz/liveforge/internal/profiles"
	"github.com/cochaviz/liveforge/internal/rootfs"
)

// Builder compiles the kernel pinned by a profile.
type Builder struct {
	Logger *slog.Logger
	Runner rootfs.Runner
	Client *fetch.Client
}

// Fetch downloads the kernel source tarball into the cache and returns its
// path and download SHA-256. Skipped when the tarball is already cached; the
// checksum of the cached file is returned either way.
func (b *Builder) Fetch(ctx context.Context, spec profiles.KernelSpec, env *pipeline.BuildEnvironment) (string, string, error) {
	tarball := filepath.Join(env.CacheDir, filepath.Base(spec.URL))
	checksum, err := b.client().Download(ctx, spec.URL, tarball)
	if err != nil {
		return "", "", fmt.Errorf("fetch kernel %s: %w", spec.Version, err)
	}
	return tarball, checksum, nil
}

// Extract unpacks the tarball into the cache directory, delegating to tar(1).
// Returns the source tree path; skipped when the tree already exists.
func (b *Builder) Extract(ctx context.Context, spec profiles.KernelSpec, tarball string, env *pipeline.BuildEnvironment) (string, error) {
	srcDir := filepath.Join(env.CacheDir, "linux-"+spec.Version)
	if artifacts.Present(srcDir) {
		b.logger().Info("kernel source already extracted", "dir", srcDir)
		return srcDir, nil
	}

	if err := b.runner().Run(ctx, "tar", "-xf", tarball, "-C", env.CacheDir); err != nil {
		return "", fmt.Errorf("extract kernel source: %w", err)
	}
	if !artifacts.Present(srcDir) {
		return "", fmt.Errorf("extracted tree %s not found; tarball layout unexpected", srcDir)
	}
	return srcDir, nil
}

// Build runs the kernel build system with the environment's job count and
// installs the image to <root>/boot/vmlinuz-<version>. Skipped when that
// image already exists.
func (b *Builder) Build(ctx context.Context, spec profiles.KernelSpec, srcDir string, env *pipeline.BuildEnvironment) (string, error) {
	installed := InstalledImagePath(env.RootDir, spec.Version)
	if artifacts.Present(installed) {
		b.logger().Info("kernel already built", "image", installed)
		return installed, nil
	}

	logger := b.logger().With("version", spec.Version, "jobs", env.JobCount)
	logger.Info("building kernel")

	if err := b.runner().Run(ctx, "make", "-C", srcDir, "defconfig"); err != nil {
		return "", fmt.Errorf("configure kernel: %w", err)
	}
	if err := b.runner().Run(ctx, "make", "-C", srcDir,
		"-j"+strconv.Itoa(env.JobCount), "bzImage"); err != nil {
		return "", fmt.Errorf("build kernel: %w", err)
	}

	built := filepath.Join(srcDir, "arch", "x86", "boot", "bzImage")
	if err := os.MkdirAll(filepath.Dir(installed), 0o755); err != nil {
		return "", fmt.Errorf("ensure boot directory: %w", err)
	}
	if err := copyImage(built, installed); err != nil {
		return "", fmt.Errorf("install kernel image: %w", err)
	}

	logger.Info("kernel installed", "image", installed)
	return installed, nil
}

// InstalledImagePath is where a built kernel lands under the build root.
func InstalledImagePath(rootDir, version string) string {
	return filepath.Join(rootDir, "boot", "vmlinuz-"+version)
}

func copyImage(src, dst string) error {
	payload, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, payload, 0o644)
}

func (b *Builder) logger() *slog.Logger {
	if b != nil && b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Builder) runner() rootfs.Runner {
	if b != nil && b.Runner != nil {
		return b.Runner
	}
	return rootfs.ExecRunner{}
}

func (b *Builder) client() *fetch.Client {
	if b != nil && b.Client != nil {
		return b.Client
	}
	return fetch.NewClient(b.logger())
}
