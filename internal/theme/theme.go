// Package theme installs an optional desktop theme into a chroot rootfs.
// Theme installation is cosmetic: it is the one pipeline stage allowed to
// fail without aborting the build.
package theme

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cochaviz/liveforge/internal/fetch"
	"github.com/cochaviz/liveforge/internal/profiles"
	"github.com/cochaviz/liveforge/internal/rootfs"
)

// Installer fetches a theme archive into the chroot and runs its installer
// there.
type Installer struct {
	Logger *slog.Logger
	Runner rootfs.Runner
	Client *fetch.Client
}

// Install downloads spec.URL into the target's tmp, unpacks it and runs the
// theme's own install script inside the chroot. A profile without a theme URL
// is a no-op.
func (i *Installer) Install(ctx context.Context, spec profiles.ThemeSpec, target rootfs.Target) error {
	if spec.URL == "" {
		return nil
	}

	logger := i.logger().With("url", spec.URL, "rootfs", target.Path)
	logger.Info("installing theme")

	archive := filepath.Join(target.Path, "tmp", "theme.tar.gz")
	if _, err := i.client().Download(ctx, spec.URL, archive); err != nil {
		return fmt.Errorf("fetch theme: %w", err)
	}

	unpackDir := filepath.Join(target.Path, "tmp", "theme")
	if err := i.runner().Run(ctx, "mkdir", "-p", unpackDir); err != nil {
		return fmt.Errorf("create theme directory: %w", err)
	}
	if err := i.runner().Run(ctx, "tar", "-xzf", archive,
		"-C", unpackDir, "--strip-components=1"); err != nil {
		return fmt.Errorf("unpack theme: %w", err)
	}

	installer := spec.Installer
	if installer == "" {
		installer = "install.sh"
	}
	if err := i.runner().Run(ctx, "chroot", target.Path,
		"/bin/sh", "/tmp/theme/"+installer); err != nil {
		return fmt.Errorf("run theme installer: %w", err)
	}

	logger.Info("theme installed")
	return nil
}

func (i *Installer) logger() *slog.Logger {
	if i != nil && i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

func (i *Installer) runner() rootfs.Runner {
	if i != nil && i.Runner != nil {
		return i.Runner
	}
	return rootfs.ExecRunner{}
}

func (i *Installer) client() *fetch.Client {
	if i != nil && i.Client != nil {
		return i.Client
	}
	return fetch.NewClient(i.logger())
}
