package rootfs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cochaviz/liveforge/internal/profiles"
)

// assembleChroot bootstraps a distribution rootfs with its own tooling, then
// runs the fixed post-install sequence inside the chroot.
func (a *Assembler) assembleChroot(ctx context.Context, target Target) error {
	logger := a.logger().With("kind", target.Kind, "path", target.Path, "release", target.Spec.Release)
	logger.Info("bootstrapping chroot rootfs")

	if err := a.bootstrap(ctx, target); err != nil {
		return &AssemblyError{Op: "bootstrap", Err: err}
	}
	logger.Info("bootstrap completed")

	if err := a.postInstall(ctx, target); err != nil {
		return &AssemblyError{Op: "post-install", Err: err}
	}

	if err := writeHostname(target.Path, target.Spec.Hostname); err != nil {
		return &AssemblyError{Op: "write hostname", Err: err}
	}
	if err := CreateDeviceNodes(target.Path); err != nil {
		return err
	}

	logger.Info("chroot rootfs assembled")
	return nil
}

func (a *Assembler) bootstrap(ctx context.Context, target Target) error {
	switch target.Kind {
	case profiles.KindDebianChroot:
		mirror := target.Spec.Mirror
		if mirror == "" {
			mirror = "http://deb.debian.org/debian"
		}
		return a.runner().Run(ctx, "debootstrap",
			"--variant=minbase", target.Spec.Release, target.Path, mirror)

	case profiles.KindFedoraChroot:
		return a.runner().Run(ctx, "dnf",
			"--installroot="+target.Path,
			"--releasever="+target.Spec.Release,
			"--assumeyes",
			"group", "install", "core")

	default:
		return fmt.Errorf("kind %q is not a chroot target", target.Kind)
	}
}

// postInstall runs the fixed in-chroot sequence: package installation, locale
// generation, user creation and a sudoers entry.
func (a *Assembler) postInstall(ctx context.Context, target Target) error {
	if len(target.Spec.Packages) > 0 {
		var install []string
		switch target.Kind {
		case profiles.KindDebianChroot:
			install = append([]string{"apt-get", "install", "--yes"}, target.Spec.Packages...)
		case profiles.KindFedoraChroot:
			install = append([]string{"dnf", "install", "--assumeyes"}, target.Spec.Packages...)
		}
		if err := a.runInChroot(ctx, target.Path, install...); err != nil {
			return fmt.Errorf("install packages: %w", err)
		}
	}

	if target.Kind == profiles.KindDebianChroot {
		if err := a.runInChroot(ctx, target.Path, "locale-gen", "en_US.UTF-8"); err != nil {
			return fmt.Errorf("generate locale: %w", err)
		}
	}

	username := strings.TrimSpace(target.Spec.Username)
	if username != "" {
		if err := a.runInChroot(ctx, target.Path,
			"useradd", "--create-home", "--shell", "/bin/bash", username); err != nil {
			return fmt.Errorf("create user %s: %w", username, err)
		}
		sudoersPath := filepath.Join(target.Path, "etc", "sudoers.d", username)
		if err := renderToFile(sudoersTemplate, sudoersData{Username: username}, sudoersPath, 0o440); err != nil {
			return fmt.Errorf("write sudoers entry: %w", err)
		}
	}
	return nil
}

// runInChroot executes a command with the filesystem root switched to
// rootfsPath, delegating to chroot(8) so the target's own binaries run.
func (a *Assembler) runInChroot(ctx context.Context, rootfsPath string, command ...string) error {
	if len(command) == 0 {
		return fmt.Errorf("no chroot command provided")
	}
	args := append([]string{rootfsPath}, command...)
	return a.runner().Run(ctx, "chroot", args...)
}
