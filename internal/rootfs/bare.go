package rootfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// skeleton is the fixed directory layout of a bare rootfs.
var skeleton = []string{
	"bin", "boot", "dev", "etc", "home", "lib", "mnt", "opt",
	"proc", "root", "sbin", "sys", "tmp", "usr/bin", "usr/local/bin",
	"usr/sbin", "var/log",
}

// assembleBare builds a minimal root filesystem by hand: directory skeleton,
// busybox userland, init script, hostname, fstab and device nodes.
// busyboxPath is the cached busybox binary downloaded by an earlier stage.
func (a *Assembler) assembleBare(ctx context.Context, target Target, busyboxPath string) error {
	logger := a.logger().With("kind", target.Kind, "path", target.Path)
	logger.Info("assembling bare rootfs")

	for _, dir := range skeleton {
		if err := os.MkdirAll(filepath.Join(target.Path, dir), 0o755); err != nil {
			return &AssemblyError{Op: "create skeleton", Err: err}
		}
	}

	// World-writable with the sticky bit, as on any live system.
	tmpDir := filepath.Join(target.Path, "tmp")
	if err := os.Chmod(tmpDir, 0o777|os.ModeSticky); err != nil {
		return &AssemblyError{Op: "set sticky bit on tmp", Err: err}
	}

	if err := installBusybox(busyboxPath, target.Path); err != nil {
		return &AssemblyError{Op: "install busybox", Err: err}
	}

	if err := WriteInitScript(filepath.Join(target.Path, "init")); err != nil {
		return &AssemblyError{Op: "write init script", Err: err}
	}
	if err := writeHostname(target.Path, target.Spec.Hostname); err != nil {
		return &AssemblyError{Op: "write hostname", Err: err}
	}
	if err := renderToFile(fstabTemplate, defaultFstab,
		filepath.Join(target.Path, "etc", "fstab"), 0o644); err != nil {
		return &AssemblyError{Op: "write fstab", Err: err}
	}

	if err := CreateDeviceNodes(target.Path); err != nil {
		return err
	}

	logger.Info("bare rootfs assembled")
	return nil
}

// installBusybox places the busybox binary and links the applet names the
// init script depends on. Symlinks stand in for `busybox --install`, which
// would need to execute a foreign binary at build time.
func installBusybox(busyboxPath, rootfsPath string) error {
	dest := filepath.Join(rootfsPath, "bin", "busybox")
	if err := copyFile(busyboxPath, dest, 0o755); err != nil {
		return err
	}

	applets := []string{"sh", "mount", "umount", "hostname", "cat", "ls", "ps"}
	for _, applet := range applets {
		link := filepath.Join(rootfsPath, "bin", applet)
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Symlink("busybox", link); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
