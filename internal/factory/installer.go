// Package factory stages the factory-reset tooling into a target root
// filesystem. Everything here is build output: the reset script runs on the
// produced OS, never during the build.
package factory

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"
)

const (
	// SnapshotDir is where the /etc snapshot lives inside the target,
	// relative to the rootfs.
	SnapshotDir = "etc.factory"

	scriptPath       = "usr/local/bin/reset-to-factory.sh"
	desktopEntryPath = "usr/share/applications/reset-to-factory.desktop"
)

type resetScriptData struct {
	SnapshotDir    string
	DisplayManager string
}

// The shipped script's runtime contract: require root, confirm through a
// dialog plus an admin credential, erase user homes, restore /etc from the
// factory snapshot, restart the display manager.
var resetScriptTemplate = template.Must(template.New("reset").Parse(`#!/bin/sh
set -e

if [ "$(id -u)" -ne 0 ]; then
	exec pkexec "$0" "$@"
fi

zenity --question \
	--title "Factory reset" \
	--text "Erase all user data and restore factory settings?" || exit 1

rm -rf /home/*
rm -rf /etc
cp -a /{{.SnapshotDir}} /etc

systemctl restart {{.DisplayManager}}
`))

type desktopEntryData struct {
	Name    string
	Exec    string
	Comment string
}

var desktopEntryTemplate = template.Must(template.New("desktop").Parse(`[Desktop Entry]
Type=Application
Name={{.Name}}
Comment={{.Comment}}
Exec={{.Exec}}
Terminal=false
Categories=System;
`))

// Installer stages the reset tooling.
type Installer struct {
	Logger *slog.Logger

	// DisplayManager is the service the reset script restarts.
	DisplayManager string
}

// InstallResetTooling snapshots <rootfs>/etc to <rootfs>/etc.factory, writes
// the executable reset script and registers its desktop launcher. The
// snapshot is taken at call time; files added to etc afterwards do not
// appear in it.
func (i *Installer) InstallResetTooling(rootfsPath string) error {
	if rootfsPath == "" {
		return fmt.Errorf("rootfs path is required")
	}
	logger := i.logger().With("rootfs", rootfsPath)

	etcDir := filepath.Join(rootfsPath, "etc")
	snapshotDir := filepath.Join(rootfsPath, SnapshotDir)

	logger.Info("snapshotting etc", "snapshot", snapshotDir)
	if err := os.RemoveAll(snapshotDir); err != nil {
		return fmt.Errorf("clear previous snapshot: %w", err)
	}
	if err := copyTree(etcDir, snapshotDir); err != nil {
		return fmt.Errorf("snapshot etc: %w", err)
	}

	script := filepath.Join(rootfsPath, scriptPath)
	data := resetScriptData{
		SnapshotDir:    SnapshotDir,
		DisplayManager: i.displayManager(),
	}
	if err := renderToFile(resetScriptTemplate, data, script, 0o755); err != nil {
		return fmt.Errorf("write reset script: %w", err)
	}

	entry := filepath.Join(rootfsPath, desktopEntryPath)
	entryData := desktopEntryData{
		Name:    "Reset to factory settings",
		Comment: "Erase user data and restore the system to its factory state",
		Exec:    "/" + scriptPath,
	}
	if err := renderToFile(desktopEntryTemplate, entryData, entry, 0o644); err != nil {
		return fmt.Errorf("write desktop entry: %w", err)
	}

	logger.Info("reset tooling installed", "script", script)
	return nil
}

func (i *Installer) displayManager() string {
	if i != nil && i.DisplayManager != "" {
		return i.DisplayManager
	}
	return "lightdm"
}

func (i *Installer) logger() *slog.Logger {
	if i != nil && i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

// copyTree mirrors src into dst preserving permissions. Symlinks are copied
// as links; other special files are rejected.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()

		switch {
		case d.IsDir():
			return os.MkdirAll(target, mode.Perm())
		case mode&os.ModeSymlink != 0:
			dest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(dest, target)
		case mode.IsRegular():
			return copyFile(path, target, mode.Perm())
		default:
			return fmt.Errorf("unsupported file type %s at %s", mode, path)
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
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

func renderToFile(tmpl *template.Template, data any, path string, perm os.FileMode) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), perm)
}
