package rootfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// The files the assembler writes into the target tree are generated from
// typed templates rather than interpolated strings, so a malformed value
// fails the build instead of producing a broken image.

type initScriptData struct {
	Shell string
}

var initScriptTemplate = template.Must(template.New("init").Parse(`#!/bin/sh
mount -t proc none /proc
mount -t sysfs none /sys
mount -t devtmpfs none /dev
hostname -F /etc/hostname
exec {{.Shell}}
`))

type fstabData struct {
	Entries []fstabEntry
}

type fstabEntry struct {
	Device     string
	MountPoint string
	Type       string
	Options    string
}

var fstabTemplate = template.Must(template.New("fstab").Parse(
	`{{range .Entries}}{{.Device}}	{{.MountPoint}}	{{.Type}}	{{.Options}}	0	0
{{end}}`))

var defaultFstab = fstabData{
	Entries: []fstabEntry{
		{Device: "proc", MountPoint: "/proc", Type: "proc", Options: "defaults"},
		{Device: "sysfs", MountPoint: "/sys", Type: "sysfs", Options: "defaults"},
		{Device: "devtmpfs", MountPoint: "/dev", Type: "devtmpfs", Options: "defaults"},
	},
}

type sudoersData struct {
	Username string
}

var sudoersTemplate = template.Must(template.New("sudoers").Parse(
	"{{.Username}} ALL=(ALL:ALL) ALL\n"))

func renderToFile(tmpl *template.Template, data any, path string, perm os.FileMode) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteInitScript renders the static init payload: mount the three pseudo
// filesystems and hand control to a shell.
func WriteInitScript(path string) error {
	return renderToFile(initScriptTemplate, initScriptData{Shell: "/bin/sh"}, path, 0o755)
}

func writeHostname(rootfsPath, hostname string) error {
	path := filepath.Join(rootfsPath, "etc", "hostname")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hostname+"\n"), 0o644)
}
