package rootfs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cochaviz/liveforge/internal/profiles"
)

// recordingRunner captures external command invocations instead of executing
// them.
type recordingRunner struct {
	commands [][]string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) error {
	r.commands = append(r.commands, append([]string{name}, args...))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAssembleBare(t *testing.T) {
	stubMknod(t)

	busybox := filepath.Join(t.TempDir(), "busybox")
	if err := os.WriteFile(busybox, []byte("fake-busybox"), 0o755); err != nil {
		t.Fatal(err)
	}

	target := Target{
		Kind: profiles.KindBare,
		Path: t.TempDir(),
		Spec: profiles.RootfsSpec{
			Kind:     profiles.KindBare,
			Hostname: "testhost",
		},
	}

	assembler := &Assembler{Logger: discardLogger(), BusyboxPath: busybox}
	if err := assembler.Assemble(context.Background(), target); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	for _, dir := range skeleton {
		info, err := os.Stat(filepath.Join(target.Path, dir))
		if err != nil {
			t.Errorf("skeleton directory %s missing: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	tmpInfo, err := os.Stat(filepath.Join(target.Path, "tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if tmpInfo.Mode()&os.ModeSticky == 0 {
		t.Error("tmp is missing the sticky bit")
	}

	initScript, err := os.ReadFile(filepath.Join(target.Path, "init"))
	if err != nil {
		t.Fatalf("init script missing: %v", err)
	}
	for _, mount := range []string{"proc", "sysfs", "devtmpfs"} {
		if !strings.Contains(string(initScript), mount) {
			t.Errorf("init script does not mount %s", mount)
		}
	}
	if !strings.Contains(string(initScript), "exec /bin/sh") {
		t.Error("init script does not hand control to a shell")
	}

	hostname, err := os.ReadFile(filepath.Join(target.Path, "etc", "hostname"))
	if err != nil {
		t.Fatalf("hostname missing: %v", err)
	}
	if strings.TrimSpace(string(hostname)) != "testhost" {
		t.Errorf("hostname = %q, want testhost", strings.TrimSpace(string(hostname)))
	}

	fstab, err := os.ReadFile(filepath.Join(target.Path, "etc", "fstab"))
	if err != nil {
		t.Fatalf("fstab missing: %v", err)
	}
	for _, fs := range []string{"proc", "sysfs", "devtmpfs"} {
		if !strings.Contains(string(fstab), fs) {
			t.Errorf("fstab missing %s entry", fs)
		}
	}

	if _, err := os.Stat(filepath.Join(target.Path, "bin", "busybox")); err != nil {
		t.Errorf("busybox not installed: %v", err)
	}
	link, err := os.Readlink(filepath.Join(target.Path, "bin", "sh"))
	if err != nil {
		t.Fatalf("sh applet link missing: %v", err)
	}
	if link != "busybox" {
		t.Errorf("sh links to %q, want busybox", link)
	}
}

func TestAssembleDebianChroot(t *testing.T) {
	stubMknod(t)
	runner := &recordingRunner{}

	target := Target{
		Kind: profiles.KindDebianChroot,
		Path: t.TempDir(),
		Spec: profiles.RootfsSpec{
			Kind:     profiles.KindDebianChroot,
			Hostname: "testhost",
			Release:  "bookworm",
			Mirror:   "http://deb.debian.org/debian",
			Username: "live",
			Packages: []string{"sudo", "locales"},
		},
	}
	// The recording runner never creates dev/, so prepare it for mknod.
	if err := os.MkdirAll(filepath.Join(target.Path, "dev"), 0o755); err != nil {
		t.Fatal(err)
	}

	assembler := &Assembler{Logger: discardLogger(), Runner: runner}
	if err := assembler.Assemble(context.Background(), target); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(runner.commands) == 0 {
		t.Fatal("no external commands recorded")
	}
	first := runner.commands[0]
	if first[0] != "debootstrap" {
		t.Fatalf("first command = %q, want debootstrap", first[0])
	}
	joined := strings.Join(first, " ")
	if !strings.Contains(joined, "bookworm") || !strings.Contains(joined, target.Path) {
		t.Errorf("debootstrap invocation missing release or path: %q", joined)
	}

	var sawInstall, sawLocale, sawUseradd bool
	for _, command := range runner.commands[1:] {
		if command[0] != "chroot" || command[1] != target.Path {
			t.Errorf("post-install command not chrooted into target: %v", command)
			continue
		}
		switch command[2] {
		case "apt-get":
			sawInstall = true
		case "locale-gen":
			sawLocale = true
		case "useradd":
			sawUseradd = true
		}
	}
	if !sawInstall || !sawLocale || !sawUseradd {
		t.Errorf("post-install sequence incomplete: install=%t locale=%t useradd=%t",
			sawInstall, sawLocale, sawUseradd)
	}

	sudoers, err := os.ReadFile(filepath.Join(target.Path, "etc", "sudoers.d", "live"))
	if err != nil {
		t.Fatalf("sudoers entry missing: %v", err)
	}
	if !strings.Contains(string(sudoers), "live ALL=") {
		t.Errorf("sudoers entry malformed: %q", string(sudoers))
	}
}

func TestAssembleFedoraChroot(t *testing.T) {
	stubMknod(t)
	runner := &recordingRunner{}

	target := Target{
		Kind: profiles.KindFedoraChroot,
		Path: t.TempDir(),
		Spec: profiles.RootfsSpec{
			Kind:     profiles.KindFedoraChroot,
			Hostname: "testhost",
			Release:  "40",
			Packages: []string{"sudo"},
		},
	}
	if err := os.MkdirAll(filepath.Join(target.Path, "dev"), 0o755); err != nil {
		t.Fatal(err)
	}

	assembler := &Assembler{Logger: discardLogger(), Runner: runner}
	if err := assembler.Assemble(context.Background(), target); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	first := runner.commands[0]
	if first[0] != "dnf" {
		t.Fatalf("first command = %q, want dnf", first[0])
	}
	joined := strings.Join(first, " ")
	if !strings.Contains(joined, "--installroot="+target.Path) {
		t.Errorf("dnf invocation missing installroot: %q", joined)
	}
	if !strings.Contains(joined, "--releasever=40") {
		t.Errorf("dnf invocation missing releasever: %q", joined)
	}
}

func TestAssembleUnknownKind(t *testing.T) {
	assembler := &Assembler{Logger: discardLogger()}
	err := assembler.Assemble(context.Background(), Target{Kind: "floppy", Path: t.TempDir()})
	if err == nil {
		t.Fatal("Assemble accepted an unknown kind")
	}
	var assemblyErr *AssemblyError
	if !errors.As(err, &assemblyErr) {
		t.Fatalf("error type %T, want *AssemblyError", err)
	}
}
