package image

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testFinalizer(t *testing.T) *Finalizer {
	t.Helper()
	return &Finalizer{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		StagingDir: filepath.Join(t.TempDir(), "staging"),
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFinalizeProducesISO(t *testing.T) {
	inputDir := t.TempDir()
	finalizer := testFinalizer(t)

	artifact := ImageArtifact{
		KernelImagePath: writeInput(t, inputDir, "vmlinuz-6.6.32", "kernel-bytes"),
		InitScriptPath:  writeInput(t, inputDir, "init", "#!/bin/sh\n"),
		VolumeLabel:     "debian",
		OutputISOPath:   filepath.Join(t.TempDir(), "out", "live.iso"),
	}

	isoPath, err := finalizer.Finalize(context.Background(), artifact)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if isoPath != artifact.OutputISOPath {
		t.Errorf("returned path %q, want %q", isoPath, artifact.OutputISOPath)
	}

	info, err := os.Stat(isoPath)
	if err != nil {
		t.Fatalf("iso missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("iso file is empty")
	}

	grubCfg, err := os.ReadFile(filepath.Join(finalizer.StagingDir, "boot", "grub", "grub.cfg"))
	if err != nil {
		t.Fatalf("grub config missing: %v", err)
	}
	if !strings.Contains(string(grubCfg), "linux /boot/vmlinuz") {
		t.Errorf("grub config does not reference the kernel by fixed path:\n%s", grubCfg)
	}
	if !strings.Contains(string(grubCfg), "init=/init") {
		t.Errorf("grub config does not reference the init payload:\n%s", grubCfg)
	}

	staged, err := os.ReadFile(filepath.Join(finalizer.StagingDir, "boot", "vmlinuz"))
	if err != nil {
		t.Fatalf("staged kernel missing: %v", err)
	}
	if string(staged) != "kernel-bytes" {
		t.Error("staged kernel differs from input")
	}
}

func TestFinalizeMissingKernel(t *testing.T) {
	finalizer := testFinalizer(t)

	_, err := finalizer.Finalize(context.Background(), ImageArtifact{
		KernelImagePath: filepath.Join(t.TempDir(), "missing"),
		InitScriptPath:  filepath.Join(t.TempDir(), "also-missing"),
		OutputISOPath:   filepath.Join(t.TempDir(), "live.iso"),
	})
	if err == nil {
		t.Fatal("Finalize succeeded without a kernel image")
	}
	var finalizeErr *FinalizeError
	if !errors.As(err, &finalizeErr) {
		t.Fatalf("error type %T, want *FinalizeError", err)
	}
}

func TestFinalizeCancelledContext(t *testing.T) {
	inputDir := t.TempDir()
	finalizer := testFinalizer(t)

	artifact := ImageArtifact{
		KernelImagePath: writeInput(t, inputDir, "vmlinuz-6.6.32", "kernel-bytes"),
		InitScriptPath:  writeInput(t, inputDir, "init", "#!/bin/sh\n"),
		VolumeLabel:     "debian",
		OutputISOPath:   filepath.Join(t.TempDir(), "live.iso"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := finalizer.Finalize(ctx, artifact)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Finalize error = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(artifact.OutputISOPath); statErr == nil {
		t.Error("iso written despite cancelled context")
	}
}

func TestSanitizeVolumeLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"debian", "DEBIAN"},
		{"live forge 2024", "LIVE_FORGE_2024"},
		{"", "LIVEFORGE"},
		{strings.Repeat("x", 50), strings.Repeat("X", 32)},
	}
	for _, tc := range cases {
		if got := sanitizeVolumeLabel(tc.in); got != tc.want {
			t.Errorf("sanitizeVolumeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
