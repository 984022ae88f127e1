// Package image stages the boot artifacts and masters the final bootable ISO.
package image

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kdomanski/iso9660"
)

// Fixed paths inside the ISO; the bootloader config references them and they
// never vary per profile.
const (
	isoKernelPath = "boot/vmlinuz"
	isoInitPath   = "init"
	isoGrubPath   = "boot/grub/grub.cfg"
)

// ImageArtifact collects the inputs the finalizer needs. Assembled
// incrementally by earlier stages; immutable once the ISO is written.
type ImageArtifact struct {
	KernelImagePath string
	InitScriptPath  string
	VolumeLabel     string
	OutputISOPath   string
}

// FinalizeError wraps any failure while staging or mastering. A partial ISO
// is never left behind.
type FinalizeError struct {
	Op  string
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize %s: %v", e.Op, e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}

type grubConfigData struct {
	Title      string
	KernelPath string
	InitPath   string
}

var grubConfigTemplate = template.Must(template.New("grub.cfg").Parse(`set default=0
set timeout=5

menuentry "{{.Title}}" {
	linux /{{.KernelPath}} init=/{{.InitPath}}
}
`))

// Finalizer produces the bootable ISO from the staged boot artifacts.
type Finalizer struct {
	Logger *slog.Logger

	// StagingDir is where the ISO tree is laid out before mastering.
	StagingDir string
}

// Finalize copies the kernel and init payload into the staging tree, writes
// the bootloader configuration and masters the ISO. Returns the ISO path.
// Mastering is not started once ctx is cancelled.
func (f *Finalizer) Finalize(ctx context.Context, artifact ImageArtifact) (string, error) {
	if f.StagingDir == "" {
		return "", &FinalizeError{Op: "stage", Err: fmt.Errorf("staging directory is not configured")}
	}
	if artifact.OutputISOPath == "" {
		return "", &FinalizeError{Op: "stage", Err: fmt.Errorf("output path is required")}
	}

	logger := f.logger().With("staging", f.StagingDir, "output", artifact.OutputISOPath)
	logger.Info("staging boot artifacts")

	if err := stageFile(artifact.KernelImagePath, filepath.Join(f.StagingDir, isoKernelPath), 0o644); err != nil {
		return "", &FinalizeError{Op: "stage kernel", Err: err}
	}
	if err := stageFile(artifact.InitScriptPath, filepath.Join(f.StagingDir, isoInitPath), 0o755); err != nil {
		return "", &FinalizeError{Op: "stage init payload", Err: err}
	}

	var grubCfg bytes.Buffer
	data := grubConfigData{
		Title:      artifact.VolumeLabel,
		KernelPath: isoKernelPath,
		InitPath:   isoInitPath,
	}
	if err := grubConfigTemplate.Execute(&grubCfg, data); err != nil {
		return "", &FinalizeError{Op: "render bootloader config", Err: err}
	}
	grubPath := filepath.Join(f.StagingDir, isoGrubPath)
	if err := os.MkdirAll(filepath.Dir(grubPath), 0o755); err != nil {
		return "", &FinalizeError{Op: "stage bootloader config", Err: err}
	}
	if err := os.WriteFile(grubPath, grubCfg.Bytes(), 0o644); err != nil {
		return "", &FinalizeError{Op: "stage bootloader config", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return "", &FinalizeError{Op: "master iso", Err: err}
	}

	logger.Info("mastering iso")
	if err := masterISO(f.StagingDir, artifact.OutputISOPath, sanitizeVolumeLabel(artifact.VolumeLabel)); err != nil {
		return "", &FinalizeError{Op: "master iso", Err: err}
	}

	logger.Info("iso written", "path", artifact.OutputISOPath)
	return artifact.OutputISOPath, nil
}

func (f *Finalizer) logger() *slog.Logger {
	if f != nil && f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func stageFile(src, dst string, perm os.FileMode) error {
	if src == "" {
		return fmt.Errorf("source path is required")
	}
	payload, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, payload, perm)
}

func masterISO(sourceDir, imagePath, volumeLabel string) error {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("create iso writer: %w", err)
	}
	defer writer.Cleanup()

	if err := writer.AddLocalDirectory(sourceDir, "/"); err != nil {
		return fmt.Errorf("stage directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("ensure image directory: %w", err)
	}
	out, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}

	if err := writer.WriteTo(out, volumeLabel); err != nil {
		out.Close()
		_ = os.Remove(imagePath)
		return fmt.Errorf("write iso: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(imagePath)
		return fmt.Errorf("finalize iso: %w", err)
	}
	return nil
}

func sanitizeVolumeLabel(label string) string {
	const maxLen = 32

	if label == "" {
		label = "LIVEFORGE"
	}

	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= maxLen {
			break
		}
	}
	if b.Len() == 0 {
		return "LIVEFORGE"
	}
	return b.String()
}
