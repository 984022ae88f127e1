package rootfs

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/cochaviz/liveforge/internal/profiles"
)

// Target is the root filesystem being assembled. Path is where the tree is
// built; later stages chroot into it or copy artifacts out of it.
type Target struct {
	Kind profiles.RootfsKind
	Path string
	Spec profiles.RootfsSpec
}

// AssemblyError wraps any failure inside the assembler. Rootfs integrity is a
// hard precondition for every later stage, so these are always fatal.
type AssemblyError struct {
	Op  string
	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("rootfs %s: %v", e.Op, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Runner executes external commands. The exec-backed implementation is used
// in production; tests substitute a recorder.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands through os/exec, streaming output to the parent's
// stdout and stderr like the external tools expect.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
