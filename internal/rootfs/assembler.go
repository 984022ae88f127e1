// Package rootfs assembles the root filesystem flavors a live image can
// carry: a hand-built busybox tree, or a Debian/Fedora chroot bootstrapped
// with the distribution's own tooling.
package rootfs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cochaviz/liveforge/internal/profiles"
)

// Assembler builds root filesystem trees. All failures inside the assembler
// are fatal to the pipeline: later stages chroot into or copy from the tree
// and cannot proceed from a partial one.
type Assembler struct {
	Logger *slog.Logger
	Runner Runner

	// BusyboxPath is the cached busybox binary used by the bare kind.
	BusyboxPath string
}

// Assemble dispatches on the target kind.
func (a *Assembler) Assemble(ctx context.Context, target Target) error {
	if target.Path == "" {
		return &AssemblyError{Op: "assemble", Err: fmt.Errorf("target path is required")}
	}

	switch target.Kind {
	case profiles.KindBare:
		return a.assembleBare(ctx, target, a.BusyboxPath)
	case profiles.KindDebianChroot, profiles.KindFedoraChroot:
		return a.assembleChroot(ctx, target)
	default:
		return &AssemblyError{Op: "assemble", Err: fmt.Errorf("unknown rootfs kind %q", target.Kind)}
	}
}

func (a *Assembler) logger() *slog.Logger {
	if a != nil && a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Assembler) runner() Runner {
	if a != nil && a.Runner != nil {
		return a.Runner
	}
	return ExecRunner{}
}
