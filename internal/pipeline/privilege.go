package pipeline

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// euid is swapped in tests.
var euid = unix.Geteuid

// RequirePrivilege verifies the process can perform privileged operations
// (mknod, chroot, bootstrap installs). It is checked once, before the first
// stage runs; failure aborts the pipeline with ErrPermissionDenied.
func RequirePrivilege() error {
	if id := euid(); id != 0 {
		return fmt.Errorf("running as uid %d: %w", id, ErrPermissionDenied)
	}
	return nil
}
