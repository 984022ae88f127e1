package rootfs

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/cochaviz/liveforge/internal/artifacts"
)

// DeviceNode describes one character device created under <rootfs>/dev.
type DeviceNode struct {
	Name  string
	Major uint32
	Minor uint32
	Perm  fs.FileMode
}

// deviceNodes is the fixed set every assembled rootfs receives.
var deviceNodes = []DeviceNode{
	{Name: "null", Major: 1, Minor: 3, Perm: 0o666},
	{Name: "zero", Major: 1, Minor: 5, Perm: 0o666},
	{Name: "console", Major: 5, Minor: 1, Perm: 0o600},
	{Name: "tty", Major: 5, Minor: 0, Perm: 0o666},
}

// mknod is swapped in tests, which cannot create real device nodes.
var mknod = func(path string, mode uint32, dev uint64) error {
	return unix.Mknod(path, mode, int(dev))
}

// CreateDeviceNodes populates <rootfsPath>/dev with the fixed character
// device set. Requires privilege; existing nodes are left alone so a re-run
// does not fail.
func CreateDeviceNodes(rootfsPath string) error {
	devDir := filepath.Join(rootfsPath, "dev")

	for _, node := range deviceNodes {
		path := filepath.Join(devDir, node.Name)
		if artifacts.Present(path) {
			continue
		}
		mode := unix.S_IFCHR | uint32(node.Perm.Perm())
		dev := unix.Mkdev(node.Major, node.Minor)
		if err := mknod(path, mode, dev); err != nil {
			return &AssemblyError{
				Op:  fmt.Sprintf("mknod %s (%d:%d)", node.Name, node.Major, node.Minor),
				Err: err,
			}
		}
	}
	return nil
}
