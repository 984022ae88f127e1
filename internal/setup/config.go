package setup

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/cochaviz/liveforge/internal/profiles"
)

// DefaultRootDir is where builds land unless overridden on the command line
// or through LIVEFORGE_ROOT.
var DefaultRootDir = "/var/lib/liveforge"

// RootDir resolves the build root from the environment, falling back to the
// default.
func RootDir() string {
	if root := os.Getenv("LIVEFORGE_ROOT"); root != "" {
		return root
	}
	return DefaultRootDir
}

// toolsByKind lists the external tools each rootfs flavor depends on. Tools
// used by every build come first.
var commonTools = []string{"tar", "make", "chroot"}

var toolsByKind = map[profiles.RootfsKind][]string{
	profiles.KindBare:         {},
	profiles.KindDebianChroot: {"debootstrap"},
	profiles.KindFedoraChroot: {"dnf"},
}

// Verify checks that every external tool the selected profile needs is on
// PATH. Run before the pipeline starts so a missing tool fails the build
// up front instead of mid-run.
func Verify(kind profiles.RootfsKind) error {
	extra, ok := toolsByKind[kind]
	if !ok {
		return fmt.Errorf("unknown rootfs kind %q", kind)
	}

	var missing []error
	for _, tool := range append(append([]string{}, commonTools...), extra...) {
		if _, err := exec.LookPath(tool); err != nil {
			getLogger().Error("required tool not found", "tool", tool)
			missing = append(missing, fmt.Errorf("%s not found in PATH", tool))
		}
	}
	return errors.Join(missing...)
}
