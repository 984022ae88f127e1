package profiles

// RootfsKind selects the root filesystem flavor a profile assembles.
type RootfsKind string

const (
	KindBare         RootfsKind = "bare"
	KindDebianChroot RootfsKind = "debian-chroot"
	KindFedoraChroot RootfsKind = "fedora-chroot"
)

// Profile is one buildable live-image flavor. Profiles ship embedded in the
// binary; see the embedded repository.
type Profile struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`

	Rootfs RootfsSpec `yaml:"rootfs"`
	Kernel KernelSpec `yaml:"kernel"`
	Theme  ThemeSpec  `yaml:"theme"`

	// ISOName is the output file name, produced under <root>/out.
	ISOName string `yaml:"iso_name"`
}

// RootfsSpec describes the root filesystem to assemble.
type RootfsSpec struct {
	Kind     RootfsKind `yaml:"kind"`
	Hostname string     `yaml:"hostname"`

	// Release and Mirror apply to chroot kinds only.
	Release string `yaml:"release,omitempty"`
	Mirror  string `yaml:"mirror,omitempty"`

	// Packages are installed inside the chroot after bootstrap.
	Packages []string `yaml:"packages,omitempty"`

	// User created inside chroot targets, with sudo access.
	Username string `yaml:"username,omitempty"`

	// BusyboxVersion selects the userland archive for the bare kind.
	BusyboxVersion string `yaml:"busybox_version,omitempty"`
	BusyboxURL     string `yaml:"busybox_url,omitempty"`
}

// KernelSpec pins the kernel the image boots.
type KernelSpec struct {
	Version string `yaml:"version"`
	URL     string `yaml:"url"`
}

// ThemeSpec points at an optional theme archive installed best-effort.
type ThemeSpec struct {
	URL       string `yaml:"url,omitempty"`
	Installer string `yaml:"installer,omitempty"`
}
