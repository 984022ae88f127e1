package artifacts

type ArtifactKind string

const (
	KernelArtifact  ArtifactKind = "kernel"  // built kernel image
	ArchiveArtifact ArtifactKind = "archive" // downloaded source or tool archive
	RootfsArtifact  ArtifactKind = "rootfs"  // assembled root filesystem tree
	ISOArtifact     ArtifactKind = "iso"     // mastered bootable image
)

type Artifact struct {
	ID   string
	Kind ArtifactKind
	Path string

	Checksum    string
	ContentType string
	Metadata    map[string]any
}
