package artifacts

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store records build outputs. Implementations must tolerate being called for
// the same path twice (re-runs record the same artifacts again).
type Store interface {
	Record(path string, kind ArtifactKind, checksum string, metadata map[string]any) (Artifact, error)
	Remove(artifact Artifact) error
	List() ([]Artifact, error)
}

// LocalStore records artifacts in place: the artifact file stays where the
// pipeline produced it and a metadata document is written alongside under
// BaseDir. Large outputs (rootfs trees, ISOs) are never copied.
type LocalStore struct {
	BaseDir string
}

func (s *LocalStore) Record(path string, kind ArtifactKind, checksum string, metadata map[string]any) (Artifact, error) {
	if s.BaseDir == "" {
		return Artifact{}, errors.New("artifact store base directory is not configured")
	}
	if path == "" {
		return Artifact{}, errors.New("artifact path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(s.BaseDir, 0o755); err != nil {
		return Artifact{}, err
	}

	artifact := Artifact{
		ID:          uuid.NewString(),
		Kind:        kind,
		Path:        path,
		Checksum:    checksum,
		ContentType: detectContentType(path),
		Metadata:    cloneMetadata(metadata),
	}

	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return Artifact{}, err
	}
	metaPath := filepath.Join(s.BaseDir, artifact.ID+".json")
	if err := os.WriteFile(metaPath, payload, 0o644); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

func (s *LocalStore) Remove(artifact Artifact) error {
	metaPath := filepath.Join(s.BaseDir, artifact.ID+".json")
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List loads every metadata document under BaseDir.
func (s *LocalStore) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var result []Artifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(s.BaseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var artifact Artifact
		if err := json.Unmarshal(payload, &artifact); err != nil {
			return nil, err
		}
		result = append(result, artifact)
	}
	return result, nil
}

func detectContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".tgz":
		return "application/gzip"
	case ".xz":
		return "application/x-xz"
	case ".iso":
		return "application/x-iso9660-image"
	case ".json":
		return "application/json"
	case ".cfg", ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
