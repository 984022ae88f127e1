package profiles

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed assets/*.yaml
var embeddedProfiles embed.FS

// EmbeddedProfileRepository serves the build profiles compiled into the
// binary.
type EmbeddedProfileRepository struct {
	profiles map[string]Profile
	order    []string
}

// NewEmbeddedProfileRepository parses every embedded profile document. The
// assets are trusted; a malformed document is a programming error.
func NewEmbeddedProfileRepository() (*EmbeddedProfileRepository, error) {
	repo := &EmbeddedProfileRepository{
		profiles: make(map[string]Profile),
	}

	entries, err := fs.ReadDir(embeddedProfiles, "assets")
	if err != nil {
		return nil, fmt.Errorf("read embedded profiles: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		payload, err := embeddedProfiles.ReadFile("assets/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded profile %s: %w", entry.Name(), err)
		}

		var profile Profile
		if err := yaml.Unmarshal(payload, &profile); err != nil {
			return nil, fmt.Errorf("parse embedded profile %s: %w", entry.Name(), err)
		}
		if err := validate(profile); err != nil {
			return nil, fmt.Errorf("embedded profile %s: %w", entry.Name(), err)
		}

		repo.profiles[profile.ID] = profile
		repo.order = append(repo.order, profile.ID)
	}
	sort.Strings(repo.order)

	if len(repo.order) == 0 {
		return nil, errors.New("no embedded profiles found")
	}
	return repo, nil
}

// Get returns the profile with the provided id.
func (r *EmbeddedProfileRepository) Get(id string) (Profile, error) {
	profile, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found", id)
	}
	return profile, nil
}

// ListAll returns every profile in id order.
func (r *EmbeddedProfileRepository) ListAll() []Profile {
	result := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.profiles[id])
	}
	return result
}

func validate(profile Profile) error {
	if profile.ID == "" {
		return errors.New("profile id is required")
	}
	if profile.Kernel.Version == "" || profile.Kernel.URL == "" {
		return errors.New("kernel version and url are required")
	}
	switch profile.Rootfs.Kind {
	case KindBare:
		if profile.Rootfs.BusyboxVersion == "" || profile.Rootfs.BusyboxURL == "" {
			return errors.New("bare rootfs requires a busybox version and url")
		}
	case KindDebianChroot, KindFedoraChroot:
		if profile.Rootfs.Release == "" {
			return errors.New("chroot rootfs requires a release")
		}
	default:
		return fmt.Errorf("unknown rootfs kind %q", profile.Rootfs.Kind)
	}
	if profile.ISOName == "" {
		return errors.New("iso name is required")
	}
	return nil
}
