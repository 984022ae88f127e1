package build

import (
	"time"

	"github.com/cochaviz/liveforge/internal/profiles"
)

// Request asks the service to produce a live image for one profile.
type Request struct {
	ProfileID   string
	RequestedAt time.Time

	// JobCount overrides the kernel build parallelism; zero means host
	// processor count.
	JobCount int
}

// Result reports a completed build.
type Result struct {
	RunID   string
	Profile profiles.Profile
	ISOPath string
}
