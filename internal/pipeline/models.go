package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
)

// BuildEnvironment carries the shared state for one pipeline run. It is
// created once at pipeline start and passed explicitly to every stage; no
// stage mutates it after construction.
type BuildEnvironment struct {
	// RootDir is the build root. Every rootfs, cache entry, staging tree
	// and log file lives underneath it.
	RootDir string

	// CacheDir holds downloaded archives so re-runs skip completed fetches.
	CacheDir string

	// JobCount is handed to the external kernel build system (-j).
	JobCount int

	// LogPath and ErrorLogPath are the two append-only log files.
	LogPath      string
	ErrorLogPath string

	Logger *slog.Logger
}

// NewBuildEnvironment derives the standard layout under rootDir. A jobCount
// of zero or less selects the host processor count.
func NewBuildEnvironment(rootDir string, jobCount int, logger *slog.Logger) *BuildEnvironment {
	if jobCount <= 0 {
		jobCount = runtime.NumCPU()
	}
	return &BuildEnvironment{
		RootDir:      rootDir,
		CacheDir:     filepath.Join(rootDir, "cache"),
		JobCount:     jobCount,
		LogPath:      filepath.Join(rootDir, "build.log"),
		ErrorLogPath: filepath.Join(rootDir, "error.log"),
		Logger:       logger,
	}
}

func (env *BuildEnvironment) logger() *slog.Logger {
	if env != nil && env.Logger != nil {
		return env.Logger
	}
	return slog.Default()
}

// Stage is one atomic, ordered unit of the provisioning pipeline.
type Stage struct {
	// Name identifies the stage in logs and failures.
	Name string

	// SkipIfPresent is an optional marker path. When the path exists the
	// stage is skipped; the stage's Run must therefore be safe to omit
	// once its output exists.
	SkipIfPresent string

	// Run performs the stage's work.
	Run func(ctx context.Context, env *BuildEnvironment) error

	// AllowFailure marks a best-effort stage: a failure is logged and the
	// pipeline continues. Only stages whose output no later stage consumes
	// may set this.
	AllowFailure bool
}
