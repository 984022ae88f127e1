package pipeline

import (
	"context"
	"fmt"

	"github.com/cochaviz/liveforge/internal/artifacts"
)

// Driver executes stages strictly in declared order. There is no parallelism
// and no retry: the first failure of a mandatory stage aborts the whole run.
type Driver struct {
	Env *BuildEnvironment
}

// Run walks the stages in order. Before each stage it consults the stage's
// SkipIfPresent marker and the context; a cancelled context aborts before the
// next stage starts. The returned error for a mandatory failure is a
// *StageFailure naming the stage.
func (d *Driver) Run(ctx context.Context, stages []Stage) error {
	if d.Env == nil {
		return fmt.Errorf("pipeline: build environment is not configured")
	}

	logger := d.Env.logger()
	logger.Info("pipeline started", "root", d.Env.RootDir, "stages", len(stages))

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline cancelled", "stage", stage.Name)
			return err
		}

		stageLogger := logger.With("stage", stage.Name)

		if stage.SkipIfPresent != "" {
			if artifacts.Present(stage.SkipIfPresent) {
				stageLogger.Info("stage skipped", "marker", stage.SkipIfPresent)
				continue
			}
		}

		stageLogger.Info("stage started")
		if err := stage.Run(ctx, d.Env); err != nil {
			if stage.AllowFailure {
				stageLogger.Error("stage failed, continuing", "error", err)
				continue
			}
			stageLogger.Error("stage failed", "error", err)
			return &StageFailure{Stage: stage.Name, Err: err}
		}
		stageLogger.Info("stage succeeded")
	}

	logger.Info("pipeline completed", "root", d.Env.RootDir)
	return nil
}
