package pipeline

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied indicates the process lacks the elevated privilege the
// pipeline requires. It is never retried.
var ErrPermissionDenied = errors.New("elevated privilege required")

// StageFailure identifies the stage that aborted a pipeline run.
type StageFailure struct {
	Stage string
	Err   error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("stage %q failed: %v", f.Stage, f.Err)
}

func (f *StageFailure) Unwrap() error {
	return f.Err
}
