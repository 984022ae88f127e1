package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testEnv(t *testing.T) *BuildEnvironment {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBuildEnvironment(t.TempDir(), 1, logger)
}

func TestDriverRunsStagesInOrder(t *testing.T) {
	var order []string
	stage := func(name string) Stage {
		return Stage{
			Name: name,
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				order = append(order, name)
				return nil
			},
		}
	}

	driver := &Driver{Env: testEnv(t)}
	err := driver.Run(context.Background(), []Stage{stage("one"), stage("two"), stage("three")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"one", "two", "three"}
	if len(order) != len(want) {
		t.Fatalf("executed %d stages, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestDriverFailFast(t *testing.T) {
	var after bool
	boom := errors.New("boom")

	stages := []Stage{
		{
			Name: "failing",
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				return boom
			},
		},
		{
			Name: "never",
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				after = true
				return nil
			},
		},
	}

	driver := &Driver{Env: testEnv(t)}
	err := driver.Run(context.Background(), stages)
	if err == nil {
		t.Fatal("Run succeeded, want failure")
	}

	var failure *StageFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error type %T, want *StageFailure", err)
	}
	if failure.Stage != "failing" {
		t.Errorf("failed stage = %q, want %q", failure.Stage, "failing")
	}
	if !errors.Is(err, boom) {
		t.Error("StageFailure must wrap the stage's error")
	}
	if after {
		t.Error("stage after a mandatory failure must not run")
	}
}

func TestDriverAllowFailureContinues(t *testing.T) {
	var ran bool

	stages := []Stage{
		{
			Name:         "best-effort",
			AllowFailure: true,
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				return fmt.Errorf("cosmetic failure")
			},
		},
		{
			Name: "next",
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				ran = true
				return nil
			},
		},
	}

	driver := &Driver{Env: testEnv(t)}
	if err := driver.Run(context.Background(), stages); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !ran {
		t.Error("pipeline must continue past an allow-failure stage")
	}
}

func TestDriverSkipsWhenMarkerPresent(t *testing.T) {
	env := testEnv(t)
	marker := filepath.Join(env.RootDir, "done")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var ran bool
	stages := []Stage{
		{
			Name:          "cached",
			SkipIfPresent: marker,
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				ran = true
				return nil
			},
		},
	}

	driver := &Driver{Env: env}
	if err := driver.Run(context.Background(), stages); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if ran {
		t.Error("stage with an existing marker must be skipped")
	}
}

func TestDriverSecondRunSkipsCompletedStages(t *testing.T) {
	env := testEnv(t)
	marker := filepath.Join(env.RootDir, "artifact")

	var runs int
	stages := []Stage{
		{
			Name:          "produce",
			SkipIfPresent: marker,
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				runs++
				return os.WriteFile(marker, nil, 0o644)
			},
		},
	}

	driver := &Driver{Env: env}
	for i := 0; i < 2; i++ {
		if err := driver.Run(context.Background(), stages); err != nil {
			t.Fatalf("run %d returned error: %v", i, err)
		}
	}
	if runs != 1 {
		t.Errorf("stage ran %d times across two pipeline runs, want 1", runs)
	}
}

func TestDriverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var second bool
	stages := []Stage{
		{
			Name: "cancelling",
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				cancel()
				return nil
			},
		},
		{
			Name: "after-cancel",
			Run: func(ctx context.Context, env *BuildEnvironment) error {
				second = true
				return nil
			},
		},
	}

	driver := &Driver{Env: testEnv(t)}
	err := driver.Run(ctx, stages)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if second {
		t.Error("no stage may start after cancellation")
	}
}
