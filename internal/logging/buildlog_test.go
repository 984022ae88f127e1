package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestLog(t *testing.T) (*BuildLog, string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "build.log")
	errPath := filepath.Join(dir, "error.log")

	buildLog, err := OpenBuildLog(logPath, errPath)
	if err != nil {
		t.Fatalf("OpenBuildLog: %v", err)
	}
	return buildLog, logPath, errPath
}

func TestBuildLogRouting(t *testing.T) {
	buildLog, logPath, errPath := openTestLog(t)
	logger := slog.New(buildLog.Handler(nil))

	logger.Info("pipeline started", "root", "/tmp/x")
	logger.Error("stage failed", "stage", "build-kernel")

	if err := buildLog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	general, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	errOnly, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(general), "pipeline started") {
		t.Error("general log missing info record")
	}
	if !strings.Contains(string(general), "stage failed") {
		t.Error("general log missing error record")
	}
	if strings.Contains(string(errOnly), "pipeline started") {
		t.Error("error log must not contain info records")
	}
	if !strings.Contains(string(errOnly), "stage failed") {
		t.Error("error log missing error record")
	}
}

func TestBuildLogAppends(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "build.log")
	errPath := filepath.Join(dir, "error.log")

	for i := 0; i < 2; i++ {
		buildLog, err := OpenBuildLog(logPath, errPath)
		if err != nil {
			t.Fatalf("OpenBuildLog run %d: %v", i, err)
		}
		slog.New(buildLog.Handler(nil)).Info("run marker")
		if err := buildLog.Close(); err != nil {
			t.Fatal(err)
		}
	}

	payload, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(payload), "run marker"); got != 2 {
		t.Errorf("general log has %d run markers, want 2 (append-only)", got)
	}
}

func TestTeeFansOut(t *testing.T) {
	buildLog, logPath, _ := openTestLog(t)

	var console strings.Builder
	logger := slog.New(Tee(
		NewCLI(&console, nil).Handler(),
		buildLog.Handler(nil),
	))
	logger.Info("both sinks")

	if err := buildLog.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(console.String(), "both sinks") {
		t.Error("console handler missed the record")
	}
	payload, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(payload), "both sinks") {
		t.Error("file handler missed the record")
	}
}
