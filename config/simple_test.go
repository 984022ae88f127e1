package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListProfiles(t *testing.T) {
	list, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("no profiles available")
	}

	seen := map[string]bool{}
	for _, profile := range list {
		seen[profile.ID] = true
	}
	for _, id := range []string{"bare", "debian", "fedora"} {
		if !seen[id] {
			t.Errorf("profile %s missing", id)
		}
	}
}

func TestBuildLiveRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	if _, err := BuildLive(ctx, "", t.TempDir(), 1, discardLogger()); err == nil {
		t.Error("empty profile id accepted")
	}
	if _, err := BuildLive(ctx, "no-such-profile", t.TempDir(), 1, discardLogger()); err == nil {
		t.Error("unknown profile accepted")
	}
}

func TestInstallResetTooling(t *testing.T) {
	rootfsDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(rootfsDir, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rootfsDir, "etc", "hostname"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := InstallResetTooling(rootfsDir, discardLogger()); err != nil {
		t.Fatalf("InstallResetTooling: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rootfsDir, "etc.factory", "hostname")); err != nil {
		t.Errorf("snapshot missing: %v", err)
	}
}
