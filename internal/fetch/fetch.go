// Package fetch downloads build inputs (kernel sources, userland binaries,
// theme archives) into the cache directory. Every download is cache-checked
// first so a re-run never re-fetches an artifact that already exists.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/cochaviz/liveforge/internal/artifacts"
	"github.com/cochaviz/liveforge/internal/logging"
)

// Client wraps a retrying HTTP client for build-input downloads.
type Client struct {
	Logger *slog.Logger

	http *retryablehttp.Client
}

// NewClient constructs a download client with sane retry defaults for large
// archives over flaky links.
func NewClient(logger *slog.Logger) *Client {
	inner := retryablehttp.NewClient()
	inner.RetryMax = 4
	inner.RetryWaitMin = 2 * time.Second
	inner.RetryWaitMax = 30 * time.Second
	inner.Logger = nil

	return &Client{
		Logger: logging.Ensure(logger).With("component", "fetch"),
		http:   inner,
	}
}

// Download fetches url into destPath. If destPath already exists the download
// is skipped and the existing file is returned untouched. The file is written
// via a temporary name so a partial download never shows up as cached.
// Returns the hex SHA-256 of the file contents.
func (c *Client) Download(ctx context.Context, url, destPath string) (string, error) {
	logger := c.Logger.With("url", url, "dest", destPath)

	if artifacts.Present(destPath) {
		logger.Info("download skipped, already cached")
		return Checksum(destPath)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure download directory: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}
	if resp.ContentLength > 0 {
		logger.Info("downloading", "size", humanize.Bytes(uint64(resp.ContentLength)))
	} else {
		logger.Info("downloading", "size", "unknown")
	}

	tmpPath := destPath + ".partial"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}

	digest := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, digest), resp.Body)
	if err != nil {
		out.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write download: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move download into place: %w", err)
	}

	checksum := hex.EncodeToString(digest.Sum(nil))
	logger.Info("download completed",
		"size", humanize.Bytes(uint64(written)),
		"sha256", checksum,
	)
	return checksum, nil
}

// Checksum returns the hex SHA-256 of the file contents. The value matches
// what Download reports for the same file, so artifacts recorded from cached
// inputs carry the original download digest.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
