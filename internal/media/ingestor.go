// Package media downloads referenced images into the archive's per-record
// directories.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Ingestor fetches image bytes over HTTP and stores them under fresh random
// filenames.
type Ingestor struct {
	client *http.Client
	logger *slog.Logger
}

// NewIngestor creates an ingestor. A nil client gets a 30s-timeout default.
func NewIngestor(log *slog.Logger, client *http.Client) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Ingestor{
		client: client,
		logger: log.With(slog.String("service", "media")),
	}
}

// Fetch downloads url into dir (created if missing) and returns the stored
// filename. The filename, not the URL, is what the record keeps.
func (i *Ingestor) Fetch(ctx context.Context, url, ext, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		i.logger.Error("image download rejected", slog.Int("status", resp.StatusCode), slog.String("url", url))
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return name, nil
}
