// Package publish pushes the generated archive tree with the git CLI.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/shareclub/curator/internal/config"
)

// Git publishes the archive by committing and pushing the repository that
// holds the generated tree. Failure and retry policy stay out of the core:
// callers only see one error per Publish.
type Git struct {
	cfg    config.GitConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewGit creates a git publisher.
func NewGit(log *slog.Logger, cfg config.GitConfig) *Git {
	if log == nil {
		log = slog.Default()
	}
	return &Git{
		cfg:    cfg,
		logger: log.With(slog.String("service", "publish")),
		now:    time.Now,
	}
}

// Configure sets the repository-level git identity at boot. Failures are
// logged, not fatal: the repository may already be configured.
func (g *Git) Configure(ctx context.Context) {
	if g.cfg.RepositoryDir == "" {
		return
	}
	steps := [][]string{
		{"config", "--global", "--add", "safe.directory", g.cfg.RepositoryDir},
		{"config", "--global", "user.name", g.cfg.Username},
		{"config", "--global", "user.email", g.cfg.UserEmail},
	}
	for _, args := range steps {
		if output, err := exec.CommandContext(ctx, "git", args...).CombinedOutput(); err != nil {
			g.logger.Error("git config failed",
				slog.String("args", strings.Join(args, " ")),
				slog.String("output", string(output)))
		}
	}
	g.logger.Info("git identity configured")
}

// Publish stages, commits, and pushes everything under the repository dir.
func (g *Git) Publish(ctx context.Context) error {
	if g.cfg.RepositoryDir == "" {
		return fmt.Errorf("git publisher not configured")
	}
	if err := g.run(ctx, "add", "."); err != nil {
		return err
	}
	message := g.now().Format("20060102") + " bot commit"
	if err := g.run(ctx, "commit", "-m", message); err != nil {
		return err
	}
	password := strings.ReplaceAll(g.cfg.Password, "@", "%40")
	remote := fmt.Sprintf("https://%s:%s@%s", g.cfg.Username, password, g.cfg.URL)
	if err := g.run(ctx, "push", remote); err != nil {
		return err
	}
	g.logger.Info("archive published")
	return nil
}

func (g *Git) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.cfg.RepositoryDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		g.logger.Error("git command failed",
			slog.String("args", strings.Join(args, " ")),
			slog.String("output", string(output)))
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	return nil
}
