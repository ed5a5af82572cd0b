package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Archiver regenerates the document tree on demand.
type Archiver interface {
	Generate(ctx context.Context) error
}

// ArchiveHandler allows triggering a regeneration without going through chat.
type ArchiveHandler struct {
	archiver Archiver
	logger   *slog.Logger
}

func NewArchiveHandler(log *slog.Logger, archiver Archiver) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		logger:   log.With(slog.String("handler", "archive")),
	}
}

func (h *ArchiveHandler) Register(e *echo.Echo) {
	e.POST("/archive/generate", h.Generate)
}

func (h *ArchiveHandler) Generate(c echo.Context) error {
	if err := h.archiver.Generate(c.Request().Context()); err != nil {
		h.logger.Error("generate failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
