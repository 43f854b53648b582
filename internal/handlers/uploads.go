package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/storage"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// UploadHistory lists recorded submissions, newest first
type UploadHistory interface {
	ListUploads(ctx context.Context, source string, limit int) ([]storage.UploadRecord, error)
}

// UploadsHandler serves the submission history. Unlike /api/files it also
// covers watcher recordings that never entered the upload directory.
type UploadsHandler struct {
	history UploadHistory
	logger  zerolog.Logger
}

// NewUploadsHandler creates a submission history handler
func NewUploadsHandler(history UploadHistory, logger zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{history: history, logger: logger}
}

// List handles GET /api/uploads?source=&limit=
func (h *UploadsHandler) List(c *fiber.Ctx) error {
	source := c.Query("source")
	switch source {
	case "", types.SourceUpload, types.SourceGDrive, types.SourceWatcher:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source must be one of upload, gdrive, watcher",
			"code":  "ERR_INVALID_SOURCE",
		})
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.ListUploads(c.UserContext(), source, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read upload history")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "upload history unavailable",
			"code":  "ERR_LIST_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"count":   len(records),
		"uploads": records,
	})
}
