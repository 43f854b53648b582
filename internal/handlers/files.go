package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/logging"
	"github.com/codebuildervaibhav/memo-transcriber/internal/storage"
	"github.com/codebuildervaibhav/memo-transcriber/internal/transcription"
)

// UploadIndex looks up the job each stored file was submitted as
type UploadIndex interface {
	LatestByFilename(ctx context.Context) (map[string]storage.UploadRecord, error)
}

// FileEntry is one row of the file listing
type FileEntry struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Created    time.Time `json:"created"`
	JobID      string    `json:"job_id,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
}

// FilesHandler lists uploaded recordings
type FilesHandler struct {
	store  *storage.UploadStore
	index  UploadIndex
	logger zerolog.Logger
}

// NewFilesHandler creates a file listing handler; index may be nil
func NewFilesHandler(store *storage.UploadStore, index UploadIndex, logger zerolog.Logger) *FilesHandler {
	return &FilesHandler{store: store, index: index, logger: logger}
}

// List returns every stored recording, newest first
func (h *FilesHandler) List(c *fiber.Ctx) error {
	files, err := h.store.List(transcription.AcceptedExtension)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_LIST_FAILED",
		})
	}

	var latest map[string]storage.UploadRecord
	if h.index != nil {
		latest, err = h.index.LatestByFilename(c.UserContext())
		if err != nil {
			h.logger.Warn().Err(err).Msg("Upload catalog unavailable")
		}
	}

	entries := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entry := FileEntry{Filename: f.Filename, Size: f.Size, Created: f.Created}
		if rec, ok := latest[f.Filename]; ok {
			entry.JobID = rec.JobID
			entry.SourceType = rec.SourceType
		}
		entries = append(entries, entry)
	}

	return c.JSON(fiber.Map{
		"count": len(entries),
		"files": entries,
	})
}

// Root is the liveness endpoint
func Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "running",
		"message":   "Memo transcriber is running",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Health reports service health
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

// Logs returns the in-memory log tail
func Logs(buffer *logging.LogBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": buffer.Lines(),
		})
	}
}
