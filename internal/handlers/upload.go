package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/ingest"
	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// UploadHandler handles recording uploads
type UploadHandler struct {
	ingest    *ingest.Service
	maxSizeMB int
	logger    zerolog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(svc *ingest.Service, maxSizeMB int, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		ingest:    svc,
		maxSizeMB: maxSizeMB,
		logger:    logger.With().Str("component", "upload").Logger(),
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if h.maxSizeMB > 0 && file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	f, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unreadable upload",
			"code":  "ERR_NO_FILE",
		})
	}
	defer f.Close()

	receipt, err := h.ingest.Accept(c.UserContext(), file.Filename, f, types.SourceUpload)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", file.Filename).Msg("Upload failed")
		return ingestError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":   "success",
		"filename": receipt.Filename,
		"size":     receipt.Size,
		"job_id":   receipt.JobID,
		"message":  "File uploaded successfully",
	})
}

// ingestError maps ingestion failures to the API error shape
func ingestError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ingest.ErrInvalidFormat):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only .m4a files are accepted",
			"code":  "ERR_INVALID_FORMAT",
		})
	case errors.Is(err, queue.ErrQueueFull):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Processing queue is full, try again later",
			"code":  "ERR_QUEUE_FULL",
		})
	case errors.Is(err, queue.ErrStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Server is shutting down",
			"code":  "ERR_SHUTTING_DOWN",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Upload failed: %v", err),
			"code":  "ERR_SAVE_FAILED",
		})
	}
}
