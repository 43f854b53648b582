package handlers

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/ingest"
	"github.com/codebuildervaibhav/memo-transcriber/internal/storage"
	"github.com/codebuildervaibhav/memo-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// DriveSource reads files from Google Drive
type DriveSource interface {
	Stat(ctx context.Context, fileID string) (storage.DriveFile, error)
	Open(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// GDriveHandler imports recordings shared through Google Drive
type GDriveHandler struct {
	drive  DriveSource
	ingest *ingest.Service
	logger zerolog.Logger
}

// NewGDriveHandler creates a Drive import handler; drive may be nil when
// Drive credentials are not configured
func NewGDriveHandler(drive DriveSource, svc *ingest.Service, logger zerolog.Logger) *GDriveHandler {
	return &GDriveHandler{
		drive:  drive,
		ingest: svc,
		logger: logger.With().Str("component", "gdrive").Logger(),
	}
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL string `json:"url"`
}

// Handle downloads the linked file into the upload directory and submits it
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	if h.drive == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Google Drive import is not configured",
			"code":  "ERR_GDRIVE_DISABLED",
		})
	}

	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	fileID := storage.ExtractDriveFileID(req.URL)
	if fileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid Google Drive URL",
			"code":  "ERR_INVALID_URL",
		})
	}

	ctx := c.UserContext()
	meta, err := h.drive.Stat(ctx, fileID)
	if err != nil {
		h.logger.Error().Err(err).Str("file_id", fileID).Msg("Drive lookup failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "File not accessible (may be private or doesn't exist)",
			"code":  "ERR_FILE_NOT_ACCESSIBLE",
		})
	}
	if !transcription.ValidateAudioFormat(meta.Name) {
		return ingestError(c, ingest.ErrInvalidFormat)
	}

	h.logger.Info().Str("file_id", fileID).Msgf("Downloading from Google Drive: %s", meta.Name)
	body, err := h.drive.Open(ctx, fileID)
	if err != nil {
		h.logger.Error().Err(err).Str("file_id", fileID).Msg("Drive download failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to download file from Google Drive",
			"code":  "ERR_DOWNLOAD_FAILED",
		})
	}
	defer body.Close()

	receipt, err := h.ingest.Accept(ctx, meta.Name, body, types.SourceGDrive)
	if err != nil {
		return ingestError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":   "success",
		"filename": receipt.Filename,
		"size":     receipt.Size,
		"job_id":   receipt.JobID,
		"message":  "Google Drive file downloaded, processing started",
	})
}
