package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
	"github.com/codebuildervaibhav/memo-transcriber/internal/storage"
	"github.com/codebuildervaibhav/memo-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// ErrInvalidFormat is returned for anything other than an .m4a recording
var ErrInvalidFormat = errors.New("only .m4a files are accepted")

// Submitter hands a source to the job dispatcher
type Submitter interface {
	Submit(ctx context.Context, source types.AudioSource, sourceType string) (*queue.JobHandle, error)
}

// Recorder stores accepted uploads
type Recorder interface {
	RecordUpload(ctx context.Context, rec storage.UploadRecord) error
}

// Receipt describes an accepted recording
type Receipt struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	JobID    string `json:"job_id"`
}

// Service is the boundary between transports and the processing core
type Service struct {
	store     *storage.UploadStore
	submitter Submitter
	recorder  Recorder
	logger    zerolog.Logger
}

// NewService creates an ingestion service; recorder may be nil
func NewService(store *storage.UploadStore, submitter Submitter, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		submitter: submitter,
		recorder:  recorder,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

// Accept stores r under filename in the upload directory and submits it.
// The stored file is removed again when submission fails.
func (s *Service) Accept(ctx context.Context, filename string, r io.Reader, sourceType string) (Receipt, error) {
	if !transcription.ValidateAudioFormat(filename) {
		return Receipt{}, ErrInvalidFormat
	}

	path, size, err := s.store.Save(filename, r)
	if err != nil {
		return Receipt{}, err
	}
	s.logger.Info().Str("source", sourceType).Msgf("Received: %s (%d bytes)", filepath.Base(path), size)

	receipt, err := s.Submit(ctx, path, sourceType)
	if err != nil {
		// no job will ever read it
		if rerr := s.store.Remove(filepath.Base(path)); rerr != nil {
			s.logger.Warn().Err(rerr).Str("file", path).Msg("Failed to remove unsubmitted upload")
		}
		return Receipt{}, err
	}
	return receipt, nil
}

// Submit enqueues a recording that is already fully written at path
func (s *Service) Submit(ctx context.Context, path, sourceType string) (Receipt, error) {
	if !transcription.ValidateAudioFormat(path) {
		return Receipt{}, ErrInvalidFormat
	}

	source, err := types.NewAudioSource(path)
	if err != nil {
		return Receipt{}, err
	}

	handle, err := s.submitter.Submit(ctx, source, sourceType)
	if err != nil {
		return Receipt{}, fmt.Errorf("submit %s: %w", filepath.Base(path), err)
	}

	receipt := Receipt{
		Filename: filepath.Base(path),
		Path:     path,
		Size:     source.Size,
		JobID:    handle.ID,
	}

	if s.recorder != nil {
		rec := storage.UploadRecord{
			Filename:   receipt.Filename,
			Path:       path,
			Size:       source.Size,
			SourceType: sourceType,
			JobID:      handle.ID,
		}
		if err := s.recorder.RecordUpload(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("job_id", handle.ID).Msg("Failed to record upload")
		}
	}
	return receipt, nil
}
