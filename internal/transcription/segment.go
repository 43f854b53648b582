package transcription

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// SegmentTranscriber transcribes one time range of a normalized recording
type SegmentTranscriber struct {
	recognizer Recognizer
	tempDir    string
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewSegmentTranscriber creates a SegmentTranscriber writing clips to tempDir
func NewSegmentTranscriber(recognizer Recognizer, tempDir string, timeout time.Duration, logger zerolog.Logger) *SegmentTranscriber {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SegmentTranscriber{
		recognizer: recognizer,
		tempDir:    tempDir,
		timeout:    timeout,
		logger:     logger.With().Str("component", "segment").Logger(),
	}
}

// Transcribe returns the text spoken in [start, end) seconds of audio.
// Failures are logged and yield an empty string.
func (t *SegmentTranscriber) Transcribe(ctx context.Context, audio types.NormalizedAudio, start, end float64) string {
	text, err := t.transcribe(ctx, audio, start, end)
	if err != nil {
		t.logger.Warn().Err(err).Str("file", audio.SourcePath).Msg("Segment transcription failed")
		return ""
	}
	return text
}

func (t *SegmentTranscriber) transcribe(ctx context.Context, audio types.NormalizedAudio, start, end float64) (string, error) {
	clip, err := os.CreateTemp(t.tempDir, "clip-*.wav")
	if err != nil {
		return "", t.segmentError(audio, start, end, fmt.Errorf("create clip: %w", err))
	}
	clipPath := clip.Name()
	defer os.Remove(clipPath)

	err = extractClip(audio.Path, clip, start, end)
	if closeErr := clip.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return "", t.segmentError(audio, start, end, err)
	}

	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	text, err := t.recognizer.Recognize(cctx, clipPath)
	if err != nil {
		return "", t.segmentError(audio, start, end, err)
	}
	return text, nil
}

func (t *SegmentTranscriber) segmentError(audio types.NormalizedAudio, start, end float64, err error) error {
	return &SegmentTranscriptionError{Path: audio.SourcePath, Start: start, End: end, Err: err}
}
