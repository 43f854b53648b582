package transcription

import "fmt"

// UnsupportedFormatError means the source container could not be decoded.
// It is fatal for the file being processed.
type UnsupportedFormatError struct {
	Path string
	Err  error
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %s: %v", e.Path, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// DiarizationError means the diarization model could not produce turns.
// It is fatal for the file being processed.
type DiarizationError struct {
	Path string
	Err  error
}

func (e *DiarizationError) Error() string {
	return fmt.Sprintf("diarization failed for %s: %v", e.Path, e.Err)
}

func (e *DiarizationError) Unwrap() error { return e.Err }

// SegmentTranscriptionError is the failure of a single segment.
// The pipeline absorbs it and keeps the segment with empty text.
type SegmentTranscriptionError struct {
	Path  string
	Start float64
	End   float64
	Err   error
}

func (e *SegmentTranscriptionError) Error() string {
	return fmt.Sprintf("segment %.2fs-%.2fs of %s: %v", e.Start, e.End, e.Path, e.Err)
}

func (e *SegmentTranscriptionError) Unwrap() error { return e.Err }
