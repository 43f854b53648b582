package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Job status constants
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Source type constants
const (
	SourceUpload  = "upload"
	SourceGDrive  = "gdrive"
	SourceWatcher = "watcher"
)

// AudioSource references an uploaded recording on local storage
type AudioSource struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// NewAudioSource stats path and builds an AudioSource for it
func NewAudioSource(path string) (AudioSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return AudioSource{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return AudioSource{}, fmt.Errorf("source %s is a directory", path)
	}
	return AudioSource{
		Path:   path,
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Size:   info.Size(),
	}, nil
}

// NormalizedAudio is the canonical 16kHz mono WAV derived from an AudioSource
type NormalizedAudio struct {
	Path        string        `json:"path"`
	SourcePath  string        `json:"source_path"`
	Fingerprint string        `json:"fingerprint"`
	SampleRate  int           `json:"sample_rate"`
	Channels    int           `json:"channels"`
	Duration    time.Duration `json:"duration"`
}

// DiarizationTurn is a time range attributed to one speaker, in seconds.
// Speaker labels are only meaningful within a single diarization run.
type DiarizationTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Duration returns End - Start
func (t DiarizationTurn) Duration() float64 {
	return t.End - t.Start
}

// TranscribedSegment is a diarization turn with the text spoken in it
type TranscribedSegment struct {
	Speaker  string  `json:"speaker"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// ProcessingResult is the speaker-attributed transcript of one file
type ProcessingResult struct {
	File        string               `json:"file"`
	Segments    []TranscribedSegment `json:"segments"`
	NumSpeakers int                  `json:"num_speakers"`
}

// CountSpeakers returns the number of distinct speaker labels in segments
func CountSpeakers(segments []TranscribedSegment) int {
	seen := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		seen[seg.Speaker] = struct{}{}
	}
	return len(seen)
}
