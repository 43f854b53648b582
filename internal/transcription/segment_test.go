package transcription

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

func newTestAudio(t *testing.T, seconds float64) types.NormalizedAudio {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo-abc.wav")
	writeWAV(t, path, seconds)
	info, err := probeWAV(path)
	if err != nil {
		t.Fatalf("probeWAV() error = %v", err)
	}
	return types.NormalizedAudio{
		Path:       path,
		SourcePath: "uploads/memo.m4a",
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		Duration:   info.Duration,
	}
}

func TestTranscribeExtractsClip(t *testing.T) {
	audio := newTestAudio(t, 10)
	tempDir := t.TempDir()

	var clipDuration time.Duration
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		info, err := probeWAV(path)
		if err != nil {
			return "", err
		}
		clipDuration = info.Duration
		return "hello there", nil
	}}
	st := NewSegmentTranscriber(rec, tempDir, time.Second, zerolog.Nop())

	text := st.Transcribe(context.Background(), audio, 2, 4.5)
	if text != "hello there" {
		t.Fatalf("text = %q, want %q", text, "hello there")
	}
	if clipDuration != 2500*time.Millisecond {
		t.Fatalf("clip duration = %s, want 2.5s", clipDuration)
	}
	if !strings.HasPrefix(filepath.Base(rec.paths[0]), "clip-") {
		t.Fatalf("clip path = %q", rec.paths[0])
	}
	if names := listDir(t, tempDir); len(names) != 0 {
		t.Fatalf("temp clip left behind: %v", names)
	}
}

func TestTranscribeClampsToAudioLength(t *testing.T) {
	audio := newTestAudio(t, 3)

	var clipDuration time.Duration
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		info, err := probeWAV(path)
		clipDuration = info.Duration
		return "tail", err
	}}
	st := NewSegmentTranscriber(rec, t.TempDir(), time.Second, zerolog.Nop())

	if text := st.Transcribe(context.Background(), audio, 2, 9); text != "tail" {
		t.Fatalf("text = %q, want tail", text)
	}
	if clipDuration != time.Second {
		t.Fatalf("clip duration = %s, want 1s", clipDuration)
	}
}

func TestTranscribeRecognizerFailureLeavesNoClip(t *testing.T) {
	audio := newTestAudio(t, 5)
	tempDir := t.TempDir()
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		return "", errors.New("whisper crashed")
	}}
	st := NewSegmentTranscriber(rec, tempDir, time.Second, zerolog.Nop())

	if text := st.Transcribe(context.Background(), audio, 0, 2); text != "" {
		t.Fatalf("text = %q, want empty", text)
	}

	_, err := st.transcribe(context.Background(), audio, 0, 2)
	var segErr *SegmentTranscriptionError
	if !errors.As(err, &segErr) {
		t.Fatalf("error = %v, want SegmentTranscriptionError", err)
	}
	if segErr.Start != 0 || segErr.End != 2 {
		t.Fatalf("error range = %v-%v, want 0-2", segErr.Start, segErr.End)
	}
	if names := listDir(t, tempDir); len(names) != 0 {
		t.Fatalf("temp clip left behind: %v", names)
	}
}

func TestTranscribeExtractionFailureLeavesNoClip(t *testing.T) {
	audio := newTestAudio(t, 2)
	tempDir := t.TempDir()
	rec := &fakeRecognizer{}
	st := NewSegmentTranscriber(rec, tempDir, time.Second, zerolog.Nop())

	// Range starts after the end of the recording.
	if text := st.Transcribe(context.Background(), audio, 5, 6); text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
	if rec.calls != 0 {
		t.Fatalf("recognizer called %d times for an empty clip", rec.calls)
	}
	if names := listDir(t, tempDir); len(names) != 0 {
		t.Fatalf("temp clip left behind: %v", names)
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	tempDir := t.TempDir()
	st := NewSegmentTranscriber(&fakeRecognizer{}, tempDir, time.Second, zerolog.Nop())
	audio := types.NormalizedAudio{Path: filepath.Join(t.TempDir(), "missing.wav")}

	if text := st.Transcribe(context.Background(), audio, 0, 1); text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
	if names := listDir(t, tempDir); len(names) != 0 {
		t.Fatalf("temp clip left behind: %v", names)
	}
}

func TestTranscribeTimesOut(t *testing.T) {
	audio := newTestAudio(t, 2)
	st := NewSegmentTranscriber(blockingRecognizer{}, t.TempDir(), 20*time.Millisecond, zerolog.Nop())

	start := time.Now()
	if text := st.Transcribe(context.Background(), audio, 0, 1); text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("hung recognizer was not cut off by the timeout")
	}
}

// blockingRecognizer waits until its context is done
type blockingRecognizer struct{}

func (blockingRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
