package transcription

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

const testSampleRate = beep.SampleRate(16000)

// writeWAV writes seconds of 16kHz mono silence to path
func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: testSampleRate, NumChannels: 1, Precision: 2}
	n := testSampleRate.N(time.Duration(seconds * float64(time.Second)))
	if err := wav.Encode(f, beep.Silence(n), format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fakeFFmpeg simulates ffmpeg by writing a WAV to the last argument
type fakeFFmpeg struct {
	t       *testing.T
	seconds float64
	fail    bool
	hang    bool
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeFFmpeg) Execute(ctx context.Context, name string, args ...string) (string, error) {
	f.calls.Add(1)
	if f.hang {
		<-ctx.Done()
		return "", errors.New("command 'ffmpeg' failed: signal: killed")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return "", errors.New("command 'ffmpeg' failed: exit status 1\nstderr: Invalid data found when processing input")
	}
	writeWAV(f.t, args[len(args)-1], f.seconds)
	return "", nil
}

// fakeRecognizer returns canned text per call
type fakeRecognizer struct {
	mu        sync.Mutex
	recognize func(call int, path string) (string, error)
	calls     int
	paths     []string
}

func (f *fakeRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.paths = append(f.paths, audioPath)
	f.mu.Unlock()

	if _, err := os.Stat(audioPath); err != nil {
		return "", err
	}
	if f.recognize == nil {
		return "", nil
	}
	return f.recognize(call, audioPath)
}

// fakeDiarizer is a diarization backend returning fixed turns
type fakeDiarizer struct {
	turns []types.DiarizationTurn
	err   error
	calls int
}

func (f *fakeDiarizer) Diarize(ctx context.Context, audioPath string) ([]types.DiarizationTurn, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.DiarizationTurn, len(f.turns))
	copy(out, f.turns)
	return out, nil
}

// listDir returns the names of the entries in dir
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
