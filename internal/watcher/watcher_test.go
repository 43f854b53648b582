package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	calls chan string
}

func newRecorder() *recorder {
	return &recorder{calls: make(chan string, 16)}
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.calls <- path
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startWatcher(t *testing.T, dir string, handler Handler) {
	t.Helper()
	w, err := New(dir, handler, 100*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
		w.Close()
	})
}

func TestWatcherSubmitsNewRecording(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec.handle)

	path := filepath.Join(dir, "memo.m4a")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-rec.calls:
		if got != path {
			t.Errorf("handler path = %s, want %s", got, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestWatcherWaitsForWritesToSettle(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec.handle)

	path := filepath.Join(dir, "long.m4a")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.Write([]byte("chunk")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	f.Close()

	select {
	case <-rec.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("handler not called")
	}

	time.Sleep(300 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec.handle)

	for _, name := range []string{"notes.txt", "song.mp3", ".partial.m4a"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(400 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Errorf("handler called %d times for ignored files", n)
	}
}

func TestWatcherDropsRemovedFile(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()

	w, err := New(dir, rec.handle, time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	path := filepath.Join(dir, "gone.m4a")
	w.schedule(context.Background(), path)
	w.cancel(path)

	w.drain()
	if n := rec.count(); n != 0 {
		t.Errorf("handler called %d times for cancelled file", n)
	}
}

func TestIsRecording(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/drop/memo.m4a", true},
		{"/drop/MEMO.M4A", true},
		{"/drop/memo.mp3", false},
		{"/drop/.memo.m4a", false},
		{"/drop/memo", false},
	}
	for _, tt := range tests {
		if got := isRecording(tt.path); got != tt.want {
			t.Errorf("isRecording(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
