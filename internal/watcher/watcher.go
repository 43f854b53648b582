package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/transcription"
)

// Handler is called once per recording after it stops changing
type Handler func(ctx context.Context, path string) error

// Watcher submits recordings dropped into a directory
type Watcher struct {
	dir     string
	handler Handler
	settle  time.Duration
	logger  zerolog.Logger
	fs      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New watches dir, creating it if needed. A file is handed to handler once
// no write has touched it for settle.
func New(dir string, handler Handler, settle time.Duration, logger zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create watch dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if settle <= 0 {
		settle = time.Second
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		settle:  settle,
		logger:  logger.With().Str("component", "watcher").Logger(),
		fs:      fsw,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run blocks until ctx is done or the watcher fails
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().Msgf("File watcher started. Monitoring: %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.logger.Info().Msg("File watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close releases the underlying fsnotify watcher
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isRecording(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// schedule (re)arms the settle timer for path
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}
	// a fired timer still waiting on mu sees the replacement and exits

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()

		w.mu.Lock()
		current, ok := w.pending[path]
		if !ok || current != timer {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.logger.Info().Msgf("New recording detected: %s", filepath.Base(path))
		if err := w.handler(ctx, path); err != nil {
			w.logger.Error().Err(err).Str("file", path).Msg("Failed to submit recording")
		}
	})
	w.pending[path] = timer
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// drain stops timers that have not fired and waits for running handlers
func (w *Watcher) drain() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// isRecording accepts visible .m4a files
func isRecording(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return transcription.ValidateAudioFormat(base)
}
