package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner drops finished jobs older than a cutoff
type Pruner interface {
	Prune(olderThan time.Duration) int
}

// Scheduler periodically deletes stale scratch files and forgets old jobs
type Scheduler struct {
	dirs     []string
	interval time.Duration
	maxAge   time.Duration
	pruner   Pruner
	logger   zerolog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler sweeps dirs every interval. pruner may be nil.
func NewScheduler(dirs []string, interval, maxAge time.Duration, pruner Pruner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		dirs:     dirs,
		interval: interval,
		maxAge:   maxAge,
		pruner:   pruner,
		logger:   logger.With().Str("component", "cleanup").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	s.logger.Info().Msg("Running initial cleanup...")
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				return
			}
		}
	}()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("Cleanup scheduler started")
}

// Stop ends the periodic sweep
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info().Msg("Cleanup scheduler stopped")
	})
}

// Sweep deletes files older than maxAge and prunes finished jobs
func (s *Scheduler) Sweep() {
	for _, dir := range s.dirs {
		s.cleanOldFiles(dir)
	}
	if s.pruner != nil {
		if n := s.pruner.Prune(s.maxAge); n > 0 {
			s.logger.Info().Int("jobs", n).Msg("Pruned finished jobs")
		}
	}
}

func (s *Scheduler) cleanOldFiles(dir string) {
	now := time.Now()

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		size := info.Size()
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Failed to delete old file")
			return nil
		}
		deletedCount++
		deletedSize += size
		s.logger.Debug().
			Str("file", filepath.Base(path)).
			Dur("age", age.Round(time.Minute)).
			Int64("size_kb", size/1024).
			Msg("Deleted old file")
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("dir", dir).Msg("Error during cleanup")
	}

	if deletedCount > 0 {
		s.logger.Info().Msgf("Cleanup of %s complete: %d files deleted, %.2fMB freed",
			dir, deletedCount, float64(deletedSize)/(1024*1024))
	}
}

// EnsureDirs creates every directory in dirs
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
