package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

const rule = "============================================================"

// Console prints finished transcripts. The JSON record goes to out and the
// readable transcript to the logger.
type Console struct {
	out    io.Writer
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewConsole creates a reporter writing records to out
func NewConsole(out io.Writer, logger zerolog.Logger) *Console {
	return &Console{
		out:    out,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

// Attach subscribes the reporter to registry events
func (c *Console) Attach(registry *queue.Registry) (detach func()) {
	return registry.Subscribe(c.Handle)
}

// Handle reports terminal job events and ignores the rest
func (c *Console) Handle(e queue.Event) {
	switch e.Type {
	case queue.EventCompleted:
		if e.Job.Result != nil {
			c.completed(e.Job.ID, e.Job.Result)
		}
	case queue.EventFailed:
		c.logger.Error().
			Str("job_id", e.Job.ID).
			Str("file", e.Job.Source.Path).
			Msgf("Processing failed: %s", e.Job.Error)
	}
}

func (c *Console) completed(jobID string, result *types.ProcessingResult) {
	record, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to encode result")
		return
	}

	c.mu.Lock()
	_, err = fmt.Fprintf(c.out, "%s\n", record)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write result record")
	}

	c.logger.Info().
		Str("job_id", jobID).
		Str("file", result.File).
		Int("num_speakers", result.NumSpeakers).
		Msgf("Transcript for %s\n%s", filepath.Base(result.File), FormatTranscript(result))
}

// FormatTranscript renders one line per segment as "[start s] SPEAKER: text"
func FormatTranscript(result *types.ProcessingResult) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Speakers detected: %d\n", result.NumSpeakers)
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "  [%.1fs] %s: %s\n", seg.Start, seg.Speaker, seg.Text)
	}
	b.WriteString(rule)
	return b.String()
}
