package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// Diarizer is a speaker diarization backend
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]types.DiarizationTurn, error)
}

// PyannoteConfig configures the pyannote sidecar client
type PyannoteConfig struct {
	BaseURL     string
	HFToken     string
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
}

// PyannoteClient talks to a pyannote speaker-diarization-3.1 HTTP sidecar
type PyannoteClient struct {
	cfg    PyannoteConfig
	client *http.Client
}

// NewPyannoteClient creates a pyannote client.
// Deadlines come from the caller's context.
func NewPyannoteClient(cfg PyannoteConfig) *PyannoteClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8388"
	}
	return &PyannoteClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// IsAvailable checks if the sidecar answers its health check
func (p *PyannoteClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Diarize uploads the audio to the sidecar and returns its speaker turns
func (p *PyannoteClient) Diarize(ctx context.Context, audioPath string) ([]types.DiarizationTurn, error) {
	if p.cfg.HFToken == "" {
		return nil, fmt.Errorf("HF_TOKEN environment variable not set")
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if p.cfg.NumSpeakers > 0 {
		_ = writer.WriteField("num_speakers", fmt.Sprintf("%d", p.cfg.NumSpeakers))
	}
	if p.cfg.MinSpeakers > 0 {
		_ = writer.WriteField("min_speakers", fmt.Sprintf("%d", p.cfg.MinSpeakers))
	}
	if p.cfg.MaxSpeakers > 0 {
		_ = writer.WriteField("max_speakers", fmt.Sprintf("%d", p.cfg.MaxSpeakers))
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/diarize", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.HFToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("diarization error (status %d): %s", resp.StatusCode, string(body))
	}

	var result pyannoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("diarization error: %s", result.Error)
	}

	turns := make([]types.DiarizationTurn, len(result.Segments))
	for i, seg := range result.Segments {
		turns[i] = types.DiarizationTurn{
			Speaker: seg.Speaker,
			Start:   seg.Start,
			End:     seg.End,
		}
	}
	return turns, nil
}

type pyannoteResponse struct {
	Segments []pyannoteSegment `json:"segments"`
	Error    string            `json:"error,omitempty"`
}

type pyannoteSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// DiarizationEngine runs a Diarizer once per file under a deadline
type DiarizationEngine struct {
	backend Diarizer
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDiarizationEngine creates a DiarizationEngine
func NewDiarizationEngine(backend Diarizer, timeout time.Duration, logger zerolog.Logger) *DiarizationEngine {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &DiarizationEngine{
		backend: backend,
		timeout: timeout,
		logger:  logger.With().Str("component", "diarization").Logger(),
	}
}

// Diarize returns the speaker turns of audio in model order.
// Turns may overlap; turns with end <= start are dropped.
func (e *DiarizationEngine) Diarize(ctx context.Context, audio types.NormalizedAudio) ([]types.DiarizationTurn, error) {
	e.logger.Info().Str("audio", audio.Path).Msg("Running diarization")

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.backend.Diarize(cctx, audio.Path)
	if err != nil {
		return nil, &DiarizationError{Path: audio.SourcePath, Err: err}
	}

	turns := make([]types.DiarizationTurn, 0, len(raw))
	speakers := make(map[string]struct{})
	for _, t := range raw {
		if t.End <= t.Start {
			e.logger.Warn().
				Str("speaker", t.Speaker).
				Float64("start", t.Start).
				Float64("end", t.End).
				Msg("Dropping empty diarization turn")
			continue
		}
		turns = append(turns, t)
		speakers[t.Speaker] = struct{}{}
	}

	e.logger.Info().Int("turns", len(turns)).Int("speakers", len(speakers)).Msgf("Found %d speaker(s)", len(speakers))
	return turns, nil
}
