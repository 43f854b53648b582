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
	"strings"

	"github.com/codebuildervaibhav/memo-transcriber/internal/executor"
)

// Recognizer backends
const (
	BackendWhisperCLI  = "whisper-cli"
	BackendWhisperHTTP = "whisper-http"
)

// Recognizer turns a short audio clip into text
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (string, error)
}

// WhisperConfig configures the speech-to-text backend
type WhisperConfig struct {
	Backend  string
	Binary   string
	Model    string
	Language string
	URL      string
	TempDir  string
}

// NewRecognizer builds the Recognizer selected by cfg.Backend
func NewRecognizer(cfg WhisperConfig, exec executor.Executor) (Recognizer, error) {
	switch cfg.Backend {
	case "", BackendWhisperCLI:
		return NewWhisperCLI(cfg, exec), nil
	case BackendWhisperHTTP:
		return NewWhisperHTTP(cfg), nil
	default:
		return nil, fmt.Errorf("unknown whisper backend %q", cfg.Backend)
	}
}

// WhisperCLI wraps Python's OpenAI Whisper (python -m whisper)
type WhisperCLI struct {
	cfg  WhisperConfig
	exec executor.Executor
}

// NewWhisperCLI creates a CLI backed recognizer
func NewWhisperCLI(cfg WhisperConfig, exec executor.Executor) *WhisperCLI {
	if cfg.Binary == "" {
		cfg.Binary = "python"
	}
	if cfg.Model == "" {
		cfg.Model = "small"
	}
	return &WhisperCLI{cfg: cfg, exec: exec}
}

// Recognize runs whisper on audioPath and returns the trimmed transcript
func (w *WhisperCLI) Recognize(ctx context.Context, audioPath string) (string, error) {
	outDir, err := os.MkdirTemp(w.cfg.TempDir, "whisper-*")
	if err != nil {
		return "", fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	args := []string{"-m", "whisper",
		absAudioPath,
		"--model", w.cfg.Model,
		"--output_dir", outDir,
		"--output_format", "json",
		"--fp16", "False", // CPU compatibility
	}
	if w.cfg.Language != "" {
		args = append(args, "--language", w.cfg.Language)
	}

	if _, err := w.exec.Execute(ctx, w.cfg.Binary, args...); err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return "", fmt.Errorf("failed to read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(jsonData, &out); err != nil {
		return "", fmt.Errorf("failed to parse whisper JSON: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// whisperOutput matches the JSON written by whisper and the sidecar response
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// WhisperHTTP calls a faster-whisper HTTP sidecar
type WhisperHTTP struct {
	cfg    WhisperConfig
	client *http.Client
}

// NewWhisperHTTP creates an HTTP backed recognizer
func NewWhisperHTTP(cfg WhisperConfig) *WhisperHTTP {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8387"
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	return &WhisperHTTP{cfg: cfg, client: &http.Client{}}
}

// Recognize uploads audioPath to the sidecar and returns the trimmed transcript
func (w *WhisperHTTP) Recognize(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	_ = writer.WriteField("model", w.cfg.Model)
	if w.cfg.Language != "" {
		_ = writer.WriteField("language", w.cfg.Language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL+"/transcribe", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper error (status %d): %s", resp.StatusCode, string(body))
	}

	var out whisperOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
