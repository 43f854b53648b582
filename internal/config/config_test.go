package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HF_TOKEN", "PYANNOTE_URL", "WHISPER_URL", "LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT", "CONFIG_PATH"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5001 || cfg.Workers.Count != 3 || cfg.Workers.QueueSize != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Workers.Overflow != "reject" {
		t.Fatalf("overflow = %q, want reject", cfg.Workers.Overflow)
	}
	if cfg.FFmpeg.Timeout != 5*time.Minute || cfg.Diarization.Timeout != 10*time.Minute {
		t.Fatalf("timeouts = %s / %s", cfg.FFmpeg.Timeout, cfg.Diarization.Timeout)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
workers:
  count: 5
  queue_size: 10
  overflow: block
whisper:
  backend: whisper-http
  url: http://whisper:8387
  timeout: 45s
diarization:
  url: http://pyannote:8388
  num_speakers: 2
logging:
  level: debug
  format: json
`)
	t.Setenv("HF_TOKEN", "hf_from_env")
	t.Setenv("WHISPER_URL", "http://override:8387")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Workers.Count != 5 || cfg.Workers.Overflow != "block" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Whisper.Timeout != 45*time.Second {
		t.Fatalf("whisper timeout = %s, want 45s", cfg.Whisper.Timeout)
	}
	if cfg.Diarization.HFToken != "hf_from_env" {
		t.Fatalf("hf token = %q", cfg.Diarization.HFToken)
	}
	if cfg.Whisper.URL != "http://override:8387" {
		t.Fatalf("whisper url = %q, want env override", cfg.Whisper.URL)
	}
	if cfg.Storage.UploadDir != "uploads" {
		t.Fatalf("upload dir default = %q", cfg.Storage.UploadDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"overflow", "workers:\n  overflow: drop\n", "Overflow"},
		{"backend", "whisper:\n  backend: vosk\n", "Backend"},
		{"log level", "logging:\n  level: loud\n", "Level"},
		{"watcher dir", "watcher:\n  enabled: true\n", "Dir"},
		{"speaker range", "diarization:\n  min_speakers: 4\n  max_speakers: 2\n", "min_speakers"},
		{"watcher on uploads", "watcher:\n  enabled: true\n  dir: uploads/\n", "watcher.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolvePath(t *testing.T) {
	clearEnv(t)
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("ResolvePath() = %q, want default", got)
	}
	t.Setenv("CONFIG_PATH", "/etc/memo.yaml")
	if got := ResolvePath(""); got != "/etc/memo.yaml" {
		t.Fatalf("ResolvePath() = %q, want env value", got)
	}
	if got := ResolvePath("local.yaml"); got != "local.yaml" {
		t.Fatalf("ResolvePath(flag) = %q", got)
	}
}
