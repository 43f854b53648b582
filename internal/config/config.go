package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither -config nor CONFIG_PATH is given
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port" validate:"min=1,max=65535"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Workers struct {
		Count     int    `yaml:"count" validate:"min=1"`
		QueueSize int    `yaml:"queue_size" validate:"min=1"`
		Overflow  string `yaml:"overflow" validate:"oneof=reject block"`
	} `yaml:"workers"`

	Storage struct {
		UploadDir string `yaml:"upload_dir" validate:"required"`
		CacheDir  string `yaml:"cache_dir" validate:"required"`
		TempDir   string `yaml:"temp_dir" validate:"required"`
		Database  string `yaml:"database" validate:"required"`
	} `yaml:"storage"`

	FFmpeg struct {
		Binary  string        `yaml:"binary"`
		Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"ffmpeg"`

	Whisper struct {
		Backend  string        `yaml:"backend" validate:"oneof=whisper-cli whisper-http"`
		Binary   string        `yaml:"binary"`
		Model    string        `yaml:"model"`
		Language string        `yaml:"language"`
		URL      string        `yaml:"url" validate:"omitempty,url"`
		Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"whisper"`

	Diarization struct {
		URL         string        `yaml:"url" validate:"required,url"`
		HFToken     string        `yaml:"hf_token"`
		NumSpeakers int           `yaml:"num_speakers" validate:"min=0"`
		MinSpeakers int           `yaml:"min_speakers" validate:"min=0"`
		MaxSpeakers int           `yaml:"max_speakers" validate:"min=0"`
		Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"diarization"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"min=1"`
		MaxAgeHours     int `yaml:"max_age_hours" validate:"min=1"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb" validate:"min=1"`
	} `yaml:"limits"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
	} `yaml:"google_drive"`

	Watcher struct {
		Enabled bool          `yaml:"enabled"`
		Dir     string        `yaml:"dir" validate:"required_if=Enabled true"`
		Settle  time.Duration `yaml:"settle" validate:"min=0"`
	} `yaml:"watcher"`

	Logging struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" validate:"oneof=console json"`
	} `yaml:"logging"`

	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		ServiceName  string `yaml:"service_name"`
	} `yaml:"telemetry"`
}

// Load reads the YAML file at path, applies .env and environment overrides,
// fills defaults and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePath picks the config path from the flag value, then CONFIG_PATH
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HF_TOKEN"); v != "" {
		c.Diarization.HFToken = v
	}
	if v := os.Getenv("PYANNOTE_URL"); v != "" {
		c.Diarization.URL = v
	}
	if v := os.Getenv("WHISPER_URL"); v != "" {
		c.Whisper.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Workers.Count == 0 {
		c.Workers.Count = 3
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 100
	}
	if c.Workers.Overflow == "" {
		c.Workers.Overflow = "reject"
	}

	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploads"
	}
	if c.Storage.CacheDir == "" {
		c.Storage.CacheDir = "cache"
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "memos.db"
	}

	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = "ffmpeg"
	}
	if c.FFmpeg.Timeout == 0 {
		c.FFmpeg.Timeout = 5 * time.Minute
	}

	if c.Whisper.Backend == "" {
		c.Whisper.Backend = "whisper-cli"
	}
	if c.Whisper.Model == "" {
		c.Whisper.Model = "small"
	}
	if c.Whisper.Timeout == 0 {
		c.Whisper.Timeout = 2 * time.Minute
	}

	if c.Diarization.URL == "" {
		c.Diarization.URL = "http://localhost:8388"
	}
	if c.Diarization.Timeout == 0 {
		c.Diarization.Timeout = 10 * time.Minute
	}

	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 24
	}

	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 500
	}

	if c.GoogleDrive.CredentialsFile == "" {
		c.GoogleDrive.CredentialsFile = "credentials.json"
	}
	if c.GoogleDrive.TokenFile == "" {
		c.GoogleDrive.TokenFile = "token.json"
	}

	if c.Watcher.Settle == 0 {
		c.Watcher.Settle = time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "memo-transcriber"
	}
}

// Validate checks the struct tags and reports every offending field
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		d := c.Diarization
		if d.MaxSpeakers > 0 && d.MinSpeakers > d.MaxSpeakers {
			return fmt.Errorf("invalid config: diarization.min_speakers (%d) exceeds max_speakers (%d)", d.MinSpeakers, d.MaxSpeakers)
		}
		// uploads land in upload_dir by rename, which the watcher would see as new files
		if c.Watcher.Enabled && filepath.Clean(c.Watcher.Dir) == filepath.Clean(c.Storage.UploadDir) {
			return fmt.Errorf("invalid config: watcher.dir must differ from storage.upload_dir")
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
