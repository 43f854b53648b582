package transcription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/codebuildervaibhav/memo-transcriber/internal/executor"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// AcceptedExtension is the only container the ingestion endpoints accept
const AcceptedExtension = ".m4a"

const fingerprintLen = 16

// NormalizerConfig configures the ffmpeg based normalizer
type NormalizerConfig struct {
	FFmpegPath string
	CacheDir   string
	Timeout    time.Duration
}

// Normalizer converts source recordings to 16kHz mono WAV and caches the
// result under CacheDir, keyed by a fingerprint of the source content.
type Normalizer struct {
	cfg    NormalizerConfig
	exec   executor.Executor
	group  singleflight.Group
	logger zerolog.Logger
}

// NewNormalizer creates a Normalizer
func NewNormalizer(cfg NormalizerConfig, exec executor.Executor, logger zerolog.Logger) *Normalizer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Normalizer{
		cfg:    cfg,
		exec:   exec,
		logger: logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize returns the canonical WAV for source, converting it on first use.
// Concurrent calls for the same content share one conversion.
func (n *Normalizer) Normalize(ctx context.Context, source types.AudioSource) (types.NormalizedAudio, error) {
	fp, err := fingerprintFile(source.Path)
	if err != nil {
		return types.NormalizedAudio{}, &UnsupportedFormatError{Path: source.Path, Err: err}
	}

	outPath := n.ArtifactPath(source.Path, fp)
	// the shared conversion outlives any single caller, bounded by cfg.Timeout
	shared := context.WithoutCancel(ctx)
	ch := n.group.DoChan(outPath, func() (interface{}, error) {
		return n.normalize(shared, source, fp, outPath)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return types.NormalizedAudio{}, res.Err
		}
		return res.Val.(types.NormalizedAudio), nil
	case <-ctx.Done():
		return types.NormalizedAudio{}, fmt.Errorf("normalize %s: %w", source.Path, ctx.Err())
	}
}

// ArtifactPath returns the cache path for a source with the given fingerprint
func (n *Normalizer) ArtifactPath(sourcePath, fingerprint string) string {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(n.cfg.CacheDir, fmt.Sprintf("%s-%s.wav", stem, fingerprint))
}

func (n *Normalizer) normalize(ctx context.Context, source types.AudioSource, fp, outPath string) (types.NormalizedAudio, error) {
	if _, err := os.Stat(outPath); err == nil {
		info, err := probeWAV(outPath)
		if err == nil {
			// keeps the artifact out of the retention sweep while in use
			now := time.Now()
			os.Chtimes(outPath, now, now)
			n.logger.Debug().Str("source", source.Path).Str("artifact", outPath).Msg("Using cached normalized audio")
			return toNormalized(source, fp, outPath, info), nil
		}
		n.logger.Warn().Err(err).Str("artifact", outPath).Msg("Cached artifact unreadable, reconverting")
	}

	if err := os.MkdirAll(n.cfg.CacheDir, 0755); err != nil {
		return types.NormalizedAudio{}, fmt.Errorf("create cache directory: %w", err)
	}

	n.logger.Info().Str("source", source.Path).Msg("Converting to WAV")
	tmpPath := outPath + ".partial"

	cctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	// FFmpeg command: convert to 16kHz mono WAV
	_, err := n.exec.Execute(cctx, n.cfg.FFmpegPath,
		"-i", source.Path,
		"-vn",
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-f", "wav",
		"-y", // Overwrite output
		tmpPath,
	)
	if err != nil {
		os.Remove(tmpPath)
		if cerr := cctx.Err(); cerr != nil {
			return types.NormalizedAudio{}, fmt.Errorf("ffmpeg on %s: %w", source.Path, cerr)
		}
		return types.NormalizedAudio{}, &UnsupportedFormatError{Path: source.Path, Err: err}
	}

	info, err := probeWAV(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return types.NormalizedAudio{}, &UnsupportedFormatError{Path: source.Path, Err: err}
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return types.NormalizedAudio{}, fmt.Errorf("store normalized audio: %w", err)
	}

	n.logger.Info().Str("artifact", outPath).Dur("duration", info.Duration).Msg("Converted to WAV")
	return toNormalized(source, fp, outPath, info), nil
}

func toNormalized(source types.AudioSource, fp, path string, info wavInfo) types.NormalizedAudio {
	return types.NormalizedAudio{
		Path:        path,
		SourcePath:  source.Path,
		Fingerprint: fp,
		SampleRate:  info.SampleRate,
		Channels:    info.Channels,
		Duration:    info.Duration,
	}
}

// fingerprintFile hashes the file content
func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash source: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen], nil
}

// ValidateAudioFormat checks if the file has the accepted container extension
func ValidateAudioFormat(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == AcceptedExtension
}
