package transcription

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

const tracerName = "github.com/codebuildervaibhav/memo-transcriber/internal/transcription"

// AudioNormalizer produces the canonical form of a source recording
type AudioNormalizer interface {
	Normalize(ctx context.Context, source types.AudioSource) (types.NormalizedAudio, error)
}

// SpeakerDiarizer splits normalized audio into speaker turns
type SpeakerDiarizer interface {
	Diarize(ctx context.Context, audio types.NormalizedAudio) ([]types.DiarizationTurn, error)
}

// TextTranscriber transcribes one time range; it never fails
type TextTranscriber interface {
	Transcribe(ctx context.Context, audio types.NormalizedAudio, start, end float64) string
}

// Pipeline runs normalize -> diarize -> transcribe per turn -> aggregate
type Pipeline struct {
	normalizer  AudioNormalizer
	diarizer    SpeakerDiarizer
	transcriber TextTranscriber
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewPipeline creates a Pipeline from its stages
func NewPipeline(normalizer AudioNormalizer, diarizer SpeakerDiarizer, transcriber TextTranscriber, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		normalizer:  normalizer,
		diarizer:    diarizer,
		transcriber: transcriber,
		tracer:      otel.Tracer(tracerName),
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Process produces the speaker-attributed transcript of source.
// Normalization and diarization errors abort the run; segment failures
// leave that segment's text empty.
func (p *Pipeline) Process(ctx context.Context, source types.AudioSource) (*types.ProcessingResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("file", source.Path)))
	defer span.End()

	log := p.logger.With().Str("file", source.Path).Logger()
	log.Info().Msgf("Processing: %s", filepath.Base(source.Path))

	audio, err := p.normalize(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalize")
		return nil, err
	}

	turns, err := p.diarize(ctx, audio)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "diarize")
		return nil, err
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })

	log.Info().Msgf("Transcribing %d segment(s)...", len(turns))
	segments := make([]types.TranscribedSegment, 0, len(turns))
	for i, turn := range turns {
		if err := ctx.Err(); err != nil {
			return nil, p.cancelled(span, i, len(turns), err)
		}
		log.Info().Msgf("[%d/%d] Transcribing %s (%.1fs - %.1fs)...", i+1, len(turns), turn.Speaker, turn.Start, turn.End)

		text := p.transcribe(ctx, audio, turn)
		log.Debug().Str("speaker", turn.Speaker).Str("text", text).Msg("Segment transcribed")
		segments = append(segments, types.TranscribedSegment{
			Speaker:  turn.Speaker,
			Start:    turn.Start,
			End:      turn.End,
			Duration: turn.Duration(),
			Text:     text,
		})
	}

	// a cancel during the last segment would otherwise pass as empty text
	if err := ctx.Err(); err != nil {
		return nil, p.cancelled(span, len(turns), len(turns), err)
	}

	result := &types.ProcessingResult{
		File:        source.Path,
		Segments:    segments,
		NumSpeakers: types.CountSpeakers(segments),
	}
	span.SetAttributes(
		attribute.Int("segments", len(segments)),
		attribute.Int("num_speakers", result.NumSpeakers),
	)
	log.Info().Int("segments", len(segments)).Int("num_speakers", result.NumSpeakers).Msg("Processing complete")
	return result, nil
}

func (p *Pipeline) cancelled(span trace.Span, done, total int, err error) error {
	err = fmt.Errorf("processing interrupted after %d/%d segments: %w", done, total, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "cancelled")
	return err
}

func (p *Pipeline) normalize(ctx context.Context, source types.AudioSource) (types.NormalizedAudio, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.normalize")
	defer span.End()
	return p.normalizer.Normalize(ctx, source)
}

func (p *Pipeline) diarize(ctx context.Context, audio types.NormalizedAudio) ([]types.DiarizationTurn, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.diarize")
	defer span.End()
	return p.diarizer.Diarize(ctx, audio)
}

func (p *Pipeline) transcribe(ctx context.Context, audio types.NormalizedAudio, turn types.DiarizationTurn) string {
	ctx, span := p.tracer.Start(ctx, "pipeline.transcribe_segment", trace.WithAttributes(
		attribute.String("speaker", turn.Speaker),
		attribute.Float64("start", turn.Start),
		attribute.Float64("end", turn.End),
	))
	defer span.End()

	text := p.transcriber.Transcribe(ctx, audio, turn.Start, turn.End)
	if text == "" {
		span.AddEvent("empty transcript")
	}
	return text
}
