package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
)

// MeterName scopes the instruments created by JobMetrics
const MeterName = "github.com/codebuildervaibhav/memo-transcriber"

// JobMetrics turns registry events into OpenTelemetry instruments
type JobMetrics struct {
	finished metric.Int64Counter
	duration metric.Float64Histogram
	queued   metric.Int64UpDownCounter
	running  metric.Int64UpDownCounter
	segments metric.Int64Counter
}

// NewJobMetrics creates the job instruments on meter
func NewJobMetrics(meter metric.Meter) (*JobMetrics, error) {
	finished, err := meter.Int64Counter("memo.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memo.jobs.finished counter: %w", err)
	}

	duration, err := meter.Float64Histogram("memo.job.duration",
		metric.WithDescription("Time from job start to completion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memo.job.duration histogram: %w", err)
	}

	queued, err := meter.Int64UpDownCounter("memo.jobs.queued",
		metric.WithDescription("Jobs waiting for a worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memo.jobs.queued gauge: %w", err)
	}

	running, err := meter.Int64UpDownCounter("memo.jobs.running",
		metric.WithDescription("Jobs currently being processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memo.jobs.running gauge: %w", err)
	}

	segments, err := meter.Int64Counter("memo.segments.transcribed",
		metric.WithDescription("Speaker segments in completed transcripts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memo.segments.transcribed counter: %w", err)
	}

	return &JobMetrics{
		finished: finished,
		duration: duration,
		queued:   queued,
		running:  running,
		segments: segments,
	}, nil
}

// Attach subscribes the recorder to registry events
func (m *JobMetrics) Attach(registry *queue.Registry) (detach func()) {
	return registry.Subscribe(m.Observe)
}

// Observe records one job event
func (m *JobMetrics) Observe(e queue.Event) {
	ctx := context.Background()
	source := metric.WithAttributes(attribute.String("source", e.Job.SourceType))

	switch e.Type {
	case queue.EventQueued:
		m.queued.Add(ctx, 1, source)

	case queue.EventStarted:
		m.queued.Add(ctx, -1, source)
		m.running.Add(ctx, 1, source)

	case queue.EventCompleted, queue.EventFailed:
		if e.Job.StartedAt.IsZero() {
			// abandoned before a worker picked it up
			m.queued.Add(ctx, -1, source)
		} else {
			m.running.Add(ctx, -1, source)
		}
		m.finished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", e.Job.SourceType),
			attribute.String("status", e.Job.Status),
		))
		if !e.Job.StartedAt.IsZero() && !e.Job.FinishedAt.IsZero() {
			m.duration.Record(ctx, e.Job.FinishedAt.Sub(e.Job.StartedAt).Seconds(), source)
		}
		if e.Job.Result != nil {
			m.segments.Add(ctx, int64(len(e.Job.Result.Segments)), source)
		}
	}
}
