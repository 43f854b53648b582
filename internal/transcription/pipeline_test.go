package transcription

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
)

// newTestPipeline wires the real stages around fake ffmpeg, diarizer and recognizer
func newTestPipeline(t *testing.T, seconds float64, diarizer *fakeDiarizer, rec Recognizer) (*Pipeline, types.AudioSource, *fakeFFmpeg) {
	t.Helper()
	ff := &fakeFFmpeg{t: t, seconds: seconds}
	normalizer := NewNormalizer(NormalizerConfig{CacheDir: filepath.Join(t.TempDir(), "cache")}, ff, zerolog.Nop())
	engine := NewDiarizationEngine(diarizer, time.Second, zerolog.Nop())
	segments := NewSegmentTranscriber(rec, t.TempDir(), time.Second, zerolog.Nop())
	src := newTestSource(t, "conversation.m4a", "two speakers")
	return NewPipeline(normalizer, engine, segments, zerolog.Nop()), src, ff
}

func TestProcessTwoSpeakerConversation(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{
		{Speaker: "SPEAKER_00", Start: 0, End: 10},
		{Speaker: "SPEAKER_01", Start: 10, End: 20},
		{Speaker: "SPEAKER_00", Start: 20, End: 30},
	}}
	texts := []string{"Hi, how was the trip?", "Long, but worth it.", "Glad to hear."}
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		return texts[call-1], nil
	}}
	p, src, _ := newTestPipeline(t, 30, diarizer, rec)

	result, err := p.Process(context.Background(), src)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.File != src.Path {
		t.Fatalf("file = %q, want %q", result.File, src.Path)
	}
	if result.NumSpeakers != 2 {
		t.Fatalf("num_speakers = %d, want 2", result.NumSpeakers)
	}
	want := []types.TranscribedSegment{
		{Speaker: "SPEAKER_00", Start: 0, End: 10, Duration: 10, Text: texts[0]},
		{Speaker: "SPEAKER_01", Start: 10, End: 20, Duration: 10, Text: texts[1]},
		{Speaker: "SPEAKER_00", Start: 20, End: 30, Duration: 10, Text: texts[2]},
	}
	if len(result.Segments) != len(want) {
		t.Fatalf("segments = %d, want %d", len(result.Segments), len(want))
	}
	for i, seg := range result.Segments {
		if seg != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, seg, want[i])
		}
	}
	if diarizer.calls != 1 {
		t.Fatalf("diarizer calls = %d, want 1", diarizer.calls)
	}
}

func TestProcessSortsTurnsByStart(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{
		{Speaker: "B", Start: 4, End: 6},
		{Speaker: "A", Start: 0, End: 3},
		{Speaker: "C", Start: 2.5, End: 5}, // overlaps both neighbours
		{Speaker: "A", Start: 7, End: 8},
	}}
	p, src, _ := newTestPipeline(t, 8, diarizer, &fakeRecognizer{})

	result, err := p.Process(context.Background(), src)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Segments) != len(diarizer.turns) {
		t.Fatalf("segments = %d, want %d", len(result.Segments), len(diarizer.turns))
	}
	if !sort.SliceIsSorted(result.Segments, func(i, j int) bool {
		return result.Segments[i].Start < result.Segments[j].Start
	}) {
		t.Fatalf("segments not sorted by start: %+v", result.Segments)
	}
	if result.NumSpeakers != 3 {
		t.Fatalf("num_speakers = %d, want 3", result.NumSpeakers)
	}
}

func TestProcessContainsSegmentFailure(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{
		{Speaker: "A", Start: 0, End: 2},
		{Speaker: "B", Start: 2, End: 4},
		{Speaker: "A", Start: 4, End: 6},
		{Speaker: "B", Start: 6, End: 8},
	}}
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		if call == 2 {
			return "", errors.New("model returned garbage")
		}
		return "ok", nil
	}}
	tempDir := t.TempDir()
	p, src, _ := newTestPipeline(t, 8, diarizer, rec)
	p.transcriber = NewSegmentTranscriber(rec, tempDir, time.Second, zerolog.Nop())

	result, err := p.Process(context.Background(), src)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(result.Segments))
	}
	for i, seg := range result.Segments {
		want := "ok"
		if i == 1 {
			want = ""
		}
		if seg.Text != want {
			t.Errorf("segment %d text = %q, want %q", i, seg.Text, want)
		}
	}
	if names := listDir(t, tempDir); len(names) != 0 {
		t.Fatalf("temp clips left behind: %v", names)
	}
}

func TestProcessDiarizationFailureIsFatal(t *testing.T) {
	diarizer := &fakeDiarizer{err: errors.New("missing model credentials")}
	rec := &fakeRecognizer{}
	p, src, _ := newTestPipeline(t, 5, diarizer, rec)

	result, err := p.Process(context.Background(), src)
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	var diarErr *DiarizationError
	if !errors.As(err, &diarErr) {
		t.Fatalf("error = %v, want DiarizationError", err)
	}
	if diarErr.Path != src.Path {
		t.Fatalf("error path = %q, want %q", diarErr.Path, src.Path)
	}
	if rec.calls != 0 {
		t.Fatalf("recognizer called %d times after diarization failure", rec.calls)
	}
}

func TestProcessUnsupportedFormatIsFatal(t *testing.T) {
	diarizer := &fakeDiarizer{}
	p, src, ff := newTestPipeline(t, 5, diarizer, &fakeRecognizer{})
	ff.fail = true

	_, err := p.Process(context.Background(), src)
	var formatErr *UnsupportedFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("error = %v, want UnsupportedFormatError", err)
	}
	if diarizer.calls != 0 {
		t.Fatalf("diarizer called %d times after normalization failure", diarizer.calls)
	}
}

func TestProcessNoTurns(t *testing.T) {
	p, src, _ := newTestPipeline(t, 5, &fakeDiarizer{}, &fakeRecognizer{})

	result, err := p.Process(context.Background(), src)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Segments) != 0 || result.NumSpeakers != 0 {
		t.Fatalf("result = %+v, want empty transcript", result)
	}
	if result.Segments == nil {
		t.Fatal("segments should be an empty slice, not nil")
	}
}

func TestProcessReusesNormalizedAudio(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{{Speaker: "A", Start: 0, End: 1}}}
	p, src, ff := newTestPipeline(t, 2, diarizer, &fakeRecognizer{})

	for i := 0; i < 2; i++ {
		if _, err := p.Process(context.Background(), src); err != nil {
			t.Fatalf("Process() run %d error = %v", i, err)
		}
	}
	if got := ff.calls.Load(); got != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", got)
	}
}

func TestProcessFailsWhenCancelledMidway(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{
		{Speaker: "A", Start: 0, End: 1},
		{Speaker: "B", Start: 1, End: 2},
		{Speaker: "A", Start: 2, End: 3},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		if call == 1 {
			cancel()
			return "first words", nil
		}
		return "", ctx.Err()
	}}
	p, src, _ := newTestPipeline(t, 3, diarizer, rec)

	result, err := p.Process(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil for an interrupted run", result)
	}
	if rec.calls != 1 {
		t.Fatalf("recognizer calls = %d, want 1", rec.calls)
	}
}

func TestProcessFailsWhenCancelledDuringLastSegment(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{
		{Speaker: "A", Start: 0, End: 1},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &fakeRecognizer{recognize: func(call int, path string) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	p, src, _ := newTestPipeline(t, 1, diarizer, rec)

	if _, err := p.Process(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
}

func TestProcessDropsEmptyTurns(t *testing.T) {
	diarizer := &fakeDiarizer{turns: []types.DiarizationTurn{
		{Speaker: "A", Start: 0, End: 2},
		{Speaker: "B", Start: 2, End: 2},   // zero length
		{Speaker: "C", Start: 3, End: 2.5}, // reversed
		{Speaker: "A", Start: 3, End: 4},
	}}
	rec := &fakeRecognizer{}
	p, src, _ := newTestPipeline(t, 4, diarizer, rec)

	result, err := p.Process(context.Background(), src)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2: %+v", len(result.Segments), result.Segments)
	}
	for _, seg := range result.Segments {
		if seg.Speaker != "A" || seg.End <= seg.Start {
			t.Errorf("unexpected segment %+v", seg)
		}
	}
	if result.NumSpeakers != 1 {
		t.Errorf("num_speakers = %d, want 1", result.NumSpeakers)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
}
