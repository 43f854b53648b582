package transcription

import (
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// wavInfo describes a decoded WAV file
type wavInfo struct {
	SampleRate int
	Channels   int
	Samples    int
	Duration   time.Duration
}

// probeWAV reads the header of a WAV file without decoding the samples
func probeWAV(path string) (wavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return wavInfo{}, err
	}
	s, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return wavInfo{}, fmt.Errorf("decode wav: %w", err)
	}
	defer s.Close()

	return wavInfo{
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
		Samples:    s.Len(),
		Duration:   format.SampleRate.D(s.Len()),
	}, nil
}

// secondsToDuration converts float seconds to a time.Duration
func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// extractClip copies the [start, end) range of the WAV at srcPath into dst.
// Times are in seconds; the range is clamped to the length of the source.
func extractClip(srcPath string, dst *os.File, start, end float64) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	s, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode wav: %w", err)
	}
	defer s.Close()

	from := format.SampleRate.N(secondsToDuration(start))
	to := format.SampleRate.N(secondsToDuration(end))
	if from < 0 {
		from = 0
	}
	if to > s.Len() {
		to = s.Len()
	}
	if from >= to {
		return fmt.Errorf("empty clip range %.2fs-%.2fs (audio is %s)", start, end, format.SampleRate.D(s.Len()))
	}

	if err := s.Seek(from); err != nil {
		return fmt.Errorf("seek to sample %d: %w", from, err)
	}
	if err := wav.Encode(dst, beep.Take(to-from, s), format); err != nil {
		return fmt.Errorf("encode clip: %w", err)
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read samples: %w", err)
	}
	return nil
}
