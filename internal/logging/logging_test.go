package logging

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestLogBufferKeepsMostRecent(t *testing.T) {
	lb := NewLogBuffer(3)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}

	got := lb.Lines()
	want := []string{"line 3", "line 4", "line 5"}
	if len(got) != len(want) {
		t.Fatalf("lines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lines = %v, want %v", got, want)
		}
	}

	got[0] = "mutated"
	if lb.Lines()[0] != "line 3" {
		t.Fatal("Lines() exposed internal slice")
	}
}

func TestNewWritesJSONToExtra(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := New(Options{Level: "warn", Format: "json"}, lb)

	logger.Info().Msg("hidden")
	logger.Warn().Str("file", "memo.m4a").Msg("Segment transcription failed")

	lines := lb.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want only the warning", lines)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["level"] != "warn" || entry["file"] != "memo.m4a" {
		t.Fatalf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("missing timestamp")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := New(Options{Level: "nonsense"}, lb)

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	if n := len(lb.Lines()); n != 1 {
		t.Fatalf("lines = %d, want 1", n)
	}
}
