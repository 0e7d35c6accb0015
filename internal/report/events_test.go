package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", len(events)+1, err)
		}
		events = append(events, decoded)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(filepath.Join(tmpDir, "artifacts"), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.Path() != filepath.Join(tmpDir, "artifacts", "events.jsonl") {
		t.Errorf("unexpected event log path %s", logger.Path())
	}
	if len(logger.RunID()) != 36 {
		t.Errorf("expected a uuid run id, got %q", logger.RunID())
	}

	// file is created on first write
	if err := logger.LogSkip("/music/a.mp3", "too small"); err != nil {
		t.Fatalf("LogSkip failed: %v", err)
	}
	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}
}

func TestEventLogger_MultipleEvents(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	logger.LogScan("/music/a.mp3", 1234, "dev:42")
	logger.LogResolve("/music/a.mp3", 1, 2, 3)
	logger.LogFingerprint(1, "/music/a.mp3", nil)
	logger.LogVerify(1, "acoust-1", 0.97, nil)
	logger.LogMerge(1, 2, 5, "acoust-1")
	logger.LogQuality(1, "/music/a.mp3", 9.8, "Excellent")
	logger.LogError(EventMeta, "/music/b.mp3", errors.New("boom"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 7 {
		t.Fatalf("Expected 7 events, got %d", len(events))
	}

	want := []EventType{EventScan, EventResolve, EventFingerprint, EventVerify, EventMerge, EventQuality, EventMeta}
	for i, e := range events {
		if e.Event != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], e.Event)
		}
		if e.RunID != logger.RunID() {
			t.Errorf("event %d: run id %q, expected %q", i, e.RunID, logger.RunID())
		}
		if e.Timestamp.IsZero() {
			t.Errorf("event %d: timestamp not set", i)
		}
	}

	if events[0].Device != "dev:42" || events[0].SizeBytes != 1234 {
		t.Errorf("scan event lost fields: %+v", events[0])
	}
	if events[2].Level != LevelInfo {
		t.Errorf("successful fingerprint should be info, got %s", events[2].Level)
	}
	if events[4].SongID != 5 || events[4].Extra["merged_song_id"] != "2" {
		t.Errorf("merge event lost fields: %+v", events[4])
	}
	if events[5].QualityScore != 9.8 || events[5].Reason != "Excellent" {
		t.Errorf("quality event lost fields: %+v", events[5])
	}
	if events[6].Level != LevelError || events[6].Error != "boom" {
		t.Errorf("error event lost fields: %+v", events[6])
	}
}

func TestEventLogger_MinLevel(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	logger.LogScan("/music/a.mp3", 1, "dev:1") // debug, filtered
	logger.LogMeta("/music/a.mp3", "taglib", time.Millisecond, nil)
	logger.LogMeta("/music/b.mp3", "taglib", time.Millisecond, os.ErrNotExist)
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 1 {
		t.Fatalf("Expected only the error event, got %d", len(events))
	}
	if events[0].Path != "/music/b.mp3" || events[0].Level != LevelError {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := logger.LogFingerprint(int64(id*100+j), "/music/x.flac", nil); err != nil {
					t.Errorf("Concurrent log failed: %v", err)
				}
			}
		}(i)
	}

	wg.Wait()
	logger.Close()

	expected := numGoroutines * eventsPerGoroutine
	if n := len(readEvents(t, logger.Path())); n != expected {
		t.Errorf("Expected %d events, got %d", expected, n)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	// Should not panic
	if err := logger.Log(&Event{Level: LevelInfo, Event: EventScan}); err != nil {
		t.Errorf("NullLogger.Log should not return error, got: %v", err)
	}
	if err := logger.LogScan("/path", 123, "dev:1"); err != nil {
		t.Errorf("NullLogger.LogScan should not return error, got: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close should not return error, got: %v", err)
	}
	if path := logger.Path(); path != "" {
		t.Errorf("NullLogger.Path should return empty string, got: %s", path)
	}
}

func TestParseEventLevel(t *testing.T) {
	tests := map[string]EventLevel{
		"debug":   LevelDebug,
		"warning": LevelWarning,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseEventLevel(in); got != want {
			t.Errorf("ParseEventLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
