package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType represents the type of event
type EventType string

const (
	EventScan        EventType = "scan"
	EventMeta        EventType = "meta"
	EventResolve     EventType = "resolve"
	EventFingerprint EventType = "fingerprint"
	EventVerify      EventType = "verify"
	EventMerge       EventType = "merge"
	EventQuality     EventType = "quality"
	EventSkip        EventType = "skip"
	EventError       EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseEventLevel maps a config string to an EventLevel, defaulting to info
func ParseEventLevel(s string) EventLevel {
	l := EventLevel(s)
	if _, ok := levelPriority[l]; ok {
		return l
	}
	return LevelInfo
}

// Event represents a single event in the pipeline
type Event struct {
	Timestamp    time.Time         `json:"ts"`
	RunID        string            `json:"run_id"`
	Level        EventLevel        `json:"level"`
	Event        EventType         `json:"event"`
	Path         string            `json:"path,omitempty"`
	Device       string            `json:"device,omitempty"`
	TrackID      int64             `json:"track_id,omitempty"`
	SongID       int64             `json:"song_id,omitempty"`
	ReleaseID    int64             `json:"release_id,omitempty"`
	AcoustID     string            `json:"acoustid,omitempty"`
	QualityScore float64           `json:"quality_score,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	SizeBytes    int64             `json:"size_bytes,omitempty"`
	Duration     int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error        string            `json:"error,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events as JSON lines to a size-rotated file.
// A nil *EventLogger is valid and discards everything.
type EventLogger struct {
	out      *lumberjack.Logger
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level.
// Every logger gets a fresh run id so events of concurrent or successive
// runs sharing the same file can be told apart.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, "events.jsonl")
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	return &EventLogger{
		out:      out,
		encoder:  json.NewEncoder(out),
		path:     path,
		runID:    uuid.NewString(),
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.out == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogScan logs an accepted file
func (l *EventLogger) LogScan(path string, sizeBytes int64, device string) error {
	return l.Log(&Event{
		Level:     LevelDebug,
		Event:     EventScan,
		Path:      path,
		Device:    device,
		SizeBytes: sizeBytes,
	})
}

// LogSkip logs a file rejected by a filter
func (l *EventLogger) LogSkip(path, reason string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventSkip,
		Path:   path,
		Reason: reason,
	})
}

// LogMeta logs a metadata extraction event
func (l *EventLogger) LogMeta(path, source string, duration time.Duration, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventMeta,
		Path:     path,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"source": source,
		},
	})
}

// LogResolve logs the ids a track resolved into
func (l *EventLogger) LogResolve(path string, trackID, songID, releaseID int64) error {
	return l.Log(&Event{
		Level:     LevelInfo,
		Event:     EventResolve,
		Path:      path,
		TrackID:   trackID,
		SongID:    songID,
		ReleaseID: releaseID,
	})
}

// LogFingerprint logs a fingerprinting outcome
func (l *EventLogger) LogFingerprint(trackID int64, path string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventFingerprint,
		TrackID: trackID,
		Path:    path,
		Error:   errMsg,
	})
}

// LogVerify logs an AcoustID lookup result
func (l *EventLogger) LogVerify(trackID int64, acoustID string, score float64, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:        level,
		Event:        EventVerify,
		TrackID:      trackID,
		AcoustID:     acoustID,
		QualityScore: score,
		Error:        errMsg,
	})
}

// LogMerge logs a song collapsing into its master
func (l *EventLogger) LogMerge(trackID, fromSongID, masterSongID int64, acoustID string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventMerge,
		TrackID:  trackID,
		SongID:   masterSongID,
		AcoustID: acoustID,
		Extra: map[string]string{
			"merged_song_id": fmt.Sprintf("%d", fromSongID),
		},
	})
}

// LogQuality logs a spectral quality result
func (l *EventLogger) LogQuality(trackID int64, path string, score float64, assessment string) error {
	return l.Log(&Event{
		Level:        LevelInfo,
		Event:        EventQuality,
		TrackID:      trackID,
		Path:         path,
		QualityScore: score,
		Reason:       assessment,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.out.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the id stamped on every event of this logger
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
