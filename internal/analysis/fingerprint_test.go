package analysis

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/franz/cismu/internal/util"
)

type fakeSession struct {
	rate, channels, algorithm int
	fed                       []int16
	feedErr                   error
	finished, closed          bool
}

func (s *fakeSession) Feed(samples []int16) error {
	if s.feedErr != nil {
		return s.feedErr
	}
	s.fed = append(s.fed, samples...)
	return nil
}

func (s *fakeSession) Finish() (string, error) {
	s.finished = true
	return "AQADtFake", nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func newTestFingerprinter(t *testing.T, dec Decoder, algorithm string, session *fakeSession) *Fingerprinter {
	t.Helper()
	fp, err := NewFingerprinter(dec, algorithm)
	if err != nil {
		t.Fatalf("NewFingerprinter failed: %v", err)
	}
	return fp.WithSession(func(ctx context.Context, rate, channels, algorithm int) (Chromaprinter, error) {
		session.rate, session.channels, session.algorithm = rate, channels, algorithm
		return session, nil
	})
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"", 2},
		{"chromaprint", 2},
		{"TEST1", 1},
		{"test2", 2},
		{"test5", 5},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.name)
		if err != nil || got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %d, %v; want %d", tt.name, got, err, tt.want)
		}
	}

	if _, err := ParseAlgorithm("test9"); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for test9, got %v", err)
	}
}

func TestFingerprintStream(t *testing.T) {
	session := &fakeSession{}
	fp := newTestFingerprinter(t, &memDecoder{}, "test3", session)

	samples := []float32{0, 0.5, -0.5, 1.5, -2, 1}
	result, err := fp.FingerprintStream(context.Background(), newMemoryStream(samples, 11025, 2))
	if err != nil {
		t.Fatalf("FingerprintStream failed: %v", err)
	}

	if result != "AQADtFake" {
		t.Errorf("fingerprint = %q", result)
	}
	if session.rate != 11025 || session.channels != 2 || session.algorithm != 3 {
		t.Errorf("session opened with %d Hz, %d ch, algorithm %d", session.rate, session.channels, session.algorithm)
	}
	// out of range samples clip
	if want := []int16{0, 16383, -16383, 32767, -32768, 32767}; !slices.Equal(session.fed, want) {
		t.Errorf("fed %v, want %v", session.fed, want)
	}
	if !session.finished || session.closed {
		t.Errorf("expected finish without close, got finished=%v closed=%v", session.finished, session.closed)
	}
}

func TestFingerprintStream_LimitsToTwoMinutes(t *testing.T) {
	session := &fakeSession{}
	fp := newTestFingerprinter(t, &memDecoder{}, "", session)

	const rate = 100
	if _, err := fp.FingerprintStream(context.Background(), newMemoryStream(make([]float32, 130*rate), rate, 1)); err != nil {
		t.Fatalf("FingerprintStream failed: %v", err)
	}
	if len(session.fed) != 120*rate {
		t.Errorf("fed %d samples, want %d", len(session.fed), 120*rate)
	}
}

func TestFingerprintStream_Errors(t *testing.T) {
	boom := errors.New("pipe closed")

	tests := []struct {
		name     string
		session  *fakeSession
		stream   PCMStream
		wantErr  error
		finished bool
	}{
		{
			name:    "feed error aborts",
			session: &fakeSession{feedErr: boom},
			stream:  newMemoryStream([]float32{0.1, 0.2}, 8000, 1),
			wantErr: boom,
		},
		{
			name:    "decode error aborts",
			session: &fakeSession{},
			stream:  &errStream{memoryStream: memoryStream{rate: 8000, channels: 1}, err: util.ErrCorrupt},
			wantErr: util.ErrCorrupt,
		},
		{
			name:     "unexpected EOF finalizes",
			session:  &fakeSession{},
			stream:   &errStream{memoryStream: memoryStream{rate: 8000, channels: 1}, err: io.ErrUnexpectedEOF},
			finished: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newTestFingerprinter(t, &memDecoder{}, "", tt.session)

			result, err := fp.FingerprintStream(context.Background(), tt.stream)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				if !tt.session.closed || tt.session.finished {
					t.Errorf("aborted session should be closed, not finished")
				}
				return
			}
			if err != nil || result != "AQADtFake" {
				t.Errorf("expected a fingerprint, got %q, %v", result, err)
			}
			if tt.session.finished != tt.finished {
				t.Errorf("finished = %v", tt.session.finished)
			}
		})
	}
}

func TestFingerprint_OpensWithTwoMinuteLimit(t *testing.T) {
	dec := &memDecoder{stream: newMemoryStream([]float32{0.25}, 8000, 1)}
	fp := newTestFingerprinter(t, dec, "", &fakeSession{})

	if _, err := fp.Fingerprint(context.Background(), "/music/song.ogg"); err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if dec.gotPath != "/music/song.ogg" || dec.gotMax.Seconds() != 120 {
		t.Errorf("decoder opened %q for %v", dec.gotPath, dec.gotMax)
	}
}

func TestParseFpcalcOutput(t *testing.T) {
	fp, err := ParseFpcalcOutput("DURATION=213\nFINGERPRINT=AQADtEmUaEmS\n")
	if err != nil || fp != "AQADtEmUaEmS" {
		t.Errorf("ParseFpcalcOutput = %q, %v", fp, err)
	}

	if _, err := ParseFpcalcOutput("DURATION=213\n"); !errors.Is(err, util.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt without a fingerprint line, got %v", err)
	}
}
