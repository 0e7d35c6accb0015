package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/franz/cismu/internal/util"
)

const fingerprintSeconds = 120

// Algorithms understood by fpcalc -algorithm
var algorithms = map[string]int{
	"test1":       1,
	"test2":       2,
	"chromaprint": 2,
	"test3":       3,
	"test4":       4,
	"test5":       5,
}

// ParseAlgorithm maps a configured algorithm name onto fpcalc's number
func ParseAlgorithm(name string) (int, error) {
	if name == "" {
		return algorithms["chromaprint"], nil
	}
	id, ok := algorithms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown fingerprint algorithm %q", util.ErrInvalidConfig, name)
	}
	return id, nil
}

// Chromaprinter is an incremental fingerprinting session
type Chromaprinter interface {
	// Feed consumes interleaved signed 16-bit samples
	Feed(samples []int16) error
	// Finish ends the input and returns the encoded fingerprint
	Finish() (string, error)
	// Close aborts an unfinished session
	Close() error
}

// SessionFunc starts a fingerprinting session for the given stream format
type SessionFunc func(ctx context.Context, sampleRate, channels, algorithm int) (Chromaprinter, error)

// Fingerprinter computes acoustic fingerprints from decoded audio
type Fingerprinter struct {
	decoder    Decoder
	newSession SessionFunc
	algorithm  int
}

// NewFingerprinter creates a fingerprinter that feeds fpcalc
func NewFingerprinter(decoder Decoder, algorithm string) (*Fingerprinter, error) {
	id, err := ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	return &Fingerprinter{decoder: decoder, newSession: NewFpcalcSession, algorithm: id}, nil
}

// WithSession replaces the session factory
func (f *Fingerprinter) WithSession(fn SessionFunc) *Fingerprinter {
	f.newSession = fn
	return f
}

// Fingerprint decodes up to two minutes of path and returns its fingerprint
func (f *Fingerprinter) Fingerprint(ctx context.Context, path string) (string, error) {
	stream, err := f.decoder.Open(ctx, path, fingerprintSeconds*time.Second)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	return f.FingerprintStream(ctx, stream)
}

// FingerprintStream feeds an open stream into a new session
func (f *Fingerprinter) FingerprintStream(ctx context.Context, stream PCMStream) (string, error) {
	rate, channels := stream.SampleRate(), stream.Channels()
	session, err := f.newSession(ctx, rate, channels, f.algorithm)
	if err != nil {
		return "", err
	}

	remaining := fingerprintSeconds * rate * channels
	buf := make([]float32, 4096*channels)
	pcm := make([]int16, len(buf))

	for remaining > 0 {
		n, readErr := stream.Read(buf)
		if n > remaining {
			n = remaining
		}
		if n > 0 {
			for i := 0; i < n; i++ {
				pcm[i] = toInt16(buf[i])
			}
			if err := session.Feed(pcm[:n]); err != nil {
				session.Close()
				return "", fmt.Errorf("failed to feed fingerprint session: %w", err)
			}
			remaining -= n
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			session.Close()
			return "", readErr
		}
	}

	return session.Finish()
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32767)
}

// fpcalcSession streams raw PCM into fpcalc over stdin
type fpcalcSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	w      *bufio.Writer
	stdout bytes.Buffer
	stderr bytes.Buffer
	bytes  []byte
}

// NewFpcalcSession starts `fpcalc -format s16le ... -` reading from stdin
func NewFpcalcSession(ctx context.Context, sampleRate, channels, algorithm int) (Chromaprinter, error) {
	if _, err := exec.LookPath("fpcalc"); err != nil {
		return nil, fmt.Errorf("%w: fpcalc", util.ErrToolMissing)
	}

	s := &fpcalcSession{}
	s.cmd = exec.CommandContext(ctx, "fpcalc",
		"-format", "s16le",
		"-rate", strconv.Itoa(sampleRate),
		"-channels", strconv.Itoa(channels),
		"-length", strconv.Itoa(fingerprintSeconds),
		"-algorithm", strconv.Itoa(algorithm),
		"-",
	)
	s.cmd.Stdout = &s.stdout
	s.cmd.Stderr = &s.stderr

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open fpcalc stdin: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fpcalc: %w", err)
	}
	s.stdin = stdin
	s.w = bufio.NewWriterSize(stdin, 64*1024)
	return s, nil
}

func (s *fpcalcSession) Feed(samples []int16) error {
	if cap(s.bytes) < 2*len(samples) {
		s.bytes = make([]byte, 2*len(samples))
	}
	b := s.bytes[:2*len(samples)]
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	_, err := s.w.Write(b)
	return err
}

func (s *fpcalcSession) Finish() (string, error) {
	flushErr := s.w.Flush()
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return "", fmt.Errorf("fpcalc failed: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	if flushErr != nil {
		return "", fmt.Errorf("failed to write to fpcalc: %w", flushErr)
	}
	return ParseFpcalcOutput(s.stdout.String())
}

func (s *fpcalcSession) Close() error {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// ParseFpcalcOutput extracts the FINGERPRINT= line of fpcalc's output
func ParseFpcalcOutput(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if fp, ok := strings.CutPrefix(line, "FINGERPRINT="); ok && fp != "" {
			return fp, nil
		}
	}
	return "", fmt.Errorf("%w: fpcalc produced no fingerprint", util.ErrCorrupt)
}
