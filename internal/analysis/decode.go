// Package analysis decodes audio to PCM and derives spectral quality scores
// and acoustic fingerprints from it.
package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mewkiz/flac"

	"github.com/franz/cismu/internal/meta"
	"github.com/franz/cismu/internal/util"
)

// PCMStream yields interleaved float32 samples in [-1, 1]
type PCMStream interface {
	SampleRate() int
	Channels() int
	// Read fills buf with whole frames and returns the number of samples
	// written. It returns io.EOF once the stream is exhausted.
	Read(buf []float32) (int, error)
	Close() error
}

// Decoder opens a file as a PCM stream. maxDuration limits how much audio
// is decoded; zero means the whole file.
type Decoder interface {
	Open(ctx context.Context, path string, maxDuration time.Duration) (PCMStream, error)
}

// AutoDecoder decodes FLAC in-process and everything else through ffmpeg
type AutoDecoder struct {
	FLAC   Decoder
	FFmpeg Decoder
}

// NewAutoDecoder returns the default decoder
func NewAutoDecoder() *AutoDecoder {
	return &AutoDecoder{FLAC: FLACDecoder{}, FFmpeg: FFmpegDecoder{}}
}

func (d *AutoDecoder) Open(ctx context.Context, path string, maxDuration time.Duration) (PCMStream, error) {
	if strings.EqualFold(filepath.Ext(path), ".flac") {
		return d.FLAC.Open(ctx, path, maxDuration)
	}
	return d.FFmpeg.Open(ctx, path, maxDuration)
}

// FFmpegDecoder pipes f32le samples out of an ffmpeg subprocess
type FFmpegDecoder struct{}

func (FFmpegDecoder) Open(ctx context.Context, path string, maxDuration time.Duration) (PCMStream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg", util.ErrToolMissing)
	}

	info, err := meta.RunFFprobe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}
	stream := info.AudioStream()
	rate, channels := stream.SampleRate.Value, stream.Channels
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %s reports %d Hz, %d channels", util.ErrUnsupported, path, rate, channels)
	}

	args := []string{"-hide_banner", "-v", "error", "-i", path}
	if maxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(maxDuration.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-vn",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"-f", "f32le",
		"pipe:1",
	)

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &ffmpegStream{
		rawStream: rawStream{r: bufio.NewReaderSize(stdout, 64*1024), rate: rate, channels: channels},
		cmd:       cmd,
		cancel:    cancel,
		stderr:    &stderr,
	}, nil
}

type ffmpegStream struct {
	rawStream
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer
	done   bool
}

func (s *ffmpegStream) Read(buf []float32) (int, error) {
	n, err := s.rawStream.Read(buf)
	if err == io.EOF && !s.done {
		s.done = true
		if werr := s.cmd.Wait(); werr != nil {
			return n, fmt.Errorf("%w: ffmpeg: %s", util.ErrCorrupt, strings.TrimSpace(s.stderr.String()))
		}
	}
	return n, err
}

func (s *ffmpegStream) Close() error {
	s.cancel()
	if !s.done {
		s.done = true
		// Killed on purpose; the exit status carries no information
		_ = s.cmd.Wait()
	}
	return nil
}

// rawStream decodes little-endian float32 samples from a reader
type rawStream struct {
	r        io.Reader
	rate     int
	channels int
	scratch  []byte
	eof      bool
}

func (s *rawStream) SampleRate() int { return s.rate }
func (s *rawStream) Channels() int   { return s.channels }
func (s *rawStream) Close() error    { return nil }

func (s *rawStream) Read(buf []float32) (int, error) {
	if s.eof {
		return 0, io.EOF
	}
	want := len(buf) - len(buf)%s.channels
	if want == 0 {
		return 0, nil
	}
	if cap(s.scratch) < 4*want {
		s.scratch = make([]byte, 4*want)
	}
	raw := s.scratch[:4*want]

	n, err := io.ReadFull(s.r, raw)
	frameBytes := 4 * s.channels
	n -= n % frameBytes
	for i := 0; i < n/4; i++ {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}

	switch {
	case err == nil:
		return n / 4, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		if n == 0 {
			return 0, io.EOF
		}
		return n / 4, nil
	default:
		return n / 4, fmt.Errorf("failed to read pcm: %w", err)
	}
}

// FLACDecoder decodes FLAC files in-process
type FLACDecoder struct{}

func (FLACDecoder) Open(ctx context.Context, path string, maxDuration time.Duration) (PCMStream, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open flac: %v", util.ErrCorrupt, err)
	}

	info := stream.Info
	if info.SampleRate == 0 || info.NChannels == 0 || info.BitsPerSample == 0 {
		stream.Close()
		return nil, fmt.Errorf("%w: invalid flac stream info", util.ErrCorrupt)
	}

	s := &flacStream{
		ctx:      ctx,
		stream:   stream,
		rate:     int(info.SampleRate),
		channels: int(info.NChannels),
		scale:    1 / float32(int64(1)<<(info.BitsPerSample-1)),
	}
	if maxDuration > 0 {
		s.remaining = int64(maxDuration.Seconds() * float64(s.rate))
	} else {
		s.remaining = math.MaxInt64
	}
	return s, nil
}

type flacStream struct {
	ctx       context.Context
	stream    *flac.Stream
	rate      int
	channels  int
	scale     float32
	pending   []float32
	remaining int64 // frames left before maxDuration
}

func (s *flacStream) SampleRate() int { return s.rate }
func (s *flacStream) Channels() int   { return s.channels }
func (s *flacStream) Close() error    { return s.stream.Close() }

func (s *flacStream) Read(buf []float32) (int, error) {
	for len(s.pending) == 0 {
		if s.remaining <= 0 {
			return 0, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return 0, err
		}
		frame, err := s.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("%w: failed to decode flac frame: %v", util.ErrCorrupt, err)
		}
		if len(frame.Subframes) < s.channels {
			return 0, fmt.Errorf("%w: flac frame has %d subframes, want %d", util.ErrCorrupt, len(frame.Subframes), s.channels)
		}

		frames := int64(len(frame.Subframes[0].Samples))
		if frames > s.remaining {
			frames = s.remaining
		}
		s.remaining -= frames
		for i := int64(0); i < frames; i++ {
			for ch := 0; ch < s.channels; ch++ {
				s.pending = append(s.pending, float32(frame.Subframes[ch].Samples[i])*s.scale)
			}
		}
	}

	n := len(buf) - len(buf)%s.channels
	if n > len(s.pending) {
		n = len(s.pending)
	}
	copy(buf, s.pending[:n])
	s.pending = s.pending[n:]
	return n, nil
}
