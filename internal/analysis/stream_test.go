package analysis

import (
	"context"
	"io"
	"time"
)

// memoryStream serves already decoded interleaved samples
type memoryStream struct {
	samples  []float32
	rate     int
	channels int
}

func newMemoryStream(samples []float32, rate, channels int) *memoryStream {
	return &memoryStream{samples: samples, rate: rate, channels: channels}
}

func (m *memoryStream) SampleRate() int { return m.rate }
func (m *memoryStream) Channels() int   { return m.channels }
func (m *memoryStream) Close() error    { return nil }

func (m *memoryStream) Read(buf []float32) (int, error) {
	if len(m.samples) == 0 {
		return 0, io.EOF
	}
	n := min(len(buf)-len(buf)%m.channels, len(m.samples))
	copy(buf, m.samples[:n])
	m.samples = m.samples[n:]
	return n, nil
}

// errStream fails every read with err
type errStream struct {
	memoryStream
	err error
}

func (e *errStream) Read(buf []float32) (int, error) {
	return 0, e.err
}

// memDecoder hands out a prepared stream and records the call
type memDecoder struct {
	stream  PCMStream
	gotPath string
	gotMax  time.Duration
}

func (d *memDecoder) Open(ctx context.Context, path string, maxDuration time.Duration) (PCMStream, error) {
	d.gotPath, d.gotMax = path, maxDuration
	return d.stream, nil
}
