package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/franz/cismu/internal/util"
)

// FFprobeInfo represents the output from ffprobe
type FFprobeInfo struct {
	Streams []FFprobeStream `json:"streams"`
	Format  *FFprobeFormat  `json:"format"`
}

// IntOrString can unmarshal both integers and strings from JSON
type IntOrString struct {
	Value int
}

// UnmarshalJSON accepts 16, "16", "" and "N/A"; unparsable strings yield 0
func (i *IntOrString) UnmarshalJSON(data []byte) error {
	var intVal int
	if err := json.Unmarshal(data, &intVal); err == nil {
		i.Value = intVal
		return nil
	}

	var strVal string
	if err := json.Unmarshal(data, &strVal); err != nil {
		return err
	}

	parsed, err := strconv.Atoi(strVal)
	if err != nil {
		i.Value = 0
		return nil
	}
	i.Value = parsed
	return nil
}

// FFprobeStream represents one stream of the container
type FFprobeStream struct {
	Index         int         `json:"index"`
	CodecName     string      `json:"codec_name"`
	CodecType     string      `json:"codec_type"`
	SampleRate    IntOrString `json:"sample_rate"`
	Channels      int         `json:"channels"`
	BitsPerSample IntOrString `json:"bits_per_sample"`
	Duration      string      `json:"duration"`
	BitRate       string      `json:"bit_rate"`
}

// FFprobeFormat represents container format metadata
type FFprobeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// AudioStream returns the first audio stream, or nil
func (info *FFprobeInfo) AudioStream() *FFprobeStream {
	for i := range info.Streams {
		if info.Streams[i].CodecType == "audio" {
			return &info.Streams[i]
		}
	}
	return nil
}

// Duration returns the container duration, falling back to the audio stream's
func (info *FFprobeInfo) Duration() time.Duration {
	raw := ""
	if info.Format != nil {
		raw = info.Format.Duration
	}
	if raw == "" {
		if s := info.AudioStream(); s != nil {
			raw = s.Duration
		}
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// BitrateKbps returns the overall bitrate in kbit/s
func (info *FFprobeInfo) BitrateKbps() int {
	raw := ""
	if info.Format != nil {
		raw = info.Format.BitRate
	}
	if raw == "" {
		if s := info.AudioStream(); s != nil {
			raw = s.BitRate
		}
	}
	bps, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return bps / 1000
}

// RunFFprobe executes ffprobe and parses the JSON output
func RunFFprobe(ctx context.Context, path string) (*FFprobeInfo, error) {
	if !CheckFFprobeAvailable() {
		return nil, fmt.Errorf("%w: ffprobe", util.ErrToolMissing)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: ffprobe failed: %s", util.ErrCorrupt, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	return ParseFFprobe(output)
}

// ParseFFprobe decodes ffprobe's JSON output
func ParseFFprobe(output []byte) (*FFprobeInfo, error) {
	var info FFprobeInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if info.AudioStream() == nil {
		return nil, fmt.Errorf("%w: no audio stream", util.ErrUnsupported)
	}
	return &info, nil
}

// CheckFFprobeAvailable checks if ffprobe is available in PATH
func CheckFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
