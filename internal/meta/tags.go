package meta

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"go.senan.xyz/taglib"

	"github.com/franz/cismu/internal/util"
)

// Tag sources recorded in the event log
const (
	SourceTaglib  = "taglib"
	SourceTag     = "tag+ffprobe"
	SourceFFprobe = "ffprobe"
)

// TagSet maps upper-case tag keys to their values
type TagSet map[string][]string

// First returns the first non-empty value among keys
func (t TagSet) First(keys ...string) string {
	for _, key := range keys {
		for _, value := range t[key] {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// Values returns every value of the first key that has any
func (t TagSet) Values(keys ...string) []string {
	for _, key := range keys {
		if vs := t[key]; len(vs) > 0 {
			return vs
		}
	}
	return nil
}

func (t TagSet) add(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	key = strings.ToUpper(key)
	t[key] = append(t[key], value)
}

// Picture is an embedded image as read from the file
type Picture struct {
	Data        []byte
	Description string
}

// FileInfo is everything read from one audio file
type FileInfo struct {
	Tags        TagSet
	Duration    time.Duration
	BitrateKbps int
	SampleRate  int
	Channels    int
	Pictures    []Picture
	Source      string
}

// ReadFile reads tags, audio properties and embedded artwork. taglib is
// tried first; if it cannot open the file, tags come from dhowden/tag and
// properties from ffprobe.
func ReadFile(ctx context.Context, path string) (*FileInfo, error) {
	info, err := readTaglib(path)
	if err == nil {
		return info, nil
	}
	util.DebugLog("taglib failed for %s, falling back: %v", path, err)

	return readFallback(ctx, path)
}

func readTaglib(path string) (*FileInfo, error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	props, err := taglib.ReadProperties(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}

	info := &FileInfo{
		Tags:        make(TagSet, len(tags)),
		Duration:    props.Length,
		BitrateKbps: int(props.Bitrate),
		SampleRate:  int(props.SampleRate),
		Channels:    int(props.Channels),
		Source:      SourceTaglib,
	}
	for key, values := range tags {
		for _, v := range values {
			info.Tags.add(key, v)
		}
	}

	if len(props.Images) > 0 {
		data, err := taglib.ReadImage(path)
		if err != nil {
			util.WarnLog("Failed to read embedded image from %s: %v", path, err)
		} else if len(data) > 0 {
			info.Pictures = append(info.Pictures, Picture{Data: data})
		}
	}

	return info, nil
}

func readFallback(ctx context.Context, path string) (*FileInfo, error) {
	probe, probeErr := RunFFprobe(ctx, path)

	info, tagErr := readWithTag(path)
	if tagErr != nil {
		if probeErr != nil {
			return nil, fmt.Errorf("%w: no reader could open the file: %v; %v", util.ErrCorrupt, tagErr, probeErr)
		}
		// ffprobe alone still sees container tags
		info = &FileInfo{Tags: make(TagSet), Source: SourceFFprobe}
		if probe.Format != nil {
			for key, value := range probe.Format.Tags {
				info.Tags.add(key, value)
			}
		}
	}

	if probeErr != nil {
		return nil, fmt.Errorf("failed to read audio properties: %w", probeErr)
	}

	info.Duration = probe.Duration()
	info.BitrateKbps = probe.BitrateKbps()
	if stream := probe.AudioStream(); stream != nil {
		info.SampleRate = stream.SampleRate.Value
		info.Channels = stream.Channels
	}

	return info, nil
}

func readWithTag(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	info := &FileInfo{Tags: make(TagSet), Source: SourceTag}

	// Raw keys differ per container (vorbis comments, ID3 frames, MP4
	// atoms); the normalized accessors below cover the common fields.
	for key, value := range m.Raw() {
		if s, ok := value.(string); ok {
			info.Tags.add(key, s)
		}
	}

	set := func(key, value string) {
		if value != "" {
			info.Tags[key] = []string{strings.TrimSpace(value)}
		}
	}
	set("TITLE", m.Title())
	set("ALBUM", m.Album())
	set("ARTIST", m.Artist())
	set("ALBUMARTIST", m.AlbumArtist())
	set("COMPOSER", m.Composer())
	set("GENRE", m.Genre())

	if track, _ := m.Track(); track > 0 {
		set("TRACKNUMBER", strconv.Itoa(track))
	}
	if disc, _ := m.Disc(); disc > 0 {
		set("DISCNUMBER", strconv.Itoa(disc))
	}
	if info.Tags.First("DATE", "ORIGINALDATE") == "" && m.Year() > 0 {
		set("DATE", strconv.Itoa(m.Year()))
	}

	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		info.Pictures = append(info.Pictures, Picture{Data: pic.Data, Description: pic.Description})
	}

	return info, nil
}
