package meta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/scan"
	"github.com/franz/cismu/internal/util"
)

// BuildTrack turns the tags of one file into an unresolved track. Files
// without a title or shorter than the extension's minimum are rejected.
func BuildTrack(file scan.TrackFile, info *FileInfo, rule config.ExtensionRule) (*model.UnresolvedTrack, error) {
	if rule.MinDuration > 0 && info.Duration < rule.MinDuration {
		return nil, fmt.Errorf("%w: %s is %v, minimum %v", util.ErrTooShort, file.Path, info.Duration, rule.MinDuration)
	}

	tags := info.Tags
	title := CleanString(tags.First("TITLE"))
	if title == "" {
		return nil, fmt.Errorf("%w: %s", util.ErrNoTitle, file.Path)
	}

	track := &model.UnresolvedTrack{
		Path:         file.Path,
		FileSize:     file.Size,
		LastModified: file.ModTime,
		Duration:     info.Duration,
		BitrateKbps:  info.BitrateKbps,
		SampleRate:   info.SampleRate,
		Channels:     info.Channels,

		Title:       title,
		TrackNumber: parseIndex(tags.First("TRACKNUMBER", "TRACK", "TRCK")),
		DiscNumber:  parseIndex(tags.First("DISCNUMBER", "DISC", "TPOS")),
		Genres:      SplitList(tags.Values("GENRE")...),

		ReleaseTitle:  CleanString(tags.First("ALBUM")),
		ReleaseDate:   CleanString(tags.First("ORIGINALDATE", "DATE", "YEAR")),
		RecordLabel:   CleanString(tags.First("LABEL", "PUBLISHER", "ORGANIZATION")),
		CatalogNumber: CleanString(tags.First("CATALOGNUMBER")),
	}

	for _, rt := range SplitList(tags.Values("RELEASETYPE", "MUSICBRAINZ_ALBUMTYPE")...) {
		track.ReleaseTypes = append(track.ReleaseTypes, model.ParseReleaseType(rt))
	}

	if rating, ok := parseRating(tags.First("RATING", "FMPS_RATING")); ok {
		track.Rating = &rating
	}

	artists := ParseCredits(tags.Values("ARTIST", "ARTISTS")...)
	track.Performers = artists.Main
	track.Featured = artists.Featured
	track.ReleaseArtists = ParseCredits(tags.Values("ALBUMARTIST", "ALBUM ARTIST")...).Main
	if len(track.ReleaseArtists) == 0 {
		track.ReleaseArtists = append([]string(nil), track.Performers...)
	}
	track.Composers = ParseCredits(tags.Values("COMPOSER")...).All()
	track.Producers = ParseCredits(tags.Values("PRODUCER")...).All()

	return track, nil
}

// parseIndex reads "3" or "3/12" as 3. Anything else is 0.
func parseIndex(s string) int {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseRating(s string) (model.Rating, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		util.DebugLog("Ignoring unparsable rating %q", s)
		return 0, false
	}
	r, err := model.ParseTagRating(v)
	if err != nil {
		util.DebugLog("Ignoring rating: %v", err)
		return 0, false
	}
	return r, true
}
