package model

import "strings"

// ReleaseType classifies a release. Recognized types are the constants below;
// anything else is kept as Custom text.
type ReleaseType struct {
	Kind   ReleaseKind
	Custom string
}

// ReleaseKind is the recognized release category
type ReleaseKind string

const (
	KindAlbum       ReleaseKind = "Album"
	KindEP          ReleaseKind = "EP"
	KindSingle      ReleaseKind = "Single"
	KindCompilation ReleaseKind = "Compilation"
	KindMix         ReleaseKind = "Mix"
	KindCustom      ReleaseKind = "Custom"
)

// FormatOther is persisted when no recognized type is present
const FormatOther = "Other"

var releaseTypeAliases = map[string]ReleaseKind{
	"album": KindAlbum, "lp": KindAlbum, "longplay": KindAlbum, "fulllength": KindAlbum,
	"single": KindSingle, "sencillo": KindSingle, "onesidedsingle": KindSingle, "1tracksingle": KindSingle,
	"ep": KindEP, "extendedplay": KindEP, "minialbum": KindEP, "minilp": KindEP,
	"compilation": KindCompilation, "comp": KindCompilation, "anthology": KindCompilation,
	"bestof": KindCompilation, "greatesthits": KindCompilation, "variousartists": KindCompilation, "va": KindCompilation,
	"remix": KindMix, "djmix": KindMix, "mixtape": KindMix, "mix": KindMix,
	"continuousmix": KindMix, "mixed": KindMix,
}

var releaseTypeStripper = strings.NewReplacer(" ", "", "-", "", "_", "", ".", "", "/", "", "\\", "")

// ParseReleaseType maps a tag value onto a ReleaseType
func ParseReleaseType(s string) ReleaseType {
	key := releaseTypeStripper.Replace(strings.ToLower(strings.TrimSpace(s)))
	if kind, ok := releaseTypeAliases[key]; ok {
		return ReleaseType{Kind: kind}
	}
	return ReleaseType{Kind: KindCustom, Custom: strings.TrimSpace(s)}
}

func (r ReleaseType) String() string {
	if r.Kind == KindCustom {
		return r.Custom
	}
	return string(r.Kind)
}

// Recognized reports whether the type is one of the fixed categories
func (r ReleaseType) Recognized() bool {
	return r.Kind != KindCustom
}

// ReleaseFormat joins the recognized types with ";" in first-seen order,
// without duplicates. Custom types do not contribute. Empty gives "Other".
func ReleaseFormat(types []ReleaseType) string {
	seen := make(map[ReleaseKind]bool, len(types))
	parts := make([]string, 0, len(types))
	for _, t := range types {
		if !t.Recognized() || seen[t.Kind] {
			continue
		}
		seen[t.Kind] = true
		parts = append(parts, string(t.Kind))
	}
	if len(parts) == 0 {
		return FormatOther
	}
	return strings.Join(parts, ";")
}
