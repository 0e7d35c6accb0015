package model

import "strings"

// Genre is one of the top-level Discogs genres
type Genre string

const (
	GenreRock                Genre = "Rock"
	GenreElectronic          Genre = "Electronic"
	GenrePop                 Genre = "Pop"
	GenreFolkWorldAndCountry Genre = "Folk, World, & Country"
	GenreJazz                Genre = "Jazz"
	GenreFunkSoul            Genre = "Funk / Soul"
	GenreClassical           Genre = "Classical"
	GenreHipHop              Genre = "Hip Hop"
	GenreLatin               Genre = "Latin"
	GenreStageAndScreen      Genre = "Stage & Screen"
	GenreReggae              Genre = "Reggae"
	GenreBlues               Genre = "Blues"
	GenreNonMusic            Genre = "Non-Music"
	GenreChildrens           Genre = "Children's"
	GenreBrassAndMilitary    Genre = "Brass & Military"
)

var genreAliases = map[string]Genre{
	"rock":                GenreRock,
	"electronic":          GenreElectronic,
	"pop":                 GenrePop,
	"folkworldandcountry": GenreFolkWorldAndCountry,
	"folkworldcountry":    GenreFolkWorldAndCountry,
	"jazz":                GenreJazz,
	"funksoul":            GenreFunkSoul,
	"classical":           GenreClassical,
	"hiphop":              GenreHipHop,
	"latin":               GenreLatin,
	"stageandscreen":      GenreStageAndScreen,
	"stagescreen":         GenreStageAndScreen,
	"reggae":              GenreReggae,
	"blues":               GenreBlues,
	"nonmusic":            GenreNonMusic,
	"childrens":           GenreChildrens,
	"children":            GenreChildrens,
	"brassandmilitary":    GenreBrassAndMilitary,
	"brassmilitary":       GenreBrassAndMilitary,
}

var genreStripper = strings.NewReplacer("-", "", " ", "", ",", "", "&", "", "/", "", "'", "")

// ParseGenre recognizes a Discogs genre, ignoring case and punctuation
func ParseGenre(s string) (Genre, bool) {
	g, ok := genreAliases[genreStripper.Replace(strings.ToLower(strings.TrimSpace(s)))]
	return g, ok
}

// Style is a Discogs style. Known styles use their canonical spelling;
// anything else is carried verbatim with Custom set.
type Style struct {
	Name   string
	Custom bool
}

var knownStyles = map[string]string{
	"poprock":         "Pop Rock",
	"house":           "House",
	"vocal":           "Vocal",
	"experimental":    "Experimental",
	"punk":            "Punk",
	"alternativerock": "Alternative Rock",
	"synthpop":        "Synth-pop",
	"techno":          "Techno",
	"indierock":       "Indie Rock",
	"ambient":         "Ambient",
	"soul":            "Soul",
	"disco":           "Disco",
	"hardcore":        "Hardcore",
	"folk":            "Folk",
	"ballad":          "Ballad",
	"country":         "Country",
	"hardrock":        "Hard Rock",
	"electro":         "Electro",
	"rock&roll":       "Rock & Roll",
	"rockandroll":     "Rock & Roll",
	"chanson":         "Chanson",
	"romantic":        "Romantic",
	"trance":          "Trance",
	"heavymetal":      "Heavy Metal",
	"psychedelicrock": "Psychedelic Rock",
	"folkrock":        "Folk Rock",
	"jpop":            "J-pop",
	"vocaloid":        "Vocaloid",
}

var styleStripper = strings.NewReplacer("-", "", " ", "")

// ParseStyle never fails: unknown names become custom styles
func ParseStyle(s string) Style {
	trimmed := strings.TrimSpace(s)
	if name, ok := knownStyles[styleStripper.Replace(strings.ToLower(trimmed))]; ok {
		return Style{Name: name}
	}
	return Style{Name: trimmed, Custom: true}
}

func (s Style) String() string {
	return s.Name
}

// GenreTag is a classified genre tag value, ready to persist
type GenreTag struct {
	Name string
	Kind string // "genre" or "style"
}

// ClassifyGenres turns raw genre tag values into genres and styles,
// dropping empties and case-insensitive duplicates (first casing wins).
func ClassifyGenres(raw []string) []GenreTag {
	seen := make(map[string]bool, len(raw))
	tags := make([]GenreTag, 0, len(raw))
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		var tag GenreTag
		if g, ok := ParseGenre(value); ok {
			tag = GenreTag{Name: string(g), Kind: "genre"}
		} else {
			tag = GenreTag{Name: ParseStyle(value).Name, Kind: "style"}
		}
		key := strings.ToLower(tag.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}
