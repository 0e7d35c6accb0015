package meta

import (
	"regexp"
	"strings"
)

// Credits is an artist field split into names
type Credits struct {
	Main     []string
	Featured []string
}

var (
	// "&" is deliberately absent: "Simon & Garfunkel" is one artist.
	creditSeparators = regexp.MustCompile(`[;/,|；／，｜・×]`)

	featMarker = regexp.MustCompile(`(?i)(?:^|[\s(\[])(?:featuring|feat\.?|ft\.?)\s+`)

	listSeparators = regexp.MustCompile(`[/;,]`)
)

// ParseCredits splits raw artist tag values into names. Anything after a
// feat/ft/featuring marker, with or without a dot, is credited as featured. Names are NFC
// normalized, empties dropped and repeats removed ignoring case.
func ParseCredits(values ...string) Credits {
	var main, featured []string
	for _, raw := range values {
		value := CleanString(raw)
		if value == "" {
			continue
		}

		before, after := value, ""
		if loc := featMarker.FindStringIndex(value); loc != nil {
			before, after = value[:loc[0]], value[loc[1]:]
		}

		main = append(main, splitNames(before)...)
		featured = append(featured, splitNames(after)...)
	}

	seen := make(map[string]bool)
	return Credits{
		Main:     dedupeFold(main, seen),
		Featured: dedupeFold(featured, seen),
	}
}

// All returns main and featured names together
func (c Credits) All() []string {
	out := make([]string, 0, len(c.Main)+len(c.Featured))
	out = append(out, c.Main...)
	return append(out, c.Featured...)
}

func splitNames(s string) []string {
	var out []string
	for _, part := range creditSeparators.Split(s, -1) {
		name := trimUnbalanced(strings.TrimSpace(part))
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// trimUnbalanced drops brackets left open or closed by cutting at a feat
// marker, so "(hed) p.e." survives but "Y)" becomes "Y".
func trimUnbalanced(name string) string {
	for _, pair := range [...][2]byte{{'(', ')'}, {'[', ']'}} {
		open, closing := string(pair[0]), string(pair[1])
		for strings.HasSuffix(name, closing) && strings.Count(name, closing) > strings.Count(name, open) {
			name = strings.TrimSpace(strings.TrimSuffix(name, closing))
		}
		for strings.Count(name, open) > strings.Count(name, closing) {
			if strings.HasPrefix(name, open) {
				name = strings.TrimSpace(strings.TrimPrefix(name, open))
			} else if strings.HasSuffix(name, open) {
				name = strings.TrimSpace(strings.TrimSuffix(name, open))
			} else {
				break
			}
		}
	}
	return name
}

// SplitList splits multi-valued genre and release type tags on "/ ; ,"
func SplitList(values ...string) []string {
	var out []string
	for _, raw := range values {
		for _, part := range listSeparators.Split(CleanString(raw), -1) {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return dedupeFold(out, nil)
}
