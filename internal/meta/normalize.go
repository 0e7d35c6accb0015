package meta

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanString performs basic string cleaning (Unicode, control chars, collapse)
func CleanString(s string) string {
	if s == "" {
		return ""
	}

	// Unicode NFC normalization
	s = norm.NFC.String(s)

	s = removeControlChars(s)

	return collapseWhitespace(s)
}

// collapseWhitespace replaces runs of whitespace with a single space
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// removeControlChars removes non-printable control characters.
// Tabs and newlines survive and are collapsed afterwards.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// dedupeFold drops empty and case-insensitively repeated values, keeping
// the first spelling seen. Names in seen count as already taken.
func dedupeFold(values []string, seen map[string]bool) []string {
	if seen == nil {
		seen = make(map[string]bool, len(values))
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
