package meta

import (
	"slices"
	"testing"
)

func TestParseCredits(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		main     []string
		featured []string
	}{
		{
			name:   "single artist",
			values: []string{"Radiohead"},
			main:   []string{"Radiohead"},
		},
		{
			name:     "feat marker",
			values:   []string{"X feat. Y"},
			main:     []string{"X"},
			featured: []string{"Y"},
		},
		{
			name:     "ft without a dot",
			values:   []string{"X ft Y"},
			main:     []string{"X"},
			featured: []string{"Y"},
		},
		{
			name:     "parenthesized feat without a dot",
			values:   []string{"X (feat Y)"},
			main:     []string{"X"},
			featured: []string{"Y"},
		},
		{
			name:     "bracketed ft",
			values:   []string{"X [ft. Y & Z]"},
			main:     []string{"X"},
			featured: []string{"Y & Z"},
		},
		{
			name:     "parenthesized featuring with list",
			values:   []string{"Main Act (Featuring A, B)"},
			main:     []string{"Main Act"},
			featured: []string{"A", "B"},
		},
		{
			name:     "ft marker is case-insensitive",
			values:   []string{"Left FT. Right"},
			main:     []string{"Left"},
			featured: []string{"Right"},
		},
		{
			name:   "balanced brackets are part of the name",
			values: []string{"(hed) p.e."},
			main:   []string{"(hed) p.e."},
		},
		{
			name:   "ascii separators",
			values: []string{"A; B / C, D | E"},
			main:   []string{"A", "B", "C", "D", "E"},
		},
		{
			name:   "full-width separators",
			values: []string{"あ；い／う，え｜お・か×き"},
			main:   []string{"あ", "い", "う", "え", "お", "か", "き"},
		},
		{
			name:   "ampersand keeps one artist",
			values: []string{"Simon & Garfunkel"},
			main:   []string{"Simon & Garfunkel"},
		},
		{
			name:   "duplicates keep first casing",
			values: []string{"Daft Punk", "DAFT PUNK; daft punk"},
			main:   []string{"Daft Punk"},
		},
		{
			name:     "featured already credited as main",
			values:   []string{"A feat. a, B"},
			main:     []string{"A"},
			featured: []string{"B"},
		},
		{
			name:   "marker needs a word boundary",
			values: []string{"Daft.Punk"},
			main:   []string{"Daft.Punk"},
		},
		{
			name:   "marker inside a word",
			values: []string{"Swift Left"},
			main:   []string{"Swift Left"},
		},
		{
			name:   "empty items dropped",
			values: []string{" ;; , ", "", "  Solo  "},
			main:   []string{"Solo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCredits(tt.values...)
			if !slices.Equal(got.Main, tt.main) {
				t.Errorf("Main = %q, want %q", got.Main, tt.main)
			}
			if !slices.Equal(got.Featured, tt.featured) {
				t.Errorf("Featured = %q, want %q", got.Featured, tt.featured)
			}
		})
	}
}

func TestCreditsAll(t *testing.T) {
	c := ParseCredits("X feat. Y")
	if got := c.All(); !slices.Equal(got, []string{"X", "Y"}) {
		t.Errorf("All() = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		values []string
		want   []string
	}{
		{[]string{"Rock/Pop", "jazz; ROCK", "Jazz"}, []string{"Rock", "Pop", "jazz"}},
		{[]string{"Album, Compilation"}, []string{"Album", "Compilation"}},
		{[]string{" / ; "}, nil},
	}

	for _, tt := range tests {
		if got := SplitList(tt.values...); !slices.Equal(got, tt.want) {
			t.Errorf("SplitList(%q) = %q, want %q", tt.values, got, tt.want)
		}
	}
}
