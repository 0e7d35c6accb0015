package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/cismu/internal/meta"
	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Browse the indexed library",
	Long: `Browse the catalog stored in the library database.

  cismu show artists            list every artist
  cismu show releases <artist>  list the releases of an artist
  cismu show release <id>       show a release with its tracks
  cismu show song <id>          show a song with its credits`,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.AddCommand(&cobra.Command{
		Use:   "artists",
		Short: "List every artist",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, st *store.Store, w io.Writer, _ int64) error {
			return showArtists(ctx, st, w)
		}),
	})
	showCmd.AddCommand(&cobra.Command{
		Use:   "releases <artist-id>",
		Short: "List the releases of an artist",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(showReleases),
	})
	showCmd.AddCommand(&cobra.Command{
		Use:   "release <id>",
		Short: "Show a release and its tracks",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(showRelease),
	})
	showCmd.AddCommand(&cobra.Command{
		Use:   "song <id>",
		Short: "Show a song with its credits and genres",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(showSong),
	})
}

type showFunc func(ctx context.Context, st *store.Store, w io.Writer, id int64) error

// withStore opens the database and parses the id argument, if any
func withStore(fn showFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var id int64
		if len(args) > 0 {
			var err error
			id, err = strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		return fn(cmd.Context(), st, cmd.OutOrStdout(), id)
	}
}

func showArtists(ctx context.Context, st *store.Store, w io.Writer) error {
	artists, err := st.GetAllArtists(ctx)
	if err != nil {
		return err
	}
	if len(artists) == 0 {
		util.WarnLog("The library is empty. Run 'cismu scan' first.")
		return nil
	}

	for _, a := range artists {
		fmt.Fprintf(w, "%6d  %s\n", a.ID, a.Name)
	}
	fmt.Fprintf(w, "\n%s artists\n", humanize.Comma(int64(len(artists))))
	return nil
}

func showReleases(ctx context.Context, st *store.Store, w io.Writer, artistID int64) error {
	artist, err := st.GetArtist(ctx, artistID)
	if err != nil {
		return err
	}
	if artist == nil {
		return fmt.Errorf("%w: artist %d", util.ErrNotFound, artistID)
	}

	releases, err := st.GetReleasesForArtist(ctx, artistID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\n\n", artist.Name)
	if len(releases) == 0 {
		fmt.Fprintln(w, "  (no releases as main artist)")
		return nil
	}
	for _, r := range releases {
		year := r.ReleaseDate
		if len(year) > 4 {
			year = year[:4]
		}
		if year == "" {
			year = "----"
		}
		fmt.Fprintf(w, "%6d  %s  %s [%s]\n", r.ID, year, r.Title, r.Format)
	}
	return nil
}

func showRelease(ctx context.Context, st *store.Store, w io.Writer, id int64) error {
	r, err := st.GetReleaseDetails(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: release %d", util.ErrNotFound, id)
	}

	names := make([]string, 0, len(r.MainArtists))
	for _, a := range r.MainArtists {
		names = append(names, a.Name)
	}
	fmt.Fprintf(w, "%s - %s\n", strings.Join(names, ", "), r.Title)
	fmt.Fprintf(w, "Format:  %s\n", r.Format)
	if r.ReleaseDate != "" {
		fmt.Fprintf(w, "Date:    %s\n", r.ReleaseDate)
	}
	if r.Label != "" || r.CatalogNumber != "" {
		fmt.Fprintf(w, "Label:   %s %s\n", r.Label, r.CatalogNumber)
	}
	if dir := viper.GetString("cover_art_dir"); r.ArtworkHash != "" && dir != "" {
		fmt.Fprintf(w, "Artwork: %s\n", meta.CoverPath(dir, r.ArtworkHash))
	}
	fmt.Fprintln(w)

	var total time.Duration
	var size int64
	for _, t := range r.Tracks {
		d := time.Duration(t.DurationSeconds * float64(time.Second)).Round(time.Second)
		total += d
		size += t.SizeBytes

		quality := "-"
		if t.QualityScore != nil {
			quality = fmt.Sprintf("%.0f", *t.QualityScore)
		}
		fp := " "
		if t.HasFingerprint {
			fp = "*"
		}
		fmt.Fprintf(w, "%2d.%02d %s %-40s %8s %5d kbps  Q:%s\n",
			t.DiscNumber, t.TrackNumber, fp, trackTitle(t), formatDuration(d), t.BitrateKbps, quality)
	}
	fmt.Fprintf(w, "\n%d tracks, %s, %s\n", len(r.Tracks), formatDuration(total), humanize.IBytes(uint64(size)))
	return nil
}

func showSong(ctx context.Context, st *store.Store, w io.Writer, id int64) error {
	song, err := st.GetSong(ctx, id)
	if err != nil {
		return err
	}
	if song == nil {
		return fmt.Errorf("%w: song %d", util.ErrNotFound, id)
	}

	fmt.Fprintf(w, "%s\n", song.Title)
	if song.AcoustID != "" {
		fmt.Fprintf(w, "AcoustID: %s\n", song.AcoustID)
	}
	if song.Rating.Rated {
		fmt.Fprintf(w, "Rating:   %s\n", song.Rating)
	}
	if len(song.Genres) > 0 {
		fmt.Fprintf(w, "Genres:   %s\n", strings.Join(song.Genres, ", "))
	}
	for _, role := range model.Roles {
		var names []string
		for _, c := range song.Credits {
			if c.Role == role {
				names = append(names, c.Name)
			}
		}
		if len(names) > 0 {
			fmt.Fprintf(w, "%-9s %s\n", string(role)+":", strings.Join(names, ", "))
		}
	}
	return nil
}

// trackTitle appends featured artists to the song title
func trackTitle(t store.TrackDetail) string {
	var featured []string
	for _, c := range t.Credits {
		if c.Role == model.RoleFeatured {
			featured = append(featured, c.Name)
		}
	}
	if len(featured) == 0 {
		return t.SongTitle
	}
	return fmt.Sprintf("%s (feat. %s)", t.SongTitle, strings.Join(featured, ", "))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
