package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/interpret"
	"github.com/justestif/go-music-agent/internal/ipc"
	"github.com/justestif/go-music-agent/internal/music"
	"github.com/justestif/go-music-agent/internal/search"
	"github.com/justestif/go-music-agent/internal/store"
)

const (
	searchLimit     = 10
	artistTrackCap  = 20
	maxPlayedTracks = 50
	maxListed       = 5
)

func (d *Daemon) handlePlayback(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	var (
		err error
		msg string
	)
	switch in.Mode {
	case interpret.ModePause:
		err, msg = d.player.Pause(ctx), "Paused."
	case interpret.ModeResume, interpret.ModePlay:
		err, msg = d.player.Resume(ctx), "Playing."
	case interpret.ModeSkip:
		err, msg = d.player.Next(ctx), "Skipped."
	case interpret.ModePrevious:
		err, msg = d.player.Previous(ctx), "Back to the previous track."
	case interpret.ModeArtist:
		return d.playArtist(ctx, in.Arg)
	case interpret.ModeTrack:
		return d.playTrack(ctx, in.Arg)
	default:
		return ipc.Response{}, apperr.Invalid("daemon.playback", "unknown playback mode %q", in.Mode)
	}
	if err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(msg, nil), nil
}

func (d *Daemon) playTrack(ctx context.Context, query string) (ipc.Response, error) {
	found, err := d.catalog.SearchTracks(ctx, query, maxListed)
	if err != nil {
		return ipc.Response{}, err
	}
	if len(found) == 0 {
		return ipc.Response{}, apperr.NotFound("daemon.play_track", "No track matches %q.", query)
	}
	if err := d.play(ctx, found[:1]); err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success("Playing "+found[0].String()+".", ViewTrack(found[0])), nil
}

// playArtist plays up to artistTrackCap catalog tracks by the artist that
// best matches name.
func (d *Daemon) playArtist(ctx context.Context, name string) (ipc.Response, error) {
	tracks, artist, err := d.artistTracks(ctx, name)
	if err != nil {
		return ipc.Response{}, err
	}
	if err := d.play(ctx, tracks); err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(fmt.Sprintf("Playing %d tracks by %s.", len(tracks), artist.Name), viewTracks(tracks)), nil
}

func (d *Daemon) artistTracks(ctx context.Context, name string) ([]music.TrackReference, music.Artist, error) {
	artists, err := d.catalog.SearchArtists(ctx, name, 1)
	if err != nil {
		return nil, music.Artist{}, err
	}
	if len(artists) == 0 {
		return nil, music.Artist{}, apperr.NotFound("daemon.artist", "No artist matches %q.", name)
	}
	artist := artists[0]

	found, err := d.catalog.SearchTracks(ctx, fmt.Sprintf("artist:%q", artist.Name), artistTrackCap)
	if err != nil {
		return nil, artist, err
	}
	var tracks []music.TrackReference
	for _, t := range found {
		if t.ArtistID == "" || t.ArtistID == artist.ID {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return nil, artist, apperr.NotFound("daemon.artist", "No tracks found for %s.", artist.Name)
	}
	return tracks, artist, nil
}

// play starts tracks and records the first one as a user play. Failing to
// record is logged, not returned: the music is already playing.
func (d *Daemon) play(ctx context.Context, tracks []music.TrackReference) error {
	if len(tracks) > maxPlayedTracks {
		tracks = tracks[:maxPlayedTracks]
	}
	first := tracks[0]
	// Last-seen moves with the player so a poll cycle running during the
	// analysis below sees no change.
	d.transition.Lock()
	err := d.player.PlayTracks(ctx, tracks)
	if err == nil {
		d.setLastSeen(&first)
	}
	d.transition.Unlock()
	if err != nil {
		return err
	}

	if _, err := d.AnalyzeAndStore(ctx, first, music.TriggerUserPlay); err != nil {
		d.logger.Warn("recording user play failed", "track", first.String(), "error", err)
	}
	return nil
}

// hit is a search result before it is rendered.
type hit struct {
	source   string
	track    music.TrackReference
	fragment string
	score    float64
}

const (
	sourceHistory = "history"
	sourceLyrics  = "lyrics"
	sourceTags    = "tags"
	sourceCatalog = "catalog"
)

func (d *Daemon) handleSearch(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	var (
		hits []hit
		err  error
	)
	switch in.Mode {
	case interpret.ModeMood:
		hits, err = d.searchMood(ctx, in.Arg)
	case interpret.ModeGenre:
		hits, err = d.searchGenre(ctx, in.Arg)
	case interpret.ModeTempo:
		hits, err = d.searchTempo(ctx, in.Arg)
	default:
		hits, err = d.searchPlain(ctx, in.Arg)
	}
	if err != nil {
		return ipc.Response{}, err
	}
	hits = dedupeHits(hits)
	if len(hits) == 0 {
		return ipc.Response{}, apperr.NotFound("daemon.search", "Nothing found for %q.", in.Arg)
	}

	views := viewHits(hits)
	if !in.Play {
		return ipc.Success(listHits(fmt.Sprintf("Found %d results for %q:", len(hits), in.Arg), hits), views), nil
	}

	tracks := make([]music.TrackReference, len(hits))
	for i, h := range hits {
		tracks[i] = h.track
	}
	if err := d.play(ctx, tracks); err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(fmt.Sprintf("Playing %s music: %s.", in.Arg, tracks[0].String()), views), nil
}

// searchPlain matches the query against the local history and lyric
// fragments, then the catalog. A catalog failure is only reported when
// nothing local matched.
func (d *Daemon) searchPlain(ctx context.Context, query string) ([]hit, error) {
	results, err := d.store.SearchText(ctx, query)
	if err != nil {
		return nil, err
	}
	var hits []hit
	for _, r := range results {
		src := sourceHistory
		if r.Kind == store.ResultLyric {
			src = sourceLyrics
		}
		hits = append(hits, hit{source: src, track: r.Track, fragment: r.Fragment, score: r.Score})
	}

	found, err := d.catalog.SearchTracks(ctx, query, searchLimit)
	if err != nil {
		if len(hits) == 0 || ctx.Err() != nil {
			return nil, err
		}
		d.logger.Warn("catalog search failed", "query", query, "error", err)
	}
	return append(hits, catalogHits(found)...), nil
}

// searchMood collects tracks tagged with the mood, tracks by artists whose
// genres map to it, and catalog tracks in the mapped genres.
func (d *Daemon) searchMood(ctx context.Context, mood string) ([]hit, error) {
	moodCat := music.CategoryMood
	tagged, err := d.store.QueryByTag(ctx, mood, &moodCat)
	if err != nil {
		return nil, err
	}
	hits := subjectHits(tagged, music.SubjectTrack)

	genreCat := music.CategoryGenre
	genres, err := d.store.TagTexts(ctx, genreCat)
	if err != nil {
		return nil, err
	}
	var artists []string
	for _, g := range genres {
		if !d.moods.GenreMatchesMood(g, mood) {
			continue
		}
		subjects, err := d.store.QueryByTag(ctx, g, &genreCat)
		if err != nil {
			return nil, err
		}
		for _, s := range subjects {
			if s.SubjectKind == music.SubjectArtist {
				artists = append(artists, s.SubjectName)
			}
		}
	}

	keywords := d.moods.GenresForMood(mood)
	if len(hits) == 0 && len(artists) == 0 && len(keywords) == 0 {
		return nil, apperr.NotFound("daemon.search", "I don't know any %s music yet.", mood)
	}

	more, err := d.artistHits(ctx, artists)
	if err != nil {
		return nil, err
	}
	hits = append(hits, more...)

	more, err = d.genreHits(ctx, keywords)
	if err != nil {
		return nil, err
	}
	return append(hits, more...), nil
}

func (d *Daemon) searchGenre(ctx context.Context, genre string) ([]hit, error) {
	genreCat := music.CategoryGenre
	subjects, err := d.store.QueryByTag(ctx, genre, &genreCat)
	if err != nil {
		return nil, err
	}
	var artists []string
	for _, s := range subjects {
		if s.SubjectKind == music.SubjectArtist {
			artists = append(artists, s.SubjectName)
		}
	}

	hits, err := d.artistHits(ctx, artists)
	if err != nil {
		return nil, err
	}
	more, err := d.genreHits(ctx, []string{genre})
	if err != nil {
		return nil, err
	}
	return append(hits, more...), nil
}

// searchTempo only consults local tags: the catalog cannot search by tempo.
func (d *Daemon) searchTempo(ctx context.Context, tempo string) ([]hit, error) {
	tempoCat := music.CategoryTempo
	tagged, err := d.store.QueryByTag(ctx, tempo, &tempoCat)
	if err != nil {
		return nil, err
	}
	return subjectHits(tagged, music.SubjectTrack), nil
}

// artistHits searches the catalog for tracks by the first few artists.
func (d *Daemon) artistHits(ctx context.Context, artists []string) ([]hit, error) {
	var hits []hit
	seen := make(map[string]bool)
	for _, name := range artists {
		if seen[name] || len(seen) == 2 {
			continue
		}
		seen[name] = true
		found, err := d.catalog.SearchTracks(ctx, fmt.Sprintf("artist:%q", name), maxListed)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			hits = append(hits, hit{source: sourceTags, track: t})
		}
	}
	return hits, nil
}

// genreHits searches the catalog by genre for the first few keywords.
func (d *Daemon) genreHits(ctx context.Context, keywords []string) ([]hit, error) {
	var hits []hit
	for i, kw := range keywords {
		if i == 2 {
			break
		}
		found, err := d.catalog.SearchTracks(ctx, fmt.Sprintf("genre:%q", kw), searchLimit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, catalogHits(found)...)
	}
	return hits, nil
}

func subjectHits(subjects []store.TaggedSubject, kind music.SubjectKind) []hit {
	var hits []hit
	for _, s := range subjects {
		if s.SubjectKind != kind {
			continue
		}
		hits = append(hits, hit{
			source: sourceTags,
			track:  music.TrackReference{ID: s.SubjectID, Title: s.SubjectName},
			score:  s.Tag.Confidence,
		})
	}
	return hits
}

func catalogHits(tracks []music.TrackReference) []hit {
	hits := make([]hit, len(tracks))
	for i, t := range tracks {
		hits[i] = hit{source: sourceCatalog, track: t}
	}
	return hits
}

func dedupeHits(hits []hit) []hit {
	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if h.track.ID == "" || seen[h.track.ID] {
			continue
		}
		seen[h.track.ID] = true
		out = append(out, h)
	}
	return out
}

func viewHits(hits []hit) []HitView {
	out := make([]HitView, len(hits))
	for i, h := range hits {
		out[i] = HitView{Source: h.source, Track: ViewTrack(h.track), Fragment: h.fragment, Score: h.score}
	}
	return out
}

// listHits renders the first few hits below header.
func listHits(header string, hits []hit) string {
	var b strings.Builder
	b.WriteString(header)
	for i, h := range hits {
		if i == maxListed {
			fmt.Fprintf(&b, "\n  ... and %d more", len(hits)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n  %d. %s", i+1, h.track.String())
		if h.fragment != "" {
			fmt.Fprintf(&b, " (%q)", h.fragment)
		}
		if h.source != sourceCatalog {
			fmt.Fprintf(&b, " [%s]", h.source)
		}
	}
	return b.String()
}

func (d *Daemon) handlePlaylist(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	if in.Mode == interpret.ModeList {
		playlists, stale, err := d.refreshPlaylists(ctx)
		if err != nil {
			return ipc.Response{}, err
		}
		if len(playlists) == 0 {
			return ipc.Success("No playlists.", viewPlaylists(playlists)), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d playlists", len(playlists))
		if stale {
			b.WriteString(" (cached, the player did not answer)")
		}
		b.WriteString(":")
		for _, p := range playlists {
			fmt.Fprintf(&b, "\n  %s", p.Name)
			if p.TrackCount > 0 {
				fmt.Fprintf(&b, " (%d tracks)", p.TrackCount)
			}
		}
		return ipc.Success(b.String(), viewPlaylists(playlists)), nil
	}

	p, err := d.findPlaylist(ctx, in.Arg)
	if err != nil {
		return ipc.Response{}, err
	}
	shuffle := in.Mode == interpret.ModeShuffle
	if err := d.player.PlayPlaylist(ctx, p, shuffle); err != nil {
		return ipc.Response{}, err
	}
	verb := "Playing"
	if shuffle {
		verb = "Shuffling"
	}
	return ipc.Success(fmt.Sprintf("%s playlist %s.", verb, p.Name), viewPlaylists([]music.Playlist{p})[0]), nil
}

// refreshPlaylists fetches the playlists from the player and caches them.
// When the player fails, the cached list is returned with stale set.
func (d *Daemon) refreshPlaylists(ctx context.Context) (playlists []music.Playlist, stale bool, err error) {
	playlists, err = d.player.Playlists(ctx)
	if err != nil {
		cached, cerr := d.store.ListPlaylists(ctx)
		if cerr != nil || len(cached) == 0 {
			return nil, false, err
		}
		d.logger.Warn("listing playlists failed, using cache", "error", err)
		return cached, true, nil
	}
	if err := d.store.UpsertPlaylists(ctx, playlists); err != nil {
		return nil, false, err
	}
	return playlists, false, nil
}

// findPlaylist picks the playlist whose name best matches name, looking in
// the cache first and refreshing it when nothing there matches.
func (d *Daemon) findPlaylist(ctx context.Context, name string) (music.Playlist, error) {
	cached, err := d.store.ListPlaylists(ctx)
	if err != nil {
		return music.Playlist{}, err
	}
	if p, ok := bestPlaylist(name, cached); ok {
		return p, nil
	}

	fresh, _, err := d.refreshPlaylists(ctx)
	if err != nil {
		return music.Playlist{}, err
	}
	if p, ok := bestPlaylist(name, fresh); ok {
		return p, nil
	}
	return music.Playlist{}, apperr.NotFound("daemon.playlist", "No playlist matches %q.", name)
}

func bestPlaylist(name string, playlists []music.Playlist) (music.Playlist, bool) {
	var (
		best  music.Playlist
		score float64
	)
	for _, p := range playlists {
		if s := search.Score(name, p.Name); s > score {
			best, score = p, s
		}
	}
	return best, score >= search.MinScore
}
