package daemon

import (
	"context"
	"errors"
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
	historyLimit   = 20
	favoritesLimit = 50
	moodReportSize = 200
)

// current returns the track the player is on.
func (d *Daemon) current(ctx context.Context) (music.TrackReference, bool, error) {
	state, err := d.player.Current(ctx)
	if err != nil {
		return music.TrackReference{}, false, err
	}
	if state.Track == nil {
		return music.TrackReference{}, false, apperr.NotFound("daemon.current", "Nothing is playing.")
	}
	return *state.Track, state.Playing, nil
}

func (d *Daemon) handleNowPlaying(ctx context.Context, _ interpret.Intent) (ipc.Response, error) {
	track, playing, err := d.current(ctx)
	if err != nil {
		return ipc.Response{}, err
	}
	msg := "Now playing: " + track.String()
	if !playing {
		msg = "Paused: " + track.String()
	}
	if track.Album != "" {
		msg += " (" + track.Album + ")"
	}
	return ipc.Success(msg, ViewTrack(track)), nil
}

// handleSync analyzes the current track. The describe mode reports the
// analysis without writing anything.
func (d *Daemon) handleSync(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	if in.Mode == interpret.ModeDescribe {
		track, _, err := d.current(ctx)
		if err != nil {
			return ipc.Response{}, err
		}
		a, err := d.enrich(ctx, track)
		if err != nil {
			return ipc.Response{}, err
		}
		return ipc.Success(describe(a), viewAnalysis(a)), nil
	}

	d.transition.Lock()
	track, _, err := d.current(ctx)
	if err == nil {
		d.setLastSeen(&track)
	}
	d.transition.Unlock()
	if err != nil {
		return ipc.Response{}, err
	}

	a, err := d.AnalyzeAndStore(ctx, track, music.TriggerSync)
	if err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success("Synced.\n"+describe(a), viewAnalysis(a)), nil
}

func describe(a Analysis) string {
	var b strings.Builder
	b.WriteString(a.Track.String())
	if a.Track.Album != "" {
		fmt.Fprintf(&b, "\nAlbum: %s", a.Track.Album)
	}
	if a.Track.Year > 0 {
		fmt.Fprintf(&b, "\nReleased: %d", a.Track.Year)
	}
	if len(a.Genres) > 0 {
		fmt.Fprintf(&b, "\nGenres: %s", strings.Join(a.Genres, ", "))
		if a.GenreSource == genresFromLastFM {
			b.WriteString(" (from Last.fm)")
		}
	} else {
		b.WriteString("\nGenres: unknown")
	}
	if len(a.Moods) > 0 {
		fmt.Fprintf(&b, "\nSounds: %s", strings.Join(a.Moods, ", "))
	}
	if f := a.Features; f != nil {
		fmt.Fprintf(&b, "\nEnergy %.2f, valence %.2f, danceability %.2f, %s tempo (%.0f BPM)",
			f.Energy, f.Valence, f.Danceability, search.TempoBucket(f.Tempo), f.Tempo)
	}
	if len(a.Tags) > 0 {
		texts := make([]string, len(a.Tags))
		for i, t := range a.Tags {
			texts[i] = t.Text
		}
		fmt.Fprintf(&b, "\nTagged: %s", strings.Join(texts, ", "))
	}
	return b.String()
}

// subject is the thing a tag is attached to.
type subject struct {
	id   string
	kind music.SubjectKind
	name string
}

// resolveSubject finds the artist or track target names. "this" is the
// current track and "this artist" its artist; other names match an artist
// when the catalog knows one by that exact name, otherwise a track.
func (d *Daemon) resolveSubject(ctx context.Context, target string) (subject, error) {
	if interpret.IsThis(target) {
		track, _, err := d.current(ctx)
		if err != nil {
			return subject{}, err
		}
		if strings.TrimSpace(target) == "this artist" {
			artist, err := d.artistOf(ctx, track)
			if err != nil {
				return subject{}, err
			}
			return subject{artist.ID, music.SubjectArtist, artist.Name}, nil
		}
		return subject{track.ID, music.SubjectTrack, track.String()}, nil
	}

	artists, err := d.catalog.SearchArtists(ctx, target, 1)
	if err != nil {
		return subject{}, err
	}
	if len(artists) > 0 && search.Normalize(artists[0].Name) == search.Normalize(target) {
		return subject{artists[0].ID, music.SubjectArtist, artists[0].Name}, nil
	}

	track, err := d.findTrack(ctx, target)
	if err != nil {
		return subject{}, err
	}
	return subject{track.ID, music.SubjectTrack, track.String()}, nil
}

// artistOf returns the primary artist of track, searching the catalog when
// the track carries no artist id.
func (d *Daemon) artistOf(ctx context.Context, track music.TrackReference) (music.Artist, error) {
	if track.ArtistID != "" {
		return music.Artist{ID: track.ArtistID, Name: track.PrimaryArtist()}, nil
	}
	name := track.PrimaryArtist()
	if name == "" {
		return music.Artist{}, apperr.NotFound("daemon.artist", "%s has no artist.", track.Title)
	}
	artists, err := d.catalog.SearchArtists(ctx, name, 1)
	if err != nil {
		return music.Artist{}, err
	}
	if len(artists) == 0 {
		return music.Artist{}, apperr.NotFound("daemon.artist", "No artist matches %q.", name)
	}
	return artists[0], nil
}

// findTrack returns the played track best matching query, or the top
// catalog result.
func (d *Daemon) findTrack(ctx context.Context, query string) (music.TrackReference, error) {
	candidates, err := d.store.TrackCandidates(ctx)
	if err != nil {
		return music.TrackReference{}, err
	}
	if matches := search.RankTracks(query, candidates); len(matches) > 0 {
		return matches[0].Track, nil
	}

	found, err := d.catalog.SearchTracks(ctx, query, 1)
	if err != nil {
		return music.TrackReference{}, err
	}
	if len(found) == 0 {
		return music.TrackReference{}, apperr.NotFound("daemon.find_track", "No track matches %q.", query)
	}
	return found[0], nil
}

func (d *Daemon) handleTagSet(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	subj, err := d.resolveSubject(ctx, in.Target)
	if err != nil {
		return ipc.Response{}, err
	}

	category, text, ok := interpret.Classify(in.Arg)
	if !ok {
		category, text = music.CategoryCustom, in.Arg
	}
	tag, err := d.store.UpsertTag(ctx, store.TagInput{
		SubjectID:   subj.id,
		SubjectKind: subj.kind,
		SubjectName: subj.name,
		Text:        text,
		Category:    category,
		Confidence:  1.0,
		Source:      music.SourceManual,
	})
	if err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(fmt.Sprintf("Tagged %s as %q (%s).", subj.name, tag.Text, tag.Category), viewTag(tag)), nil
}

func (d *Daemon) handleTagQuery(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	if in.Mode == interpret.ModeTag {
		return d.taggedWith(ctx, in)
	}

	subj, err := d.resolveSubject(ctx, in.Target)
	if err != nil {
		return ipc.Response{}, err
	}
	tags, err := d.store.QueryBySubject(ctx, subj.id, subj.kind)
	if err != nil {
		return ipc.Response{}, err
	}

	// The current track also shows its artist's tags.
	if subj.kind == music.SubjectTrack && interpret.IsThis(in.Target) {
		track, _, err := d.current(ctx)
		if err == nil && track.ArtistID != "" {
			artistTags, err := d.store.QueryBySubject(ctx, track.ArtistID, music.SubjectArtist)
			if err != nil {
				return ipc.Response{}, err
			}
			tags = append(tags, artistTags...)
		}
	}

	if len(tags) == 0 {
		return ipc.Success(subj.name+" has no tags.", viewTags(tags)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tags for %s:", subj.name)
	for _, t := range tags {
		fmt.Fprintf(&b, "\n  %s (%s, %s", t.Text, t.Category, t.Source)
		if t.SubjectKind != subj.kind {
			fmt.Fprintf(&b, ", on %s %s", t.SubjectKind, t.SubjectName)
		}
		b.WriteString(")")
	}
	return ipc.Success(b.String(), viewTags(tags)), nil
}

// taggedWith lists, or plays, everything carrying a tag.
func (d *Daemon) taggedWith(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	subjects, err := d.store.QueryByTag(ctx, in.Arg, nil)
	if err != nil {
		return ipc.Response{}, err
	}
	if len(subjects) == 0 {
		return ipc.Response{}, apperr.NotFound("daemon.tag_query", "Nothing is tagged %q.", in.Arg)
	}

	views := make([]TagView, len(subjects))
	for i, s := range subjects {
		views[i] = viewTag(s.Tag)
	}

	if in.Play {
		hits := subjectHits(subjects, music.SubjectTrack)
		if len(hits) > 0 {
			tracks := make([]music.TrackReference, len(hits))
			for i, h := range hits {
				tracks[i] = h.track
			}
			if err := d.play(ctx, tracks); err != nil {
				return ipc.Response{}, err
			}
			return ipc.Success(fmt.Sprintf("Playing %d tracks tagged %q.", len(tracks), in.Arg), views), nil
		}
		return d.playArtist(ctx, subjects[0].SubjectName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tagged %q:", in.Arg)
	for _, s := range subjects {
		fmt.Fprintf(&b, "\n  %s (%s)", s.SubjectName, s.SubjectKind)
	}
	return ipc.Success(b.String(), views), nil
}

func (d *Daemon) handleFavoriteAdd(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	var artist music.Artist
	if in.RefersToCurrent() {
		track, _, err := d.current(ctx)
		if err != nil {
			return ipc.Response{}, err
		}
		if artist, err = d.artistOf(ctx, track); err != nil {
			return ipc.Response{}, err
		}
	} else {
		artists, err := d.catalog.SearchArtists(ctx, in.Arg, 1)
		if err != nil {
			return ipc.Response{}, err
		}
		if len(artists) == 0 {
			return ipc.Response{}, apperr.NotFound("daemon.favorite", "No artist matches %q.", in.Arg)
		}
		artist = artists[0]
	}

	fav, created, err := d.store.UpsertFavorite(ctx, artist.ID, artist.Name)
	if err != nil {
		return ipc.Response{}, err
	}
	msg := fmt.Sprintf("Added %s to your favorite artists.", fav.Name)
	if !created {
		msg = fmt.Sprintf("%s is already a favorite (%d plays).", fav.Name, fav.PlayCount)
	}
	return ipc.Success(msg, viewFavorite(fav)), nil
}

func (d *Daemon) handleFavoriteList(ctx context.Context, _ interpret.Intent) (ipc.Response, error) {
	favs, err := d.store.ListFavorites(ctx, favoritesLimit)
	if err != nil {
		return ipc.Response{}, err
	}
	views := make([]FavoriteView, len(favs))
	for i, f := range favs {
		views[i] = viewFavorite(f)
	}
	if len(favs) == 0 {
		return ipc.Success("No favorite artists yet.", views), nil
	}

	var b strings.Builder
	b.WriteString("Favorite artists:")
	for _, f := range favs {
		fmt.Fprintf(&b, "\n  %s (%d plays)", f.Name, f.PlayCount)
	}
	return ipc.Success(b.String(), views), nil
}

func (d *Daemon) handleLyricSearch(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	patterns, err := d.store.SearchLyrics(ctx, in.Arg)
	if err != nil {
		return ipc.Response{}, err
	}
	if len(patterns) > 0 {
		hits := make([]hit, len(patterns))
		for i, p := range patterns {
			hits[i] = hit{source: sourceLyrics, track: p.Track, fragment: p.Fragment}
		}
		return ipc.Success(listHits("That sounds like:", hits), viewHits(hits)), nil
	}

	found, err := d.catalog.SearchTracks(ctx, in.Arg, maxListed)
	if err != nil {
		return ipc.Response{}, err
	}
	if len(found) == 0 {
		return ipc.Response{}, apperr.NotFound("daemon.lyric_search", "No song I know goes %q.", in.Arg)
	}
	// Remember the best guess so the next lookup hits the stored pattern.
	if _, err := d.store.AddLyricPattern(ctx, found[0], in.Arg); err != nil {
		d.logger.Warn("remembering lyric pattern failed", "track", found[0].String(), "error", err)
	}
	hits := catalogHits(found)
	return ipc.Success(listHits("No remembered lyric matches. The catalog suggests:", hits), viewHits(hits)), nil
}

func (d *Daemon) handleLyricAdd(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	var (
		track music.TrackReference
		err   error
	)
	if in.RefersToCurrent() {
		track, _, err = d.current(ctx)
	} else {
		track, err = d.findTrack(ctx, in.Target)
	}
	if err != nil {
		return ipc.Response{}, err
	}

	p, err := d.store.AddLyricPattern(ctx, track, in.Arg)
	if err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(fmt.Sprintf("Remembered %q for %s.", p.Fragment, track.String()), HitView{
		Source:   sourceLyrics,
		Track:    ViewTrack(track),
		Fragment: p.Fragment,
	}), nil
}

func (d *Daemon) handleLyrics(ctx context.Context, _ interpret.Intent) (ipc.Response, error) {
	if d.lyrics == nil {
		return ipc.Response{}, apperr.New(apperr.KindInvalid, "daemon.lyrics", "Lyrics lookup is not configured.")
	}
	track, _, err := d.current(ctx)
	if err != nil {
		return ipc.Response{}, err
	}
	text, err := d.lyrics.Lyrics(ctx, track.PrimaryArtist(), track.Title)
	if err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(track.String()+"\n\n"+text, map[string]string{"track": track.String(), "lyrics": text}), nil
}

func (d *Daemon) handlePreference(ctx context.Context, in interpret.Intent) (ipc.Response, error) {
	if in.Mode == interpret.ModeSet {
		if err := d.store.SetPreference(ctx, in.Target, in.Arg); err != nil {
			return ipc.Response{}, err
		}
		return ipc.Success(fmt.Sprintf("Set %s to %q.", in.Target, in.Arg), map[string]string{in.Target: in.Arg}), nil
	}

	pref, err := d.store.GetPreference(ctx, in.Target)
	if errors.Is(err, store.ErrNotFound) {
		return ipc.Response{}, apperr.NotFound("daemon.preference", "%s is not set.", in.Target)
	}
	if err != nil {
		return ipc.Response{}, err
	}
	return ipc.Success(fmt.Sprintf("%s is %q.", pref.Key, pref.Value), map[string]string{pref.Key: pref.Value}), nil
}

func (d *Daemon) handleHistory(ctx context.Context, _ interpret.Intent) (ipc.Response, error) {
	plays, err := d.store.RecentPlays(ctx, historyLimit)
	if err != nil {
		return ipc.Response{}, err
	}
	views := make([]PlayView, len(plays))
	for i, p := range plays {
		views[i] = viewPlay(p)
	}
	if len(plays) == 0 {
		return ipc.Success("Nothing played yet.", views), nil
	}

	var b strings.Builder
	b.WriteString("Recently played:")
	for _, p := range plays {
		fmt.Fprintf(&b, "\n  %s  %s", p.PlayedAt.Local().Format("Jan 2 15:04"), p.Track.String())
	}
	return ipc.Success(b.String(), views), nil
}

func (d *Daemon) handleMoodReport(ctx context.Context, _ interpret.Intent) (ipc.Response, error) {
	features, err := d.store.RecentFeatures(ctx, moodReportSize)
	if err != nil {
		return ipc.Response{}, err
	}
	if len(features) == 0 {
		return ipc.Response{}, apperr.NotFound("daemon.mood_report", "No audio features recorded yet.")
	}
	report, err := search.ClusterMoods(features, search.DefaultMoodClusters)
	if err != nil {
		return ipc.Response{}, apperr.Wrap(apperr.KindInternal, "daemon.mood_report", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Moods across your last %d analyzed tracks:", len(features))
	for _, c := range report.Clusters {
		fmt.Fprintf(&b, "\n  %s: %d tracks (energy %.2f, valence %.2f)", c.Name, len(c.TrackIDs), c.Energy, c.Valence)
	}
	if report.Unclustered > 0 {
		fmt.Fprintf(&b, "\n  %d tracks did not fit a group", report.Unclustered)
	}
	return ipc.Success(b.String(), viewMoodReport(report)), nil
}

func (d *Daemon) handleBackfill(ctx context.Context, _ interpret.Intent) (ipc.Response, error) {
	report, err := d.Backfill(ctx, defaultBackfillLimit)
	if err != nil {
		return ipc.Response{}, err
	}
	if report.Tracks == 0 {
		return ipc.Success("Every played track already has tags.", report), nil
	}
	msg := fmt.Sprintf("Backfilled %d of %d tracks with %d tags.", report.Tagged, report.Tracks, report.Tags)
	if report.Failed > 0 {
		msg += fmt.Sprintf(" %d could not be analyzed.", report.Failed)
	}
	return ipc.Success(msg, report), nil
}

const helpText = `Things you can say:
  play / pause / skip / back
  play <song>, play me some <artist>
  play some <mood|genre|tempo> music
  search <text>, find the song that goes "<lyric>"
  remember the line "<lyric>" [for <song>]
  like this, like <artist>, favorites
  tag <artist or song> as <tag>, this is <mood>
  what's tagged <tag>, tags for <artist or song>
  playlists, play playlist <name>, shuffle <name>
  what's playing, what genre is this, sync, lyrics
  history, moods, backfill
  set <key> to <value>, get <key>
Daemon: ping, status, stop`

func (d *Daemon) handleHelp(context.Context, interpret.Intent) (ipc.Response, error) {
	moods := d.moods.Moods()
	return ipc.Success(helpText+"\nMoods: "+strings.Join(moods, ", "), moods), nil
}
