package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
	"github.com/justestif/go-music-agent/internal/search"
	"github.com/justestif/go-music-agent/internal/store"
)

// Genre sources reported in an Analysis.
const (
	genresFromCatalog = "catalog"
	genresFromLastFM  = "lastfm"
)

// Analysis is what the pipeline learned about one track.
type Analysis struct {
	Track       music.TrackReference
	Artist      music.Artist
	Genres      []string
	GenreSource string
	Features    *music.AudioFeatures
	Moods       []string // genre table moods, reported but never stored
	Suggestions []search.Suggestion

	// Filled in by persist.
	Tags  []store.Tag
	Entry store.PlayHistoryEntry
}

// AnalyzeAndStore resolves ref against the catalog, derives tags from its
// genres and audio features, and records the play. Enrichment that fails is
// logged and skipped, so a play is recorded even when the catalog is
// unreachable; the returned error is a store failure or cancellation.
//
// Every network call finishes before the first store write.
func (d *Daemon) AnalyzeAndStore(ctx context.Context, ref music.TrackReference, trigger music.Trigger) (Analysis, error) {
	a, err := d.enrich(ctx, ref)
	if err != nil {
		d.metrics.RecordAnalysis(string(trigger), string(apperr.KindOf(err)))
		return a, err
	}
	if err := d.persist(ctx, &a, &trigger); err != nil {
		d.metrics.RecordAnalysis(string(trigger), string(apperr.KindOf(err)))
		return a, err
	}
	d.metrics.RecordAnalysis(string(trigger), "ok")

	d.logger.Info("track analyzed",
		"trigger", trigger,
		"track", a.Track.String(),
		"genres", len(a.Genres),
		"features", a.Features != nil,
		"tags", len(a.Tags),
	)
	d.events.publish(trackEvent(EventAnalysis, string(trigger), &a.Track))
	return a, nil
}

// enrich performs the network half of the pipeline. It only fails when ctx
// is done.
func (d *Daemon) enrich(ctx context.Context, ref music.TrackReference) (Analysis, error) {
	log := d.logger.With("track", ref.String())
	a := Analysis{Track: ref}

	track, err := d.resolve(ctx, ref)
	switch {
	case err == nil:
		a.Track = track
	case ctx.Err() != nil:
		return a, ctx.Err()
	default:
		log.Warn("resolving track failed", "error", err)
	}

	if a.Track.ArtistID != "" {
		artist, err := d.catalog.Artist(ctx, a.Track.ArtistID)
		switch {
		case err == nil:
			a.Artist = artist
		case ctx.Err() != nil:
			return a, ctx.Err()
		default:
			log.Warn("fetching artist failed", "error", err)
			a.Artist = music.Artist{ID: a.Track.ArtistID, Name: a.Track.PrimaryArtist()}
		}
	}
	if len(a.Artist.Genres) > 0 {
		a.Genres, a.GenreSource = a.Artist.Genres, genresFromCatalog
	} else if d.genres != nil && a.Track.PrimaryArtist() != "" {
		genres, err := d.genres.Genres(ctx, a.Track.PrimaryArtist(), a.Track.Title, 3)
		switch {
		case err == nil && len(genres) > 0:
			a.Genres, a.GenreSource = genres, genresFromLastFM
		case err != nil && ctx.Err() != nil:
			return a, ctx.Err()
		case err != nil && !apperr.Is(err, apperr.KindNotFound):
			log.Warn("fetching fallback genres failed", "error", err)
		}
	}

	if isCatalogID(a.Track.ID) {
		features, err := d.catalog.AudioFeatures(ctx, a.Track.ID)
		switch {
		case err == nil:
			a.Features = features
		case ctx.Err() != nil:
			return a, ctx.Err()
		default:
			log.Debug("audio features unavailable", "error", err)
		}
	}

	seen := make(map[string]bool)
	for _, g := range a.Genres {
		for _, m := range d.moods.MoodsForGenre(g) {
			if !seen[m] {
				seen[m] = true
				a.Moods = append(a.Moods, m)
			}
		}
	}

	a.Suggestions = append(search.GenreTags(a.Artist, a.Genres), search.FeatureTags(a.Track, a.Features)...)
	return a, nil
}

// persist writes the suggestions, the features and, when trigger is
// non-nil, the play. Each write is its own store operation.
func (d *Daemon) persist(ctx context.Context, a *Analysis, trigger *music.Trigger) error {
	counts := make(map[music.TagCategory]int)
	for _, s := range a.Suggestions {
		tag, err := d.store.UpsertTag(ctx, store.TagInput{
			SubjectID:   s.SubjectID,
			SubjectKind: s.SubjectKind,
			SubjectName: s.SubjectName,
			Text:        s.Text,
			Category:    s.Category,
			Confidence:  s.Confidence,
			Source:      music.SourceAuto,
		})
		if err != nil {
			return fmt.Errorf("tagging %s: %w", s.SubjectName, err)
		}
		a.Tags = append(a.Tags, tag)
		counts[s.Category]++
	}
	for cat, n := range counts {
		d.metrics.RecordTags(string(cat), n)
	}

	if a.Features != nil {
		if err := d.store.SaveFeatures(ctx, *a.Features); err != nil {
			return fmt.Errorf("saving features: %w", err)
		}
	}

	if trigger != nil {
		entry, err := d.store.RecordPlay(ctx, a.Track, *trigger)
		if err != nil {
			return fmt.Errorf("recording play: %w", err)
		}
		a.Entry = entry
	}
	return nil
}

// resolve returns full catalog metadata for ref. Tracks that did not come
// from the catalog are looked up by title and artist.
func (d *Daemon) resolve(ctx context.Context, ref music.TrackReference) (music.TrackReference, error) {
	if isCatalogID(ref.ID) {
		if ref.ArtistID != "" && ref.Title != "" {
			return ref, nil
		}
		return d.catalog.Track(ctx, ref.ID)
	}
	if ref.Title == "" {
		return ref, apperr.NotFound("daemon.resolve", "track has no title to look up")
	}

	queries := []string{ref.Title}
	if artist := ref.PrimaryArtist(); artist != "" {
		queries = []string{
			fmt.Sprintf("track:%q artist:%q", ref.Title, artist),
			ref.Title + " " + artist,
		}
	}
	for _, q := range queries {
		found, err := d.catalog.SearchTracks(ctx, q, 1)
		if err != nil {
			return ref, err
		}
		if len(found) > 0 {
			return found[0], nil
		}
	}
	return ref, apperr.NotFound("daemon.resolve", "%s is not in the catalog", ref.String())
}

// isCatalogID reports whether id is a catalog track id rather than a
// player-local one such as an MPD file path.
func isCatalogID(id string) bool {
	return id != "" && !strings.Contains(id, ":")
}
