package daemon

import (
	"time"

	"github.com/justestif/go-music-agent/internal/music"
	"github.com/justestif/go-music-agent/internal/search"
	"github.com/justestif/go-music-agent/internal/store"
)

// The view types are the wire shape of response results. They encode the
// same way as JSON and as CBOR.

type TrackView struct {
	ID       string `json:"id"`
	URI      string `json:"uri,omitempty"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	ArtistID string `json:"artist_id,omitempty"`
	Album    string `json:"album,omitempty"`
	Year     int    `json:"year,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
}

func ViewTrack(t music.TrackReference) TrackView {
	return TrackView{
		ID:       t.ID,
		URI:      t.URI,
		Title:    t.Title,
		Artist:   t.Artist(),
		ArtistID: t.ArtistID,
		Album:    t.Album,
		Year:     t.Year,
		Seconds:  int(t.Duration / time.Second),
	}
}

func viewTracks(ts []music.TrackReference) []TrackView {
	out := make([]TrackView, len(ts))
	for i, t := range ts {
		out[i] = ViewTrack(t)
	}
	return out
}

type TagView struct {
	SubjectID   string  `json:"subject_id"`
	SubjectKind string  `json:"subject_kind"`
	SubjectName string  `json:"subject_name"`
	Tag         string  `json:"tag"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
}

func viewTag(t store.Tag) TagView {
	return TagView{
		SubjectID:   t.SubjectID,
		SubjectKind: string(t.SubjectKind),
		SubjectName: t.SubjectName,
		Tag:         t.Text,
		Category:    string(t.Category),
		Confidence:  t.Confidence,
		Source:      string(t.Source),
	}
}

func viewTags(ts []store.Tag) []TagView {
	out := make([]TagView, len(ts))
	for i, t := range ts {
		out[i] = viewTag(t)
	}
	return out
}

type FavoriteView struct {
	ArtistID  string    `json:"artist_id"`
	Name      string    `json:"name"`
	PlayCount int64     `json:"play_count"`
	LikedAt   time.Time `json:"liked_at"`
}

func viewFavorite(f store.Favorite) FavoriteView {
	return FavoriteView{ArtistID: f.ArtistID, Name: f.Name, PlayCount: f.PlayCount, LikedAt: f.LikedAt}
}

type PlayView struct {
	Track    TrackView `json:"track"`
	Trigger  string    `json:"trigger"`
	PlayedAt time.Time `json:"played_at"`
}

func viewPlay(e store.PlayHistoryEntry) PlayView {
	return PlayView{Track: ViewTrack(e.Track), Trigger: string(e.Trigger), PlayedAt: e.PlayedAt}
}

type PlaylistView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks int    `json:"tracks"`
}

func viewPlaylists(ps []music.Playlist) []PlaylistView {
	out := make([]PlaylistView, len(ps))
	for i, p := range ps {
		out[i] = PlaylistView{ID: p.ID, Name: p.Name, Tracks: p.TrackCount}
	}
	return out
}

// HitView is one search result.
type HitView struct {
	Source   string    `json:"source"` // history, lyrics, tags or catalog
	Track    TrackView `json:"track"`
	Fragment string    `json:"fragment,omitempty"`
	Score    float64   `json:"score,omitempty"`
}

type FeaturesView struct {
	Energy       float32 `json:"energy"`
	Valence      float32 `json:"valence"`
	Danceability float32 `json:"danceability"`
	Acousticness float32 `json:"acousticness"`
	Tempo        float32 `json:"tempo"`
}

// AnalysisView reports what the analysis pipeline learned about a track.
type AnalysisView struct {
	Track       TrackView     `json:"track"`
	Artist      string        `json:"artist,omitempty"`
	Genres      []string      `json:"genres,omitempty"`
	GenreSource string        `json:"genre_source,omitempty"`
	Moods       []string      `json:"moods,omitempty"` // from the genre table, not stored
	Features    *FeaturesView `json:"features,omitempty"`
	Tags        []TagView     `json:"tags,omitempty"`
}

func viewAnalysis(a Analysis) AnalysisView {
	v := AnalysisView{
		Track:       ViewTrack(a.Track),
		Artist:      a.Artist.Name,
		Genres:      a.Genres,
		GenreSource: a.GenreSource,
		Moods:       a.Moods,
		Tags:        viewTags(a.Tags),
	}
	if f := a.Features; f != nil {
		v.Features = &FeaturesView{
			Energy:       f.Energy,
			Valence:      f.Valence,
			Danceability: f.Danceability,
			Acousticness: f.Acousticness,
			Tempo:        f.Tempo,
		}
	}
	return v
}

type MoodClusterView struct {
	Name     string   `json:"name"`
	Tracks   int      `json:"tracks"`
	TrackIDs []string `json:"track_ids"`
	Energy   float32  `json:"energy"`
	Valence  float32  `json:"valence"`
}

func viewMoodReport(r search.MoodReport) []MoodClusterView {
	out := make([]MoodClusterView, len(r.Clusters))
	for i, c := range r.Clusters {
		out[i] = MoodClusterView{
			Name:     c.Name,
			Tracks:   len(c.TrackIDs),
			TrackIDs: c.TrackIDs,
			Energy:   c.Energy,
			Valence:  c.Valence,
		}
	}
	return out
}
