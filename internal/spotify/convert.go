package spotify

import (
	"strconv"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-music-agent/internal/music"
)

// convertTrack converts a Spotify FullTrack to a music.TrackReference.
func convertTrack(t spotify.FullTrack) music.TrackReference {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var artistID string
	if len(t.Artists) > 0 {
		artistID = t.Artists[0].ID.String()
	}

	return music.TrackReference{
		ID:       t.ID.String(),
		URI:      string(t.URI),
		Title:    t.Name,
		Artists:  artists,
		ArtistID: artistID,
		Album:    t.Album.Name,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		Year:     releaseYear(t.Album.ReleaseDate),
	}
}

func convertArtist(a spotify.FullArtist) music.Artist {
	return music.Artist{
		ID:     a.ID.String(),
		URI:    string(a.URI),
		Name:   a.Name,
		Genres: a.Genres,
	}
}

func convertFeatures(f *spotify.AudioFeatures) *music.AudioFeatures {
	if f == nil {
		return nil
	}
	return &music.AudioFeatures{
		TrackID:      f.ID.String(),
		Energy:       f.Energy,
		Valence:      f.Valence,
		Danceability: f.Danceability,
		Acousticness: f.Acousticness,
		Tempo:        f.Tempo,
	}
}

func convertPlaylist(p spotify.SimplePlaylist) music.Playlist {
	return music.Playlist{
		ID:         p.ID.String(),
		URI:        string(p.URI),
		Name:       p.Name,
		TrackCount: int(p.Tracks.Total),
	}
}

// releaseYear parses the year out of "2006", "2006-03" or "2006-03-14".
// Returns 0 when the date is missing or malformed.
func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
