package daemon

import (
	"context"

	"github.com/justestif/go-music-agent/internal/music"
)

// Catalog is the remote music catalog.
type Catalog interface {
	Track(ctx context.Context, id string) (music.TrackReference, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]music.TrackReference, error)
	SearchArtists(ctx context.Context, query string, limit int) ([]music.Artist, error)
	Artist(ctx context.Context, id string) (music.Artist, error)
	// AudioFeatures returns nil, nil when the catalog has no features for
	// the track.
	AudioFeatures(ctx context.Context, trackID string) (*music.AudioFeatures, error)
}

// Player is the playback surface.
type Player interface {
	Current(ctx context.Context) (music.PlaybackState, error)
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	PlayTracks(ctx context.Context, tracks []music.TrackReference) error
	PlayPlaylist(ctx context.Context, p music.Playlist, shuffle bool) error
	Playlists(ctx context.Context) ([]music.Playlist, error)
}

// GenreSource supplies genres when the catalog has none for an artist.
type GenreSource interface {
	Genres(ctx context.Context, artist, track string, limit int) ([]string, error)
}

// LyricsSource looks up the lyrics of a track.
type LyricsSource interface {
	Lyrics(ctx context.Context, artist, title string) (string, error)
}

// Session is an authenticated connection to the catalog and the player.
type Session struct {
	Catalog Catalog
	Player  Player
	Close   func() error // optional
}

// Connector establishes a Session while the daemon starts.
type Connector func(ctx context.Context) (*Session, error)
