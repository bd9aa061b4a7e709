package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-music-agent/internal/music"
)

// Track fetches full metadata for a track id.
func (c *Client) Track(ctx context.Context, id string) (music.TrackReference, error) {
	const op = "spotify.track"
	if err := c.wait(ctx, op); err != nil {
		return music.TrackReference{}, err
	}
	t, err := c.api.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return music.TrackReference{}, classify(op, fmt.Errorf("getting track %s: %w", id, err))
	}
	return convertTrack(*t), nil
}

// SearchTracks runs a track search. query may use Spotify field filters
// such as genre:"shoegaze".
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]music.TrackReference, error) {
	const op = "spotify.search_tracks"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, classify(op, fmt.Errorf("searching tracks %q: %w", query, err))
	}
	if res.Tracks == nil {
		return nil, nil
	}

	tracks := make([]music.TrackReference, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		tracks = append(tracks, convertTrack(t))
	}
	return tracks, nil
}

// SearchArtists runs an artist search.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]music.Artist, error) {
	const op = "spotify.search_artists"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	res, err := c.api.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(limit))
	if err != nil {
		return nil, classify(op, fmt.Errorf("searching artists %q: %w", query, err))
	}
	if res.Artists == nil {
		return nil, nil
	}

	artists := make([]music.Artist, 0, len(res.Artists.Artists))
	for _, a := range res.Artists.Artists {
		artists = append(artists, convertArtist(a))
	}
	return artists, nil
}

// Artist fetches an artist with its genre list.
func (c *Client) Artist(ctx context.Context, id string) (music.Artist, error) {
	const op = "spotify.artist"
	if err := c.wait(ctx, op); err != nil {
		return music.Artist{}, err
	}
	a, err := c.api.GetArtist(ctx, spotify.ID(id))
	if err != nil {
		return music.Artist{}, classify(op, fmt.Errorf("getting artist %s: %w", id, err))
	}
	return convertArtist(*a), nil
}

// AudioFeatures returns the audio analysis of a track, or nil when Spotify
// has none for it or no longer serves the endpoint to this application.
func (c *Client) AudioFeatures(ctx context.Context, trackID string) (*music.AudioFeatures, error) {
	features, err := c.AudioFeaturesBatch(ctx, []string{trackID})
	if err != nil {
		return nil, err
	}
	return features[trackID], nil
}

// AudioFeaturesBatch fetches audio features for many tracks, batching
// requests to 100 ids. Tracks without features are absent from the map.
func (c *Client) AudioFeaturesBatch(ctx context.Context, trackIDs []string) (map[string]*music.AudioFeatures, error) {
	const op = "spotify.audio_features"
	out := make(map[string]*music.AudioFeatures, len(trackIDs))
	if len(trackIDs) == 0 {
		return out, nil
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		if err := c.wait(ctx, op); err != nil {
			return nil, err
		}

		features, err := c.api.GetAudioFeatures(ctx, ids[i:end]...)
		if unavailable(err) {
			return out, nil
		}
		if err != nil {
			return nil, classify(op, fmt.Errorf("fetching audio features (batch %d-%d): %w", i+1, end, err))
		}

		for _, f := range features {
			if f == nil {
				continue
			}
			out[f.ID.String()] = convertFeatures(f)
		}
	}
	return out, nil
}

// Playlists lists the current user's playlists, following pagination.
func (c *Client) Playlists(ctx context.Context) ([]music.Playlist, error) {
	const op = "spotify.playlists"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(50))
	if err != nil {
		return nil, classify(op, fmt.Errorf("fetching playlists: %w", err))
	}

	var playlists []music.Playlist
	for {
		for _, p := range page.Playlists {
			playlists = append(playlists, convertPlaylist(p))
		}

		if err := c.wait(ctx, op); err != nil {
			return nil, err
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, classify(op, fmt.Errorf("fetching next page: %w", err))
		}
	}
	return playlists, nil
}
