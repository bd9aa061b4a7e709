package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-music-agent/internal/music"
)

// Current returns what the active device is playing. Track is nil when
// nothing is loaded or the item is not a track (an episode or ad).
func (c *Client) Current(ctx context.Context) (music.PlaybackState, error) {
	const op = "spotify.current"
	if err := c.wait(ctx, op); err != nil {
		return music.PlaybackState{}, err
	}
	cp, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return music.PlaybackState{}, classify(op, fmt.Errorf("getting currently playing: %w", err))
	}
	if cp == nil || cp.Item == nil {
		return music.PlaybackState{}, nil
	}
	track := convertTrack(*cp.Item)
	return music.PlaybackState{Playing: cp.Playing, Track: &track}, nil
}

// Resume continues playback on the active device.
func (c *Client) Resume(ctx context.Context) error {
	return c.control(ctx, "spotify.resume", c.api.Play)
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	return c.control(ctx, "spotify.pause", c.api.Pause)
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	return c.control(ctx, "spotify.next", c.api.Next)
}

// Previous returns to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	return c.control(ctx, "spotify.previous", c.api.Previous)
}

// PlayTracks replaces the playback queue with tracks, in order.
func (c *Client) PlayTracks(ctx context.Context, tracks []music.TrackReference) error {
	const op = "spotify.play_tracks"
	if len(tracks) == 0 {
		return nil
	}
	uris := make([]spotify.URI, 0, min(len(tracks), maxTracksPerRequest))
	for _, t := range tracks {
		if len(uris) == maxTracksPerRequest {
			break
		}
		uri := t.URI
		if uri == "" {
			uri = "spotify:track:" + t.ID
		}
		uris = append(uris, spotify.URI(uri))
	}

	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.api.PlayOpt(ctx, &spotify.PlayOptions{URIs: uris}); err != nil {
		return classify(op, fmt.Errorf("playing %d tracks: %w", len(uris), err))
	}
	return nil
}

// PlayPlaylist starts a playlist, optionally shuffled.
func (c *Client) PlayPlaylist(ctx context.Context, p music.Playlist, shuffle bool) error {
	const op = "spotify.play_playlist"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.api.Shuffle(ctx, shuffle); err != nil {
		return classify(op, fmt.Errorf("setting shuffle: %w", err))
	}

	uri := spotify.URI(p.URI)
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.api.PlayOpt(ctx, &spotify.PlayOptions{PlaybackContext: &uri}); err != nil {
		return classify(op, fmt.Errorf("playing playlist %s: %w", p.Name, err))
	}
	return nil
}

func (c *Client) control(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}
