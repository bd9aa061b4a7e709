package daemon

import (
	"context"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

func isAuth(err error) bool { return apperr.Is(err, apperr.KindAuth) }

// observedCatalog and observedPlayer feed the outcome of every external
// call into the degraded flag.
type observedCatalog struct {
	Catalog
	d *Daemon
}

func (c observedCatalog) Track(ctx context.Context, id string) (music.TrackReference, error) {
	t, err := c.Catalog.Track(ctx, id)
	c.d.observe(err)
	return t, err
}

func (c observedCatalog) SearchTracks(ctx context.Context, query string, limit int) ([]music.TrackReference, error) {
	ts, err := c.Catalog.SearchTracks(ctx, query, limit)
	c.d.observe(err)
	return ts, err
}

func (c observedCatalog) SearchArtists(ctx context.Context, query string, limit int) ([]music.Artist, error) {
	as, err := c.Catalog.SearchArtists(ctx, query, limit)
	c.d.observe(err)
	return as, err
}

func (c observedCatalog) Artist(ctx context.Context, id string) (music.Artist, error) {
	a, err := c.Catalog.Artist(ctx, id)
	c.d.observe(err)
	return a, err
}

func (c observedCatalog) AudioFeatures(ctx context.Context, trackID string) (*music.AudioFeatures, error) {
	f, err := c.Catalog.AudioFeatures(ctx, trackID)
	c.d.observe(err)
	return f, err
}

type observedPlayer struct {
	Player
	d *Daemon
}

func (p observedPlayer) Current(ctx context.Context) (music.PlaybackState, error) {
	s, err := p.Player.Current(ctx)
	p.d.observe(err)
	return s, err
}

func (p observedPlayer) Resume(ctx context.Context) error {
	return p.observe(p.Player.Resume(ctx))
}

func (p observedPlayer) Pause(ctx context.Context) error {
	return p.observe(p.Player.Pause(ctx))
}

func (p observedPlayer) Next(ctx context.Context) error {
	return p.observe(p.Player.Next(ctx))
}

func (p observedPlayer) Previous(ctx context.Context) error {
	return p.observe(p.Player.Previous(ctx))
}

func (p observedPlayer) PlayTracks(ctx context.Context, tracks []music.TrackReference) error {
	return p.observe(p.Player.PlayTracks(ctx, tracks))
}

func (p observedPlayer) PlayPlaylist(ctx context.Context, pl music.Playlist, shuffle bool) error {
	return p.observe(p.Player.PlayPlaylist(ctx, pl, shuffle))
}

func (p observedPlayer) Playlists(ctx context.Context) ([]music.Playlist, error) {
	ps, err := p.Player.Playlists(ctx)
	p.d.observe(err)
	return ps, err
}

func (p observedPlayer) observe(err error) error {
	p.d.observe(err)
	return err
}
