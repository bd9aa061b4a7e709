// Package mpd is a playback surface backed by a Music Player Daemon server.
//
// Tracks from the remote catalog are located in the MPD database by artist
// and title before they are queued.
package mpd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

// IDPrefix marks track ids that are MPD file paths rather than catalog ids.
const IDPrefix = "mpd:"

const defaultTimeout = 3 * time.Second

// Player drives an MPD server. Each call uses its own short-lived
// connection, so a restarted server is picked up transparently.
type Player struct {
	network  string
	addr     string
	password string
	timeout  time.Duration
}

// New creates a Player for addr, which is host:port or the path of a unix
// socket.
func New(addr, password string) *Player {
	network := "tcp"
	if strings.HasPrefix(addr, "/") {
		network = "unix"
	}
	return &Player{network: network, addr: addr, password: password, timeout: defaultTimeout}
}

// Ping checks that the server is reachable.
func (p *Player) Ping(ctx context.Context) error {
	return p.do(ctx, "mpd.ping", func(c *mpd.Client) error { return c.Ping() })
}

// Current returns the current song. Track is nil when the player is
// stopped or the queue is empty.
func (p *Player) Current(ctx context.Context) (music.PlaybackState, error) {
	var state music.PlaybackState
	err := p.do(ctx, "mpd.current", func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return err
		}
		if status["state"] == "stop" {
			return nil
		}
		song, err := c.CurrentSong()
		if err != nil {
			return err
		}
		if len(song) == 0 {
			return nil
		}
		track := attrsToTrack(song)
		state = music.PlaybackState{Playing: status["state"] == "play", Track: &track}
		return nil
	})
	return state, err
}

// Resume continues playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.do(ctx, "mpd.resume", func(c *mpd.Client) error { return c.Play(-1) })
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.do(ctx, "mpd.pause", func(c *mpd.Client) error { return c.Pause(true) })
}

// Next skips to the next song in the queue.
func (p *Player) Next(ctx context.Context) error {
	return p.do(ctx, "mpd.next", func(c *mpd.Client) error { return c.Next() })
}

// Previous returns to the previous song in the queue.
func (p *Player) Previous(ctx context.Context) error {
	return p.do(ctx, "mpd.previous", func(c *mpd.Client) error { return c.Previous() })
}

// PlayTracks replaces the queue with the songs in the MPD database that
// match tracks. Tracks the database does not hold are skipped; if none
// match the call fails with a not-found error.
func (p *Player) PlayTracks(ctx context.Context, tracks []music.TrackReference) error {
	const op = "mpd.play_tracks"
	var missing bool
	err := p.do(ctx, op, func(c *mpd.Client) error {
		var files []string
		for _, t := range tracks {
			if file := locate(c, t); file != "" {
				files = append(files, file)
			}
		}
		if len(files) == 0 {
			missing = true
			return nil
		}

		if err := c.Clear(); err != nil {
			return err
		}
		for _, f := range files {
			if err := c.Add(f); err != nil {
				return fmt.Errorf("adding %s: %w", f, err)
			}
		}
		return c.Play(0)
	})
	if err != nil {
		return err
	}
	if missing {
		return apperr.NotFound(op, "none of the tracks are in the MPD library")
	}
	return nil
}

// PlayPlaylist loads a stored playlist into the queue and starts it.
func (p *Player) PlayPlaylist(ctx context.Context, pl music.Playlist, shuffle bool) error {
	return p.do(ctx, "mpd.play_playlist", func(c *mpd.Client) error {
		if err := c.Clear(); err != nil {
			return err
		}
		if err := c.PlaylistLoad(pl.Name, -1, -1); err != nil {
			return fmt.Errorf("loading playlist %s: %w", pl.Name, err)
		}
		if err := c.Random(shuffle); err != nil {
			return err
		}
		return c.Play(0)
	})
}

// Playlists lists the stored playlists.
func (p *Player) Playlists(ctx context.Context) ([]music.Playlist, error) {
	var playlists []music.Playlist
	err := p.do(ctx, "mpd.playlists", func(c *mpd.Client) error {
		list, err := c.ListPlaylists()
		if err != nil {
			return err
		}
		for _, attrs := range list {
			name := attrs["playlist"]
			if name == "" {
				continue
			}
			playlists = append(playlists, music.Playlist{ID: IDPrefix + "playlist:" + name, URI: name, Name: name})
		}
		return nil
	})
	return playlists, err
}

// do runs fn on a fresh connection, bounded by ctx and the player timeout.
func (p *Player) do(ctx context.Context, op string, fn func(*mpd.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var c *mpd.Client
	var err error
	if p.password != "" {
		c, err = mpd.DialAuthenticated(p.network, p.addr, p.password)
	} else {
		c, err = mpd.Dial(p.network, p.addr)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, op, fmt.Errorf("connecting to mpd at %s: %w", p.addr, err))
	}

	done := make(chan error, 1)
	go func() { done <- fn(c) }()

	select {
	case err = <-done:
		c.Close()
	case <-ctx.Done():
		// closing the connection unblocks fn
		c.Close()
		<-done
		return apperr.Wrap(apperr.KindTransient, op, ctx.Err())
	}

	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindTransient, op, err)
}

// locate returns the MPD file for t, or "" when the library lacks it.
func locate(c *mpd.Client, t music.TrackReference) string {
	if file, ok := strings.CutPrefix(t.ID, IDPrefix); ok {
		return file
	}
	if t.Title == "" {
		return ""
	}

	args := []string{"title", t.Title}
	if artist := t.PrimaryArtist(); artist != "" {
		args = append(args, "artist", artist)
	}
	if res, err := c.Find(args...); err == nil && len(res) > 0 {
		return res[0]["file"]
	}
	// Search is case-insensitive and matches substrings
	if res, err := c.Search(args...); err == nil && len(res) > 0 {
		return res[0]["file"]
	}
	return ""
}

// attrsToTrack converts an MPD song to a TrackReference. The file path is
// the identity; MPD has no artist ids.
func attrsToTrack(a mpd.Attrs) music.TrackReference {
	title := a["Title"]
	if title == "" {
		title = fileTitle(a["file"])
	}

	var artists []string
	if artist := a["Artist"]; artist != "" {
		artists = []string{artist}
	}

	return music.TrackReference{
		ID:       IDPrefix + a["file"],
		URI:      a["file"],
		Title:    title,
		Artists:  artists,
		Album:    a["Album"],
		Duration: duration(a),
		Year:     year(a["Date"]),
	}
}

func duration(a mpd.Attrs) time.Duration {
	if d, err := strconv.ParseFloat(a["duration"], 64); err == nil {
		return time.Duration(math.Round(d*1000)) * time.Millisecond
	}
	if secs, err := strconv.Atoi(a["Time"]); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func year(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

// fileTitle derives a title from a path like "Artist/Album/01 - Song.flac".
func fileTitle(file string) string {
	base := file[strings.LastIndex(file, "/")+1:]
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if _, rest, ok := strings.Cut(base, " - "); ok {
		base = rest
	}
	return strings.TrimSpace(base)
}
