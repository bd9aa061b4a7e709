package daemon

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/config"
	"github.com/justestif/go-music-agent/internal/music"
)

type fakeCatalog struct {
	mu       sync.Mutex
	tracks   map[string]music.TrackReference
	artists  map[string]music.Artist
	features map[string]*music.AudioFeatures
	results  map[string][]music.TrackReference // exact query -> results
	queries  []string
	err      error

	delay       time.Duration
	inflight    atomic.Int32
	maxInflight atomic.Int32
	calls       atomic.Int32
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tracks:   make(map[string]music.TrackReference),
		artists:  make(map[string]music.Artist),
		features: make(map[string]*music.AudioFeatures),
		results:  make(map[string][]music.TrackReference),
	}
}

func (c *fakeCatalog) addArtist(a music.Artist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artists[a.ID] = a
}

func (c *fakeCatalog) addTrack(t music.TrackReference, f *music.AudioFeatures) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[t.ID] = t
	if f != nil {
		f.TrackID = t.ID
		c.features[t.ID] = f
	}
}

func (c *fakeCatalog) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeCatalog) enter() (func(), error) {
	c.calls.Add(1)
	n := c.inflight.Add(1)
	for {
		m := c.maxInflight.Load()
		if n <= m || c.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	return func() { c.inflight.Add(-1) }, err
}

func (c *fakeCatalog) Track(ctx context.Context, id string) (music.TrackReference, error) {
	done, err := c.enter()
	defer done()
	if err != nil {
		return music.TrackReference{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[id]
	if !ok {
		return music.TrackReference{}, apperr.NotFound("fake.track", "no track %s", id)
	}
	return t, nil
}

// SearchTracks returns the canned results for query, otherwise every track
// whose title or artist appears in it.
func (c *fakeCatalog) SearchTracks(ctx context.Context, query string, limit int) ([]music.TrackReference, error) {
	done, err := c.enter()
	defer done()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)

	if res, ok := c.results[query]; ok {
		return res, nil
	}
	q := strings.ToLower(query)
	var out []music.TrackReference
	for _, t := range c.tracks {
		if strings.Contains(q, strings.ToLower(t.Title)) || strings.Contains(q, strings.ToLower(t.Artist())) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b music.TrackReference) int { return strings.Compare(a.ID, b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *fakeCatalog) SearchArtists(ctx context.Context, query string, limit int) ([]music.Artist, error) {
	done, err := c.enter()
	defer done()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	q := strings.ToLower(query)
	var out []music.Artist
	for _, a := range c.artists {
		if strings.Contains(strings.ToLower(a.Name), q) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b music.Artist) int { return strings.Compare(a.ID, b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *fakeCatalog) Artist(ctx context.Context, id string) (music.Artist, error) {
	done, err := c.enter()
	defer done()
	if err != nil {
		return music.Artist{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.artists[id]
	if !ok {
		return music.Artist{}, apperr.NotFound("fake.artist", "no artist %s", id)
	}
	return a, nil
}

func (c *fakeCatalog) AudioFeatures(ctx context.Context, trackID string) (*music.AudioFeatures, error) {
	done, err := c.enter()
	defer done()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features[trackID], nil
}

func (c *fakeCatalog) searched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queries)
}

type fakePlayer struct {
	mu        sync.Mutex
	state     music.PlaybackState
	err       error
	played    [][]music.TrackReference
	playlists []music.Playlist
	started   []string // playlist names

	pauses       atomic.Int32
	currentCalls atomic.Int32
	panicOnPause bool
}

func (p *fakePlayer) setTrack(t *music.TrackReference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = music.PlaybackState{Playing: t != nil, Track: t}
}

func (p *fakePlayer) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakePlayer) Current(ctx context.Context) (music.PlaybackState, error) {
	p.currentCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.err
}

func (p *fakePlayer) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePlayer) Pause(ctx context.Context) error {
	if p.panicOnPause {
		panic("pause exploded")
	}
	p.pauses.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePlayer) Next(ctx context.Context) error     { return p.Resume(ctx) }
func (p *fakePlayer) Previous(ctx context.Context) error { return p.Resume(ctx) }

func (p *fakePlayer) PlayTracks(ctx context.Context, tracks []music.TrackReference) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.played = append(p.played, slices.Clone(tracks))
	t := tracks[0]
	p.state = music.PlaybackState{Playing: true, Track: &t}
	return nil
}

func (p *fakePlayer) PlayPlaylist(ctx context.Context, pl music.Playlist, shuffle bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.started = append(p.started, pl.Name)
	return nil
}

func (p *fakePlayer) Playlists(ctx context.Context) ([]music.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.playlists), p.err
}

func (p *fakePlayer) lastPlayed() []music.TrackReference {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.played) == 0 {
		return nil
	}
	return p.played[len(p.played)-1]
}

type fakeGenres struct {
	genres map[string][]string // by artist name
	calls  atomic.Int32
}

func (g *fakeGenres) Genres(ctx context.Context, artist, track string, limit int) ([]string, error) {
	g.calls.Add(1)
	if gs, ok := g.genres[artist]; ok {
		return gs, nil
	}
	return nil, apperr.NotFound("fake.genres", "no tags for %s", artist)
}

type fakeLyrics struct{ text string }

func (l fakeLyrics) Lyrics(ctx context.Context, artist, title string) (string, error) {
	if l.text == "" {
		return "", apperr.NotFound("fake.lyrics", "no lyrics")
	}
	return l.text, nil
}

// Fixture data.
var (
	hiatt = music.Artist{ID: "ar-hiatt", Name: "John Hiatt", Genres: []string{"americana", "singer-songwriter", "roots rock", "blues rock"}}
	enya  = music.Artist{ID: "ar-enya", Name: "Enya", Genres: []string{"new age", "celtic"}}

	haveALittleFaith = music.TrackReference{
		ID: "tr-faith", URI: "spotify:track:tr-faith", Title: "Have a Little Faith in Me",
		Artists: []string{"John Hiatt"}, ArtistID: "ar-hiatt", Album: "Bring the Family", Year: 1987,
		Duration: 4 * time.Minute,
	}
	orinocoFlow = music.TrackReference{
		ID: "tr-orinoco", URI: "spotify:track:tr-orinoco", Title: "Orinoco Flow",
		Artists: []string{"Enya"}, ArtistID: "ar-enya", Album: "Watermark", Year: 1988,
		Duration: 266 * time.Second,
	}
)

type testEnv struct {
	d       *Daemon
	catalog *fakeCatalog
	player  *fakePlayer
	genres  *fakeGenres
}

// shortSocketPath keeps unix socket paths under the platform limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ma")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:      t.TempDir(),
		DBPath:       filepath.Join(t.TempDir(), "music.db"),
		SocketPath:   shortSocketPath(t),
		PollInterval: time.Hour,
		DrainTimeout: time.Second,
		Player:       config.PlayerSpotify,
	}
}

func newEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		catalog: newFakeCatalog(),
		player:  &fakePlayer{},
		genres:  &fakeGenres{genres: map[string][]string{}},
	}
	env.catalog.addArtist(hiatt)
	env.catalog.addArtist(enya)
	env.catalog.addTrack(haveALittleFaith, &music.AudioFeatures{Energy: 0.3, Valence: 0.35, Danceability: 0.4, Acousticness: 0.8, Tempo: 82})
	env.catalog.addTrack(orinocoFlow, nil)

	connect := func(ctx context.Context) (*Session, error) {
		return &Session{Catalog: env.catalog, Player: env.player}, nil
	}
	opts = append([]Option{WithGenreSource(env.genres)}, opts...)
	env.d = New(testConfig(t), connect, opts...)
	return env
}

// start opens the store and session without serving IPC.
func (env *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, env.d.start(context.Background()))
	t.Cleanup(env.d.closeResources)
}
