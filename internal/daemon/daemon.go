// Package daemon is the long-lived core of the music agent. It owns the
// knowledge store and the authenticated session, runs the poll loop that
// notices track changes, and answers requests arriving over IPC.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-music-agent/internal/config"
	"github.com/justestif/go-music-agent/internal/ipc"
	"github.com/justestif/go-music-agent/internal/logging"
	"github.com/justestif/go-music-agent/internal/metrics"
	"github.com/justestif/go-music-agent/internal/music"
	"github.com/justestif/go-music-agent/internal/search"
	"github.com/justestif/go-music-agent/internal/store"
)

// State is the lifecycle state of a Daemon.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// DefaultBackfillConcurrency is the number of tracks analyzed at once by
// backfill.
const DefaultBackfillConcurrency = 4

// Service runs alongside the IPC server and the poll loop until ctx is
// cancelled. A non-nil error stops the daemon.
type Service func(ctx context.Context) error

// Daemon is the music agent core. A Daemon runs once.
type Daemon struct {
	cfg         *config.Config
	connect     Connector
	genres      GenreSource
	lyrics      LyricsSource
	moods       search.MoodMap
	metrics     *metrics.Metrics
	logger      *slog.Logger
	services    []Service
	concurrency int

	// Set while starting, read-only afterwards.
	store        *store.Store
	catalog      Catalog
	player       Player
	closeSession func() error

	events *broadcaster
	ready  chan struct{}

	// transition orders player changes made by handlers against the poll
	// cycle's read-and-compare of the current track.
	transition sync.Mutex

	mu         sync.Mutex
	state      State
	lastSeen   *music.TrackReference
	degraded   bool
	lastPoll   PollOutcome
	lastPollAt time.Time
	startedAt  time.Time
	stop       context.CancelFunc
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// WithMetrics sets the metrics the daemon records into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithGenreSource sets the fallback genre source used when the catalog
// knows no genres for an artist.
func WithGenreSource(g GenreSource) Option {
	return func(d *Daemon) { d.genres = g }
}

// WithLyricsSource enables the lyrics command.
func WithLyricsSource(l LyricsSource) Option {
	return func(d *Daemon) { d.lyrics = l }
}

// WithMoodMap replaces the built-in genre to mood table.
func WithMoodMap(m search.MoodMap) Option {
	return func(d *Daemon) { d.moods = m }
}

// WithService adds a service to the running daemon.
func WithService(s Service) Option {
	return func(d *Daemon) { d.services = append(d.services, s) }
}

// WithBackfillConcurrency sets how many tracks backfill analyzes at once.
func WithBackfillConcurrency(n int) Option {
	return func(d *Daemon) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a stopped daemon. connect is called while starting to obtain
// the catalog and player session.
func New(cfg *config.Config, connect Connector, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:         cfg,
		connect:     connect,
		moods:       search.DefaultMoodMap(),
		logger:      logging.Discard(),
		concurrency: DefaultBackfillConcurrency,
		events:      newBroadcaster(),
		ready:       make(chan struct{}),
		state:       StateStopped,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	return d
}

// Run starts the daemon and blocks until it has stopped. It stops when ctx
// is cancelled, when Stop is called or when a component fails. A failure
// while starting is returned without entering the running state.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateStopped || d.stop != nil {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.stop = cancel
	d.mu.Unlock()

	d.setState(StateStarting)
	if err := d.start(runCtx); err != nil {
		d.closeResources()
		d.setState(StateStopped)
		return err
	}

	server := ipc.NewServer(d.cfg.SocketPath, d, d.logger.With("component", "ipc"),
		ipc.WithConnTracker(d.metrics),
		ipc.WithDrainTimeout(d.cfg.DrainTimeout),
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error { return d.pollLoop(gctx) })
	for _, svc := range d.services {
		svc := svc
		g.Go(func() error { return svc(gctx) })
	}
	g.Go(func() error {
		select {
		case <-server.Ready():
			d.setState(StateRunning)
			close(d.ready)
		case <-gctx.Done():
		}
		<-gctx.Done()
		d.setState(StateStopping)
		return nil
	})

	err := g.Wait()
	d.closeResources()
	d.setState(StateStopped)
	return err
}

// start opens the store and the session.
func (d *Daemon) start(ctx context.Context) error {
	st, err := store.Open(ctx, d.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	d.store = st

	session, err := d.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting session: %w", err)
	}
	d.catalog = observedCatalog{session.Catalog, d}
	d.player = observedPlayer{session.Player, d}
	d.closeSession = session.Close

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.logger.Info("daemon started",
		"pid", os.Getpid(),
		"store", d.store.Backend(),
		"player", d.cfg.Player,
		"socket", d.cfg.SocketPath,
	)
	return nil
}

func (d *Daemon) closeResources() {
	if d.closeSession != nil {
		if err := d.closeSession(); err != nil {
			d.logger.Warn("closing session", "error", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing store", "error", err)
		}
	}
}

// Stop asks a running daemon to shut down. It does not wait.
func (d *Daemon) Stop() {
	d.mu.Lock()
	stop := d.stop
	d.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Ready is closed once the daemon is running and accepting requests.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	d.mu.Unlock()
	if prev != s {
		d.logger.Info("state changed", "from", prev, "to", s)
		d.events.publish(Event{Kind: EventState, Outcome: string(s)})
	}
}

// Subscribe returns a channel of daemon events and a function that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (d *Daemon) Subscribe() (<-chan Event, func()) {
	return d.events.subscribe()
}

// Degraded reports whether the catalog rejected the session credentials on
// the most recent external call.
func (d *Daemon) Degraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

// observe updates the degraded flag from the result of an external call.
func (d *Daemon) observe(err error) {
	var degraded bool
	switch {
	case err == nil:
	case isAuth(err):
		degraded = true
	default:
		return
	}

	d.mu.Lock()
	changed := d.degraded != degraded
	d.degraded = degraded
	d.mu.Unlock()
	if !changed {
		return
	}

	d.metrics.SetDegraded(degraded)
	if degraded {
		d.logger.Warn("catalog rejected credentials, running degraded", "error", err)
		d.events.publish(Event{Kind: EventState, Outcome: "degraded"})
		return
	}
	d.logger.Info("catalog reachable again, leaving degraded mode")
	d.events.publish(Event{Kind: EventState, Outcome: "recovered"})
}

// Status is the daemon's self report.
type Status struct {
	State        State      `json:"state"`
	PID          int        `json:"pid"`
	Uptime       string     `json:"uptime"`
	Degraded     bool       `json:"degraded"`
	Player       string     `json:"player"`
	Store        string     `json:"store"`
	PollInterval string     `json:"poll_interval"`
	LastPoll     string     `json:"last_poll,omitempty"`
	LastPollAt   *time.Time `json:"last_poll_at,omitempty"`
	LastSeen     *TrackView `json:"last_seen,omitempty"`
	Plays        int64      `json:"plays"`
}

// Status reports the daemon state. The play count is omitted when the
// store cannot be read.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	st := Status{
		State:        d.state,
		PID:          os.Getpid(),
		Degraded:     d.degraded,
		Player:       d.cfg.Player,
		PollInterval: d.cfg.PollInterval.String(),
		LastPoll:     string(d.lastPoll),
	}
	if !d.startedAt.IsZero() {
		st.Uptime = time.Since(d.startedAt).Round(time.Second).String()
	}
	if !d.lastPollAt.IsZero() {
		at := d.lastPollAt
		st.LastPollAt = &at
	}
	if d.lastSeen != nil {
		v := ViewTrack(*d.lastSeen)
		st.LastSeen = &v
	}
	d.mu.Unlock()

	if d.store != nil {
		st.Store = d.store.Backend()
		if n, err := d.store.PlayCount(ctx); err == nil {
			st.Plays = n
		}
	}
	return st
}

func (d *Daemon) lastSeenTrack() *music.TrackReference {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

func (d *Daemon) setLastSeen(t *music.TrackReference) {
	d.mu.Lock()
	d.lastSeen = t
	d.mu.Unlock()
}

// advanceLastSeen sets last-seen to t only if it still holds fromID. A
// handler that started playback meanwhile has already moved it on.
func (d *Daemon) advanceLastSeen(fromID string, t *music.TrackReference) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	var id string
	if d.lastSeen != nil {
		id = d.lastSeen.ID
	}
	if id != fromID {
		return false
	}
	d.lastSeen = t
	return true
}
