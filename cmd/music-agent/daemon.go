package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justestif/go-music-agent/internal/auth"
	"github.com/justestif/go-music-agent/internal/config"
	"github.com/justestif/go-music-agent/internal/daemon"
	"github.com/justestif/go-music-agent/internal/ipc"
	"github.com/justestif/go-music-agent/internal/lastfm"
	"github.com/justestif/go-music-agent/internal/logging"
	"github.com/justestif/go-music-agent/internal/lyrics"
	"github.com/justestif/go-music-agent/internal/metrics"
	"github.com/justestif/go-music-agent/internal/mpd"
	"github.com/justestif/go-music-agent/internal/search"
	"github.com/justestif/go-music-agent/internal/spotify"
	"github.com/justestif/go-music-agent/internal/web"
)

func newDaemonCmd(c *cli) *cobra.Command {
	var background bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the music daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if background {
				return c.startBackground(cmd.Context())
			}
			return runDaemon(cmd.Context(), c.cfg)
		},
	}
	cmd.Flags().BoolVar(&background, "background", false, "start the daemon detached and return once it answers")
	return cmd
}

// runDaemon runs the daemon in the foreground until ctx is cancelled or a
// stop request arrives.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	logger, closer, err := logging.New(logging.Options{Path: cfg.LogPath, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer closer.Close()

	m := metrics.New()
	opts := []daemon.Option{
		daemon.WithLogger(logger),
		daemon.WithMetrics(m),
		daemon.WithLyricsSource(lyrics.New()),
	}
	if cfg.LastFMAPIKey != "" {
		opts = append(opts, daemon.WithGenreSource(lastfm.New(cfg.LastFMAPIKey)))
	}
	if cfg.MoodsFile != "" {
		moods, err := search.LoadMoodMap(cfg.MoodsFile)
		if err != nil {
			return err
		}
		opts = append(opts, daemon.WithMoodMap(moods))
	}

	var admin *web.Server
	if cfg.HTTPAddr != "" {
		opts = append(opts, daemon.WithService(func(ctx context.Context) error {
			return admin.Run(ctx)
		}))
	}

	d := daemon.New(cfg, connector(cfg), opts...)
	if cfg.HTTPAddr != "" {
		admin, err = web.NewServer(web.ServerConfig{
			Addr:    cfg.HTTPAddr,
			Logger:  logger.With("component", "web"),
			Metrics: m.Handler(),
		}, d)
		if err != nil {
			return err
		}
	}

	err = d.Run(ctx)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		logger.Warn("another daemon owns the socket", "socket", cfg.SocketPath)
	}
	if err != nil {
		logger.Error("daemon stopped", "error", err)
	}
	return err
}

// connector opens the catalog session, and the MPD player when configured.
func connector(cfg *config.Config) daemon.Connector {
	return func(ctx context.Context) (*daemon.Session, error) {
		if err := cfg.RequireSpotify(); err != nil {
			return nil, err
		}
		loader, err := auth.New(cfg.SpotifyID, cfg.SpotifySecret, cfg.Credentials)
		if err != nil {
			return nil, err
		}
		api, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}

		client := spotify.New(api, spotify.WithRateLimit(cfg.SpotifyRate))
		session := &daemon.Session{
			Catalog: client,
			Player:  client,
			// Keep a token refreshed while running for the next start.
			Close: func() error { return loader.Persist(api, nil) },
		}

		if cfg.Player == config.PlayerMPD {
			player := mpd.New(cfg.MPDAddr, cfg.MPDPassword)
			if err := player.Ping(ctx); err != nil {
				return nil, fmt.Errorf("reaching mpd at %s: %w", cfg.MPDAddr, err)
			}
			session.Player = player
		}
		return session, nil
	}
}

// startBackground spawns a detached daemon and waits until it answers.
func (c *cli) startBackground(ctx context.Context) error {
	client := ipc.NewClient(c.cfg.SocketPath)
	if _, err := client.Send(ctx, daemon.OpPing); err == nil {
		fmt.Println("Daemon already running.")
		return nil
	}
	pid, err := spawnDaemon(c.cfg)
	if err != nil {
		return err
	}
	if err := waitReady(ctx, client); err != nil {
		return fmt.Errorf("daemon (pid %d) did not start, see %s: %w", pid, c.cfg.LogPath, err)
	}
	fmt.Fprintf(os.Stdout, "Daemon started (pid %d).\n", pid)
	return nil
}
