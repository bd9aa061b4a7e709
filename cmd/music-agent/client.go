package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/justestif/go-music-agent/internal/auth"
	"github.com/justestif/go-music-agent/internal/daemon"
	"github.com/justestif/go-music-agent/internal/ipc"
)

const (
	readyTimeout  = 15 * time.Second
	readyInterval = 100 * time.Millisecond
)

// command sends a plain-language command, starting the daemon first when
// nothing listens on the socket. The command is retried once after the
// start; a request the daemon may have received is never resent.
func (c *cli) command(ctx context.Context, command string) error {
	client := ipc.NewClient(c.cfg.SocketPath)
	resp, err := client.Send(ctx, command)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(os.Stderr, "Starting the music daemon...")
		if _, serr := spawnDaemon(c.cfg); serr != nil {
			return serr
		}
		if werr := waitReady(ctx, client); werr != nil {
			return fmt.Errorf("daemon did not start, see %s: %w", c.cfg.LogPath, werr)
		}
		resp, err = client.Send(ctx, command)
	}
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// admin sends an opcode and never starts the daemon.
func (c *cli) admin(ctx context.Context, op string) error {
	resp, err := ipc.NewClient(c.cfg.SocketPath).Send(ctx, op)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Println("Daemon is not running.")
		if op == daemon.OpStatus {
			fmt.Println(sessionStatus(c.cfg.Credentials))
		}
		return nil
	}
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// sessionStatus tells whether a started daemon would find a usable Spotify
// token.
func sessionStatus(credentials string) string {
	if auth.NewTokenCache(credentials).Valid() {
		return "Spotify session: cached token at " + credentials
	}
	return "Spotify session: no usable token at " + credentials
}

// errCommandFailed reports a failure the daemon already explained.
var errCommandFailed = errors.New("command failed")

func printResponse(resp ipc.Response) error {
	if !resp.OK {
		fmt.Fprintln(os.Stderr, resp.Message)
		return errCommandFailed
	}
	fmt.Println(resp.Message)
	return nil
}

// waitReady pings the daemon until it answers or readyTimeout passes.
func waitReady(ctx context.Context, client *ipc.Client) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Send(pingCtx, daemon.OpPing)
		pingCancel()
		if err == nil && resp.OK {
			return nil
		}
		select {
		case <-ctx.Done():
			if err == nil {
				err = resp.Err()
			}
			return fmt.Errorf("waiting for daemon: %w", err)
		case <-ticker.C:
		}
	}
}
