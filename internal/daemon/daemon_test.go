package daemon

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-music-agent/internal/ipc"
)

func runDaemon(t *testing.T, d *Daemon) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	select {
	case <-d.Ready():
	case err := <-done:
		t.Fatalf("daemon exited while starting: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}
	return done
}

func TestRunServesUntilStopped(t *testing.T) {
	env := newEnv(t)
	done := runDaemon(t, env.d)
	assert.Equal(t, StateRunning, env.d.State())

	client := ipc.NewClient(env.d.cfg.SocketPath)
	ctx := context.Background()

	resp, err := client.Send(ctx, "ping")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "pong", resp.Message)

	resp, err = client.Send(ctx, "status")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Message, "Daemon running")

	resp, err = client.Send(ctx, "stop")
	require.NoError(t, err)
	assert.True(t, resp.OK)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, StateStopped, env.d.State())

	_, err = os.Stat(env.d.cfg.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket left behind")

	assert.Error(t, env.d.Run(context.Background()), "a daemon runs once")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	env := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.d.Run(ctx) }()
	<-env.d.Ready()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRunFailsWhenSessionCannotConnect(t *testing.T) {
	cfg := testConfig(t)
	boom := errors.New("no credentials")
	d := New(cfg, func(context.Context) (*Session, error) { return nil, boom })

	err := d.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateStopped, d.State())

	select {
	case <-d.Ready():
		t.Fatal("ready closed for a daemon that never started")
	default:
	}
}

func TestServiceFailureStopsDaemon(t *testing.T) {
	boom := errors.New("admin listener failed")
	env := newEnv(t, WithService(func(ctx context.Context) error {
		return boom
	}))

	done := make(chan error, 1)
	go func() { done <- env.d.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon kept running after a service failed")
	}
	assert.Equal(t, StateStopped, env.d.State())
}

func TestSessionClosedOnStop(t *testing.T) {
	env := newEnv(t)
	closed := make(chan struct{})
	env.d.connect = func(context.Context) (*Session, error) {
		return &Session{
			Catalog: env.catalog,
			Player:  env.player,
			Close:   func() error { close(closed); return nil },
		}, nil
	}

	done := runDaemon(t, env.d)
	env.d.Stop()
	require.NoError(t, <-done)

	select {
	case <-closed:
	default:
		t.Fatal("session not closed")
	}
}
