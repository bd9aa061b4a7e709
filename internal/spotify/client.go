// Package spotify adapts the Spotify Web API to the catalog and playback
// interfaces used by the daemon.
package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"

	"github.com/justestif/go-music-agent/internal/apperr"
)

const (
	// maxTracksPerRequest is the Spotify limit for batched track endpoints.
	maxTracksPerRequest = 100

	defaultRate  = rate.Limit(5)
	defaultBurst = 10
)

// Client wraps the Spotify API client. Every request waits on a shared
// rate limiter.
type Client struct {
	api     *spotify.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps requests per second. Bursts of up to two seconds'
// worth of requests are allowed.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(2*perSecond)))
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.Wrap(apperr.KindTransient, op, err)
	}
	return nil
}
