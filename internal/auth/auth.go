package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-music-agent/internal/apperr"
)

var (
	// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

	// ErrNoCachedToken is returned when no token has been cached yet.
	// Obtaining one is outside this program.
	ErrNoCachedToken = errors.New("no cached Spotify token")
)

// Scopes the cached token must carry for playback control and reading.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopeUserLibraryRead,
}

// Loader builds an authenticated Spotify client from a cached OAuth token.
// It never runs the interactive authorization flow.
type Loader struct {
	auth  *spotifyauth.Authenticator
	cache *TokenCache
}

// New creates a Loader. Returns ErrMissingCredentials if either
// credential is empty.
func New(clientID, clientSecret, tokenPath string) (*Loader, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	return &Loader{
		auth:  auth,
		cache: NewTokenCache(tokenPath),
	}, nil
}

// Cache returns the token cache the loader reads from.
func (l *Loader) Cache() *TokenCache {
	return l.cache
}

// Load returns an authenticated Spotify client. The token refreshes itself
// through ctx for as long as ctx lives, so pass a context that outlives
// the session.
func (l *Loader) Load(ctx context.Context) (*spotify.Client, error) {
	const op = "auth.load"

	token, err := l.cache.Load()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, op, fmt.Errorf("loading cached token: %w", err))
	}
	if token == nil {
		return nil, &apperr.Error{
			Kind: apperr.KindAuth,
			Op:   op,
			Msg:  "no cached credentials at " + l.cache.Path(),
			Err:  ErrNoCachedToken,
		}
	}

	// oauth2 refreshes the token transparently when it expires
	client := spotify.New(l.auth.Client(ctx, token), spotify.WithRetry(true))

	if _, err := client.CurrentUser(ctx); err != nil {
		return nil, apperr.Wrap(verifyKind(err), op, fmt.Errorf("verifying cached token: %w", err))
	}

	if err := l.Persist(client, token); err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, op, err)
	}
	return client, nil
}

// Persist saves the client's current token when it differs from prev,
// which happens after a refresh.
func (l *Loader) Persist(client *spotify.Client, prev *oauth2.Token) error {
	current, err := client.Token()
	if err != nil {
		return fmt.Errorf("reading current token: %w", err)
	}
	if prev != nil && current.AccessToken == prev.AccessToken {
		return nil
	}
	return l.cache.Save(current)
}

// verifyKind separates a rejected token from a network failure.
func verifyKind(err error) apperr.Kind {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.KindAuth
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return apperr.KindAuth
	}
	return apperr.KindTransient
}
