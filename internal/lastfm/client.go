// Package lastfm fetches community tags from Last.fm. The daemon uses them
// as genres when the catalog has none for an artist.
package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
)

const (
	baseURL   = "http://ws.audioscrobbler.com/2.0/"
	userAgent = "music-agent/1.0"

	// minTagCount drops tags applied by too few listeners to be meaningful.
	// Counts are relative, 100 being the most used tag for the subject.
	minTagCount = 10
)

// Last.fm API error codes.
const (
	errCodeInvalidParams = 6
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when the API rate limit is exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Tags that describe the listener rather than the music.
var nonGenreTags = map[string]bool{
	"seen live":            true,
	"favorites":            true,
	"favourites":           true,
	"favorite":             true,
	"favourite":            true,
	"my favorites":         true,
	"love":                 true,
	"loved":                true,
	"awesome":              true,
	"beautiful":            true,
	"albums i own":         true,
	"under 2000 listeners": true,
	"spotify":              true,
	"check out":            true,
	"favorite songs":       true,
	"favourite songs":      true,
}

// Client is a Last.fm API client with caching and retry on rate limiting.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	baseURL     string
	retryDelays []time.Duration

	// key = "track:{artist}:{track}" or "artist:{artist}"
	cache   map[string][]Tag
	cacheMu sync.RWMutex
}

// New creates a Last.fm client for apiKey.
func New(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:     baseURL,
		retryDelays: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		cache:       make(map[string][]Tag),
	}
}

// Genres returns up to limit genre-like tags for a track, lowercased and
// ordered by popularity. Track tags are preferred; artist tags are the
// fallback.
func (c *Client) Genres(ctx context.Context, artist, track string, limit int) ([]string, error) {
	tags, err := c.TopTags(ctx, artist, track)
	if err != nil {
		return nil, err
	}
	return genreNames(tags, limit), nil
}

// TopTags fetches tags for a track, falling back to artist tags if the
// track has none. Results are cached in memory. Returns an empty slice
// (not nil) if no tags are found.
func (c *Client) TopTags(ctx context.Context, artist, track string) ([]Tag, error) {
	if track != "" {
		tags, err := c.trackTags(ctx, artist, track)
		if err != nil {
			return nil, err
		}
		if len(tags) > 0 {
			return tags, nil
		}
	}
	return c.artistTags(ctx, artist)
}

func (c *Client) trackTags(ctx context.Context, artist, track string) ([]Tag, error) {
	params := url.Values{
		"method": {"track.getTopTags"},
		"artist": {artist},
		"track":  {track},
	}
	return c.cachedTags(ctx, "track:"+artist+":"+track, params, parseTopTags("track"))
}

func (c *Client) artistTags(ctx context.Context, artist string) ([]Tag, error) {
	params := url.Values{
		"method": {"artist.getTopTags"},
		"artist": {artist},
	}
	return c.cachedTags(ctx, "artist:"+artist, params, parseTopTags("artist"))
}

// Tag is a Last.fm tag. Count weighs it from 0 to 100 and may be missing.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

// topTagsResponse is the body of both track.getTopTags and artist.getTopTags.
type topTagsResponse struct {
	TopTags struct {
		Tag []Tag `json:"tag"`
	} `json:"toptags"`
}

func parseTopTags(method string) func([]byte) ([]Tag, error) {
	return func(body []byte) ([]Tag, error) {
		var resp topTagsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parsing %s tags response: %w", method, err)
		}
		return resp.TopTags.Tag, nil
	}
}

func (c *Client) cachedTags(ctx context.Context, key string, params url.Values, parse func([]byte) ([]Tag, error)) ([]Tag, error) {
	c.cacheMu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	params.Set("autocorrect", "1")
	params.Set("format", "json")
	params.Set("api_key", c.apiKey)

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, classify(fmt.Errorf("fetching %s: %w", params.Get("method"), err))
	}

	tags, err := parse(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "lastfm", err)
	}
	if tags == nil {
		tags = []Tag{}
	}

	c.cacheMu.Lock()
	c.cache[key] = tags
	c.cacheMu.Unlock()

	return tags, nil
}

// doRequest performs an HTTP GET request, retrying on rate limit after
// each of c.retryDelays.
func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelays[attempt-1]):
			}
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrRateLimited) {
			lastErr = err
			continue
		}
		return nil, err
	}

	return nil, lastErr
}

func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var apiErr struct {
		Code    int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		switch apiErr.Code {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		case errCodeInvalidParams:
			return nil, apperr.NotFound("lastfm", "%s", apiErr.Message)
		default:
			return nil, fmt.Errorf("API error %d: %s", apiErr.Code, apiErr.Message)
		}
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return body, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		return apperr.Wrap(apperr.KindAuth, "lastfm", err)
	case apperr.Is(err, apperr.KindNotFound):
		return err
	}
	return apperr.Wrap(apperr.KindTransient, "lastfm", err)
}

func genreNames(tags []Tag, limit int) []string {
	var names []string
	seen := make(map[string]bool)
	for _, t := range tags {
		if len(names) == limit {
			break
		}
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" || seen[name] || nonGenreTags[name] {
			continue
		}
		// artist.getTopTags responses carry counts too; absent means 0
		if t.Count > 0 && t.Count < minTagCount {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
