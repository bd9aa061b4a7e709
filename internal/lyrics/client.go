// Package lyrics fetches song lyrics from the lyrics.ovh API.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
)

const (
	baseURL   = "https://api.lyrics.ovh/v1/"
	userAgent = "music-agent/1.0"

	maxBodyBytes = 1 << 20
)

// ErrNotFound is returned when no lyrics exist for the song.
var ErrNotFound = errors.New("no lyrics found")

type response struct {
	Lyrics string `json:"lyrics"`
	Error  string `json:"error"`
}

// Client fetches lyrics over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a lyrics client.
func New() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

// Lyrics returns the lyrics of title by artist with normalized line endings.
func (c *Client) Lyrics(ctx context.Context, artist, title string) (string, error) {
	const op = "lyrics"
	if artist == "" || title == "" {
		return "", apperr.Invalid(op, "artist and title are required")
	}

	reqURL := c.baseURL + url.PathEscape(artist) + "/" + url.PathEscape(title)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, op, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, op, fmt.Errorf("reading response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", &apperr.Error{Kind: apperr.KindNotFound, Op: op, Msg: fmt.Sprintf("no lyrics found for %s by %s", title, artist), Err: ErrNotFound}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", apperr.Wrap(apperr.KindTransient, op, fmt.Errorf("server returned %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return "", apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return "", apperr.Wrap(apperr.KindTransient, op, fmt.Errorf("parsing response: %w", err))
	}
	text := clean(r.Lyrics)
	if text == "" {
		return "", &apperr.Error{Kind: apperr.KindNotFound, Op: op, Msg: fmt.Sprintf("no lyrics found for %s by %s", title, artist), Err: ErrNotFound}
	}
	return text, nil
}

// clean normalizes CRLF line endings and drops the "Paroles de la chanson"
// header lyrics.ovh sometimes prepends.
func clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if first, rest, ok := strings.Cut(s, "\n"); ok && strings.HasPrefix(first, "Paroles de la chanson") {
		s = rest
	}
	return strings.TrimSpace(s)
}
