package spotify

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/go-music-agent/internal/apperr"
)

// classify maps API failures onto the error taxonomy. 401 and token refresh
// failures are auth errors, 404 is not-found, 429, 5xx, timeouts and
// network failures are transient. Other API errors are internal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apperr.Wrap(kindForStatus(apiErr.Status), op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.Wrap(apperr.KindAuth, op, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTransient, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.KindTransient, op, err)
	}

	return apperr.Wrap(apperr.KindInternal, op, err)
}

func kindForStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return apperr.KindAuth
	case status == http.StatusNotFound:
		return apperr.KindNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		return apperr.KindTransient
	case status == http.StatusBadRequest:
		return apperr.KindInvalid
	}
	return apperr.KindInternal
}

// unavailable reports whether err means the resource simply is not offered
// for this item or application, as with audio features for newer apps.
func unavailable(err error) bool {
	var apiErr spotify.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound
}
