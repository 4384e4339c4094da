// Package resolver turns a feed name typed by a user into the canonical
// identity of an external feed.
package resolver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when the feed does not exist or is not public.
	ErrNotFound = errors.New("feed not found")
	// ErrRateLimited is returned when the feed service throttles the bot.
	ErrRateLimited = errors.New("rate limited by feed service")
	// ErrInvalidResponse is returned when the service response lacks an id or a name.
	ErrInvalidResponse = errors.New("invalid response from feed service")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Feed is the canonical identity of an external feed.
type Feed struct {
	ExternalID string
	Name       string
}

func statusErr(code int) error {
	switch code {
	case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
