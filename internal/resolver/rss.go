package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// RSS resolves RSS and Atom feeds given their URL.
type RSS struct {
	client HTTPClient
	parser *gofeed.Parser
}

// NewRSS creates an RSS resolver with the given HTTP client.
func NewRSS(client HTTPClient) *RSS {
	return &RSS{
		client: client,
		parser: gofeed.NewParser(),
	}
}

// Resolve downloads and parses the feed at rawURL. The feed's self link is used
// as its external ID when present, so different URLs of one feed collapse.
func (r *RSS) Resolve(ctx context.Context, rawURL string) (Feed, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Feed{}, fmt.Errorf("%w: %q is not an http(s) URL", ErrNotFound, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Feed{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "FeedMirrorBot/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return Feed{}, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Feed{}, fmt.Errorf("%s: %w", rawURL, statusErr(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return Feed{}, fmt.Errorf("read body: %w", err)
	}

	feed, err := r.parser.ParseString(string(body))
	if err != nil {
		return Feed{}, fmt.Errorf("%w: parse feed: %v", ErrInvalidResponse, err)
	}

	name := strings.TrimSpace(feed.Title)
	if name == "" {
		return Feed{}, fmt.Errorf("%s: feed has no title: %w", rawURL, ErrInvalidResponse)
	}
	id := strings.TrimSpace(feed.FeedLink)
	if id == "" {
		id = rawURL
	}
	return Feed{ExternalID: id, Name: name}, nil
}
