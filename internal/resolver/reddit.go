package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultRedditURL serves public, unauthenticated requests.
	DefaultRedditURL = "https://www.reddit.com"
	// RedditOAuthURL serves requests carrying an OAuth bearer token.
	RedditOAuthURL = "https://oauth.reddit.com"

	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
)

var subredditName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)

// Reddit resolves subreddit names through the subreddit "about" endpoint.
type Reddit struct {
	client    HTTPClient
	baseURL   string
	userAgent string
}

// NewReddit creates a Reddit resolver. An empty baseURL selects DefaultRedditURL.
func NewReddit(client HTTPClient, baseURL, userAgent string) *Reddit {
	if baseURL == "" {
		baseURL = DefaultRedditURL
	}
	return &Reddit{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

// NewRedditOAuthClient returns an HTTP client that authenticates against Reddit
// with the application-only client credentials grant and refreshes its token
// as needed. Use it together with RedditOAuthURL.
func NewRedditOAuthClient(ctx context.Context, clientID, clientSecret, userAgent string, timeout time.Duration) *http.Client {
	base := &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{userAgent: userAgent, next: http.DefaultTransport},
	}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     redditTokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = timeout
	return client
}

type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}

type aboutResponse struct {
	Kind string `json:"kind"`
	Data struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// Resolve looks up a subreddit. The name may carry an "r/" or "/r/" prefix.
func (r *Reddit) Resolve(ctx context.Context, name string) (Feed, error) {
	name = NormalizeSubreddit(name)
	if !subredditName.MatchString(name) {
		return Feed{}, fmt.Errorf("%w: %q is not a valid subreddit name", ErrNotFound, name)
	}

	endpoint := fmt.Sprintf("%s/r/%s/about.json?raw_json=1", r.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Feed{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return Feed{}, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Feed{}, fmt.Errorf("r/%s: %w", name, statusErr(resp.StatusCode))
	}

	var about aboutResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(&about); err != nil {
		return Feed{}, fmt.Errorf("%w: decode body: %v", ErrInvalidResponse, err)
	}
	// Unknown subreddits redirect to a search listing instead of returning 404.
	if about.Kind != "t5" {
		return Feed{}, fmt.Errorf("r/%s: %w", name, ErrNotFound)
	}
	if about.Data.Name == "" || about.Data.DisplayName == "" {
		return Feed{}, fmt.Errorf("r/%s: %w", name, ErrInvalidResponse)
	}

	return Feed{ExternalID: about.Data.Name, Name: about.Data.DisplayName}, nil
}

// NormalizeSubreddit strips whitespace and an optional "r/" or "/r/" prefix.
func NormalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	return strings.TrimSuffix(name, "/")
}
