package github

import (
	"net/http"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

const userAgent = "gitglean"

// Credentials select the GitHub installation and identity used for one
// ingestion. All fields are optional; tokens are passed through, never stored.
type Credentials struct {
	Token   string // bearer token; empty means anonymous (public repositories only)
	BaseURL string // web base of a GitHub Enterprise installation, e.g. https://ghe.example.com
	APIURL  string // API base of a GitHub Enterprise installation, e.g. https://ghe.example.com/api/v3
}

// enterpriseURL returns the API endpoint to use, or "" for github.com.
// go-github appends /api/v3/ to a bare web base on its own.
func (c Credentials) enterpriseURL() string {
	if u := strings.TrimSpace(c.APIURL); u != "" {
		return u
	}
	return strings.TrimSpace(c.BaseURL)
}

// Client builds per-request GitHub API clients that share one rate-limit aware
// HTTP transport.
type Client struct {
	httpClient   *http.Client
	defaultToken string
}

// NewClient creates a client whose transport waits out primary and secondary
// rate limits. defaultToken is used when a request carries no token of its own.
func NewClient(defaultToken string) (*Client, error) {
	return NewClientWithTransport(nil, defaultToken)
}

// NewClientWithTransport is NewClient over a caller supplied base transport.
// A nil transport means http.DefaultTransport.
func NewClientWithTransport(base http.RoundTripper, defaultToken string) (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(base)
	if err != nil {
		return nil, err
	}
	return &Client{httpClient: rateLimiter, defaultToken: defaultToken}, nil
}

// For returns a go-github client configured for the given credentials.
func (c *Client) For(creds Credentials) (*github.Client, error) {
	gh := github.NewClient(c.httpClient)
	gh.UserAgent = userAgent

	if endpoint := creds.enterpriseURL(); endpoint != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(endpoint, endpoint)
		if err != nil {
			return nil, err
		}
	}

	token := creds.Token
	if token == "" {
		token = c.defaultToken
	}
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return gh, nil
}
