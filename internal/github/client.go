// Package github implements the remote client facade: typed iterators over an
// organization's repositories and their issue/PR connections, a rate-limit
// probe, and GitHub App token minting.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v57/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/alan/org-stats/internal/ratelimit"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// lowQuotaThreshold marks the remaining-call level below which a probe result
// is classified as a warning.
const lowQuotaThreshold = 100

// Options configures the client. Either Token or the App credential triple
// (AppID, PrivateKeyPEM, InstallationID) must be set.
type Options struct {
	Token          string
	AppID          int64
	PrivateKeyPEM  []byte
	InstallationID int64

	BaseURL  string
	ProxyURL string
}

// Client wraps the GitHub REST and GraphQL APIs behind one facade.
//
// Transport stack: oauth2 token injection, then the go-github-ratelimit
// middleware which sleeps off server-advertised primary and secondary rate
// limits before the request is retried at the transport level.
type Client struct {
	rest    *gh.Client
	graphql *githubv4.Client
}

// NewClient builds the facade. App credentials are exchanged for an
// installation token before the transport stack is assembled.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	baseTransport, err := buildBaseTransport(opts.ProxyURL)
	if err != nil {
		return nil, err
	}

	token := opts.Token
	if token == "" {
		token, err = MintInstallationToken(ctx, opts.AppID, opts.PrivateKeyPEM, opts.InstallationID, baseURL, baseTransport)
		if err != nil {
			return nil, err
		}
	}

	authTransport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   baseTransport,
	}
	httpClient := github_ratelimit.NewClient(authTransport)

	rest := gh.NewClient(httpClient)
	if baseURL != DefaultBaseURL {
		rest, err = rest.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure enterprise base URL: %w", err)
		}
	}

	var graphql *githubv4.Client
	if baseURL == DefaultBaseURL {
		graphql = githubv4.NewClient(httpClient)
	} else {
		graphql = githubv4.NewEnterpriseClient(graphqlEndpoint(baseURL), httpClient)
	}

	return &Client{rest: rest, graphql: graphql}, nil
}

// NewClientForTesting builds a facade against an arbitrary HTTP client and
// base URL, for use with httptest servers.
func NewClientForTesting(httpClient *http.Client, baseURL string) (*Client, error) {
	rest := gh.NewClient(httpClient)
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	rest.BaseURL = u

	graphql := githubv4.NewEnterpriseClient(strings.TrimSuffix(baseURL, "/")+"/graphql", httpClient)
	return &Client{rest: rest, graphql: graphql}, nil
}

// REST exposes the underlying go-github client for REST-only callers such as
// the missing-repo auditor.
func (c *Client) REST() *gh.Client { return c.rest }

// ProbeRateLimits performs a single REST probe of the remaining quota. Hosts
// with rate limiting disabled report sentinel quantities.
func (c *Client) ProbeRateLimits(ctx context.Context) (ratelimit.Status, error) {
	limits, resp, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ratelimit.Status{
				GraphQLRemaining: ratelimit.UnlimitedSentinel,
				RESTRemaining:    ratelimit.UnlimitedSentinel,
				Message:          "rate limiting is not enabled on this host",
				Severity:         ratelimit.SeverityInfo,
			}, nil
		}
		return ratelimit.Status{
			Message:  err.Error(),
			Severity: ratelimit.SeverityError,
		}, fmt.Errorf("failed to probe rate limits: %w", err)
	}

	status := ratelimit.Status{Severity: ratelimit.SeverityInfo}
	if core := limits.GetCore(); core != nil {
		status.RESTRemaining = int64(core.Remaining)
	}
	if graphql := limits.GetGraphQL(); graphql != nil {
		status.GraphQLRemaining = int64(graphql.Remaining)
	}
	status.Message = fmt.Sprintf("remaining quota: graphql=%d rest=%d", status.GraphQLRemaining, status.RESTRemaining)
	if status.GraphQLRemaining < lowQuotaThreshold || status.RESTRemaining < lowQuotaThreshold {
		status.Severity = ratelimit.SeverityWarning
	}
	return status, nil
}

// installationToken caches the minted token for the life of the process so
// spawned child processes can reuse it.
var installationToken string

// CachedInstallationToken returns the token minted by MintInstallationToken,
// or empty if none was minted.
func CachedInstallationToken() string { return installationToken }

// MintInstallationToken signs a GitHub App JWT and exchanges it for an
// installation token. The token is cached process-wide and exported through
// GITHUB_TOKEN for child processes.
func MintInstallationToken(ctx context.Context, appID int64, privateKeyPEM []byte, installationID int64, baseURL string, transport http.RoundTripper) (string, error) {
	if installationToken != "" {
		return installationToken, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse app private key: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		// Issued slightly in the past to absorb clock drift.
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}

	appHTTPClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: signed}),
			Base:   transport,
		},
	}
	appClient := gh.NewClient(appHTTPClient)
	if baseURL != DefaultBaseURL {
		appClient, err = appClient.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return "", fmt.Errorf("failed to configure enterprise base URL: %w", err)
		}
	}

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}

	installationToken = token.GetToken()
	if err := os.Setenv("GITHUB_TOKEN", installationToken); err != nil {
		slog.Warn("could not export installation token to environment", "error", err)
	}

	slog.Info("minted installation token", "app_id", appID, "installation_id", installationID,
		"expires_at", token.GetExpiresAt().Format(time.RFC3339))
	return installationToken, nil
}

func buildBaseTransport(proxyURL string) (http.RoundTripper, error) {
	if proxyURL == "" {
		return http.DefaultTransport, nil
	}
	proxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxy)
	return transport, nil
}

// graphqlEndpoint derives the GraphQL URL from a REST base URL. GitHub
// Enterprise serves REST under /api/v3 and GraphQL under /api/graphql.
func graphqlEndpoint(baseURL string) string {
	trimmed := strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(trimmed, "/api/v3") {
		return strings.TrimSuffix(trimmed, "/v3") + "/graphql"
	}
	return trimmed + "/graphql"
}
