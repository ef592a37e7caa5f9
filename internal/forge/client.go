package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/blogsync/internal/config"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/metrics"
	"git.home.luguber.info/inful/blogsync/internal/retry"
)

// Client is a rate-limited, retrying client for the host API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	limiter    *rate.Limiter
	policy     retry.Policy
	recorder   metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithRecorder reports request outcomes to r.
func WithRecorder(r metrics.Recorder) Option { return func(c *Client) { c.recorder = r } }

// WithPolicy overrides the retry policy derived from configuration.
func WithPolicy(p retry.Policy) Option { return func(c *Client) { c.policy = p } }

// NewClient builds a Client from the forge configuration section.
func NewClient(fc config.ForgeConfig, opts ...Option) *Client {
	rps, burst := fc.RequestsPerSecond, fc.Burst
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	apiURL := fc.APIURL
	if apiURL == "" {
		apiURL = config.DefaultForgeAPIURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     apiURL,
		token:      fc.Token,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		policy:     retry.FromConfig(fc),
		recorder:   metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// newRequest builds a request against endpoint (relative to the API URL).
func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, foundationerrors.ConfigError("invalid forge API URL").
			WithCause(err).
			WithContext("api_url", c.apiURL).
			Build()
	}
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		raw, merr := json.Marshal(body)
		if merr != nil {
			return nil, foundationerrors.InternalError("failed to marshal request body").WithCause(merr).Build()
		}
		reader = bytes.NewReader(raw)
	}
	var req *http.Request
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
	}
	if err != nil {
		return nil, foundationerrors.ForgeError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "blogsync/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a request built by build, retrying per policy, and decodes a
// successful JSON response into result (when non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := c.newRequest(ctx, method, endpoint, query, body)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.recorder.IncForgeRequest(method, 0)
			return foundationerrors.NetworkError("failed to execute forge request").
				WithCause(err).
				WithContext("method", method).
				WithContext("url", req.URL.String()).
				Build()
		}
		defer func() { _ = resp.Body.Close() }()
		c.recorder.IncForgeRequest(method, resp.StatusCode)

		if resp.StatusCode >= 400 {
			return apiError(req, resp)
		}
		if result == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return foundationerrors.ForgeError("failed to decode response").WithCause(err).Build()
		}
		return nil
	})
}

func repoEndpoint(owner, repo string, parts ...string) string {
	return path.Join(append([]string{"repos", owner, repo}, parts...)...)
}
