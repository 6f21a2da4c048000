package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultAPIBaseURL serves username lookups.
	DefaultAPIBaseURL = "https://api.mojang.com"

	// DefaultSessionBaseURL serves UUID lookups.
	DefaultSessionBaseURL = "https://sessionserver.mojang.com"

	// maxBodySize bounds how much of a profile response is read.
	maxBodySize = 64 << 10
)

// MojangConfig configures a MojangResolver.
type MojangConfig struct {
	// APIBaseURL defaults to DefaultAPIBaseURL.
	APIBaseURL string `json:"apiBaseUrl,omitempty" yaml:"apiBaseUrl,omitempty"`

	// SessionBaseURL defaults to DefaultSessionBaseURL.
	SessionBaseURL string `json:"sessionBaseUrl,omitempty" yaml:"sessionBaseUrl,omitempty"`

	// Timeout bounds each lookup, as a duration string (e.g. "5s").
	// Empty means no timeout beyond the caller's context.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RateLimit is the number of lookups per second allowed locally. Zero disables the limiter.
	RateLimit float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`

	// Burst is the limiter bucket size. Defaults to 1 when RateLimit is set.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// GetTimeout returns the configured timeout, or zero when unset or invalid.
func (c *MojangConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MojangResolver resolves usernames against the Mojang profile API.
type MojangResolver struct {
	apiBase     string
	sessionBase string
	client      *http.Client
	limiter     *rate.Limiter
}

// MojangOption configures a MojangResolver.
type MojangOption func(*MojangResolver)

// WithHTTPClient replaces the HTTP client used for lookups.
func WithHTTPClient(c *http.Client) MojangOption {
	return func(r *MojangResolver) {
		r.client = c
	}
}

// NewMojangResolver creates a MojangResolver.
func NewMojangResolver(cfg MojangConfig, opts ...MojangOption) (*MojangResolver, error) {
	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			return nil, fmt.Errorf("parsing resolver timeout: %w", err)
		}
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("resolver rate limit cannot be negative")
	}

	r := &MojangResolver{
		apiBase:     strings.TrimRight(cfg.APIBaseURL, "/"),
		sessionBase: strings.TrimRight(cfg.SessionBaseURL, "/"),
		client:      &http.Client{Timeout: cfg.GetTimeout()},
	}
	if r.apiBase == "" {
		r.apiBase = DefaultAPIBaseURL
	}
	if r.sessionBase == "" {
		r.sessionBase = DefaultSessionBaseURL
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve looks up the profile for username.
func (r *MojangResolver) Resolve(ctx context.Context, username string) (Profile, error) {
	if strings.TrimSpace(username) == "" {
		return Profile{}, ErrNotFound
	}
	return r.fetch(ctx, r.apiBase+"/users/profiles/minecraft/"+url.PathEscape(username))
}

// Profile looks up the current profile for a UUID.
func (r *MojangResolver) Profile(ctx context.Context, uuid string) (Profile, error) {
	if strings.TrimSpace(uuid) == "" {
		return Profile{}, ErrNotFound
	}
	return r.fetch(ctx, r.sessionBase+"/session/minecraft/profile/"+url.PathEscape(uuid))
}

func (r *MojangResolver) fetch(ctx context.Context, endpoint string) (Profile, error) {
	// exceeding the local budget fails fast, like an upstream 429
	if r.limiter != nil && !r.limiter.Allow() {
		return Profile{}, fmt.Errorf("%w: local limit exceeded", ErrRateLimited)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: creating request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return Profile{}, ErrNotFound
	case http.StatusTooManyRequests:
		return Profile{}, ErrRateLimited
	default:
		return Profile{}, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("%w: parsing response: %w", ErrUnavailable, err)
	}
	if p.UUID == "" {
		return Profile{}, fmt.Errorf("%w: no id in response", ErrUnavailable)
	}
	return p, nil
}
