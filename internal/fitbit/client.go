package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rannmann/health-lens/internal/config"
	"github.com/rannmann/health-lens/internal/metrics"
)

const (
	defaultBaseURL  = "https://api.fitbit.com/1"
	defaultTokenURL = "https://api.fitbit.com/oauth2/token"

	// Retries of the same request after a 429, waiting out the reset
	// window between attempts
	maxRateLimitRetries = 3
)

// ErrRateLimited is returned after exhausting all retries against a 429
var ErrRateLimited = errors.New("fitbit rate limit exceeded")

// HTTPError represents a non-retryable error response from the Fitbit API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fitbit API error (status %d): %s", e.StatusCode, e.Body)
}

// IsNotFound checks if an error is a 404 HTTP error
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized checks if an error is a 401 HTTP error
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

// IsTooManyRequests checks if an error came from rate limiting
func IsTooManyRequests(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Client is a Fitbit API client. All endpoint fetches go through the
// rate limiter; no caller talks to the remote API directly.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	logger       *slog.Logger
	rateLimiter  *RateLimiter
}

// NewClient creates a new Fitbit API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
		clientID:     cfg.FitbitClientID,
		clientSecret: cfg.FitbitClientSecret,
		redirectURI:  cfg.FitbitRedirectURI,
		logger:       slog.Default(),
		rateLimiter:  NewRateLimiter(),
	}
}

// SetBaseURL overrides the data API base URL (used in tests)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimSuffix(u, "/")
}

// SetTokenURL overrides the OAuth token URL (used in tests)
func (c *Client) SetTokenURL(u string) {
	c.tokenURL = u
}

// TokenResponse represents the response from a token exchange or refresh
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       string `json:"user_id"`
}

// ExchangeCode exchanges an authorization code for access and refresh tokens
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.redirectURI},
	}
	return c.tokenRequest(ctx, metrics.OpExchangeCode, form)
}

// RefreshToken exchanges a refresh token for a new token pair
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, metrics.OpRefreshToken, form)
}

// tokenRequest performs an OAuth token grant with Basic auth client credentials
func (c *Client) tokenRequest(ctx context.Context, operation string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("token request failed", "operation", operation, "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Info("fitbit_token_request", "operation", operation, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
	metrics.FitbitAPIRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.FitbitAPIRequestDuration.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResp, nil
}

// FetchRange fetches one endpoint's data for a date range, gated by the
// per-user rate limiter. Dates are YYYY-MM-DD.
func (c *Client) FetchRange(ctx context.Context, userID, fitbitUserID, accessToken string, ep Endpoint, startDate, endDate string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/user/%s/%s/date/%s/%s.json", c.baseURL, fitbitUserID, ep.Path, startDate, endDate)
	return c.fetchWithLimit(ctx, u, accessToken, userID, string(ep.Key))
}

// fetchWithLimit performs a rate-limited GET. On 429 it records the
// exhausted quota and retries the same request after the reset window,
// up to maxRateLimitRetries times.
func (c *Client) fetchWithLimit(ctx context.Context, u, accessToken, userID, endpoint string) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx, userID); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept-Language", "en_US")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			return nil, fmt.Errorf("fitbit request failed: %w", err)
		}

		c.logger.Info("fitbit_api_request",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"user_id", userID,
			"attempt", attempt)
		metrics.FitbitAPIRequestsTotal.WithLabelValues(metrics.OpFetchRange, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.FitbitAPIRequestDuration.WithLabelValues(metrics.OpFetchRange, strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())

		switch {
		case resp.StatusCode == http.StatusOK:
			c.rateLimiter.Update(userID, resp.Header)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read response body: %w", err)
			}
			return json.RawMessage(body), nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := c.rateLimiter.MarkLimited(userID, resp.Header)
			resp.Body.Close()

			if attempt >= maxRateLimitRetries {
				return nil, fmt.Errorf("%w after %d retries", ErrRateLimited, maxRateLimitRetries)
			}

			c.logger.Warn("rate limited, waiting for reset",
				"user_id", userID,
				"endpoint", endpoint,
				"wait_seconds", wait.Seconds(),
				"attempt", attempt+1)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

		default:
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		}
	}
}

// RateLimitStatus returns the current rate limit snapshot for a user
func (c *Client) RateLimitStatus(userID string) (RateLimitStatus, bool) {
	return c.rateLimiter.Status(userID)
}
