package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/metrics"
)

const (
	forecastPath  = "/emissions/forecasts/current"
	emissionsPath = "/emissions/bylocations"

	endpointForecast  = "forecast"
	endpointEmissions = "emissions"
)

// HTTPClient interface allows mocking http.Client in tests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a Carbon Aware SDK WebAPI
type Client struct {
	config      config.ProviderConfig
	httpClient  HTTPClient
	rateLimiter *time.Ticker
}

// ClientOption allows customizing the client
type ClientOption func(*Client)

// WithHTTPClient allows injecting a custom HTTP client
func WithHTTPClient(client HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// permanentError marks a response that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// NewClient creates a new API client
func NewClient(cfg config.ProviderConfig, opts ...ClientOption) *Client {
	client := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: time.NewTicker(time.Second / time.Duration(ensureNonZero(cfg.RateLimit))),
	}

	// Apply options
	for _, opt := range opts {
		opt(client)
	}

	return client
}

// CurrentForecast returns the current forecast for the query's locations. A
// location unknown to the provider yields an empty result rather than an error.
func (c *Client) CurrentForecast(ctx context.Context, query forecast.ForecastQuery) ([]forecast.EmissionsForecast, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	for _, region := range query.Regions {
		params.Add("location", region)
	}
	params.Set("dataStartAt", query.WindowStart.UTC().Format(time.RFC3339))
	params.Set("dataEndAt", query.WindowEnd.UTC().Format(time.RFC3339))
	params.Set("windowSize", strconv.Itoa(query.DurationMinutes))

	var forecasts []forecast.EmissionsForecast
	if err := c.getWithRetry(ctx, endpointForecast, forecastPath, params, &forecasts); err != nil {
		return nil, err
	}

	for i := range forecasts {
		forecasts[i].OptimalDataPoints = forecast.RankDataPoints(forecasts[i].OptimalDataPoints)
	}
	return forecasts, nil
}

// EmissionsForLocations returns observed emissions for regions in [start, end]
func (c *Client) EmissionsForLocations(ctx context.Context, regions []string, start, end time.Time) ([]forecast.EmissionsData, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("at least one region is required")
	}

	params := url.Values{}
	for _, region := range regions {
		params.Add("location", region)
	}
	params.Set("time", start.UTC().Format(time.RFC3339Nano))
	params.Set("toTime", end.UTC().Format(time.RFC3339Nano))

	var data []forecast.EmissionsData
	if err := c.getWithRetry(ctx, endpointEmissions, emissionsPath, params, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// getWithRetry performs a rate limited GET with retries and exponential
// backoff, decoding the JSON body into out.
func (c *Client) getWithRetry(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	start := time.Now()
	defer func() {
		metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			metrics.ForecastRequests.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-c.rateLimiter.C:
			found, err := c.doRequest(ctx, path, params, out)
			if err == nil {
				result := "success"
				if !found {
					result = "empty"
				}
				metrics.ForecastRequests.WithLabelValues(endpoint, result).Inc()
				return nil
			}
			lastErr = err

			var permanent *permanentError
			if errors.As(err, &permanent) {
				metrics.ForecastRequests.WithLabelValues(endpoint, "error").Inc()
				return err
			}

			klog.V(2).InfoS("API request failed, retrying",
				"endpoint", endpoint,
				"attempt", attempt+1,
				"maxRetries", c.config.MaxRetries,
				"error", err)

			if attempt == c.config.MaxRetries {
				break
			}

			// Wait with context awareness
			timer := time.NewTimer(c.getBackoffDuration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				metrics.ForecastRequests.WithLabelValues(endpoint, "error").Inc()
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}

	metrics.ForecastRequests.WithLabelValues(endpoint, "error").Inc()
	return fmt.Errorf("all retries failed: %w", lastErr)
}

// doRequest runs one GET. It reports found=false when the provider has no data
// for the location (404), leaving out untouched.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, out any) (bool, error) {
	endpoint := strings.TrimRight(c.config.URL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, &permanentError{fmt.Errorf("failed to create request: %w", err)}
	}

	klog.V(3).InfoS("Making forecast API request",
		"url", req.URL.String(),
		"hasApiKey", c.config.APIKey != "")

	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Continue processing
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("rate limit exceeded")
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, &permanentError{fmt.Errorf("invalid API key (status %d)", resp.StatusCode)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, &permanentError{fmt.Errorf("bad request (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	default:
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, &permanentError{fmt.Errorf("failed to decode response: %w", err)}
	}
	return true, nil
}

func (c *Client) getBackoffDuration(attempt int) time.Duration {
	// Exponential backoff with jitter
	backoff := c.config.RetryDelay * time.Duration(1<<uint(attempt))
	maxBackoff := 1 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	// Add jitter (±20%)
	jitter := time.Duration(float64(backoff) * (0.8 + 0.4*float64(time.Now().UnixNano()%100)/100.0))
	return jitter
}

// GetURL returns the base URL used for API requests
func (c *Client) GetURL() string {
	return c.config.URL
}

// Close cleans up client resources
func (c *Client) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
}

func ensureNonZero(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
