package places

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"places-cache/internal/circuitbreaker"
	"places-cache/internal/common/errors"
	commonhttp "places-cache/internal/common/http"
	"places-cache/internal/common/logging"
	"places-cache/internal/common/ratelimit"
	"places-cache/internal/common/utils"
)

const (
	serviceName    = "google maps"
	detailsFields  = "place_id,name,formatted_address,geometry,formatted_phone_number,website,rating"
	maxBodyBytes   = 4 << 20
	defaultBaseURL = "https://maps.googleapis.com/maps/api"
	userAgent      = "places-cache"
)

// Error codes set on upstream AppErrors. Codes other than these are Google
// status strings passed through verbatim.
const (
	codeTransport = "TRANSPORT"
	codeDecode    = "DECODE"
)

// ClientConfig configures the Google Maps web service client
type ClientConfig struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             utils.RetryConfig
	Breaker           circuitbreaker.Config
	HTTPClient        *http.Client
	Logger            logging.Logger
}

// Client calls the Places Text Search, Place Details and Geocoding APIs.
// Every request waits on the rate limiter, runs inside the circuit breaker
// and is retried with backoff on transient failures.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    ratelimit.Limiter
	breaker    *circuitbreaker.GoBreakerAdapter
	retry      utils.RetryConfig
	logger     logging.Logger
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.ConfigError("google maps API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = utils.DefaultRetryConfig()
	}
	if config.Retry.RetryableErrors == nil {
		config.Retry.RetryableErrors = isRetryable
	}
	if config.Breaker.MaxFailures == 0 {
		config.Breaker = circuitbreaker.GoogleMapsConfig
	}
	if config.HTTPClient == nil {
		// Deadlines come from the per-attempt context; Google never redirects.
		config.HTTPClient = commonhttp.NewHTTPClient(
			commonhttp.WithTimeout(0),
			commonhttp.WithUserAgent(userAgent),
			commonhttp.WithoutRedirects(),
		)
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	logger := config.Logger.WithFields(logging.Field{Key: "component", Value: "places_client"})

	limiter, err := ratelimit.NewLocalLimiter(ratelimit.Config{
		RequestsPerSecond: config.RequestsPerSecond,
		Enabled:           true,
	})
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid places rate limit: %v", err))
	}

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		limiter:    limiter,
		breaker:    circuitbreaker.NewGoBreaker("google-maps", config.Breaker, logger),
		retry:      config.Retry,
		logger:     logger,
	}, nil
}

// TextSearch returns the best match for a free-text query
func (c *Client) TextSearch(ctx context.Context, query string) (Place, error) {
	var resp textSearchResponse
	if err := c.call(ctx, "place", "/place/textsearch/json", url.Values{"query": {query}}, &resp); err != nil {
		return Place{}, err
	}
	if len(resp.Results) == 0 {
		return Place{}, errors.NotFoundError("place").WithCode("ZERO_RESULTS")
	}

	r := resp.Results[0]
	return Place{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		FormattedAddress: r.FormattedAddress,
		Location:         r.Geometry.Location,
		Types:            r.Types,
	}, nil
}

// PlaceDetails fetches the detail record for a place ID
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (PlaceDetails, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {detailsFields},
	}

	var resp detailsResponse
	if err := c.call(ctx, "place", "/place/details/json", params, &resp); err != nil {
		return PlaceDetails{}, err
	}

	r := resp.Result
	return PlaceDetails{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		FormattedAddress: r.FormattedAddress,
		Location:         r.Geometry.Location,
		Phone:            r.FormattedPhoneNumber,
		Website:          r.Website,
		Rating:           r.Rating,
	}, nil
}

// Geocode resolves an address to coordinates
func (c *Client) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	var resp geocodeResponse
	if err := c.call(ctx, "address", "/geocode/json", url.Values{"address": {address}}, &resp); err != nil {
		return GeocodeResult{}, err
	}
	if len(resp.Results) == 0 {
		return GeocodeResult{}, errors.NotFoundError("address").WithCode("ZERO_RESULTS")
	}

	r := resp.Results[0]
	return GeocodeResult{
		PlaceID:          r.PlaceID,
		FormattedAddress: r.FormattedAddress,
		Location:         r.Geometry.Location,
	}, nil
}

// BreakerStats exposes the circuit breaker state for health reporting
func (c *Client) BreakerStats() circuitbreaker.Stats {
	return c.breaker.Stats()
}

func (c *Client) call(ctx context.Context, resource, path string, params url.Values, out statusCarrier) error {
	attempt := 0
	err := utils.RetryWithBackoff(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(ctx, func() error {
			return c.do(ctx, resource, path, params, out)
		})
	})
	if err != nil {
		c.logger.WithContext(ctx).Warn("Google Maps request failed",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "attempts", Value: attempt},
			logging.Err(err),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, resource, path string, params url.Values, out statusCarrier) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return errors.InternalError("failed to build google maps request", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return errors.TimeoutError("google maps request").WithCode(codeTransport)
		}
		return errors.UpstreamError(serviceName, redactKey(err, c.apiKey)).WithCode(codeTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return errors.UpstreamError(serviceName, err).WithCode(codeTransport)
	}

	c.logger.WithContext(ctx).Debug("Google Maps response",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "status_code", Value: resp.StatusCode},
		logging.Field{Key: "duration", Value: time.Since(start)},
	)

	if resp.StatusCode >= 300 {
		return errors.UpstreamError(serviceName, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)).
			WithCode(fmt.Sprintf("HTTP_%d", resp.StatusCode))
	}

	out.reset()
	if err := json.Unmarshal(body, out); err != nil {
		return errors.UpstreamError(serviceName, err).WithCode(codeDecode)
	}

	return statusError(out.status(), resource)
}

// statusError maps a Google status to an AppError
func statusError(s apiStatus, resource string) error {
	switch s.Status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return errors.NotFoundError(resource).WithCode(s.Status)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return errors.RateLimitError(serviceName).WithCode(s.Status)
	default:
		var cause error
		if s.ErrorMessage != "" {
			cause = stderrors.New(s.ErrorMessage)
		}
		code := s.Status
		if code == "" {
			code = "UNKNOWN_ERROR"
		}
		return errors.UpstreamError(serviceName, cause).WithCode(code)
	}
}

// isRetryable retries transport failures, timeouts, 5xx responses and
// Google's UNKNOWN_ERROR, which its documentation says may succeed on retry.
func isRetryable(err error) bool {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return false
	}

	switch appErr.Code {
	case codeTransport, "UNKNOWN_ERROR":
		return true
	}
	return strings.HasPrefix(appErr.Code, "HTTP_5")
}

// redactKey keeps the API key out of logged url.Error messages
func redactKey(err error, key string) error {
	msg := err.Error()
	if key == "" || !strings.Contains(msg, key) {
		return err
	}
	return stderrors.New(strings.ReplaceAll(msg, key, "REDACTED"))
}
