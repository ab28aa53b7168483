// Package provider talks to the upstream weather and geocoding APIs. It
// owns transport concerns only: retries on rate limiting, the circuit
// breaker, and decoding into the raw response shapes.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/httputil"
	"github.com/lox/weatherreminder/internal/metrics"
)

const (
	DefaultOneCallURL   = "https://api.openweathermap.org/data/3.0/onecall"
	DefaultGeocodingURL = "https://api.openweathermap.org/geo/1.0/direct"

	// GeocodeLimit is the number of candidates requested per search.
	GeocodeLimit = 5
)

var (
	// ErrUpstreamUnavailable covers transport failures, non-2xx statuses,
	// undecodable bodies and an open circuit breaker.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned for HTTP 429. It is retried; once retries
	// are exhausted it is wrapped in ErrUpstreamUnavailable.
	ErrRateLimited = errors.New("upstream rate limited")
)

type Config struct {
	OneCallURL   string
	GeocodingURL string
	APIKey       string
	HTTPClient   *http.Client

	// MaxAttempts bounds calls per request when the upstream answers 429.
	MaxAttempts int
	// RetryInitialInterval is the first backoff delay; each further delay
	// doubles it.
	RetryInitialInterval time.Duration

	Logger *zap.Logger
}

type Client struct {
	oneCallURL   string
	geocodingURL string
	apiKey       string
	http         *http.Client
	maxAttempts  int
	retryInitial time.Duration
	log          *zap.Logger

	oneCallBreaker *gobreaker.CircuitBreaker
	geocodeBreaker *gobreaker.CircuitBreaker
}

func New(cfg Config) *Client {
	if cfg.OneCallURL == "" {
		cfg.OneCallURL = DefaultOneCallURL
	}
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = DefaultGeocodingURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.NewClient(httputil.DefaultTimeout)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		oneCallURL:     cfg.OneCallURL,
		geocodingURL:   cfg.GeocodingURL,
		apiKey:         cfg.APIKey,
		http:           cfg.HTTPClient,
		maxAttempts:    cfg.MaxAttempts,
		retryInitial:   cfg.RetryInitialInterval,
		log:            cfg.Logger.Named("provider"),
		oneCallBreaker: newBreaker("onecall"),
		geocodeBreaker: newBreaker("geocode"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)
}

// get performs a GET against base with params, retrying only on 429. The
// whole retry sequence counts as a single call for the circuit breaker.
func (c *Client) get(ctx context.Context, endpoint string, cb *gobreaker.CircuitBreaker, base string, params url.Values) ([]byte, error) {
	u := base + "?" + params.Encode()

	result, err := cb.Execute(func() (interface{}, error) {
		var body []byte
		attempt := 0
		operation := func() error {
			attempt++
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("build request: %w", redact(err)))
			}

			start := time.Now()
			resp, err := c.http.Do(req)
			metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
				return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, redact(err)))
			}
			defer resp.Body.Close()
			metrics.UpstreamCallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			if resp.StatusCode == http.StatusTooManyRequests {
				c.log.Warn("rate limited", zap.String("endpoint", endpoint), zap.Int("attempt", attempt))
				return ErrRateLimited
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return backoff.Permanent(fmt.Errorf("%w: %s: status %d: %s", ErrUpstreamUnavailable, endpoint, resp.StatusCode, string(b)))
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("%w: %s: read body: %v", ErrUpstreamUnavailable, endpoint, err))
			}
			return nil
		}

		if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
			return nil, err
		}
		return body, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
		case errors.Is(err, ErrRateLimited):
			return nil, fmt.Errorf("%w: %w after %d attempts", ErrUpstreamUnavailable, err, c.maxAttempts)
		case errors.Is(err, ErrUpstreamUnavailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
		}
	}
	return result.([]byte), nil
}

// redact strips the query, which carries the API key, from the URL that
// net/http embeds in transport errors.
func redact(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	clean := *uerr
	if i := strings.IndexByte(clean.URL, '?'); i >= 0 {
		clean.URL = clean.URL[:i]
	}
	return &clean
}
