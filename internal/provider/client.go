package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ak7sky/asn-service/internal/logger"
	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"
)

const maxResponseSize = 32 << 20

var errDecodeResponse = "failed to decode response of"

// Config carries the settings shared by all providers. Fields a provider
// does not use are ignored.
type Config struct {
	Timeout         time.Duration
	Retries         uint
	RetryDelay      time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// Token authenticates against IPinfo.
	Token string
	// Database is the GeoLite2 ASN .mmdb path.
	Database string
	// BaseURL replaces the provider's public endpoint.
	BaseURL string

	HTTPClient *http.Client
}

type httpClient struct {
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	timeout  time.Duration
	attempts uint
	delay    time.Duration
	logger   logger.Logger
}

func newHTTPClient(name string, cfg Config, log logger.Logger) *httpClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	return &httpClient{
		client: client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				var reqErr *RequestError
				return err == nil || (errors.As(err, &reqErr) && reqErr.clientSide())
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker %s: %s -> %s", name, from, to)
			},
		}),
		timeout:  cfg.Timeout,
		attempts: max(cfg.Retries, 1),
		delay:    cfg.RetryDelay,
		logger:   log,
	}
}

// getJSON fetches rawURL with query and decodes the JSON body into out.
func (c *httpClient) getJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	target := rawURL
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	body, err := retry.NewWithData[[]byte](
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying %s (attempt %d): %s", rawURL, n+1, err)
		}),
	).Do(func() ([]byte, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.get(ctx, rawURL, target)
		})
	})
	if err != nil {
		return err
	}

	if len(body) == 0 {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: %w", errDecodeResponse, rawURL, err)
	}
	return nil
}

func (c *httpClient) get(ctx context.Context, rawURL, target string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, &RequestError{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, rawURL, err)
	}
	return body, nil
}

func retryable(err error) bool {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return !reqErr.clientSide()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return retry.IsRecoverable(err)
}
