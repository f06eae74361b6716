// Package httpx is the shared HTTP plumbing under every provider client:
// per-request timeout, bounded retries with linear back-off (doubled on
// HTTP 429), no retries on auth failures, and a circuit breaker per
// provider so a dead upstream fails fast instead of burning quota.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrAuth marks 401/403 responses: retrying cannot help, the key or the
// quota is the problem.
var ErrAuth = errors.New("provider auth or quota rejection")

// ErrUpstream marks retryable provider failures that exhausted retries.
var ErrUpstream = errors.New("provider unavailable")

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	backoffBase    = 2 * time.Second
	userAgent      = "mockbroker-research-engine/1.0"
)

// Doer issues JSON GET requests for one provider.
type Doer struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	backoff time.Duration
	log     zerolog.Logger
}

// New builds a Doer for the named provider. A zero timeout uses the
// default 10 s.
func New(name string, timeout time.Duration, log zerolog.Logger) *Doer {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Doer{
		name:   name,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     120 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		backoff: backoffBase,
		log:     log.With().Str("provider", name).Logger(),
	}
}

// GetJSON fetches url with the given headers and decodes the response
// body into dest. Transient failures (5xx, timeouts, 429) are retried up
// to three times with linear back-off; 429 doubles the wait.
func (d *Doer) GetJSON(ctx context.Context, url string, headers map[string]string, dest any) error {
	body, err := d.get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s: decode response: %w", d.name, err)
	}
	return nil
}

func (d *Doer) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := d.backoff * time.Duration(attempt)
			if isTooManyRequests(lastErr) {
				wait *= 2
			}
			d.log.Debug().Int("attempt", attempt).Dur("backoff", wait).Msg("Retrying provider request")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := d.breaker.Execute(func() (interface{}, error) {
			return d.doOnce(ctx, url, headers)
		})
		if err == nil {
			return result.([]byte), nil
		}
		if errors.Is(err, ErrAuth) || ctx.Err() != nil {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: circuit open", d.name, ErrUpstream)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%s: %w: %v", d.name, ErrUpstream, lastErr)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func isTooManyRequests(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusTooManyRequests
}

func (d *Doer) doOnce(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w (status %d)", d.name, ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
