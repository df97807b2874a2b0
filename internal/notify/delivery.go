package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/nholik/sensu-hooks/internal/state"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const responseBodyLimit = 1024

type timingConfig struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffMaxElapsed time.Duration
	backoffMax        time.Duration
	backoffInitial    time.Duration
}

var defaultTiming = timingConfig{
	timeout:           10 * time.Second,
	rateInterval:      1 * time.Second,
	rateBurst:         1,
	backoffMaxElapsed: 30 * time.Second,
	backoffMax:        10 * time.Second,
	backoffInitial:    1 * time.Second,
}

// DeliveryError reports a deployment notification that could not be delivered.
type DeliveryError struct {
	Channel      string
	DeploymentID string
	// Attempts is the number of requests sent. It is zero when delivery gave
	// up while waiting for the rate limiter.
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s notification for deployment %s failed after %d attempt(s): %v",
		e.Channel, deploymentLabel(Event{DeploymentID: e.DeploymentID}), e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// channel posts rendered deployment events to one webhook endpoint.
// Deliveries are rate limited per service slice, so the blue and green
// halves of a service report independently while repeated runs for the
// same slice cannot flood the endpoint.
type channel struct {
	name   string
	url    string
	logger zerolog.Logger
	client *retryablehttp.Client
	timing timingConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newChannel(logger zerolog.Logger, name, url string, timing timingConfig) *channel {
	// Retries are driven by deliver so Retry-After and the backoff budget
	// apply to every failure the same way.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timing.timeout}

	return &channel{
		name:     name,
		url:      url,
		logger:   logger.With().Str("channel", name).Logger(),
		client:   client,
		timing:   timing,
		limiters: make(map[string]*rate.Limiter),
	}
}

// deliver sends payload for event, retrying server errors and rate limiting
// responses until the backoff budget is spent. It returns the number of
// requests sent.
func (c *channel) deliver(ctx context.Context, event Event, payload []byte) (int, error) {
	if err := c.limiterFor(event).Wait(ctx); err != nil {
		return 0, c.failure(event, 0, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.timing.backoffInitial
	policy.MaxInterval = c.timing.backoffMax
	policy.MaxElapsedTime = c.timing.backoffMaxElapsed
	policy.Reset()

	for attempts := 1; ; attempts++ {
		result := c.attempt(ctx, payload)
		if result.err == nil {
			return attempts, nil
		}
		if !result.retryable {
			return attempts, c.failure(event, attempts, result.err)
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return attempts, c.failure(event, attempts, result.err)
		}
		if result.retryAfter > wait {
			if policy.GetElapsedTime()+result.retryAfter > c.timing.backoffMaxElapsed {
				return attempts, c.failure(event, attempts, result.err)
			}
			wait = result.retryAfter
		}

		c.logger.Debug().
			Err(result.err).
			Str("deployment_id", event.DeploymentID).
			Int("attempt", attempts).
			Dur("wait", wait).
			Msg("retrying notification")
		if !sleepWithContext(ctx, wait) {
			return attempts, c.failure(event, attempts, ctx.Err())
		}
	}
}

func (c *channel) limiterFor(event Event) *rate.Limiter {
	key := state.Key(event.serviceKey(), event.Slice)

	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.timing.rateInterval), c.timing.rateBurst)
		c.limiters[key] = limiter
	}
	return limiter
}

func (c *channel) failure(event Event, attempts int, err error) error {
	return &DeliveryError{Channel: c.name, DeploymentID: event.DeploymentID, Attempts: attempts, Err: err}
}

// attemptResult classifies one request. retryAfter is only set when the
// endpoint asked for a specific delay.
type attemptResult struct {
	status     int
	retryable  bool
	retryAfter time.Duration
	err        error
}

func (c *channel) attempt(ctx context.Context, payload []byte) attemptResult {
	reqCtx, cancel := context.WithTimeout(ctx, c.timing.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return attemptResult{err: fmt.Errorf("build %s request: %w", c.name, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return attemptResult{err: ctx.Err()}
		}
		return attemptResult{retryable: true, err: fmt.Errorf("%s request failed: %w", c.name, err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	return c.classify(resp, strings.TrimSpace(string(body)))
}

func (c *channel) classify(resp *http.Response, body string) attemptResult {
	result := attemptResult{status: resp.StatusCode}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return result
	case resp.StatusCode == http.StatusTooManyRequests:
		result.retryable = true
		result.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= http.StatusInternalServerError:
		result.retryable = true
	}

	msg := fmt.Sprintf("%s responded %s", c.name, resp.Status)
	if body != "" {
		msg += ": " + body
	}
	result.err = errors.New(msg)
	return result
}

// parseRetryAfter accepts delay seconds or an HTTP date and returns zero for
// anything unusable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
