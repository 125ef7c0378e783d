package github

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const apiVersionHeader = "X-GitHub-Api-Version"

// RateLimitInfo holds information about GitHub API rate limits
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime time.Time
	// Secondary limits are announced through Retry-After.
	SecondaryLimitReset time.Time
}

// RateLimiter is implemented by stores that track the API rate limit.
type RateLimiter interface {
	RateLimit() RateLimitInfo
}

var _ RateLimiter = (*GitHubClient)(nil)

// retryTransport retries transient failures (transport errors, 5xx, 429)
// with exponential backoff, bounds every attempt with a timeout, and pins
// the API version header. 4xx responses are returned to the caller as is.
type retryTransport struct {
	base       http.RoundTripper
	logger     *logrus.Logger
	apiVersion string

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	attemptTimeout time.Duration

	mu            sync.Mutex
	rateLimitInfo RateLimitInfo
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	backoff := t.initialBackoff
	attempts := t.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := t.waitForRateLimit(ctx); err != nil {
			return nil, err
		}

		attemptReq, cancel, err := t.prepareAttempt(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		last := attempt == attempts-1
		if err != nil {
			cancel()
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			t.logger.WithError(err).WithFields(logrus.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"attempt": attempt + 1,
			}).Warn("Object store request failed")
			if last {
				break
			}
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = t.nextBackoff(backoff)
			continue
		}

		t.updateRateLimitInfo(resp)

		if !retryableStatus(resp.StatusCode) || last {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		wait := backoff
		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := t.retryAfter(resp); retryAfter > 0 {
				wait = retryAfter
			}
		}
		t.logger.WithFields(logrus.Fields{
			"method":  req.Method,
			"path":    req.URL.Path,
			"status":  resp.StatusCode,
			"attempt": attempt + 1,
			"wait":    wait,
		}).Warn("Retrying object store request")

		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()

		if err := sleepContext(ctx, wait); err != nil {
			return nil, err
		}
		backoff = t.nextBackoff(backoff)
	}

	return nil, lastErr
}

// prepareAttempt clones req with a rewound body, the pinned API version and a
// per-attempt deadline.
func (t *retryTransport) prepareAttempt(req *http.Request, attempt int) (*http.Request, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(req.Context())
	if t.attemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(req.Context(), t.attemptTimeout)
	}

	attemptReq := req.Clone(ctx)
	if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			cancel()
			return nil, nil, NewGitHubError(req.Method+" "+req.URL.Path, 0, "request body cannot be replayed", nil)
		}
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, nil, err
		}
		attemptReq.Body = body
	}
	if t.apiVersion != "" {
		attemptReq.Header.Set(apiVersionHeader, t.apiVersion)
	}
	return attemptReq, cancel, nil
}

func (t *retryTransport) nextBackoff(current time.Duration) time.Duration {
	multiplier := t.multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	return time.Duration(math.Min(float64(current)*multiplier, float64(t.maxBackoff)))
}

// updateRateLimitInfo updates the rate limit information from response headers
func (t *retryTransport) updateRateLimitInfo(resp *http.Response) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		t.rateLimitInfo.Limit, _ = strconv.Atoi(limit)
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		t.rateLimitInfo.Remaining, _ = strconv.Atoi(remaining)
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if resetTime, err := strconv.ParseInt(reset, 10, 64); err == nil {
			t.rateLimitInfo.ResetTime = time.Unix(resetTime, 0)
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if retrySeconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			t.rateLimitInfo.SecondaryLimitReset = time.Now().Add(time.Duration(retrySeconds) * time.Second)
		}
	}
}

func (t *retryTransport) retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	wait := time.Duration(seconds) * time.Second
	if wait > t.maxBackoff {
		wait = t.maxBackoff
	}
	return wait
}

// waitForRateLimit blocks while the primary limit is nearly exhausted or a
// secondary limit is active.
func (t *retryTransport) waitForRateLimit(ctx context.Context) error {
	t.mu.Lock()
	info := t.rateLimitInfo
	t.mu.Unlock()

	now := time.Now()
	var wait time.Duration
	if info.Limit > 0 && info.Remaining <= 5 && info.ResetTime.After(now) {
		wait = info.ResetTime.Sub(now)
	}
	if info.SecondaryLimitReset.After(now) {
		if secondary := info.SecondaryLimitReset.Sub(now); secondary > wait {
			wait = secondary
		}
	}
	if wait <= 0 {
		return nil
	}

	t.logger.Warnf("Rate limit nearly exceeded. Waiting %v before next request", wait)
	return sleepContext(ctx, wait)
}

// RateLimit returns the last observed rate limit state.
func (t *retryTransport) RateLimit() RateLimitInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rateLimitInfo
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cancelOnClose releases the attempt context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
