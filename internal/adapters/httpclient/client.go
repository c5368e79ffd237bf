// Package httpclient is the rate-limited, retrying HTTP transport shared by
// the outbound adapters (snapshot fetcher, LLM API).
package httpclient

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ga_friendliness/internal/adapters/observability"
)

var (
	ErrNotFound     = errors.New("remote: not found")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrForbidden    = errors.New("remote: forbidden")
)

// StatusError is a non-retryable response other than 401/403/404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("bad status %d: %s", e.Code, e.Body) }

type Client struct {
	service  string
	hc       *http.Client
	rl       *rate.Limiter
	attempts int
	// backoff is swapped out in tests.
	backoff func(i int) time.Duration
}

// New returns a client allowing rps requests per second. service labels the
// outbound metrics.
func New(service string, rps float64, timeout time.Duration) *Client {
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		service:  service,
		hc:       &http.Client{Timeout: timeout},
		rl:       rate.NewLimiter(rate.Limit(rps), burst),
		attempts: 4,
		backoff:  Backoff,
	}
}

// WithBackoff overrides the retry delay function.
func (c *Client) WithBackoff(f func(i int) time.Duration) *Client {
	c.backoff = f
	return c
}

// Do sends the request built by newReq, retrying on network errors, 429 and
// transient 5xx. Retry-After is honored when present. The body of a 2xx
// response is returned.
func (c *Client) Do(ctx context.Context, endpoint string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < c.attempts; i++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(c.service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if i < c.attempts-1 && sleepCtx(ctx, c.backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}
		observability.ObserveExternal(c.service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
			b, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			return b, err

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return nil, ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return nil, ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := RetryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = c.backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < c.attempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
	}
	return nil, lastErr
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SleepCtx is sleepCtx for callers running their own retry loops.
func SleepCtx(ctx context.Context, d time.Duration) bool { return sleepCtx(ctx, d) }

// RetryAfter parses Retry-After (seconds or HTTP-date); 0 if absent.
func RetryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Backoff doubles from 200ms per attempt with up to +50% jitter.
func Backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
