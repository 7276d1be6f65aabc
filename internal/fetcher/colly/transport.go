package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var retryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// retryTransport retries GETs that fail with a transient TLS handshake or
// dial timeout. Responses, whatever their status, are returned as-is.
type retryTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
}

func newRetryTransport(base http.RoundTripper) *retryTransport {
	return &retryTransport{base: base, backoff: retryBackoff}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("retry transport received nil request")
	}
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}
	maxAttempts := len(t.backoff) + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransientError(err) || attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("retry backoff sleep: %w", err)
		}
	}
	return nil, fmt.Errorf("roundtrip %s: %w", req.URL, lastErr)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
