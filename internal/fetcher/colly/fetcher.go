// Package collyfetcher fetches marketplace listing pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/dorank/internal/metrics"
	"github.com/JakeFAU/dorank/internal/stats"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements stats.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       Waiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// pageResult collects what the collector callbacks observed.
type pageResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())

	transport := newRetryTransport(newHTTPTransport())
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       limiter,
	}
}

// FetchPage GETs url and returns the body. Any non-2xx status, network error,
// or timeout yields a *stats.FetchError.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, url)
	metrics.ObserveFetch("page", err, time.Since(start))
	return body, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, &stats.FetchError{URL: url, Err: err}
		}
	}

	var result pageResult
	collector := f.buildCollector(&result)
	if err := f.runCollector(ctx, collector, url, &result); err != nil {
		return nil, err
	}
	if result.status < http.StatusOK || result.status >= http.StatusMultipleChoices {
		return nil, &stats.FetchError{
			URL:        url,
			StatusCode: result.status,
			Err:        fmt.Errorf("unexpected status %d", result.status),
		}
	}
	return result.body, nil
}

func (f *Fetcher) buildCollector(result *pageResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	transport := f.transport
	if transport == nil {
		transport = newRetryTransport(newHTTPTransport())
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *pageResult) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

// runCollector visits url and returns a *stats.FetchError on failure. result
// is only safe to read once it returns nil.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *pageResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &stats.FetchError{URL: url, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if result.err != nil {
			return &stats.FetchError{
				URL:        url,
				StatusCode: result.status,
				Err:        fmt.Errorf("colly response failed: %w", result.err),
			}
		}
		if err != nil {
			return &stats.FetchError{URL: url, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// IsTimeout reports whether err came from a timed out request.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
