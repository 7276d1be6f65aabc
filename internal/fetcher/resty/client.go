// Package restyfetcher loads organization profile metrics from the directory's JSON API.
package restyfetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/dorank/internal/metrics"
	"github.com/JakeFAU/dorank/internal/stats"
)

// DefaultResourcePath is the node endpoint; %s is the organization id.
const DefaultResourcePath = "/api-d7/node/%s.json"

// Config controls the API client.
type Config struct {
	BaseURL      string
	ResourcePath string
	UserAgent    string
	Timeout      time.Duration
	RetryCount   int
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Client implements stats.ResourceFetcher.
type Client struct {
	http    *resty.Client
	path    string
	limiter Waiter
	tracer  trace.Tracer
}

// node is the subset of the node document the report reads.
type node struct {
	IssueCredits      flexInt           `json:"field_org_issue_credit_count"`
	ProjectsSupported []json.RawMessage `json:"projects_supported"`
	CaseStudies       []json.RawMessage `json:"case_studies"`
	URL               string            `json:"url"`
}

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Waiter) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	path := cfg.ResourcePath
	if path == "" {
		path = DefaultResourcePath
	}
	if strings.Count(path, "%s") != 1 {
		return nil, fmt.Errorf("resource path %q must contain exactly one %%s", path)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{
		http:    client,
		path:    path,
		limiter: limiter,
		tracer:  otel.Tracer("github.com/JakeFAU/dorank/internal/fetcher/resty"),
	}, nil
}

// FetchResource GETs the organization's node document.
func (c *Client) FetchResource(ctx context.Context, id string) (stats.ProfileMetrics, error) {
	ctx, span := c.tracer.Start(ctx, "directory.fetch_resource", trace.WithAttributes(attribute.String("org.id", id)))
	defer span.End()

	start := time.Now()
	profile, err := c.fetch(ctx, id)
	metrics.ObserveFetch("resource", err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return profile, err
}

func (c *Client) fetch(ctx context.Context, id string) (stats.ProfileMetrics, error) {
	path := fmt.Sprintf(c.path, id)
	url := c.http.BaseURL + path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return stats.ProfileMetrics{}, &stats.FetchError{URL: url, Err: err}
		}
	}

	var doc node
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&doc).
		Get(path)
	if err != nil {
		return stats.ProfileMetrics{}, &stats.FetchError{URL: url, Err: err}
	}
	if resp.IsError() {
		return stats.ProfileMetrics{}, &stats.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}
	return stats.ProfileMetrics{
		IssueCredits:      int(doc.IssueCredits),
		ProjectsSupported: len(doc.ProjectsSupported),
		CaseStudies:       len(doc.CaseStudies),
		OriginURL:         doc.URL,
	}, nil
}

// flexInt accepts a JSON number, a numeric string, or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode count string: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("decode count %q: %w", data, err)
	}
	*f = flexInt(n)
	return nil
}
