// Package report runs one reporting cycle: gather the current figures, compare
// them with stored records, persist new records, and send one notification.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/dorank/internal/extremum"
	"github.com/JakeFAU/dorank/internal/metrics"
	"github.com/JakeFAU/dorank/internal/stats"
)

// DefaultWeeklyInterval is the minimum age of the weekly snapshot before a
// scheduled cycle replaces it.
const DefaultWeeklyInterval = 7 * 24 * time.Hour

// Config describes the organization being reported on.
type Config struct {
	BaseURL         string
	MarketplacePath string
	OrganizationID  string
	Header          string
	Footer          string
	WeeklyInterval  time.Duration
}

// RankResolver locates the organization in the marketplace listing.
type RankResolver interface {
	Resolve(ctx context.Context, startURL, targetID string) (stats.RankResult, error)
}

// Extremes reads and writes stored records.
type Extremes interface {
	Get(ctx context.Context, key string) (*float64, error)
	Set(ctx context.Context, key string, value float64) error
}

// Deps are the collaborators of a Cycle. Archiver is optional.
type Deps struct {
	Resolver RankResolver
	Profiles stats.ResourceFetcher
	Extremes Extremes
	Notifier stats.Notifier
	Archiver stats.Archiver
	Clock    stats.Clock
	IDs      stats.IDGenerator
	Logger   *zap.Logger
}

// Request describes who asked for a cycle and where the answer goes.
type Request struct {
	Trigger     stats.Trigger
	Channel     string
	User        string
	ResponseURL string
	Visibility  stats.Visibility
	// DryRun computes and notifies but never writes to the store.
	DryRun bool
}

// Cycle orchestrates reporting runs. Runs are serialized so that two cycles
// never interleave their read and write phases.
type Cycle struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer
	mu     sync.Mutex
}

// metricSpec ties a tracked key to its report label and direction.
type metricSpec struct {
	key   string
	label string
	dir   stats.Direction
	value func(observed) float64
}

type observed struct {
	rank    stats.RankResult
	profile stats.ProfileMetrics
}

var trackedMetrics = []metricSpec{
	{
		key:   stats.KeyMarketplaceRankMin,
		label: "Marketplace rank",
		dir:   stats.LowerIsBetter,
		value: func(o observed) float64 { return float64(o.rank.Rank) },
	},
	{
		key:   stats.KeyIssueCreditCountMax,
		label: "Issue credit count",
		dir:   stats.HigherIsBetter,
		value: func(o observed) float64 { return float64(o.profile.IssueCredits) },
	},
	{
		key:   stats.KeyProjectsSupportedMax,
		label: "Supported projects",
		dir:   stats.HigherIsBetter,
		value: func(o observed) float64 { return float64(o.profile.ProjectsSupported) },
	},
	{
		key:   stats.KeyCaseStudiesPublishedMax,
		label: "Case studies published",
		dir:   stats.HigherIsBetter,
		value: func(o observed) float64 { return float64(o.profile.CaseStudies) },
	},
}

// New validates the configuration and dependencies.
func New(cfg Config, deps Deps) (*Cycle, error) {
	switch {
	case deps.Resolver == nil:
		return nil, fmt.Errorf("rank resolver is required")
	case deps.Profiles == nil:
		return nil, fmt.Errorf("profile fetcher is required")
	case deps.Extremes == nil:
		return nil, fmt.Errorf("extremum store is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(cfg.OrganizationID) == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.WeeklyInterval <= 0 {
		cfg.WeeklyInterval = DefaultWeeklyInterval
	}
	if cfg.Header == "" {
		cfg.Header = "Here are the latest drupal.org stats:"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cycle{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("github.com/JakeFAU/dorank/internal/report"),
	}, nil
}

// ListingURL is the first marketplace page.
func (c *Cycle) ListingURL() string {
	return c.cfg.BaseURL + c.cfg.MarketplacePath
}

// Run executes one cycle and sends exactly one notification: the report on
// success, an error message otherwise. A cycle that fails before its write
// phase leaves the store untouched.
func (c *Cycle) Run(ctx context.Context, req Request) (stats.Report, error) {
	ctx, span := c.tracer.Start(ctx, "report.cycle", trace.WithAttributes(
		attribute.String("trigger", string(req.Trigger)),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()

	logger := c.logger.With(zap.String("trigger", string(req.Trigger)), zap.String("channel", req.Channel))
	report, err := c.build(ctx, req, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveCycle(string(req.Trigger), "error")
		logger.Error("reporting cycle failed", zap.Error(err))
		if nErr := c.deps.Notifier.Notify(ctx, c.message(req, nil, err)); nErr != nil {
			logger.Error("failed to deliver error notification", zap.Error(nErr))
			return stats.Report{}, errors.Join(err, nErr)
		}
		return stats.Report{}, err
	}

	if c.deps.Archiver != nil {
		uri, aErr := c.deps.Archiver.Archive(ctx, report)
		if aErr != nil {
			logger.Warn("failed to archive report", zap.String("cycle_id", report.CycleID), zap.Error(aErr))
		} else {
			logger.Debug("report archived", zap.String("uri", uri))
		}
	}

	if err := c.deps.Notifier.Notify(ctx, c.message(req, &report, nil)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveCycle(string(req.Trigger), "notify_error")
		logger.Error("failed to deliver report", zap.String("cycle_id", report.CycleID), zap.Error(err))
		return report, fmt.Errorf("notify: %w", err)
	}
	metrics.ObserveCycle(string(req.Trigger), "ok")
	logger.Info("reporting cycle complete",
		zap.String("cycle_id", report.CycleID),
		zap.Int("rank", report.Rank.Rank),
		zap.Int("pages_visited", report.Rank.PagesVisited),
	)
	return report, nil
}

func (c *Cycle) build(ctx context.Context, req Request, logger *zap.Logger) (stats.Report, error) {
	cycleID, err := c.deps.IDs.NewID()
	if err != nil {
		return stats.Report{}, fmt.Errorf("cycle id: %w", err)
	}

	obs, err := c.gather(ctx)
	if err != nil {
		return stats.Report{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.deps.Clock.Now()
	state, err := c.read(ctx)
	if err != nil {
		return stats.Report{}, err
	}
	sections, writes := c.decide(req, obs, state, now)

	if req.DryRun {
		logger.Info("dry run; skipping store writes", zap.Int("pending_writes", len(writes)))
	} else {
		for _, w := range writes {
			if err := c.deps.Extremes.Set(ctx, w.Key, *w.Value); err != nil {
				return stats.Report{}, err
			}
		}
	}
	for _, s := range sections {
		metrics.ObserveMetric(s.Metric, s.Observed, s.IsRecord)
	}

	return stats.Report{
		CycleID:     cycleID,
		Trigger:     req.Trigger,
		GeneratedAt: now,
		Header:      c.cfg.Header,
		Sections:    sections,
		Footer:      c.footer(obs.profile),
		Rank:        obs.rank,
	}, nil
}

// gather fetches the listing rank and the profile concurrently.
func (c *Cycle) gather(ctx context.Context) (observed, error) {
	var obs observed
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rank, err := c.deps.Resolver.Resolve(gctx, c.ListingURL(), c.cfg.OrganizationID)
		if err != nil {
			return fmt.Errorf("resolve marketplace rank: %w", err)
		}
		obs.rank = rank
		return nil
	})
	g.Go(func() error {
		profile, err := c.deps.Profiles.FetchResource(gctx, c.cfg.OrganizationID)
		if err != nil {
			return fmt.Errorf("fetch organization profile: %w", err)
		}
		obs.profile = profile
		return nil
	})
	if err := g.Wait(); err != nil {
		return observed{}, err
	}
	return obs, nil
}

// read loads every stored value the cycle compares against.
func (c *Cycle) read(ctx context.Context) (map[string]*float64, error) {
	keys := []string{stats.KeyWeeklyTimestamp, stats.KeyIssueCreditCountLastWeek}
	for _, m := range trackedMetrics {
		keys = append(keys, m.key)
	}
	state := make(map[string]*float64, len(keys))
	for _, key := range keys {
		v, err := c.deps.Extremes.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		state[key] = v
	}
	return state, nil
}

// decide builds the report sections and the observations to persist.
func (c *Cycle) decide(req Request, obs observed, state map[string]*float64, now time.Time) ([]stats.Section, []stats.MetricObservation) {
	var (
		sections []stats.Section
		writes   []stats.MetricObservation
	)
	lastWeek := state[stats.KeyIssueCreditCountLastWeek]
	for _, m := range trackedMetrics {
		value := m.value(obs)
		d := extremum.Decide(m.dir, state[m.key], value)
		section := stats.Section{
			Metric:   m.key,
			Label:    m.label,
			Observed: value,
			IsRecord: d.IsRecord,
			Previous: d.Previous,
			Gap:      d.Gap,
		}
		switch m.key {
		case stats.KeyMarketplaceRankMin:
			section.Link = c.marketplaceLink(obs.rank)
		case stats.KeyIssueCreditCountMax:
			if lastWeek != nil {
				section.WeeklyDelta = stats.Float(value - *lastWeek)
			}
		}
		if section.IsRecord {
			writes = append(writes, stats.MetricObservation{Key: m.key, Value: stats.Float(value)})
		}
		sections = append(sections, section)
	}

	if req.Trigger == stats.TriggerScheduled && c.snapshotDue(state[stats.KeyWeeklyTimestamp], now) {
		writes = append(writes,
			stats.MetricObservation{Key: stats.KeyIssueCreditCountLastWeek, Value: stats.Float(float64(obs.profile.IssueCredits))},
			stats.MetricObservation{Key: stats.KeyWeeklyTimestamp, Value: stats.Float(float64(now.Unix()))},
		)
	}
	return sections, writes
}

func (c *Cycle) snapshotDue(last *float64, now time.Time) bool {
	if last == nil {
		return true
	}
	taken := time.Unix(int64(*last), 0)
	return now.Sub(taken) >= c.cfg.WeeklyInterval
}

func (c *Cycle) marketplaceLink(rank stats.RankResult) string {
	if !rank.PageBounded() {
		return ""
	}
	return fmt.Sprintf("%s?page=%d", c.ListingURL(), rank.Page)
}

func (c *Cycle) footer(profile stats.ProfileMetrics) string {
	if c.cfg.Footer != "" {
		return c.cfg.Footer
	}
	origin := profile.OriginURL
	if origin == "" {
		origin = c.cfg.BaseURL
	}
	return fmt.Sprintf("For more info, see %s.", origin)
}

func (c *Cycle) message(req Request, report *stats.Report, err error) stats.Message {
	msg := stats.Message{
		Channel:     req.Channel,
		User:        req.User,
		ResponseURL: req.ResponseURL,
		Visibility:  req.Visibility,
		Report:      report,
	}
	if msg.Visibility == "" {
		msg.Visibility = stats.VisibilityBroadcast
	}
	if err != nil {
		msg.ErrorText = err.Error()
	}
	return msg
}
