// Package rank walks a paginated directory listing to find an entity's
// absolute position.
package rank

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/metrics"
	"github.com/JakeFAU/dorank/internal/stats"
)

// Element is an opaque handle to the target's node inside a ListingPage.
type Element any

// ListingPage is the narrow view of a parsed listing page the resolver needs.
type ListingPage interface {
	// ItemCount is the number of entries in the listing container.
	ItemCount() int
	// FindTarget locates the entity with the given identifier on this page.
	FindTarget(targetID string) (Element, bool)
	// PrecedingSiblingCount is the 0-based position of the target's entry.
	PrecedingSiblingCount(el Element) int
	// NextPageHref returns the raw href of the "next page" link, if any.
	NextPageHref() (string, bool)
}

// Parser turns a raw page body into a ListingPage.
type Parser interface {
	Parse(body []byte) (ListingPage, error)
}

// Config controls the page walk.
type Config struct {
	// BaseURL is what relative "next" links are resolved against.
	BaseURL string
	// MaxPages stops the walk with a NotFoundError after this many pages.
	// Zero means no limit.
	MaxPages int
}

// Resolver computes marketplace ranks.
type Resolver struct {
	cfg     Config
	base    *url.URL
	fetcher stats.PageFetcher
	parser  Parser
	logger  *zap.Logger
}

// New constructs a Resolver.
func New(cfg Config, fetcher stats.PageFetcher, parser Parser, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("listing parser is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:     cfg,
		base:    base,
		fetcher: fetcher,
		parser:  parser,
		logger:  logger,
	}, nil
}

// Resolve walks the listing from startURL until targetID is found.
func (r *Resolver) Resolve(ctx context.Context, startURL, targetID string) (stats.RankResult, error) {
	return r.ResolveFrom(ctx, stats.RankQuery{StartURL: startURL, TargetID: targetID})
}

// ResolveFrom resumes a walk from an arbitrary page with a running rank
// carried over from the pages before it.
func (r *Resolver) ResolveFrom(ctx context.Context, query stats.RankQuery) (stats.RankResult, error) {
	visited := make(map[string]struct{})
	pages := 0
	for {
		if r.cfg.MaxPages > 0 && pages >= r.cfg.MaxPages {
			return stats.RankResult{}, &stats.NotFoundError{
				TargetID:     query.TargetID,
				PagesVisited: pages,
				LastURL:      query.StartURL,
				Reason:       fmt.Sprintf("page limit %d reached", r.cfg.MaxPages),
			}
		}
		visited[query.StartURL] = struct{}{}

		page, err := r.load(ctx, query.StartURL)
		if err != nil {
			return stats.RankResult{}, err
		}
		pages++
		metrics.ObserveListingPage()

		items := page.ItemCount()
		if el, ok := page.FindTarget(query.TargetID); ok {
			result := stats.RankResult{
				Rank:         query.RunningRank + page.PrecedingSiblingCount(el) + 1,
				PagesVisited: pages,
			}
			result.Page = pageIndex(result.Rank, items)
			r.logger.Debug("target located",
				zap.String("url", query.StartURL),
				zap.Int("rank", result.Rank),
				zap.Int("page", result.Page),
				zap.Int("pages_visited", pages),
			)
			return result, nil
		}

		href, ok := page.NextPageHref()
		if !ok {
			return stats.RankResult{}, &stats.NotFoundError{
				TargetID:     query.TargetID,
				PagesVisited: pages,
				LastURL:      query.StartURL,
			}
		}
		next, err := r.resolveHref(href)
		if err != nil {
			return stats.RankResult{}, fmt.Errorf("resolve next page link %q: %w", href, err)
		}
		if _, seen := visited[next]; seen {
			return stats.RankResult{}, &stats.NotFoundError{
				TargetID:     query.TargetID,
				PagesVisited: pages,
				LastURL:      query.StartURL,
				Reason:       fmt.Sprintf("next link loops back to %s", next),
			}
		}
		r.logger.Debug("advancing to next listing page",
			zap.String("url", next),
			zap.Int("running_rank", query.RunningRank+items),
		)
		query = query.Next(next, items)
	}
}

func (r *Resolver) load(ctx context.Context, pageURL string) (ListingPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &stats.FetchError{URL: pageURL, Err: err}
	}
	body, err := r.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		if stats.IsFetchError(err) {
			return nil, err
		}
		return nil, &stats.FetchError{URL: pageURL, Err: err}
	}
	page, err := r.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse listing page %s: %w", pageURL, err)
	}
	return page, nil
}

func (r *Resolver) resolveHref(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return r.base.ResolveReference(ref).String(), nil
}

// pageIndex is floor(rank / itemsOnPage) using the last visited page's count.
func pageIndex(rank, itemsOnPage int) int {
	if itemsOnPage <= 0 {
		return stats.PageUnbounded
	}
	return rank / itemsOnPage
}
