// Package stats defines core types shared across the reporting subsystems.
package stats

import (
	"math"
	"time"
)

// PageUnbounded is reported as the page index when the last visited listing
// page held no entries, mirroring floor(rank / 0).
const PageUnbounded = math.MaxInt

// Metric keys persisted in the extremum store. Renaming any of these requires
// a data migration.
const (
	KeyWeeklyTimestamp          = "weekly_timestamp"
	KeyIssueCreditCountMax      = "issue_credit_count_max"
	KeyIssueCreditCountLastWeek = "issue_credit_count_last_week"
	KeyMarketplaceRankMin       = "marketplace_rank_min"
	KeyProjectsSupportedMax     = "projects_supported_max"
	KeyCaseStudiesPublishedMax  = "case_studies_published_max"
)

// KnownKeys lists every key that must exist after store initialization.
func KnownKeys() []string {
	return []string{
		KeyWeeklyTimestamp,
		KeyIssueCreditCountMax,
		KeyIssueCreditCountLastWeek,
		KeyMarketplaceRankMin,
		KeyProjectsSupportedMax,
		KeyCaseStudiesPublishedMax,
	}
}

// RankQuery is the accumulator state of one step of the listing walk.
type RankQuery struct {
	StartURL    string
	TargetID    string
	RunningRank int
}

// Next derives the query for the following listing page.
func (q RankQuery) Next(nextURL string, itemsOnPage int) RankQuery {
	return RankQuery{
		StartURL:    nextURL,
		TargetID:    q.TargetID,
		RunningRank: q.RunningRank + itemsOnPage,
	}
}

// RankResult is the resolved marketplace position.
type RankResult struct {
	// Rank is the 1-based position across the whole listing.
	Rank int `json:"rank"`
	// Page is floor(Rank / items on the last visited page). It approximates
	// the live site's page index and is PageUnbounded when that page was empty.
	Page int `json:"page"`
	// PagesVisited counts fetched listing pages.
	PagesVisited int `json:"pages_visited"`
}

// PageBounded reports whether Page can be used to build a listing link.
func (r RankResult) PageBounded() bool {
	return r.Page != PageUnbounded
}

// MetricObservation is one data point compared against history.
type MetricObservation struct {
	Key   string   `json:"key"`
	Value *float64 `json:"value"`
}

// ExtremumRecord is the persisted watermark for one metric.
type ExtremumRecord struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// ProfileMetrics is the subset of the organization profile resource the
// reporting cycle consumes.
type ProfileMetrics struct {
	IssueCredits      int    `json:"issue_credits"`
	ProjectsSupported int    `json:"projects_supported"`
	CaseStudies       int    `json:"case_studies"`
	OriginURL         string `json:"origin_url"`
}

// Trigger identifies what started a reporting cycle.
type Trigger string

// Trigger values recorded on reports and metrics.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerCommand   Trigger = "command"
	TriggerCLI       Trigger = "cli"
)

// Visibility controls who sees a notification.
type Visibility string

// Visibility values understood by notification sinks.
const (
	VisibilityBroadcast Visibility = "broadcast"
	VisibilityPrivate   Visibility = "private"
)

// Section is one metric line of a report.
type Section struct {
	Metric   string   `json:"metric"`
	Label    string   `json:"label"`
	Observed float64  `json:"observed"`
	IsRecord bool     `json:"is_record"`
	Previous *float64 `json:"previous,omitempty"`
	// Gap is the distance from the standing record; zero when IsRecord.
	Gap  float64 `json:"gap"`
	Link string  `json:"link,omitempty"`
	// WeeklyDelta is the change versus the last weekly snapshot, when known.
	WeeklyDelta *float64 `json:"weekly_delta,omitempty"`
}

// Report is the composed outcome of a successful reporting cycle.
type Report struct {
	CycleID     string     `json:"cycle_id"`
	Trigger     Trigger    `json:"trigger"`
	GeneratedAt time.Time  `json:"generated_at"`
	Header      string     `json:"header"`
	Sections    []Section  `json:"sections"`
	Footer      string     `json:"footer"`
	Rank        RankResult `json:"rank"`
}

// Message is the payload handed to a notification sink. Exactly one of
// Report and ErrorText is set.
type Message struct {
	Channel     string     `json:"channel"`
	User        string     `json:"user,omitempty"`
	ResponseURL string     `json:"-"`
	Visibility  Visibility `json:"visibility"`
	Report      *Report    `json:"report,omitempty"`
	ErrorText   string     `json:"error,omitempty"`
}

// IsError reports whether the message carries a failure instead of a report.
func (m Message) IsError() bool {
	return m.Report == nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
