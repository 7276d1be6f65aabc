package stats

import (
	"context"
	"time"
)

// PageFetcher retrieves the raw HTML of a listing page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// ResourceFetcher retrieves the organization profile resource by identifier.
type ResourceFetcher interface {
	FetchResource(ctx context.Context, id string) (ProfileMetrics, error)
}

// ExtremumStore persists watermarks keyed by metric name. Get returns a nil
// value for a key that was never observed; failures are *StorageError.
type ExtremumStore interface {
	Init(ctx context.Context, keys []string) error
	Get(ctx context.Context, key string) (*float64, error)
	Set(ctx context.Context, key string, value float64) error
	Ping(ctx context.Context) error
	Close() error
}

// Notifier delivers a composed message to a messaging channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Archiver keeps a copy of each successful report and returns its location.
type Archiver interface {
	Archive(ctx context.Context, report Report) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
