// Package extremum tracks all-time high and low watermarks for named metrics.
package extremum

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/stats"
)

// Decision is the outcome of comparing an observation with history.
type Decision struct {
	IsRecord bool
	Previous *float64
	Gap      float64
}

// Tracker stores and retrieves extremes. It never decides on its own whether
// a value should be written; callers pair Observe with Set.
type Tracker struct {
	store  stats.ExtremumStore
	keys   []string
	logger *zap.Logger
}

// New builds a Tracker over store. keys defaults to stats.KnownKeys().
func New(store stats.ExtremumStore, keys []string, logger *zap.Logger) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("extremum store is required")
	}
	if len(keys) == 0 {
		keys = stats.KnownKeys()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, keys: keys, logger: logger}, nil
}

// Init creates every known key with a null value if it is absent. Running it
// again never resets a recorded extreme.
func (t *Tracker) Init(ctx context.Context) error {
	if err := t.store.Init(ctx, t.keys); err != nil {
		return asStorageError("init", "", err)
	}
	return nil
}

// Get returns the stored extreme, or nil if none was ever recorded.
func (t *Tracker) Get(ctx context.Context, key string) (*float64, error) {
	value, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, asStorageError("get", key, err)
	}
	return value, nil
}

// Set replaces the stored value for key unconditionally.
func (t *Tracker) Set(ctx context.Context, key string, value float64) error {
	t.logger.Debug("updating extremum", zap.String("metric", key), zap.Float64("value", value))
	if err := t.store.Set(ctx, key, value); err != nil {
		return asStorageError("set", key, err)
	}
	return nil
}

// Observe compares observed with the stored value using dir.
func (t *Tracker) Observe(ctx context.Context, key string, dir stats.Direction, observed float64) (Decision, error) {
	previous, err := t.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decide(dir, previous, observed), nil
}

// IsNewHigh reports whether observed beats the stored maximum.
func (t *Tracker) IsNewHigh(ctx context.Context, key string, observed float64) (Decision, error) {
	return t.Observe(ctx, key, stats.HigherIsBetter, observed)
}

// IsNewLow reports whether observed matches or beats the stored minimum.
func (t *Tracker) IsNewLow(ctx context.Context, key string, observed float64) (Decision, error) {
	return t.Observe(ctx, key, stats.LowerIsBetter, observed)
}

// Records returns the current value of every known key.
func (t *Tracker) Records(ctx context.Context) ([]stats.ExtremumRecord, error) {
	out := make([]stats.ExtremumRecord, 0, len(t.keys))
	for _, key := range t.keys {
		value, err := t.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, stats.ExtremumRecord{Name: key, Value: value})
	}
	return out, nil
}

// Ping checks that the backing store is reachable.
func (t *Tracker) Ping(ctx context.Context) error {
	if err := t.store.Ping(ctx); err != nil {
		return asStorageError("ping", "", err)
	}
	return nil
}

// Decide applies the record rule to a previous value already in hand.
func Decide(dir stats.Direction, previous *float64, observed float64) Decision {
	return Decision{
		IsRecord: stats.IsRecord(dir, previous, observed),
		Previous: previous,
		Gap:      stats.Gap(dir, previous, observed),
	}
}

func asStorageError(op, key string, err error) error {
	var se *stats.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &stats.StorageError{Op: op, Key: key, Err: err}
}
