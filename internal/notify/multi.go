// Package notify fans cycle notifications out to several sinks.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/stats"
)

// Multi delivers to a primary sink and any number of best-effort secondaries.
// Only the primary's error is returned.
type Multi struct {
	primary     stats.Notifier
	secondaries []stats.Notifier
	logger      *zap.Logger
}

// NewMulti builds a fan-out notifier.
func NewMulti(logger *zap.Logger, primary stats.Notifier, secondaries ...stats.Notifier) (*Multi, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{primary: primary, secondaries: secondaries, logger: logger}, nil
}

// Notify implements stats.Notifier.
func (m *Multi) Notify(ctx context.Context, msg stats.Message) error {
	err := m.primary.Notify(ctx, msg)
	for i, n := range m.secondaries {
		if n == nil {
			continue
		}
		if sErr := n.Notify(ctx, msg); sErr != nil {
			m.logger.Warn("secondary notifier failed", zap.Int("index", i), zap.Error(sErr))
		}
	}
	if err != nil {
		return fmt.Errorf("primary notifier: %w", err)
	}
	return nil
}
