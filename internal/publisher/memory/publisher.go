// Package memory contains an in-memory notifier for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/dorank/internal/stats"
)

// Publisher records every notification for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []stats.Message
	// Err, when set, is returned by Notify after the message is recorded.
	Err error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Notify records msg.
func (p *Publisher) Notify(_ context.Context, msg stats.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.Err
}

// Messages returns the recorded notifications.
func (p *Publisher) Messages() []stats.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]stats.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Last returns the most recent notification.
func (p *Publisher) Last() (stats.Message, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.messages) == 0 {
		return stats.Message{}, false
	}
	return p.messages[len(p.messages)-1], true
}
