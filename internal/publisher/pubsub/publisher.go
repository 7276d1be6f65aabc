// Package pubsub publishes cycle notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/dorank/internal/stats"
)

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Notify marshals msg to JSON and publishes it to the topic.
func (p *Publisher) Notify(ctx context.Context, msg stats.Message) error {
	if p.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	out, err := buildMessage(ctx, msg)
	if err != nil {
		return err
	}
	result := p.publisher.Publish(ctx, out)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func buildMessage(ctx context.Context, msg stats.Message) (*pubsub.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	kind := "report"
	if msg.IsError() {
		kind = "error"
	}
	out := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":       kind,
			"channel":    msg.Channel,
			"visibility": string(msg.Visibility),
		},
	}
	if msg.Report != nil {
		out.Attributes["cycle_id"] = msg.Report.CycleID
		out.Attributes["trigger"] = string(msg.Report.Trigger)
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: out.Attributes})
	return out, nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
