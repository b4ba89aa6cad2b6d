package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lightbasehq/corehub/internal/observability/metrics"
)

// RedisBus appends events onto a single Redis stream, the broker the
// background job pool (spec.md §5 — "a separate pool of background job
// workers") consumes from. One stream keeps ordering simple; job name is
// carried as a field so a single consumer group can fan out by name.
type RedisBus struct {
	client *redis.Client
	stream string
}

func NewRedisBus(client *redis.Client, stream string) *RedisBus {
	if stream == "" {
		stream = "corehub:events"
	}
	return &RedisBus{client: client, stream: stream}
}

func (b *RedisBus) Enqueue(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal payload for %s: %w", evt.Name, err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{
			"name":    evt.Name,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("eventbus: enqueue %s: %w", evt.Name, err)
	}
	metrics.EventsEnqueued.WithLabelValues(evt.Name).Inc()
	return nil
}
