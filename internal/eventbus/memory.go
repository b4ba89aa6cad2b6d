package eventbus

import (
	"context"
	"sync"

	"github.com/lightbasehq/corehub/internal/observability/metrics"
)

// MemoryBus records events in-process, used in development (no Redis
// dependency required to boot) and in tests that assert on what got
// enqueued.
type MemoryBus struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Enqueue(ctx context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	metrics.EventsEnqueued.WithLabelValues(evt.Name).Inc()
	return nil
}

// Events returns a snapshot of everything enqueued so far.
func (b *MemoryBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}
