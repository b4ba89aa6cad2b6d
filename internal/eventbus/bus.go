// Package eventbus enqueues domain events and background jobs (e.g.
// "auth.passwordBased.requestOtp"). An event must never become visible
// for a transaction that rolled back, so callers enqueue only after the
// enclosing transaction has committed successfully, never from inside
// the transactional function itself.
package eventbus

import "context"

// Event is one enqueued job: a name and an opaque, JSON-serializable
// payload, read back by whatever worker handles that name.
type Event struct {
	Name    string
	Payload map[string]any
}

// Bus is the enqueue boundary every component depends on.
type Bus interface {
	Enqueue(ctx context.Context, evt Event) error
}
