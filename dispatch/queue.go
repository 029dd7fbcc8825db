// Package dispatch decouples message arrival from message processing. The
// poller publishes raw message payloads to a Queue and a worker pool consumes
// them, so a slow handler never delays the next poll tick.
package dispatch

import "context"

// Handler processes a single queued payload. Returning an error requeues the
// payload where the backend supports it.
type Handler func(ctx context.Context, payload []byte) error

// Queue is the transport between the poller and the workers.
type Queue interface {
	Publish(ctx context.Context, payload []byte) error
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}
