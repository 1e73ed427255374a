// Package sink delivers offline operations to the remote durable store.
package sink

import "context"

// Sink is the delivery contract the queue retries against. Deliver must be
// idempotent on operationId: the queue guarantees at-least-once, so a payload
// may arrive twice after a crash between delivery and bookkeeping.
type Sink interface {
	Deliver(ctx context.Context, operationId string, payload []byte) error
}
