// Package inbox holds the multi-producer, single-consumer queue the
// Listeners feed and the MessageRouter alone drains (§5).
package inbox

import (
	"context"

	"github.com/satcoord/satring/internal/wire"
)

// Queue is a buffered channel of decoded messages, safe for many
// concurrent producers (one per accepted connection) and exactly one
// consumer (the MessageRouter).
type Queue struct {
	ch chan wire.Message
}

// NewQueue returns a Queue with the given buffer depth.
func NewQueue(buffer int) *Queue {
	return &Queue{ch: make(chan wire.Message, buffer)}
}

// Enqueue hands a decoded message to the router. It blocks if the
// queue is full.
func (q *Queue) Enqueue(m wire.Message) {
	q.ch <- m
}

// Dequeue blocks until a message is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (wire.Message, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case m := <-q.ch:
		return m, true
	}
}
