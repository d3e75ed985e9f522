// Package outbound holds the single multi-producer, single-consumer
// queue every core component feeds and only the Transmitter drains
// (§5).
package outbound

import (
	"context"

	"github.com/satcoord/satring/internal/wire"
)

// Envelope pairs a message with an optional explicit next hop. A nil
// NextHop tells the Transmitter to derive the hop itself from the
// message kind (§4.3): broadcast a REQUEST, forward RESPOND,
// RESPONSE-NACK and IMAGE-DATA away from their last sender, and send
// PROCESSED-DATA ground-ward by the OrbitalOracle's priority list; a
// non-nil NextHop is used
// as-is, e.g. when the ResponseCollector already picked a delegate.
type Envelope struct {
	Message wire.Message
	NextHop *uint64
}

// Queue is a buffered channel of Envelopes, safe for many concurrent
// producers and exactly one consumer.
type Queue struct {
	ch chan Envelope
}

// NewQueue returns a Queue with the given buffer depth.
func NewQueue(buffer int) *Queue {
	return &Queue{ch: make(chan Envelope, buffer)}
}

// Enqueue hands an envelope to the Transmitter. It blocks if the
// queue is full, applying backpressure to the producer rather than
// dropping messages silently.
func (q *Queue) Enqueue(e Envelope) {
	q.ch <- e
}

// TryEnqueue attempts a non-blocking send, returning false if the
// queue is currently full.
func (q *Queue) TryEnqueue(e Envelope) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// Dequeue blocks until an envelope is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Envelope, bool) {
	select {
	case <-ctx.Done():
		return Envelope{}, false
	case e := <-q.ch:
		return e, true
	}
}
