// Package router implements the MessageRouter: the single dispatcher
// that classifies every inbound message and drives the registry,
// collector, and executor accordingly (§4.6).
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/inbox"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/registry"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/wire"
)

// executor is the narrow slice of *executor.TaskExecutor the router
// needs: an admission decision and a place to hand off admitted work.
type executor interface {
	TryAdmit(deadline time.Time, sourceSatID uint64) (accepted bool, frequency float64)
	Submit(t task.Task, frequency float64)
}

// collector is the narrow slice of *collector.ResponseCollector the
// router needs.
type collector interface {
	AddResponse(r *wire.Respond)
	CancelResponse(taskID task.ID) (tracked bool)
}

// Router is a single logical dispatcher, run by one worker so that
// per-taskID decisions are serialised (§4.6). It holds no state of
// its own beyond references to the components it drives.
type Router struct {
	self     uint64
	in       *inbox.Queue
	out      *outbound.Queue
	accepted *registry.AcceptedRequests
	exec     executor
	coll     collector
	logger   *zap.SugaredLogger
}

// New returns a Router wired to the given components. logger may be
// nil.
func New(self uint64, in *inbox.Queue, out *outbound.Queue, accepted *registry.AcceptedRequests, exec executor, coll collector, logger *zap.SugaredLogger) *Router {
	return &Router{self: self, in: in, out: out, accepted: accepted, exec: exec, coll: coll, logger: logger}
}

// Run dequeues and dispatches inbound messages until ctx is
// cancelled.
func (r *Router) Run(ctx context.Context) {
	for {
		msg, ok := r.in.Dequeue(ctx)
		if !ok {
			return
		}
		r.dispatch(msg)
	}
}

func (r *Router) dispatch(msg wire.Message) {
	switch m := msg.(type) {
	case *wire.Request:
		r.handleRequest(m)
	case *wire.Respond:
		r.coll.AddResponse(m)
	case *wire.ImageData:
		r.handleImageData(m)
	case *wire.ResponseNack:
		r.handleResponseNack(m)
	case *wire.ProcessedData:
		r.forward(m)
	default:
		if r.logger != nil {
			r.logger.Warnw("dropping message of unrecognised kind")
		}
	}
}

// handleRequest asks the executor whether it can admit the task. An
// admitted request is recorded in AcceptedRequests and answered with
// RESPOND; a declined one is forwarded unchanged (§4.6).
func (r *Router) handleRequest(m *wire.Request) {
	accepted, frequency := r.exec.TryAdmit(m.Deadline, m.TaskID.Origin())
	if accepted {
		r.accepted.Admit(m.TaskID, frequency, m.Deadline)
		hop := m.LastSenderID()
		r.out.Enqueue(outbound.Envelope{
			Message: &wire.Respond{TaskID: m.TaskID, SourceSatID: r.self, FirstHopID: hop},
			NextHop: &hop,
		})
		return
	}
	r.forward(m)
}

// handleImageData hands the task to the executor if this node had
// previously admitted it, atomically consuming the registry entry;
// otherwise it forwards the frame unchanged (§4.6).
func (r *Router) handleImageData(m *wire.ImageData) {
	if frequency, ok := r.accepted.TakeIfAccepted(m.Task.ID); ok {
		r.exec.Submit(m.Task, frequency)
		return
	}
	r.forward(m)
}

// handleResponseNack cancels a previously recorded admission or
// RESPOND, whichever side of the protocol this node is playing for
// this taskID; if neither applies, the NACK is a relay-only message
// and is forwarded (§4.6, §4.5).
func (r *Router) handleResponseNack(m *wire.ResponseNack) {
	if r.accepted.Has(m.TaskID) {
		r.accepted.Remove(m.TaskID)
		return
	}
	if r.coll.CancelResponse(m.TaskID) {
		return
	}
	r.forward(m)
}

// forward re-enqueues msg with no explicit hop, leaving next-hop
// selection to the Transmitter (§4.3).
func (r *Router) forward(msg wire.Message) {
	r.out.Enqueue(outbound.Envelope{Message: msg})
}
