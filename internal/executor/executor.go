// Package executor implements the TaskExecutor boundary: admission
// decisions are delegated to an external Admitter, while execution
// itself is queue-based and wholly owned here (§4.7).
package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/detect"
	"github.com/satcoord/satring/internal/orbital"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/wire"
)

// Admitter decides whether this node can execute a task arriving with
// the given deadline from sourceSatID, and at what frequency. The
// object-detection subsystem knows its own queue depth and power
// envelope; the core treats it as a black box reached only through
// this narrow interface (§4.7).
type Admitter interface {
	TryAdmit(deadline time.Time, sourceSatID uint64) (accepted bool, frequency float64)
}

// routingOracle is the slice of *orbital.Oracle the executor consults
// to pick a PROCESSED-DATA first hop.
type routingOracle interface {
	PriorityList() []orbital.PriorityEntry
	Neighbours() (prev, next uint64)
}

type queuedTask struct {
	t         task.Task
	frequency float64
}

// TaskExecutor owns an internal FIFO of admitted tasks, drained by a
// single worker goroutine that calls the external detect.Engine and
// then enqueues results, mirroring ryx/internal/computation/service.go's
// queuedTask/taskQueue/queueMu shape — adapted from a polled slice to
// a channel so the worker blocks instead of waking on a fixed ticker.
type TaskExecutor struct {
	admitter Admitter
	detector detect.Engine
	oracle   routingOracle
	out      *outbound.Queue
	logger   *zap.SugaredLogger

	queue chan queuedTask

	mu      sync.Mutex
	pending int
}

// New returns a TaskExecutor with the given queue depth. logger may
// be nil.
func New(admitter Admitter, detector detect.Engine, oracle routingOracle, out *outbound.Queue, queueDepth int, logger *zap.SugaredLogger) *TaskExecutor {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &TaskExecutor{
		admitter: admitter,
		detector: detector,
		oracle:   oracle,
		out:      out,
		logger:   logger,
		queue:    make(chan queuedTask, queueDepth),
	}
}

// TryAdmit exposes the Admitter decision to the router, so it can
// decide whether to self-admit a REQUEST or forward it (§4.6). A
// deadline that has already passed is declined without consulting
// the Admitter (§7).
func (e *TaskExecutor) TryAdmit(deadline time.Time, sourceSatID uint64) (bool, float64) {
	if !deadline.After(time.Now()) {
		return false, 0
	}
	return e.admitter.TryAdmit(deadline, sourceSatID)
}

// Submit enqueues t for execution at frequency. It never blocks the
// caller on detection itself; it only blocks if the internal queue is
// full, applying backpressure.
func (e *TaskExecutor) Submit(t task.Task, frequency float64) {
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()
	e.queue <- queuedTask{t: t, frequency: frequency}
}

// Pending reports the number of tasks submitted but not yet finished
// executing, for the diagnostic endpoint.
func (e *TaskExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Run drains the queue until ctx is cancelled.
func (e *TaskExecutor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qt := <-e.queue:
			e.execute(ctx, qt)
		}
	}
}

func (e *TaskExecutor) execute(ctx context.Context, qt queuedTask) {
	defer func() {
		e.mu.Lock()
		e.pending--
		e.mu.Unlock()
	}()

	detections, err := e.detector.Detect(ctx, qt.t)
	if err != nil {
		if e.logger != nil {
			e.logger.Errorw("detection failed", "task_id", qt.t.ID.String(), "err", err)
		}
		return
	}

	hop := e.firstHop()
	for _, d := range detections {
		var h *uint64
		if hop != nil {
			cp := *hop
			h = &cp
		}
		e.out.Enqueue(outbound.Envelope{
			Message: &wire.ProcessedData{Detection: d, FirstHopID: h},
			NextHop: hop,
		})
	}
}

// firstHop returns the highest-priority member of the priority list
// that is also a direct neighbour, or nil if self is ground-closest
// (§4.7).
func (e *TaskExecutor) firstHop() *uint64 {
	list := e.oracle.PriorityList()
	if len(list) == 2 && list[1].IsGround {
		return nil // self is already ground-closest
	}
	prev, next := e.oracle.Neighbours()
	for _, entry := range list {
		if entry.IsGround {
			break
		}
		if entry.SatID == prev || entry.SatID == next {
			id := entry.SatID
			return &id
		}
	}
	return nil
}
