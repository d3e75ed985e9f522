// Package collector implements the ResponseCollector: for every task
// this node originated, it gathers RESPOND messages for the task's
// remaining deadline and either delegates to a responder or, when no
// responder answered in time, dual-sends the task to both ring
// neighbours (§4.5). It never falls back to local execution.
package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/satcoord/satring/internal/orbital"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/wire"
)

// priorityOracle is the narrow slice of *orbital.Oracle the collector
// consults: the delegate-pick rule walks the priority list from its
// tail, and the zero-response fallback addresses both direct
// neighbours.
type priorityOracle interface {
	PriorityList() []orbital.PriorityEntry
	Neighbours() (prev, next uint64)
}

// response is one RESPOND received for a tracked task.
type response struct {
	responderID uint64 // SourceSatID of the Respond
	firstHopID  uint64 // LastSenderID at the time the Respond reached us
}

// pendingEntry is the per-task state described in §4.5.
type pendingEntry struct {
	t             task.Task
	remainingTime time.Duration
	responses     []response
}

// ResponseCollector tracks originated tasks awaiting delegation. A
// single mutex guards every operation, including tick-driven eviction,
// per §5's requirement that a timed-out entry cannot be mutated by a
// late RESPOND racing the same tick.
type ResponseCollector struct {
	mu      sync.Mutex
	entries map[task.ID]*pendingEntry
	selfID  uint64
	oracle  priorityOracle
	out     *outbound.Queue
	logger  *zap.SugaredLogger

	stats decisionStats
}

// New returns an empty collector for the satellite identified by
// selfID. logger may be nil.
func New(selfID uint64, oracle priorityOracle, out *outbound.Queue, logger *zap.SugaredLogger) *ResponseCollector {
	return &ResponseCollector{
		entries: make(map[task.ID]*pendingEntry),
		selfID:  selfID,
		oracle:  oracle,
		out:     out,
		logger:  logger,
	}
}

// decisionStats records one timing sample per decision, so the
// diagnostic endpoint can report how each kind of decision is usually
// made. For delegated decisions the sample is the remaining time left
// when the second RESPOND arrived; for single-responder (self) and
// zero-responder (timeout) decisions, which fire from Tick, it is how
// far past zero the countdown was when the tick caught it.
type decisionStats struct {
	delegated, self, timeout []float64 // seconds, see above
}

// DecisionSummary is the historical window the diagnostic HTTP
// surface reports: counts plus mean/variance of each decision kind's
// timing samples (remaining time for delegated decisions, overshoot
// past the deadline for self and timeout decisions).
type DecisionSummary struct {
	DelegatedCount, SelfCount, TimeoutCount int
	DelegatedMean, DelegatedVariance        float64
	SelfMean, SelfVariance                  float64
	TimeoutMean, TimeoutVariance            float64
}

// Summary returns the running decision-window statistics, computed
// with gonum/stat the way smd's dynamics helpers summarise sample
// series.
func (c *ResponseCollector) Summary() DecisionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s DecisionSummary
	s.DelegatedCount = len(c.stats.delegated)
	s.SelfCount = len(c.stats.self)
	s.TimeoutCount = len(c.stats.timeout)
	if s.DelegatedCount > 0 {
		s.DelegatedMean, s.DelegatedVariance = stat.MeanVariance(c.stats.delegated, nil)
	}
	if s.SelfCount > 0 {
		s.SelfMean, s.SelfVariance = stat.MeanVariance(c.stats.self, nil)
	}
	if s.TimeoutCount > 0 {
		s.TimeoutMean, s.TimeoutVariance = stat.MeanVariance(c.stats.timeout, nil)
	}
	return s
}

// AddTask begins tracking a newly originated task, seeding its
// countdown from the task's remaining time as of now, and broadcasts a
// REQUEST for it to both ring neighbours so they can bid to execute it
// (§4.3 step 2). Leaving NextHop nil on the envelope is what tells the
// Transmitter to broadcast rather than forward to a single hop. The
// enqueue is non-blocking: AddTask holds c.mu, and a full outbound
// queue must not stall every other collector operation behind it.
func (c *ResponseCollector) AddTask(t task.Task, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[t.ID] = &pendingEntry{
		t:             t,
		remainingTime: t.RemainingAt(now),
	}
	env := outbound.Envelope{
		Message: &wire.Request{TaskID: t.ID, Deadline: t.Deadline, LastSender: c.selfID},
	}
	if !c.out.TryEnqueue(env) && c.logger != nil {
		c.logger.Warnw("outbound queue full, dropped REQUEST broadcast", "task_id", t.ID.String())
	}
}

// AddResponse records a RESPOND for a tracked task. Once two responses
// are in hand, the delegate-pick rule fires immediately and the entry
// is evicted (§4.5).
func (c *ResponseCollector) AddResponse(r *wire.Respond) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[r.TaskID]
	if !ok {
		return
	}
	e.responses = append(e.responses, response{responderID: r.SourceSatID, firstHopID: r.LastSenderID()})
	if len(e.responses) == 2 {
		c.delegateLocked(r.TaskID, e)
	}
}

// CancelResponse removes the RESPOND recorded for taskID, if present,
// when a RESPONSE-NACK arrives (§4.5). A taskID reaches two responses
// only by triggering immediate delegation and eviction in AddResponse,
// so at most one response can ever be pending cancellation here; the
// entry otherwise continues tracking. Reports whether taskID was
// being tracked at all, so the router can decide whether to also
// forward the NACK.
func (c *ResponseCollector) CancelResponse(taskID task.ID) (tracked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[taskID]
	if !ok {
		return false
	}
	e.responses = e.responses[:0]
	return true
}

// Tick lowers every entry's remaining time by delta and evicts any
// entry whose countdown has reached zero, resolving it per the
// fallback rules in §4.5: one responder present sends to it, zero
// responders present dual-sends to both neighbours.
func (c *ResponseCollector) Tick(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		e.remainingTime -= delta
		if e.remainingTime > 0 {
			continue
		}
		overshoot := (-e.remainingTime).Seconds() // how far past zero this tick caught the deadline
		switch len(e.responses) {
		case 1:
			c.stats.self = append(c.stats.self, overshoot)
			c.sendImageData(e.t, &e.responses[0].firstHopID)
		case 0:
			c.stats.timeout = append(c.stats.timeout, overshoot)
			c.timeoutDualSend(e.t)
		default:
			// Two or more responses should already have been
			// resolved by AddResponse; resolve defensively using
			// the same delegate-pick rule rather than drop the task.
			c.delegateLocked(id, e)
			continue
		}
		delete(c.entries, id)
	}
}

// delegateLocked implements the delegate-pick rule: walk the priority
// list from its tail (lowest priority, i.e. farthest from ground, with
// the most spare downlink capacity) toward the front; the first of
// the two responders encountered wins (§4.5). Caller must hold c.mu.
func (c *ResponseCollector) delegateLocked(id task.ID, e *pendingEntry) {
	want := map[uint64]response{}
	for _, r := range e.responses {
		want[r.responderID] = r
	}
	list := c.oracle.PriorityList()
	for i := len(list) - 1; i >= 0; i-- {
		entry := list[i]
		if entry.IsGround {
			continue
		}
		if r, ok := want[entry.SatID]; ok {
			c.stats.delegated = append(c.stats.delegated, e.remainingTime.Seconds())
			c.sendImageData(e.t, &r.firstHopID)
			delete(c.entries, id)
			return
		}
	}
	// Neither responder appears in the priority list (should not
	// happen for a connected ring); fall back to the first response.
	c.stats.delegated = append(c.stats.delegated, e.remainingTime.Seconds())
	c.sendImageData(e.t, &e.responses[0].firstHopID)
	delete(c.entries, id)
}

// sendImageData is called from Tick, which holds c.mu for the
// duration of its sweep; enqueueing here must not block on a full
// outbound queue and stall every other tracked task's eviction.
func (c *ResponseCollector) sendImageData(t task.Task, firstHopID *uint64) {
	hop := *firstHopID
	env := outbound.Envelope{
		Message: &wire.ImageData{Task: t, FirstHopID: &hop},
		NextHop: &hop,
	}
	if !c.out.TryEnqueue(env) && c.logger != nil {
		c.logger.Warnw("outbound queue full, dropped delegated IMAGE-DATA", "task_id", t.ID.String(), "first_hop", hop)
	}
}

// timeoutDualSend is called from Tick, which holds c.mu for the
// duration of its sweep; see sendImageData for why the enqueue must be
// non-blocking here too.
func (c *ResponseCollector) timeoutDualSend(t task.Task) {
	if c.logger != nil {
		c.logger.Warnw("task request timed out with no responders, dual-sending", "task_id", t.ID.String())
	}
	prev, next := c.oracle.Neighbours()
	for _, neighbour := range []uint64{prev, next} {
		n := neighbour
		env := outbound.Envelope{
			Message: &wire.ImageData{Task: t, FirstHopID: &n},
			NextHop: &n,
		}
		if !c.out.TryEnqueue(env) && c.logger != nil {
			c.logger.Warnw("outbound queue full, dropped dual-send IMAGE-DATA", "task_id", t.ID.String(), "neighbour", n)
		}
	}
}

// Run drives Tick once per interval until ctx is cancelled.
func (c *ResponseCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Tick(now.Sub(last))
			last = now
		}
	}
}

// Len reports the number of tasks currently awaiting delegation.
func (c *ResponseCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
