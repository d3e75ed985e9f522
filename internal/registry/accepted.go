// Package registry tracks tasks this node has promised to execute on
// behalf of a peer, evicting them once their deadline passes (§4.4).
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/task"
)

// entry is the value half of an accepted request: the frequency chosen
// at admission time and the absolute instant it expires.
type entry struct {
	frequency float64
	expiry    time.Time
}

// AcceptedRequests is the registry of tasks admitted via
// TaskExecutor.tryAdmit but not yet executed. A single mutex guards
// every operation, including the combined check-then-remove the spec
// requires for IMAGE-DATA handling (§5), mirroring the mutex-guarded
// map ryx's diffusion service keeps for its InfoMessage storage.
type AcceptedRequests struct {
	mu      sync.Mutex
	entries map[task.ID]entry
	logger  *zap.SugaredLogger
}

// New returns an empty registry. logger may be nil.
func New(logger *zap.SugaredLogger) *AcceptedRequests {
	return &AcceptedRequests{
		entries: make(map[task.ID]entry),
		logger:  logger,
	}
}

// Admit records that this node will execute taskID at the given
// frequency before expiry. A taskID already present is overwritten
// (§4.4: "if taskID already present, overwrite").
func (r *AcceptedRequests) Admit(taskID task.ID, frequency float64, expiry time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[taskID] = entry{frequency: frequency, expiry: expiry}
}

// Has reports whether taskID currently has an accepted entry.
func (r *AcceptedRequests) Has(taskID task.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[taskID]
	return ok
}

// FrequencyOf returns the frequency stored for taskID, if present.
func (r *AcceptedRequests) FrequencyOf(taskID task.ID) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[taskID]
	return e.frequency, ok
}

// Remove deletes taskID's entry, if any.
func (r *AcceptedRequests) Remove(taskID task.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, taskID)
}

// Length returns the number of currently accepted entries.
func (r *AcceptedRequests) Length() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// TakeIfAccepted checks and removes taskID's entry in one critical
// section, so the IMAGE-DATA handling path in the router can never
// observe an entry that disappears between its check and its remove
// (§5).
func (r *AcceptedRequests) TakeIfAccepted(taskID task.ID) (frequency float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.entries[taskID]
	if !found {
		return 0, false
	}
	delete(r.entries, taskID)
	return e.frequency, true
}

// Run sweeps expired entries once per sweepEvery until ctx is
// cancelled. A swept entry triggers no further action: the
// originator's ResponseCollector handles the timeout independently
// (§4.4). Grounded on ryx/internal/diffusion/service.go's
// cleanupLoop/cleanup ticker pair.
func (r *AcceptedRequests) Run(ctx context.Context, sweepEvery time.Duration) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *AcceptedRequests) sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.entries {
		if e.expiry.Before(now) {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 && r.logger != nil {
		r.logger.Debugw("accepted requests swept", "removed", removed, "remaining", len(r.entries))
	}
}
