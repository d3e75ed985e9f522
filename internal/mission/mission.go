// Package mission names the external task-origination boundary a node
// pulls newly created local tasks from, and ships a minimal
// deterministic implementation driven by the OrbitalOracle (§4.8).
package mission

import (
	"context"
	"time"

	"github.com/satcoord/satring/internal/task"
)

// Source feeds newly created local tasks into the node. A production
// deployment supplies its own, backed by whatever mission-planning
// system decides what to capture and when.
type Source interface {
	Next(ctx context.Context) <-chan task.Task
}

// executionGate is the slice of *orbital.Oracle a Ticker needs: a
// predicate deciding whether the current orbit has reached the
// configured trigger point.
type executionGate interface {
	CanExecuteMission(radian float64, orbitNumber int) bool
}

// Ticker is a minimal deterministic Source for local development and
// tests: once per poll interval it asks the oracle whether the
// configured (radian, orbitNumber) trigger has been reached and, if
// so and not yet fired, emits one task built by its factory.
type Ticker struct {
	oracle      executionGate
	radian      float64
	orbitNumber int
	factory     func(now time.Time) task.Task
	poll        time.Duration

	fired bool
}

// NewTicker returns a Ticker that fires once the oracle reports the
// self satellite has passed radian on the given orbitNumber (§4.1),
// building its single task with factory.
func NewTicker(oracle executionGate, radian float64, orbitNumber int, poll time.Duration, factory func(now time.Time) task.Task) *Ticker {
	if poll <= 0 {
		poll = time.Second
	}
	return &Ticker{oracle: oracle, radian: radian, orbitNumber: orbitNumber, factory: factory, poll: poll}
}

// Next returns a channel receiving exactly one task once the trigger
// condition is met, then closed; ctx cancellation stops polling and
// closes the channel without ever sending.
func (m *Ticker) Next(ctx context.Context) <-chan task.Task {
	out := make(chan task.Task, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(m.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if m.fired {
					continue
				}
				if m.oracle.CanExecuteMission(m.radian, m.orbitNumber) {
					m.fired = true
					out <- m.factory(now)
					return
				}
			}
		}
	}()
	return out
}
