package registry

import (
	"context"
	"testing"
	"time"

	"github.com/satcoord/satring/internal/task"
)

func TestAdmitOverwritesExistingEntry(t *testing.T) {
	r := New(nil)
	id := task.NewID(1, 0)
	r.Admit(id, 1.0, time.Now().Add(time.Minute))
	r.Admit(id, 2.5, time.Now().Add(time.Hour))

	freq, ok := r.FrequencyOf(id)
	if !ok || freq != 2.5 {
		t.Errorf("FrequencyOf = %v, %v, want 2.5, true", freq, ok)
	}
	if r.Length() != 1 {
		t.Errorf("Length() = %d, want 1", r.Length())
	}
}

func TestTakeIfAcceptedIsAtomicCheckThenRemove(t *testing.T) {
	r := New(nil)
	id := task.NewID(2, 0)
	r.Admit(id, 3.0, time.Now().Add(time.Minute))

	freq, ok := r.TakeIfAccepted(id)
	if !ok || freq != 3.0 {
		t.Fatalf("TakeIfAccepted = %v, %v, want 3.0, true", freq, ok)
	}
	if r.Has(id) {
		t.Error("entry still present after TakeIfAccepted")
	}
	if _, ok := r.TakeIfAccepted(id); ok {
		t.Error("second TakeIfAccepted should fail, entry already taken")
	}
}

func TestTakeIfAcceptedMissingEntry(t *testing.T) {
	r := New(nil)
	if _, ok := r.TakeIfAccepted(task.NewID(9, 0)); ok {
		t.Error("TakeIfAccepted on unknown taskID should return false")
	}
}

// TestSweepRemovesExpiredEntriesOnly exercises (P2): an entry whose
// expiry has passed is evicted by the sweep without any submission,
// while an entry still within its window survives.
func TestSweepRemovesExpiredEntriesOnly(t *testing.T) {
	r := New(nil)
	expired := task.NewID(10, 0)
	live := task.NewID(11, 0)
	r.Admit(expired, 1.0, time.Now().Add(-time.Second))
	r.Admit(live, 1.0, time.Now().Add(time.Hour))

	r.sweep()

	if r.Has(expired) {
		t.Error("expired entry should have been swept")
	}
	if !r.Has(live) {
		t.Error("live entry should survive sweep")
	}
}

// TestRunSweepsOnTicker confirms the background worker evicts expired
// entries on its own, without an explicit sweep() call.
func TestRunSweepsOnTicker(t *testing.T) {
	r := New(nil)
	id := task.NewID(12, 0)
	r.Admit(id, 1.0, time.Now().Add(-time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for r.Has(id) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Has(id) {
		t.Error("Run should have swept the expired entry within the deadline")
	}
}

// TestTwoNacksSameStateAsOne exercises (R2) at the registry level: the
// router removes an entry in response to a RESPONSE-NACK by calling
// Remove (idempotent), so a second NACK for the same taskID is a
// no-op that leaves state identical to after the first.
func TestTwoNacksSameStateAsOne(t *testing.T) {
	r := New(nil)
	id := task.NewID(13, 0)
	r.Admit(id, 4.0, time.Now().Add(time.Minute))

	r.Remove(id)
	lengthAfterFirst := r.Length()
	r.Remove(id)
	lengthAfterSecond := r.Length()

	if lengthAfterFirst != lengthAfterSecond {
		t.Errorf("Length after two removes = %d, %d, want equal", lengthAfterFirst, lengthAfterSecond)
	}
	if r.Has(id) {
		t.Error("entry should not be present after NACK removal")
	}
}
