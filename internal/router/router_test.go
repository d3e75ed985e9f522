package router

import (
	"context"
	"testing"
	"time"

	"github.com/satcoord/satring/internal/inbox"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/registry"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/wire"
)

type fakeExecutor struct {
	accept    bool
	frequency float64
	submitted []task.Task
}

func (f *fakeExecutor) TryAdmit(time.Time, uint64) (bool, float64) { return f.accept, f.frequency }
func (f *fakeExecutor) Submit(t task.Task, frequency float64)      { f.submitted = append(f.submitted, t) }

type fakeCollector struct {
	responses  []*wire.Respond
	cancelled  []task.ID
	trackedSet map[task.ID]bool
}

func (f *fakeCollector) AddResponse(r *wire.Respond) { f.responses = append(f.responses, r) }
func (f *fakeCollector) CancelResponse(id task.ID) bool {
	f.cancelled = append(f.cancelled, id)
	return f.trackedSet[id]
}

func drainOut(q *outbound.Queue) outbound.Envelope {
	ch := make(chan outbound.Envelope, 1)
	go func() {
		e, ok := q.Dequeue(context.Background())
		if ok {
			ch <- e
		}
	}()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		panic("timed out waiting for outbound envelope")
	}
}

func TestHandleRequestAdmitsAndRespondsWhenAccepted(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{accept: true, frequency: 2.0}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	id := task.NewID(5, 0)
	deadline := time.Now().Add(time.Minute)
	r.dispatch(&wire.Request{TaskID: id, Deadline: deadline, LastSender: 9})

	if !accepted.Has(id) {
		t.Error("expected AcceptedRequests to hold the admitted task")
	}
	env := drainOut(out)
	resp, ok := env.Message.(*wire.Respond)
	if !ok {
		t.Fatalf("message type = %T, want *wire.Respond", env.Message)
	}
	if resp.FirstHopID != 9 {
		t.Errorf("FirstHopID = %d, want 9 (the REQUEST's lastSenderID)", resp.FirstHopID)
	}
}

func TestHandleRequestForwardsWhenDeclined(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{accept: false}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	id := task.NewID(6, 0)
	r.dispatch(&wire.Request{TaskID: id, LastSender: 9})

	if accepted.Has(id) {
		t.Error("declined task should not be admitted")
	}
	env := drainOut(out)
	if _, ok := env.Message.(*wire.Request); !ok {
		t.Fatalf("message type = %T, want forwarded *wire.Request", env.Message)
	}
	if env.NextHop != nil {
		t.Error("forwarded message should carry no explicit hop")
	}
}

func TestHandleImageDataSubmitsWhenAccepted(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	tsk := task.Task{ID: task.NewID(7, 0)}
	accepted.Admit(tsk.ID, 3.5, time.Now().Add(time.Minute))

	r.dispatch(&wire.ImageData{Task: tsk})

	if accepted.Has(tsk.ID) {
		t.Error("entry should be consumed once submitted to the executor")
	}
	if len(exec.submitted) != 1 || exec.submitted[0].ID != tsk.ID {
		t.Errorf("submitted = %+v, want exactly the admitted task", exec.submitted)
	}
}

func TestHandleImageDataForwardsWhenNotAccepted(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	tsk := task.Task{ID: task.NewID(8, 0)}
	r.dispatch(&wire.ImageData{Task: tsk})

	if len(exec.submitted) != 0 {
		t.Error("unaccepted IMAGE-DATA should not reach the executor")
	}
	env := drainOut(out)
	if _, ok := env.Message.(*wire.ImageData); !ok {
		t.Fatalf("message type = %T, want forwarded *wire.ImageData", env.Message)
	}
}

func TestHandleResponseNackRemovesAcceptedEntry(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	id := task.NewID(9, 0)
	accepted.Admit(id, 1.0, time.Now().Add(time.Minute))

	r.dispatch(&wire.ResponseNack{TaskID: id})

	if accepted.Has(id) {
		t.Error("entry should be removed on RESPONSE-NACK")
	}
}

func TestHandleResponseNackCancelsCollectorEntryWhenNotAdmitted(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{}
	id := task.NewID(10, 0)
	coll := &fakeCollector{trackedSet: map[task.ID]bool{id: true}}
	r := New(1, in, out, accepted, exec, coll, nil)

	r.dispatch(&wire.ResponseNack{TaskID: id})

	if len(coll.cancelled) != 1 || coll.cancelled[0] != id {
		t.Errorf("cancelled = %v, want [%v]", coll.cancelled, id)
	}
}

func TestHandleResponseNackForwardsWhenNeitherSideTracksIt(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	id := task.NewID(11, 0)
	r.dispatch(&wire.ResponseNack{TaskID: id})

	env := drainOut(out)
	if _, ok := env.Message.(*wire.ResponseNack); !ok {
		t.Fatalf("message type = %T, want forwarded *wire.ResponseNack", env.Message)
	}
}

func TestProcessedDataAlwaysForwards(t *testing.T) {
	in := inbox.NewQueue(4)
	out := outbound.NewQueue(4)
	accepted := registry.New(nil)
	exec := &fakeExecutor{}
	coll := &fakeCollector{trackedSet: map[task.ID]bool{}}
	r := New(1, in, out, accepted, exec, coll, nil)

	r.dispatch(&wire.ProcessedData{})

	env := drainOut(out)
	if _, ok := env.Message.(*wire.ProcessedData); !ok {
		t.Fatalf("message type = %T, want forwarded *wire.ProcessedData", env.Message)
	}
}
