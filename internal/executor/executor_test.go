package executor

import (
	"context"
	"testing"
	"time"

	"github.com/satcoord/satring/internal/orbital"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/wire"
)

type fixedAdmitter struct {
	accept bool
	freq   float64
}

func (f fixedAdmitter) TryAdmit(time.Time, uint64) (bool, float64) { return f.accept, f.freq }

type fixedDetector struct{ dets []task.Detection }

func (f fixedDetector) Detect(context.Context, task.Task) ([]task.Detection, error) {
	return f.dets, nil
}

type fixedOracle struct {
	list       []orbital.PriorityEntry
	prev, next uint64
}

func (f fixedOracle) PriorityList() []orbital.PriorityEntry { return f.list }
func (f fixedOracle) Neighbours() (uint64, uint64)          { return f.prev, f.next }

func TestSubmitEmitsProcessedDataToNeighbourHop(t *testing.T) {
	oracle := fixedOracle{
		list: []orbital.PriorityEntry{{SatID: 99}, {SatID: 3}, {SatID: 7}, {IsGround: true}},
		prev: 3, next: 7,
	}
	det := fixedDetector{dets: []task.Detection{{FileName: "a.png"}}}
	q := outbound.NewQueue(4)
	e := New(fixedAdmitter{accept: true, freq: 1.0}, det, oracle, q, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(task.Task{ID: task.NewID(1, 0)}, 1.0)

	select {
	case env := <-drain(q):
		pd := env.Message.(*wire.ProcessedData)
		if pd.FirstHopID == nil || *pd.FirstHopID != 3 {
			t.Errorf("FirstHopID = %v, want 3 (highest-priority direct neighbour)", pd.FirstHopID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PROCESSED-DATA")
	}
}

func TestSubmitOmitsFirstHopWhenSelfIsGroundClosest(t *testing.T) {
	oracle := fixedOracle{
		list: []orbital.PriorityEntry{{SatID: 99}, {IsGround: true}},
		prev: 3, next: 7,
	}
	det := fixedDetector{dets: []task.Detection{{FileName: "b.png"}}}
	q := outbound.NewQueue(4)
	e := New(fixedAdmitter{accept: true, freq: 1.0}, det, oracle, q, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(task.Task{ID: task.NewID(2, 0)}, 1.0)

	select {
	case env := <-drain(q):
		pd := env.Message.(*wire.ProcessedData)
		if pd.FirstHopID != nil {
			t.Errorf("FirstHopID = %v, want nil when self is ground-closest", pd.FirstHopID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PROCESSED-DATA")
	}
}

func TestPendingTracksInFlightTasks(t *testing.T) {
	oracle := fixedOracle{list: []orbital.PriorityEntry{{SatID: 1}, {IsGround: true}}}
	det := fixedDetector{}
	q := outbound.NewQueue(4)
	e := New(fixedAdmitter{accept: true}, det, oracle, q, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(task.Task{ID: task.NewID(3, 0)}, 1.0)
	deadline := time.Now().Add(time.Second)
	for e.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 once the worker finishes", e.Pending())
	}
}

func drain(q *outbound.Queue) <-chan outbound.Envelope {
	ch := make(chan outbound.Envelope, 1)
	go func() {
		e, ok := q.Dequeue(context.Background())
		if ok {
			ch <- e
		}
	}()
	return ch
}
