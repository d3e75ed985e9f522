package link

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/satcoord/satring/internal/inbox"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/wire"
)

// ephemeralSide picks an unused high port so the test doesn't collide
// with the protocol's real fixed ports or with other test runs.
func ephemeralSide(t *testing.T) Side {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("finding an ephemeral port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return Side(port)
}

func TestListenerDecodesStreamOfFrames(t *testing.T) {
	side := ephemeralSide(t)
	in := inbox.NewQueue(4)
	l := New(side, in, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	time.Sleep(50 * time.Millisecond) // let the listener bind

	conn, err := net.Dial("tcp", (&net.TCPAddr{Port: int(side)}).String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		body, err := wire.Encode(&wire.ResponseNack{TaskID: task.NewID(uint64(i), 0), LastSender: 1})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if err := wire.WriteFrame(conn, body); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case msg := <-drainInbox(in):
			nack, ok := msg.(*wire.ResponseNack)
			if !ok {
				t.Fatalf("message %d type = %T, want *wire.ResponseNack", i, msg)
			}
			if nack.TaskID.Origin() != uint64(i) {
				t.Errorf("message %d origin = %d, want %d", i, nack.TaskID.Origin(), i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d to reach the inbox", i)
		}
	}
}

func TestListenerDropsMalformedFrameAndKeepsReading(t *testing.T) {
	side := ephemeralSide(t)
	in := inbox.NewQueue(4)
	l := New(side, in, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", (&net.TCPAddr{Port: int(side)}).String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, []byte{0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	good, _ := wire.Encode(&wire.ResponseNack{TaskID: task.NewID(42, 0), LastSender: 1})
	if err := wire.WriteFrame(conn, good); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case msg := <-drainInbox(in):
		nack, ok := msg.(*wire.ResponseNack)
		if !ok || nack.TaskID.Origin() != 42 {
			t.Fatalf("expected the well-formed frame to still reach the inbox, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out: malformed frame should not have closed the connection")
	}
}

func drainInbox(q *inbox.Queue) <-chan wire.Message {
	ch := make(chan wire.Message, 1)
	go func() {
		m, ok := q.Dequeue(context.Background())
		if ok {
			ch <- m
		}
	}()
	return ch
}
