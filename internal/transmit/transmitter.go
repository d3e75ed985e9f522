// Package transmit implements the Transmitter: the single worker that
// drains the outbound queue and puts each message on the wire toward
// the chosen neighbour or the ground station (§4.3).
package transmit

import (
	"context"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/link"
	"github.com/satcoord/satring/internal/orbital"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/wire"
)

// priorityOracle is the slice of *orbital.Oracle the Transmitter
// consults when a PROCESSED-DATA message carries no explicit hop.
type priorityOracle interface {
	PriorityList() []orbital.PriorityEntry
}

// Neighbour describes one ring-adjacent satellite: its identifier and
// the address of the listener this node must dial to reach it.
//
// A ring member runs a LEFT listener (port 4500) and a RIGHT listener
// (port 4600). Looking from this node outward, the satellite counted
// as "previous" in ring order is reached by dialing that satellite's
// RIGHT port, and the "next" satellite by dialing its LEFT port: each
// side of a link is accepted on the port facing the direction the
// connection comes from. Callers build the two Neighbour values from
// config.File accordingly.
type Neighbour struct {
	ID      uint64
	Address string // host:port of the listener to dial
}

// Transmitter drains the outbound queue and writes each message to
// the neighbour or ground station chosen per §4.3, rewriting
// lastSenderID to self immediately before framing.
type Transmitter struct {
	selfID        uint64
	prev, next    Neighbour
	groundAddress string
	oracle        priorityOracle
	queue         *outbound.Queue
	logger        *zap.SugaredLogger

	mu    sync.Mutex
	conns map[uint64]net.Conn // cached outbound connections, keyed by neighbour ID
}

// New returns a Transmitter for a node whose ring neighbours are prev
// and next, draining queue and consulting oracle for ground-ward
// routing decisions. groundAddress is host:port of the ground
// station, used when self is ground-closest. logger may be nil.
func New(selfID uint64, prev, next Neighbour, groundAddress string, oracle priorityOracle, queue *outbound.Queue, logger *zap.SugaredLogger) *Transmitter {
	return &Transmitter{
		selfID:        selfID,
		prev:          prev,
		next:          next,
		groundAddress: groundAddress,
		oracle:        oracle,
		queue:         queue,
		logger:        logger,
		conns:         make(map[uint64]net.Conn),
	}
}

// Run drains the outbound queue until ctx is cancelled, closing all
// cached connections on exit.
func (t *Transmitter) Run(ctx context.Context) {
	defer t.closeAll()
	for {
		env, ok := t.queue.Dequeue(ctx)
		if !ok {
			return
		}
		t.send(env)
	}
}

func (t *Transmitter) send(env outbound.Envelope) {
	msg := env.Message
	arrivedFrom := msg.LastSenderID()
	msg.SetLastSenderID(t.selfID)

	if env.NextHop != nil {
		if nb, ok := t.neighbourByID(*env.NextHop); ok {
			t.sendTo(nb, msg)
			return
		}
		// Explicit hop did not match a known neighbour: ground station
		// is the only other valid destination (PROCESSED-DATA when
		// self already is ground-closest never sets NextHop, so this
		// path is unreached by spec-conformant callers but kept for
		// robustness).
		t.sendToGround(msg)
		return
	}

	switch msg.(type) {
	case *wire.Request:
		t.sendTo(t.prev, msg)
		t.sendTo(t.next, msg)
	case *wire.Respond, *wire.ResponseNack, *wire.ImageData:
		t.sendTo(t.forwardNeighbour(arrivedFrom), msg)
	case *wire.ProcessedData:
		t.sendGroundward(msg)
	default:
		if t.logger != nil {
			t.logger.Warnw("dropping message of unknown kind", "kind", msg.Kind().String())
		}
	}
}

// forwardNeighbour picks the neighbour that is not lastSender, per
// §4.3 step 2's "forward, never back-send" rule.
func (t *Transmitter) forwardNeighbour(lastSender uint64) Neighbour {
	if lastSender == t.prev.ID {
		return t.next
	}
	return t.prev
}

// sendGroundward chooses whichever of the two neighbours appears
// earlier (closer to ground) in the priority list, per §4.3 step 2.
func (t *Transmitter) sendGroundward(msg wire.Message) {
	list := t.oracle.PriorityList()
	rank := make(map[uint64]int, len(list))
	for i, e := range list {
		if !e.IsGround {
			rank[e.SatID] = i
		}
	}
	prevRank, prevOK := rank[t.prev.ID]
	nextRank, nextOK := rank[t.next.ID]
	switch {
	case prevOK && (!nextOK || prevRank < nextRank):
		t.sendTo(t.prev, msg)
	case nextOK:
		t.sendTo(t.next, msg)
	default:
		t.sendToGround(msg)
	}
}

func (t *Transmitter) neighbourByID(id uint64) (Neighbour, bool) {
	switch id {
	case t.prev.ID:
		return t.prev, true
	case t.next.ID:
		return t.next, true
	default:
		return Neighbour{}, false
	}
}

// sendTo frames and writes msg to nb's cached connection, dialing
// lazily and redialing once after a write failure (§4.3).
func (t *Transmitter) sendTo(nb Neighbour, msg wire.Message) {
	body, err := wire.Encode(msg)
	if err != nil {
		t.logFailure(nb.ID, err)
		return
	}
	conn, err := t.connFor(nb)
	if err != nil {
		t.logFailure(nb.ID, err)
		return
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		t.dropConn(nb.ID)
		conn, err = t.connFor(nb)
		if err != nil {
			t.logFailure(nb.ID, err)
			return
		}
		if err := wire.WriteFrame(conn, body); err != nil {
			t.dropConn(nb.ID)
			t.logFailure(nb.ID, err)
		}
	}
}

func (t *Transmitter) sendToGround(msg wire.Message) {
	body, err := wire.Encode(msg)
	if err != nil {
		t.logFailure(0, err)
		return
	}
	conn, err := net.Dial("tcp", t.groundAddress)
	if err != nil {
		t.logFailure(0, err)
		return
	}
	defer conn.Close()
	if err := wire.WriteFrame(conn, body); err != nil {
		t.logFailure(0, err)
	}
}

func (t *Transmitter) connFor(nb Neighbour) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[nb.ID]; ok {
		return c, nil
	}
	c, err := net.Dial("tcp", nb.Address)
	if err != nil {
		return nil, err
	}
	t.conns[nb.ID] = c
	return c, nil
}

func (t *Transmitter) dropConn(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[id]; ok {
		c.Close()
		delete(t.conns, id)
	}
}

func (t *Transmitter) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.conns {
		c.Close()
		delete(t.conns, id)
	}
}

func (t *Transmitter) logFailure(neighbourID uint64, err error) {
	if t.logger != nil {
		t.logger.Warnw("send failed, dropping", "neighbour", neighbourID, "err", err)
	}
}

// AddressForSide builds the host:port a node must dial to reach a
// neighbour on the given listener side, per the Neighbour doc comment
// above.
func AddressForSide(host string, side link.Side) string {
	return net.JoinHostPort(host, strconv.Itoa(int(side)))
}
