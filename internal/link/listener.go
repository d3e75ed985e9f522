// Package link implements the two fixed-port TCP listeners a node
// binds for its LEFT and RIGHT neighbour connections (§4.2, §6).
package link

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/inbox"
	"github.com/satcoord/satring/internal/wire"
)

// Side identifies which of the two fixed ports a Listener binds.
type Side int

const (
	Left  Side = 4500
	Right Side = 4600
)

func (s Side) String() string {
	if s == Left {
		return "LEFT"
	}
	return "RIGHT"
}

// Listener accepts a stream of connections on one fixed port and,
// for each, reads length-prefixed frames until EOF or a framing
// error, decoding each into the shared inbox (§4.2). It never
// interprets messages; classification belongs to the router.
type Listener struct {
	side   Side
	host   string
	in     *inbox.Queue
	logger *zap.SugaredLogger

	// LegacyUDPBootstrap, when true, also binds a UDP socket on the
	// same port purely to count and discard legacy bootstrap
	// datagrams without decoding them (§6). Off by default.
	LegacyUDPBootstrap bool

	legacyDropped atomic.Uint64
}

// New returns a Listener for the given side, bound to every local
// interface. logger may be nil.
func New(side Side, in *inbox.Queue, logger *zap.SugaredLogger) *Listener {
	return &Listener{side: side, in: in, logger: logger}
}

// NewOnHost returns a Listener bound only to host, so satsim can run
// several simulated satellites on one machine: each gets its own
// loopback alias and binds the fixed LEFT/RIGHT ports on that alias
// alone instead of every interface.
func NewOnHost(side Side, host string, in *inbox.Queue, logger *zap.SugaredLogger) *Listener {
	return &Listener{side: side, host: host, in: in, logger: logger}
}

// Run binds the fixed port and accepts connections until ctx is
// cancelled. Shutdown is observed by checking ctx between accepts
// (§4.2's "stop flag checked between accepts"), implemented here with
// a deadline-bounded Accept so the loop can poll ctx.Done() without
// blocking forever on a quiet port.
func (l *Listener) Run(ctx context.Context) error {
	addr := &net.TCPAddr{IP: net.ParseIP(l.host), Port: int(l.side)}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	if l.LegacyUDPBootstrap {
		go l.runLegacyUDP(ctx)
	}

	if l.logger != nil {
		l.logger.Infow("listener up", "side", l.side.String(), "port", int(l.side))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		ln.SetDeadline(time.Now().Add(time.Second))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		go l.streamConn(ctx, conn)
	}
}

// streamConn reads frames off one accepted connection until EOF or a
// framing error, then closes it and returns, leaving the Listener
// free to accept the next connection (§4.2).
func (l *Listener) streamConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		body, err := wire.ReadFrame(conn)
		if err != nil {
			if l.logger != nil {
				l.logger.Debugw("connection closed or framing error", "side", l.side.String(), "err", err)
			}
			return
		}
		msg, err := wire.Decode(body)
		if err != nil {
			if l.logger != nil {
				l.logger.Warnw("dropping malformed frame", "side", l.side.String(), "err", err)
			}
			continue
		}
		l.in.Enqueue(msg)
	}
}

// runLegacyUDP binds the same port number for UDP and discards every
// datagram it receives, counting but never decoding or forwarding
// them into the inbox, matching the SHOULD-drop wording of §6.
func (l *Listener) runLegacyUDP(ctx context.Context) {
	addr := &net.UDPAddr{IP: net.ParseIP(l.host), Port: int(l.side)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		if l.logger != nil {
			l.logger.Warnw("legacy UDP bootstrap socket unavailable", "side", l.side.String(), "err", err)
		}
		return
	}
	defer conn.Close()

	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		l.legacyDropped.Add(1)
	}
}

// LegacyDropped reports how many legacy bootstrap datagrams have been
// discarded, for the diagnostic endpoint.
func (l *Listener) LegacyDropped() uint64 {
	return l.legacyDropped.Load()
}
