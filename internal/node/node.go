// Package node wires every component into one running satellite
// process, mirroring ryx/internal/node/node.go's construct-then-Start
// shape.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/collector"
	"github.com/satcoord/satring/internal/config"
	"github.com/satcoord/satring/internal/detect"
	"github.com/satcoord/satring/internal/diag"
	"github.com/satcoord/satring/internal/executor"
	"github.com/satcoord/satring/internal/inbox"
	"github.com/satcoord/satring/internal/link"
	"github.com/satcoord/satring/internal/mission"
	"github.com/satcoord/satring/internal/orbital"
	"github.com/satcoord/satring/internal/outbound"
	"github.com/satcoord/satring/internal/registry"
	"github.com/satcoord/satring/internal/router"
	"github.com/satcoord/satring/internal/task"
	"github.com/satcoord/satring/internal/transmit"
)

// Options configures a Node beyond what the constellation config file
// carries: ports, the external Admitter/Detector/mission.Source
// collaborators, and logging.
type Options struct {
	SelfID       uint64
	File         *config.File
	Timing       config.Timing
	Admitter     executor.Admitter // nil uses an always-accept stub
	Detector     detect.Engine     // nil uses detect.FixedBox
	MissionSrc   mission.Source    // nil uses a mission.Ticker
	DiagHTTPPort int               // 0 disables the diagnostic server
	Logger       *zap.SugaredLogger
}

// Node owns every worker of one satellite process: two Listeners, the
// Transmitter, the OrbitalOracle tick, the AcceptedRequests sweep, the
// ResponseCollector tick, the MessageRouter, and the TaskExecutor
// (§5).
type Node struct {
	selfID uint64
	timing config.Timing
	logger *zap.SugaredLogger

	oracle     *orbital.Oracle
	accepted   *registry.AcceptedRequests
	coll       *collector.ResponseCollector
	exec       *executor.TaskExecutor
	rtr        *router.Router
	tr         *transmit.Transmitter
	leftLn     *link.Listener
	rightLn    *link.Listener
	missionSrc mission.Source
	diagSrv    *diag.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

type alwaysAcceptAdmitter struct{ frequency float64 }

func (a alwaysAcceptAdmitter) TryAdmit(time.Time, uint64) (bool, float64) {
	return true, a.frequency
}

// New constructs a Node from opts, wiring every component the way
// §4's component design and §5's concurrency model describe.
func New(opts Options) (*Node, error) {
	self, ok := opts.File.FindSelf(opts.SelfID)
	if !ok {
		return nil, errors.Errorf("satellite id %d not present in constellation config", opts.SelfID)
	}

	timing := opts.Timing
	if timing == (config.Timing{}) {
		timing = config.DefaultTiming()
	}

	oracle := orbital.New(opts.SelfID, opts.File.Order(), opts.File.InitialAngles(), opts.File.Altitude, timing.OrbitalTick, opts.Logger)

	out := outbound.NewQueue(256)
	in := inbox.NewQueue(256)
	accepted := registry.New(opts.Logger)
	coll := collector.New(opts.SelfID, oracle, out, opts.Logger)

	admitter := opts.Admitter
	if admitter == nil {
		admitter = alwaysAcceptAdmitter{frequency: 1.0}
	}
	detector := opts.Detector
	if detector == nil {
		detector = detect.FixedBox{}
	}
	exec := executor.New(admitter, detector, oracle, out, 64, opts.Logger)

	rtr := router.New(opts.SelfID, in, out, accepted, exec, coll, opts.Logger)

	prevID, nextID := self.Connections[0], self.Connections[1]
	prevEntry, ok := opts.File.FindSelf(prevID)
	if !ok {
		return nil, errors.Errorf("left neighbour %d not present in constellation config", prevID)
	}
	nextEntry, ok := opts.File.FindSelf(nextID)
	if !ok {
		return nil, errors.Errorf("right neighbour %d not present in constellation config", nextID)
	}
	prevNb := transmit.Neighbour{ID: prevID, Address: transmit.AddressForSide(prevEntry.IPAddress, link.Right)}
	nextNb := transmit.Neighbour{ID: nextID, Address: transmit.AddressForSide(nextEntry.IPAddress, link.Left)}
	groundAddr := fmt.Sprintf("%s:%d", opts.File.GroundStationIP, opts.File.GroundStationPort)

	tr := transmit.New(opts.SelfID, prevNb, nextNb, groundAddr, oracle, out, opts.Logger)

	leftLn := link.NewOnHost(link.Left, self.IPAddress, in, opts.Logger)
	rightLn := link.NewOnHost(link.Right, self.IPAddress, in, opts.Logger)

	missionSrc := opts.MissionSrc
	if missionSrc == nil {
		counter := &task.Counter{}
		missionSrc = mission.NewTicker(oracle, orbital.GroundStationAngle, 1, time.Second, func(now time.Time) task.Task {
			return task.Task{
				ID:       task.NewID(opts.SelfID, counter.Next()),
				Created:  now,
				Deadline: now.Add(5 * time.Minute),
				Location: oracle.CurrentPosition(),
			}
		})
	}

	n := &Node{
		selfID:     opts.SelfID,
		timing:     timing,
		logger:     opts.Logger,
		oracle:     oracle,
		accepted:   accepted,
		coll:       coll,
		exec:       exec,
		rtr:        rtr,
		tr:         tr,
		leftLn:     leftLn,
		rightLn:    rightLn,
		missionSrc: missionSrc,
	}

	if opts.DiagHTTPPort != 0 {
		n.diagSrv = diag.New(opts.DiagHTTPPort, n, opts.Logger)
	}
	return n, nil
}

// Start launches every worker goroutine; it returns once they are all
// running, observing ctx at every suspension point per §5.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return errors.New("node already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	go n.oracle.Run(runCtx)
	go n.accepted.Run(runCtx, n.timing.AcceptedSweep)
	go n.coll.Run(runCtx, n.timing.CollectorTick)
	go n.exec.Run(runCtx)
	go n.rtr.Run(runCtx)
	go n.tr.Run(runCtx)
	go func() {
		if err := n.leftLn.Run(runCtx); err != nil && n.logger != nil {
			n.logger.Errorw("left listener stopped", "err", err)
		}
	}()
	go func() {
		if err := n.rightLn.Run(runCtx); err != nil && n.logger != nil {
			n.logger.Errorw("right listener stopped", "err", err)
		}
	}()
	go n.driveMissionSource(runCtx)

	if n.diagSrv != nil {
		if err := n.diagSrv.Start(runCtx); err != nil {
			cancel()
			return errors.Wrap(err, "starting diagnostic server")
		}
	}

	n.running = true
	return nil
}

// driveMissionSource submits every task the mission source produces
// to the local executor if tryAdmit accepts it, implementing the
// self-admission path named in §4.7/§8 scenario 1: tryAdmit is
// consulted exactly like an inbound REQUEST would be, and only on
// decline does the task enter the ResponseCollector as originator.
func (n *Node) driveMissionSource(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-n.missionSrc.Next(ctx):
			if !ok {
				return
			}
			accepted, frequency := n.exec.TryAdmit(t.Deadline, n.selfID)
			if accepted {
				n.exec.Submit(t, frequency)
				continue
			}
			n.coll.AddTask(t, time.Now())
		}
	}
}

// Stop cancels every worker and waits for the diagnostic server to
// shut down.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	if n.cancel != nil {
		n.cancel()
	}
	if n.diagSrv != nil {
		n.diagSrv.Stop()
	}
	n.running = false
}

// Status assembles the diagnostic snapshot diag.Server serves.
func (n *Node) Status() diag.Status {
	return diag.Status{
		SelfID:           n.selfID,
		ClosestToGround:  n.oracle.SatClosestToGround(),
		AcceptedCount:    n.accepted.Length(),
		ExecutorPending:  n.exec.Pending(),
		CollectorPending: n.coll.Len(),
		LegacyUDPDropped: n.leftLn.LegacyDropped() + n.rightLn.LegacyDropped(),
		DecisionSummary:  n.coll.Summary(),
	}
}
