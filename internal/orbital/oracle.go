// Package orbital tracks the angular position of every satellite in
// the ring and derives the routing priorities the rest of the core
// consults (§4.1).
package orbital

import (
	"context"
	"math"
	"math/cmplx"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// missionBoundaryTolerance absorbs the floating-point drift that
// accumulates in selfUnwrapped over many ticks, so a mission boundary
// at the exact threshold isn't missed by a few ULPs of rounding error.
const missionBoundaryTolerance = 1e-9

// Physical constants (SI units) used to derive the orbital period from
// Kepler's third law, matching the formula in §4.1. Named the way
// ChristopherRabotin/smd names its CelestialObject constants, but kept
// in SI rather than km/s^2 since the spec's altitude is in meters.
const (
	EarthRadius           = 6_378_137.0 // meters
	EarthMass             = 5.972e24    // kilograms
	GravitationalConstant = 6.674e-11   // m^3 kg^-1 s^-2
	GroundStationAngle    = 0.0         // radians, fixed
	DefaultTickPeriod     = 5 * time.Second
)

// SatID is a ring member's hardware identifier.
type SatID = uint64

// Ground is the sentinel appended to a priority list once it reaches
// the satellite closest to the ground station (§4.1, §GLOSSARY).
const Ground = "GROUND"

// PriorityEntry is one element of a priority list: either a satellite
// identifier or the terminal ground sentinel.
type PriorityEntry struct {
	SatID    SatID
	IsGround bool
}

type snapshot struct {
	angles        []float64 // radians mod 2π, index-aligned with Oracle.order
	selfUnwrapped float64   // self's angle, accumulated without wrapping, for CanExecuteMission
}

// Oracle maintains one angular coordinate per satellite identifier and
// derives distances, the ground-closest satellite, and routing
// priority from them. Mutated only by its own tick loop; reads take an
// immutable snapshot so callers never observe a torn update, mirroring
// ryx's discovery service "return a copy" style for its neighbour map.
type Oracle struct {
	self      SatID
	order     []SatID // ring order, insertion order from config
	index     map[SatID]int
	altitude  float64
	period    float64 // orbitalPeriod, seconds
	tickEvery time.Duration
	state     atomic.Pointer[snapshot]
	logger    *zap.SugaredLogger
}

// New builds an Oracle for a ring given in insertion order, with self
// identifying which member this process is. initialAngles maps each
// satellite identifier to its starting angle in radians.
func New(self SatID, order []SatID, initialAngles map[SatID]float64, altitudeMeters float64, tickEvery time.Duration, logger *zap.SugaredLogger) *Oracle {
	if tickEvery <= 0 {
		tickEvery = DefaultTickPeriod
	}
	index := make(map[SatID]int, len(order))
	angles := make([]float64, len(order))
	for i, id := range order {
		index[id] = i
		angles[i] = math.Mod(initialAngles[id], 2*math.Pi)
	}
	o := &Oracle{
		self:      self,
		order:     append([]SatID(nil), order...),
		index:     index,
		altitude:  altitudeMeters,
		period:    orbitalPeriod(altitudeMeters),
		tickEvery: tickEvery,
		logger:    logger,
	}
	o.state.Store(&snapshot{angles: angles, selfUnwrapped: angles[index[self]]})
	return o
}

// orbitalPeriod implements T = 2π·√((R_earth+altitude)^3 / (M_earth·G))
// from §4.1.
func orbitalPeriod(altitude float64) float64 {
	a := EarthRadius + altitude
	return 2 * math.Pi * math.Sqrt((a*a*a)/(EarthMass*GravitationalConstant))
}

// Run advances angles once per tick period until ctx is cancelled. It
// sleeps for (tickEvery - elapsed) after each update so drift does not
// accumulate, per §4.1.
func (o *Oracle) Run(ctx context.Context) {
	next := time.Now().Add(o.tickEvery)
	timer := time.NewTimer(o.tickEvery)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.tick()
			now := time.Now()
			next = next.Add(o.tickEvery)
			wait := next.Sub(now)
			if wait < 0 {
				wait = 0
				next = now
			}
			timer.Reset(wait)
		}
	}
}

func (o *Oracle) tick() {
	prev := o.state.Load()
	advance := 2 * math.Pi * o.tickEvery.Seconds() / o.period
	angles := make([]float64, len(prev.angles))
	for i, a := range prev.angles {
		angles[i] = math.Mod(a+advance, 2*math.Pi)
	}
	o.state.Store(&snapshot{angles: angles, selfUnwrapped: prev.selfUnwrapped + advance})
	if o.logger != nil {
		o.logger.Debugw("orbital tick", "advance_rad", advance, "closest", o.satClosestToGroundLocked(angles))
	}
}

// polar returns the Cartesian position of a satellite at the given
// angle on this oracle's orbit, as a complex128 (r·(cosθ+i·sinθ), §4.1).
func (o *Oracle) polar(angle float64) complex128 {
	r := EarthRadius + o.altitude
	return complex(r*math.Cos(angle), r*math.Sin(angle))
}

func groundPosition() complex128 {
	return complex(EarthRadius, 0)
}

// CurrentPosition returns this satellite's own Cartesian position.
func (o *Oracle) CurrentPosition() complex128 {
	snap := o.state.Load()
	idx := o.index[o.self]
	return o.polar(snap.angles[idx])
}

// PositionOf returns the Cartesian position of an arbitrary known
// satellite.
func (o *Oracle) PositionOf(id SatID) (complex128, bool) {
	idx, ok := o.index[id]
	if !ok {
		return 0, false
	}
	snap := o.state.Load()
	return o.polar(snap.angles[idx]), true
}

func (o *Oracle) satClosestToGroundLocked(angles []float64) SatID {
	ground := groundPosition()
	best := o.order[0]
	bestDist := math.Inf(1)
	for i, id := range o.order {
		d := cmplx.Abs(o.polar(angles[i]) - ground)
		if d < bestDist {
			bestDist = d
			best = id
		}
	}
	return best
}

// SatClosestToGround returns the identifier minimising distance to the
// ground station's Cartesian position, (P7).
func (o *Oracle) SatClosestToGround() SatID {
	snap := o.state.Load()
	return o.satClosestToGroundLocked(snap.angles)
}

// PathHops returns the minimum ring-hop distance between two
// satellites, (P6): min(|dst-src| mod N, N-|dst-src| mod N).
func (o *Oracle) PathHops(src, dst SatID) int {
	n := len(o.order)
	si, sok := o.index[src]
	di, dok := o.index[dst]
	if !sok || !dok || n == 0 {
		return 0
	}
	diff := ((di-si)%n + n) % n
	rev := n - diff
	if rev < diff {
		return rev
	}
	return diff
}

// PriorityList builds the ordered next-hop preference list described
// in §4.1: starting from self, walk outward in the ring direction
// nearer the ground-closest satellite, alternating sides, until the
// ground-closest satellite is reached, then append the Ground
// sentinel. Satisfies (P5).
func (o *Oracle) PriorityList() []PriorityEntry {
	n := len(o.order)
	closest := o.SatClosestToGround()
	selfIdx := o.index[o.self]
	closestIdx := o.index[closest]

	list := make([]PriorityEntry, 0, n+1)
	list = append(list, PriorityEntry{SatID: o.self})

	if o.self == closest {
		list = append(list, PriorityEntry{IsGround: true})
		return list
	}

	seen := map[int]bool{selfIdx: true}
	steps := int(math.Ceil(float64(n) / 2))
	for i := 1; i <= steps; i++ {
		if selfIdx == closestIdx {
			break
		}
		cw := n - absInt((selfIdx+i)-closestIdx)
		ccw := absInt(closestIdx - (selfIdx - i))

		cwIdx := mod(selfIdx+i, n)
		ccwIdx := mod(selfIdx-i, n)

		appendIdx := func(idx int) bool {
			if seen[idx] {
				return false
			}
			seen[idx] = true
			list = append(list, PriorityEntry{SatID: o.order[idx]})
			return idx == closestIdx
		}

		reached := false
		if cw <= ccw {
			if appendIdx(cwIdx) {
				reached = true
			}
			if !reached && appendIdx(ccwIdx) {
				reached = true
			}
		} else {
			if appendIdx(ccwIdx) {
				reached = true
			}
			if !reached && appendIdx(cwIdx) {
				reached = true
			}
		}
		if reached {
			break
		}
	}
	list = append(list, PriorityEntry{IsGround: true})
	return list
}

// CanExecuteMission reports whether self's current angle has passed
// radian + 2π·(orbitNumber-1), the condition the mission scheduler
// uses to decide when to emit a new task (§4.1). The comparison is
// made on self's unwrapped angle (accumulated rotation since start, no
// modulo) so orbitNumber > 1 correctly requires additional full
// revolutions rather than re-matching the same wrapped angle. The
// threshold is also satisfied by a within-tolerance match so that
// accumulated floating-point drift across many ticks can't delay a
// boundary crossing by a fraction of a degree.
func (o *Oracle) CanExecuteMission(radian float64, orbitNumber int) bool {
	snap := o.state.Load()
	threshold := radian + 2*math.Pi*float64(orbitNumber-1)
	return snap.selfUnwrapped >= threshold || floats.EqualWithinAbs(snap.selfUnwrapped, threshold, missionBoundaryTolerance)
}

// Self returns this oracle's own satellite identifier.
func (o *Oracle) Self() SatID { return o.self }

// Neighbours returns the two ring-adjacent satellite identifiers of
// self, in (previous, next) order.
func (o *Oracle) Neighbours() (prev, next SatID) {
	n := len(o.order)
	idx := o.index[o.self]
	return o.order[mod(idx-1, n)], o.order[mod(idx+1, n)]
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func mod(v, n int) int {
	return ((v % n) + n) % n
}
