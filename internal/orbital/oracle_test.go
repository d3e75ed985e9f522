package orbital

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
)

const eps = 1e-9

func floatEqual(a, b float64) (bool, string) {
	if floats.EqualWithinRel(a, b, eps) || math.Abs(a-b) < eps {
		return true, ""
	}
	return false, "difference of too large a magnitude"
}

func newRing(self SatID) *Oracle {
	order := []SatID{1, 2, 3, 4}
	angles := map[SatID]float64{
		1: 0,
		2: math.Pi / 2,
		3: math.Pi,
		4: 3 * math.Pi / 2,
	}
	return New(self, order, angles, 500_000, time.Second, nil)
}

func TestSatClosestToGroundIsFixedPoint(t *testing.T) {
	// Satellite 1 sits at angle 0, i.e. directly over the ground
	// station; it must be its own closest-to-ground answer (P7).
	o := newRing(1)
	if got := o.SatClosestToGround(); got != 1 {
		t.Errorf("SatClosestToGround() = %d, want 1", got)
	}
}

func TestPriorityListTerminatesWithGround(t *testing.T) {
	o := newRing(3)
	list := o.PriorityList()
	if len(list) == 0 || !list[len(list)-1].IsGround {
		t.Fatalf("priority list does not terminate with GROUND: %+v", list)
	}
	if list[0].SatID != 3 {
		t.Errorf("priority list does not start with self: %+v", list)
	}
	seen := map[SatID]int{}
	for _, e := range list {
		if !e.IsGround {
			seen[e.SatID]++
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("satellite %d appears %d times in priority list, want at most 1", id, count)
		}
	}
}

func TestPriorityListSelfIsGroundClosest(t *testing.T) {
	o := newRing(1)
	list := o.PriorityList()
	if len(list) != 2 || list[0].SatID != 1 || !list[1].IsGround {
		t.Fatalf("expected [self, GROUND], got %+v", list)
	}
}

func TestPathHopsWithinHalfRing(t *testing.T) {
	o := newRing(1)
	n := 4
	maxHops := int(math.Ceil(float64(n) / 2))
	for _, dst := range []SatID{1, 2, 3, 4} {
		got := o.PathHops(1, dst)
		if got > maxHops {
			t.Errorf("PathHops(1, %d) = %d, want <= %d", dst, got, maxHops)
		}
	}
	if got := o.PathHops(1, 3); got != 2 {
		t.Errorf("PathHops(1, 3) = %d, want 2 (opposite side of a 4-ring)", got)
	}
}

func TestCurrentPositionMatchesPolarForm(t *testing.T) {
	o := newRing(2) // angle = pi/2
	pos := o.CurrentPosition()
	r := EarthRadius + 500_000.0
	wantRe, wantIm := 0.0, r
	if ok, msg := floatEqual(real(pos), wantRe); !ok {
		t.Errorf("real(pos) = %v, want ~%v: %s", real(pos), wantRe, msg)
	}
	if ok, msg := floatEqual(imag(pos), wantIm); !ok {
		t.Errorf("imag(pos) = %v, want ~%v: %s", imag(pos), wantIm, msg)
	}
}

func TestCanExecuteMissionRequiresFullOrbitNumber(t *testing.T) {
	o := newRing(1) // angle starts at 0
	if o.CanExecuteMission(0.1, 1) {
		t.Errorf("CanExecuteMission should be false before self passes the target radian")
	}
	o.tick() // advances self's unwrapped angle by one tick's worth
	if !o.CanExecuteMission(0, 1) {
		t.Errorf("CanExecuteMission should be true once self has advanced past radian 0 on orbit 1")
	}
	if o.CanExecuteMission(0, 5) {
		t.Errorf("CanExecuteMission should require 4 additional full revolutions for orbitNumber=5")
	}
}

func TestTickAdvancesSelfPosition(t *testing.T) {
	o := newRing(1)
	before := o.CurrentPosition()
	o.tick()
	after := o.CurrentPosition()
	if before == after {
		t.Errorf("tick() did not change self's position")
	}
}
