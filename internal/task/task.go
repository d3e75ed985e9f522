package task

import (
	"time"

	"github.com/pkg/errors"
)

// Image is the raw payload captured for a task: an opaque byte buffer
// plus its pixel dimensions. Once attached to a Task it is never
// mutated (§3 invariant).
type Image struct {
	Width  int
	Height int
	Data   []byte
}

// Task is the unit of work routed and executed by the constellation.
// Location is carried as a complex128 (real = X, imaginary = Y) so it
// shares its representation with OrbitalOracle positions and the wire
// encoding of IMAGE-DATA/PROCESSED-DATA in §6.
type Task struct {
	ID       ID
	Created  time.Time
	Deadline time.Time
	Location complex128
	FileName string
	Image    Image
}

// New validates and constructs a Task. Deadline must not precede
// Created (§3 invariant); image attachment is immutable from this
// point on, there is no setter.
func New(id ID, created, deadline time.Time, location complex128, fileName string, img Image) (*Task, error) {
	if deadline.Before(created) {
		return nil, errors.Errorf("task %s: deadline %s precedes creation %s", id, deadline, created)
	}
	return &Task{
		ID:       id,
		Created:  created,
		Deadline: deadline,
		Location: location,
		FileName: fileName,
		Image:    img,
	}, nil
}

// RemainingAt returns the time left until Deadline as measured from
// now. Used by ResponseCollector to seed a new entry's countdown.
func (t *Task) RemainingAt(now time.Time) time.Duration {
	return t.Deadline.Sub(now)
}

// Expired reports whether now is at or past Deadline.
func (t *Task) Expired(now time.Time) bool {
	return !now.Before(t.Deadline)
}

// Detection is a cropped sub-image produced by the external
// object-detection engine together with its bounding box in the
// original image's coordinate space.
type Detection struct {
	CroppedImage []byte
	BoundingBox  BoundingBox
	Location     complex128
	Timestamp    time.Time
	FileName     string
}

// BoundingBox is an axis-aligned box given by its two opposite
// corners, (x0,y0) top-left and (x1,y1) bottom-right.
type BoundingBox struct {
	X0, Y0 float64
	X1, Y1 float64
}
