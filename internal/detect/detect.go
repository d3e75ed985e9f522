// Package detect names the external object-detection boundary the
// TaskExecutor calls into, and ships a trivial deterministic
// implementation so the core is runnable without the real inference
// stack (§4.8).
package detect

import (
	"context"
	"time"

	"github.com/satcoord/satring/internal/task"
)

// Engine is the external object-detection collaborator. A production
// deployment supplies its own; this package's FixedBox implementation
// exists for local development and tests.
type Engine interface {
	Detect(ctx context.Context, t task.Task) ([]task.Detection, error)
}

// FixedBox is a deterministic Engine that reports one detection
// covering the whole image, unconditionally. It performs no real
// inference; it exists so the executor's queue-drain path is
// exercisable without the real detection stack.
type FixedBox struct {
	// Now lets tests control the timestamp stamped on a detection;
	// defaults to time.Now when nil.
	Now func() time.Time
}

// Detect returns a single detection spanning the task's image.
func (f FixedBox) Detect(ctx context.Context, t task.Task) ([]task.Detection, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return []task.Detection{{
		CroppedImage: t.Image.Data,
		BoundingBox:  task.BoundingBox{X0: 0, Y0: 0, X1: float64(t.Image.Width), Y1: float64(t.Image.Height)},
		Location:     t.Location,
		Timestamp:    now(),
		FileName:     t.FileName,
	}}, nil
}
