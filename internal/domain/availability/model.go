package availability

import (
	"context"
	"time"
)

// Range is a half-open busy interval on absolute instants.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the range collides with [start, end). Ranges
// that merely touch at a boundary do not collide.
func (r Range) Overlaps(start, end time.Time) bool {
	return r.Start.Before(end) && r.End.After(start)
}

// BusySource yields active commitments inside a window. Confirmed
// appointments and planner entries both feed slot generation through
// this interface.
type BusySource interface {
	BusyRanges(ctx context.Context, from, to time.Time) ([]Range, error)
}
