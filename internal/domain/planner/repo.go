package planner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/availability"
)

// Repository defines storage for planner items.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListInWindow returns items touching [from, to], boundary inclusive.
	ListInWindow(ctx context.Context, from, to time.Time) ([]*Item, error)

	// ListOverlapping returns timed items strictly overlapping
	// [start, end), skipping excludeID. All-day items never block time.
	ListOverlapping(ctx context.Context, start, end time.Time, excludeID uuid.UUID) ([]*Item, error)

	// BusyRanges exposes timed items to slot generation.
	BusyRanges(ctx context.Context, from, to time.Time) ([]availability.Range, error)
}
