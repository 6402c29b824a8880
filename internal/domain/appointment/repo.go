package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/availability"
)

// Repository defines storage for appointment requests and their proposals.
type Repository interface {
	// Create inserts the request and its proposals.
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	List(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]*Request, int, error)

	// Confirm binds the schedule and flips the status in one statement.
	// A non-nil proposalID additionally marks that proposal selected.
	Confirm(ctx context.Context, id uuid.UUID, proposalID *uuid.UUID, start, end time.Time) error
	Cancel(ctx context.Context, id uuid.UUID, reason *string) error
	SetPaid(ctx context.Context, id uuid.UUID, isPaid bool, paidAt *time.Time, note *string) error
	Update(ctx context.Context, req *Request) error
	Delete(ctx context.Context, id uuid.UUID) error

	// HasActiveConflict reports whether a confirmed request overlaps
	// [start, end), skipping excludeID.
	HasActiveConflict(ctx context.Context, start, end time.Time, excludeID uuid.UUID) (bool, error)

	// ListConfirmedInWindow returns confirmed requests touching
	// [from, to], boundary inclusive.
	ListConfirmedInWindow(ctx context.Context, from, to time.Time) ([]*Request, error)

	// BusyRanges exposes confirmed schedules to slot generation.
	BusyRanges(ctx context.Context, from, to time.Time) ([]availability.Range, error)
}
