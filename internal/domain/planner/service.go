package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/api/internal/apperr"
	"github.com/clinicore/api/internal/domain/availability"
)

type Service struct {
	repo Repository
	// busySources carry commitments outside the planner table, in
	// practice the confirmed appointment ranges.
	busySources []availability.BusySource
}

func NewService(repo Repository, busySources ...availability.BusySource) *Service {
	return &Service{repo: repo, busySources: busySources}
}

// Create validates and stores a new planner entry. Timed entries are
// rejected with an occupied-slot error when they collide with any active
// commitment.
func (s *Service) Create(ctx context.Context, item *Item) (*Item, error) {
	if item.AllDay && item.EndAt.IsZero() {
		item.EndAt = item.StartAt.Add(24 * time.Hour)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if !item.AllDay {
		if err := s.checkConflicts(ctx, item.StartAt, item.EndAt, uuid.Nil); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("%w: create planner item: %v", apperr.ErrTransient, err)
	}
	created, err := s.repo.GetByID(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload planner item: %v", apperr.ErrTransient, err)
	}
	return created, nil
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, id)
	}
	return item, nil
}

// UpdateParams carries a partial edit; nil fields stay unchanged.
type UpdateParams struct {
	Kind          *string    `json:"kind"`
	Title         *string    `json:"title"`
	Note          *string    `json:"note"`
	StartAt       *time.Time `json:"start_at"`
	EndAt         *time.Time `json:"end_at"`
	AllDay        *bool      `json:"all_day"`
	Location      *string    `json:"location"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
}

// Update applies a partial edit, revalidating exactly as creation does.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, id)
	}

	if p.Kind != nil {
		item.Kind = *p.Kind
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Note != nil {
		item.Note = p.Note
	}
	if p.StartAt != nil {
		item.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		item.EndAt = *p.EndAt
	}
	if p.AllDay != nil {
		item.AllDay = *p.AllDay
	}
	if p.Location != nil {
		item.Location = p.Location
	}
	if p.AppointmentID != nil {
		item.AppointmentID = p.AppointmentID
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	if !item.AllDay {
		if err := s.checkConflicts(ctx, item.StartAt, item.EndAt, item.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, mapRepoErr(err, id)
	}
	return item, nil
}

// Delete removes an entry unconditionally.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoErr(err, id)
	}
	return nil
}

// ListWindow returns entries touching [from, to], boundary inclusive.
func (s *Service) ListWindow(ctx context.Context, from, to time.Time) ([]*Item, error) {
	if !to.After(from) {
		return nil, apperr.Validationf("to must be after from")
	}
	items, err := s.repo.ListInWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: list planner items: %v", apperr.ErrTransient, err)
	}
	return items, nil
}

func (s *Service) checkConflicts(ctx context.Context, start, end time.Time, excludeID uuid.UUID) error {
	overlapping, err := s.repo.ListOverlapping(ctx, start, end, excludeID)
	if err != nil {
		return fmt.Errorf("%w: check planner conflicts: %v", apperr.ErrTransient, err)
	}
	if len(overlapping) > 0 {
		return fmt.Errorf("%w: conflicts with %q", apperr.ErrOccupiedSlot, overlapping[0].Title)
	}
	for _, src := range s.busySources {
		ranges, err := src.BusyRanges(ctx, start, end)
		if err != nil {
			return fmt.Errorf("%w: check busy ranges: %v", apperr.ErrTransient, err)
		}
		for _, r := range ranges {
			if r.Overlaps(start, end) {
				return fmt.Errorf("%w: conflicts with a confirmed appointment", apperr.ErrOccupiedSlot)
			}
		}
	}
	return nil
}

func mapRepoErr(err error, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: planner item %s", apperr.ErrNotFound, id)
	}
	return fmt.Errorf("%w: planner item %s: %v", apperr.ErrTransient, id, err)
}
