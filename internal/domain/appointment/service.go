package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicore/api/internal/apperr"
	"github.com/clinicore/api/internal/domain/availability"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/redislock"
)

// TxRunner executes fn inside a database transaction. Tests substitute a
// passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo   Repository
	locker redislock.Locker
	runTx  TxRunner
	// busySources carry commitments outside the appointment table, in
	// practice the timed planner entries.
	busySources []availability.BusySource
	slotDur     time.Duration
}

func NewService(repo Repository, locker redislock.Locker, runTx TxRunner, slotDur time.Duration, busySources ...availability.BusySource) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	if locker == nil {
		locker = redislock.NoopLocker{}
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		runTx:       runTx,
		busySources: busySources,
		slotDur:     slotDur,
	}
}

// CreateParams carries a patient's new request.
type CreateParams struct {
	Description    string      `json:"description"`
	Comment        *string     `json:"comment"`
	Considerations *string     `json:"considerations"`
	ProposedStarts []time.Time `json:"proposed_starts"`
}

// Create opens a request in the requested state with exactly three
// distinct proposals ranked by preference order.
func (s *Service) Create(ctx context.Context, requesterID uuid.UUID, p CreateParams) (*Request, error) {
	if p.Description == "" {
		return nil, apperr.Validationf("description is required")
	}
	if len(p.ProposedStarts) != 3 {
		return nil, apperr.Validationf("exactly 3 proposed starts are required, got %d", len(p.ProposedStarts))
	}
	seen := make(map[time.Time]bool, 3)
	for _, start := range p.ProposedStarts {
		key := start.UTC()
		if seen[key] {
			return nil, apperr.Validationf("proposed starts must be distinct")
		}
		seen[key] = true
	}

	req := &Request{
		RequesterID:    requesterID,
		Description:    p.Description,
		Comment:        p.Comment,
		Considerations: p.Considerations,
		Status:         StatusRequested,
	}
	for i, start := range p.ProposedStarts {
		req.Proposals = append(req.Proposals, Proposal{Rank: i + 1, StartAt: start.UTC()})
	}

	err := s.runTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, req)
	})
	if err != nil {
		return nil, mapWriteErr(err, "create request")
	}
	return s.reload(ctx, req.ID)
}

// ConfirmParams selects either a proposal or an explicit schedule.
type ConfirmParams struct {
	ProposalID     *uuid.UUID `json:"proposal_id"`
	ScheduledStart *time.Time `json:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end"`
}

// Confirm moves a requested appointment to confirmed, binding the
// schedule from the chosen proposal or the explicit pair. The slot is
// re-checked for conflicts under a per-slot lock because a published
// availability snapshot may have gone stale.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, p ConfirmParams) (*Request, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusRequested {
		return nil, fmt.Errorf("%w: cannot confirm a %s request", apperr.ErrInvalidState, req.Status)
	}

	var start, end time.Time
	switch {
	case p.ProposalID != nil:
		prop := req.ProposalByID(*p.ProposalID)
		if prop == nil {
			return nil, apperr.Validationf("proposal %s does not belong to request %s", *p.ProposalID, id)
		}
		start = prop.StartAt
		end = start.Add(s.slotDur)
	case p.ScheduledStart != nil:
		start = p.ScheduledStart.UTC()
		end = start.Add(s.slotDur)
		if p.ScheduledEnd != nil {
			end = p.ScheduledEnd.UTC()
		}
		if !end.After(start) {
			return nil, apperr.Validationf("scheduled_end must be after scheduled_start")
		}
	default:
		return nil, apperr.Validationf("proposal_id or scheduled_start is required")
	}

	err = s.locker.WithSlotLock(ctx, start, func(ctx context.Context) error {
		return s.runTx(ctx, func(ctx context.Context) error {
			if err := s.checkConflicts(ctx, start, end, id); err != nil {
				return err
			}
			return s.repo.Confirm(ctx, id, p.ProposalID, start, end)
		})
	})
	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot is being confirmed by another session", apperr.ErrOccupiedSlot)
		}
		if isAppErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: confirm request: %v", apperr.ErrTransient, err)
	}
	return s.reload(ctx, id)
}

// Cancel moves a request to cancelled with an optional reason. A second
// cancel is rejected rather than silently repeated.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*Request, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: request is already cancelled", apperr.ErrInvalidState)
	}
	if err := s.repo.Cancel(ctx, id, reason); err != nil {
		return nil, s.mapRepoErr(err, id)
	}
	return s.reload(ctx, id)
}

// SetPaid toggles the payment flag. Cancelled is terminal for payment.
func (s *Service) SetPaid(ctx context.Context, id uuid.UUID, isPaid bool, note *string) (*Request, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: cannot change payment on a cancelled request", apperr.ErrInvalidState)
	}
	var paidAt *time.Time
	if isPaid {
		now := time.Now().UTC()
		paidAt = &now
	}
	if err := s.repo.SetPaid(ctx, id, isPaid, paidAt, note); err != nil {
		return nil, s.mapRepoErr(err, id)
	}
	return s.reload(ctx, id)
}

// UpdateParams carries a staff edit; nil fields stay unchanged. Range
// overlap is not revalidated for schedule nudges, matching the edit
// contract for appointments.
type UpdateParams struct {
	RequesterID    *uuid.UUID `json:"user_id"`
	Description    *string    `json:"description"`
	Comment        *string    `json:"comment"`
	Considerations *string    `json:"considerations"`
	ScheduledStart *time.Time `json:"scheduled_start"`
}

// Update applies a staff edit to the request's descriptive fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*Request, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.RequesterID != nil {
		req.RequesterID = *p.RequesterID
	}
	if p.Description != nil {
		if *p.Description == "" {
			return nil, apperr.Validationf("description is required")
		}
		req.Description = *p.Description
	}
	if p.Comment != nil {
		req.Comment = p.Comment
	}
	if p.Considerations != nil {
		req.Considerations = p.Considerations
	}
	if p.ScheduledStart != nil {
		start := p.ScheduledStart.UTC()
		end := start.Add(s.slotDur)
		req.ScheduledStart = &start
		req.ScheduledEnd = &end
	}
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, s.mapRepoErr(err, id)
	}
	return s.reload(ctx, id)
}

// ManualParams carries a staff booking entered directly as confirmed.
type ManualParams struct {
	UserID         *uuid.UUID `json:"user_id"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	Description    string     `json:"description"`
	Comment        *string    `json:"comment"`
}

// CreateManual books a fixed-duration appointment on behalf of a patient,
// skipping the proposal negotiation.
func (s *Service) CreateManual(ctx context.Context, staffID uuid.UUID, p ManualParams) (*Request, error) {
	if p.ScheduledStart.IsZero() {
		return nil, apperr.Validationf("scheduled_start is required")
	}
	if p.Description == "" {
		p.Description = DefaultManualDescription
	}

	start := p.ScheduledStart.UTC()
	end := start.Add(s.slotDur)
	requester := staffID
	if p.UserID != nil {
		requester = *p.UserID
	}

	req := &Request{
		RequesterID:    requester,
		Description:    p.Description,
		Comment:        p.Comment,
		Status:         StatusConfirmed,
		ScheduledStart: &start,
		ScheduledEnd:   &end,
	}

	err := s.locker.WithSlotLock(ctx, start, func(ctx context.Context) error {
		return s.runTx(ctx, func(ctx context.Context) error {
			if err := s.checkConflicts(ctx, start, end, uuid.Nil); err != nil {
				return err
			}
			return s.repo.Create(ctx, req)
		})
	})
	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot is being confirmed by another session", apperr.ErrOccupiedSlot)
		}
		if isAppErr(err) {
			return nil, err
		}
		return nil, mapWriteErr(err, "create manual appointment")
	}
	return s.reload(ctx, req.ID)
}

// Delete removes an unconfirmed request. Confirmed appointments are
// cancelled instead to preserve history. Requesters may only remove
// their own, and only while still requested and unpaid; once staff
// cancelled the request or payment was recorded, the record belongs to
// the clinic's bookkeeping.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID, actorRole string) error {
	req, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if actorRole != auth.RoleStaff && req.RequesterID != actorID {
		return fmt.Errorf("%w: request belongs to another user", apperr.ErrUnauthorized)
	}
	if req.Status == StatusConfirmed {
		return fmt.Errorf("%w: confirmed appointments are cancelled, not deleted", apperr.ErrInvalidState)
	}
	if actorRole != auth.RoleStaff && (req.Status != StatusRequested || req.IsPaid) {
		return fmt.Errorf("%w: only unpaid requested appointments can be removed by their owner", apperr.ErrInvalidState)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoErr(err, id)
	}
	return nil
}

// List returns requests visible to the actor: staff see everything,
// requesters see their own.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, actorRole string, limit, offset int) ([]*Request, int, error) {
	scope := actorID
	if actorRole == auth.RoleStaff {
		scope = uuid.Nil
	}
	items, total, err := s.repo.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list requests: %v", apperr.ErrTransient, err)
	}
	return items, total, nil
}

// Get returns a single request visible to the actor.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actorID uuid.UUID, actorRole string) (*Request, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorRole != auth.RoleStaff && req.RequesterID != actorID {
		return nil, fmt.Errorf("%w: request belongs to another user", apperr.ErrUnauthorized)
	}
	return req, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoErr(err, id)
	}
	return req, nil
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reload request: %v", apperr.ErrTransient, err)
	}
	return req, nil
}

func (s *Service) checkConflicts(ctx context.Context, start, end time.Time, excludeID uuid.UUID) error {
	conflict, err := s.repo.HasActiveConflict(ctx, start, end, excludeID)
	if err != nil {
		return fmt.Errorf("%w: check conflicts: %v", apperr.ErrTransient, err)
	}
	if conflict {
		return fmt.Errorf("%w: another appointment holds this slot", apperr.ErrOccupiedSlot)
	}
	for _, src := range s.busySources {
		ranges, err := src.BusyRanges(ctx, start, end)
		if err != nil {
			return fmt.Errorf("%w: check busy ranges: %v", apperr.ErrTransient, err)
		}
		for _, r := range ranges {
			if r.Overlaps(start, end) {
				return fmt.Errorf("%w: a planner entry holds this slot", apperr.ErrOccupiedSlot)
			}
		}
	}
	return nil
}

func (s *Service) mapRepoErr(err error, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: request %s", apperr.ErrNotFound, id)
	}
	return fmt.Errorf("%w: request %s: %v", apperr.ErrTransient, id, err)
}

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// mapWriteErr surfaces constraint violations from inserts as caller
// errors; a request referencing a missing user or colliding with an
// existing row will fail the same way on retry.
func mapWriteErr(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return apperr.Validationf("%s: references a missing record (%s)", op, pgErr.ConstraintName)
		case pgUniqueViolation:
			return apperr.Validationf("%s: duplicates an existing row (%s)", op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrTransient, op, err)
}

func isAppErr(err error) bool {
	return errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrOccupiedSlot) ||
		errors.Is(err, apperr.ErrInvalidState) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrUnauthorized) ||
		errors.Is(err, apperr.ErrTransient)
}
