package appointment

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicore/api/internal/apperr"
	"github.com/clinicore/api/internal/domain/availability"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/redislock"
)

type mockRepo struct {
	requests map[uuid.UUID]*Request
	err      error
}

func newMockRepo() *mockRepo {
	return &mockRepo{requests: make(map[uuid.UUID]*Request)}
}

func (m *mockRepo) clone(req *Request) *Request {
	cp := *req
	cp.Proposals = append([]Proposal(nil), req.Proposals...)
	return &cp
}

func (m *mockRepo) Create(ctx context.Context, req *Request) error {
	if m.err != nil {
		return m.err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	for i := range req.Proposals {
		if req.Proposals[i].ID == uuid.Nil {
			req.Proposals[i].ID = uuid.New()
		}
		req.Proposals[i].RequestID = req.ID
	}
	req.CreatedAt = time.Now()
	m.requests[req.ID] = m.clone(req)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	if m.err != nil {
		return nil, m.err
	}
	req, ok := m.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m.clone(req), nil
}

func (m *mockRepo) List(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]*Request, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	var out []*Request
	for _, req := range m.requests {
		if requesterID == uuid.Nil || req.RequesterID == requesterID {
			out = append(out, m.clone(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) Confirm(ctx context.Context, id uuid.UUID, proposalID *uuid.UUID, start, end time.Time) error {
	req, ok := m.requests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.Status = StatusConfirmed
	req.ScheduledStart = &start
	req.ScheduledEnd = &end
	if proposalID != nil {
		for i := range req.Proposals {
			req.Proposals[i].IsSelected = req.Proposals[i].ID == *proposalID
		}
	}
	return nil
}

func (m *mockRepo) Cancel(ctx context.Context, id uuid.UUID, reason *string) error {
	req, ok := m.requests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.Status = StatusCancelled
	req.CancelReason = reason
	return nil
}

func (m *mockRepo) SetPaid(ctx context.Context, id uuid.UUID, isPaid bool, paidAt *time.Time, note *string) error {
	req, ok := m.requests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.IsPaid = isPaid
	req.PaidAt = paidAt
	req.PaymentNote = note
	return nil
}

func (m *mockRepo) Update(ctx context.Context, req *Request) error {
	stored, ok := m.requests[req.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.RequesterID = req.RequesterID
	stored.Description = req.Description
	stored.Comment = req.Comment
	stored.Considerations = req.Considerations
	stored.ScheduledStart = req.ScheduledStart
	stored.ScheduledEnd = req.ScheduledEnd
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.requests[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.requests, id)
	return nil
}

func (m *mockRepo) HasActiveConflict(ctx context.Context, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, req := range m.requests {
		if req.ID == excludeID || req.Status != StatusConfirmed || req.ScheduledStart == nil {
			continue
		}
		if req.ScheduledStart.Before(end) && req.ScheduledEnd.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListConfirmedInWindow(ctx context.Context, from, to time.Time) ([]*Request, error) {
	var out []*Request
	for _, req := range m.requests {
		if req.Status != StatusConfirmed || req.ScheduledStart == nil {
			continue
		}
		if !req.ScheduledStart.After(to) && !req.ScheduledEnd.Before(from) {
			out = append(out, m.clone(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(*out[j].ScheduledStart) })
	return out, nil
}

func (m *mockRepo) BusyRanges(ctx context.Context, from, to time.Time) ([]availability.Range, error) {
	var ranges []availability.Range
	for _, req := range m.requests {
		if req.Status != StatusConfirmed || req.ScheduledStart == nil {
			continue
		}
		if req.ScheduledStart.Before(to) && req.ScheduledEnd.After(from) {
			ranges = append(ranges, availability.Range{Start: *req.ScheduledStart, End: *req.ScheduledEnd})
		}
	}
	return ranges, nil
}

type failingLocker struct{}

func (failingLocker) WithSlotLock(ctx context.Context, _ time.Time, _ func(ctx context.Context) error) error {
	return redislock.ErrLockNotAcquired
}

func at(day, hour int) time.Time {
	return time.Date(2026, time.September, day, hour, 0, 0, 0, time.UTC)
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, nil, time.Hour)
}

func seedRequest(t *testing.T, svc *Service, requesterID uuid.UUID) *Request {
	t.Helper()
	req, err := svc.Create(context.Background(), requesterID, CreateParams{
		Description:    "Consulta",
		ProposedStarts: []time.Time{at(7, 14), at(8, 15), at(9, 16)},
	})
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return req
}

func TestCreate_ThreeRankedProposals(t *testing.T) {
	svc := newTestService(newMockRepo())

	req := seedRequest(t, svc, uuid.New())

	if req.Status != StatusRequested {
		t.Errorf("expected requested status, got %q", req.Status)
	}
	if len(req.Proposals) != 3 {
		t.Fatalf("expected 3 proposals, got %d", len(req.Proposals))
	}
	for i, p := range req.Proposals {
		if p.Rank != i+1 {
			t.Errorf("proposal %d has rank %d", i, p.Rank)
		}
		if p.IsSelected {
			t.Errorf("proposal rank %d selected before confirmation", p.Rank)
		}
	}
	if !req.Proposals[1].StartAt.Equal(at(8, 15)) {
		t.Errorf("rank 2 start mismatch: %s", req.Proposals[1].StartAt)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
	}{
		{"blank description", CreateParams{ProposedStarts: []time.Time{at(7, 14), at(8, 15), at(9, 16)}}},
		{"two starts", CreateParams{Description: "Consulta", ProposedStarts: []time.Time{at(7, 14), at(8, 15)}}},
		{"four starts", CreateParams{Description: "Consulta", ProposedStarts: []time.Time{at(7, 14), at(8, 15), at(9, 16), at(10, 17)}}},
		{"duplicate starts", CreateParams{Description: "Consulta", ProposedStarts: []time.Time{at(7, 14), at(7, 14), at(9, 16)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockRepo())
			if _, err := svc.Create(context.Background(), uuid.New(), tt.params); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_RepoErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    error
	}{
		{
			"missing requester",
			&pgconn.PgError{Code: "23503", ConstraintName: "appointment_requests_requester_id_fkey"},
			apperr.ErrValidation,
		},
		{
			"duplicate proposal row",
			&pgconn.PgError{Code: "23505", ConstraintName: "proposals_start_unique"},
			apperr.ErrValidation,
		},
		{
			"connection failure",
			errors.New("connection reset"),
			apperr.ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			repo.err = tt.repoErr
			svc := newTestService(repo)

			_, err := svc.Create(context.Background(), uuid.New(), CreateParams{
				Description:    "Consulta",
				ProposedStarts: []time.Time{at(7, 14), at(8, 15), at(9, 16)},
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfirm_SelectsProposal(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())

	rank2 := req.Proposals[1]
	confirmed, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &rank2.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if confirmed.Status != StatusConfirmed {
		t.Errorf("expected confirmed status, got %q", confirmed.Status)
	}
	if confirmed.ScheduledStart == nil || !confirmed.ScheduledStart.Equal(rank2.StartAt) {
		t.Errorf("expected scheduled start %s, got %v", rank2.StartAt, confirmed.ScheduledStart)
	}
	if confirmed.ScheduledEnd == nil || !confirmed.ScheduledEnd.Equal(rank2.StartAt.Add(time.Hour)) {
		t.Errorf("expected one-hour schedule, got %v", confirmed.ScheduledEnd)
	}
	for _, p := range confirmed.Proposals {
		if p.ID == rank2.ID && !p.IsSelected {
			t.Error("chosen proposal not marked selected")
		}
		if p.ID != rank2.ID && p.IsSelected {
			t.Errorf("proposal rank %d wrongly selected", p.Rank)
		}
	}
}

func TestConfirm_ExplicitSchedule(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())

	start := at(10, 13)
	confirmed, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ScheduledStart: &start})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.ScheduledStart == nil || !confirmed.ScheduledStart.Equal(start) {
		t.Errorf("expected scheduled start %s, got %v", start, confirmed.ScheduledStart)
	}
}

func TestConfirm_TerminalStatesRejected(t *testing.T) {
	svc := newTestService(newMockRepo())

	confirmed := seedRequest(t, svc, uuid.New())
	if _, err := svc.Confirm(context.Background(), confirmed.ID, ConfirmParams{ProposalID: &confirmed.Proposals[0].ID}); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), confirmed.ID, ConfirmParams{ProposalID: &confirmed.Proposals[0].ID}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state on double confirm, got %v", err)
	}

	cancelled := seedRequest(t, svc, uuid.New())
	if _, err := svc.Cancel(context.Background(), cancelled.ID, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), cancelled.ID, ConfirmParams{ProposalID: &cancelled.Proposals[0].ID}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state on confirming cancelled, got %v", err)
	}
}

func TestConfirm_OccupiedSlot(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	// A confirmed appointment already holds Mon 14:00.
	holder := seedRequest(t, svc, uuid.New())
	if _, err := svc.Confirm(context.Background(), holder.ID, ConfirmParams{ProposalID: &holder.Proposals[0].ID}); err != nil {
		t.Fatalf("seed confirmation: %v", err)
	}

	req := seedRequest(t, svc, uuid.New())
	_, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &req.Proposals[0].ID})
	if !errors.Is(err, apperr.ErrOccupiedSlot) {
		t.Errorf("expected occupied slot, got %v", err)
	}

	// The losing request must stay requested so the user can pick a
	// different proposal.
	after, err := svc.Get(context.Background(), req.ID, req.RequesterID, auth.RoleStaff)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != StatusRequested {
		t.Errorf("expected requested after failed confirm, got %q", after.Status)
	}
}

func TestConfirm_PlannerConflict(t *testing.T) {
	block := stubBusySource{ranges: []availability.Range{{Start: at(7, 14), End: at(7, 15)}}}
	svc := NewService(newMockRepo(), nil, nil, time.Hour, block)
	req := seedRequest(t, svc, uuid.New())

	if _, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &req.Proposals[0].ID}); !errors.Is(err, apperr.ErrOccupiedSlot) {
		t.Errorf("expected occupied slot from planner entry, got %v", err)
	}
}

type stubBusySource struct {
	ranges []availability.Range
}

func (s stubBusySource) BusyRanges(ctx context.Context, from, to time.Time) ([]availability.Range, error) {
	return s.ranges, nil
}

func TestConfirm_LockContention(t *testing.T) {
	svc := NewService(newMockRepo(), failingLocker{}, nil, time.Hour)
	req := seedRequest(t, svc, uuid.New())

	if _, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &req.Proposals[0].ID}); !errors.Is(err, apperr.ErrOccupiedSlot) {
		t.Errorf("expected occupied slot on lock contention, got %v", err)
	}
}

func TestConfirm_UnknownProposal(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())

	stray := uuid.New()
	if _, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &stray}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCancel_WithReasonThenRepeat(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())

	reason := "patient unavailable"
	cancelled, err := svc.Cancel(context.Background(), req.ID, &reason)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %q", cancelled.Status)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != reason {
		t.Errorf("expected reason stored, got %v", cancelled.CancelReason)
	}

	if _, err := svc.Cancel(context.Background(), req.ID, nil); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state on repeated cancel, got %v", err)
	}
}

func TestCancel_FromConfirmed(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())
	if _, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &req.Proposals[0].ID}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), req.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %q", cancelled.Status)
	}
}

func TestSetPaid_OnCancelledRejected(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())
	if _, err := svc.Cancel(context.Background(), req.ID, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := svc.SetPaid(context.Background(), req.ID, true, nil)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}

	after, err := svc.Get(context.Background(), req.ID, req.RequesterID, auth.RoleStaff)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.IsPaid {
		t.Error("payment flag must stay unchanged after rejection")
	}
}

func TestSetPaid_TogglesTimestamp(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())
	if _, err := svc.Confirm(context.Background(), req.ID, ConfirmParams{ProposalID: &req.Proposals[0].ID}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	note := "cash"
	paid, err := svc.SetPaid(context.Background(), req.ID, true, &note)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !paid.IsPaid || paid.PaidAt == nil {
		t.Errorf("expected paid with timestamp, got paid=%v at=%v", paid.IsPaid, paid.PaidAt)
	}

	unpaid, err := svc.SetPaid(context.Background(), req.ID, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unpaid.IsPaid || unpaid.PaidAt != nil {
		t.Errorf("expected cleared payment, got paid=%v at=%v", unpaid.IsPaid, unpaid.PaidAt)
	}
}

func TestCreateManual_Defaults(t *testing.T) {
	svc := newTestService(newMockRepo())

	patientID := uuid.New()
	req, err := svc.CreateManual(context.Background(), uuid.New(), ManualParams{
		UserID:         &patientID,
		ScheduledStart: at(7, 14),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %q", req.Status)
	}
	if req.Description != DefaultManualDescription {
		t.Errorf("expected default description, got %q", req.Description)
	}
	if req.RequesterID != patientID {
		t.Error("expected linked patient as requester")
	}
	if !req.ScheduledEnd.Equal(at(7, 15)) {
		t.Errorf("expected one-hour duration, got end %s", req.ScheduledEnd)
	}
}

func TestCreateManual_Occupied(t *testing.T) {
	svc := newTestService(newMockRepo())

	if _, err := svc.CreateManual(context.Background(), uuid.New(), ManualParams{ScheduledStart: at(7, 14), Description: "First"}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	if _, err := svc.CreateManual(context.Background(), uuid.New(), ManualParams{ScheduledStart: at(7, 14), Description: "Second"}); !errors.Is(err, apperr.ErrOccupiedSlot) {
		t.Errorf("expected occupied slot, got %v", err)
	}
}

func TestDelete_OwnershipAndState(t *testing.T) {
	svc := newTestService(newMockRepo())
	owner := uuid.New()
	req := seedRequest(t, svc, owner)

	stranger := uuid.New()
	if err := svc.Delete(context.Background(), req.ID, stranger, auth.RoleRequester); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected unauthorized for stranger, got %v", err)
	}

	if err := svc.Delete(context.Background(), req.ID, owner, auth.RoleRequester); err != nil {
		t.Errorf("expected owner delete to succeed, got %v", err)
	}

	confirmed := seedRequest(t, svc, owner)
	if _, err := svc.Confirm(context.Background(), confirmed.ID, ConfirmParams{ProposalID: &confirmed.Proposals[0].ID}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := svc.Delete(context.Background(), confirmed.ID, owner, auth.RoleStaff); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for confirmed delete, got %v", err)
	}
}

func TestDelete_RequesterBlockedOnCancelledAndPaid(t *testing.T) {
	svc := newTestService(newMockRepo())
	owner := uuid.New()

	cancelled := seedRequest(t, svc, owner)
	if _, err := svc.Cancel(context.Background(), cancelled.ID, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Delete(context.Background(), cancelled.ID, owner, auth.RoleRequester); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for owner delete of cancelled request, got %v", err)
	}
	if err := svc.Delete(context.Background(), cancelled.ID, owner, auth.RoleStaff); err != nil {
		t.Errorf("expected staff delete of cancelled request to succeed, got %v", err)
	}

	paid := seedRequest(t, svc, owner)
	if _, err := svc.SetPaid(context.Background(), paid.ID, true, nil); err != nil {
		t.Fatalf("set paid: %v", err)
	}
	if err := svc.Delete(context.Background(), paid.ID, owner, auth.RoleRequester); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for owner delete of paid request, got %v", err)
	}
	if err := svc.Delete(context.Background(), paid.ID, owner, auth.RoleStaff); err != nil {
		t.Errorf("expected staff delete of paid request to succeed, got %v", err)
	}
}

func TestList_RoleScoped(t *testing.T) {
	svc := newTestService(newMockRepo())
	alice := uuid.New()
	bob := uuid.New()
	seedRequest(t, svc, alice)
	seedRequest(t, svc, bob)

	all, total, err := svc.List(context.Background(), uuid.New(), auth.RoleStaff, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("staff should see both requests, got %d", len(all))
	}

	own, total, err := svc.List(context.Background(), alice, auth.RoleRequester, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(own) != 1 || own[0].RequesterID != alice {
		t.Errorf("requester should see only their own, got %d", len(own))
	}
}

func TestGet_RequesterCannotSeeOthers(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())

	if _, err := svc.Get(context.Background(), req.ID, uuid.New(), auth.RoleRequester); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestUpdate_DescriptiveFields(t *testing.T) {
	svc := newTestService(newMockRepo())
	req := seedRequest(t, svc, uuid.New())

	desc := "Control"
	comment := "bring previous results"
	updated, err := svc.Update(context.Background(), req.ID, UpdateParams{Description: &desc, Comment: &comment})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Description != "Control" || updated.Comment == nil || *updated.Comment != comment {
		t.Errorf("unexpected update result: %+v", updated)
	}

	blank := ""
	if _, err := svc.Update(context.Background(), req.ID, UpdateParams{Description: &blank}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error on blank description, got %v", err)
	}
}

func TestUpdate_Vanished(t *testing.T) {
	svc := newTestService(newMockRepo())
	desc := "Control"
	if _, err := svc.Update(context.Background(), uuid.New(), UpdateParams{Description: &desc}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
