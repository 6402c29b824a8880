package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Request lifecycle states. Confirmed and cancelled are terminal except
// for the payment flag, which stays mutable while confirmed.
const (
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// DefaultManualDescription labels staff bookings created without one.
const DefaultManualDescription = "Cita agendada por el personal"

// Request maps to the appointment_requests table.
type Request struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	RequesterID    uuid.UUID  `db:"requester_id" json:"requester_id"`
	Description    string     `db:"description" json:"description"`
	Comment        *string    `db:"comment" json:"comment,omitempty"`
	Considerations *string    `db:"considerations" json:"considerations,omitempty"`
	Status         string     `db:"status" json:"status"`
	CancelReason   *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	IsPaid         bool       `db:"is_paid" json:"is_paid"`
	PaidAt         *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaymentNote    *string    `db:"payment_note" json:"payment_note,omitempty"`
	ScheduledStart *time.Time `db:"scheduled_start" json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `db:"scheduled_end" json:"scheduled_end,omitempty"`
	Proposals      []Proposal `json:"proposals"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Proposal is one of the three patient-suggested start instants.
// Proposals are immutable once created; replacing the set means deleting
// and recreating the parent request.
type Proposal struct {
	ID         uuid.UUID `db:"id" json:"id"`
	RequestID  uuid.UUID `db:"request_id" json:"request_id"`
	Rank       int       `db:"rank" json:"rank"`
	StartAt    time.Time `db:"start_at" json:"start_at"`
	IsSelected bool      `db:"is_selected" json:"is_selected"`
}

// ProposalByID returns the proposal with the given id, or nil.
func (r *Request) ProposalByID(id uuid.UUID) *Proposal {
	for i := range r.Proposals {
		if r.Proposals[i].ID == id {
			return &r.Proposals[i]
		}
	}
	return nil
}
