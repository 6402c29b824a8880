package planner

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/apperr"
)

// Item kinds. A block reserves time with the title carrying the reason;
// a manual appointment is a staff-entered booking that may link to an
// appointment record.
const (
	KindEvent             = "event"
	KindBlock             = "block"
	KindManualAppointment = "manual_appointment"
)

// Item maps to the planner_items table.
type Item struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Kind          string     `db:"kind" json:"kind"`
	Title         string     `db:"title" json:"title"`
	Note          *string    `db:"note" json:"note,omitempty"`
	StartAt       time.Time  `db:"start_at" json:"start_at"`
	EndAt         time.Time  `db:"end_at" json:"end_at"`
	AllDay        bool       `db:"all_day" json:"all_day"`
	Location      *string    `db:"location" json:"location,omitempty"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	CreatedBy     uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks the fields every create and edit must satisfy.
func (i *Item) Validate() error {
	switch i.Kind {
	case KindEvent, KindBlock, KindManualAppointment:
	default:
		return apperr.Validationf("unknown kind %q", i.Kind)
	}
	if i.Title == "" {
		if i.Kind == KindBlock {
			return apperr.Validationf("block requires a reason in the title")
		}
		return apperr.Validationf("title is required")
	}
	if !i.EndAt.After(i.StartAt) {
		return apperr.Validationf("end_at must be after start_at")
	}
	return nil
}
