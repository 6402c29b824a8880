package agenda

import (
	"time"

	"github.com/clinicore/api/internal/domain/appointment"
	"github.com/clinicore/api/internal/domain/planner"
)

// Entry types for the merged timeline.
const (
	TypePlanner     = "planner"
	TypeAppointment = "appointment"
)

// Entry tags either a planner item or a confirmed appointment so one
// sorted sequence can drive the day and month views. It carries no
// persistence of its own.
type Entry struct {
	Type        string               `json:"type"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Planner     *planner.Item        `json:"planner,omitempty"`
	Appointment *appointment.Request `json:"appointment,omitempty"`
}

func plannerEntry(item *planner.Item) Entry {
	return Entry{
		Type:    TypePlanner,
		Start:   item.StartAt,
		End:     item.EndAt,
		Planner: item,
	}
}

func appointmentEntry(req *appointment.Request) Entry {
	return Entry{
		Type:        TypeAppointment,
		Start:       *req.ScheduledStart,
		End:         *req.ScheduledEnd,
		Appointment: req,
	}
}
