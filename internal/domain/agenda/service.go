package agenda

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/api/internal/apperr"
	"github.com/clinicore/api/internal/domain/appointment"
	"github.com/clinicore/api/internal/domain/planner"
)

// PlannerSource yields planner items touching a window, sorted by start.
type PlannerSource interface {
	ListInWindow(ctx context.Context, from, to time.Time) ([]*planner.Item, error)
}

// AppointmentSource yields confirmed appointments touching a window,
// sorted by scheduled start.
type AppointmentSource interface {
	ListConfirmedInWindow(ctx context.Context, from, to time.Time) ([]*appointment.Request, error)
}

type Service struct {
	planners     PlannerSource
	appointments AppointmentSource
}

func NewService(planners PlannerSource, appointments AppointmentSource) *Service {
	return &Service{planners: planners, appointments: appointments}
}

// Window merges both collections into one timeline for [from, to],
// boundary inclusive. The merge is stable: ascending by start, planner
// entries before appointments when starts tie.
func (s *Service) Window(ctx context.Context, from, to time.Time) ([]Entry, error) {
	if !to.After(from) {
		return nil, apperr.Validationf("to must be after from")
	}

	items, err := s.planners.ListInWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: load planner items: %v", apperr.ErrTransient, err)
	}
	reqs, err := s.appointments.ListConfirmedInWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: load appointments: %v", apperr.ErrTransient, err)
	}

	// A confirmed row without a schedule cannot be placed on the
	// timeline. The schema forbids it, but the source is not the only
	// writer of the table.
	scheduled := make([]*appointment.Request, 0, len(reqs))
	for _, req := range reqs {
		if req.ScheduledStart == nil || req.ScheduledEnd == nil {
			continue
		}
		scheduled = append(scheduled, req)
	}
	reqs = scheduled

	merged := make([]Entry, 0, len(items)+len(reqs))
	i, j := 0, 0
	for i < len(items) && j < len(reqs) {
		if !items[i].StartAt.After(*reqs[j].ScheduledStart) {
			merged = append(merged, plannerEntry(items[i]))
			i++
		} else {
			merged = append(merged, appointmentEntry(reqs[j]))
			j++
		}
	}
	for ; i < len(items); i++ {
		merged = append(merged, plannerEntry(items[i]))
	}
	for ; j < len(reqs); j++ {
		merged = append(merged, appointmentEntry(reqs[j]))
	}
	return merged, nil
}
