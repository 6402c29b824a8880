package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/api/internal/apperr"
)

// Service computes bookable slots on demand. Slots are derived, never
// persisted: the operating window minus every active commitment.
type Service struct {
	loc       *time.Location
	openHour  int
	closeHour int
	slot      time.Duration
	sources   []BusySource
}

func NewService(loc *time.Location, openHour, closeHour int, slot time.Duration, sources ...BusySource) *Service {
	return &Service{
		loc:       loc,
		openHour:  openHour,
		closeHour: closeHour,
		slot:      slot,
		sources:   sources,
	}
}

// Slots returns the ascending sequence of free slot starts inside
// [from, to). The result is a snapshot; confirmation re-checks conflicts.
func (s *Service) Slots(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if !to.After(from) {
		return nil, apperr.Validationf("to must be after from")
	}

	var busy []Range
	for _, src := range s.sources {
		ranges, err := src.BusyRanges(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("%w: load busy ranges: %v", apperr.ErrTransient, err)
		}
		busy = append(busy, ranges...)
	}

	slots := []time.Time{}
	day := startOfDay(from.In(s.loc))
	for day.Before(to) {
		if isWeekday(day.Weekday()) {
			open := time.Date(day.Year(), day.Month(), day.Day(), s.openHour, 0, 0, 0, s.loc)
			closing := time.Date(day.Year(), day.Month(), day.Day(), s.closeHour, 0, 0, 0, s.loc)
			for start := open; !start.Add(s.slot).After(closing); start = start.Add(s.slot) {
				end := start.Add(s.slot)
				if start.Before(from) || end.After(to) {
					continue
				}
				if anyOverlap(busy, start, end) {
					continue
				}
				slots = append(slots, start.UTC())
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return slots, nil
}

func anyOverlap(busy []Range, start, end time.Time) bool {
	for _, r := range busy {
		if r.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isWeekday(d time.Weekday) bool {
	return d >= time.Monday && d <= time.Friday
}
