// Package slots computes bookable start times for a trainer on a day.
package slots

import (
	"iter"
	"time"

	"gymbooking/internal/model"
)

// DefaultStep is the spacing between candidate start times.
const DefaultStep = 30

// Query holds everything needed to resolve free slots. Bookings must belong to
// the trainer and date; cancelled ones are ignored.
type Query struct {
	Date            model.Date
	DurationMinutes int
	Windows         []model.AvailabilityWindow
	Bookings        []model.Booking
	Now             time.Time
}

// Resolver walks availability windows at a fixed step.
type Resolver struct {
	step int
}

// NewResolver creates a resolver; a non-positive step falls back to DefaultStep.
func NewResolver(stepMinutes int) *Resolver {
	if stepMinutes <= 0 {
		stepMinutes = DefaultStep
	}
	return &Resolver{step: stepMinutes}
}

type cursor struct {
	next, last model.TimeOfDay
}

// Free returns the free start times in ascending order. The sequence is
// computed on iteration and may be ranged over any number of times.
func (r *Resolver) Free(q Query) iter.Seq[model.TimeOfDay] {
	return func(yield func(model.TimeOfDay) bool) {
		if q.DurationMinutes <= 0 {
			return
		}

		windows := model.AvailableOn(q.Windows, q.Date.Weekday())
		cursors := make([]cursor, 0, len(windows))
		for _, w := range windows {
			last := w.End.Add(-q.DurationMinutes)
			if last < w.Start {
				continue
			}
			cursors = append(cursors, cursor{next: w.Start, last: last})
		}

		isToday := q.Date == model.DateOf(q.Now)
		cutoff := model.ClockOf(q.Now)

		for {
			// Merge the per-window walks so output stays ascending.
			best := -1
			for i := range cursors {
				if cursors[i].next > cursors[i].last {
					continue
				}
				if best < 0 || cursors[i].next < cursors[best].next {
					best = i
				}
			}
			if best < 0 {
				return
			}

			start := cursors[best].next
			for i := range cursors {
				if cursors[i].next == start {
					cursors[i].next = start.Add(r.step)
				}
			}

			if isToday && start <= cutoff {
				continue
			}
			if conflicts(q.Bookings, start, start.Add(q.DurationMinutes)) {
				continue
			}
			if !yield(start) {
				return
			}
		}
	}
}

// Conflicting returns the first live booking overlapping [start, end).
func Conflicting(bookings []model.Booking, start, end model.TimeOfDay) *model.Booking {
	for i := range bookings {
		if bookings[i].Blocks() && bookings[i].Overlaps(start, end) {
			return &bookings[i]
		}
	}
	return nil
}

func conflicts(bookings []model.Booking, start, end model.TimeOfDay) bool {
	return Conflicting(bookings, start, end) != nil
}

