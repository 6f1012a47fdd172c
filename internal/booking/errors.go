package booking

import (
	"errors"
	"fmt"
	"strings"

	"gymbooking/internal/model"
)

// Kind classifies a business rejection.
type Kind string

const (
	KindInvalidService      Kind = "invalid_service"
	KindInvalidTrainer      Kind = "invalid_trainer"
	KindPastDate            Kind = "past_date"
	KindPastTime            Kind = "past_time"
	KindTrainerUnavailable  Kind = "trainer_unavailable_this_day"
	KindOutsideWorkingHours Kind = "outside_working_hours"
	KindSlotConflict        Kind = "slot_conflict"
	KindInvalidTransition   Kind = "invalid_transition"
)

// Rejection is an expected, user-facing refusal. It is never used for
// infrastructure failures.
type Rejection struct {
	Kind    Kind
	Message string
	// Windows holds the trainer's windows for OutsideWorkingHours.
	Windows []model.AvailabilityWindow
	// Conflict is the overlapping booking for SlotConflict, when known.
	Conflict *model.Booking
}

func (r *Rejection) Error() string {
	return r.Message
}

func reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsKind reports whether err is a rejection of the given kind.
func IsKind(err error, kind Kind) bool {
	r, ok := AsRejection(err)
	return ok && r.Kind == kind
}

func InvalidService() *Rejection {
	return reject(KindInvalidService, "invalid service selection")
}

func InvalidTrainer() *Rejection {
	return reject(KindInvalidTrainer, "invalid trainer selection")
}

func outsideWorkingHours(windows []model.AvailabilityWindow) *Rejection {
	ranges := make([]string, len(windows))
	for i, w := range windows {
		ranges[i] = w.Start.String() + " - " + w.End.String()
	}
	r := reject(KindOutsideWorkingHours, "trainer is available between %s", strings.Join(ranges, ", "))
	r.Windows = windows
	return r
}

// SlotConflict builds the rejection for an overlapping booking; conflict may be
// nil when the clash was detected by the store.
func SlotConflict(conflict *model.Booking) *Rejection {
	r := reject(KindSlotConflict, "trainer already has a booking at this time, please choose another slot")
	r.Conflict = conflict
	return r
}
