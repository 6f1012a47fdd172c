// Package booking validates booking requests and governs status transitions.
package booking

import (
	"time"

	"gymbooking/internal/model"
	"gymbooking/internal/slots"
)

// Request is a member's proposed booking.
type Request struct {
	MemberID  string          `json:"member_id"`
	TrainerID int64           `json:"trainer_id"`
	ServiceID int64           `json:"service_id"`
	Date      model.Date      `json:"date"`
	Start     model.TimeOfDay `json:"start"`
	Note      string          `json:"note,omitempty"`
}

// Input is a request together with the data the checks need. A nil or
// inactive Service or Trainer counts as missing. Windows are all of the
// trainer's windows; Bookings are the trainer's bookings on Request.Date.
type Input struct {
	Request
	Service  *model.Service
	Trainer  *model.Trainer
	Windows  []model.AvailabilityWindow
	Bookings []model.Booking
}

// Validate runs the checks in a fixed order and stops at the first failure.
// On success it returns a pending draft whose end time and price are final.
func Validate(in Input, now time.Time) (model.Booking, error) {
	if err := CheckCatalog(in.Service, in.Trainer); err != nil {
		return model.Booking{}, err
	}

	today := model.DateOf(now)
	if in.Date.Before(today) {
		return model.Booking{}, reject(KindPastDate, "cannot book a date in the past")
	}
	if in.Date == today && in.Start <= model.ClockOf(now) {
		return model.Booking{}, reject(KindPastTime, "cannot book a time that has already passed")
	}

	windows := model.AvailableOn(in.Windows, in.Date.Weekday())
	if len(windows) == 0 {
		return model.Booking{}, reject(KindTrainerUnavailable, "trainer is not available on %s", in.Date.Weekday())
	}

	end := in.Start.Add(in.Service.DurationMinutes)
	if !containedInAny(windows, in.Start, end) {
		return model.Booking{}, outsideWorkingHours(windows)
	}

	if conflict := slots.Conflicting(in.Bookings, in.Start, end); conflict != nil {
		return model.Booking{}, SlotConflict(conflict)
	}

	return model.Booking{
		MemberID:   in.MemberID,
		TrainerID:  in.Trainer.ID,
		ServiceID:  in.Service.ID,
		Date:       in.Date,
		Start:      in.Start,
		End:        end,
		Status:     model.StatusPending,
		PriceMinor: in.Service.PriceMinor + in.Trainer.SessionFeeMinor,
		MemberNote: in.Note,
		CreatedAt:  now,
	}, nil
}

// CheckCatalog rejects a missing or inactive service, then trainer.
func CheckCatalog(svc *model.Service, tr *model.Trainer) error {
	if svc == nil || !svc.IsActive {
		return InvalidService()
	}
	if tr == nil || !tr.IsActive {
		return InvalidTrainer()
	}
	return nil
}

func containedInAny(windows []model.AvailabilityWindow, start, end model.TimeOfDay) bool {
	for _, w := range windows {
		if w.Contains(start, end) {
			return true
		}
	}
	return false
}
