package model

import "time"

// Status of a booking.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusCancelled,
	StatusCompleted,
	StatusNoShow,
	StatusRescheduled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Booking is a member's appointment with a trainer for a service. End and
// PriceMinor are fixed when the booking is drafted.
type Booking struct {
	ID           int64      `json:"id"`
	Reference    string     `json:"reference"`
	MemberID     string     `json:"member_id"`
	TrainerID    int64      `json:"trainer_id"`
	ServiceID    int64      `json:"service_id"`
	Date         Date       `json:"date"`
	Start        TimeOfDay  `json:"start"`
	End          TimeOfDay  `json:"end"`
	Status       Status     `json:"status"`
	PriceMinor   int64      `json:"price_minor"`
	MemberNote   string     `json:"member_note,omitempty"`
	TrainerNote  string     `json:"trainer_note,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	Version      int64      `json:"version"`
}

// Overlaps applies the half-open interval test against [start, end).
func (b *Booking) Overlaps(start, end TimeOfDay) bool {
	return Overlaps(start, end, b.Start, b.End)
}

// Blocks reports whether the booking still occupies its trainer's time.
func (b *Booking) Blocks() bool {
	return b.Status != StatusCancelled
}

// IsPast reports whether the booking's day is before today, or it is today and
// the session has ended. A session ending exactly at now has ended.
func (b *Booking) IsPast(now time.Time) bool {
	today := DateOf(now)
	if b.Date.Before(today) {
		return true
	}
	return b.Date == today && !now.Before(b.Date.At(b.End, now.Location()))
}

// Overlaps reports whether [s1, e1) and [s2, e2) intersect.
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && e1 > s2
}

// BookingFilter narrows booking listings. Zero fields match everything.
type BookingFilter struct {
	From      Date
	To        Date
	Status    Status
	TrainerID int64
	MemberID  string
	Limit     int
	Offset    int
}
