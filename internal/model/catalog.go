package model

import "time"

// Service durations outside this range are rejected by catalog validation.
const (
	MinServiceMinutes = 15
	MaxServiceMinutes = 240
)

type Trainer struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email,omitempty"`
	Specialties     string    `json:"specialties,omitempty"`
	SessionFeeMinor int64     `json:"session_fee_minor"`
	WorkStart       TimeOfDay `json:"work_start"`
	WorkEnd         TimeOfDay `json:"work_end"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (t *Trainer) FullName() string {
	return t.FirstName + " " + t.LastName
}

type ServiceCategory string

const (
	CategoryFitness  ServiceCategory = "fitness"
	CategoryYoga     ServiceCategory = "yoga"
	CategoryPilates  ServiceCategory = "pilates"
	CategoryCardio   ServiceCategory = "cardio"
	CategoryStrength ServiceCategory = "strength"
	CategoryWeight   ServiceCategory = "weight_loss"
	CategoryCrossfit ServiceCategory = "crossfit"
	CategorySwimming ServiceCategory = "swimming"
	CategoryBoxing   ServiceCategory = "boxing"
	CategoryGroup    ServiceCategory = "group"
	CategoryPersonal ServiceCategory = "personal"
	CategoryOther    ServiceCategory = "other"
)

type Service struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Category        ServiceCategory `json:"category"`
	DurationMinutes int             `json:"duration_minutes"`
	PriceMinor      int64           `json:"price_minor"`
	MaxParticipants int             `json:"max_participants"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AvailabilityWindow is a weekly recurring interval [Start, End) during which
// a trainer may be booked.
type AvailabilityWindow struct {
	ID        int64        `json:"id"`
	TrainerID int64        `json:"trainer_id"`
	Weekday   time.Weekday `json:"weekday"`
	Start     TimeOfDay    `json:"start"`
	End       TimeOfDay    `json:"end"`
	Available bool         `json:"available"`
	Note      string       `json:"note,omitempty"`
}

// Contains reports whether [start, end) lies inside the window.
func (w AvailabilityWindow) Contains(start, end TimeOfDay) bool {
	return start >= w.Start && end <= w.End
}

func (w AvailabilityWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// AvailableOn filters windows to the usable ones for the weekday.
func AvailableOn(windows []AvailabilityWindow, day time.Weekday) []AvailabilityWindow {
	var out []AvailabilityWindow
	for _, w := range windows {
		if w.Weekday == day && w.Available && w.Start < w.End {
			out = append(out, w)
		}
	}
	return out
}
