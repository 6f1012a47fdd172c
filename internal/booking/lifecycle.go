package booking

import (
	"slices"
	"time"

	"gymbooking/internal/model"
)

// Role of the actor requesting a transition.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTrainer Role = "trainer"
	RoleMember  Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTrainer || r == RoleMember
}

// IsStaff reports whether the role acts on behalf of the gym.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleTrainer
}

// Default cancellation reasons.
const (
	DefaultMemberCancelReason = "Cancelled by member"
	DefaultStaffCancelReason  = "Cancelled by staff"
)

type edge struct {
	from, to model.Status
}

// Lifecycle holds the legal status transitions. It checks edges only; who
// may take an edge is decided by the caller using ConventionalRoles.
type Lifecycle struct {
	transitions map[model.Status][]model.Status
	roles       map[edge][]Role
}

// NewLifecycle creates the booking lifecycle.
func NewLifecycle() *Lifecycle {
	staff := []Role{RoleAdmin, RoleTrainer}
	return &Lifecycle{
		transitions: map[model.Status][]model.Status{
			model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled, model.StatusCompleted},
			model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted},
		},
		roles: map[edge][]Role{
			{model.StatusPending, model.StatusConfirmed}:   staff,
			{model.StatusPending, model.StatusCompleted}:   staff,
			{model.StatusPending, model.StatusCancelled}:   {RoleAdmin, RoleTrainer, RoleMember},
			{model.StatusConfirmed, model.StatusCancelled}: staff,
			{model.StatusConfirmed, model.StatusCompleted}: staff,
		},
	}
}

// CanTransition checks if the edge exists.
func (l *Lifecycle) CanTransition(from, to model.Status) bool {
	return slices.Contains(l.transitions[from], to)
}

// IsTerminal reports whether no edge leaves the status.
func (l *Lifecycle) IsTerminal(s model.Status) bool {
	return len(l.transitions[s]) == 0
}

// ConventionalRoles lists the roles that normally take the edge.
func (l *Lifecycle) ConventionalRoles(from, to model.Status) []Role {
	return l.roles[edge{from, to}]
}

// Permits reports whether role conventionally takes the edge.
func (l *Lifecycle) Permits(role Role, from, to model.Status) bool {
	return slices.Contains(l.ConventionalRoles(from, to), role)
}

// Transition is a requested status change.
type Transition struct {
	To     model.Status
	Actor  Role
	Reason string
	Note   string
}

// Apply returns a copy of b moved to t.To, or an InvalidTransition rejection.
func (l *Lifecycle) Apply(b model.Booking, t Transition, now time.Time) (model.Booking, error) {
	if !l.CanTransition(b.Status, t.To) {
		if l.IsTerminal(b.Status) {
			return b, reject(KindInvalidTransition, "booking is already %s", b.Status)
		}
		return b, reject(KindInvalidTransition, "cannot change booking status from %s to %s", b.Status, t.To)
	}
	if t.To == model.StatusCancelled && b.IsPast(now) {
		return b, reject(KindInvalidTransition, "past bookings cannot be cancelled")
	}

	b.Status = t.To
	b.UpdatedAt = &now

	switch t.To {
	case model.StatusCancelled:
		b.CancelReason = t.Reason
		if b.CancelReason == "" {
			b.CancelReason = DefaultStaffCancelReason
			if t.Actor == RoleMember {
				b.CancelReason = DefaultMemberCancelReason
			}
		}
	case model.StatusCompleted:
		if t.Note != "" {
			b.TrainerNote = t.Note
		}
	}

	return b, nil
}
