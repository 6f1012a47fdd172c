// Package scheduler ties the stores, clock and booking rules together into the
// operations exposed by the API.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"gymbooking/internal/booking"
	"gymbooking/internal/clock"
	"gymbooking/internal/database"
	"gymbooking/internal/events"
	"gymbooking/internal/metrics"
	"gymbooking/internal/model"
	"gymbooking/internal/report"
	"gymbooking/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CatalogRepository provides trainers and services.
type CatalogRepository interface {
	GetTrainer(ctx context.Context, id int64) (*model.Trainer, error)
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListTrainers(ctx context.Context, activeOnly bool) ([]model.Trainer, error)
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	ServicesForTrainer(ctx context.Context, trainerID int64) ([]model.Service, error)
}

// AvailabilityRepository provides weekly windows.
type AvailabilityRepository interface {
	GetAvailability(ctx context.Context, trainerID int64, day time.Weekday) ([]model.AvailabilityWindow, error)
}

// BookingRepository provides booking persistence.
type BookingRepository interface {
	GetBookings(ctx context.Context, trainerID int64, date model.Date) ([]model.Booking, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CreateBooking(ctx context.Context, b *model.Booking, check database.BookingCheck) error
	UpdateBooking(ctx context.Context, b *model.Booking) error
	ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	MemberBookings(ctx context.Context, memberID string) ([]model.Booking, error)
}

// SlotCache stores resolved slots for future dates. Get reports the
// generation of the trainer day alongside the lookup; Set stores only while
// that generation is current, and Invalidate moves to a new one.
type SlotCache interface {
	Get(ctx context.Context, trainerID int64, date model.Date, serviceID int64) (slots []model.TimeOfDay, gen string, ok bool)
	Set(ctx context.Context, trainerID int64, date model.Date, serviceID int64, gen string, slots []model.TimeOfDay) bool
	Invalidate(ctx context.Context, trainerID int64, date model.Date) error
}

// Listing limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Deps are the collaborators of a Service. Catalog, Availability and Bookings
// are required; the rest have defaults.
type Deps struct {
	Catalog      CatalogRepository
	Availability AvailabilityRepository
	Bookings     BookingRepository
	Clock        clock.Clock
	Resolver     *slots.Resolver
	Lifecycle    *booking.Lifecycle
	Cache        SlotCache
	Bus          *events.Bus
	Logger       zerolog.Logger
}

// Service provides scheduling operations.
type Service struct {
	catalog      CatalogRepository
	availability AvailabilityRepository
	bookings     BookingRepository
	clock        clock.Clock
	resolver     *slots.Resolver
	lifecycle    *booking.Lifecycle
	cache        SlotCache
	bus          *events.Bus
	logger       zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		catalog:      d.Catalog,
		availability: d.Availability,
		bookings:     d.Bookings,
		clock:        d.Clock,
		resolver:     d.Resolver,
		lifecycle:    d.Lifecycle,
		cache:        d.Cache,
		bus:          d.Bus,
		logger:       d.Logger.With().Str("component", "scheduler").Logger(),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.resolver == nil {
		s.resolver = slots.NewResolver(slots.DefaultStep)
	}
	if s.lifecycle == nil {
		s.lifecycle = booking.NewLifecycle()
	}
	return s
}

// Lifecycle exposes the transition rules so callers can check roles.
func (s *Service) Lifecycle() *booking.Lifecycle {
	return s.lifecycle
}

// Now is the scheduler's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) lookup(ctx context.Context, serviceID, trainerID int64) (*model.Service, *model.Trainer, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, nil, fmt.Errorf("load service %d: %w", serviceID, err)
	}
	tr, err := s.catalog.GetTrainer(ctx, trainerID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, nil, fmt.Errorf("load trainer %d: %w", trainerID, err)
	}
	return svc, tr, nil
}

func (s *Service) rejected(err error) error {
	if r, ok := booking.AsRejection(err); ok {
		metrics.IncBookingRejected(string(r.Kind))
	}
	return err
}

// ResolveFreeSlots returns the free start times for the service with the
// trainer on date. Past dates have no slots. Future dates are served from
// the slot cache when one is configured; today is always resolved live.
func (s *Service) ResolveFreeSlots(ctx context.Context, trainerID int64, date model.Date, serviceID int64) (iter.Seq[model.TimeOfDay], error) {
	svc, tr, err := s.lookup(ctx, serviceID, trainerID)
	if err != nil {
		return nil, err
	}
	if err := booking.CheckCatalog(svc, tr); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	today := model.DateOf(now)
	if date.Before(today) {
		return slices.Values([]model.TimeOfDay(nil)), nil
	}

	// The generation is read before the bookings so a booking committed in
	// between invalidates it and the result below is not cached.
	cacheable := s.cache != nil && date.After(today)
	var gen string
	if cacheable {
		cached, g, ok := s.cache.Get(ctx, trainerID, date, serviceID)
		if ok {
			metrics.IncSlotQuery(metrics.CacheHit)
			return slices.Values(cached), nil
		}
		gen = g
	}

	windows, err := s.availability.GetAvailability(ctx, trainerID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	existing, err := s.bookings.GetBookings(ctx, trainerID, date)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	free := s.resolver.Free(slots.Query{
		Date:            date,
		DurationMinutes: svc.DurationMinutes,
		Windows:         windows,
		Bookings:        existing,
		Now:             now,
	})

	if !cacheable {
		metrics.IncSlotQuery(metrics.CacheBypass)
		return free, nil
	}

	metrics.IncSlotQuery(metrics.CacheMiss)
	collected := slices.Collect(free)
	s.cache.Set(ctx, trainerID, date, serviceID, gen, collected)
	return slices.Values(collected), nil
}

func (s *Service) draft(ctx context.Context, req booking.Request, now time.Time) (model.Booking, error) {
	svc, tr, err := s.lookup(ctx, req.ServiceID, req.TrainerID)
	if err != nil {
		return model.Booking{}, err
	}
	if err := booking.CheckCatalog(svc, tr); err != nil {
		return model.Booking{}, s.rejected(err)
	}

	windows, err := s.availability.GetAvailability(ctx, req.TrainerID, req.Date.Weekday())
	if err != nil {
		return model.Booking{}, fmt.Errorf("load availability: %w", err)
	}
	existing, err := s.bookings.GetBookings(ctx, req.TrainerID, req.Date)
	if err != nil {
		return model.Booking{}, fmt.Errorf("load bookings: %w", err)
	}

	b, err := booking.Validate(booking.Input{
		Request:  req,
		Service:  svc,
		Trainer:  tr,
		Windows:  windows,
		Bookings: existing,
	}, now)
	if err != nil {
		return model.Booking{}, s.rejected(err)
	}
	return b, nil
}

// ValidateAndDraftBooking checks req against the current data and returns the
// pending booking it would create, without persisting it.
func (s *Service) ValidateAndDraftBooking(ctx context.Context, req booking.Request) (model.Booking, error) {
	return s.draft(ctx, req, s.clock.Now())
}

// CreateBooking validates req and persists it. The overlap check is repeated
// inside the store's write transaction; losing that race yields SlotConflict.
func (s *Service) CreateBooking(ctx context.Context, req booking.Request) (model.Booking, error) {
	b, err := s.draft(ctx, req, s.clock.Now())
	if err != nil {
		return model.Booking{}, err
	}
	b.Reference = uuid.NewString()

	check := func(existing []model.Booking) error {
		if conflict := slots.Conflicting(existing, b.Start, b.End); conflict != nil {
			return booking.SlotConflict(conflict)
		}
		return nil
	}

	if err := s.bookings.CreateBooking(ctx, &b, check); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			err = booking.SlotConflict(nil)
		}
		if _, ok := booking.AsRejection(err); ok {
			s.logger.Warn().
				Int64("trainer_id", b.TrainerID).
				Str("date", b.Date.String()).
				Str("start", b.Start.String()).
				Msg("slot taken between validation and insert")
			return model.Booking{}, s.rejected(err)
		}
		return model.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	s.publish(events.Event{Type: events.BookingCreated, Booking: b, Actor: string(booking.RoleMember)})
	return b, nil
}

// GetBooking returns a booking by id.
func (s *Service) GetBooking(ctx context.Context, id int64) (model.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking %d: %w", id, err)
	}
	return *b, nil
}

// ApplyTransition moves the booking to target. The lifecycle decides whether
// the edge exists; the caller decides whether role may take it.
func (s *Service) ApplyTransition(ctx context.Context, bookingID int64, target model.Status, role booking.Role, reason, note string) (model.Booking, error) {
	current, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking %d: %w", bookingID, err)
	}

	updated, err := s.lifecycle.Apply(*current, booking.Transition{
		To:     target,
		Actor:  role,
		Reason: reason,
		Note:   note,
	}, s.clock.Now())
	if err != nil {
		return model.Booking{}, s.rejected(err)
	}

	if err := s.bookings.UpdateBooking(ctx, &updated); err != nil {
		return model.Booking{}, fmt.Errorf("update booking %d: %w", bookingID, err)
	}

	s.publish(events.Event{
		Type:    events.BookingStatusChanged,
		Booking: updated,
		From:    current.Status,
		Actor:   string(role),
	})
	return updated, nil
}

func (s *Service) publish(e events.Event) {
	if s.bus == nil {
		return
	}
	e.At = s.clock.Now()
	s.bus.Publish(e)
}

// TrainerAvailability is an active trainer with its usable windows on a day.
type TrainerAvailability struct {
	Trainer model.Trainer              `json:"trainer"`
	Windows []model.AvailabilityWindow `json:"windows"`
}

// TrainersAvailableOn lists active trainers with at least one available
// window on the weekday of date.
func (s *Service) TrainersAvailableOn(ctx context.Context, date model.Date) ([]TrainerAvailability, error) {
	trainers, err := s.catalog.ListTrainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list trainers: %w", err)
	}

	out := []TrainerAvailability{}
	for _, t := range trainers {
		windows, err := s.availability.GetAvailability(ctx, t.ID, date.Weekday())
		if err != nil {
			return nil, fmt.Errorf("load availability for trainer %d: %w", t.ID, err)
		}
		windows = model.AvailableOn(windows, date.Weekday())
		if len(windows) == 0 {
			continue
		}
		out = append(out, TrainerAvailability{Trainer: t, Windows: windows})
	}
	return out, nil
}

// ServicesForTrainer lists the active services an active trainer offers.
func (s *Service) ServicesForTrainer(ctx context.Context, trainerID int64) ([]model.Service, error) {
	tr, err := s.catalog.GetTrainer(ctx, trainerID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load trainer %d: %w", trainerID, err)
	}
	if tr == nil || !tr.IsActive {
		return nil, booking.InvalidTrainer()
	}

	services, err := s.catalog.ServicesForTrainer(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("services for trainer %d: %w", trainerID, err)
	}
	if services == nil {
		services = []model.Service{}
	}
	return services, nil
}

// MemberBookings returns the member's bookings, newest first.
func (s *Service) MemberBookings(ctx context.Context, memberID string) ([]model.Booking, error) {
	out, err := s.bookings.MemberBookings(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Booking{}
	}
	return out, nil
}

// ListBookings returns bookings matching f. The limit defaults to
// DefaultListLimit and is capped at MaxListLimit.
func (s *Service) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	f.Limit = min(f.Limit, MaxListLimit)
	f.Offset = max(f.Offset, 0)

	out, err := s.bookings.ListBookings(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Booking{}
	}
	return out, nil
}

// DailyReport summarises every booking on date.
func (s *Service) DailyReport(ctx context.Context, date model.Date) (report.Daily, error) {
	bookings, err := s.bookings.ListBookings(ctx, model.BookingFilter{From: date, To: date})
	if err != nil {
		return report.Daily{}, fmt.Errorf("list bookings: %w", err)
	}
	trainers, err := s.catalog.ListTrainers(ctx, false)
	if err != nil {
		return report.Daily{}, fmt.Errorf("list trainers: %w", err)
	}
	services, err := s.catalog.ListServices(ctx, false)
	if err != nil {
		return report.Daily{}, fmt.Errorf("list services: %w", err)
	}
	return report.Build(date, bookings, trainers, services), nil
}
