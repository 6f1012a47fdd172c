package scheduler

import (
	"context"
	"time"

	"gymbooking/internal/events"
	"gymbooking/internal/metrics"
	"gymbooking/internal/model"

	"github.com/rs/zerolog"
)

// Subscribe wires the booking side effects onto bus: slot cache invalidation
// for the affected trainer and day, counters, and an audit log line.
// cache may be nil.
func Subscribe(bus *events.Bus, cache SlotCache, logger zerolog.Logger) {
	logger = logger.With().Str("component", "booking_events").Logger()

	invalidate := func(e events.Event) error {
		if cache == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return cache.Invalidate(ctx, e.Booking.TrainerID, e.Booking.Date)
	}

	bus.Subscribe(events.BookingCreated, invalidate)
	bus.Subscribe(events.BookingCreated, func(e events.Event) error {
		metrics.IncBookingCreated()
		logger.Info().
			Str("reference", e.Booking.Reference).
			Str("member_id", e.Booking.MemberID).
			Int64("price_minor", e.Booking.PriceMinor).
			Msg("booking created")
		return nil
	})

	bus.Subscribe(events.BookingStatusChanged, func(e events.Event) error {
		// Only a cancellation frees time; other edges leave slots unchanged.
		if e.Booking.Status != model.StatusCancelled {
			return nil
		}
		return invalidate(e)
	})
	bus.Subscribe(events.BookingStatusChanged, func(e events.Event) error {
		metrics.IncTransition(string(e.From), string(e.Booking.Status))
		logger.Info().
			Str("reference", e.Booking.Reference).
			Str("from", string(e.From)).
			Str("to", string(e.Booking.Status)).
			Str("actor", e.Actor).
			Msg("booking status changed")
		return nil
	})
}
