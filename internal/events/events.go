package events

import (
	"sync"
	"time"

	"gymbooking/internal/model"

	"github.com/rs/zerolog"
)

// Type names a booking event.
type Type string

const (
	BookingCreated       Type = "booking.created"
	BookingStatusChanged Type = "booking.status_changed"
)

// Event carries the booking as it was after the change.
type Event struct {
	Type    Type
	Booking model.Booking
	From    model.Status // previous status, empty for BookingCreated
	Actor   string
	At      time.Time
}

// Handler reacts to an event.
type Handler func(e Event) error

// Bus is an in-process pub/sub for booking events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]Handler
	logger      zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Type][]Handler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for the event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// Publish runs the handlers for e.Type synchronously in subscription order.
// Handler errors are logged and do not stop later handlers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[e.Type]...)
	b.mu.RUnlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}

	for _, h := range handlers {
		if err := h(e); err != nil {
			b.logger.Warn().Err(err).
				Str("event", string(e.Type)).
				Int64("booking_id", e.Booking.ID).
				Msg("event handler failed")
		}
	}
}
