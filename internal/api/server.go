package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"gymbooking/internal/booking"
	"gymbooking/internal/database"
	"gymbooking/internal/model"
	"gymbooking/internal/report"
	"gymbooking/internal/scheduler"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Scheduler is the booking functionality exposed over HTTP.
type Scheduler interface {
	Now() time.Time
	Lifecycle() *booking.Lifecycle
	ResolveFreeSlots(ctx context.Context, trainerID int64, date model.Date, serviceID int64) (iter.Seq[model.TimeOfDay], error)
	TrainersAvailableOn(ctx context.Context, date model.Date) ([]scheduler.TrainerAvailability, error)
	ServicesForTrainer(ctx context.Context, trainerID int64) ([]model.Service, error)
	ValidateAndDraftBooking(ctx context.Context, req booking.Request) (model.Booking, error)
	CreateBooking(ctx context.Context, req booking.Request) (model.Booking, error)
	GetBooking(ctx context.Context, id int64) (model.Booking, error)
	ApplyTransition(ctx context.Context, bookingID int64, target model.Status, role booking.Role, reason, note string) (model.Booking, error)
	MemberBookings(ctx context.Context, memberID string) ([]model.Booking, error)
	ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	DailyReport(ctx context.Context, date model.Date) (report.Daily, error)
}

// Options configure the HTTP server. A zero RateLimit disables rate limiting
// and an empty APIKey disables the key check.
type Options struct {
	Port      int
	APIKey    string
	RateLimit rate.Limit
	Burst     int
	Timeout   time.Duration
}

// HTTPServer serves the booking JSON API.
type HTTPServer struct {
	svc     Scheduler
	opts    Options
	limiter *clientLimiter
	logger  zerolog.Logger
	server  *http.Server
}

func NewHTTPServer(svc Scheduler, opts Options, logger zerolog.Logger) *HTTPServer {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	s := &HTTPServer{
		svc:    svc,
		opts:   opts,
		logger: logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(opts.RateLimit, max(opts.Burst, 1))
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.Timeout,
		WriteTimeout:      opts.Timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/trainers/available", s.handleAvailableTrainers)
	mux.HandleFunc("GET /api/trainers/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/trainers/{id}/services", s.handleTrainerServices)

	mux.HandleFunc("POST /api/bookings/validate", s.handleValidateBooking)
	mux.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/bookings", s.handleListBookings)
	mux.HandleFunc("GET /api/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("POST /api/bookings/{id}/confirm", s.handleTransition(model.StatusConfirmed))
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.handleTransition(model.StatusCancelled))
	mux.HandleFunc("POST /api/bookings/{id}/complete", s.handleTransition(model.StatusCompleted))
	mux.HandleFunc("GET /api/members/me/bookings", s.handleMyBookings)

	mux.HandleFunc("GET /api/reports/daily", s.handleDailyReport)
	mux.HandleFunc("GET /api/reports/daily.xlsx", s.handleDailyReportXLSX)

	var h http.Handler = routed(mux)
	h = s.withTimeout(h)
	h = s.withRateLimit(h)
	h = s.withAPIKey(h)
	h = s.withAccessLog(h)
	h = withRequestID(h)
	h = s.withRecovery(h)
	return h
}

// Handler returns the fully wrapped API handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error    string                     `json:"error"`
	Kind     booking.Kind               `json:"kind,omitempty"`
	Windows  []model.AvailabilityWindow `json:"windows,omitempty"`
	Conflict *timeRange                 `json:"conflict,omitempty"`
}

type timeRange struct {
	Start model.TimeOfDay `json:"start"`
	End   model.TimeOfDay `json:"end"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps scheduler errors to responses. Rejections carry
// their kind; anything unexpected is logged and hidden behind a 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := booking.AsRejection(err); ok {
		resp := errorResponse{Error: rej.Message, Kind: rej.Kind, Windows: rej.Windows}
		if rej.Conflict != nil {
			resp.Conflict = &timeRange{Start: rej.Conflict.Start, End: rej.Conflict.End}
		}
		status := http.StatusUnprocessableEntity
		if rej.Kind == booking.KindSlotConflict || rej.Kind == booking.KindInvalidTransition {
			status = http.StatusConflict
		}
		writeJSON(w, status, resp)
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified concurrently; retry")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
