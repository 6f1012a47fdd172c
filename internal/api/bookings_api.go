package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gymbooking/internal/booking"
	"gymbooking/internal/model"
)

// bookingRequest decodes a booking request body. Members always book for
// themselves; staff name the member in the body.
func (s *HTTPServer) bookingRequest(w http.ResponseWriter, r *http.Request) (booking.Request, bool) {
	id, ok := caller(w, r)
	if !ok {
		return booking.Request{}, false
	}

	var req booking.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return booking.Request{}, false
	}

	if id.Role == booking.RoleMember || req.MemberID == "" {
		req.MemberID = id.MemberID
	}
	switch {
	case req.MemberID == "":
		writeError(w, http.StatusBadRequest, "member_id is required")
		return booking.Request{}, false
	case req.TrainerID <= 0 || req.ServiceID <= 0 || req.Date.IsZero():
		writeError(w, http.StatusBadRequest, "trainer_id, service_id and date are required")
		return booking.Request{}, false
	}
	return req, true
}

// handleValidateBooking returns the booking that would be created.
// POST /api/bookings/validate
func (s *HTTPServer) handleValidateBooking(w http.ResponseWriter, r *http.Request) {
	req, ok := s.bookingRequest(w, r)
	if !ok {
		return
	}

	draft, err := s.svc.ValidateAndDraftBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	req, ok := s.bookingRequest(w, r)
	if !ok {
		return
	}

	b, err := s.svc.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/bookings/%d", b.ID))
	writeJSON(w, http.StatusCreated, b)
}

// handleGetBooking returns one booking. Members only see their own.
// GET /api/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	b, err := s.svc.GetBooking(r.Context(), bookingID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !id.owns(b) {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/members/me/bookings
func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if id.MemberID == "" {
		writeError(w, http.StatusUnauthorized, errMissingMember.Error())
		return
	}

	bookings, err := s.svc.MemberBookings(r.Context(), id.MemberID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// handleListBookings lists bookings for staff.
// GET /api/bookings?from=&to=&status=&trainer_id=&member_id=&limit=&offset=
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if !id.Role.IsStaff() {
		writeError(w, http.StatusForbidden, "staff only")
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := s.svc.ListBookings(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func parseFilter(r *http.Request) (model.BookingFilter, error) {
	q := r.URL.Query()
	var f model.BookingFilter
	var err error

	if v := q.Get("from"); v != "" {
		if f.From, err = model.ParseDate(v); err != nil {
			return f, errors.New("invalid from; expected YYYY-MM-DD")
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = model.ParseDate(v); err != nil {
			return f, errors.New("invalid to; expected YYYY-MM-DD")
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, errors.New("from must be before or equal to to")
	}
	if v := q.Get("status"); v != "" {
		f.Status = model.Status(v)
		if !f.Status.Valid() {
			return f, fmt.Errorf("unknown status %q", v)
		}
	}
	if v := q.Get("trainer_id"); v != "" {
		if f.TrainerID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, errors.New("invalid trainer_id")
		}
	}
	f.MemberID = q.Get("member_id")
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, errors.New("invalid limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, errors.New("invalid offset")
		}
	}
	return f, nil
}

type transitionRequest struct {
	Reason string `json:"reason,omitempty"`
	Note   string `json:"note,omitempty"`
}

// handleTransition moves a booking to target. The body is optional.
// POST /api/bookings/{id}/confirm|cancel|complete
func (s *HTTPServer) handleTransition(target model.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		bookingID, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid booking id")
			return
		}

		var body transitionRequest
		if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		current, err := s.svc.GetBooking(r.Context(), bookingID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if !id.owns(current) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}

		lc := s.svc.Lifecycle()
		if lc.CanTransition(current.Status, target) && !lc.Permits(id.Role, current.Status, target) {
			writeError(w, http.StatusForbidden,
				fmt.Sprintf("%s may not change a %s booking to %s", id.Role, current.Status, target))
			return
		}

		updated, err := s.svc.ApplyTransition(r.Context(), bookingID, target, id.Role, body.Reason, body.Note)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}
