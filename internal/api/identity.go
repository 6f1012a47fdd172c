package api

import (
	"errors"
	"net/http"
	"strconv"

	"gymbooking/internal/booking"
	"gymbooking/internal/model"
)

// identity is the caller as asserted by the upstream auth layer.
type identity struct {
	MemberID string
	Role     booking.Role
}

var (
	errMissingMember = errors.New("missing X-Member-Id header")
	errInvalidRole   = errors.New("invalid X-Role header")
)

// identify reads the caller from X-Member-Id and X-Role. The role defaults
// to member, and members must name themselves.
func identify(r *http.Request) (identity, error) {
	id := identity{
		MemberID: r.Header.Get("X-Member-Id"),
		Role:     booking.Role(r.Header.Get("X-Role")),
	}
	if id.Role == "" {
		id.Role = booking.RoleMember
	}
	if !id.Role.Valid() {
		return identity{}, errInvalidRole
	}
	if id.Role == booking.RoleMember && id.MemberID == "" {
		return identity{}, errMissingMember
	}
	return id, nil
}

// caller resolves the identity or writes the error response.
func caller(w http.ResponseWriter, r *http.Request) (identity, bool) {
	id, err := identify(r)
	switch {
	case errors.Is(err, errMissingMember):
		writeError(w, http.StatusUnauthorized, err.Error())
		return identity{}, false
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return identity{}, false
	}
	return id, true
}

func (id identity) owns(b model.Booking) bool {
	return id.Role.IsStaff() || b.MemberID == id.MemberID
}

func pathID(r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return v, err == nil && v > 0
}

// queryDate parses ?date=, falling back to fallback when absent.
func queryDate(r *http.Request, fallback model.Date) (model.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return fallback, !fallback.IsZero()
	}
	d, err := model.ParseDate(raw)
	return d, err == nil
}
