package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gymbooking/internal/booking"
	"gymbooking/internal/clock"
	"gymbooking/internal/config"
	"gymbooking/internal/database"
	"gymbooking/internal/model"
	"gymbooking/internal/report"
	"gymbooking/internal/scheduler"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testAPIKey = "valid-key"

// Monday 2 March 2026, 14:00.
var testNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func testCatalog() *config.Catalog {
	return &config.Catalog{
		Services: []config.ServiceConfig{
			{ID: 1, Name: "Personal training", Category: "personal", DurationMinutes: 60, Price: 50000, IsActive: true},
			{ID: 2, Name: "Boxing", Category: "boxing", DurationMinutes: 60, Price: 40000, IsActive: false},
		},
		Trainers: []config.TrainerConfig{
			{
				ID: 10, FirstName: "Ayse", LastName: "Kaya", SessionFee: 15000,
				WorkStart: "09:00", WorkEnd: "18:00", IsActive: true, Services: []int64{1, 2},
				Windows: []config.WindowConfig{
					{Day: 1, Start: "09:00", End: "12:00"},
					{Day: 1, Start: "13:00", End: "18:00"},
				},
			},
		},
	}
}

func newTestServer(t *testing.T, opts Options) *HTTPServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SyncCatalog(context.Background(), testCatalog()))

	svc := scheduler.NewService(scheduler.Deps{
		Catalog:      db,
		Availability: db,
		Bookings:     db,
		Clock:        clock.NewFixed(testNow),
		Logger:       logger,
	})

	if opts.APIKey == "" {
		opts.APIKey = testAPIKey
	}
	return NewHTTPServer(svc, opts, logger)
}

type actor struct {
	member string
	role   booking.Role
}

var (
	alice   = actor{member: "alice"}
	bob     = actor{member: "bob"}
	trainer = actor{member: "coach", role: booking.RoleTrainer}
	admin   = actor{role: booking.RoleAdmin}
)

func do(t *testing.T, s *HTTPServer, who actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	if who.member != "" {
		req.Header.Set("X-Member-Id", who.member)
	}
	if who.role != "" {
		req.Header.Set("X-Role", string(who.role))
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func bookingBody(date, start string) map[string]any {
	return map[string]any{"trainer_id": 10, "service_id": 1, "date": date, "start": start}
}

func createBooking(t *testing.T, s *HTTPServer, who actor, date, start string) model.Booking {
	t.Helper()
	w := do(t, s, who, http.MethodPost, "/api/bookings", bookingBody(date, start))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Booking](t, w)
}

func TestHandleSlots(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, alice, http.MethodGet, "/api/trainers/10/slots?date=2026-03-09&service_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[SlotsResponse](t, w)
	assert.Equal(t, int64(10), resp.TrainerID)
	assert.Equal(t, "2026-03-09", resp.Date.String())
	require.Len(t, resp.Slots, 14)
	assert.Equal(t, "09:00", resp.Slots[0].String())
	assert.Equal(t, "11:00", resp.Slots[4].String())
	assert.Equal(t, "13:00", resp.Slots[5].String())
	assert.Equal(t, "17:00", resp.Slots[13].String())

	w = do(t, s, alice, http.MethodGet, "/api/trainers/10/slots?date=2026-03-01&service_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slots":[]`)
}

func TestHandleSlots_Errors(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
		wantKind   booking.Kind
	}{
		{"bad trainer id", "/api/trainers/abc/slots?date=2026-03-09&service_id=1", http.StatusBadRequest, "invalid trainer id", ""},
		{"missing date", "/api/trainers/10/slots?service_id=1", http.StatusBadRequest, "date is required; expected YYYY-MM-DD", ""},
		{"bad date", "/api/trainers/10/slots?date=09-03-2026&service_id=1", http.StatusBadRequest, "date is required; expected YYYY-MM-DD", ""},
		{"missing service", "/api/trainers/10/slots?date=2026-03-09", http.StatusBadRequest, "service_id is required", ""},
		{"inactive service", "/api/trainers/10/slots?date=2026-03-09&service_id=2", http.StatusUnprocessableEntity, "", booking.KindInvalidService},
		{"unknown trainer", "/api/trainers/99/slots?date=2026-03-09&service_id=1", http.StatusUnprocessableEntity, "", booking.KindInvalidTrainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, alice, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode[errorResponse](t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			assert.Equal(t, tt.wantKind, resp.Kind)
		})
	}
}

func TestHandleTrainers(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, alice, http.MethodGet, "/api/trainers/available?date=2026-03-09", nil)
	require.Equal(t, http.StatusOK, w.Code)
	avail := decode[[]scheduler.TrainerAvailability](t, w)
	require.Len(t, avail, 1)
	assert.Equal(t, "Ayse", avail[0].Trainer.FirstName)
	assert.Len(t, avail[0].Windows, 2)

	w = do(t, s, alice, http.MethodGet, "/api/trainers/available?date=2026-03-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, s, alice, http.MethodGet, "/api/trainers/10/services", nil)
	require.Equal(t, http.StatusOK, w.Code)
	services := decode[[]model.Service](t, w)
	require.Len(t, services, 1)
	assert.Equal(t, "Personal training", services[0].Name)

	w = do(t, s, alice, http.MethodGet, "/api/trainers/99/services", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleCreateBooking(t *testing.T) {
	s := newTestServer(t, Options{})

	body := bookingBody("2026-03-09", "10:00")
	body["member_id"] = "mallory"
	w := do(t, s, alice, http.MethodPost, "/api/bookings", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	b := decode[model.Booking](t, w)
	assert.Equal(t, "alice", b.MemberID, "members always book for themselves")
	assert.Equal(t, "11:00", b.End.String())
	assert.Equal(t, int64(65000), b.PriceMinor)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.NotEmpty(t, b.Reference)
	assert.Equal(t, "/api/bookings/1", w.Header().Get("Location"))

	t.Run("overlap", func(t *testing.T) {
		w := do(t, s, bob, http.MethodPost, "/api/bookings", bookingBody("2026-03-09", "10:30"))
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decode[errorResponse](t, w)
		assert.Equal(t, booking.KindSlotConflict, resp.Kind)
		require.NotNil(t, resp.Conflict)
		assert.Equal(t, "10:00", resp.Conflict.Start.String())
		assert.Equal(t, "11:00", resp.Conflict.End.String())
	})

	t.Run("outside hours", func(t *testing.T) {
		w := do(t, s, bob, http.MethodPost, "/api/bookings", bookingBody("2026-03-09", "11:30"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decode[errorResponse](t, w)
		assert.Equal(t, booking.KindOutsideWorkingHours, resp.Kind)
		assert.Len(t, resp.Windows, 2)
	})

	t.Run("past time", func(t *testing.T) {
		w := do(t, s, bob, http.MethodPost, "/api/bookings", bookingBody("2026-03-02", "13:00"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, booking.KindPastTime, decode[errorResponse](t, w).Kind)
	})

	t.Run("staff books for a member", func(t *testing.T) {
		body := bookingBody("2026-03-09", "15:00")
		body["member_id"] = "carol"
		w := do(t, s, admin, http.MethodPost, "/api/bookings", body)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "carol", decode[model.Booking](t, w).MemberID)
	})

	t.Run("bad bodies", func(t *testing.T) {
		w := do(t, s, bob, http.MethodPost, "/api/bookings", `{"trainer_id":10,"colour":"red"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid JSON body", decode[errorResponse](t, w).Error)

		w = do(t, s, bob, http.MethodPost, "/api/bookings", map[string]any{"trainer_id": 10})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, s, admin, http.MethodPost, "/api/bookings", bookingBody("2026-03-09", "16:00"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "member_id is required", decode[errorResponse](t, w).Error)
	})
}

func TestHandleValidateBooking(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, alice, http.MethodPost, "/api/bookings/validate", bookingBody("2026-03-09", "09:00"))
	require.Equal(t, http.StatusOK, w.Code)
	draft := decode[model.Booking](t, w)
	assert.Zero(t, draft.ID)
	assert.Equal(t, "10:00", draft.End.String())

	// Nothing was stored.
	w = do(t, s, alice, http.MethodGet, "/api/members/me/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleGetBooking(t *testing.T) {
	s := newTestServer(t, Options{})
	b := createBooking(t, s, alice, "2026-03-09", "10:00")
	path := "/api/bookings/1"

	assert.Equal(t, http.StatusOK, do(t, s, alice, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, trainer, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, bob, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, alice, http.MethodGet, "/api/bookings/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, alice, http.MethodGet, "/api/bookings/x", nil).Code)

	got := decode[model.Booking](t, do(t, s, alice, http.MethodGet, path, nil))
	assert.Equal(t, b.Reference, got.Reference)
}

func TestHandleTransition(t *testing.T) {
	s := newTestServer(t, Options{})
	createBooking(t, s, alice, "2026-03-09", "10:00")

	w := do(t, s, alice, http.MethodPost, "/api/bookings/1/confirm", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "members cannot confirm")

	w = do(t, s, trainer, http.MethodPost, "/api/bookings/1/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusConfirmed, decode[model.Booking](t, w).Status)

	w = do(t, s, alice, http.MethodPost, "/api/bookings/1/cancel", map[string]string{"reason": "sick"})
	assert.Equal(t, http.StatusForbidden, w.Code, "confirmed bookings are cancelled by staff")

	w = do(t, s, bob, http.MethodPost, "/api/bookings/1/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, admin, http.MethodPost, "/api/bookings/1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decode[model.Booking](t, w)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, booking.DefaultStaffCancelReason, cancelled.CancelReason)

	w = do(t, s, admin, http.MethodPost, "/api/bookings/1/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, booking.KindInvalidTransition, decode[errorResponse](t, w).Kind)

	w = do(t, s, admin, http.MethodPost, "/api/bookings/7/confirm", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, admin, http.MethodPost, "/api/bookings/1/cancel", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTransition_MemberCancel(t *testing.T) {
	s := newTestServer(t, Options{})
	createBooking(t, s, alice, "2026-03-09", "10:00")

	w := do(t, s, alice, http.MethodPost, "/api/bookings/1/cancel", map[string]string{"reason": "travelling"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "travelling", decode[model.Booking](t, w).CancelReason)

	// The slot is free again.
	createBooking(t, s, bob, "2026-03-09", "10:00")
}

func TestHandleListBookings(t *testing.T) {
	s := newTestServer(t, Options{})
	createBooking(t, s, alice, "2026-03-09", "09:00")
	createBooking(t, s, bob, "2026-03-09", "13:00")
	createBooking(t, s, alice, "2026-03-16", "09:00")

	assert.Equal(t, http.StatusForbidden, do(t, s, alice, http.MethodGet, "/api/bookings", nil).Code)

	w := do(t, s, admin, http.MethodGet, "/api/bookings?from=2026-03-09&to=2026-03-09", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Booking](t, w), 2)

	w = do(t, s, trainer, http.MethodGet, "/api/bookings?member_id=alice&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Booking](t, w), 1)

	for _, q := range []string{"status=lost", "from=tomorrow", "from=2026-03-10&to=2026-03-09", "limit=many", "trainer_id=x"} {
		w := do(t, s, admin, http.MethodGet, "/api/bookings?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w = do(t, s, alice, http.MethodGet, "/api/members/me/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[[]model.Booking](t, w)
	require.Len(t, mine, 2)
	assert.Equal(t, "2026-03-16", mine[0].Date.String())

	w = do(t, s, admin, http.MethodGet, "/api/members/me/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleDailyReport(t *testing.T) {
	s := newTestServer(t, Options{})
	createBooking(t, s, alice, "2026-03-09", "09:00")
	createBooking(t, s, bob, "2026-03-09", "13:00")

	assert.Equal(t, http.StatusForbidden, do(t, s, trainer, http.MethodGet, "/api/reports/daily?date=2026-03-09", nil).Code)

	w := do(t, s, admin, http.MethodGet, "/api/reports/daily?date=2026-03-09", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[report.Daily](t, w)
	assert.Equal(t, 2, d.Total)
	assert.Equal(t, 2, d.Pending)

	w = do(t, s, admin, http.MethodGet, "/api/reports/daily.xlsx?date=2026-03-09", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bookings_2026-03-09.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Bookings")

	// Without a date the report covers today.
	w = do(t, s, admin, http.MethodGet, "/api/reports/daily", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-02", decode[report.Daily](t, w).Date.String())
}

func TestMiddleware_APIKey(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/trainers/10/services", nil)
	req.Header.Set("X-Member-Id", "alice")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid api key", decode[errorResponse](t, w).Error)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestMiddleware_Identity(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, actor{}, http.MethodGet, "/api/members/me/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, actor{member: "alice", role: "owner"}, http.MethodGet, "/api/members/me/bookings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid X-Role header", decode[errorResponse](t, w).Error)
}

func TestMiddleware_RequestID(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/trainers/10/services", nil)
	req.Header.Set("X-Api-Key", testAPIKey)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}

func TestMiddleware_RateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, s, alice, http.MethodGet, "/api/trainers/10/services", nil).Code)
	}
	w := do(t, s, alice, http.MethodGet, "/api/trainers/10/services", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Buckets are per client.
	assert.Equal(t, http.StatusOK, do(t, s, bob, http.MethodGet, "/api/trainers/10/services", nil).Code)
}

func TestMiddleware_Recovery(t *testing.T) {
	s := newTestServer(t, Options{})
	h := s.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddleware_UnknownRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, s, alice, http.MethodGet, "/api/nothing", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, alice, http.MethodDelete, "/api/bookings/1", nil).Code)
}

func TestClientLimiter_ForgetsIdleClients(t *testing.T) {
	l := newClientLimiter(1, 1)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("a", start))
	assert.False(t, l.allow("a", start))
	assert.True(t, l.allow("a", start.Add(time.Second)))

	l.allow("b", start.Add(limiterIdleTTL+2*time.Second))
	assert.NotContains(t, l.clients, "a")
	assert.Contains(t, l.clients, "b")
}
