package api

import (
	"bytes"
	"net/http"
	"strconv"

	"gymbooking/internal/booking"
	"gymbooking/internal/model"
	"gymbooking/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) reportFor(w http.ResponseWriter, r *http.Request) (report.Daily, bool) {
	id, ok := caller(w, r)
	if !ok {
		return report.Daily{}, false
	}
	if id.Role != booking.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin only")
		return report.Daily{}, false
	}
	date, ok := queryDate(r, model.DateOf(s.svc.Now()))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return report.Daily{}, false
	}

	d, err := s.svc.DailyReport(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return report.Daily{}, false
	}
	return d, true
}

// GET /api/reports/daily?date=YYYY-MM-DD
func (s *HTTPServer) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	d, ok := s.reportFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /api/reports/daily.xlsx?date=YYYY-MM-DD
func (s *HTTPServer) handleDailyReportXLSX(w http.ResponseWriter, r *http.Request) {
	d, ok := s.reportFor(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, d); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(d.Date)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
