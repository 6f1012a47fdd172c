package api

import (
	"net/http"
	"slices"
	"strconv"

	"gymbooking/internal/model"
)

// SlotsResponse is the response for GET /api/trainers/{id}/slots.
type SlotsResponse struct {
	Date      model.Date        `json:"date"`
	TrainerID int64             `json:"trainer_id"`
	ServiceID int64             `json:"service_id"`
	Slots     []model.TimeOfDay `json:"slots"`
}

// handleSlots lists free start times.
// GET /api/trainers/{id}/slots?date=YYYY-MM-DD&service_id=N
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trainer id")
		return
	}
	date, ok := queryDate(r, model.Date{})
	if !ok {
		writeError(w, http.StatusBadRequest, "date is required; expected YYYY-MM-DD")
		return
	}
	serviceID, err := strconv.ParseInt(r.URL.Query().Get("service_id"), 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}

	seq, err := s.svc.ResolveFreeSlots(r.Context(), trainerID, date, serviceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		Date:      date,
		TrainerID: trainerID,
		ServiceID: serviceID,
		Slots:     slices.AppendSeq([]model.TimeOfDay{}, seq),
	})
}

// handleAvailableTrainers lists active trainers working on a date.
// GET /api/trainers/available?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailableTrainers(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(r, model.DateOf(s.svc.Now()))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	trainers, err := s.svc.TrainersAvailableOn(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trainers)
}

// GET /api/trainers/{id}/services
func (s *HTTPServer) handleTrainerServices(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trainer id")
		return
	}

	services, err := s.svc.ServicesForTrainer(r.Context(), trainerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}
