package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/seatly/seatly/internal/model"
	"github.com/seatly/seatly/internal/repository"
	"github.com/seatly/seatly/internal/service"
)

// ReservationHandler handles reservation HTTP requests.
type ReservationHandler struct {
	reservations *service.ReservationService
}

// NewReservationHandler creates a new handler wired to the reservation
// service.
func NewReservationHandler(reservations *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// Create handles POST /api/reservations
//
// Books a table for the requested restaurant, date, slot and party
// size. The service picks the smallest table that fits.
//
// Response codes:
//
//	201  — Reservation created (status pending)
//	400  — Malformed body or business-rule violation
//	404  — Restaurant not found
//	409  — No availability, user conflict, capacity, or lost race
//	423  — Slot locked by a concurrent request (retryable)
//	504  — Timed out under contention (retryable)
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, service.ErrValidation)
		return
	}

	res, err := h.reservations.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Get handles GET /api/reservations/{id}?date=YYYY-MM-DD
//
// The date is required: reservations are partitioned by date, and every
// point lookup carries both halves of the primary key.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.reservations.Get(r.Context(), id, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Confirm handles POST /api/reservations/{id}/confirm
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reservations.Confirm)
}

// Cancel handles POST /api/reservations/{id}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reservations.Cancel)
}

// CheckIn handles POST /api/reservations/{id}/checkin
func (h *ReservationHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reservations.CheckIn)
}

// Complete handles POST /api/reservations/{id}/complete
func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reservations.Complete)
}

// NoShow handles POST /api/reservations/{id}/no-show
func (h *ReservationHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reservations.MarkNoShow)
}

// transition runs one lifecycle change. The date identifying the
// partition comes from the JSON body ({"date": "YYYY-MM-DD"}); the date
// query parameter is accepted as a fallback.
func (h *ReservationHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, string) (*model.Reservation, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	var body struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Date != "" {
		date = body.Date
	}
	res, err := op(r.Context(), id, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListByUser handles GET /api/reservations/user/{userId}
//
// Optional filters: status, start_date, end_date. Newest first.
func (h *ReservationHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	q := r.URL.Query()
	out, err := h.reservations.ListByUser(r.Context(), userID, repository.UserListFilter{
		Status:    model.ReservationStatus(q.Get("status")),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListByRestaurant handles GET /api/reservations/restaurant/{restaurantId}
//
// Optional filters: date, status. Service order (date asc, slot asc).
func (h *ReservationHandler) ListByRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathID(w, r, "restaurantId")
	if !ok {
		return
	}
	q := r.URL.Query()
	out, err := h.reservations.ListByRestaurant(r.Context(), restaurantID, repository.RestaurantListFilter{
		Date:   q.Get("date"),
		Status: model.ReservationStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// pathID extracts a positive integer path variable, writing a
// VALIDATION_ERROR response when it is absent or malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, service.ErrValidation)
		return 0, false
	}
	return id, true
}
