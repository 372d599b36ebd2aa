package handler

import (
	"net/http"
	"strconv"

	"github.com/seatly/seatly/internal/service"
)

// AvailabilityHandler handles availability query HTTP requests.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler creates a new handler wired to the
// availability service.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// GetAvailability handles
// GET /api/reservations/availability?restaurant_id=&date=&party_size=
//
// Returns the per-slot list of free table ids for the given day and
// party size. Served from cache when a fresh snapshot exists.
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	restaurantID, err := strconv.ParseInt(q.Get("restaurant_id"), 10, 64)
	if err != nil || restaurantID <= 0 {
		writeError(w, service.ErrValidation)
		return
	}
	partySize, err := strconv.Atoi(q.Get("party_size"))
	if err != nil {
		writeError(w, service.ErrValidation)
		return
	}

	snapshot, err := h.availability.GetAvailability(r.Context(), restaurantID, q.Get("date"), partySize)
	if err != nil {
		writeError(w, err)
		return
	}
	// The data payload is the bare per-slot list; request parameters are
	// not echoed back.
	writeJSON(w, http.StatusOK, snapshot)
}
