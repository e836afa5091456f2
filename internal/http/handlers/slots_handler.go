package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/palmbay/experience-bookings/internal/http/response"
	"github.com/palmbay/experience-bookings/internal/service"
)

// SlotsHandler serves availability and quotes. Both are public reads; no
// authentication required.
type SlotsHandler struct {
	lifecycle service.LifecycleService
}

func NewSlotsHandler(lifecycle service.LifecycleService) *SlotsHandler {
	return &SlotsHandler{lifecycle: lifecycle}
}

func (h *SlotsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}/availability", h.availability)
	r.Get("/{id}/quote", h.quote)
	return r
}

func (h *SlotsHandler) availability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	availability, err := h.lifecycle.SlotAvailability(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (h *SlotsHandler) quote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	adults, _ := strconv.Atoi(q.Get("adults"))
	children, _ := strconv.Atoi(q.Get("children"))

	quote, err := h.lifecycle.QuoteSlot(r.Context(), id, adults, children, q.Get("currency"))
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
