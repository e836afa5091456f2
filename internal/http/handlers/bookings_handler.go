package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/http/response"
	"github.com/palmbay/experience-bookings/internal/service"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

type BookingsHandler struct {
	lifecycle    service.LifecycleService
	discounts    service.DiscountService
	cancellation service.CancellationService
	jwtSecret    string
}

func NewBookingsHandler(
	lifecycle service.LifecycleService,
	discounts service.DiscountService,
	cancellation service.CancellationService,
	jwtSecret string,
) *BookingsHandler {
	return &BookingsHandler{
		lifecycle:    lifecycle,
		discounts:    discounts,
		cancellation: cancellation,
		jwtSecret:    jwtSecret,
	}
}

func (h *BookingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireJWT(h.jwtSecret, ""))
	r.Post("/", h.create)
	r.Get("/", h.listMine)
	r.Get("/{id}", h.getByID)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/discounts", h.applyDiscounts)
	r.Delete("/{id}", h.cancel)
	return r
}

type createBookingReq struct {
	ExperienceID int64  `json:"experience_id"`
	SlotID       int64  `json:"slot_id"`
	Adults       int    `json:"adults"`
	Children     int    `json:"children"`
	Currency     string `json:"currency"`
	ReferralCode string `json:"referral_code"`
}

func (h *BookingsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in createBookingReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	claims := claimsFrom(r)

	result, err := h.lifecycle.CreateBooking(r.Context(), &service.CreateBookingRequest{
		UserID:         claims.Sub,
		UserEmail:      claims.Email,
		ExperienceID:   in.ExperienceID,
		SlotID:         in.SlotID,
		Adults:         in.Adults,
		Children:       in.Children,
		Currency:       in.Currency,
		ReferralCode:   in.ReferralCode,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "Create booking failed", "error", err)
		response.FromDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result.Booking)
}

func (h *BookingsHandler) listMine(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	// Admins can list across users by status.
	if raw := r.URL.Query().Get("status"); raw != "" && claims.Role == "admin" {
		status, ok := domain.ParseBookingStatus(raw)
		if !ok {
			response.BadRequest(w, "unknown status")
			return
		}
		bookings, err := h.lifecycle.ListBookingsByStatus(r.Context(), status, limit, offset)
		if err != nil {
			response.FromDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bookings)
		return
	}

	bookings, err := h.lifecycle.ListUserBookings(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		logger.ErrorContext(r.Context(), "List bookings failed", "error", err)
		response.FromDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *BookingsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.lifecycle.GetBooking(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	claims := claimsFrom(r)
	if booking.UserID != claims.Sub && claims.Role != "admin" {
		response.Forbidden(w, "not your booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *BookingsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.lifecycle.ConfirmBooking(r.Context(), id)
	if err != nil {
		logger.ErrorContext(r.Context(), "Confirm booking failed", "error", err, "booking_id", id)
		response.FromDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type applyDiscountsReq struct {
	ReferralCode string   `json:"referral_code"`
	CouponCodes  []string `json:"coupon_codes"`
}

func (h *BookingsHandler) applyDiscounts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in applyDiscountsReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	booking, err := h.lifecycle.GetBooking(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	claims := claimsFrom(r)
	if booking.UserID != claims.Sub && claims.Role != "admin" {
		response.Forbidden(w, "not your booking")
		return
	}

	updated, err := h.discounts.ApplyToBooking(r.Context(), id, &service.DiscountRequest{
		UserID:        booking.UserID,
		ExperienceID:  booking.ExperienceID,
		PurchaseCents: booking.SubtotalCents,
		ReferralCode:  in.ReferralCode,
		CouponCodes:   in.CouponCodes,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "Apply discounts failed", "error", err, "booking_id", id)
		response.FromDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *BookingsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in cancelReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}

	booking, err := h.lifecycle.GetBooking(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, err)
		return
	}
	claims := claimsFrom(r)
	if booking.UserID != claims.Sub && claims.Role != "admin" {
		response.Forbidden(w, "not your booking")
		return
	}

	cancelled, err := h.cancellation.CancelBooking(r.Context(), id, in.Reason)
	if err != nil {
		logger.ErrorContext(r.Context(), "Cancel booking failed", "error", err, "booking_id", id)
		response.FromDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
