package handler

import (
	"fmt"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/service"
)

type createRentRequest struct {
	UserID     int64  `json:"userId"`
	CarID      int64  `json:"carId"`
	StartDate  string `json:"startDate"`
	ReturnDate string `json:"returnDate"`
}

type rentPatchRequest struct {
	Notes             *string  `json:"notes"`
	AdditionalCharges *float64 `json:"additionalCharges"`
}

func (p rentPatchRequest) toModel() (model.RentPatch, error) {
	patch := model.RentPatch{Notes: p.Notes}
	if p.AdditionalCharges != nil {
		v := *p.AdditionalCharges
		if math.IsNaN(v) || v < 0 || v > service.FromCents(service.MaxChargeCents) {
			return patch, fmt.Errorf("%w: additionalCharges must be between 0 and %.2f",
				model.ErrInvalidInput, service.FromCents(service.MaxChargeCents))
		}
		cents := service.ToCents(v)
		patch.AdditionalChargesCents = &cents
	}
	return patch, nil
}

type rentResponse struct {
	ID                int64   `json:"id"`
	CarID             int64   `json:"carId"`
	UserID            int64   `json:"userId"`
	StartDate         string  `json:"startDate"`
	ReturnDate        string  `json:"returnDate"`
	ActualReturnDate  *string `json:"actualReturnDate,omitempty"`
	Status            string  `json:"status"`
	Price             float64 `json:"price"`
	AdditionalCharges float64 `json:"additionalCharges"`
	Notes             string  `json:"notes,omitempty"`
	CreatedAt         string  `json:"createdAt"`
}

func newRentResponse(r *model.Rent) rentResponse {
	resp := rentResponse{
		ID:                r.ID,
		CarID:             r.CarID,
		UserID:            r.UserID,
		StartDate:         formatTime(r.StartDate),
		ReturnDate:        formatTime(r.ReturnDate),
		Status:            string(r.Status),
		Price:             service.FromCents(r.PriceCents),
		AdditionalCharges: service.FromCents(r.AdditionalChargesCents),
		Notes:             r.Notes,
		CreatedAt:         formatTime(r.CreatedAt),
	}
	if r.ActualReturnDate != nil {
		s := formatTime(*r.ActualReturnDate)
		resp.ActualReturnDate = &s
	}
	return resp
}

type createRentResponse struct {
	Rent       rentResponse `json:"rent"`
	TotalPrice float64      `json:"totalPrice"`
}

type completeRentResponse struct {
	DaysLate   int64        `json:"daysLate"`
	LateFee    float64      `json:"lateFee"`
	TotalPrice float64      `json:"totalPrice"`
	CarTier    int          `json:"carTier"`
	Rent       rentResponse `json:"rent"`
}

// CreateRent бронирует автомобиль.
func (h *Handler) CreateRent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req createRentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode create rent request error")
		return
	}

	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		h.writeError(w, err, "parse start date error")
		return
	}
	end, err := parseDate("returnDate", req.ReturnDate)
	if err != nil {
		h.writeError(w, err, "parse return date error")
		return
	}

	rent, err := h.service.CreateRent(r.Context(), actor, service.CreateRentInput{
		UserID:     req.UserID,
		CarID:      req.CarID,
		StartDate:  start,
		ReturnDate: end,
	})
	if err != nil {
		h.writeError(w, err, "create rent error", zap.Stringer("actor", actor), zap.Int64("carID", req.CarID))
		return
	}

	h.writeJSON(w, http.StatusCreated, createRentResponse{
		Rent:       newRentResponse(rent),
		TotalPrice: service.FromCents(rent.PriceCents),
	})
}

// GetRent возвращает аренду.
func (h *Handler) GetRent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse rent id error")
		return
	}

	rent, err := h.service.GetRent(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err, "get rent error", zap.Int64("rentID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newRentResponse(rent))
}

// ListRents возвращает аренды, видимые инициатору.
func (h *Handler) ListRents(w http.ResponseWriter, r *http.Request) {
	h.listRents(w, r, nil)
}

// ListCarRents возвращает аренды автомобиля, видимые инициатору.
func (h *Handler) ListCarRents(w http.ResponseWriter, r *http.Request) {
	carID, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse car id error")
		return
	}
	h.listRents(w, r, &carID)
}

func (h *Handler) listRents(w http.ResponseWriter, r *http.Request, carID *int64) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	rents, err := h.service.ListRents(r.Context(), actor, carID)
	if err != nil {
		h.writeError(w, err, "list rents error", zap.Stringer("actor", actor))
		return
	}

	resp := make([]rentResponse, 0, len(rents))
	for i := range rents {
		resp = append(resp, newRentResponse(&rents[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateRent изменяет заметки и дополнительные сборы аренды.
func (h *Handler) UpdateRent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse rent id error")
		return
	}

	var req rentPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode update rent request error")
		return
	}
	patch, err := req.toModel()
	if err != nil {
		h.writeError(w, err, "parse rent patch error")
		return
	}

	rent, err := h.service.UpdateRent(r.Context(), actor, id, patch)
	if err != nil {
		h.writeError(w, err, "update rent error", zap.Int64("rentID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newRentResponse(rent))
}

// DeleteRent отменяет ожидающую аренду.
func (h *Handler) DeleteRent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse rent id error")
		return
	}

	if err := h.service.DeleteRent(r.Context(), actor, id); err != nil {
		h.writeError(w, err, "delete rent error", zap.Int64("rentID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CompleteRent завершает аренду и возвращает расчёт штрафа.
// Тело запроса необязательно.
func (h *Handler) CompleteRent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse rent id error")
		return
	}

	var req rentPatchRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, err, "decode complete rent request error")
		return
	}
	patch, err := req.toModel()
	if err != nil {
		h.writeError(w, err, "parse rent patch error")
		return
	}

	res, err := h.service.CompleteRent(r.Context(), actor, id, patch)
	if err != nil {
		h.writeError(w, err, "complete rent error", zap.Int64("rentID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, completeRentResponse{
		DaysLate:   res.DaysLate,
		LateFee:    service.FromCents(res.LateFeeCents),
		TotalPrice: service.FromCents(res.TotalPriceCents),
		CarTier:    res.CarTier,
		Rent:       newRentResponse(&res.Rent),
	})
}

// ConfirmRent подтверждает ожидающую аренду.
func (h *Handler) ConfirmRent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse rent id error")
		return
	}

	rent, err := h.service.ConfirmRent(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err, "confirm rent error", zap.Int64("rentID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newRentResponse(rent))
}
