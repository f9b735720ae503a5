package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/service"
)

const defaultPageSize = 25

type createCarRequest struct {
	ProviderID      int64   `json:"providerId"`
	LicensePlate    string  `json:"licensePlate"`
	Brand           string  `json:"brand"`
	Model           string  `json:"model"`
	Type            string  `json:"type"`
	Color           string  `json:"color"`
	ManufactureDate string  `json:"manufactureDate"`
	DailyRate       float64 `json:"dailyRate"`
	Tier            int     `json:"tier"`
}

type updateCarRequest struct {
	Brand     *string  `json:"brand"`
	Model     *string  `json:"model"`
	Color     *string  `json:"color"`
	DailyRate *float64 `json:"dailyRate"`
	Tier      *int     `json:"tier"`
}

type carResponse struct {
	ID              int64   `json:"id"`
	ProviderID      int64   `json:"providerId"`
	LicensePlate    string  `json:"licensePlate"`
	Brand           string  `json:"brand"`
	Model           string  `json:"model"`
	Type            string  `json:"type"`
	Color           string  `json:"color"`
	ManufactureDate string  `json:"manufactureDate"`
	DailyRate       float64 `json:"dailyRate"`
	Tier            int     `json:"tier"`
	Available       bool    `json:"available"`
}

func newCarResponse(c *model.Car) carResponse {
	return carResponse{
		ID:              c.ID,
		ProviderID:      c.ProviderID,
		LicensePlate:    c.LicensePlate,
		Brand:           c.Brand,
		Model:           c.Model,
		Type:            string(c.Type),
		Color:           c.Color,
		ManufactureDate: formatTime(c.ManufactureDate),
		DailyRate:       service.FromCents(c.DailyRateCents),
		Tier:            c.Tier,
		Available:       c.Available,
	}
}

// CreateCar добавляет автомобиль в каталог.
func (h *Handler) CreateCar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req createCarRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode create car request error")
		return
	}

	manufactured, err := parseDate("manufactureDate", req.ManufactureDate)
	if err != nil {
		h.writeError(w, err, "parse manufacture date error")
		return
	}

	car, err := h.service.CreateCar(r.Context(), actor, service.CreateCarInput{
		ProviderID:      req.ProviderID,
		LicensePlate:    req.LicensePlate,
		Brand:           req.Brand,
		Model:           req.Model,
		Type:            req.Type,
		Color:           req.Color,
		ManufactureDate: manufactured,
		DailyRate:       req.DailyRate,
		Tier:            req.Tier,
	})
	if err != nil {
		h.writeError(w, err, "create car error", zap.Stringer("actor", actor))
		return
	}

	h.writeJSON(w, http.StatusCreated, newCarResponse(car))
}

// GetCar возвращает автомобиль по идентификатору.
func (h *Handler) GetCar(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse car id error")
		return
	}

	car, err := h.service.GetCar(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get car error", zap.Int64("carID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newCarResponse(car))
}

// ListCars возвращает страницу каталога.
// Параметры: providerId, available, maxTier, page (с 1), limit.
func (h *Handler) ListCars(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCarFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, err, "parse car filter error")
		return
	}

	cars, err := h.service.ListCars(r.Context(), filter)
	if err != nil {
		h.writeError(w, err, "list cars error")
		return
	}

	resp := make([]carResponse, 0, len(cars))
	for i := range cars {
		resp = append(resp, newCarResponse(&cars[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateCar изменяет автомобиль.
func (h *Handler) UpdateCar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse car id error")
		return
	}

	var req updateCarRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode update car request error")
		return
	}

	car, err := h.service.UpdateCar(r.Context(), actor, id, service.UpdateCarInput{
		Brand:     req.Brand,
		Model:     req.Model,
		Color:     req.Color,
		DailyRate: req.DailyRate,
		Tier:      req.Tier,
	})
	if err != nil {
		h.writeError(w, err, "update car error", zap.Int64("carID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newCarResponse(car))
}

// DeleteCar удаляет автомобиль.
func (h *Handler) DeleteCar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse car id error")
		return
	}

	if err := h.service.DeleteCar(r.Context(), actor, id); err != nil {
		h.writeError(w, err, "delete car error", zap.Int64("carID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseCarFilter(q url.Values) (model.CarFilter, error) {
	var f model.CarFilter

	if v := q.Get("providerId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("%w: invalid providerId %q", model.ErrInvalidInput, v)
		}
		f.ProviderID = &id
	}
	if v := q.Get("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid available %q", model.ErrInvalidInput, v)
		}
		f.Available = &available
	}
	if v := q.Get("maxTier"); v != "" {
		tier, err := strconv.Atoi(v)
		if err != nil || tier < 0 {
			return f, fmt.Errorf("%w: invalid maxTier %q", model.ErrInvalidInput, v)
		}
		f.MaxTier = &tier
	}

	f.Limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return f, fmt.Errorf("%w: invalid limit %q", model.ErrInvalidInput, v)
		}
		f.Limit = limit
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page <= 0 {
			return f, fmt.Errorf("%w: invalid page %q", model.ErrInvalidInput, v)
		}
		f.Offset = (page - 1) * f.Limit
	}

	return f, nil
}
