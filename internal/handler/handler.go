// Package handler содержит HTTP-обработчики API сервиса аренды автомобилей.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/middleware"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterUserInput) (int64, error)
	RegisterProvider(ctx context.Context, in service.RegisterProviderInput) (int64, error)
	LoginUser(ctx context.Context, email, password string) (*service.Session, error)
	LoginProvider(ctx context.Context, email, password string) (*service.Session, error)
	Logout(ctx context.Context, token string) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetProvider(ctx context.Context, id int64) (*model.Provider, error)
	ListUsers(ctx context.Context, actor model.Actor, role model.Role) ([]model.User, error)
	DeleteUser(ctx context.Context, actor model.Actor, id int64, role model.Role) error

	ListProviders(ctx context.Context) ([]model.Provider, error)
	GetProviderWithCars(ctx context.Context, id int64) (*model.Provider, []model.Car, error)
	UpdateProvider(ctx context.Context, actor model.Actor, id int64, in service.UpdateProviderInput) (*model.Provider, error)
	DeleteProvider(ctx context.Context, actor model.Actor, id int64) (int, error)

	CreateCar(ctx context.Context, actor model.Actor, in service.CreateCarInput) (*model.Car, error)
	GetCar(ctx context.Context, id int64) (*model.Car, error)
	ListCars(ctx context.Context, f model.CarFilter) ([]model.Car, error)
	UpdateCar(ctx context.Context, actor model.Actor, id int64, in service.UpdateCarInput) (*model.Car, error)
	DeleteCar(ctx context.Context, actor model.Actor, id int64) error

	CreateRent(ctx context.Context, actor model.Actor, in service.CreateRentInput) (*model.Rent, error)
	GetRent(ctx context.Context, actor model.Actor, id int64) (*model.Rent, error)
	ListRents(ctx context.Context, actor model.Actor, carID *int64) ([]model.Rent, error)
	UpdateRent(ctx context.Context, actor model.Actor, id int64, patch model.RentPatch) (*model.Rent, error)
	DeleteRent(ctx context.Context, actor model.Actor, id int64) error
	CompleteRent(ctx context.Context, actor model.Actor, id int64, overrides model.RentPatch) (*model.CompletionResult, error)
	ConfirmRent(ctx context.Context, actor model.Actor, id int64) (*model.Rent, error)
}

// Handler реализует HTTP-обработчики API сервиса аренды.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// statusFromError сопоставляет вид ошибки с HTTP-статусом.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает статусом, соответствующим ошибке. Нарушения бизнес-правил
// возвращаются клиенту с текстом ошибки, внутренние ошибки только логируются.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", model.ErrInvalidInput, err)
	}
	return nil
}

// decodeOptionalJSON разбирает необязательное тело запроса. Пустое тело оставляет v без изменений.
func decodeOptionalJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed request body: %v", model.ErrInvalidInput, err)
	}
	return nil
}

func actorFrom(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", model.ErrInvalidInput, name, raw)
	}
	return id, nil
}

// parseDate принимает дату в формате RFC 3339 или YYYY-MM-DD (полночь UTC).
func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", model.ErrInvalidInput, field)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD, got %q", model.ErrInvalidInput, field, raw)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
