package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/service"
)

type updateProviderRequest struct {
	Name            *string `json:"name"`
	Address         *string `json:"address"`
	TelephoneNumber *string `json:"telephoneNumber"`
}

type providerWithCarsResponse struct {
	providerResponse
	Cars []carResponse `json:"cars"`
}

type deleteProviderResponse struct {
	CarsRemoved int `json:"carsRemoved"`
}

func newProviderResponse(p *model.Provider) providerResponse {
	return providerResponse{
		ID:              p.ID,
		Name:            p.Name,
		Address:         p.Address,
		TelephoneNumber: p.TelephoneNumber,
		Email:           p.Email,
		CreatedAt:       formatTime(p.CreatedAt),
	}
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Name:            u.Name,
		TelephoneNumber: u.TelephoneNumber,
		Email:           u.Email,
		Role:            string(u.Role),
		TotalSpend:      service.FromCents(u.TotalSpendCents),
		Tier:            u.Tier,
		CreatedAt:       formatTime(u.CreatedAt),
	}
}

// ListProviders возвращает справочник провайдеров.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListProviders(r.Context())
	if err != nil {
		h.writeError(w, err, "list providers error")
		return
	}

	resp := make([]providerResponse, 0, len(providers))
	for i := range providers {
		resp = append(resp, newProviderResponse(&providers[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetProvider возвращает провайдера вместе с его автомобилями.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse provider id error")
		return
	}

	p, cars, err := h.service.GetProviderWithCars(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get provider error", zap.Int64("providerID", id))
		return
	}

	resp := providerWithCarsResponse{
		providerResponse: newProviderResponse(p),
		Cars:             make([]carResponse, 0, len(cars)),
	}
	for i := range cars {
		resp.Cars = append(resp.Cars, newCarResponse(&cars[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateProvider изменяет данные провайдера.
func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse provider id error")
		return
	}

	var req updateProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode update provider request error")
		return
	}

	p, err := h.service.UpdateProvider(r.Context(), actor, id, service.UpdateProviderInput{
		Name:            req.Name,
		Address:         req.Address,
		TelephoneNumber: req.TelephoneNumber,
	})
	if err != nil {
		h.writeError(w, err, "update provider error", zap.Int64("providerID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newProviderResponse(p))
}

// DeleteProvider удаляет провайдера вместе с его автомобилями.
func (h *Handler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse provider id error")
		return
	}

	removed, err := h.service.DeleteProvider(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err, "delete provider error", zap.Int64("providerID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, deleteProviderResponse{CarsRemoved: removed})
}

// ListAdmins возвращает администраторов.
func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	h.listAccounts(w, r, model.RoleAdmin)
}

// ListUsers возвращает обычных пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.listAccounts(w, r, model.RoleUser)
}

// DeleteAdmin удаляет учётную запись администратора.
func (h *Handler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	h.deleteAccount(w, r, model.RoleAdmin)
}

// DeleteUser удаляет учётную запись пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.deleteAccount(w, r, model.RoleUser)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request, role model.Role) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListUsers(r.Context(), actor, role)
	if err != nil {
		h.writeError(w, err, "list accounts error", zap.String("role", string(role)))
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request, role model.Role) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err, "parse account id error")
		return
	}

	if err := h.service.DeleteUser(r.Context(), actor, id, role); err != nil {
		h.writeError(w, err, "delete account error", zap.Int64("userID", id), zap.String("role", string(role)))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
