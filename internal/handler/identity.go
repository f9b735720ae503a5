package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/middleware"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/service"
)

type registerUserRequest struct {
	Name            string `json:"name"`
	TelephoneNumber string `json:"telephoneNumber"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Role            string `json:"role"`
}

type registerProviderRequest struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	TelephoneNumber string `json:"telephoneNumber"`
	Email           string `json:"email"`
	Password        string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type userResponse struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	TelephoneNumber string  `json:"telephoneNumber"`
	Email           string  `json:"email"`
	Role            string  `json:"role"`
	TotalSpend      float64 `json:"totalSpend"`
	Tier            int     `json:"tier"`
	CreatedAt       string  `json:"createdAt"`
}

type providerResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	TelephoneNumber string `json:"telephoneNumber"`
	Email           string `json:"email"`
	CreatedAt       string `json:"createdAt"`
}

// RegisterUser обрабатывает регистрацию нового пользователя.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode register user request error")
		return
	}

	id, err := h.service.RegisterUser(r.Context(), service.RegisterUserInput{
		Name:            req.Name,
		TelephoneNumber: req.TelephoneNumber,
		Email:           req.Email,
		Password:        req.Password,
		Role:            req.Role,
	})
	if err != nil {
		h.writeError(w, err, "register user error")
		return
	}

	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// LoginUser выполняет аутентификацию пользователя и выдаёт токен сессии.
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode login request error")
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	session, err := h.service.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err, "login user error")
		return
	}

	h.writeSession(w, session)
}

// RegisterProvider обрабатывает регистрацию нового провайдера.
func (h *Handler) RegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req registerProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode register provider request error")
		return
	}

	id, err := h.service.RegisterProvider(r.Context(), service.RegisterProviderInput{
		Name:            req.Name,
		Address:         req.Address,
		TelephoneNumber: req.TelephoneNumber,
		Email:           req.Email,
		Password:        req.Password,
	})
	if err != nil {
		h.writeError(w, err, "register provider error")
		return
	}

	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// LoginProvider выполняет аутентификацию провайдера и выдаёт токен сессии.
func (h *Handler) LoginProvider(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, "decode login request error")
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	session, err := h.service.LoginProvider(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err, "login provider error")
		return
	}

	h.writeSession(w, session)
}

// Logout отзывает текущий токен и удаляет cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.writeError(w, err, "logout error")
		return
	}

	middleware.ClearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// CurrentUser возвращает профиль текущего пользователя.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if actor.Kind == model.ActorProvider {
		http.Error(w, "provider session, use /api/v1/providers/me", http.StatusForbidden)
		return
	}

	u, err := h.service.GetUser(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, err, "get current user error", zap.Int64("userID", actor.ID))
		return
	}

	h.writeJSON(w, http.StatusOK, newUserResponse(u))
}

// CurrentProvider возвращает профиль текущего провайдера.
func (h *Handler) CurrentProvider(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if actor.Kind != model.ActorProvider {
		http.Error(w, "provider session required", http.StatusForbidden)
		return
	}

	p, err := h.service.GetProvider(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, err, "get current provider error", zap.Int64("providerID", actor.ID))
		return
	}

	h.writeJSON(w, http.StatusOK, newProviderResponse(p))
}

func (h *Handler) writeSession(w http.ResponseWriter, s *service.Session) {
	middleware.SetTokenCookie(w, s.Token, s.ExpiresAt)
	h.writeJSON(w, http.StatusOK, sessionResponse{
		Token:     s.Token,
		ExpiresAt: formatTime(s.ExpiresAt),
	})
}
