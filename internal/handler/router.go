package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/carrental-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса аренды.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.RegisterUser)
			r.Post("/login", h.LoginUser)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.CurrentUser)
				r.Get("/admins", h.ListAdmins)
				r.Get("/users", h.ListUsers)
				r.Delete("/admins/{id}", h.DeleteAdmin)
				r.Delete("/users/{id}", h.DeleteUser)
			})
		})

		r.Route("/providers", func(r chi.Router) {
			r.Post("/register", h.RegisterProvider)
			r.Post("/login", h.LoginProvider)
			r.Get("/", h.ListProviders)
			r.Get("/{id}", h.GetProvider)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.CurrentProvider)
				r.Put("/{id}", h.UpdateProvider)
				r.Delete("/{id}", h.DeleteProvider)
			})
		})

		r.Route("/cars", func(r chi.Router) {
			r.Get("/", h.ListCars)
			r.Get("/{id}", h.GetCar)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/", h.CreateCar)
				r.Put("/{id}", h.UpdateCar)
				r.Delete("/{id}", h.DeleteCar)
				r.Get("/{id}/rents", h.ListCarRents)
			})
		})

		r.Route("/rents", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/", h.ListRents)
			r.Post("/", h.CreateRent)
			r.Get("/{id}", h.GetRent)
			r.Put("/{id}", h.UpdateRent)
			r.Delete("/{id}", h.DeleteRent)
			r.Put("/{id}/complete", h.CompleteRent)
			r.Put("/{id}/confirm", h.ConfirmRent)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
