package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/mmeshcher/carrental-system/internal/model"
)

func TestListProviders_Public(t *testing.T) {
	svc := &stubService{providers: []model.Provider{{ID: 3, Name: "Cars Inc"}, {ID: 4, Name: "Rides"}}}

	rec := doRequest(newTestServer(t, svc), http.MethodGet, "/api/v1/providers", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp []providerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 || resp[1].Name != "Rides" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetProvider_WithCars(t *testing.T) {
	svc := &stubService{cars: []model.Car{{ID: 1, ProviderID: 3, DailyRateCents: 100000}}}
	h := newTestServer(t, svc)

	rec := doRequest(h, http.MethodGet, "/api/v1/providers/3", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp providerWithCarsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 3 || len(resp.Cars) != 1 || resp.Cars[0].DailyRate != 1000 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/providers/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	svc.providerErr = fmt.Errorf("%w: provider 9", model.ErrNotFound)
	rec = doRequest(h, http.MethodGet, "/api/v1/providers/9", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestProviderMe_NotShadowedByID(t *testing.T) {
	svc := &stubService{}

	rec := doRequest(newTestServer(t, svc), http.MethodGet, "/api/v1/providers/me", "provider-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %q", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestUpdateProvider(t *testing.T) {
	svc := &stubService{}
	h := newTestServer(t, svc)

	rec := doRequest(h, http.MethodPut, "/api/v1/providers/3", "", `{"name":"Renamed"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doRequest(h, http.MethodPut, "/api/v1/providers/3", "admin-token", `{"name":"Renamed","address":"Main st"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.providerInput.Name == nil || *svc.providerInput.Name != "Renamed" ||
		svc.providerInput.Address == nil || svc.providerInput.TelephoneNumber != nil {
		t.Fatalf("unexpected input: %+v", svc.providerInput)
	}

	var resp providerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Name != "Renamed" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	svc.providerErr = fmt.Errorf("%w: not an admin", model.ErrForbidden)
	rec = doRequest(h, http.MethodPut, "/api/v1/providers/3", "user-token", `{"name":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestDeleteProvider(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"deleted", nil, http.StatusOK},
		{"open rents", fmt.Errorf("%w: car 5 has active or pending rents", model.ErrConflict), http.StatusConflict},
		{"not admin", fmt.Errorf("%w: denied", model.ErrForbidden), http.StatusForbidden},
		{"missing", fmt.Errorf("%w: provider 3", model.ErrNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{providerErr: tt.err, carsRemoved: 2}
			rec := doRequest(newTestServer(t, svc), http.MethodDelete, "/api/v1/providers/3", "admin-token", nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.err != nil {
				return
			}

			var resp deleteProviderResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.CarsRemoved != 2 {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestListAccounts(t *testing.T) {
	tests := []struct {
		target string
		role   model.Role
	}{
		{"/api/v1/auth/admins", model.RoleAdmin},
		{"/api/v1/auth/users", model.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			svc := &stubService{accounts: []model.User{{ID: 7, Role: tt.role, TotalSpendCents: 12345}}}
			h := newTestServer(t, svc)

			rec := doRequest(h, http.MethodGet, tt.target, "", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}

			rec = doRequest(h, http.MethodGet, tt.target, "admin-token", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if svc.accountRole != tt.role || !svc.lastActor.IsAdmin() {
				t.Fatalf("role = %q, actor = %v", svc.accountRole, svc.lastActor)
			}

			var resp []userResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if len(resp) != 1 || resp[0].ID != 7 || resp[0].TotalSpend != 123.45 {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	tests := []struct {
		name   string
		target string
		role   model.Role
		err    error
		want   int
	}{
		{"admin", "/api/v1/auth/admins/5", model.RoleAdmin, nil, http.StatusNoContent},
		{"user", "/api/v1/auth/users/5", model.RoleUser, nil, http.StatusNoContent},
		{"self", "/api/v1/auth/admins/5", model.RoleAdmin, fmt.Errorf("%w: cannot delete own account", model.ErrInvalidInput), http.StatusBadRequest},
		{"open rents", "/api/v1/auth/users/5", model.RoleUser, fmt.Errorf("%w: unfinished rents", model.ErrConflict), http.StatusConflict},
		{"forbidden", "/api/v1/auth/users/5", model.RoleUser, fmt.Errorf("%w: denied", model.ErrForbidden), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{accountErr: tt.err}
			rec := doRequest(newTestServer(t, svc), http.MethodDelete, tt.target, "admin-token", nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if svc.deletedAccount != 5 || svc.accountRole != tt.role {
				t.Fatalf("deleted = %d role = %q", svc.deletedAccount, svc.accountRole)
			}
		})
	}
}
