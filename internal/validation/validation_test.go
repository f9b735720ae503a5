package validation

import (
	"errors"
	"testing"

	"github.com/mmeshcher/carrental-system/internal/model"
)

func TestIsValidTelephone(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "valid",
			number: "081-2345678",
			valid:  true,
		},
		{
			name:   "missing dash",
			number: "0812345678",
			valid:  false,
		},
		{
			name:   "too short",
			number: "081-234567",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "08a-2345678",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidTelephone(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidTelephone(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

type registration struct {
	Email     string `validate:"required,email"`
	Telephone string `validate:"required,telephone"`
	Password  string `validate:"required,min=6"`
}

func TestStruct(t *testing.T) {
	ok := registration{Email: "a@b.io", Telephone: "081-2345678", Password: "secret"}
	if err := Struct(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := registration{Email: "nope", Telephone: "123", Password: "x"}
	err := Struct(bad)
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
