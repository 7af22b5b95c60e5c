package auth

import (
	"testing"
	"time"

	"github.com/cratos-ai/cratos/pkg/coreapi"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate(&coreapi.Principal{UserID: "user-1", Email: "user@example.com", Name: "User", Scopes: []string{"admin"}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	principal, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if principal.UserID != "user-1" {
		t.Fatalf("expected user id, got %q", principal.UserID)
	}
	if principal.Email != "user@example.com" {
		t.Fatalf("expected email, got %q", principal.Email)
	}
	if principal.Name != "User" {
		t.Fatalf("expected name, got %q", principal.Name)
	}
	if !principal.IsAdmin() {
		t.Fatal("expected admin scope to round-trip")
	}
}

func TestJWTServiceDisabledWithoutSecret(t *testing.T) {
	service := NewJWTService("", time.Hour)
	if _, err := service.Generate(&coreapi.Principal{UserID: "u"}); err != ErrAuthDisabled {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}
