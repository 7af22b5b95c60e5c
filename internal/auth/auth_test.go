package auth

import "testing"

func TestServiceValidateAPIKey(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: "abc123", UserID: "user-1", Email: "user@example.com"}}})
	principal, err := service.ValidateAPIKey("abc123")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if principal.UserID != "user-1" {
		t.Fatalf("expected user id, got %q", principal.UserID)
	}
	if principal.Email != "user@example.com" {
		t.Fatalf("expected email, got %q", principal.Email)
	}
}

func TestServiceDisabledWithoutConfig(t *testing.T) {
	service := NewService(Config{})
	if service.Enabled() {
		t.Fatal("expected service with no JWT secret and no API keys to be disabled")
	}
}
