package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cratos-ai/cratos/pkg/coreapi"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// Config configures authentication helpers.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []APIKeyConfig
}

// APIKeyConfig declares a static API key and associated identity.
type APIKeyConfig struct {
	Key    string
	UserID string
	Email  string
	Name   string
	Scopes []string
}

// Service validates JWTs and API keys and resolves them to a Principal,
// the identity C2 and C9 check for ownership/Admin scope.
type Service struct {
	mu      sync.RWMutex
	jwt     *JWTService
	apiKeys map[string]*coreapi.Principal
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	service.apiKeys = buildAPIKeyMap(cfg.APIKeys)
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jwt != nil || len(s.apiKeys) > 0
}

// GenerateJWT issues a signed token for the given principal.
func (s *Service) GenerateJWT(p *coreapi.Principal) (string, error) {
	if s == nil {
		return "", ErrAuthDisabled
	}
	s.mu.RLock()
	jwtSvc := s.jwt
	s.mu.RUnlock()
	if jwtSvc == nil {
		return "", ErrAuthDisabled
	}
	return jwtSvc.Generate(p)
}

// ValidateJWT validates a JWT and returns the associated principal.
func (s *Service) ValidateJWT(token string) (*coreapi.Principal, error) {
	if s == nil {
		return nil, ErrAuthDisabled
	}
	s.mu.RLock()
	jwtSvc := s.jwt
	s.mu.RUnlock()
	if jwtSvc == nil {
		return nil, ErrAuthDisabled
	}
	return jwtSvc.Validate(token)
}

// ValidateAPIKey validates an API key and returns the associated
// principal. Uses constant-time comparison to prevent timing attacks.
func (s *Service) ValidateAPIKey(key string) (*coreapi.Principal, error) {
	if s == nil {
		return nil, ErrAuthDisabled
	}
	s.mu.RLock()
	apiKeys := s.apiKeys
	s.mu.RUnlock()

	if len(apiKeys) == 0 {
		return nil, ErrAuthDisabled
	}
	inputKey := strings.TrimSpace(key)
	// Iterate through all keys using constant-time comparison
	// to prevent timing attacks that could reveal valid keys.
	var matched *coreapi.Principal
	for storedKey, principal := range apiKeys {
		if subtle.ConstantTimeCompare([]byte(inputKey), []byte(storedKey)) == 1 {
			matched = principal
		}
	}
	if matched == nil {
		return nil, ErrInvalidKey
	}
	return matched, nil
}

func buildAPIKeyMap(keys []APIKeyConfig) map[string]*coreapi.Principal {
	out := map[string]*coreapi.Principal{}
	for _, entry := range keys {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			continue
		}
		userID := strings.TrimSpace(entry.UserID)
		if userID == "" {
			sum := sha256.Sum256([]byte(key))
			userID = "api_" + hex.EncodeToString(sum[:8])
		}
		out[key] = &coreapi.Principal{
			UserID: userID,
			Email:  strings.TrimSpace(entry.Email),
			Name:   strings.TrimSpace(entry.Name),
			Scopes: entry.Scopes,
		}
	}
	return out
}
