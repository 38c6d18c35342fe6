package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"daymoon-client/internal/chattypes"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no authentication token")
	ErrTokenExpired = errors.New("authentication token expired")
)

// TokenStore keeps the bearer token and the logged-in user for the lifetime
// of the process. The token is an opaque credential as far as the backend
// contract is concerned; it is never persisted and never baked into source.
type TokenStore struct {
	mu    sync.RWMutex
	token string
	user  chattypes.UserInfo
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Set stores the credentials returned by a successful login.
func (s *TokenStore) Set(token string, user chattypes.UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
}

// Clear drops the stored credentials, e.g. on logout.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = chattypes.UserInfo{}
}

// Token returns the stored bearer token. ErrNoToken when not logged in and
// ErrTokenExpired when the token's exp claim has passed, so callers can
// surface an auth failure before issuing a doomed request.
func (s *TokenStore) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	if exp, err := tokenExpiry(s.token); err == nil && !exp.IsZero() && time.Now().After(exp) {
		return "", ErrTokenExpired
	}
	return s.token, nil
}

// User returns the logged-in user recorded at login time.
func (s *TokenStore) User() chattypes.UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserIDFromToken extracts the user identifier from a JWT without verifying
// the signature. The production frontend does the same thing to key the
// realtime connection; verification is the server's job, the client only
// needs the subject.
func UserIDFromToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	for _, key := range []string{"userId", "sub", "id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("token carries no user identifier")
}

func tokenExpiry(tokenString string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
