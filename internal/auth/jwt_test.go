package auth

import (
	"context"
	"testing"
	"time"

	"daymoon-client/internal/chattypes"
)

const testSecret = "unit-test-secret"

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("u1", "Alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ValidateToken(context.Background(), token, testSecret, nil)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Name != "Alice" {
		t.Fatalf("claims lost: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected a jti claim")
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	token, err := GenerateToken("u1", "Alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := ValidateToken(context.Background(), token, "a-different-secret", nil); err == nil {
		t.Fatalf("expected validation failure with the wrong key")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("u1", "Alice", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := ValidateToken(context.Background(), token, testSecret, nil); err == nil {
		t.Fatalf("expected validation failure for an expired token")
	}
}

func TestBlacklistedTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	token, err := GenerateToken("u1", "Alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	claims, err := ValidateToken(ctx, token, testSecret, nil)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	blacklist := NewMemoryTokenBlacklist()
	if err := blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatalf("blacklist Add failed: %v", err)
	}

	if _, err := ValidateToken(ctx, token, testSecret, blacklist); err == nil {
		t.Fatalf("expected a revoked token to be rejected")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse" {
		t.Fatalf("password stored in the clear")
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Fatalf("correct password rejected")
	}
	if CheckPasswordHash("battery staple", hash) {
		t.Fatalf("wrong password accepted")
	}
}

func TestUserIDFromToken(t *testing.T) {
	token, err := GenerateToken("u42", "Alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	userID, err := UserIDFromToken(token)
	if err != nil {
		t.Fatalf("UserIDFromToken failed: %v", err)
	}
	if userID != "u42" {
		t.Fatalf("expected u42, got %q", userID)
	}
}

func TestTokenStore(t *testing.T) {
	store := NewTokenStore()
	if _, err := store.Token(); err != ErrNoToken {
		t.Fatalf("empty store should return ErrNoToken, got %v", err)
	}

	valid, err := GenerateToken("u1", "Alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	store.Set(valid, chattypes.UserInfo{ID: "u1"})
	if got, err := store.Token(); err != nil || got != valid {
		t.Fatalf("stored token not returned: %v", err)
	}

	expired, err := GenerateToken("u1", "Alice", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	store.Set(expired, chattypes.UserInfo{ID: "u1"})
	if _, err := store.Token(); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	store.Clear()
	if _, err := store.Token(); err != ErrNoToken {
		t.Fatalf("cleared store should return ErrNoToken, got %v", err)
	}
}
