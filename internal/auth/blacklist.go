package auth

import (
	"context"
	"sync"
	"time"
)

// TokenBlacklist records revoked token IDs (jti) so logout invalidates a
// token before its natural expiry.
type TokenBlacklist interface {
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// memoryTokenBlacklist is an in-process TokenBlacklist. Sufficient for the
// single-instance stub server; a shared deployment would back this with a
// shared store instead.
type memoryTokenBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemoryTokenBlacklist creates an in-memory TokenBlacklist.
func NewMemoryTokenBlacklist() TokenBlacklist {
	return &memoryTokenBlacklist{revoked: make(map[string]time.Time)}
}

func (b *memoryTokenBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	if time.Until(originalTokenExpTime) <= 0 {
		// Already expired; JWT validation rejects it anyway.
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = originalTokenExpTime
	return nil
}

func (b *memoryTokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.revoked[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(b.revoked, jti)
		return false, nil
	}
	return true, nil
}
