package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList invalidates tokens before they expire: one token by its ID,
// or every token of a tenant issued before a cutoff (used when a tenant is
// suspended or cancelled).
type RevocationList interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	RevokeTenant(ctx context.Context, tenantID string, at time.Time, ttl time.Duration) error
	IsRevoked(ctx context.Context, claims *Claims) (bool, error)
}

// NewRevocationList returns a Redis list when client is set, otherwise an
// in-process one
func NewRevocationList(client *redis.Client) RevocationList {
	if client == nil {
		return NewInMemoryRevocationList()
	}
	return NewRedisRevocationList(client)
}

// RedisRevocationList keeps revocations in Redis with TTLs matching token lifetime
type RedisRevocationList struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRevocationList creates a Redis-backed revocation list
func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client, keyPrefix: "subgov:auth:revoked:"}
}

// RevokeToken implements RevocationList
func (r *RedisRevocationList) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.keyPrefix+"jti:"+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeTenant implements RevocationList
func (r *RedisRevocationList) RevokeTenant(ctx context.Context, tenantID string, at time.Time, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.keyPrefix+"tenant:"+tenantID, at.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke tenant tokens: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationList
func (r *RedisRevocationList) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	keys := []string{r.keyPrefix + "jti:" + claims.ID}
	if claims.TenantID != "" {
		keys = append(keys, r.keyPrefix+"tenant:"+claims.TenantID)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if vals[0] != nil {
		return true, nil
	}
	if len(vals) > 1 && vals[1] != nil {
		s, _ := vals[1].(string)
		cutoff, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return false, fmt.Errorf("corrupt tenant revocation value: %w", err)
		}
		return issuedBefore(claims, time.Unix(cutoff, 0)), nil
	}
	return false, nil
}

// InMemoryRevocationList is a single-process revocation list
type InMemoryRevocationList struct {
	mu      sync.RWMutex
	tokens  map[string]time.Time // token id -> expiry
	tenants map[string]time.Time // tenant id -> cutoff
	now     func() time.Time
}

// NewInMemoryRevocationList creates an in-memory revocation list
func NewInMemoryRevocationList() *InMemoryRevocationList {
	return &InMemoryRevocationList{
		tokens:  make(map[string]time.Time),
		tenants: make(map[string]time.Time),
		now:     time.Now,
	}
}

// RevokeToken implements RevocationList
func (r *InMemoryRevocationList) RevokeToken(_ context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenID] = r.now().Add(ttl)
	return nil
}

// RevokeTenant implements RevocationList. The ttl is ignored; a tenant cutoff
// only ever moves forward.
func (r *InMemoryRevocationList) RevokeTenant(_ context.Context, tenantID string, at time.Time, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at.After(r.tenants[tenantID]) {
		r.tenants[tenantID] = at
	}
	return nil
}

// IsRevoked implements RevocationList
func (r *InMemoryRevocationList) IsRevoked(_ context.Context, claims *Claims) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if exp, ok := r.tokens[claims.ID]; ok && r.now().Before(exp) {
		return true, nil
	}
	if cutoff, ok := r.tenants[claims.TenantID]; ok && claims.TenantID != "" {
		return issuedBefore(claims, cutoff), nil
	}
	return false, nil
}

// issuedBefore compares at second precision, matching the iat claim. A token
// issued in the same second as the cutoff counts as revoked.
func issuedBefore(claims *Claims, cutoff time.Time) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return claims.IssuedAt.Unix() <= cutoff.Unix()
}
