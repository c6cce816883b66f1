package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimsAt(id, tenant string, issued time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: id, IssuedAt: jwt.NewNumericDate(issued)},
		TenantID:         tenant,
	}
}

func TestInMemoryRevocationList_Token(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryRevocationList()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.RevokeToken(ctx, "jti-1", time.Hour))

	revoked, err := r.IsRevoked(ctx, claimsAt("jti-1", "", now))
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = r.IsRevoked(ctx, claimsAt("jti-2", "", now))
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = r.IsRevoked(ctx, claimsAt("jti-1", "", now))
	assert.False(t, revoked, "revocation expires with the token")
}

func TestInMemoryRevocationList_Tenant(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryRevocationList()
	cutoff := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.RevokeTenant(ctx, "tenant-a", cutoff, time.Hour))
	// an older cutoff never rolls back a newer one
	require.NoError(t, r.RevokeTenant(ctx, "tenant-a", cutoff.Add(-time.Hour), time.Hour))

	tests := []struct {
		name   string
		claims *Claims
		want   bool
	}{
		{"issued before", claimsAt("a", "tenant-a", cutoff.Add(-time.Minute)), true},
		{"same second", claimsAt("b", "tenant-a", cutoff.Add(500*time.Millisecond)), true},
		{"issued after", claimsAt("c", "tenant-a", cutoff.Add(time.Minute)), false},
		{"other tenant", claimsAt("d", "tenant-b", cutoff.Add(-time.Minute)), false},
		{"admin token", claimsAt("e", "", cutoff.Add(-time.Minute)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.IsRevoked(ctx, tt.claims)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRevocationList_WithoutRedis(t *testing.T) {
	_, ok := NewRevocationList(nil).(*InMemoryRevocationList)
	assert.True(t, ok)
}
