// Package auth issues and validates the HS256 bearer tokens that identify
// callers as a platform admin or as a user acting for one tenant.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/subgov/backend/internal/infrastructure/config"
)

// Role is the caller's authority
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleTenant Role = "tenant"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleTenant
}

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrInvalidRole      = errors.New("invalid role in claims")
	ErrTokenRevoked     = errors.New("token has been revoked")
)

// Claims are the custom JWT claims. Admin tokens may omit tenant_id.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the claims carry the admin role
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// TenantUUID parses the tenant claim
func (c *Claims) TenantUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.TenantID)
	if err != nil {
		return uuid.Nil, ErrMissingTenantID
	}
	return id, nil
}

// IssueInput describes a token to mint
type IssueInput struct {
	TenantID uuid.UUID // required for RoleTenant
	UserID   uuid.UUID
	Role     Role
	TTL      time.Duration // zero uses the configured expiration
}

// IssuedToken is a signed token and its metadata
type IssuedToken struct {
	Token     string    `json:"access_token"`
	TokenID   string    `json:"token_id"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTService signs and validates tokens
type JWTService struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		expiration: cfg.AccessTokenExpiration,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
}

// Issue signs a new access token
func (s *JWTService) Issue(input IssueInput) (*IssuedToken, error) {
	if !input.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if input.UserID == uuid.Nil {
		return nil, ErrMissingUserID
	}
	if input.Role == RoleTenant && input.TenantID == uuid.Nil {
		return nil, ErrMissingTenantID
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.expiration
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: input.UserID.String(),
		Role:   input.Role,
	}
	if input.TenantID != uuid.Nil {
		claims.TenantID = input.TenantID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{
		Token:     signed,
		TokenID:   claims.ID,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate parses a token and checks signature, issuer, audience and the
// role-specific claims
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if !claims.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrMissingUserID
	}
	if claims.Role == RoleTenant {
		if _, err := claims.TenantUUID(); err != nil {
			return nil, err
		}
	}
	return claims, nil
}
