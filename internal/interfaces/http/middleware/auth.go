package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/auth"
	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/infrastructure/logger"
	"github.com/subgov/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Context keys and development headers
const (
	PrincipalKey = "principal"

	DevTenantHeader = "X-Dev-Tenant-ID"
	DevRoleHeader   = "X-Dev-Role"
)

// devUserID identifies requests authenticated through the development headers
var devUserID = uuid.MustParse("00000000-0000-0000-0000-00000000d3e0")

// Principal is the authenticated caller. TenantID is uuid.Nil for admins.
type Principal struct {
	Role     auth.Role
	UserID   uuid.UUID
	TenantID uuid.UUID
	TokenID  string
	Dev      bool
}

// IsAdmin reports whether the caller holds the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == auth.RoleAdmin
}

// UserRef returns the user ID for audit columns, nil when unknown
func (p *Principal) UserRef() *uuid.UUID {
	if p.UserID == uuid.Nil {
		return nil
	}
	id := p.UserID
	return &id
}

// TokenValidator parses bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthConfig configures Authenticate
type AuthConfig struct {
	Tokens      TokenValidator
	Revocations auth.RevocationList // optional
	Runtime     config.RuntimeSnapshot
	Logger      *zap.Logger
}

// Authenticate resolves the caller from the bearer token. In dev mode a request
// without Authorization may name its tenant with X-Dev-Tenant-ID instead.
// A failing revocation store is logged and the token accepted.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && cfg.Runtime.DevMode {
			if p, ok := devPrincipal(c); ok {
				setPrincipal(c, p)
				c.Next()
				return
			}
		}

		token, ok := bearerToken(header)
		if !ok {
			unauthorized(c, dto.CodeUnauthorized, "Missing or malformed Authorization header")
			return
		}

		claims, err := cfg.Tokens.Validate(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				unauthorized(c, dto.CodeTokenExpired, "Token has expired")
				return
			}
			unauthorized(c, dto.CodeUnauthorized, "Invalid token")
			return
		}

		if cfg.Revocations != nil {
			revoked, err := cfg.Revocations.IsRevoked(c.Request.Context(), claims)
			if err != nil {
				logger.With(c.Request.Context(), log).Warn("Revocation check failed, accepting token",
					zap.String("token_id", claims.ID), zap.Error(err))
			} else if revoked {
				unauthorized(c, dto.CodeTokenRevoked, "Token has been revoked")
				return
			}
		}

		p, err := principalFromClaims(claims)
		if err != nil {
			unauthorized(c, dto.CodeUnauthorized, "Invalid token claims")
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// RequireAdmin lets only admin principals through
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			unauthorized(c, dto.CodeUnauthorized, "Authentication required")
			return
		}
		if !p.IsAdmin() {
			abort(c, http.StatusForbidden, shared.KindForbidden, dto.CodeForbidden, "Admin role required")
			return
		}
		c.Next()
	}
}

// RequireTenant lets only principals bound to a tenant through
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			unauthorized(c, dto.CodeUnauthorized, "Authentication required")
			return
		}
		if p.TenantID == uuid.Nil {
			abort(c, http.StatusForbidden, shared.KindForbidden, dto.CodeForbidden, "Tenant context required")
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the caller set by Authenticate, or nil
func GetPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}

func setPrincipal(c *gin.Context, p *Principal) {
	c.Set(PrincipalKey, p)
	ctx := c.Request.Context()
	if p.TenantID != uuid.Nil {
		ctx = logger.WithTenantID(ctx, p.TenantID.String())
	}
	if p.UserID != uuid.Nil {
		ctx = logger.WithUserID(ctx, p.UserID.String())
	}
	c.Request = c.Request.WithContext(ctx)
}

func principalFromClaims(claims *auth.Claims) (*Principal, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, auth.ErrMissingUserID
	}
	p := &Principal{Role: claims.Role, UserID: userID, TokenID: claims.ID}
	if claims.TenantID != "" {
		tenantID, err := claims.TenantUUID()
		if err != nil {
			return nil, err
		}
		p.TenantID = tenantID
	}
	if p.Role == auth.RoleTenant && p.TenantID == uuid.Nil {
		return nil, auth.ErrMissingTenantID
	}
	return p, nil
}

func devPrincipal(c *gin.Context) (*Principal, bool) {
	role := auth.Role(strings.ToLower(c.GetHeader(DevRoleHeader)))
	if role == "" {
		role = auth.RoleTenant
	}
	if !role.IsValid() {
		return nil, false
	}
	p := &Principal{Role: role, UserID: devUserID, Dev: true}
	if raw := c.GetHeader(DevTenantHeader); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, false
		}
		p.TenantID = id
	}
	if role == auth.RoleTenant && p.TenantID == uuid.Nil {
		return nil, false
	}
	return p, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, code, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	abort(c, http.StatusUnauthorized, shared.KindUnauthorized, code, message)
}
