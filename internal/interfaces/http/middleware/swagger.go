package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/interfaces/http/dto"
)

// SwaggerProtection guards the documentation endpoints. Disabled docs answer
// 404; an IP allow list (single addresses or CIDRs) and authentication can be
// combined. authMW is run only when RequireAuth is set.
func SwaggerProtection(cfg config.SwaggerConfig, authMW gin.HandlerFunc) gin.HandlerFunc {
	var nets []*net.IPNet
	var ips []net.IP
	for _, raw := range cfg.AllowedIPs {
		if strings.Contains(raw, "/") {
			if _, n, err := net.ParseCIDR(raw); err == nil {
				nets = append(nets, n)
			}
			continue
		}
		if ip := net.ParseIP(raw); ip != nil {
			ips = append(ips, ip)
		}
	}

	return func(c *gin.Context) {
		if !cfg.Enabled {
			abort(c, http.StatusNotFound, shared.KindNotFound, "DOCS_DISABLED", "API documentation is not available")
			return
		}
		if len(cfg.AllowedIPs) > 0 && !ipAllowed(net.ParseIP(c.ClientIP()), ips, nets) {
			abort(c, http.StatusForbidden, shared.KindForbidden, dto.CodeForbidden, "Access to API documentation is restricted")
			return
		}
		if cfg.RequireAuth && authMW != nil {
			authMW(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}

func ipAllowed(ip net.IP, ips []net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, allowed := range ips {
		if allowed.Equal(ip) {
			return true
		}
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
