package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects declared oversized bodies up front and caps streamed ones
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abort(c, http.StatusRequestEntityTooLarge, shared.KindValidation, dto.CodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// abort writes the standard error envelope and stops the chain
func abort(c *gin.Context, status int, kind shared.ErrorKind, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(dto.ErrorInfo{
		Kind:      string(kind),
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(c),
	}))
}
