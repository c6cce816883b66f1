package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/logger"
	"github.com/subgov/backend/internal/interfaces/http/dto"
	"github.com/subgov/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	log *zap.Logger
}

func (h *BaseHandler) logger(c *gin.Context) *zap.Logger {
	base := h.log
	if base == nil {
		base = zap.NewNop()
	}
	return logger.With(c.Request.Context(), base)
}

// PageQuery is the pagination part of list query strings
type PageQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy  string `form:"order_by" binding:"omitempty,max=50"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// Filter converts the query to a normalized repository filter
func (q PageQuery) Filter() shared.Filter {
	return shared.Filter{
		Page:     q.Page,
		PageSize: q.PageSize,
		OrderBy:  q.OrderBy,
		OrderDir: q.OrderDir,
	}.Normalize()
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error envelope with an explicit status
func (h *BaseHandler) Error(c *gin.Context, status int, kind shared.ErrorKind, code, message string) {
	c.JSON(status, dto.NewErrorResponse(dto.ErrorInfo{
		Kind:      string(kind),
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	}))
}

// BadRequest sends a 400 for malformed input the binder could not read
func (h *BaseHandler) BadRequest(c *gin.Context, code, message string) {
	h.Error(c, http.StatusBadRequest, shared.KindValidation, code, message)
}

// BindError reports a failed ShouldBind call. Validator failures are listed
// per field, anything else is treated as unreadable JSON.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	if fields := middleware.ValidationDetails(err); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrorInfo{
			Kind:      string(shared.KindValidation),
			Code:      dto.CodeValidation,
			Message:   "Request validation failed",
			Fields:    fields,
			RequestID: middleware.GetRequestID(c),
		}))
		return
	}
	h.BadRequest(c, dto.CodeInvalidJSON, "Invalid request body")
}

// HandleError converts service errors to HTTP responses. Errors that are not
// domain errors are logged and hidden behind a generic 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	status, info := dto.FromError(err)
	var de *shared.DomainError
	if !errors.As(err, &de) || de.Kind == shared.KindInternal || de.Kind == shared.KindAtomicityFailure {
		h.logger(c).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	info.RequestID = middleware.GetRequestID(c)
	c.JSON(status, dto.NewErrorResponse(info))
}

// uuidParam parses a path parameter, answering 400 itself when it is malformed
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, dto.CodeInvalidParam, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// principal returns the authenticated caller. Routes are mounted behind
// Authenticate, so a missing principal is a wiring bug answered with 401.
func (h *BaseHandler) principal(c *gin.Context) (*middleware.Principal, bool) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		h.Error(c, http.StatusUnauthorized, shared.KindUnauthorized, dto.CodeUnauthorized, "Authentication required")
		return nil, false
	}
	return p, true
}

// tenantID returns the caller's tenant, answering 403 for principals without one
func (h *BaseHandler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	p, ok := h.principal(c)
	if !ok {
		return uuid.Nil, false
	}
	if p.TenantID == uuid.Nil {
		h.Error(c, http.StatusForbidden, shared.KindForbidden, dto.CodeForbidden, "Tenant context required")
		return uuid.Nil, false
	}
	return p.TenantID, true
}

// userRef returns the caller's user ID for audit fields
func (h *BaseHandler) userRef(c *gin.Context) *uuid.UUID {
	if p := middleware.GetPrincipal(c); p != nil {
		return p.UserRef()
	}
	return nil
}

// page renders a paginated result
func page[T any](c *gin.Context, result *shared.Paginated[T]) {
	c.JSON(http.StatusOK, dto.NewPageResponse(result))
}
