package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/subgov/backend/internal/application/event"
	"go.uber.org/zap"
)

// OutboxHandler handles outbox management HTTP requests
type OutboxHandler struct {
	BaseHandler
	outbox *event.OutboxService
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outbox *event.OutboxService, log *zap.Logger) *OutboxHandler {
	return &OutboxHandler{BaseHandler: BaseHandler{log: log}, outbox: outbox}
}

// ListDead godoc
//
//	@ID				adminListDeadOutboxEntries
//	@Summary		List dead letter entries
//	@Description	Events that exhausted their delivery retries
//	@Tags			admin-outbox
//	@Produce		json
//	@Param			page		query		int	false	"Page number"		default(1)
//	@Param			page_size	query		int	false	"Items per page"	default(20)
//	@Success		200			{object}	APIResponse[[]event.OutboxEntryDTO]
//	@Security		BearerAuth
//	@Router			/admin/outbox/dead [get]
func (h *OutboxHandler) ListDead(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.outbox.ListDead(c.Request.Context(), q.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// Get godoc
//
//	@ID				adminGetOutboxEntry
//	@Summary		Get an outbox entry
//	@Tags			admin-outbox
//	@Produce		json
//	@Param			id	path		string	true	"Outbox entry ID"	format(uuid)
//	@Success		200	{object}	APIResponse[event.OutboxEntryDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/outbox/{id} [get]
func (h *OutboxHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.outbox.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Retry godoc
//
//	@ID				adminRetryOutboxEntry
//	@Summary		Retry a dead letter entry
//	@Tags			admin-outbox
//	@Produce		json
//	@Param			id	path		string	true	"Outbox entry ID"	format(uuid)
//	@Success		200	{object}	APIResponse[event.OutboxEntryDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		422	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/outbox/{id}/retry [post]
func (h *OutboxHandler) Retry(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.outbox.RetryDead(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAll godoc
//
//	@ID				adminRetryAllOutboxEntries
//	@Summary		Retry every dead letter entry
//	@Tags			admin-outbox
//	@Produce		json
//	@Success		200	{object}	APIResponse[CountData]
//	@Security		BearerAuth
//	@Router			/admin/outbox/dead/retry-all [post]
func (h *OutboxHandler) RetryAll(c *gin.Context) {
	n, err := h.outbox.RetryAllDead(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger(c).Info("Dead letter entries requeued", zap.Int64("count", n))
	h.Success(c, CountData{Count: n})
}

// Stats godoc
//
//	@ID				adminOutboxStats
//	@Summary		Outbox entry counts per status
//	@Tags			admin-outbox
//	@Produce		json
//	@Success		200	{object}	APIResponse[event.OutboxStatsDTO]
//	@Security		BearerAuth
//	@Router			/admin/outbox/stats [get]
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
