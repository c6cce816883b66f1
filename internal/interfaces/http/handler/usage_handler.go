package handler

import (
	"github.com/gin-gonic/gin"
	appbilling "github.com/subgov/backend/internal/application/billing"
	"github.com/subgov/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// UsageHandler handles quota and usage alert HTTP requests
type UsageHandler struct {
	BaseHandler
	metering *appbilling.MeteringService
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(metering *appbilling.MeteringService, log *zap.Logger) *UsageHandler {
	return &UsageHandler{BaseHandler: BaseHandler{log: log}, metering: metering}
}

// RecordUsageRequest is the body of POST /usage/record
//
//	@Description	Usage increment for one metric
type RecordUsageRequest struct {
	MetricType string `json:"metric_type" binding:"required,metric_type" example:"api_calls"`
	Delta      int64  `json:"delta" binding:"required,gt=0" example:"1"`
}

// AlertQuery filters the alert list
type AlertQuery struct {
	PageQuery
	MetricType   string `form:"metric_type" binding:"omitempty,metric_type"`
	Acknowledged *bool  `form:"acknowledged"`
}

// ListQuotas godoc
//
//	@ID				listUsageQuotas
//	@Summary		List the caller's quotas
//	@Description	Every quota of the current tenant in metric order. Percentages are null for unlimited quotas.
//	@Tags			usage
//	@Produce		json
//	@Success		200	{object}	APIResponse[[]appbilling.QuotaDTO]
//	@Failure		401	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/usage/quotas [get]
func (h *UsageHandler) ListQuotas(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	quotas, err := h.metering.ListQuotas(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quotas)
}

// CheckLimit godoc
//
//	@ID				checkUsageLimit
//	@Summary		Check one limit
//	@Description	Advisory read: whether another unit of the metric can be added right now
//	@Tags			usage
//	@Produce		json
//	@Param			metric	path		string	true	"Metric type"	Enums(api_calls, storage_bytes, active_users, branches)
//	@Success		200		{object}	APIResponse[appbilling.LimitCheckDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/usage/quotas/{metric}/check [get]
func (h *UsageHandler) CheckLimit(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	check, err := h.metering.CheckLimit(c.Request.Context(), tenantID, billing.MetricType(c.Param("metric")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, check)
}

// RecordUsage godoc
//
//	@ID				recordUsage
//	@Summary		Record usage
//	@Description	Adds delta to the current period counter. Under hard enforcement a write past the limit fails with 429.
//	@Tags			usage
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RecordUsageRequest	true	"Usage increment"
//	@Success		200		{object}	APIResponse[appbilling.RecordUsageResult]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		429		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/usage/record [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	res, err := h.metering.RecordUsage(c.Request.Context(), tenantID, billing.MetricType(req.MetricType), req.Delta)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// ListAlerts godoc
//
//	@ID				listUsageAlerts
//	@Summary		List usage alerts
//	@Tags			usage
//	@Produce		json
//	@Param			metric_type		query		string	false	"Metric type"
//	@Param			acknowledged	query		bool	false	"Acknowledged filter"
//	@Param			page			query		int		false	"Page number"		default(1)
//	@Param			page_size		query		int		false	"Items per page"	default(20)
//	@Success		200				{object}	APIResponse[[]appbilling.AlertDTO]
//	@Security		BearerAuth
//	@Router			/usage/alerts [get]
func (h *UsageHandler) ListAlerts(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q AlertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.metering.ListAlerts(c.Request.Context(), tenantID, h.alertFilter(q))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// AcknowledgeAlert godoc
//
//	@ID				acknowledgeUsageAlert
//	@Summary		Acknowledge an alert
//	@Description	Marks the alert as seen. A later crossing of the same threshold raises a new alert.
//	@Tags			usage
//	@Produce		json
//	@Param			id	path		string	true	"Alert ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appbilling.AlertDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/usage/alerts/{id}/acknowledge [post]
func (h *UsageHandler) AcknowledgeAlert(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	alert, err := h.metering.AcknowledgeAlert(c.Request.Context(), tenantID, id, h.userRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, alert)
}

// AdminListQuotas godoc
//
//	@ID				adminListTenantQuotas
//	@Summary		List a tenant's quotas
//	@Tags			admin-usage
//	@Produce		json
//	@Param			id	path		string	true	"Tenant ID"	format(uuid)
//	@Success		200	{object}	APIResponse[[]appbilling.QuotaDTO]
//	@Security		BearerAuth
//	@Router			/admin/usage/tenant/{id} [get]
func (h *UsageHandler) AdminListQuotas(c *gin.Context) {
	tenantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quotas, err := h.metering.ListQuotas(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quotas)
}

// ResetMetric godoc
//
//	@ID				adminResetTenantMetric
//	@Summary		Reset one counter
//	@Description	Zeroes the counter and acknowledges its open alerts. The limit is unchanged.
//	@Tags			admin-usage
//	@Produce		json
//	@Param			id		path		string	true	"Tenant ID"	format(uuid)
//	@Param			metric	path		string	true	"Metric type"
//	@Success		200		{object}	APIResponse[appbilling.QuotaDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/usage/tenant/{id}/reset/{metric} [post]
func (h *UsageHandler) ResetMetric(c *gin.Context) {
	tenantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quota, err := h.metering.ResetUsage(c.Request.Context(), tenantID, billing.MetricType(c.Param("metric")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quota)
}

// ResetAll godoc
//
//	@ID				adminResetTenantUsage
//	@Summary		Reset every counter of a tenant
//	@Tags			admin-usage
//	@Produce		json
//	@Param			id	path		string	true	"Tenant ID"	format(uuid)
//	@Success		200	{object}	APIResponse[[]appbilling.QuotaDTO]
//	@Security		BearerAuth
//	@Router			/admin/usage/tenant/{id}/reset [post]
func (h *UsageHandler) ResetAll(c *gin.Context) {
	tenantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quotas, err := h.metering.ResetAll(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quotas)
}

// SyncWithTier godoc
//
//	@ID				adminSyncTenantQuotas
//	@Summary		Re-derive limits from the tier
//	@Description	Sets every limit to the tier default or the tenant's override. Counters are kept.
//	@Tags			admin-usage
//	@Produce		json
//	@Param			id	path		string	true	"Tenant ID"	format(uuid)
//	@Success		200	{object}	APIResponse[[]appbilling.QuotaDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/usage/tenant/{id}/sync [post]
func (h *UsageHandler) SyncWithTier(c *gin.Context) {
	tenantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quotas, err := h.metering.SyncWithTier(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quotas)
}

// RunMonthlyResets godoc
//
//	@ID				adminRunMonthlyResets
//	@Summary		Run the monthly reset now
//	@Description	Resets every quota whose period has elapsed. Safe to repeat within a period.
//	@Tags			admin-usage
//	@Produce		json
//	@Success		200	{object}	APIResponse[appbilling.ResetSummary]
//	@Security		BearerAuth
//	@Router			/admin/usage/resets [post]
func (h *UsageHandler) RunMonthlyResets(c *gin.Context) {
	summary, err := h.metering.ProcessMonthlyResets(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// AdminListAlerts godoc
//
//	@ID				adminListTenantAlerts
//	@Summary		List a tenant's usage alerts
//	@Tags			admin-usage
//	@Produce		json
//	@Param			id				path		string	true	"Tenant ID"	format(uuid)
//	@Param			acknowledged	query		bool	false	"Acknowledged filter"
//	@Success		200				{object}	APIResponse[[]appbilling.AlertDTO]
//	@Security		BearerAuth
//	@Router			/admin/usage/tenant/{id}/alerts [get]
func (h *UsageHandler) AdminListAlerts(c *gin.Context) {
	tenantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var q AlertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.metering.ListAlerts(c.Request.Context(), tenantID, h.alertFilter(q))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

func (h *UsageHandler) alertFilter(q AlertQuery) billing.UsageAlertFilter {
	filter := billing.UsageAlertFilter{Filter: q.Filter(), Acknowledged: q.Acknowledged}
	if q.MetricType != "" {
		m := billing.MetricType(q.MetricType)
		filter.MetricType = &m
	}
	return filter
}
