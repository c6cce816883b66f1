package handler

import (
	"github.com/gin-gonic/gin"
	appidentity "github.com/subgov/backend/internal/application/identity"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"go.uber.org/zap"
)

// TenantHandler handles tenant management HTTP requests
type TenantHandler struct {
	BaseHandler
	tenants *appidentity.TenantService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants *appidentity.TenantService, log *zap.Logger) *TenantHandler {
	return &TenantHandler{BaseHandler: BaseHandler{log: log}, tenants: tenants}
}

// ProvisionTenantRequest is the body of POST /admin/tenants
//
//	@Description	New tenant with its initial tier
type ProvisionTenantRequest struct {
	Code         string `json:"code" binding:"required,min=2,max=50" example:"acme"`
	Name         string `json:"name" binding:"required,min=1,max=200" example:"Acme Inc"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email,max=200" example:"ops@acme.test"`
	TierCode     string `json:"tier_code" binding:"omitempty,max=50" example:"basic"`
	TrialDays    int    `json:"trial_days" binding:"gte=0,lte=365" example:"14"`
	Notes        string `json:"notes" binding:"omitempty,max=2000"`
}

// UpdateTenantRequest is the body of PUT /admin/tenants/{id}
type UpdateTenantRequest struct {
	Name         string  `json:"name" binding:"required,min=1,max=200"`
	ContactEmail string  `json:"contact_email" binding:"omitempty,email,max=200"`
	Notes        *string `json:"notes" binding:"omitempty,max=2000"`
}

// ChangeTierRequest is the body of POST /admin/tenants/{id}/tier
type ChangeTierRequest struct {
	TierCode      string `json:"tier_code" binding:"required,max=50" example:"premium"`
	BillingPeriod string `json:"billing_period" binding:"omitempty,billing_period" example:"monthly"`
}

// SetStatusRequest is the body of POST /admin/tenants/{id}/status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active trial expired cancelled suspended" example:"suspended"`
}

// LimitOverrideRequest is the body of PUT /admin/tenants/{id}/overrides/{metric}
//
//	@Description	-1 removes the limit for this tenant
type LimitOverrideRequest struct {
	Value  int64  `json:"value" binding:"gte=-1" example:"25"`
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// TenantQuery filters the tenant list
type TenantQuery struct {
	PageQuery
	Status   string `form:"status" binding:"omitempty,oneof=active trial expired cancelled suspended"`
	TierCode string `form:"tier_code" binding:"omitempty,max=50"`
	Search   string `form:"search" binding:"omitempty,max=100"`
}

// Current godoc
//
//	@ID				getCurrentTenant
//	@Summary		Get the caller's tenant
//	@Tags			tenant
//	@Produce		json
//	@Success		200	{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/tenant [get]
func (h *TenantHandler) Current(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	t, err := h.tenants.GetByID(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Provision godoc
//
//	@ID				adminProvisionTenant
//	@Summary		Provision a tenant
//	@Description	Creates the tenant and one quota per metric from the tier limits. trial_days > 0 starts a trial.
//	@Tags			admin-tenants
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ProvisionTenantRequest	true	"Tenant"
//	@Success		201		{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants [post]
func (h *TenantHandler) Provision(c *gin.Context) {
	var req ProvisionTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	t, err := h.tenants.Provision(c.Request.Context(), appidentity.ProvisionTenantInput{
		Code:         req.Code,
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		TierCode:     req.TierCode,
		TrialDays:    req.TrialDays,
		Notes:        req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, t)
}

// List godoc
//
//	@ID				adminListTenants
//	@Summary		List tenants
//	@Tags			admin-tenants
//	@Produce		json
//	@Param			status		query		string	false	"Status filter"
//	@Param			tier_code	query		string	false	"Tier filter"
//	@Param			search		query		string	false	"Code or name"
//	@Success		200			{object}	APIResponse[[]appidentity.TenantDTO]
//	@Security		BearerAuth
//	@Router			/admin/tenants [get]
func (h *TenantHandler) List(c *gin.Context) {
	var q TenantQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter := identity.TenantFilter{Filter: q.Filter(), TierCode: q.TierCode, Search: q.Search}
	if q.Status != "" {
		s := identity.TenantStatus(q.Status)
		filter.Status = &s
	}
	result, err := h.tenants.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// Get godoc
//
//	@ID				adminGetTenant
//	@Summary		Get a tenant
//	@Tags			admin-tenants
//	@Produce		json
//	@Param			id	path		string	true	"Tenant ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants/{id} [get]
func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	t, err := h.tenants.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Update godoc
//
//	@ID				adminUpdateTenant
//	@Summary		Update a tenant's details
//	@Tags			admin-tenants
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Tenant ID"	format(uuid)
//	@Param			request	body		UpdateTenantRequest	true	"Details"
//	@Success		200		{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants/{id} [put]
func (h *TenantHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	t, err := h.tenants.Update(c.Request.Context(), id, appidentity.UpdateTenantInput{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		Notes:        req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// ChangeTier godoc
//
//	@ID				adminChangeTenantTier
//	@Summary		Move a tenant to another tier
//	@Description	Starts a fresh period and re-syncs every quota limit in the same transaction. No ledger entry is written.
//	@Tags			admin-tenants
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Tenant ID"	format(uuid)
//	@Param			request	body		ChangeTierRequest	true	"Target tier"
//	@Success		200		{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants/{id}/tier [post]
func (h *TenantHandler) ChangeTier(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	period := billing.BillingPeriod(req.BillingPeriod)
	if period == "" {
		period = billing.BillingPeriodMonthly
	}
	t, err := h.tenants.ChangeTier(c.Request.Context(), id, appidentity.ChangeTierInput{
		TierCode:      req.TierCode,
		BillingPeriod: period,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger(c).Info("Tenant tier changed by admin",
		zap.String("tenant_id", id.String()),
		zap.String("tier_code", t.TierCode))
	h.Success(c, t)
}

// SetStatus godoc
//
//	@ID				adminSetTenantStatus
//	@Summary		Change a tenant's lifecycle status
//	@Tags			admin-tenants
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Tenant ID"	format(uuid)
//	@Param			request	body		SetStatusRequest	true	"Status"
//	@Success		200		{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants/{id}/status [post]
func (h *TenantHandler) SetStatus(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	t, err := h.tenants.SetStatus(c.Request.Context(), id, identity.TenantStatus(req.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// SetLimitOverride godoc
//
//	@ID				adminSetTenantLimitOverride
//	@Summary		Override one limit
//	@Description	The override survives tier changes until cleared
//	@Tags			admin-tenants
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Tenant ID"	format(uuid)
//	@Param			metric	path		string					true	"Metric type"
//	@Param			request	body		LimitOverrideRequest	true	"Override"
//	@Success		200		{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants/{id}/overrides/{metric} [put]
func (h *TenantHandler) SetLimitOverride(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req LimitOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	t, err := h.tenants.SetLimitOverride(c.Request.Context(), id, appidentity.SetLimitOverrideInput{
		MetricType: billing.MetricType(c.Param("metric")),
		Value:      req.Value,
		Reason:     req.Reason,
		SetBy:      h.userRef(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// ClearLimitOverride godoc
//
//	@ID				adminClearTenantLimitOverride
//	@Summary		Remove a limit override
//	@Description	The limit falls back to the tier default
//	@Tags			admin-tenants
//	@Produce		json
//	@Param			id		path		string	true	"Tenant ID"	format(uuid)
//	@Param			metric	path		string	true	"Metric type"
//	@Success		200		{object}	APIResponse[appidentity.TenantDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tenants/{id}/overrides/{metric} [delete]
func (h *TenantHandler) ClearLimitOverride(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	t, err := h.tenants.ClearLimitOverride(c.Request.Context(), id, billing.MetricType(c.Param("metric")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// ExpireTrials godoc
//
//	@ID				adminExpireTrials
//	@Summary		Expire ended trials now
//	@Tags			admin-tenants
//	@Produce		json
//	@Success		200	{object}	APIResponse[CountData]
//	@Security		BearerAuth
//	@Router			/admin/tenants/expire-trials [post]
func (h *TenantHandler) ExpireTrials(c *gin.Context) {
	n, err := h.tenants.ExpireTrials(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: int64(n)})
}
