package handler

import (
	"github.com/gin-gonic/gin"
	appidentity "github.com/subgov/backend/internal/application/identity"
	"github.com/subgov/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// TierHandler serves the tier catalogue
type TierHandler struct {
	BaseHandler
	tiers *appidentity.TierService
}

// NewTierHandler creates a new tier handler
func NewTierHandler(tiers *appidentity.TierService, log *zap.Logger) *TierHandler {
	return &TierHandler{BaseHandler: BaseHandler{log: log}, tiers: tiers}
}

// UpdateTierRequest is the body of PUT /admin/tiers/{code}. Omitted fields are left unchanged.
type UpdateTierRequest struct {
	Name         *string          `json:"name" binding:"omitempty,min=1,max=100"`
	Description  *string          `json:"description" binding:"omitempty,max=500"`
	MonthlyPrice *int64           `json:"monthly_price" binding:"omitempty,gte=0" example:"2900"`
	YearlyPrice  *int64           `json:"yearly_price" binding:"omitempty,gte=0" example:"29000"`
	Limits       map[string]int64 `json:"limits" binding:"omitempty,dive,keys,metric_type,endkeys,gte=-1"`
	IsActive     *bool            `json:"is_active"`
}

// TierListQuery toggles inactive tiers on the admin list
type TierListQuery struct {
	IncludeInactive bool `form:"include_inactive"`
}

// List godoc
//
//	@ID				listTiers
//	@Summary		List active tiers
//	@Description	Tiers in sort order with prices in minor units. A limit of -1 means unlimited.
//	@Tags			tiers
//	@Produce		json
//	@Success		200	{object}	APIResponse[[]appidentity.TierDTO]
//	@Security		BearerAuth
//	@Router			/tiers [get]
func (h *TierHandler) List(c *gin.Context) {
	tiers, err := h.tiers.List(c.Request.Context(), false)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tiers)
}

// Get godoc
//
//	@ID				getTier
//	@Summary		Get a tier
//	@Tags			tiers
//	@Produce		json
//	@Param			code	path		string	true	"Tier code"
//	@Success		200		{object}	APIResponse[appidentity.TierDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/tiers/{code} [get]
func (h *TierHandler) Get(c *gin.Context) {
	tier, err := h.tiers.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tier)
}

// AdminList godoc
//
//	@ID				adminListTiers
//	@Summary		List tiers including inactive ones
//	@Tags			admin-tiers
//	@Produce		json
//	@Param			include_inactive	query		bool	false	"Include inactive tiers"
//	@Success		200					{object}	APIResponse[[]appidentity.TierDTO]
//	@Security		BearerAuth
//	@Router			/admin/tiers [get]
func (h *TierHandler) AdminList(c *gin.Context) {
	var q TierListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	tiers, err := h.tiers.List(c.Request.Context(), q.IncludeInactive)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tiers)
}

// Update godoc
//
//	@ID				adminUpdateTier
//	@Summary		Edit a tier
//	@Description	Existing tenants keep their quota limits until re-synced
//	@Tags			admin-tiers
//	@Accept			json
//	@Produce		json
//	@Param			code	path		string				true	"Tier code"
//	@Param			request	body		UpdateTierRequest	true	"Changes"
//	@Success		200		{object}	APIResponse[appidentity.TierDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/tiers/{code} [put]
func (h *TierHandler) Update(c *gin.Context) {
	var req UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	var limits map[billing.MetricType]int64
	if len(req.Limits) > 0 {
		limits = make(map[billing.MetricType]int64, len(req.Limits))
		for k, v := range req.Limits {
			limits[billing.MetricType(k)] = v
		}
	}
	tier, err := h.tiers.Update(c.Request.Context(), c.Param("code"), appidentity.UpdateTierInput{
		Name:         req.Name,
		Description:  req.Description,
		MonthlyPrice: req.MonthlyPrice,
		YearlyPrice:  req.YearlyPrice,
		Limits:       limits,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger(c).Info("Tier updated", zap.String("tier_code", tier.Code))
	h.Success(c, tier)
}
