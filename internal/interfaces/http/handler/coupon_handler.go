package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	appcoupon "github.com/subgov/backend/internal/application/coupon"
	"github.com/subgov/backend/internal/domain/coupon"
	"go.uber.org/zap"
)

// CouponHandler handles coupon HTTP requests
type CouponHandler struct {
	BaseHandler
	coupons *appcoupon.CouponService
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(coupons *appcoupon.CouponService, log *zap.Logger) *CouponHandler {
	return &CouponHandler{BaseHandler: BaseHandler{log: log}, coupons: coupons}
}

// ValidateCouponRequest is the body of POST /coupons/validate
//
//	@Description	Dry-run coupon check for the caller's tenant
type ValidateCouponRequest struct {
	Code     string `json:"code" binding:"required,max=50" example:"SAVE20"`
	Amount   int64  `json:"amount" binding:"gte=0" example:"4900"`
	TierCode string `json:"tier_code" binding:"omitempty,max=50" example:"premium"`
}

// CreateCouponRequest is the body of POST /admin/coupons
type CreateCouponRequest struct {
	Code              string          `json:"code" binding:"required,min=3,max=50" example:"SAVE20"`
	Description       string          `json:"description" binding:"omitempty,max=500"`
	DiscountType      string          `json:"discount_type" binding:"required,discount_type" example:"percentage"`
	DiscountValue     decimal.Decimal `json:"discount_value" swaggertype:"string" example:"20"`
	ValidFrom         *time.Time      `json:"valid_from"`
	ValidUntil        *time.Time      `json:"valid_until"`
	MaxRedemptions    int             `json:"max_redemptions" binding:"gte=0"`
	AllowRepeat       bool            `json:"allow_repeat"`
	MaxPerTenant      int             `json:"max_per_tenant" binding:"gte=0"`
	MinPurchaseAmount int64           `json:"min_purchase_amount" binding:"gte=0"`
	ApplicableTiers   []string        `json:"applicable_tiers" binding:"omitempty,dive,max=50"`
}

// CouponQuery filters the coupon list
type CouponQuery struct {
	PageQuery
	IsActive *bool  `form:"is_active"`
	Search   string `form:"search" binding:"omitempty,max=100"`
}

// Validate godoc
//
//	@ID				validateCoupon
//	@Summary		Check a coupon
//	@Description	Never redeems. An invalid coupon is a 200 with valid=false and the failed rule as reason.
//	@Tags			coupons
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ValidateCouponRequest	true	"Coupon check"
//	@Success		200		{object}	APIResponse[appcoupon.ValidationResult]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/coupons/validate [post]
func (h *CouponHandler) Validate(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	res, err := h.coupons.Validate(c.Request.Context(), appcoupon.ValidateInput{
		Code:     req.Code,
		TenantID: tenantID,
		Amount:   req.Amount,
		TierCode: req.TierCode,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// Create godoc
//
//	@ID				adminCreateCoupon
//	@Summary		Create a coupon
//	@Description	Codes are stored upper-case and must be unique
//	@Tags			admin-coupons
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateCouponRequest	true	"Coupon"
//	@Success		201		{object}	APIResponse[appcoupon.CouponDTO]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/coupons [post]
func (h *CouponHandler) Create(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	created, err := h.coupons.Create(c.Request.Context(), appcoupon.CreateCouponInput{
		Code:              req.Code,
		Description:       req.Description,
		DiscountType:      coupon.DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		MaxRedemptions:    req.MaxRedemptions,
		AllowRepeat:       req.AllowRepeat,
		MaxPerTenant:      req.MaxPerTenant,
		MinPurchaseAmount: req.MinPurchaseAmount,
		ApplicableTiers:   req.ApplicableTiers,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// List godoc
//
//	@ID				adminListCoupons
//	@Summary		List coupons
//	@Tags			admin-coupons
//	@Produce		json
//	@Param			is_active	query		bool	false	"Active filter"
//	@Param			search		query		string	false	"Code or description"
//	@Success		200			{object}	APIResponse[[]appcoupon.CouponDTO]
//	@Security		BearerAuth
//	@Router			/admin/coupons [get]
func (h *CouponHandler) List(c *gin.Context) {
	var q CouponQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.coupons.List(c.Request.Context(), coupon.CouponFilter{
		Filter:   q.Filter(),
		IsActive: q.IsActive,
		Search:   q.Search,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// Get godoc
//
//	@ID				adminGetCoupon
//	@Summary		Get a coupon
//	@Tags			admin-coupons
//	@Produce		json
//	@Param			id	path		string	true	"Coupon ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appcoupon.CouponDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/coupons/{id} [get]
func (h *CouponHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.coupons.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// Activate godoc
//
//	@ID				adminActivateCoupon
//	@Summary		Activate a coupon
//	@Tags			admin-coupons
//	@Produce		json
//	@Param			id	path		string	true	"Coupon ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appcoupon.CouponDTO]
//	@Security		BearerAuth
//	@Router			/admin/coupons/{id}/activate [post]
func (h *CouponHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate godoc
//
//	@ID				adminDeactivateCoupon
//	@Summary		Deactivate a coupon
//	@Description	Existing redemptions are kept
//	@Tags			admin-coupons
//	@Produce		json
//	@Param			id	path		string	true	"Coupon ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appcoupon.CouponDTO]
//	@Security		BearerAuth
//	@Router			/admin/coupons/{id}/deactivate [post]
func (h *CouponHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *CouponHandler) setActive(c *gin.Context, active bool) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.coupons.SetActive(c.Request.Context(), id, active)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// ListRedemptions godoc
//
//	@ID				adminListCouponRedemptions
//	@Summary		List a coupon's redemptions
//	@Tags			admin-coupons
//	@Produce		json
//	@Param			id			path		string	true	"Coupon ID"	format(uuid)
//	@Param			page		query		int		false	"Page number"		default(1)
//	@Param			page_size	query		int		false	"Items per page"	default(20)
//	@Success		200			{object}	APIResponse[[]appcoupon.RedemptionDTO]
//	@Security		BearerAuth
//	@Router			/admin/coupons/{id}/redemptions [get]
func (h *CouponHandler) ListRedemptions(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.coupons.ListRedemptions(c.Request.Context(), id, q.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}
