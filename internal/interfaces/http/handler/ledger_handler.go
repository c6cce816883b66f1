package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appledger "github.com/subgov/backend/internal/application/ledger"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// LedgerHandler handles billing transaction HTTP requests
type LedgerHandler struct {
	BaseHandler
	ledger *appledger.LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerSvc *appledger.LedgerService, log *zap.Logger) *LedgerHandler {
	return &LedgerHandler{BaseHandler: BaseHandler{log: log}, ledger: ledgerSvc}
}

// CreateTransactionRequest is the body of POST /admin/billing/transactions
//
//	@Description	Admin-created ledger entry
type CreateTransactionRequest struct {
	TenantID       string `json:"tenant_id" binding:"required,uuid"`
	Type           string `json:"type" binding:"required,oneof=subscription upgrade downgrade renewal credit_adjustment extension promo refund manual" example:"manual"`
	Amount         int64  `json:"amount" binding:"gte=0" example:"2900"`
	Currency       string `json:"currency" binding:"omitempty,len=3" example:"USD"`
	TargetTierCode string `json:"target_tier_code" binding:"omitempty,max=50" example:"basic"`
	BillingPeriod  string `json:"billing_period" binding:"omitempty,billing_period" example:"monthly"`
	Description    string `json:"description" binding:"omitempty,max=500"`
	BonusDays      int    `json:"bonus_days" binding:"gte=0,lte=3650"`
	RequiresReview bool   `json:"requires_review"`
	MarkPaid       bool   `json:"mark_paid"`
	Note           string `json:"note" binding:"omitempty,max=2000"`
}

// ApproveTransactionRequest carries optional admin notes
type ApproveTransactionRequest struct {
	Notes string `json:"notes" binding:"omitempty,max=2000"`
}

// RejectTransactionRequest is the body of POST /admin/billing/transactions/{id}/reject
type RejectTransactionRequest struct {
	Reason string `json:"reason" binding:"required,max=500" example:"payment not received"`
	Notes  string `json:"notes" binding:"omitempty,max=2000"`
}

// ReasonRequest carries a required reason
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ApplyCouponRequest is the body of POST /admin/billing/transactions/{id}/coupon
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required,max=50" example:"SAVE20"`
}

// ManualDiscountRequest is the body of POST /admin/billing/transactions/{id}/discount
//
//	@Description	A fixed amount or a percentage of the gross amount
type ManualDiscountRequest struct {
	DiscountType string          `json:"discount_type" binding:"required,discount_type" example:"percentage"`
	Value        decimal.Decimal `json:"value" swaggertype:"string" example:"10"`
	Note         string          `json:"note" binding:"omitempty,max=2000"`
}

// BonusRequest is the body of POST /admin/billing/transactions/{id}/bonus
type BonusRequest struct {
	Days int `json:"days" binding:"required,gt=0,lte=3650" example:"14"`
}

// NoteRequest is the body of POST /admin/billing/transactions/{id}/notes
type NoteRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

// TransactionQuery filters transaction lists
type TransactionQuery struct {
	PageQuery
	TenantID string `form:"tenant_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=pending paid cancelled rejected refunded"`
	Type     string `form:"type" binding:"omitempty,max=30"`
	Search   string `form:"search" binding:"omitempty,max=100"`
}

func (q TransactionQuery) filter() ledger.TransactionFilter {
	f := ledger.TransactionFilter{Filter: q.Filter(), Search: q.Search}
	if q.TenantID != "" {
		id := uuid.MustParse(q.TenantID)
		f.TenantID = &id
	}
	if q.Status != "" {
		s := ledger.TransactionStatus(q.Status)
		f.Status = &s
	}
	if q.Type != "" {
		t := ledger.TransactionType(q.Type)
		f.Type = &t
	}
	return f
}

// ListOwn godoc
//
//	@ID				listBillingTransactions
//	@Summary		List the caller's transactions
//	@Description	Admin notes are never included
//	@Tags			billing
//	@Produce		json
//	@Param			status		query		string	false	"Status filter"
//	@Param			page		query		int		false	"Page number"		default(1)
//	@Param			page_size	query		int		false	"Items per page"	default(20)
//	@Success		200			{object}	APIResponse[[]appledger.TransactionDTO]
//	@Security		BearerAuth
//	@Router			/billing/transactions [get]
func (h *LedgerHandler) ListOwn(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter := q.filter()
	filter.TenantID = &tenantID
	result, err := h.ledger.List(c.Request.Context(), filter, true)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// GetOwn godoc
//
//	@ID				getBillingTransaction
//	@Summary		Get one of the caller's transactions
//	@Tags			billing
//	@Produce		json
//	@Param			id	path		string	true	"Transaction ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/billing/transactions/{id} [get]
func (h *LedgerHandler) GetOwn(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	tx, err := h.ledger.GetForTenant(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// List godoc
//
//	@ID				adminListBillingTransactions
//	@Summary		List transactions across tenants
//	@Tags			admin-billing
//	@Produce		json
//	@Param			tenant_id	query		string	false	"Tenant ID"	format(uuid)
//	@Param			status		query		string	false	"Status filter"
//	@Param			type		query		string	false	"Type filter"
//	@Param			search		query		string	false	"Transaction number or description"
//	@Success		200			{object}	APIResponse[[]appledger.TransactionDTO]
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions [get]
func (h *LedgerHandler) List(c *gin.Context) {
	var q TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.ledger.List(c.Request.Context(), q.filter(), false)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// Get godoc
//
//	@ID				adminGetBillingTransaction
//	@Summary		Get a transaction with notes
//	@Tags			admin-billing
//	@Produce		json
//	@Param			id	path		string	true	"Transaction ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	tx, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// Create godoc
//
//	@ID				adminCreateBillingTransaction
//	@Summary		Create a manual transaction
//	@Description	With mark_paid the entry is approved in the same transaction, applying any tier change
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateTransactionRequest	true	"Transaction"
//	@Success		201		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions [post]
func (h *LedgerHandler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.CreateManual(c.Request.Context(), appledger.CreateManualInput{
		TenantID:       uuid.MustParse(req.TenantID),
		Type:           ledger.TransactionType(req.Type),
		Amount:         req.Amount,
		Currency:       req.Currency,
		TargetTierCode: req.TargetTierCode,
		BillingPeriod:  billing.BillingPeriod(req.BillingPeriod),
		Description:    req.Description,
		BonusDays:      req.BonusDays,
		RequiresReview: req.RequiresReview,
		MarkPaid:       req.MarkPaid,
		Note:           req.Note,
		CreatedBy:      h.userRef(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tx)
}

// Approve godoc
//
//	@ID				adminApproveBillingTransaction
//	@Summary		Mark a transaction paid
//	@Description	Entries linked to an upgrade request must be reviewed through the request instead
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Transaction ID"	format(uuid)
//	@Param			request	body		ApproveTransactionRequest	false	"Notes"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/approve [post]
func (h *LedgerHandler) Approve(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ApproveTransactionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	tx, err := h.ledger.Approve(c.Request.Context(), id, h.userRef(c), req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// Reject godoc
//
//	@ID				adminRejectBillingTransaction
//	@Summary		Reject a pending transaction
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Transaction ID"	format(uuid)
//	@Param			request	body		RejectTransactionRequest	true	"Reason"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/reject [post]
func (h *LedgerHandler) Reject(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req RejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.Reject(c.Request.Context(), id, h.userRef(c), req.Reason, req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// Cancel godoc
//
//	@ID				adminCancelBillingTransaction
//	@Summary		Cancel a pending transaction
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Transaction ID"	format(uuid)
//	@Param			request	body		ReasonRequest	true	"Reason"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/cancel [post]
func (h *LedgerHandler) Cancel(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.Cancel(c.Request.Context(), id, h.userRef(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// Refund godoc
//
//	@ID				adminRefundBillingTransaction
//	@Summary		Refund a paid transaction
//	@Description	The tenant keeps its tier; downgrade separately if needed
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Transaction ID"	format(uuid)
//	@Param			request	body		ReasonRequest	true	"Reason"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/refund [post]
func (h *LedgerHandler) Refund(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.Refund(c.Request.Context(), id, h.userRef(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// ApplyCoupon godoc
//
//	@ID				adminApplyCouponToTransaction
//	@Summary		Redeem a coupon against a pending transaction
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Transaction ID"	format(uuid)
//	@Param			request	body		ApplyCouponRequest	true	"Coupon"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/coupon [post]
func (h *LedgerHandler) ApplyCoupon(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.ApplyCoupon(c.Request.Context(), id, req.Code)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// ApplyDiscount godoc
//
//	@ID				adminDiscountTransaction
//	@Summary		Set a manual discount
//	@Description	Replaces any earlier manual discount. The total discount never exceeds the amount.
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Transaction ID"	format(uuid)
//	@Param			request	body		ManualDiscountRequest	true	"Discount"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/discount [post]
func (h *LedgerHandler) ApplyDiscount(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ManualDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.ApplyManualDiscount(c.Request.Context(), id, appledger.ManualDiscountInput{
		DiscountType: coupon.DiscountType(req.DiscountType),
		Value:        req.Value,
		Note:         req.Note,
		By:           h.userRef(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// AddBonus godoc
//
//	@ID				adminBonusTransaction
//	@Summary		Grant bonus days
//	@Description	Bonus days extend the tenant's period when the transaction is paid
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Transaction ID"	format(uuid)
//	@Param			request	body		BonusRequest	true	"Days"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/bonus [post]
func (h *LedgerHandler) AddBonus(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.AddBonus(c.Request.Context(), id, req.Days, h.userRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// AddNote godoc
//
//	@ID				adminNoteTransaction
//	@Summary		Append an admin note
//	@Description	Notes are append-only and allowed in any status
//	@Tags			admin-billing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Transaction ID"	format(uuid)
//	@Param			request	body		NoteRequest	true	"Note"
//	@Success		200		{object}	APIResponse[appledger.TransactionDTO]
//	@Security		BearerAuth
//	@Router			/admin/billing/transactions/{id}/notes [post]
func (h *LedgerHandler) AddNote(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	tx, err := h.ledger.AddNote(c.Request.Context(), id, req.Text, h.userRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}
