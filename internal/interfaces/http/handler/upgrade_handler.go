package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appupgrade "github.com/subgov/backend/internal/application/upgrade"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/upgrade"
	"go.uber.org/zap"
)

// UpgradeHandler handles the tier change request workflow
type UpgradeHandler struct {
	BaseHandler
	upgrades *appupgrade.UpgradeService
}

// NewUpgradeHandler creates a new upgrade handler
func NewUpgradeHandler(upgrades *appupgrade.UpgradeService, log *zap.Logger) *UpgradeHandler {
	return &UpgradeHandler{BaseHandler: BaseHandler{log: log}, upgrades: upgrades}
}

// PreviewUpgradeRequest is the body of POST /upgrade-requests/preview
//
//	@Description	Target of a priced preview
type PreviewUpgradeRequest struct {
	TargetTierCode string `json:"target_tier_code" binding:"required,max=50" example:"premium"`
	BillingPeriod  string `json:"billing_period" binding:"required,billing_period" example:"monthly"`
}

// CreateUpgradeRequest is the body of POST /upgrade-requests
//
//	@Description	Opens an upgrade request
type CreateUpgradeRequest struct {
	TargetTierCode string `json:"target_tier_code" binding:"required,max=50" example:"premium"`
	BillingPeriod  string `json:"billing_period" binding:"required,billing_period" example:"monthly"`
	CouponCode     string `json:"coupon_code" binding:"omitempty,max=50" example:"SAVE20"`
}

// UploadProofRequest is the body of POST /upgrade-requests/{id}/proof
//
//	@Description	Reference to an uploaded payment proof
type UploadProofRequest struct {
	FileID string `json:"file_id" binding:"required,max=500" example:"proofs/acme/receipt.pdf"`
}

// CancelRequest carries an optional reason
type CancelRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// ReviewUpgradeRequest is the body of POST /admin/upgrade-requests/{id}/review
//
//	@Description	Admin decision. rejection_reason is shown to the tenant, notes never are.
type ReviewUpgradeRequest struct {
	Action          string `json:"action" binding:"required,oneof=approve reject" example:"approve"`
	Notes           string `json:"notes" binding:"omitempty,max=2000"`
	RejectionReason string `json:"rejection_reason" binding:"omitempty,max=500" example:"proof illegible"`
}

// UpgradeListQuery filters request lists
type UpgradeListQuery struct {
	PageQuery
	Status   []string `form:"status" binding:"omitempty,dive,oneof=pending payment_uploaded under_review approved rejected cancelled expired"`
	TenantID string   `form:"tenant_id" binding:"omitempty,uuid"`
}

func (q UpgradeListQuery) filter() upgrade.RequestFilter {
	f := upgrade.RequestFilter{Filter: q.Filter()}
	for _, s := range q.Status {
		f.Statuses = append(f.Statuses, upgrade.RequestStatus(s))
	}
	if q.TenantID != "" {
		id := uuid.MustParse(q.TenantID)
		f.TenantID = &id
	}
	return f
}

// Preview godoc
//
//	@ID				previewUpgradeRequest
//	@Summary		Price a tier change
//	@Description	Same pricing as Create, without side effects and before any coupon
//	@Tags			upgrade-requests
//	@Accept			json
//	@Produce		json
//	@Param			request	body		PreviewUpgradeRequest	true	"Target"
//	@Success		200		{object}	APIResponse[appupgrade.QuoteDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/upgrade-requests/preview [post]
func (h *UpgradeHandler) Preview(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req PreviewUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	quote, err := h.upgrades.Preview(c.Request.Context(), tenantID, req.TargetTierCode, billing.BillingPeriod(req.BillingPeriod))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// Create godoc
//
//	@ID				createUpgradeRequest
//	@Summary		Request a tier change
//	@Description	Opens a request and its pending ledger entry. A tenant may have one open request at a time.
//	@Tags			upgrade-requests
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateUpgradeRequest	true	"Request"
//	@Success		201		{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		403		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/upgrade-requests [post]
func (h *UpgradeHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req CreateUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	created, err := h.upgrades.Create(c.Request.Context(), tenantID, appupgrade.CreateRequestInput{
		TargetTierCode: req.TargetTierCode,
		BillingPeriod:  billing.BillingPeriod(req.BillingPeriod),
		CouponCode:     req.CouponCode,
		RequestedBy:    h.userRef(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// List godoc
//
//	@ID				listUpgradeRequests
//	@Summary		List the caller's requests
//	@Tags			upgrade-requests
//	@Produce		json
//	@Param			status		query		[]string	false	"Status filter"	collectionFormat(multi)
//	@Param			page		query		int			false	"Page number"	default(1)
//	@Param			page_size	query		int			false	"Items per page"	default(20)
//	@Success		200			{object}	APIResponse[[]appupgrade.RequestDTO]
//	@Security		BearerAuth
//	@Router			/upgrade-requests [get]
func (h *UpgradeHandler) List(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q UpgradeListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter := q.filter()
	filter.TenantID = &tenantID
	result, err := h.upgrades.List(c.Request.Context(), filter, true)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// Get godoc
//
//	@ID				getUpgradeRequest
//	@Summary		Get one of the caller's requests
//	@Tags			upgrade-requests
//	@Produce		json
//	@Param			id	path		string	true	"Request ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/upgrade-requests/{id} [get]
func (h *UpgradeHandler) Get(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req, err := h.upgrades.GetForTenant(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, req)
}

// UploadProof godoc
//
//	@ID				uploadUpgradeProof
//	@Summary		Attach a payment proof
//	@Description	Records the file reference. Uploading again replaces the previous proof until review starts.
//	@Tags			upgrade-requests
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Request ID"	format(uuid)
//	@Param			request	body		UploadProofRequest	true	"Proof"
//	@Success		200		{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/upgrade-requests/{id}/proof [post]
func (h *UpgradeHandler) UploadProof(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req UploadProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	updated, err := h.upgrades.UploadProof(c.Request.Context(), tenantID, id, req.FileID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, updated)
}

// Cancel godoc
//
//	@ID				cancelUpgradeRequest
//	@Summary		Withdraw a request
//	@Description	Cancels the request and its pending ledger entry together
//	@Tags			upgrade-requests
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Request ID"	format(uuid)
//	@Param			request	body		CancelRequest	false	"Reason"
//	@Success		200		{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/upgrade-requests/{id}/cancel [post]
func (h *UpgradeHandler) Cancel(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	updated, err := h.upgrades.Cancel(c.Request.Context(), tenantID, id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, updated)
}

// AdminList godoc
//
//	@ID				adminListUpgradeRequests
//	@Summary		List requests across tenants
//	@Tags			admin-upgrade-requests
//	@Produce		json
//	@Param			status		query		[]string	false	"Status filter"	collectionFormat(multi)
//	@Param			tenant_id	query		string		false	"Tenant ID"		format(uuid)
//	@Param			page		query		int			false	"Page number"	default(1)
//	@Param			page_size	query		int			false	"Items per page"	default(20)
//	@Success		200			{object}	APIResponse[[]appupgrade.RequestDTO]
//	@Security		BearerAuth
//	@Router			/admin/upgrade-requests [get]
func (h *UpgradeHandler) AdminList(c *gin.Context) {
	var q UpgradeListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.upgrades.List(c.Request.Context(), q.filter(), false)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page(c, result)
}

// AdminGet godoc
//
//	@ID				adminGetUpgradeRequest
//	@Summary		Get a request with review data
//	@Tags			admin-upgrade-requests
//	@Produce		json
//	@Param			id	path		string	true	"Request ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/upgrade-requests/{id} [get]
func (h *UpgradeHandler) AdminGet(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req, err := h.upgrades.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, req)
}

// Claim godoc
//
//	@ID				claimUpgradeRequest
//	@Summary		Start reviewing a request
//	@Description	Moves a request with proof to under_review and records the reviewer. The tenant can no longer cancel it.
//	@Tags			admin-upgrade-requests
//	@Produce		json
//	@Param			id	path		string	true	"Request ID"	format(uuid)
//	@Success		200	{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		409	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/upgrade-requests/{id}/claim [post]
func (h *UpgradeHandler) Claim(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	req, err := h.upgrades.BeginReview(c.Request.Context(), id, p.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, req)
}

// Review godoc
//
//	@ID				reviewUpgradeRequest
//	@Summary		Approve or reject a request
//	@Description	Approval pays the ledger entry, changes the tier and syncs quotas in one transaction. Rejection requires a reason.
//	@Tags			admin-upgrade-requests
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Request ID"	format(uuid)
//	@Param			request	body		ReviewUpgradeRequest	true	"Decision"
//	@Success		200		{object}	APIResponse[appupgrade.RequestDTO]
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/upgrade-requests/{id}/review [post]
func (h *UpgradeHandler) Review(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req ReviewUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	reviewed, err := h.upgrades.Review(c.Request.Context(), id, appupgrade.ReviewInput{
		Action:          appupgrade.ReviewAction(req.Action),
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
		ReviewedBy:      p.UserID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger(c).Info("Upgrade request reviewed",
		zap.String("request_id", id.String()),
		zap.String("action", req.Action),
		zap.String("status", reviewed.Status))
	h.Success(c, reviewed)
}

// RunExpiry godoc
//
//	@ID				adminExpireUpgradeRequests
//	@Summary		Expire overdue requests now
//	@Tags			admin-upgrade-requests
//	@Produce		json
//	@Success		200	{object}	APIResponse[CountData]
//	@Security		BearerAuth
//	@Router			/admin/upgrade-requests/expire [post]
func (h *UpgradeHandler) RunExpiry(c *gin.Context) {
	n, err := h.upgrades.ExpireDue(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: int64(n)})
}
