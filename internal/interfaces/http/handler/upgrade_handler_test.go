package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appcoupon "github.com/subgov/backend/internal/application/coupon"
	appidentity "github.com/subgov/backend/internal/application/identity"
	appledger "github.com/subgov/backend/internal/application/ledger"
	appupgrade "github.com/subgov/backend/internal/application/upgrade"
	"github.com/subgov/backend/tests/testutil"
)

func (f *apiFixture) openUpgrade(t *testing.T, coupon string) appupgrade.RequestDTO {
	t.Helper()
	w := f.asTenant(t, http.MethodPost, "/upgrade-requests", CreateUpgradeRequest{
		TargetTierCode: "premium",
		BillingPeriod:  "monthly",
		CouponCode:     coupon,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.DecodeData[appupgrade.RequestDTO](t, w)
}

func (f *apiFixture) uploadProof(t *testing.T, id string) appupgrade.RequestDTO {
	t.Helper()
	w := f.asTenant(t, http.MethodPost, "/upgrade-requests/"+id+"/proof", UploadProofRequest{FileID: "proofs/acme/receipt.pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return testutil.DecodeData[appupgrade.RequestDTO](t, w)
}

func TestUpgradeHandler_PreviewMatchesCreate(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asTenant(t, http.MethodPost, "/upgrade-requests/preview", PreviewUpgradeRequest{TargetTierCode: "premium", BillingPeriod: "monthly"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := testutil.DecodeData[appupgrade.QuoteDTO](t, w)
	assert.Equal(t, "basic", quote.CurrentTierCode)
	assert.Equal(t, int64(9900), quote.ListPrice)
	assert.Positive(t, quote.Amount)

	req := f.openUpgrade(t, "")
	assert.Equal(t, quote.Amount, req.Amount)
	assert.Equal(t, "pending", req.Status)
	assert.Nil(t, req.TransactionID)
	assert.False(t, req.CanReview)
}

func TestUpgradeHandler_ApproveFlow(t *testing.T) {
	f := newAPIFixture(t)
	req := f.openUpgrade(t, "")
	id := req.ID.String()

	uploaded := f.uploadProof(t, id)
	assert.Equal(t, "payment_uploaded", uploaded.Status)
	require.NotNil(t, uploaded.TransactionID)
	assert.True(t, uploaded.CanReview)

	w := f.asAdmin(t, http.MethodPost, "/admin/upgrade-requests/"+id+"/claim", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	claimed := testutil.DecodeData[appupgrade.RequestDTO](t, w)
	assert.Equal(t, "under_review", claimed.Status)
	assert.NotNil(t, claimed.ClaimedBy)

	w = f.asAdmin(t, http.MethodPost, "/admin/upgrade-requests/"+id+"/review", ReviewUpgradeRequest{Action: "approve", Notes: "bank transfer matched"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := testutil.DecodeData[appupgrade.RequestDTO](t, w)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "bank transfer matched", approved.ReviewNotes)

	t.Run("tenant moved to the target tier", func(t *testing.T) {
		w := f.asTenant(t, http.MethodGet, "/tenant", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "premium", testutil.DecodeData[appidentity.TenantDTO](t, w).TierCode)
	})

	t.Run("linked transaction is paid", func(t *testing.T) {
		w := f.asTenant(t, http.MethodGet, "/billing/transactions/"+uploaded.TransactionID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "paid", testutil.DecodeData[appledger.TransactionDTO](t, w).Status)
	})

	t.Run("tenant view hides review data", func(t *testing.T) {
		w := f.asTenant(t, http.MethodGet, "/upgrade-requests/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		view := testutil.DecodeData[appupgrade.RequestDTO](t, w)
		assert.Equal(t, "approved", view.Status)
		assert.Empty(t, view.ReviewNotes)
		assert.Nil(t, view.ClaimedBy)
		assert.Nil(t, view.ReviewedBy)
	})

	t.Run("closed request cannot be reviewed again", func(t *testing.T) {
		w := f.asAdmin(t, http.MethodPost, "/admin/upgrade-requests/"+id+"/review", ReviewUpgradeRequest{Action: "reject", RejectionReason: "late"})
		testutil.AssertError(t, w, http.StatusConflict, "INVALID_TRANSITION")
	})
}

func TestUpgradeHandler_Reject(t *testing.T) {
	f := newAPIFixture(t)
	req := f.openUpgrade(t, "")
	id := req.ID.String()
	uploaded := f.uploadProof(t, id)

	w := f.asAdmin(t, http.MethodPost, "/admin/upgrade-requests/"+id+"/review", ReviewUpgradeRequest{Action: "reject"})
	e := testutil.AssertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	assert.Equal(t, "REJECTION_REASON_REQUIRED", e.Code)

	w = f.asAdmin(t, http.MethodPost, "/admin/upgrade-requests/"+id+"/review", ReviewUpgradeRequest{
		Action:          "reject",
		RejectionReason: "proof illegible",
		Notes:           "scan is blank",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected", testutil.DecodeData[appupgrade.RequestDTO](t, w).Status)

	w = f.asTenant(t, http.MethodGet, "/upgrade-requests/"+id, nil)
	view := testutil.DecodeData[appupgrade.RequestDTO](t, w)
	assert.Equal(t, "proof illegible", view.RejectionReason)
	assert.Empty(t, view.ReviewNotes)

	w = f.asTenant(t, http.MethodGet, "/billing/transactions/"+uploaded.TransactionID.String(), nil)
	assert.Equal(t, "rejected", testutil.DecodeData[appledger.TransactionDTO](t, w).Status)

	w = f.asTenant(t, http.MethodGet, "/tenant", nil)
	assert.Equal(t, "basic", testutil.DecodeData[appidentity.TenantDTO](t, w).TierCode)
}

func TestUpgradeHandler_ApproveNeedsProof(t *testing.T) {
	f := newAPIFixture(t)
	req := f.openUpgrade(t, "")

	w := f.asAdmin(t, http.MethodPost, "/admin/upgrade-requests/"+req.ID.String()+"/review", ReviewUpgradeRequest{Action: "approve"})
	testutil.AssertError(t, w, http.StatusConflict, "INVALID_TRANSITION")
}

func TestUpgradeHandler_OneOpenRequest(t *testing.T) {
	f := newAPIFixture(t)
	f.openUpgrade(t, "")

	w := f.asTenant(t, http.MethodPost, "/upgrade-requests", CreateUpgradeRequest{TargetTierCode: "premium", BillingPeriod: "yearly"})
	testutil.AssertError(t, w, http.StatusConflict, "ALREADY_EXISTS")
}

func TestUpgradeHandler_CancelReleasesSlot(t *testing.T) {
	f := newAPIFixture(t)
	req := f.openUpgrade(t, "")
	uploaded := f.uploadProof(t, req.ID.String())

	w := f.asTenant(t, http.MethodPost, "/upgrade-requests/"+req.ID.String()+"/cancel", CancelRequest{Reason: "changed my mind"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", testutil.DecodeData[appupgrade.RequestDTO](t, w).Status)

	w = f.asTenant(t, http.MethodGet, "/billing/transactions/"+uploaded.TransactionID.String(), nil)
	assert.Equal(t, "cancelled", testutil.DecodeData[appledger.TransactionDTO](t, w).Status)

	f.openUpgrade(t, "")
}

func TestUpgradeHandler_CouponRedeemedOnProof(t *testing.T) {
	f := newAPIFixture(t)
	w := f.asAdmin(t, http.MethodPost, "/admin/coupons", map[string]any{
		"code":           "SAVE20",
		"discount_type":  "percentage",
		"discount_value": "20",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	coupon := testutil.DecodeData[appcoupon.CouponDTO](t, w)

	req := f.openUpgrade(t, "SAVE20")
	assert.Equal(t, "SAVE20", req.CouponCode)

	w = f.asAdmin(t, http.MethodGet, "/admin/coupons/"+coupon.ID.String()+"/redemptions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]appcoupon.RedemptionDTO](t, w))

	uploaded := f.uploadProof(t, req.ID.String())

	w = f.asTenant(t, http.MethodGet, "/billing/transactions/"+uploaded.TransactionID.String(), nil)
	tx := testutil.DecodeData[appledger.TransactionDTO](t, w)
	assert.Equal(t, "SAVE20", tx.CouponCode)
	assert.Equal(t, req.Amount*20/100, tx.CouponDiscount)
	assert.Equal(t, tx.Amount-tx.DiscountAmount, tx.NetAmount)

	w = f.asAdmin(t, http.MethodGet, "/admin/coupons/"+coupon.ID.String()+"/redemptions", nil)
	redemptions := testutil.DecodeData[[]appcoupon.RedemptionDTO](t, w)
	require.Len(t, redemptions, 1)
	assert.Equal(t, uploaded.TransactionID, redemptions[0].TransactionID)
}

func TestUpgradeHandler_InvalidCouponRejectsCreate(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asTenant(t, http.MethodPost, "/upgrade-requests", CreateUpgradeRequest{
		TargetTierCode: "premium",
		BillingPeriod:  "monthly",
		CouponCode:     "NOPE",
	})
	e := testutil.AssertError(t, w, http.StatusUnprocessableEntity, "COUPON_INVALID")
	assert.Equal(t, "COUPON_NOT_FOUND", e.Code)
}

func TestUpgradeHandler_TenantIsolation(t *testing.T) {
	f := newAPIFixture(t)
	req := f.openUpgrade(t, "")
	other := testutil.SeedTenant(t, f.db, "OTHER", f.tiers["free"], testutil.Now)

	w := f.asTenantOf(t, other.ID, http.MethodGet, "/upgrade-requests/"+req.ID.String(), nil)
	testutil.AssertError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = f.asTenantOf(t, other.ID, http.MethodGet, "/upgrade-requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]appupgrade.RequestDTO](t, w))

	w = f.asAdmin(t, http.MethodGet, "/admin/upgrade-requests?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]appupgrade.RequestDTO](t, w), 1)
}
