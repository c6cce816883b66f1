package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appidentity "github.com/subgov/backend/internal/application/identity"
	appledger "github.com/subgov/backend/internal/application/ledger"
	"github.com/subgov/backend/tests/testutil"
)

const txBase = "/admin/billing/transactions"

func (f *apiFixture) createTx(t *testing.T, req CreateTransactionRequest) appledger.TransactionDTO {
	t.Helper()
	if req.TenantID == "" {
		req.TenantID = f.tenant.ID.String()
	}
	w := f.asAdmin(t, http.MethodPost, txBase, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.DecodeData[appledger.TransactionDTO](t, w)
}

func TestLedgerHandler_ApproveUpgradeTransaction(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.createTx(t, CreateTransactionRequest{
		Type:           "upgrade",
		Amount:         9900,
		TargetTierCode: "premium",
		BillingPeriod:  "monthly",
	})
	assert.Equal(t, "pending", tx.Status)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "manual", tx.Source)
	id := tx.ID.String()

	w := f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/discount", map[string]any{
		"discount_type": "percentage",
		"value":         "10",
		"note":          "loyalty",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tx = testutil.DecodeData[appledger.TransactionDTO](t, w)
	assert.Equal(t, int64(990), tx.ManualDiscount)
	assert.Equal(t, int64(8910), tx.NetAmount)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/bonus", BonusRequest{Days: 14})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 14, testutil.DecodeData[appledger.TransactionDTO](t, w).BonusDays)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/notes", NoteRequest{Text: "called the customer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, testutil.DecodeData[appledger.TransactionDTO](t, w).Notes)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := testutil.DecodeData[appledger.TransactionDTO](t, w)
	assert.Equal(t, "paid", paid.Status)
	assert.NotNil(t, paid.PaidAt)

	w = f.asTenant(t, http.MethodGet, "/tenant", nil)
	assert.Equal(t, "premium", testutil.DecodeData[appidentity.TenantDTO](t, w).TierCode)

	t.Run("tenant view drops notes", func(t *testing.T) {
		w := f.asTenant(t, http.MethodGet, "/billing/transactions/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, testutil.DecodeData[appledger.TransactionDTO](t, w).Notes)

		w = f.asTenant(t, http.MethodGet, "/billing/transactions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := testutil.DecodeData[[]appledger.TransactionDTO](t, w)
		require.Len(t, list, 1)
		assert.Empty(t, list[0].Notes)
	})

	t.Run("paid transactions are final", func(t *testing.T) {
		w := f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/cancel", ReasonRequest{Reason: "oops"})
		testutil.AssertError(t, w, http.StatusConflict, "INVALID_TRANSITION")

		w = f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/discount", map[string]any{"discount_type": "fixed", "value": "100"})
		testutil.AssertError(t, w, http.StatusConflict, "INVALID_TRANSITION")
	})

	t.Run("refund keeps the tier", func(t *testing.T) {
		w := f.asAdmin(t, http.MethodPost, txBase+"/"+id+"/refund", ReasonRequest{Reason: "duplicate charge"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "refunded", testutil.DecodeData[appledger.TransactionDTO](t, w).Status)

		w = f.asTenant(t, http.MethodGet, "/tenant", nil)
		assert.Equal(t, "premium", testutil.DecodeData[appidentity.TenantDTO](t, w).TierCode)
	})
}

func TestLedgerHandler_MarkPaidOnCreate(t *testing.T) {
	f := newAPIFixture(t)

	tx := f.createTx(t, CreateTransactionRequest{
		Type:        "credit_adjustment",
		Amount:      500,
		Description: "goodwill",
		MarkPaid:    true,
		Note:        "approved on call",
	})
	assert.Equal(t, "paid", tx.Status)

	w := f.asTenant(t, http.MethodGet, "/tenant", nil)
	assert.Equal(t, "basic", testutil.DecodeData[appidentity.TenantDTO](t, w).TierCode)
}

func TestLedgerHandler_RejectAndCancel(t *testing.T) {
	f := newAPIFixture(t)
	a := f.createTx(t, CreateTransactionRequest{Type: "renewal", Amount: 2900})
	b := f.createTx(t, CreateTransactionRequest{Type: "renewal", Amount: 2900})

	w := f.asAdmin(t, http.MethodPost, txBase+"/"+a.ID.String()+"/reject", map[string]any{})
	e := testutil.AssertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	assert.Equal(t, "VALIDATION_FAILED", e.Code)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+a.ID.String()+"/reject", RejectTransactionRequest{Reason: "payment not received"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := testutil.DecodeData[appledger.TransactionDTO](t, w)
	assert.Equal(t, "rejected", rejected.Status)
	assert.Equal(t, "payment not received", rejected.RejectionReason)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+b.ID.String()+"/cancel", ReasonRequest{Reason: "duplicate"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", testutil.DecodeData[appledger.TransactionDTO](t, w).Status)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+b.ID.String()+"/approve", nil)
	testutil.AssertError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	w = f.asAdmin(t, http.MethodGet, txBase+"?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := testutil.DecodeData[[]appledger.TransactionDTO](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestLedgerHandler_CouponOncePerTenant(t *testing.T) {
	f := newAPIFixture(t)
	w := f.asAdmin(t, http.MethodPost, "/admin/coupons", map[string]any{
		"code":           "FLAT5",
		"discount_type":  "fixed",
		"discount_value": "500",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	a := f.createTx(t, CreateTransactionRequest{Type: "renewal", Amount: 2900})
	b := f.createTx(t, CreateTransactionRequest{Type: "renewal", Amount: 2900})

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+a.ID.String()+"/coupon", ApplyCouponRequest{Code: "flat5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tx := testutil.DecodeData[appledger.TransactionDTO](t, w)
	assert.Equal(t, "FLAT5", tx.CouponCode)
	assert.Equal(t, int64(500), tx.CouponDiscount)
	assert.Equal(t, int64(2400), tx.NetAmount)

	w = f.asAdmin(t, http.MethodPost, txBase+"/"+b.ID.String()+"/coupon", ApplyCouponRequest{Code: "FLAT5"})
	testutil.AssertError(t, w, http.StatusConflict, "COUPON_ALREADY_REDEEMED")

	// The failed redemption left the second transaction untouched
	w = f.asAdmin(t, http.MethodGet, txBase+"/"+b.ID.String(), nil)
	tx = testutil.DecodeData[appledger.TransactionDTO](t, w)
	assert.Empty(t, tx.CouponCode)
	assert.Equal(t, int64(2900), tx.NetAmount)
}

func TestLedgerHandler_UpgradeLinkedTransactionsAreGuarded(t *testing.T) {
	f := newAPIFixture(t)
	req := f.openUpgrade(t, "")
	uploaded := f.uploadProof(t, req.ID.String())

	w := f.asAdmin(t, http.MethodPost, txBase+"/"+uploaded.TransactionID.String()+"/approve", nil)
	e := testutil.AssertError(t, w, http.StatusConflict, "INVALID_TRANSITION")
	assert.Equal(t, req.ID.String(), e.Details["upgrade_request_id"])
}

func TestLedgerHandler_CreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		body   CreateTransactionRequest
		status int
		kind   string
		code   string
	}{
		{
			name:   "unknown type",
			body:   CreateTransactionRequest{TenantID: f.tenant.ID.String(), Type: "gift", Amount: 100},
			status: http.StatusBadRequest, kind: "VALIDATION_ERROR", code: "VALIDATION_FAILED",
		},
		{
			name:   "tier change without target",
			body:   CreateTransactionRequest{TenantID: f.tenant.ID.String(), Type: "upgrade", Amount: 100},
			status: http.StatusUnprocessableEntity, kind: "VALIDATION_ERROR", code: "TARGET_TIER_REQUIRED",
		},
		{
			name:   "unknown tenant",
			body:   CreateTransactionRequest{TenantID: uuid.NewString(), Type: "manual", Amount: 100},
			status: http.StatusNotFound, kind: "NOT_FOUND", code: "TENANT_NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.asAdmin(t, http.MethodPost, txBase, tt.body)
			e := testutil.AssertError(t, w, tt.status, tt.kind)
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestLedgerHandler_TenantIsolation(t *testing.T) {
	f := newAPIFixture(t)
	tx := f.createTx(t, CreateTransactionRequest{Type: "renewal", Amount: 2900})
	other := testutil.SeedTenant(t, f.db, "OTHER", f.tiers["free"], testutil.Now)

	w := f.asTenantOf(t, other.ID, http.MethodGet, "/billing/transactions/"+tx.ID.String(), nil)
	testutil.AssertError(t, w, http.StatusNotFound, "NOT_FOUND")

	// The tenant_id query parameter cannot widen a tenant's list
	w = f.asTenantOf(t, other.ID, http.MethodGet, "/billing/transactions?tenant_id="+f.tenant.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]appledger.TransactionDTO](t, w))
}
