package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appbilling "github.com/subgov/backend/internal/application/billing"
	appidentity "github.com/subgov/backend/internal/application/identity"
	"github.com/subgov/backend/tests/testutil"
)

func TestTenantHandler_Provision(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asAdmin(t, http.MethodPost, "/admin/tenants", ProvisionTenantRequest{
		Code:         "beta",
		Name:         "Beta Ltd",
		ContactEmail: "ops@beta.test",
		TrialDays:    14,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tenant := testutil.DecodeData[appidentity.TenantDTO](t, w)
	assert.Equal(t, "free", tenant.TierCode)
	assert.Equal(t, "trial", tenant.Status)
	require.NotNil(t, tenant.TrialEndsAt)
	assert.Equal(t, int64(3), tenant.Limits.MaxUsers)

	// Provisioning leaves one quota per metric
	w = f.asAdmin(t, http.MethodGet, "/admin/usage/tenant/"+tenant.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]appbilling.QuotaDTO](t, w), 4)

	t.Run("duplicate code", func(t *testing.T) {
		w := f.asAdmin(t, http.MethodPost, "/admin/tenants", ProvisionTenantRequest{Code: "beta", Name: "Again"})
		testutil.AssertError(t, w, http.StatusConflict, "ALREADY_EXISTS")
	})

	t.Run("bad email", func(t *testing.T) {
		w := f.asAdmin(t, http.MethodPost, "/admin/tenants", ProvisionTenantRequest{Code: "gamma", Name: "Gamma", ContactEmail: "nope"})
		e := testutil.AssertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
		require.Len(t, e.Fields, 1)
		assert.Equal(t, "contact_email", e.Fields[0].Field)
	})

	t.Run("unknown tier", func(t *testing.T) {
		w := f.asAdmin(t, http.MethodPost, "/admin/tenants", ProvisionTenantRequest{Code: "delta", Name: "Delta", TierCode: "platinum"})
		testutil.AssertError(t, w, http.StatusNotFound, "NOT_FOUND")
	})
}

func TestTenantHandler_ChangeTierSyncsQuotas(t *testing.T) {
	f := newAPIFixture(t)
	id := f.tenant.ID.String()
	testutil.SetUsage(t, f.db, f.tenant.ID, "active_users", 7)

	w := f.asAdmin(t, http.MethodPost, "/admin/tenants/"+id+"/tier", ChangeTierRequest{TierCode: "enterprise"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tenant := testutil.DecodeData[appidentity.TenantDTO](t, w)
	assert.Equal(t, "enterprise", tenant.TierCode)
	assert.Equal(t, "monthly", tenant.BillingPeriod)
	assert.Equal(t, int64(-1), tenant.Limits.MaxUsers)

	w = f.asTenant(t, http.MethodGet, "/usage/quotas/active_users/check", nil)
	check := testutil.DecodeData[appbilling.LimitCheckDTO](t, w)
	assert.True(t, check.Unlimited)
	assert.True(t, check.CanAdd)
	assert.Equal(t, int64(7), check.Current)
}

func TestTenantHandler_LimitOverride(t *testing.T) {
	f := newAPIFixture(t)
	path := "/admin/tenants/" + f.tenant.ID.String() + "/overrides/branches"

	w := f.asAdmin(t, http.MethodPut, path, LimitOverrideRequest{Value: 25, Reason: "franchise deal"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tenant := testutil.DecodeData[appidentity.TenantDTO](t, w)
	assert.Equal(t, int64(25), tenant.Limits.MaxBranches)
	require.Contains(t, tenant.LimitOverrides, "branches")
	assert.Equal(t, "franchise deal", tenant.LimitOverrides["branches"].Reason)

	w = f.asTenant(t, http.MethodGet, "/usage/quotas/branches/check", nil)
	assert.Equal(t, int64(25), testutil.DecodeData[appbilling.LimitCheckDTO](t, w).Limit)

	// The override survives a tier change
	w = f.asAdmin(t, http.MethodPost, "/admin/tenants/"+f.tenant.ID.String()+"/tier", ChangeTierRequest{TierCode: "premium"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(25), testutil.DecodeData[appidentity.TenantDTO](t, w).Limits.MaxBranches)

	w = f.asAdmin(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tenant = testutil.DecodeData[appidentity.TenantDTO](t, w)
	assert.Equal(t, int64(10), tenant.Limits.MaxBranches)
	assert.Empty(t, tenant.LimitOverrides)

	w = f.asAdmin(t, http.MethodDelete, path, nil)
	testutil.AssertError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = f.asAdmin(t, http.MethodPut, path, LimitOverrideRequest{Value: -2})
	testutil.AssertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestTenantHandler_SuspendedTenantCannotUpgrade(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asAdmin(t, http.MethodPost, "/admin/tenants/"+f.tenant.ID.String()+"/status", SetStatusRequest{Status: "suspended"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "suspended", testutil.DecodeData[appidentity.TenantDTO](t, w).Status)

	w = f.asTenant(t, http.MethodPost, "/upgrade-requests", CreateUpgradeRequest{TargetTierCode: "premium", BillingPeriod: "monthly"})
	testutil.AssertError(t, w, http.StatusForbidden, "FORBIDDEN")
}

func TestTenantHandler_List(t *testing.T) {
	f := newAPIFixture(t)
	testutil.SeedTenant(t, f.db, "OTHER", f.tiers["free"], testutil.Now)

	w := f.asAdmin(t, http.MethodGet, "/admin/tenants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := testutil.DecodeEnvelope(t, w)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(2), env.Meta.Total)

	w = f.asAdmin(t, http.MethodGet, "/admin/tenants?tier_code=basic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := testutil.DecodeData[[]appidentity.TenantDTO](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, f.tenant.ID, list[0].ID)

	w = f.asAdmin(t, http.MethodGet, "/admin/tenants?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
