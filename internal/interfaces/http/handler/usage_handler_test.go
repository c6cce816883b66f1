package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appbilling "github.com/subgov/backend/internal/application/billing"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/tests/testutil"
)

func TestUsageHandler_ListQuotas(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asTenant(t, http.MethodGet, "/usage/quotas", nil)
	require.Equal(t, http.StatusOK, w.Code)

	quotas := testutil.DecodeData[[]appbilling.QuotaDTO](t, w)
	require.Len(t, quotas, 4)
	byMetric := make(map[string]appbilling.QuotaDTO)
	for _, q := range quotas {
		byMetric[q.MetricType] = q
	}
	assert.Equal(t, int64(100000), byMetric["api_calls"].LimitValue)
	assert.Equal(t, int64(3), byMetric["branches"].LimitValue)
	assert.False(t, byMetric["branches"].Unlimited)
}

func TestUsageHandler_RecordUsage(t *testing.T) {
	f := newAPIFixture(t)
	testutil.SetUsage(t, f.db, f.tenant.ID, billing.MetricBranches, 2)

	w := f.asTenant(t, http.MethodPost, "/usage/record", RecordUsageRequest{MetricType: "branches", Delta: 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := testutil.DecodeData[appbilling.RecordUsageResult](t, w)
	assert.Equal(t, int64(2), res.PreviousValue)
	assert.Equal(t, int64(4), res.Quota.CurrentValue)
	assert.True(t, res.OverLimit)
	require.NotNil(t, res.Alert)
	assert.Equal(t, "exceeded", res.Alert.Level)

	// A second crossing while the first alert is open is suppressed
	w = f.asTenant(t, http.MethodPost, "/usage/record", RecordUsageRequest{MetricType: "branches", Delta: 1})
	require.Equal(t, http.StatusOK, w.Code)
	res = testutil.DecodeData[appbilling.RecordUsageResult](t, w)
	assert.Equal(t, int64(5), res.Quota.CurrentValue)
	assert.Nil(t, res.Alert)

	t.Run("check limit reports no headroom", func(t *testing.T) {
		w := f.asTenant(t, http.MethodGet, "/usage/quotas/branches/check", nil)
		require.Equal(t, http.StatusOK, w.Code)
		check := testutil.DecodeData[appbilling.LimitCheckDTO](t, w)
		assert.False(t, check.CanAdd)
		assert.Equal(t, int64(5), check.Current)
		assert.Equal(t, int64(3), check.Limit)
		assert.Equal(t, int64(0), check.Available)
	})

	t.Run("alerts can be acknowledged", func(t *testing.T) {
		w := f.asTenant(t, http.MethodGet, "/usage/alerts", nil)
		require.Equal(t, http.StatusOK, w.Code)
		env := testutil.DecodeEnvelope(t, w)
		require.NotNil(t, env.Meta)
		assert.Equal(t, int64(1), env.Meta.Total)
		alerts := testutil.DecodeData[[]appbilling.AlertDTO](t, w)
		require.Len(t, alerts, 1)

		w = f.asTenant(t, http.MethodPost, "/usage/alerts/"+alerts[0].ID.String()+"/acknowledge", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, testutil.DecodeData[appbilling.AlertDTO](t, w).Acknowledged)
	})
}

func TestUsageHandler_RecordUsage_Validation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{"unknown metric", map[string]any{"metric_type": "sms", "delta": 1}},
		{"zero delta", map[string]any{"metric_type": "api_calls", "delta": 0}},
		{"negative delta", map[string]any{"metric_type": "api_calls", "delta": -4}},
		{"missing metric", map[string]any{"delta": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.asTenant(t, http.MethodPost, "/usage/record", tt.body)
			e := testutil.AssertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
			assert.Equal(t, "VALIDATION_FAILED", e.Code)
			assert.NotEmpty(t, e.Fields)
		})
	}
}

func TestUsageHandler_CheckLimit_UnknownMetric(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asTenant(t, http.MethodGet, "/usage/quotas/sms/check", nil)
	testutil.AssertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUsageHandler_HardEnforcement(t *testing.T) {
	cfg := appbilling.DefaultMeteringConfig()
	cfg.Enforcement = appbilling.EnforcementHard
	f := newAPIFixtureWith(t, cfg)
	testutil.SetUsage(t, f.db, f.tenant.ID, billing.MetricBranches, 3)

	w := f.asTenant(t, http.MethodPost, "/usage/record", RecordUsageRequest{MetricType: "branches", Delta: 1})
	e := testutil.AssertError(t, w, http.StatusTooManyRequests, "LIMIT_EXCEEDED")
	assert.Equal(t, "branches", e.Details["metric_type"])

	// The rejected write left the counter alone
	w = f.asTenant(t, http.MethodGet, "/usage/quotas/branches/check", nil)
	assert.Equal(t, int64(3), testutil.DecodeData[appbilling.LimitCheckDTO](t, w).Current)
}

func TestUsageHandler_AdminReset(t *testing.T) {
	f := newAPIFixture(t)
	testutil.SetUsage(t, f.db, f.tenant.ID, billing.MetricAPICalls, 5000)
	base := "/admin/usage/tenant/" + f.tenant.ID.String()

	w := f.asAdmin(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]appbilling.QuotaDTO](t, w), 4)

	w = f.asAdmin(t, http.MethodPost, base+"/reset/api_calls", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quota := testutil.DecodeData[appbilling.QuotaDTO](t, w)
	assert.Equal(t, int64(0), quota.CurrentValue)
	assert.Equal(t, int64(100000), quota.LimitValue)

	w = f.asAdmin(t, http.MethodPost, base+"/reset/sms", nil)
	testutil.AssertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	w = f.asAdmin(t, http.MethodPost, "/admin/usage/tenant/not-a-uuid/reset", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageHandler_RunMonthlyResets_NothingDue(t *testing.T) {
	f := newAPIFixture(t)

	w := f.asAdmin(t, http.MethodPost, "/admin/usage/resets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, testutil.DecodeData[appbilling.ResetSummary](t, w).Reset)
}

func TestUsageHandler_Authorization(t *testing.T) {
	f := newAPIFixture(t)
	adminPath := "/admin/usage/tenant/" + f.tenant.ID.String()

	testutil.AssertError(t, f.asTenant(t, http.MethodGet, adminPath, nil), http.StatusForbidden, "FORBIDDEN")
	testutil.AssertError(t, f.asAdmin(t, http.MethodGet, "/usage/quotas", nil), http.StatusForbidden, "FORBIDDEN")
	testutil.AssertError(t, f.anonymous(t, http.MethodGet, "/usage/quotas", nil), http.StatusUnauthorized, "UNAUTHORIZED")
}
