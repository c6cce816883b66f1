package handler

import (
	"github.com/gin-gonic/gin"
	appbilling "github.com/subgov/backend/internal/application/billing"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/upgrade"
	"github.com/subgov/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// MetaHandler exposes enumerations and runtime switches to clients
type MetaHandler struct {
	BaseHandler
	runtime RuntimeResponse
	enums   EnumsResponse
}

// EnumsResponse lists every closed value set used by the API
type EnumsResponse struct {
	MetricTypes         []string `json:"metric_types"`
	BillingPeriods      []string `json:"billing_periods"`
	TenantStatuses      []string `json:"tenant_statuses"`
	TransactionTypes    []string `json:"transaction_types"`
	TransactionStatuses []string `json:"transaction_statuses"`
	UpgradeStatuses     []string `json:"upgrade_statuses"`
	DiscountTypes       []string `json:"discount_types"`
}

// RuntimeResponse is the runtime snapshot plus the metering policy
type RuntimeResponse struct {
	config.RuntimeSnapshot
	Enforcement    string `json:"enforcement" example:"soft"`
	WarningPercent int64  `json:"warning_percent" example:"80"`
	ExceedPercent  int64  `json:"exceeded_percent" example:"100"`
}

// NewMetaHandler creates a new MetaHandler
func NewMetaHandler(runtime config.RuntimeSnapshot, metering appbilling.MeteringConfig, log *zap.Logger) *MetaHandler {
	return &MetaHandler{
		BaseHandler: BaseHandler{log: log},
		runtime:     RuntimeResponse{
			RuntimeSnapshot: runtime,
			Enforcement:     string(metering.Enforcement),
			WarningPercent:  metering.Thresholds.WarningPercent,
			ExceedPercent:   metering.Thresholds.ExceededPercent,
		},
		enums: EnumsResponse{
			MetricTypes:         strs(billing.AllMetricTypes()),
			BillingPeriods:      strs(billing.AllBillingPeriods()),
			TenantStatuses:      strs(identity.AllTenantStatuses()),
			TransactionTypes:    strs(ledger.AllTransactionTypes()),
			TransactionStatuses: strs(ledger.AllTransactionStatuses()),
			UpgradeStatuses:     strs(upgrade.AllRequestStatuses()),
			DiscountTypes:       strs(coupon.AllDiscountTypes()),
		},
	}
}

// Enums godoc
//
//	@ID				getMetaEnums
//	@Summary		List enumerations
//	@Tags			meta
//	@Produce		json
//	@Success		200	{object}	APIResponse[EnumsResponse]
//	@Router			/meta/enums [get]
func (h *MetaHandler) Enums(c *gin.Context) {
	h.Success(c, h.enums)
}

// Runtime godoc
//
//	@ID				getMetaRuntime
//	@Summary		Runtime switches
//	@Description	Dev mode, feature flags and the usage enforcement policy as configured at startup
//	@Tags			meta
//	@Produce		json
//	@Success		200	{object}	APIResponse[RuntimeResponse]
//	@Router			/meta/runtime [get]
func (h *MetaHandler) Runtime(c *gin.Context) {
	h.Success(c, h.runtime)
}

func strs[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
