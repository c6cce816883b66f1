package handler

import (
	"github.com/gin-gonic/gin"
	reportapp "github.com/subgov/backend/internal/application/report"
	"go.uber.org/zap"
)

// ReportHandler handles admin report endpoints
type ReportHandler struct {
	BaseHandler
	reports *reportapp.ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports *reportapp.ReportService, log *zap.Logger) *ReportHandler {
	return &ReportHandler{BaseHandler: BaseHandler{log: log}, reports: reports}
}

// Revenue godoc
//
//	@ID				adminRevenueReport
//	@Summary		Revenue report
//	@Description	Paid revenue in the window grouped by type, period and currency, with refunds, run rate and churn.
//	@Description	Defaults to the current calendar month.
//	@Tags			admin-reports
//	@Produce		json
//	@Param			start_date	query		string	false	"Start date"	format(date)	example(2026-03-01)
//	@Param			end_date	query		string	false	"End date"		format(date)	example(2026-03-31)
//	@Success		200			{object}	APIResponse[reportapp.RevenueReportResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/reports/revenue [get]
func (h *ReportHandler) Revenue(c *gin.Context) {
	var filter reportapp.RevenueFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	report, err := h.reports.GetRevenueReport(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// TierDistribution godoc
//
//	@ID				adminTierDistributionReport
//	@Summary		Tenants per tier and status
//	@Tags			admin-reports
//	@Produce		json
//	@Success		200	{object}	APIResponse[reportapp.TierDistributionResponse]
//	@Security		BearerAuth
//	@Router			/admin/reports/tiers [get]
func (h *ReportHandler) TierDistribution(c *gin.Context) {
	report, err := h.reports.GetTierDistribution(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// UsageOverview godoc
//
//	@ID				adminUsageOverviewReport
//	@Summary		Usage per metric across tenants
//	@Tags			admin-reports
//	@Produce		json
//	@Success		200	{object}	APIResponse[[]reportapp.MetricUsageResponse]
//	@Security		BearerAuth
//	@Router			/admin/reports/usage [get]
func (h *ReportHandler) UsageOverview(c *gin.Context) {
	report, err := h.reports.GetUsageOverview(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Consistency godoc
//
//	@ID				adminConsistencyReport
//	@Summary		Ledger consistency check
//	@Description	Counts pending transactions whose upgrade request is already closed
//	@Tags			admin-reports
//	@Produce		json
//	@Success		200	{object}	APIResponse[reportapp.ConsistencyResponse]
//	@Security		BearerAuth
//	@Router			/admin/reports/consistency [get]
func (h *ReportHandler) Consistency(c *gin.Context) {
	report, err := h.reports.GetConsistency(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !report.Healthy {
		h.logger(c).Warn("Orphaned pending transactions found",
			zap.Int64("count", report.OrphanedPendingTransactions))
	}
	h.Success(c, report)
}
