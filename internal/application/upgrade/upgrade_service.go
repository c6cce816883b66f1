package upgrade

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	appcoupon "github.com/subgov/backend/internal/application/coupon"
	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
	"go.uber.org/zap"
)

// RequestNumberPrefix prefixes every upgrade request number
const RequestNumberPrefix = "UPG"

// NumberGenerator issues human-readable document numbers
type NumberGenerator interface {
	Next(prefix string, at time.Time) string
}

// Ledger is the part of the billing ledger the workflow drives
type Ledger interface {
	CreateInScope(ctx context.Context, repos uow.TransactionalRepositories, p ledger.NewTransactionParams) (*ledger.BillingTransaction, error)
	ApproveInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, by *uuid.UUID, notes string) error
	RejectInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, by *uuid.UUID, reason, notes string) error
	CancelInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, by *uuid.UUID, reason string) error
	ApplyCouponInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, code string) error
}

// CouponValidator dry-runs a coupon inside a unit of work
type CouponValidator interface {
	ValidateInScope(ctx context.Context, repos uow.TransactionalRepositories, input appcoupon.ValidateInput) (*appcoupon.ValidationResult, error)
}

// ProofVerifier confirms that an uploaded file exists and belongs to the tenant.
// The engine never reads the file itself.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, tenantID uuid.UUID, fileID string) error
}

// ReviewMetrics counts review outcomes
type ReviewMetrics interface {
	RequestClosed(ctx context.Context, status upgrade.RequestStatus)
}

type noopReviewMetrics struct{}

func (noopReviewMetrics) RequestClosed(context.Context, upgrade.RequestStatus) {}

// UpgradeConfig contains configuration for UpgradeService
type UpgradeConfig struct {
	RequestTTL       time.Duration
	ProrationEnabled bool
	ExpiryBatchSize  int
}

// DefaultUpgradeConfig returns default configuration
func DefaultUpgradeConfig() UpgradeConfig {
	return UpgradeConfig{
		RequestTTL:       7 * 24 * time.Hour,
		ProrationEnabled: true,
		ExpiryBatchSize:  100,
	}
}

// UpgradeService runs the tenant-initiated, admin-reviewed tier change workflow
type UpgradeService struct {
	scope   uow.TransactionScope
	reqRepo upgrade.RequestRepository
	tenants identity.TenantRepository
	tiers   billing.TierRepository
	ledger  Ledger
	coupons CouponValidator
	proofs  ProofVerifier
	numbers NumberGenerator
	metrics ReviewMetrics
	cfg     UpgradeConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewUpgradeService creates a new upgrade service
func NewUpgradeService(
	scope uow.TransactionScope,
	reqRepo upgrade.RequestRepository,
	tenants identity.TenantRepository,
	tiers billing.TierRepository,
	ledgerSvc Ledger,
	coupons CouponValidator,
	numbers NumberGenerator,
	cfg UpgradeConfig,
	logger *zap.Logger,
) *UpgradeService {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = DefaultUpgradeConfig().RequestTTL
	}
	if cfg.ExpiryBatchSize <= 0 {
		cfg.ExpiryBatchSize = 100
	}
	return &UpgradeService{
		scope:   scope,
		reqRepo: reqRepo,
		tenants: tenants,
		tiers:   tiers,
		ledger:  ledgerSvc,
		coupons: coupons,
		metrics: noopReviewMetrics{},
		numbers: numbers,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetProofVerifier enables proof existence checks
func (s *UpgradeService) SetProofVerifier(v ProofVerifier) {
	s.proofs = v
}

// SetMetrics wires a metrics sink
func (s *UpgradeService) SetMetrics(m ReviewMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetClock overrides the time source
func (s *UpgradeService) SetClock(now func() time.Time) {
	s.now = now
}

// Preview prices a tier change without side effects. Create uses the same
// computation, so the preview always matches the eventual request amount.
func (s *UpgradeService) Preview(ctx context.Context, tenantID uuid.UUID, targetTier string, period billing.BillingPeriod) (*QuoteDTO, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, notFoundAs(err, "TENANT_NOT_FOUND", "Tenant not found")
	}
	q, err := s.quote(ctx, s.tiers, tenant, targetTier, period, s.now())
	if err != nil {
		return nil, err
	}
	return toQuoteDTO(q), nil
}

func (s *UpgradeService) quote(ctx context.Context, tiers billing.TierRepository, tenant *identity.Tenant, targetTier string, period billing.BillingPeriod, now time.Time) (upgrade.Quote, error) {
	if !period.IsValid() {
		return upgrade.Quote{}, shared.NewValidationError("INVALID_BILLING_PERIOD", "Billing period must be monthly or yearly")
	}
	current, err := tiers.FindByCode(ctx, tenant.TierCode)
	if err != nil {
		return upgrade.Quote{}, notFoundAs(err, "TIER_NOT_FOUND", "Tier not found: "+tenant.TierCode)
	}
	target, err := tiers.FindByCode(ctx, targetTier)
	if err != nil {
		return upgrade.Quote{}, notFoundAs(err, "TIER_NOT_FOUND", "Tier not found: "+targetTier)
	}
	sub := upgrade.CurrentSubscription{
		Tier:          current,
		BillingPeriod: tenant.BillingPeriod,
		PeriodStart:   tenant.CurrentPeriodStart,
		PeriodEnd:     tenant.CurrentPeriodEnd,
	}
	// only paying, active subscriptions earn a credit for unused time
	prorate := s.cfg.ProrationEnabled && tenant.Status == identity.TenantStatusActive
	return upgrade.Price(sub, target, period, prorate, now)
}

// Create opens a pending request. A tenant has at most one open request.
func (s *UpgradeService) Create(ctx context.Context, tenantID uuid.UUID, input CreateRequestInput) (*RequestDTO, error) {
	now := s.now()
	var req *upgrade.UpgradeRequest
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		tenant, err := repos.TenantRepo().FindByIDForUpdate(ctx, tenantID)
		if err != nil {
			return notFoundAs(err, "TENANT_NOT_FOUND", "Tenant not found")
		}
		if !tenant.CanRequestUpgrade() {
			return shared.NewDomainError("FORBIDDEN", "Suspended tenants cannot request a tier change")
		}
		open, err := repos.UpgradeRequestRepo().FindOpenByTenant(ctx, tenantID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if open != nil {
			return shared.NewDomainError("ALREADY_EXISTS", "An upgrade request is already in progress").
				WithDetail("request_number", open.RequestNumber)
		}

		q, err := s.quote(ctx, repos.TierRepo(), tenant, input.TargetTierCode, input.BillingPeriod, now)
		if err != nil {
			return err
		}
		if input.CouponCode != "" {
			res, err := s.coupons.ValidateInScope(ctx, repos, appcoupon.ValidateInput{
				Code: input.CouponCode, TenantID: tenantID, Amount: q.Amount, TierCode: q.TargetTierCode,
			})
			if err != nil {
				return err
			}
			if !res.Valid {
				return couponRejection(res)
			}
		}

		req, err = upgrade.NewUpgradeRequest(tenantID, s.numbers.Next(RequestNumberPrefix, now), q, input.CouponCode, input.RequestedBy, s.cfg.RequestTTL, now)
		if err != nil {
			return err
		}
		if err := repos.UpgradeRequestRepo().Create(ctx, req); err != nil {
			return err
		}
		return uow.RecordEvents(ctx, repos.Events(), req)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Upgrade request created",
		zap.String("request_id", req.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("target_tier", req.TargetTierCode),
		zap.Int64("amount", req.Amount))
	dto := ToRequestDTO(req).TenantView()
	return &dto, nil
}

// UploadProof attaches the payment proof, opens the linked ledger entry and
// redeems the requested coupon against it
func (s *UpgradeService) UploadProof(ctx context.Context, tenantID, id uuid.UUID, fileID string) (*RequestDTO, error) {
	if s.proofs != nil && fileID != "" {
		if err := s.proofs.VerifyProof(ctx, tenantID, fileID); err != nil {
			return nil, err
		}
	}
	req, err := s.mutate(ctx, id, &tenantID, func(repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest, now time.Time) error {
		if fileID == "" {
			return shared.NewValidationError("INVALID_FILE_ID", "Payment proof file ID cannot be empty")
		}
		if _, ok := req.Status.Next(upgrade.ActionUploadProof); !ok {
			return shared.NewInvalidTransitionError("upgrade request "+req.RequestNumber, string(req.Status), "upload proof")
		}
		tx, err := s.ledger.CreateInScope(ctx, repos, ledger.NewTransactionParams{
			TenantID:         req.TenantID,
			Type:             req.Direction.TransactionType(),
			Source:           ledger.SourceUpgradeRequest,
			Amount:           req.Amount,
			Currency:         req.Currency,
			TargetTierCode:   req.TargetTierCode,
			BillingPeriod:    req.BillingPeriod,
			UpgradeRequestID: &req.ID,
			RequiresReview:   true,
			Description:      "Upgrade request " + req.RequestNumber,
			CreatedBy:        req.RequestedBy,
		})
		if err != nil {
			return err
		}
		if req.CouponCode != "" {
			if err := s.ledger.ApplyCouponInScope(ctx, repos, tx, req.CouponCode); err != nil {
				return err
			}
		}
		return req.UploadProof(fileID, tx.ID, now)
	})
	if err != nil {
		return nil, err
	}
	dto := ToRequestDTO(req).TenantView()
	return &dto, nil
}

// BeginReview lets an admin claim a request
func (s *UpgradeService) BeginReview(ctx context.Context, id, adminID uuid.UUID) (*RequestDTO, error) {
	req, err := s.mutate(ctx, id, nil, func(_ uow.TransactionalRepositories, req *upgrade.UpgradeRequest, now time.Time) error {
		return req.BeginReview(adminID, now)
	})
	if err != nil {
		return nil, err
	}
	dto := ToRequestDTO(req)
	return &dto, nil
}

// Review applies the admin decision. Approval marks the linked transaction paid,
// moves the tenant to the target tier and re-syncs quotas in one database
// transaction; on any failure the request and transaction keep their state.
func (s *UpgradeService) Review(ctx context.Context, id uuid.UUID, input ReviewInput) (*RequestDTO, error) {
	if input.Action != ReviewApprove && input.Action != ReviewReject {
		return nil, shared.NewValidationError("INVALID_ACTION", "Review action must be approve or reject")
	}
	by := input.ReviewedBy
	req, err := s.mutate(ctx, id, nil, func(repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest, now time.Time) error {
		if !req.CanReview() {
			return shared.NewInvalidTransitionError("upgrade request "+req.RequestNumber, string(req.Status), string(input.Action))
		}
		tx, err := s.linkedTransaction(ctx, repos, req)
		if err != nil {
			return err
		}

		if input.Action == ReviewApprove {
			if tx == nil {
				return shared.NewValidationError("TRANSACTION_REQUIRED", "Request has no linked billing transaction")
			}
			if err := req.Approve(by, input.Notes, now); err != nil {
				return err
			}
			return s.ledger.ApproveInScope(ctx, repos, tx, &by, input.Notes)
		}

		if err := req.Reject(by, input.RejectionReason, input.Notes, now); err != nil {
			return err
		}
		if tx != nil && tx.Status == ledger.StatusPending {
			return s.ledger.RejectInScope(ctx, repos, tx, &by, req.RejectionReason, input.Notes)
		}
		return nil
	})
	if err != nil {
		if shared.IsKind(err, shared.KindAtomicityFailure) {
			s.logger.Error("Upgrade approval rolled back", zap.String("request_id", id.String()), zap.Error(err))
		}
		return nil, err
	}
	s.metrics.RequestClosed(ctx, req.Status)
	s.logger.Info("Upgrade request reviewed",
		zap.String("request_id", req.ID.String()),
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("status", string(req.Status)))
	dto := ToRequestDTO(req)
	return &dto, nil
}

// Cancel withdraws a request on the tenant's behalf and cancels its linked transaction
func (s *UpgradeService) Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*RequestDTO, error) {
	req, err := s.mutate(ctx, id, &tenantID, func(repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest, now time.Time) error {
		if err := req.Cancel(reason, now); err != nil {
			return err
		}
		return s.cancelLinked(ctx, repos, req, "Upgrade request cancelled")
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RequestClosed(ctx, req.Status)
	dto := ToRequestDTO(req).TenantView()
	return &dto, nil
}

// ExpireDue expires every request past its deadline. Each request is handled
// in its own transaction and re-checked under lock.
func (s *UpgradeService) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.reqRepo.FindExpiredIDs(ctx, s.now(), s.cfg.ExpiryBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		changed := false
		_, err := s.mutate(ctx, id, nil, func(repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest, now time.Time) error {
			if !req.IsExpired(now) {
				return nil
			}
			if err := req.Expire(now); err != nil {
				return err
			}
			changed = true
			return s.cancelLinked(ctx, repos, req, "Upgrade request expired")
		})
		if err != nil {
			s.logger.Warn("Failed to expire upgrade request", zap.String("request_id", id.String()), zap.Error(err))
			continue
		}
		if changed {
			expired++
			s.metrics.RequestClosed(ctx, upgrade.StatusExpired)
		}
	}
	if expired > 0 {
		s.logger.Info("Upgrade requests expired", zap.Int("count", expired))
	}
	return expired, nil
}

// Get returns a request with internal review data
func (s *UpgradeService) Get(ctx context.Context, id uuid.UUID) (*RequestDTO, error) {
	req, err := s.reqRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "UPGRADE_REQUEST_NOT_FOUND", "Upgrade request not found")
	}
	dto := ToRequestDTO(req)
	return &dto, nil
}

// GetForTenant returns one of the tenant's requests without internal review data
func (s *UpgradeService) GetForTenant(ctx context.Context, tenantID, id uuid.UUID) (*RequestDTO, error) {
	req, err := s.reqRepo.FindByID(ctx, id)
	if err != nil || !req.BelongsTo(tenantID) {
		return nil, notFoundAs(shared.ErrNotFound, "UPGRADE_REQUEST_NOT_FOUND", "Upgrade request not found")
	}
	dto := ToRequestDTO(req).TenantView()
	return &dto, nil
}

// List pages through requests
func (s *UpgradeService) List(ctx context.Context, filter upgrade.RequestFilter, tenantView bool) (*RequestListResult, error) {
	filter.Filter = filter.Filter.Normalize()
	reqs, total, err := s.reqRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]RequestDTO, len(reqs))
	for i, r := range reqs {
		items[i] = ToRequestDTO(r)
		if tenantView {
			items[i] = items[i].TenantView()
		}
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

// mutate locks a request, runs fn and saves the request with its events. A
// non-nil tenantID restricts the call to that tenant's requests.
func (s *UpgradeService) mutate(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID, fn func(repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest, now time.Time) error) (*upgrade.UpgradeRequest, error) {
	var req *upgrade.UpgradeRequest
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		req, err = repos.UpgradeRequestRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundAs(err, "UPGRADE_REQUEST_NOT_FOUND", "Upgrade request not found")
		}
		if tenantID != nil && !req.BelongsTo(*tenantID) {
			return notFoundAs(shared.ErrNotFound, "UPGRADE_REQUEST_NOT_FOUND", "Upgrade request not found")
		}
		version := req.Version
		if err := fn(repos, req, s.now()); err != nil {
			return err
		}
		if req.Version == version {
			return nil
		}
		if err := repos.UpgradeRequestRepo().Update(ctx, req); err != nil {
			return err
		}
		return uow.RecordEvents(ctx, repos.Events(), req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *UpgradeService) linkedTransaction(ctx context.Context, repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest) (*ledger.BillingTransaction, error) {
	if req.TransactionID == nil {
		return nil, nil
	}
	tx, err := repos.TransactionRepo().FindByIDForUpdate(ctx, *req.TransactionID)
	if err != nil {
		return nil, notFoundAs(err, "TRANSACTION_NOT_FOUND", "Linked billing transaction not found")
	}
	return tx, nil
}

// cancelLinked cancels the request's pending transaction so it is never left orphaned
func (s *UpgradeService) cancelLinked(ctx context.Context, repos uow.TransactionalRepositories, req *upgrade.UpgradeRequest, reason string) error {
	tx, err := s.linkedTransaction(ctx, repos, req)
	if err != nil || tx == nil || tx.Status != ledger.StatusPending {
		return err
	}
	return s.ledger.CancelInScope(ctx, repos, tx, nil, reason)
}

func couponRejection(res *appcoupon.ValidationResult) error {
	if res.Reason == shared.ErrCouponAlreadyRedeemed.Code {
		return shared.ErrCouponAlreadyRedeemed
	}
	return shared.NewCouponInvalidError(res.Reason, res.Message)
}

func notFoundAs(err error, code, message string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(code, message)
	}
	return err
}
