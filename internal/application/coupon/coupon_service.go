package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RedemptionMetrics counts coupon outcomes
type RedemptionMetrics interface {
	CouponRedeemed(ctx context.Context, code string, discount int64)
	CouponRejected(ctx context.Context, reason string)
}

type noopRedemptionMetrics struct{}

func (noopRedemptionMetrics) CouponRedeemed(context.Context, string, int64) {}
func (noopRedemptionMetrics) CouponRejected(context.Context, string)        {}

// CouponService resolves discount codes and manages the coupon catalogue
type CouponService struct {
	scope          uow.TransactionScope
	couponRepo     coupon.CouponRepository
	redemptionRepo coupon.RedemptionRepository
	metrics        RedemptionMetrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewCouponService creates a new coupon service
func NewCouponService(
	scope uow.TransactionScope,
	couponRepo coupon.CouponRepository,
	redemptionRepo coupon.RedemptionRepository,
	logger *zap.Logger,
) *CouponService {
	return &CouponService{
		scope:          scope,
		couponRepo:     couponRepo,
		redemptionRepo: redemptionRepo,
		metrics:        noopRedemptionMetrics{},
		logger:         logger,
		now:            time.Now,
	}
}

// SetMetrics wires a metrics sink
func (s *CouponService) SetMetrics(m RedemptionMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetClock overrides the time source
func (s *CouponService) SetClock(now func() time.Time) {
	s.now = now
}

// Validate runs the full rule chain without redeeming anything. Rule failures
// are reported in the result; only infrastructure failures return an error.
func (s *CouponService) Validate(ctx context.Context, input ValidateInput) (*ValidationResult, error) {
	return s.validate(ctx, s.couponRepo, s.redemptionRepo, input)
}

// ValidateInScope is Validate reading through the caller's unit of work
func (s *CouponService) ValidateInScope(ctx context.Context, repos uow.TransactionalRepositories, input ValidateInput) (*ValidationResult, error) {
	return s.validate(ctx, repos.CouponRepo(), repos.RedemptionRepo(), input)
}

func (s *CouponService) validate(ctx context.Context, coupons coupon.CouponRepository, redemptions coupon.RedemptionRepository, input ValidateInput) (*ValidationResult, error) {
	code := coupon.NormalizeCode(input.Code)
	res := &ValidationResult{Code: code, Amount: input.Amount, FinalAmount: input.Amount}
	if input.Amount < 0 {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Amount cannot be negative")
	}

	c, err := coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rejected(res, notFound(code)), nil
		}
		return nil, err
	}
	used, err := redemptions.CountByTenant(ctx, c.ID, input.TenantID)
	if err != nil {
		return nil, err
	}
	if err := c.Check(s.now(), input.Amount, input.TierCode, used); err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) {
			return rejected(res, de), nil
		}
		return nil, err
	}
	res.Valid = true
	res.DiscountAmount = c.DiscountFor(input.Amount)
	res.FinalAmount = input.Amount - res.DiscountAmount
	return res, nil
}

// ApplyInScope validates and redeems a coupon inside the caller's unit of work.
// The global counter moves with a conditional update and the redemption insert
// relies on the (coupon, tenant, seq) unique index, so of two concurrent
// redemptions by one tenant exactly one succeeds and the other fails with
// CouponAlreadyRedeemed.
func (s *CouponService) ApplyInScope(ctx context.Context, repos uow.TransactionalRepositories, code string, tenantID uuid.UUID, amount int64, tierCode string, transactionID *uuid.UUID) (*coupon.Redemption, error) {
	code = coupon.NormalizeCode(code)
	now := s.now()

	c, err := repos.CouponRepo().FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			err = notFound(code)
		}
		return nil, s.rejectErr(ctx, err)
	}
	used, err := repos.RedemptionRepo().CountByTenant(ctx, c.ID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := c.Check(now, amount, tierCode, used); err != nil {
		return nil, s.rejectErr(ctx, err)
	}

	ok, err := repos.CouponRepo().IncrementRedemptions(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.rejectErr(ctx, shared.NewCouponInvalidError(coupon.ReasonExhausted, "Coupon redemption limit has been reached"))
	}

	redemption := coupon.NewRedemption(c, tenantID, transactionID, used, amount, now)
	if err := repos.RedemptionRepo().Create(ctx, redemption); err != nil {
		return nil, s.rejectErr(ctx, err)
	}
	if err := repos.Events().Record(ctx, coupon.NewCouponRedeemedEvent(redemption)); err != nil {
		return nil, err
	}

	s.metrics.CouponRedeemed(ctx, c.Code, redemption.DiscountAmount)
	s.logger.Info("Coupon redeemed",
		zap.String("code", c.Code),
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("discount", redemption.DiscountAmount))
	return redemption, nil
}

func (s *CouponService) rejectErr(ctx context.Context, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) && (de.Kind == shared.KindCouponInvalid || de.Kind == shared.KindCouponAlreadyRedeemed) {
		s.metrics.CouponRejected(ctx, de.Code)
	}
	return err
}

// Create adds a coupon to the catalogue
func (s *CouponService) Create(ctx context.Context, input CreateCouponInput) (*CouponDTO, error) {
	c, err := coupon.NewCoupon(coupon.NewCouponParams{
		Code:              input.Code,
		Description:       input.Description,
		DiscountType:      input.DiscountType,
		DiscountValue:     input.DiscountValue,
		ValidFrom:         input.ValidFrom,
		ValidUntil:        input.ValidUntil,
		MaxRedemptions:    input.MaxRedemptions,
		AllowRepeat:       input.AllowRepeat,
		MaxPerTenant:      input.MaxPerTenant,
		MinPurchaseAmount: input.MinPurchaseAmount,
		ApplicableTiers:   input.ApplicableTiers,
	}, s.now())
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		exists, err := repos.CouponRepo().ExistsByCode(ctx, c.Code)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError("ALREADY_EXISTS", "Coupon code already exists").WithDetail("code", c.Code)
		}
		if err := repos.CouponRepo().Create(ctx, c); err != nil {
			return err
		}
		return uow.RecordEvents(ctx, repos.Events(), c)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Coupon created", zap.String("code", c.Code))
	dto := toCouponDTO(c)
	return &dto, nil
}

// GetByID returns one coupon
func (s *CouponService) GetByID(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	c, err := s.couponRepo.FindByID(ctx, id)
	if err != nil {
		return nil, couponLookupError(err)
	}
	dto := toCouponDTO(c)
	return &dto, nil
}

// List pages through coupons
func (s *CouponService) List(ctx context.Context, filter coupon.CouponFilter) (*CouponListResult, error) {
	filter.Filter = filter.Filter.Normalize()
	coupons, total, err := s.couponRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]CouponDTO, len(coupons))
	for i, c := range coupons {
		items[i] = toCouponDTO(c)
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

// SetActive activates or deactivates a coupon
func (s *CouponService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*CouponDTO, error) {
	c, err := s.couponRepo.FindByID(ctx, id)
	if err != nil {
		return nil, couponLookupError(err)
	}
	if active {
		c.Activate(s.now())
	} else {
		c.Deactivate(s.now())
	}
	if err := s.couponRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("Coupon availability changed", zap.String("code", c.Code), zap.Bool("active", active))
	dto := toCouponDTO(c)
	return &dto, nil
}

// ListRedemptions pages through a coupon's redemptions
func (s *CouponService) ListRedemptions(ctx context.Context, couponID uuid.UUID, filter shared.Filter) (*RedemptionListResult, error) {
	filter = filter.Normalize()
	rows, total, err := s.redemptionRepo.FindByCoupon(ctx, couponID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]RedemptionDTO, len(rows))
	for i, r := range rows {
		items[i] = ToRedemptionDTO(r)
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

func notFound(code string) *shared.DomainError {
	return shared.NewCouponInvalidError(coupon.ReasonNotFound, "Coupon code does not exist").WithDetail("code", code)
}

func rejected(res *ValidationResult, de *shared.DomainError) *ValidationResult {
	res.Valid = false
	res.Reason = de.Code
	res.Message = de.Message
	return res
}

func couponLookupError(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError("COUPON_NOT_FOUND", "Coupon not found")
	}
	return err
}
