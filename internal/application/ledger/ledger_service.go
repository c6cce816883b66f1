package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// TransactionNumberPrefix prefixes every ledger entry number
const TransactionNumberPrefix = "TXN"

// NumberGenerator issues human-readable document numbers
type NumberGenerator interface {
	Next(prefix string, at time.Time) string
}

// CouponApplier redeems a coupon inside a unit of work
type CouponApplier interface {
	ApplyInScope(ctx context.Context, repos uow.TransactionalRepositories, code string, tenantID uuid.UUID, amount int64, tierCode string, transactionID *uuid.UUID) (*coupon.Redemption, error)
}

// SubscriptionChanger applies the tenant side effects of a paid transaction
type SubscriptionChanger interface {
	ChangeTierInScope(ctx context.Context, repos uow.TransactionalRepositories, tenantID uuid.UUID, tierCode string, period billing.BillingPeriod) (*identity.Tenant, error)
	ExtendPeriodInScope(ctx context.Context, repos uow.TransactionalRepositories, tenantID uuid.UUID, days int) (*identity.Tenant, error)
}

// LedgerConfig contains configuration for LedgerService
type LedgerConfig struct {
	DefaultCurrency string
}

// LedgerService owns billing transactions and their state machine
type LedgerService struct {
	scope   uow.TransactionScope
	txRepo  ledger.TransactionRepository
	coupons CouponApplier
	subs    SubscriptionChanger
	numbers NumberGenerator
	cfg     LedgerConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	scope uow.TransactionScope,
	txRepo ledger.TransactionRepository,
	coupons CouponApplier,
	subs SubscriptionChanger,
	numbers NumberGenerator,
	cfg LedgerConfig,
	logger *zap.Logger,
) *LedgerService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &LedgerService{
		scope:   scope,
		txRepo:  txRepo,
		coupons: coupons,
		subs:    subs,
		numbers: numbers,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the time source
func (s *LedgerService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateManual opens a transaction outside the upgrade workflow, for off-platform
// payments, corrections and goodwill credits
func (s *LedgerService) CreateManual(ctx context.Context, input CreateManualInput) (*TransactionDTO, error) {
	if input.Currency == "" {
		input.Currency = s.cfg.DefaultCurrency
	}
	var tx *ledger.BillingTransaction
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		if _, err := repos.TenantRepo().FindByID(ctx, input.TenantID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NewNotFoundError("TENANT_NOT_FOUND", "Tenant not found")
			}
			return err
		}
		var err error
		tx, err = s.CreateInScope(ctx, repos, ledger.NewTransactionParams{
			TenantID:       input.TenantID,
			Type:           input.Type,
			Source:         ledger.SourceManual,
			Amount:         input.Amount,
			Currency:       input.Currency,
			TargetTierCode: input.TargetTierCode,
			BillingPeriod:  input.BillingPeriod,
			RequiresReview: input.RequiresReview,
			Description:    input.Description,
			CreatedBy:      input.CreatedBy,
		})
		if err != nil {
			return err
		}
		if input.BonusDays > 0 {
			if err := tx.AddBonus(input.BonusDays, input.CreatedBy, s.now()); err != nil {
				return err
			}
			if err := repos.TransactionRepo().Update(ctx, tx); err != nil {
				return err
			}
		}
		if input.MarkPaid {
			return s.ApproveInScope(ctx, repos, tx, input.CreatedBy, input.Note)
		}
		if input.Note != "" {
			if err := tx.AddNote(input.CreatedBy, input.Note, s.now()); err != nil {
				return err
			}
			if err := repos.TransactionRepo().Update(ctx, tx); err != nil {
				return err
			}
		}
		return uow.RecordEvents(ctx, repos.Events(), tx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Manual transaction created",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("number", tx.TransactionNumber),
		zap.String("tenant_id", tx.TenantID.String()),
		zap.String("status", string(tx.Status)))
	dto := ToTransactionDTO(tx)
	return &dto, nil
}

// CreateInScope numbers and inserts a pending transaction
func (s *LedgerService) CreateInScope(ctx context.Context, repos uow.TransactionalRepositories, p ledger.NewTransactionParams) (*ledger.BillingTransaction, error) {
	now := s.now()
	if p.Currency == "" {
		p.Currency = s.cfg.DefaultCurrency
	}
	p.TransactionNumber = s.numbers.Next(TransactionNumberPrefix, now)
	tx, err := ledger.NewTransaction(p, now)
	if err != nil {
		return nil, err
	}
	if err := repos.TransactionRepo().Create(ctx, tx); err != nil {
		return nil, err
	}
	if err := uow.RecordEvents(ctx, repos.Events(), tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Get returns a transaction with admin notes
func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*TransactionDTO, error) {
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	dto := ToTransactionDTO(tx)
	return &dto, nil
}

// GetForTenant returns one of the tenant's transactions without admin notes
func (s *LedgerService) GetForTenant(ctx context.Context, tenantID, id uuid.UUID) (*TransactionDTO, error) {
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if !tx.BelongsTo(tenantID) {
		return nil, lookupError(shared.ErrNotFound)
	}
	dto := ToTransactionDTO(tx).TenantView()
	return &dto, nil
}

// List pages through transactions
func (s *LedgerService) List(ctx context.Context, filter ledger.TransactionFilter, tenantView bool) (*TransactionListResult, error) {
	filter.Filter = filter.Filter.Normalize()
	txs, total, err := s.txRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		items[i] = ToTransactionDTO(tx)
		if tenantView {
			items[i] = items[i].TenantView()
		}
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

// Approve marks a standalone transaction paid. Tier-changing types move the
// tenant and re-sync quotas in the same database transaction.
func (s *LedgerService) Approve(ctx context.Context, id uuid.UUID, by *uuid.UUID, notes string) (*TransactionDTO, error) {
	return s.mutate(ctx, id, string(ledger.ActionApprove), func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		return s.ApproveInScope(ctx, repos, tx, by, notes)
	})
}

// ApproveInScope performs the approval steps on a locked transaction: ledger
// transition, tier change with quota sync, bonus days. Any failure after the
// transition is reported as an AtomicityFailure and the caller's unit of work
// rolls everything back.
func (s *LedgerService) ApproveInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, by *uuid.UUID, notes string) error {
	if err := tx.Approve(by, notes, s.now()); err != nil {
		return err
	}
	if err := repos.TransactionRepo().Update(ctx, tx); err != nil {
		return err
	}
	if tx.Type.ChangesTier() {
		if _, err := s.subs.ChangeTierInScope(ctx, repos, tx.TenantID, tx.TargetTierCode, tx.BillingPeriod); err != nil {
			return shared.NewAtomicityFailure("approving transaction "+tx.TransactionNumber, err)
		}
	}
	if tx.BonusDays > 0 {
		if _, err := s.subs.ExtendPeriodInScope(ctx, repos, tx.TenantID, tx.BonusDays); err != nil {
			return shared.NewAtomicityFailure("approving transaction "+tx.TransactionNumber, err)
		}
	}
	return uow.RecordEvents(ctx, repos.Events(), tx)
}

// Reject closes a standalone transaction unpaid
func (s *LedgerService) Reject(ctx context.Context, id uuid.UUID, by *uuid.UUID, reason, notes string) (*TransactionDTO, error) {
	return s.mutate(ctx, id, string(ledger.ActionReject), func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		return s.RejectInScope(ctx, repos, tx, by, reason, notes)
	})
}

// RejectInScope rejects a locked transaction
func (s *LedgerService) RejectInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, by *uuid.UUID, reason, notes string) error {
	if err := tx.Reject(by, reason, notes, s.now()); err != nil {
		return err
	}
	return s.save(ctx, repos, tx)
}

// Cancel withdraws a standalone pending transaction
func (s *LedgerService) Cancel(ctx context.Context, id uuid.UUID, by *uuid.UUID, reason string) (*TransactionDTO, error) {
	return s.mutate(ctx, id, string(ledger.ActionCancel), func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		return s.CancelInScope(ctx, repos, tx, by, reason)
	})
}

// CancelInScope cancels a locked transaction
func (s *LedgerService) CancelInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, by *uuid.UUID, reason string) error {
	if err := tx.Cancel(by, reason, s.now()); err != nil {
		return err
	}
	return s.save(ctx, repos, tx)
}

// Refund reverses a paid transaction. The tenant's tier is left alone.
func (s *LedgerService) Refund(ctx context.Context, id uuid.UUID, by *uuid.UUID, reason string) (*TransactionDTO, error) {
	return s.mutate(ctx, id, "", func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		if err := tx.Refund(by, reason, s.now()); err != nil {
			return err
		}
		return s.save(ctx, repos, tx)
	})
}

// ApplyCoupon redeems a coupon against a pending transaction. A rejected coupon
// leaves the transaction untouched.
func (s *LedgerService) ApplyCoupon(ctx context.Context, id uuid.UUID, code string) (*TransactionDTO, error) {
	return s.mutate(ctx, id, "", func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		return s.ApplyCouponInScope(ctx, repos, tx, code)
	})
}

// ApplyCouponInScope redeems a coupon against a locked transaction
func (s *LedgerService) ApplyCouponInScope(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction, code string) error {
	if err := tx.CanApplyCoupon(); err != nil {
		return err
	}
	redemption, err := s.coupons.ApplyInScope(ctx, repos, code, tx.TenantID, tx.Amount, tx.TargetTierCode, &tx.ID)
	if err != nil {
		return err
	}
	if err := tx.ApplyCoupon(redemption.CouponCode, redemption.DiscountAmount, s.now()); err != nil {
		return err
	}
	return s.save(ctx, repos, tx)
}

// ApplyManualDiscount sets the admin discount of a pending transaction
func (s *LedgerService) ApplyManualDiscount(ctx context.Context, id uuid.UUID, input ManualDiscountInput) (*TransactionDTO, error) {
	if err := coupon.ValidateDiscount(input.DiscountType, input.Value); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "", func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		discount := coupon.ComputeDiscount(input.DiscountType, input.Value, tx.Amount)
		if err := tx.ApplyManualDiscount(discount, input.By, input.Note, s.now()); err != nil {
			return err
		}
		return s.save(ctx, repos, tx)
	})
}

// AddBonus grants extra days applied when the transaction is paid
func (s *LedgerService) AddBonus(ctx context.Context, id uuid.UUID, days int, by *uuid.UUID) (*TransactionDTO, error) {
	return s.mutate(ctx, id, "", func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		if err := tx.AddBonus(days, by, s.now()); err != nil {
			return err
		}
		return s.save(ctx, repos, tx)
	})
}

// AddNote appends an audit note, in any status
func (s *LedgerService) AddNote(ctx context.Context, id uuid.UUID, text string, by *uuid.UUID) (*TransactionDTO, error) {
	return s.mutate(ctx, id, "", func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
		if err := tx.AddNote(by, text, s.now()); err != nil {
			return err
		}
		return s.save(ctx, repos, tx)
	})
}

// mutate locks a transaction and runs fn. Non-empty guardAction refuses
// transactions that belong to an upgrade request; those move only through
// the upgrade review.
func (s *LedgerService) mutate(ctx context.Context, id uuid.UUID, guardAction string, fn func(repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error) (*TransactionDTO, error) {
	var tx *ledger.BillingTransaction
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		tx, err = repos.TransactionRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return lookupError(err)
		}
		if guardAction != "" && tx.IsLinkedToUpgrade() {
			return shared.NewDomainError("INVALID_TRANSITION",
				"Transaction "+tx.TransactionNumber+" belongs to an upgrade request; "+guardAction+" it through the request review").
				WithDetail("upgrade_request_id", tx.UpgradeRequestID.String())
		}
		return fn(repos, tx)
	})
	if err != nil {
		if shared.IsKind(err, shared.KindAtomicityFailure) {
			s.logger.Error("Transaction approval rolled back",
				zap.String("transaction_id", id.String()),
				zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Transaction updated",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("status", string(tx.Status)))
	dto := ToTransactionDTO(tx)
	return &dto, nil
}

func (s *LedgerService) save(ctx context.Context, repos uow.TransactionalRepositories, tx *ledger.BillingTransaction) error {
	if err := repos.TransactionRepo().Update(ctx, tx); err != nil {
		return err
	}
	return uow.RecordEvents(ctx, repos.Events(), tx)
}

func lookupError(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError("TRANSACTION_NOT_FOUND", "Billing transaction not found")
	}
	return err
}
