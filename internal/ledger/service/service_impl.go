package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/internal/locking"
	obsmetrics "github.com/smallbiznis/munitax/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"github.com/smallbiznis/munitax/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          ledgerdomain.Repository
	TaxResolver   taxdomain.Resolver
	Locker        locking.Locker
	Policy        *config.PaymentPolicyHolder
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          ledgerdomain.Repository
	taxResolver   taxdomain.Resolver
	locker        locking.Locker
	policy        *config.PaymentPolicyHolder
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ledger.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		taxResolver:   p.TaxResolver,
		locker:        p.Locker,
		policy:        p.Policy,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// EnsureAccount returns the owner's account, opening one from the default tax
// category when none exists. Concurrent callers converge on the same row.
func (s *Service) EnsureAccount(ctx context.Context, ownerID snowflake.ID) (*ledgerdomain.TaxAccount, error) {
	if ownerID == 0 {
		return nil, ledgerdomain.ErrInvalidOwner
	}

	existing, err := s.repo.FindByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	acc := &ledgerdomain.TaxAccount{
		ID:        s.genID.Generate(),
		OwnerID:   ownerID,
		Status:    ledgerdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	category, err := s.taxResolver.DefaultCategory(ctx)
	switch {
	case err == nil:
		acc.TaxCategoryID = &category.ID
		ledgerdomain.InitializeFromCategory(acc, category.DefaultAmount, now, s.policy.Get().DueDateHorizonDays)
	case errors.Is(err, taxdomain.ErrNoDefaultCategory):
		s.log.Warn("no active tax category, opening empty account", zap.String("owner_id", ownerID.String()))
	default:
		return nil, err
	}

	inserted, err := s.repo.Insert(ctx, s.db, acc)
	if err != nil {
		return nil, err
	}
	if !inserted {
		winner, err := s.repo.FindByOwner(ctx, s.db, ownerID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, ledgerdomain.ErrNotFound
		}
		return winner, nil
	}

	s.log.Info("tax account opened",
		zap.String("tax_account_id", acc.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("status", string(acc.Status)),
	)
	return acc, nil
}

func (s *Service) Get(ctx context.Context, actor authdomain.Principal, id string) (*ledgerdomain.TaxAccount, error) {
	accountID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	acc, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ledgerdomain.ErrNotFound
	}
	if acc.OwnerID != actor.ID && !actor.CanViewAll() {
		return nil, ledgerdomain.ErrPermissionDenied
	}
	return acc, nil
}

func (s *Service) Summary(ctx context.Context, actor authdomain.Principal) (*ledgerdomain.Summary, error) {
	acc, err := s.repo.FindByOwner(ctx, s.db, actor.ID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return &ledgerdomain.Summary{
			TotalDue:    decimal.Zero,
			PaidAmount:  decimal.Zero,
			Outstanding: decimal.Zero,
			Status:      ledgerdomain.AccountStatusActive,
		}, nil
	}

	id := acc.ID.String()
	return &ledgerdomain.Summary{
		TaxAccountID: &id,
		TotalDue:     acc.TotalDue,
		PaidAmount:   acc.PaidAmount,
		Outstanding:  acc.Outstanding,
		Status:       acc.Status,
		NextDueDate:  acc.NextDueDate,
	}, nil
}

// Adjust applies an administrative correction under the same account lock the
// payment completion path takes. A requested Suspended status is applied after
// the balance is re-derived; Active or Overdue just asks for re-derivation.
func (s *Service) Adjust(ctx context.Context, actor authdomain.Principal, req ledgerdomain.AdjustRequest) (*ledgerdomain.TaxAccount, error) {
	if !actor.IsAdministrator() || !actor.IsActive() {
		return nil, ledgerdomain.ErrPermissionDenied
	}
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return nil, err
	}
	if (req.TotalDue != nil && req.TotalDue.IsNegative()) || (req.PaidAmount != nil && req.PaidAmount.IsNegative()) {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, ledgerdomain.ErrInvalidStatus
	}

	policy := s.policy.Get()
	release, waited, err := locking.AcquireWithRetry(ctx, s.locker, locking.TaxAccountKey(accountID), policy.LockTimeout, policy.LockRetryAttempts)
	s.ledgerMetrics.ObserveLockWait(obsmetrics.LockResourceTaxAccount, waited)
	if err != nil {
		if errors.Is(err, locking.ErrLockTimeout) {
			s.ledgerMetrics.IncLockTimeout(obsmetrics.LockResourceTaxAccount)
			return nil, ledgerdomain.ErrConcurrencyTimeout
		}
		return nil, err
	}
	defer release()

	var updated *ledgerdomain.TaxAccount
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.SetLocalLockTimeout(tx, policy.LockTimeout); err != nil {
			return err
		}
		acc, err := s.repo.FindForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return ledgerdomain.ErrNotFound
		}

		if req.TotalDue != nil {
			acc.TotalDue = req.TotalDue.Round(2)
		}
		if req.PaidAmount != nil {
			acc.PaidAmount = req.PaidAmount.Round(2)
		}
		if req.NextDueDate != nil {
			due := req.NextDueDate.UTC()
			acc.NextDueDate = &due
		}
		if req.TotalDue != nil || req.PaidAmount != nil || req.Status != nil {
			ledgerdomain.Recompute(acc)
		}
		if req.Status != nil && *req.Status == ledgerdomain.AccountStatusSuspended {
			acc.Status = ledgerdomain.AccountStatusSuspended
		}
		acc.UpdatedAt = s.clock.Now()

		if err := s.repo.SaveBalance(ctx, tx, acc); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			return nil, ledgerdomain.ErrConcurrencyTimeout
		}
		return nil, err
	}

	s.obsMetrics.RecordAdjustment(ctx, string(updated.Status))
	s.log.Info("tax account adjusted",
		zap.String("tax_account_id", updated.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, ledgerdomain.ErrInvalidID
	}
	return id, nil
}
