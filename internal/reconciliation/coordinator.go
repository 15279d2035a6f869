package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/internal/locking"
	obslogger "github.com/smallbiznis/munitax/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/munitax/internal/observability/metrics"
	"github.com/smallbiznis/munitax/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	"github.com/smallbiznis/munitax/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "munitax/reconciliation"

const (
	outcomeOK               = "ok"
	outcomeAlreadyCompleted = "already_completed"
	outcomeTimeout          = "timeout"
	outcomeError            = "error"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	PaymentRepo   paymentdomain.Repository
	LedgerRepo    ledgerdomain.Repository
	Locker        locking.Locker
	Policy        *config.PaymentPolicyHolder
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

// Coordinator completes approved payments. The payment row flip and the
// account credit commit together or not at all, and completions against the
// same account are serialized by the tax account lock.
type Coordinator struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	paymentRepo   paymentdomain.Repository
	ledgerRepo    ledgerdomain.Repository
	locker        locking.Locker
	policy        *config.PaymentPolicyHolder
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewCoordinator(p Params) *Coordinator {
	return &Coordinator{
		db:            p.DB,
		log:           p.Log.Named("reconciliation"),
		clock:         p.Clock,
		paymentRepo:   p.PaymentRepo,
		ledgerRepo:    p.LedgerRepo,
		locker:        p.Locker,
		policy:        p.Policy,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

func (c *Coordinator) Complete(ctx context.Context, actorID, paymentID snowflake.ID) (*paymentdomain.PaymentRequest, *ledgerdomain.TaxAccount, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconciliation.complete")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("payment.id", paymentID.String()))...)

	start := time.Now()
	payment, account, err := c.complete(ctx, actorID, paymentID)
	c.ledgerMetrics.ObserveReconcile(time.Since(start))

	outcome := outcomeOf(err)
	c.obsMetrics.RecordReconciliation(ctx, outcome)
	span.SetAttributes(attribute.String("reconciliation.outcome", outcome))

	log := obslogger.WithContext(ctx, c.log)
	if err != nil {
		if outcome == outcomeError || outcome == outcomeTimeout {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "reconciliation failed")
		}
		log.Warn("payment completion refused",
			zap.String("payment_id", paymentID.String()),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, nil, err
	}

	obslogger.WithPayment(log, payment.ID.String(), account.ID.String()).Info("payment completed",
		zap.String("actor_id", actorID.String()),
		zap.String("account_status", string(account.Status)),
	)
	return payment, account, nil
}

func (c *Coordinator) complete(ctx context.Context, actorID, paymentID snowflake.ID) (*paymentdomain.PaymentRequest, *ledgerdomain.TaxAccount, error) {
	current, err := c.paymentRepo.FindByID(ctx, c.db, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, paymentdomain.ErrNotFound
	}
	if _, err := paymentdomain.Transition(current.State, paymentdomain.EventComplete); err != nil {
		return nil, nil, err
	}

	policy := c.policy.Get()
	release, waited, err := locking.AcquireWithRetry(ctx, c.locker, locking.TaxAccountKey(current.TaxAccountID), policy.LockTimeout, policy.LockRetryAttempts)
	c.ledgerMetrics.ObserveLockWait(obsmetrics.LockResourceTaxAccount, waited)
	if err != nil {
		if errors.Is(err, locking.ErrLockTimeout) {
			c.ledgerMetrics.IncLockTimeout(obsmetrics.LockResourceTaxAccount)
			c.ledgerMetrics.IncReconcileError(obsmetrics.ReasonLockTimeout)
			return nil, nil, paymentdomain.ErrConcurrencyTimeout
		}
		c.ledgerMetrics.IncReconcileError(obsmetrics.ClassifyStorageReason(err))
		return nil, nil, err
	}
	defer release()

	var (
		payment *paymentdomain.PaymentRequest
		account *ledgerdomain.TaxAccount
	)
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.SetLocalLockTimeout(tx, policy.LockTimeout); err != nil {
			return err
		}

		locked, err := c.paymentRepo.FindForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if locked == nil {
			return paymentdomain.ErrNotFound
		}
		to, err := paymentdomain.Transition(locked.State, paymentdomain.EventComplete)
		if err != nil {
			return err
		}

		acc, err := c.ledgerRepo.FindForUpdate(ctx, tx, locked.TaxAccountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return ledgerdomain.ErrNotFound
		}

		now := c.clock.Now()
		update := paymentdomain.StateUpdate{
			To:          to,
			CompletedAt: &now,
			UpdatedAt:   now,
		}
		ok, err := c.paymentRepo.UpdateState(ctx, tx, locked.ID, paymentdomain.SourcesFor(paymentdomain.EventComplete), update)
		if err != nil {
			return err
		}
		if !ok {
			fresh, err := c.paymentRepo.FindByID(ctx, tx, locked.ID)
			if err != nil {
				return err
			}
			if fresh == nil {
				return paymentdomain.ErrNotFound
			}
			return &paymentdomain.TransitionError{From: fresh.State, Event: paymentdomain.EventComplete}
		}
		update.Apply(locked)

		acc.PaidAmount = acc.PaidAmount.Add(locked.Amount)
		ledgerdomain.Recompute(acc)
		acc.UpdatedAt = now
		if err := c.ledgerRepo.SaveBalance(ctx, tx, acc); err != nil {
			return err
		}

		payment, account = locked, acc
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrInvalidTransition),
			errors.Is(err, paymentdomain.ErrNotFound),
			errors.Is(err, ledgerdomain.ErrNotFound):
			return nil, nil, err
		case db.IsLockTimeoutErr(err):
			c.ledgerMetrics.IncReconcileError(obsmetrics.ClassifyStorageReason(err))
			return nil, nil, paymentdomain.ErrConcurrencyTimeout
		default:
			c.ledgerMetrics.IncReconcileError(obsmetrics.ClassifyStorageReason(err))
			return nil, nil, err
		}
	}

	c.obsMetrics.RecordTransition(ctx, string(paymentdomain.EventComplete), string(payment.State), string(payment.Method))
	return payment, account, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, paymentdomain.ErrAlreadyCompleted):
		return outcomeAlreadyCompleted
	case errors.Is(err, paymentdomain.ErrConcurrencyTimeout):
		return outcomeTimeout
	default:
		return outcomeError
	}
}
