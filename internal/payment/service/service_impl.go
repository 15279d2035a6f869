package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/internal/locking"
	obslogger "github.com/smallbiznis/munitax/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/munitax/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	"github.com/smallbiznis/munitax/internal/reference"
	"github.com/smallbiznis/munitax/pkg/db"
	"github.com/smallbiznis/munitax/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const controlNumberSavepoint = "control_number_insert"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          paymentdomain.Repository
	LedgerRepo    ledgerdomain.Repository
	LedgerSvc     ledgerdomain.Service
	Reconciler    paymentdomain.Reconciler
	Generator     *reference.Generator
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
	repo          paymentdomain.Repository
	ledgerRepo    ledgerdomain.Repository
	ledgerSvc     ledgerdomain.Service
	reconciler    paymentdomain.Reconciler
	generator     *reference.Generator
	locker        locking.Locker
	policy        *config.PaymentPolicyHolder
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		ledgerRepo:    p.LedgerRepo,
		ledgerSvc:     p.LedgerSvc,
		reconciler:    p.Reconciler,
		generator:     p.Generator,
		locker:        p.Locker,
		policy:        p.Policy,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// Create opens a pending payment request. Control-number requests supersede
// every pending control number the owner still holds.
func (s *Service) Create(ctx context.Context, actor authdomain.Principal, req paymentdomain.CreateRequest) (*paymentdomain.PaymentRequest, error) {
	if !actor.IsActive() || actor.ID == 0 {
		return nil, paymentdomain.ErrPermissionDenied
	}

	amount := req.Amount.Round(2)
	if !paymentdomain.ValidAmount(amount) {
		return nil, paymentdomain.FieldErr("amount", paymentdomain.ErrInvalidAmount)
	}
	method, err := paymentdomain.ParseMethod(strings.TrimSpace(req.Method))
	if err != nil {
		return nil, paymentdomain.FieldErr("method", err)
	}

	account, err := s.resolveAccount(ctx, actor, req.TaxAccountID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := &paymentdomain.PaymentRequest{
		ID:           s.genID.Generate(),
		OwnerID:      actor.ID,
		TaxAccountID: account.ID,
		Amount:       amount,
		Method:       method,
		State:        paymentdomain.StatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if method == paymentdomain.MethodControlNumber {
		err = s.createControlNumber(ctx, payment)
	} else {
		ref := s.generator.ProviderReference()
		payment.ProviderReference = &ref
		err = s.repo.Insert(ctx, s.db, payment)
	}
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTransition(ctx, "create", string(payment.State), string(payment.Method))
	s.logFor(ctx, payment).Info("payment request created", zap.String("method", string(payment.Method)))
	return payment, nil
}

func (s *Service) resolveAccount(ctx context.Context, actor authdomain.Principal, rawID *string) (*ledgerdomain.TaxAccount, error) {
	if rawID == nil || strings.TrimSpace(*rawID) == "" {
		return s.ledgerSvc.EnsureAccount(ctx, actor.ID)
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(*rawID))
	if err != nil || accountID == 0 {
		return nil, paymentdomain.FieldErr("tax_account_id", paymentdomain.ErrInvalidID)
	}
	account, err := s.ledgerRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.OwnerID != actor.ID {
		return nil, paymentdomain.FieldErr("tax_account_id", paymentdomain.ErrAccountNotOwned)
	}
	return account, nil
}

// createControlNumber serializes per owner so supersession and insertion
// appear atomic to other requests from the same owner.
func (s *Service) createControlNumber(ctx context.Context, payment *paymentdomain.PaymentRequest) error {
	policy := s.policy.Get()

	release, waited, err := locking.AcquireWithRetry(ctx, s.locker, locking.OwnerControlNumberKey(payment.OwnerID), policy.LockTimeout, policy.LockRetryAttempts)
	s.ledgerMetrics.ObserveLockWait(obsmetrics.LockResourceControlNumber, waited)
	if err != nil {
		if errors.Is(err, locking.ErrLockTimeout) {
			s.ledgerMetrics.IncLockTimeout(obsmetrics.LockResourceControlNumber)
			return paymentdomain.ErrConcurrencyTimeout
		}
		return err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.SetLocalLockTimeout(tx, policy.LockTimeout); err != nil {
			return err
		}

		superseded, err := s.repo.CancelPendingControlNumbers(ctx, tx, payment.OwnerID, payment.CreatedAt)
		if err != nil {
			return err
		}
		if superseded > 0 {
			for i := int64(0); i < superseded; i++ {
				s.obsMetrics.RecordTransition(ctx, string(paymentdomain.EventSupersede), string(paymentdomain.StateCancelled), string(paymentdomain.MethodControlNumber))
			}
			s.log.Info("pending control numbers superseded",
				zap.String("owner_id", payment.OwnerID.String()),
				zap.Int64("count", superseded),
			)
		}

		for attempt := 1; attempt <= policy.TokenMaxAttempts; attempt++ {
			token := s.generator.ControlNumber()

			exists, err := s.repo.ControlNumberExists(ctx, tx, token)
			if err != nil {
				return err
			}
			if exists {
				s.recordCollision(ctx, attempt)
				continue
			}

			payment.ControlNumber = &token
			err = s.insertControlNumber(ctx, tx, payment)
			if err == nil {
				return nil
			}
			if !errors.Is(err, paymentdomain.ErrTokenCollision) {
				return err
			}
			s.recordCollision(ctx, attempt)
		}

		payment.ControlNumber = nil
		return paymentdomain.ErrGenerationFailed
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			return paymentdomain.ErrConcurrencyTimeout
		}
		return err
	}
	return nil
}

// insertControlNumber inserts inside a savepoint; a unique violation only
// rolls back the savepoint so the transaction stays usable for another draw.
func (s *Service) insertControlNumber(ctx context.Context, tx *gorm.DB, payment *paymentdomain.PaymentRequest) error {
	if err := tx.SavePoint(controlNumberSavepoint).Error; err != nil {
		return err
	}
	err := s.repo.Insert(ctx, tx, payment)
	if err == nil {
		return nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return err
	}
	if rbErr := tx.RollbackTo(controlNumberSavepoint).Error; rbErr != nil {
		return rbErr
	}
	return paymentdomain.ErrTokenCollision
}

func (s *Service) recordCollision(ctx context.Context, attempt int) {
	s.obsMetrics.RecordTokenCollision(ctx, string(paymentdomain.MethodControlNumber))
	s.log.Warn("control number collision", zap.Int("attempt", attempt))
}

// SubmitControlNumber records the amount the owner pays against a pending
// control number and moves it to processing.
func (s *Service) SubmitControlNumber(ctx context.Context, actor authdomain.Principal, req paymentdomain.SubmitControlNumberRequest) (*paymentdomain.PaymentRequest, error) {
	if !actor.IsActive() || actor.ID == 0 {
		return nil, paymentdomain.ErrPermissionDenied
	}

	controlNumber := strings.TrimSpace(req.ControlNumber)
	if controlNumber == "" {
		return nil, paymentdomain.FieldErr("control_number", paymentdomain.ErrUnknownOrConsumedControlNumber)
	}
	amount := req.Amount.Round(2)
	if !paymentdomain.ValidAmount(amount) {
		return nil, paymentdomain.FieldErr("amount", paymentdomain.ErrInvalidAmount)
	}

	payment, err := s.repo.FindPendingByControlNumber(ctx, s.db, actor.ID, controlNumber)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.FieldErr("control_number", paymentdomain.ErrUnknownOrConsumedControlNumber)
	}

	account, err := s.ledgerRepo.FindByID(ctx, s.db, payment.TaxAccountID)
	if err != nil {
		return nil, err
	}
	if account != nil && account.Outstanding.IsPositive() && amount.LessThan(account.Outstanding) {
		return nil, paymentdomain.FieldErr("amount", paymentdomain.ErrAmountBelowOutstanding)
	}

	return s.transition(ctx, payment, paymentdomain.EventSubmit, paymentdomain.StateUpdate{
		Amount:    &amount,
		UpdatedAt: s.clock.Now(),
	})
}

func (s *Service) Approve(ctx context.Context, actor authdomain.Principal, id string) (*paymentdomain.PaymentRequest, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.transition(ctx, payment, paymentdomain.EventApprove, paymentdomain.StateUpdate{
		ApprovedBy: &actor.ID,
		ApprovedAt: &now,
		UpdatedAt:  now,
	})
}

func (s *Service) Reject(ctx context.Context, actor authdomain.Principal, id string, reason string) (*paymentdomain.PaymentRequest, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, paymentdomain.FieldErr("rejection_reason", paymentdomain.ErrRejectionReasonRequired)
	}
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.transition(ctx, payment, paymentdomain.EventReject, paymentdomain.StateUpdate{
		ApprovedBy:      &actor.ID,
		ApprovedAt:      &now,
		RejectionReason: &reason,
		UpdatedAt:       now,
	})
}

// Complete hands the approved payment to the reconciler, which credits the
// account and finalizes the payment in one transaction.
func (s *Service) Complete(ctx context.Context, actor authdomain.Principal, id string) (*paymentdomain.PaymentRequest, *ledgerdomain.TaxAccount, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, nil, err
	}
	paymentID, err := parseID(id)
	if err != nil {
		return nil, nil, err
	}
	return s.reconciler.Complete(ctx, actor.ID, paymentID)
}

func (s *Service) Get(ctx context.Context, actor authdomain.Principal, id string) (*paymentdomain.PaymentRequest, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.OwnerID != actor.ID && !actor.CanViewAll() {
		return nil, paymentdomain.ErrPermissionDenied
	}
	return payment, nil
}

// List returns the caller's payments newest first; officers and
// administrators see every owner.
func (s *Service) List(ctx context.Context, actor authdomain.Principal, req paymentdomain.ListRequest) (*paymentdomain.ListResponse, error) {
	filter := paymentdomain.ListFilter{Limit: req.Limit()}
	if !actor.CanViewAll() {
		ownerID := actor.ID
		filter.OwnerID = &ownerID
	}
	if raw := strings.TrimSpace(req.State); raw != "" {
		state, err := paymentdomain.ParseState(raw)
		if err != nil {
			return nil, paymentdomain.FieldErr("state", err)
		}
		filter.State = &state
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, paymentdomain.FieldErr("page_token", err)
	}
	filter.Cursor = cursor

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return nil, paymentdomain.FieldErr("page_token", err)
		}
		return nil, err
	}

	items, pageInfo, err := pagination.Trim(items, filter.Limit, func(p *paymentdomain.PaymentRequest) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String(), CreatedAt: p.CreatedAt}
	})
	if err != nil {
		return nil, err
	}
	return &paymentdomain.ListResponse{Items: items, PageInfo: pageInfo}, nil
}

// transition applies event with a compare-and-set on the current state. When
// another writer got there first the fresh state is reported back.
func (s *Service) transition(ctx context.Context, payment *paymentdomain.PaymentRequest, event paymentdomain.Event, update paymentdomain.StateUpdate) (*paymentdomain.PaymentRequest, error) {
	to, err := paymentdomain.Transition(payment.State, event)
	if err != nil {
		return nil, err
	}
	update.To = to

	ok, err := s.repo.UpdateState(ctx, s.db, payment.ID, paymentdomain.SourcesFor(event), update)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.repo.FindByID(ctx, s.db, payment.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, paymentdomain.ErrNotFound
		}
		return nil, &paymentdomain.TransitionError{From: current.State, Event: event}
	}

	from := payment.State
	update.Apply(payment)

	s.obsMetrics.RecordTransition(ctx, string(event), string(payment.State), string(payment.Method))
	s.logFor(ctx, payment).Info("payment transitioned",
		zap.String("event", string(event)),
		zap.String("from", string(from)),
		zap.String("to", string(payment.State)),
	)
	return payment, nil
}

func (s *Service) load(ctx context.Context, id string) (*paymentdomain.PaymentRequest, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) logFor(ctx context.Context, payment *paymentdomain.PaymentRequest) *zap.Logger {
	return obslogger.WithPayment(obslogger.WithContext(ctx, s.log), payment.ID.String(), payment.TaxAccountID.String())
}

func requireAdministrator(actor authdomain.Principal) error {
	if !actor.IsAdministrator() || !actor.IsActive() {
		return paymentdomain.ErrPermissionDenied
	}
	return nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, paymentdomain.ErrInvalidID
	}
	return id, nil
}
