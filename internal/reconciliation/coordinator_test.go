package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/munitax/internal/ledger/repository"
	"github.com/smallbiznis/munitax/internal/locking"
	"github.com/smallbiznis/munitax/internal/migration/dbtest"
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/munitax/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	locker      *locking.LocalLocker
	paymentRepo paymentdomain.Repository
	ledgerRepo  ledgerdomain.Repository
	coordinator *Coordinator
	adminID     snowflake.ID
}

func newFixture(t *testing.T, policy config.PaymentPolicy) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	f := &fixture{
		db:          dbtest.Open(t),
		node:        node,
		clock:       clock.NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
		locker:      locking.NewLocalLocker(),
		paymentRepo: paymentrepo.Provide(),
		ledgerRepo:  ledgerrepo.Provide(),
		adminID:     node.Generate(),
	}
	f.coordinator = NewCoordinator(Params{
		DB:          f.db,
		Log:         zap.NewNop(),
		Clock:       f.clock,
		PaymentRepo: f.paymentRepo,
		LedgerRepo:  f.ledgerRepo,
		Locker:      f.locker,
		Policy:      config.NewStaticPaymentPolicy(policy),
	})
	return f
}

func (f *fixture) account(t *testing.T, totalDue, paid int64) *ledgerdomain.TaxAccount {
	t.Helper()

	now := f.clock.Now()
	acc := &ledgerdomain.TaxAccount{
		ID:         f.node.Generate(),
		OwnerID:    f.node.Generate(),
		TotalDue:   decimal.NewFromInt(totalDue),
		PaidAmount: decimal.NewFromInt(paid),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ledgerdomain.Recompute(acc)
	inserted, err := f.ledgerRepo.Insert(context.Background(), f.db, acc)
	if err != nil || !inserted {
		t.Fatalf("insert account: inserted=%v err=%v", inserted, err)
	}
	return acc
}

func (f *fixture) payment(t *testing.T, acc *ledgerdomain.TaxAccount, amount int64, state paymentdomain.State) *paymentdomain.PaymentRequest {
	t.Helper()

	now := f.clock.Now()
	ref := "REF123456"
	p := &paymentdomain.PaymentRequest{
		ID:                f.node.Generate(),
		OwnerID:           acc.OwnerID,
		TaxAccountID:      acc.ID,
		Amount:            decimal.NewFromInt(amount),
		Method:            paymentdomain.MethodMobileMoney,
		State:             state,
		ProviderReference: &ref,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := f.paymentRepo.Insert(context.Background(), f.db, p); err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	return p
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *ledgerdomain.TaxAccount {
	t.Helper()
	acc, err := f.ledgerRepo.FindByID(context.Background(), f.db, id)
	if err != nil || acc == nil {
		t.Fatalf("reload account: %v", err)
	}
	return acc
}

func TestCompleteCreditsAccount(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())
	acc := f.account(t, 500000, 150000)
	p := f.payment(t, acc, 100000, paymentdomain.StateApproved)

	payment, updated, err := f.coordinator.Complete(context.Background(), f.adminID, p.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if payment.State != paymentdomain.StateCompleted {
		t.Fatalf("expected completed, got %s", payment.State)
	}
	if payment.CompletedAt == nil || !payment.CompletedAt.Equal(f.clock.Now()) {
		t.Fatalf("expected completed_at to be stamped, got %v", payment.CompletedAt)
	}
	if !updated.PaidAmount.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("expected paid 250000, got %s", updated.PaidAmount)
	}
	if !updated.Outstanding.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("expected outstanding 250000, got %s", updated.Outstanding)
	}
	if updated.Status != ledgerdomain.AccountStatusOverdue {
		t.Fatalf("expected Overdue, got %s", updated.Status)
	}

	stored := f.reload(t, acc.ID)
	if !stored.PaidAmount.Equal(decimal.NewFromInt(250000)) || !stored.Invariant() {
		t.Fatalf("stored account mismatch: paid=%s outstanding=%s", stored.PaidAmount, stored.Outstanding)
	}
	row, err := f.paymentRepo.FindByID(context.Background(), f.db, p.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if row.State != paymentdomain.StateCompleted {
		t.Fatalf("expected stored completed, got %s", row.State)
	}
}

func TestCompleteSettlingBalanceMarksAccountActive(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())
	acc := f.account(t, 100000, 0)
	p := f.payment(t, acc, 120000, paymentdomain.StateApproved)

	_, updated, err := f.coordinator.Complete(context.Background(), f.adminID, p.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if updated.Status != ledgerdomain.AccountStatusActive {
		t.Fatalf("expected Active, got %s", updated.Status)
	}
	if !updated.Outstanding.Equal(decimal.NewFromInt(-20000)) {
		t.Fatalf("expected overpayment to leave -20000 outstanding, got %s", updated.Outstanding)
	}
}

func TestCompleteTwiceReportsAlreadyCompleted(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())
	acc := f.account(t, 500000, 150000)
	p := f.payment(t, acc, 100000, paymentdomain.StateApproved)

	if _, _, err := f.coordinator.Complete(context.Background(), f.adminID, p.ID); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	_, _, err := f.coordinator.Complete(context.Background(), f.adminID, p.ID)
	if !errors.Is(err, paymentdomain.ErrAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if !errors.Is(err, paymentdomain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition as well, got %v", err)
	}

	stored := f.reload(t, acc.ID)
	if !stored.PaidAmount.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("expected single credit, got %s", stored.PaidAmount)
	}
}

func TestCompleteRequiresApprovedPayment(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())
	acc := f.account(t, 500000, 150000)

	for _, state := range []paymentdomain.State{
		paymentdomain.StatePending,
		paymentdomain.StateProcessing,
		paymentdomain.StateRejected,
		paymentdomain.StateCancelled,
	} {
		p := f.payment(t, acc, 1000, state)
		_, _, err := f.coordinator.Complete(context.Background(), f.adminID, p.ID)
		if !errors.Is(err, paymentdomain.ErrInvalidTransition) {
			t.Fatalf("%s: expected invalid transition, got %v", state, err)
		}
		if errors.Is(err, paymentdomain.ErrAlreadyCompleted) {
			t.Fatalf("%s: did not expect already completed", state)
		}
	}

	stored := f.reload(t, acc.ID)
	if !stored.PaidAmount.Equal(decimal.NewFromInt(150000)) {
		t.Fatalf("expected untouched balance, got %s", stored.PaidAmount)
	}
}

func TestCompleteUnknownPayment(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())

	_, _, err := f.coordinator.Complete(context.Background(), f.adminID, f.node.Generate())
	if !errors.Is(err, paymentdomain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCompletionsOnOneAccount(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())
	acc := f.account(t, 500000, 150000)

	const n = 10
	payments := make([]*paymentdomain.PaymentRequest, n)
	for i := range payments {
		payments[i] = f.payment(t, acc, 10000, paymentdomain.StateApproved)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, p := range payments {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			_, _, err := f.coordinator.Complete(context.Background(), f.adminID, id)
			errs <- err
		}(p.ID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	stored := f.reload(t, acc.ID)
	if !stored.PaidAmount.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("expected every credit applied once, got %s", stored.PaidAmount)
	}
	if !stored.Invariant() {
		t.Fatalf("outstanding %s does not match total %s - paid %s", stored.Outstanding, stored.TotalDue, stored.PaidAmount)
	}
}

func TestConcurrentDuplicateCompletionCreditsOnce(t *testing.T) {
	f := newFixture(t, config.DefaultPaymentPolicy())
	acc := f.account(t, 500000, 150000)
	p := f.payment(t, acc, 100000, paymentdomain.StateApproved)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.coordinator.Complete(context.Background(), f.adminID, p.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, paymentdomain.ErrAlreadyCompleted):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || refused != n-1 {
		t.Fatalf("expected one success and %d refusals, got %d and %d", n-1, succeeded, refused)
	}
	stored := f.reload(t, acc.ID)
	if !stored.PaidAmount.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("expected single credit, got %s", stored.PaidAmount)
	}
}

func TestCompleteTimesOutWhileAccountIsHeld(t *testing.T) {
	policy := config.DefaultPaymentPolicy()
	policy.LockTimeout = 20 * time.Millisecond
	policy.LockRetryAttempts = 2
	f := newFixture(t, policy)
	acc := f.account(t, 500000, 150000)
	p := f.payment(t, acc, 100000, paymentdomain.StateApproved)

	release, err := f.locker.Acquire(context.Background(), locking.TaxAccountKey(acc.ID), time.Second)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer release()

	_, _, err = f.coordinator.Complete(context.Background(), f.adminID, p.ID)
	if !errors.Is(err, paymentdomain.ErrConcurrencyTimeout) {
		t.Fatalf("expected concurrency timeout, got %v", err)
	}

	row, err := f.paymentRepo.FindByID(context.Background(), f.db, p.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if row.State != paymentdomain.StateApproved {
		t.Fatalf("expected payment left approved, got %s", row.State)
	}
}
