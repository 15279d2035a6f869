package reconciliation

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerrepo "github.com/smallbiznis/munitax/internal/ledger/repository"
	"github.com/smallbiznis/munitax/internal/locking"
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/munitax/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	paymentColumns = []string{
		"id", "owner_id", "tax_account_id", "amount", "method", "state",
		"control_number", "provider_reference", "created_at", "updated_at",
	}
	accountColumns = []string{
		"id", "owner_id", "tax_category_id", "total_due", "paid_amount", "outstanding",
		"status", "next_due_date", "created_at", "updated_at",
	}
)

func newMockCoordinator(t *testing.T) (*Coordinator, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	coordinator := NewCoordinator(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Clock:       clock.NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
		PaymentRepo: paymentrepo.Provide(),
		LedgerRepo:  ledgerrepo.Provide(),
		Locker:      locking.NewLocalLocker(),
		Policy:      config.NewStaticPaymentPolicy(config.DefaultPaymentPolicy()),
	})
	return coordinator, mock
}

func approvedPaymentRow(paymentID, ownerID, accountID snowflake.ID, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(paymentColumns).AddRow(
		int64(paymentID), int64(ownerID), int64(accountID), "100000.00", "mobile_money", "approved",
		nil, "REF482913", now, now,
	)
}

func TestCompleteLocksRowsAndGuardsState(t *testing.T) {
	coordinator, mock := newMockCoordinator(t)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	paymentID, ownerID, accountID := node.Generate(), node.Generate(), node.Generate()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE id = \$1`).
		WillReturnRows(approvedPaymentRow(paymentID, ownerID, accountID, now))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '3000ms'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(approvedPaymentRow(paymentID, ownerID, accountID, now))
	mock.ExpectQuery(`SELECT \* FROM "tax_accounts" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			int64(accountID), int64(ownerID), nil, "500000.00", "150000.00", "350000.00",
			"Overdue", nil, now, now,
		))
	mock.ExpectExec(`UPDATE "payment_requests" SET .*WHERE id = \$\d+ AND state IN`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE tax_accounts\s+SET total_due = \$1, paid_amount = \$2, outstanding = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, account, err := coordinator.Complete(context.Background(), node.Generate(), paymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StateCompleted, payment.State)
	assert.Equal(t, "250000", account.PaidAmount.String())
	assert.Equal(t, "250000", account.Outstanding.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteMapsRowLockTimeout(t *testing.T) {
	coordinator, mock := newMockCoordinator(t)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	paymentID, ownerID, accountID := node.Generate(), node.Generate(), node.Generate()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE id = \$1`).
		WillReturnRows(approvedPaymentRow(paymentID, ownerID, accountID, now))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '3000ms'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payment_requests" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	_, _, err = coordinator.Complete(context.Background(), node.Generate(), paymentID)
	assert.ErrorIs(t, err, paymentdomain.ErrConcurrencyTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}
