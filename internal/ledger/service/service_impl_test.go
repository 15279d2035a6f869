package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"github.com/smallbiznis/munitax/internal/clock"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/internal/ledger/repository"
	"github.com/smallbiznis/munitax/internal/locking"
	"github.com/smallbiznis/munitax/internal/migration/dbtest"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type staticResolver struct {
	category *taxdomain.TaxCategory
}

func (r staticResolver) DefaultCategory(context.Context) (*taxdomain.TaxCategory, error) {
	if r.category == nil {
		return nil, taxdomain.ErrNoDefaultCategory
	}
	return r.category, nil
}

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   ledgerdomain.Service
	admin authdomain.Principal
}

func newTestEnv(t *testing.T, category *taxdomain.TaxCategory) *testEnv {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	env := &testEnv{
		db:    dbtest.Open(t),
		node:  node,
		clock: clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)),
	}
	env.svc = NewService(Params{
		DB:          env.db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       env.clock,
		Repo:        repository.Provide(),
		TaxResolver: staticResolver{category: category},
		Locker:      locking.NewLocalLocker(),
		Policy:      config.NewStaticPaymentPolicy(config.DefaultPaymentPolicy()),
	})
	env.admin = authdomain.Principal{ID: node.Generate(), Role: authdomain.RoleAdministrator, AccountStatus: authdomain.AccountStatusActive}
	return env
}

func propertyTax(node *snowflake.Node, amount int64) *taxdomain.TaxCategory {
	return &taxdomain.TaxCategory{ID: node.Generate(), Name: "Property Tax", DefaultAmount: decimal.NewFromInt(amount), IsActive: true}
}

func TestEnsureAccountSeedsFromDefaultCategory(t *testing.T) {
	node, _ := snowflake.NewNode(5)
	env := newTestEnv(t, propertyTax(node, 500000))
	owner := env.node.Generate()

	acc, err := env.svc.EnsureAccount(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, acc.TotalDue.Equal(decimal.NewFromInt(500000)))
	require.True(t, acc.Outstanding.Equal(decimal.NewFromInt(500000)))
	require.Equal(t, ledgerdomain.AccountStatusOverdue, acc.Status)
	require.NotNil(t, acc.NextDueDate)
	require.True(t, acc.NextDueDate.Equal(env.clock.Now().AddDate(0, 0, 365)))

	again, err := env.svc.EnsureAccount(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, acc.ID, again.ID)
	require.True(t, again.TotalDue.Equal(decimal.NewFromInt(500000)))
}

func TestEnsureAccountWithoutCategoryOpensEmptyAccount(t *testing.T) {
	env := newTestEnv(t, nil)

	acc, err := env.svc.EnsureAccount(context.Background(), env.node.Generate())
	require.NoError(t, err)
	require.Nil(t, acc.TaxCategoryID)
	require.True(t, acc.TotalDue.IsZero())
	require.Equal(t, ledgerdomain.AccountStatusActive, acc.Status)
}

func TestEnsureAccountConvergesUnderRace(t *testing.T) {
	node, _ := snowflake.NewNode(5)
	env := newTestEnv(t, propertyTax(node, 1000))
	owner := env.node.Generate()

	const n = 8
	ids := make(chan snowflake.ID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := env.svc.EnsureAccount(context.Background(), owner)
			if err != nil {
				t.Errorf("ensure: %v", err)
				return
			}
			ids <- acc.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first snowflake.ID
	for id := range ids {
		if first == 0 {
			first = id
		}
		require.Equal(t, first, id)
	}

	var count int64
	require.NoError(t, env.db.Model(&ledgerdomain.TaxAccount{}).Where("owner_id = ?", owner).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSummaryWithoutAccountIsZero(t *testing.T) {
	env := newTestEnv(t, nil)
	taxpayer := authdomain.Principal{ID: env.node.Generate(), Role: authdomain.RoleTaxpayer, AccountStatus: authdomain.AccountStatusActive}

	summary, err := env.svc.Summary(context.Background(), taxpayer)
	require.NoError(t, err)
	require.Nil(t, summary.TaxAccountID)
	require.True(t, summary.TotalDue.IsZero())
	require.True(t, summary.Outstanding.IsZero())
	require.Equal(t, ledgerdomain.AccountStatusActive, summary.Status)
}

func TestGetIsOwnerOrOversight(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := authdomain.Principal{ID: env.node.Generate(), Role: authdomain.RoleTaxpayer, AccountStatus: authdomain.AccountStatusActive}
	stranger := authdomain.Principal{ID: env.node.Generate(), Role: authdomain.RoleTaxpayer, AccountStatus: authdomain.AccountStatusActive}
	officer := authdomain.Principal{ID: env.node.Generate(), Role: authdomain.RoleOfficer, AccountStatus: authdomain.AccountStatusActive}

	acc, err := env.svc.EnsureAccount(context.Background(), owner.ID)
	require.NoError(t, err)

	_, err = env.svc.Get(context.Background(), owner, acc.ID.String())
	require.NoError(t, err)
	_, err = env.svc.Get(context.Background(), env.admin, acc.ID.String())
	require.NoError(t, err)
	_, err = env.svc.Get(context.Background(), officer, acc.ID.String())
	require.NoError(t, err)
	_, err = env.svc.Get(context.Background(), stranger, acc.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrPermissionDenied)
	_, err = env.svc.Get(context.Background(), owner, "nope")
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidID)
}

func TestAdjustRecomputesBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	acc, err := env.svc.EnsureAccount(context.Background(), env.node.Generate())
	require.NoError(t, err)

	total, paid := decimal.NewFromInt(500000), decimal.NewFromInt(150000)
	updated, err := env.svc.Adjust(context.Background(), env.admin, ledgerdomain.AdjustRequest{
		AccountID:  acc.ID.String(),
		TotalDue:   &total,
		PaidAmount: &paid,
	})
	require.NoError(t, err)
	require.True(t, updated.Outstanding.Equal(decimal.NewFromInt(350000)))
	require.Equal(t, ledgerdomain.AccountStatusOverdue, updated.Status)

	var stored ledgerdomain.TaxAccount
	require.NoError(t, env.db.Where("id = ?", acc.ID).First(&stored).Error)
	require.True(t, stored.Invariant())
	require.Equal(t, ledgerdomain.AccountStatusOverdue, stored.Status)
}

func TestAdjustSuspendAndRecomputeLifts(t *testing.T) {
	env := newTestEnv(t, nil)
	acc, err := env.svc.EnsureAccount(context.Background(), env.node.Generate())
	require.NoError(t, err)

	suspended := ledgerdomain.AccountStatusSuspended
	updated, err := env.svc.Adjust(context.Background(), env.admin, ledgerdomain.AdjustRequest{
		AccountID: acc.ID.String(),
		Status:    &suspended,
	})
	require.NoError(t, err)
	require.Equal(t, ledgerdomain.AccountStatusSuspended, updated.Status)

	active := ledgerdomain.AccountStatusActive
	updated, err = env.svc.Adjust(context.Background(), env.admin, ledgerdomain.AdjustRequest{
		AccountID: acc.ID.String(),
		Status:    &active,
	})
	require.NoError(t, err)
	require.Equal(t, ledgerdomain.AccountStatusActive, updated.Status)
}

func TestAdjustValidatesCaller(t *testing.T) {
	env := newTestEnv(t, nil)
	acc, err := env.svc.EnsureAccount(context.Background(), env.node.Generate())
	require.NoError(t, err)

	taxpayer := authdomain.Principal{ID: acc.OwnerID, Role: authdomain.RoleTaxpayer, AccountStatus: authdomain.AccountStatusActive}
	total := decimal.NewFromInt(10)
	_, err = env.svc.Adjust(context.Background(), taxpayer, ledgerdomain.AdjustRequest{AccountID: acc.ID.String(), TotalDue: &total})
	require.ErrorIs(t, err, ledgerdomain.ErrPermissionDenied)

	negative := decimal.NewFromInt(-1)
	_, err = env.svc.Adjust(context.Background(), env.admin, ledgerdomain.AdjustRequest{AccountID: acc.ID.String(), PaidAmount: &negative})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	bogus := ledgerdomain.AccountStatus("Frozen")
	_, err = env.svc.Adjust(context.Background(), env.admin, ledgerdomain.AdjustRequest{AccountID: acc.ID.String(), Status: &bogus})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidStatus)

	_, err = env.svc.Adjust(context.Background(), env.admin, ledgerdomain.AdjustRequest{AccountID: env.node.Generate().String(), TotalDue: &total})
	require.True(t, errors.Is(err, ledgerdomain.ErrNotFound))
}
