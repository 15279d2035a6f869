package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*ledgerdomain.TaxAccount, error) {
	return r.first(conn.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByOwner(ctx context.Context, conn *gorm.DB, ownerID snowflake.ID) (*ledgerdomain.TaxAccount, error) {
	return r.first(conn.WithContext(ctx).Where("owner_id = ?", ownerID))
}

func (r *repo) FindForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*ledgerdomain.TaxAccount, error) {
	stmt := conn.WithContext(ctx)
	if db.SupportsRowLocks(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return r.first(stmt.Where("id = ?", id))
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, acc *ledgerdomain.TaxAccount) (bool, error) {
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoNothing: true,
		}).
		Create(acc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SaveBalance(ctx context.Context, conn *gorm.DB, acc *ledgerdomain.TaxAccount) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE tax_accounts
		 SET total_due = ?, paid_amount = ?, outstanding = ?, status = ?, next_due_date = ?, updated_at = ?
		 WHERE id = ?`,
		acc.TotalDue,
		acc.PaidAmount,
		acc.Outstanding,
		acc.Status,
		acc.NextDueDate,
		acc.UpdatedAt,
		acc.ID,
	).Error
}

func (r *repo) first(stmt *gorm.DB) (*ledgerdomain.TaxAccount, error) {
	var acc ledgerdomain.TaxAccount
	err := stmt.Limit(1).Find(&acc).Error
	if err != nil {
		return nil, err
	}
	if acc.ID == 0 {
		return nil, nil
	}
	return &acc, nil
}
