package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/munitax/internal/payment/domain"
	"github.com/smallbiznis/munitax/pkg/db"
	"github.com/smallbiznis/munitax/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PaymentRequest, error) {
	return first(conn.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PaymentRequest, error) {
	stmt := conn.WithContext(ctx)
	if db.SupportsRowLocks(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return first(stmt.Where("id = ?", id))
}

func (r *repo) FindPendingByControlNumber(ctx context.Context, conn *gorm.DB, ownerID snowflake.ID, controlNumber string) (*domain.PaymentRequest, error) {
	return first(conn.WithContext(ctx).Where(
		"control_number = ? AND owner_id = ? AND method = ? AND state = ?",
		controlNumber,
		ownerID,
		domain.MethodControlNumber,
		domain.StatePending,
	))
}

func (r *repo) ControlNumberExists(ctx context.Context, conn *gorm.DB, controlNumber string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_requests WHERE control_number = ?`,
		controlNumber,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, p *domain.PaymentRequest) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO payment_requests (
			id, owner_id, tax_account_id, amount, method, state,
			control_number, provider_reference, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OwnerID,
		p.TaxAccountID,
		p.Amount,
		p.Method,
		p.State,
		p.ControlNumber,
		p.ProviderReference,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) CancelPendingControlNumbers(ctx context.Context, conn *gorm.DB, ownerID snowflake.ID, now time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE payment_requests
		 SET state = ?, updated_at = ?
		 WHERE owner_id = ? AND method = ? AND state = ?`,
		domain.StateCancelled,
		now,
		ownerID,
		domain.MethodControlNumber,
		domain.StatePending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateState(ctx context.Context, conn *gorm.DB, id snowflake.ID, from []domain.State, update domain.StateUpdate) (bool, error) {
	values := map[string]any{
		"state":      update.To,
		"updated_at": update.UpdatedAt,
	}
	if update.Amount != nil {
		values["amount"] = *update.Amount
	}
	if update.ApprovedBy != nil {
		values["approved_by"] = *update.ApprovedBy
	}
	if update.ApprovedAt != nil {
		values["approved_at"] = *update.ApprovedAt
	}
	if update.RejectionReason != nil {
		values["rejection_reason"] = *update.RejectionReason
	}
	if update.CompletedAt != nil {
		values["completed_at"] = *update.CompletedAt
	}

	res := conn.WithContext(ctx).
		Model(&domain.PaymentRequest{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]*domain.PaymentRequest, error) {
	stmt := conn.WithContext(ctx).Model(&domain.PaymentRequest{})
	if filter.OwnerID != nil {
		stmt = stmt.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.State != nil {
		stmt = stmt.Where("state = ?", *filter.State)
	}
	if filter.Cursor != nil {
		cursorID, err := snowflake.ParseString(filter.Cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where(
			"((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			cursorID,
		)
	}

	var items []*domain.PaymentRequest
	err := stmt.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit + 1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func first(stmt *gorm.DB) (*domain.PaymentRequest, error) {
	var item domain.PaymentRequest
	if err := stmt.Limit(1).Find(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
