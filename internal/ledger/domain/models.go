package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "Active"
	AccountStatusOverdue   AccountStatus = "Overdue"
	AccountStatusSuspended AccountStatus = "Suspended"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusOverdue, AccountStatusSuspended:
		return true
	default:
		return false
	}
}

// TaxAccount is an owner's running balance. Outstanding always equals
// TotalDue - PaidAmount after any write; it may go negative on overpayment.
type TaxAccount struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	OwnerID       snowflake.ID    `gorm:"column:owner_id;not null;uniqueIndex"`
	TaxCategoryID *snowflake.ID   `gorm:"column:tax_category_id;index"`
	TotalDue      decimal.Decimal `gorm:"column:total_due;type:numeric(14,2);not null;default:0"`
	PaidAmount    decimal.Decimal `gorm:"column:paid_amount;type:numeric(14,2);not null;default:0"`
	Outstanding   decimal.Decimal `gorm:"column:outstanding;type:numeric(14,2);not null;default:0"`
	Status        AccountStatus   `gorm:"type:varchar(20);not null;default:'Active'"`
	NextDueDate   *time.Time      `gorm:"column:next_due_date"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxAccount) TableName() string { return "tax_accounts" }

// Recompute re-derives Outstanding and Status from the balance fields.
// Status is always derived, so a Suspended account comes out Active or Overdue.
func Recompute(acc *TaxAccount) {
	acc.Outstanding = acc.TotalDue.Sub(acc.PaidAmount)
	if acc.Outstanding.IsPositive() {
		acc.Status = AccountStatusOverdue
	} else {
		acc.Status = AccountStatusActive
	}
}

// InitializeFromCategory seeds a freshly created account from its category's
// default amount. It must only run once, before the account is first persisted.
func InitializeFromCategory(acc *TaxAccount, defaultAmount decimal.Decimal, now time.Time, horizonDays int) {
	if !acc.TotalDue.IsZero() || !defaultAmount.IsPositive() {
		return
	}
	due := now.AddDate(0, 0, horizonDays)
	acc.TotalDue = defaultAmount
	acc.Outstanding = defaultAmount
	acc.NextDueDate = &due
	acc.Status = AccountStatusOverdue
}

// Invariant reports whether the stored outstanding matches the balance fields.
func (a *TaxAccount) Invariant() bool {
	return a.Outstanding.Equal(a.TotalDue.Sub(a.PaidAmount))
}
