package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	"gorm.io/gorm"
)

// Repository methods take the handle to run on so callers can pass a transaction.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TaxAccount, error)
	FindByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*TaxAccount, error)
	// FindForUpdate reads the account holding a row lock where the dialect supports one.
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TaxAccount, error)
	// Insert creates the account unless the owner already has one; it reports whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, acc *TaxAccount) (bool, error)
	SaveBalance(ctx context.Context, db *gorm.DB, acc *TaxAccount) error
}

type Service interface {
	EnsureAccount(ctx context.Context, ownerID snowflake.ID) (*TaxAccount, error)
	Get(ctx context.Context, actor authdomain.Principal, id string) (*TaxAccount, error)
	Summary(ctx context.Context, actor authdomain.Principal) (*Summary, error)
	Adjust(ctx context.Context, actor authdomain.Principal, req AdjustRequest) (*TaxAccount, error)
}

// Summary is the taxpayer dashboard view. Owners without an account see zeros.
type Summary struct {
	TaxAccountID *string         `json:"tax_account_id,omitempty"`
	TotalDue     decimal.Decimal `json:"total_due"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	Status       AccountStatus   `json:"status"`
	NextDueDate  *time.Time      `json:"next_due_date,omitempty"`
}

// AdjustRequest is an administrative correction. Nil fields are left alone.
type AdjustRequest struct {
	AccountID   string           `json:"-"`
	TotalDue    *decimal.Decimal `json:"total_due,omitempty"`
	PaidAmount  *decimal.Decimal `json:"paid_amount,omitempty"`
	NextDueDate *time.Time       `json:"next_due_date,omitempty"`
	Status      *AccountStatus   `json:"status,omitempty"`
}
