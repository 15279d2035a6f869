package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/munitax/internal/auth/domain"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRequest, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRequest, error)
	FindPendingByControlNumber(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, controlNumber string) (*PaymentRequest, error)
	ControlNumberExists(ctx context.Context, db *gorm.DB, controlNumber string) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, p *PaymentRequest) error
	// CancelPendingControlNumbers supersedes every live control number the owner holds.
	CancelPendingControlNumbers(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, now time.Time) (int64, error)
	// UpdateState writes update only while the row is still in one of from.
	UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, from []State, update StateUpdate) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PaymentRequest, error)
}

// Reconciler credits an approved payment to its tax account exactly once.
type Reconciler interface {
	Complete(ctx context.Context, actorID, paymentID snowflake.ID) (*PaymentRequest, *ledgerdomain.TaxAccount, error)
}

type Service interface {
	Create(ctx context.Context, actor authdomain.Principal, req CreateRequest) (*PaymentRequest, error)
	SubmitControlNumber(ctx context.Context, actor authdomain.Principal, req SubmitControlNumberRequest) (*PaymentRequest, error)
	Approve(ctx context.Context, actor authdomain.Principal, id string) (*PaymentRequest, error)
	Reject(ctx context.Context, actor authdomain.Principal, id string, reason string) (*PaymentRequest, error)
	Complete(ctx context.Context, actor authdomain.Principal, id string) (*PaymentRequest, *ledgerdomain.TaxAccount, error)
	Get(ctx context.Context, actor authdomain.Principal, id string) (*PaymentRequest, error)
	List(ctx context.Context, actor authdomain.Principal, req ListRequest) (*ListResponse, error)
}

type CreateRequest struct {
	TaxAccountID *string         `json:"tax_account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method" binding:"required"`
}

type SubmitControlNumberRequest struct {
	ControlNumber string          `json:"control_number" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

type ListRequest struct {
	State string `form:"state"`
	pagination.Pagination
}

type ListFilter struct {
	OwnerID *snowflake.ID
	State   *State
	Cursor  *pagination.Cursor
	Limit   int
}

type ListResponse struct {
	Items    []*PaymentRequest    `json:"items"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}
