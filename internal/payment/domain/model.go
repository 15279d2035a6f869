package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodMobileMoney     Method = "mobile_money"
	MethodGatewayRedirect Method = "gateway_redirect"
	MethodControlNumber   Method = "control_number"
)

func ParseMethod(value string) (Method, error) {
	switch m := Method(value); m {
	case MethodMobileMoney, MethodGatewayRedirect, MethodControlNumber:
		return m, nil
	default:
		return "", ErrInvalidMethod
	}
}

// MaxAmount is the largest value the NUMERIC(14,2) amount column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// ValidAmount reports whether amount, already rounded to cents, is storable.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.LessThanOrEqual(MaxAmount)
}

// PaymentRequest is one attempt to pay against a tax account.
// Rows in a terminal state are never updated again.
type PaymentRequest struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	OwnerID           snowflake.ID    `json:"owner_id" gorm:"column:owner_id;not null;index:idx_payment_requests_owner_state,priority:1"`
	TaxAccountID      snowflake.ID    `json:"tax_account_id" gorm:"column:tax_account_id;not null;index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	Method            Method          `json:"method" gorm:"type:varchar(30);not null;index:idx_payment_requests_owner_state,priority:2"`
	State             State           `json:"state" gorm:"type:varchar(20);not null;default:'pending';index:idx_payment_requests_owner_state,priority:3"`
	ControlNumber     *string         `json:"control_number,omitempty" gorm:"column:control_number;type:varchar(32);uniqueIndex"`
	ProviderReference *string         `json:"provider_reference,omitempty" gorm:"column:provider_reference;type:varchar(32)"`
	ApprovedBy        *snowflake.ID   `json:"approved_by,omitempty" gorm:"column:approved_by"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty" gorm:"column:approved_at"`
	RejectionReason   *string         `json:"rejection_reason,omitempty" gorm:"column:rejection_reason;type:text"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PaymentRequest) TableName() string { return "payment_requests" }

// ReferenceToken is the control number for control-number payments and the
// provider correlation reference otherwise.
func (p *PaymentRequest) ReferenceToken() string {
	switch {
	case p.ControlNumber != nil:
		return *p.ControlNumber
	case p.ProviderReference != nil:
		return *p.ProviderReference
	default:
		return ""
	}
}

// StateUpdate is the set of columns a transition writes.
type StateUpdate struct {
	To              State
	Amount          *decimal.Decimal
	ApprovedBy      *snowflake.ID
	ApprovedAt      *time.Time
	RejectionReason *string
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// Apply copies a committed update onto an in-memory payment.
func (u StateUpdate) Apply(p *PaymentRequest) {
	p.State = u.To
	if u.Amount != nil {
		p.Amount = *u.Amount
	}
	if u.ApprovedBy != nil {
		p.ApprovedBy = u.ApprovedBy
	}
	if u.ApprovedAt != nil {
		p.ApprovedAt = u.ApprovedAt
	}
	if u.RejectionReason != nil {
		p.RejectionReason = u.RejectionReason
	}
	if u.CompletedAt != nil {
		p.CompletedAt = u.CompletedAt
	}
	p.UpdatedAt = u.UpdatedAt
}
