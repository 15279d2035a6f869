package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TaxCategory is a kind of municipal levy. DefaultAmount seeds the balance of
// tax accounts opened under it.
type TaxCategory struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	Name          string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Description   *string         `gorm:"type:text"`
	DefaultAmount decimal.Decimal `gorm:"column:default_amount;type:numeric(14,2);not null;default:0"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxCategory) TableName() string { return "tax_categories" }

func (c *TaxCategory) Validate() error {
	if c.Name == "" {
		return ErrInvalidName
	}
	if c.DefaultAmount.IsNegative() {
		return ErrInvalidDefaultAmount
	}
	return nil
}
