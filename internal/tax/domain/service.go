package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Repository interface {
	FirstActive(ctx context.Context) (*TaxCategory, error)
	Create(ctx context.Context, category *TaxCategory) error
	FindByID(ctx context.Context, id snowflake.ID) (*TaxCategory, error)
	List(ctx context.Context, filter ListRequest) ([]TaxCategory, error)
	Update(ctx context.Context, category *TaxCategory) error
}

// Resolver picks the category used when an owner needs an account opened for them.
type Resolver interface {
	DefaultCategory(ctx context.Context) (*TaxCategory, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Disable(ctx context.Context, id string) (*Response, error)
}

type ListRequest struct {
	Name     string
	IsActive *bool
}

type CreateRequest struct {
	Name          string          `json:"name" binding:"required,max=100"`
	Description   *string         `json:"description"`
	DefaultAmount decimal.Decimal `json:"default_amount"`
	IsActive      *bool           `json:"is_active"`
}

type UpdateRequest struct {
	ID            string           `json:"-"`
	Name          *string          `json:"name,omitempty" binding:"omitempty,max=100"`
	Description   *string          `json:"description,omitempty"`
	DefaultAmount *decimal.Decimal `json:"default_amount,omitempty"`
}

type Response struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	DefaultAmount decimal.Decimal `json:"default_amount"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
